package main

import (
	"github.com/spf13/cobra"

	"survey-insights-go/internal/batch"
	"survey-insights-go/internal/pipeline"
	"survey-insights-go/internal/types"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Transcribe every file through the synchronous endpoint with a worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		catalog, err := a.loadCatalog()
		if err != nil {
			return err
		}
		if err := batch.ValidateCatalog(catalog); err != nil {
			return err
		}
		svc, err := a.client()
		if err != nil {
			return err
		}

		var present, missing []types.WorkItem
		for _, it := range catalog {
			if batch.FileExists(it.FilePath) {
				present = append(present, it)
			} else {
				missing = append(missing, it)
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		results := pipeline.Run(ctx, present, svc, pipeline.Options{
			Workers:        a.cfg.Batch.Workers,
			PerFileTimeout: a.cfg.Batch.PerFileTimeout,
			Job:            a.jobConfig(),
			Log:            a.log.Entry,
		})
		records := pipeline.Records(catalog, results, missing)
		return a.finish(cmd.Context(), "sync", records)
	},
}
