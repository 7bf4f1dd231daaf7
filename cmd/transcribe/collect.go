package main

import (
	"github.com/spf13/cobra"

	"survey-insights-go/internal/batch"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Build the result dataset from artifacts already in the output directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		catalog, err := a.loadCatalog()
		if err != nil {
			return err
		}
		records := batch.CollectFromDisk(catalog, a.cfg.Batch.OutputDir, batch.FileExists)
		return a.finish(cmd.Context(), "partial", records)
	},
}
