package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"survey-insights-go/internal/types"
)

var (
	runID       string
	metricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Partition the catalog, submit batch jobs, poll them and write the result dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		id := runID
		if id == "" {
			id = uuid.NewString()
		}
		log := a.log.WithField("run_id", id)
		log.Info("starting run")

		catalog, err := a.loadCatalog()
		if err != nil {
			return err
		}
		svc, err := a.client()
		if err != nil {
			return err
		}
		st, err := a.openStore()
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
		}

		stop := serveMetrics(metricsAddr, log)
		defer stop()

		ctx, cancel := signalContext()
		defer cancel()

		records, runErr := a.orchestrator(svc, id, st).Run(ctx, catalog)
		return complete(cmd, a, id, records, runErr)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue a run from its persisted jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runID == "" {
			return errors.New("--run-id is required")
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		st, err := a.openStore()
		if err != nil {
			return err
		}
		if st == nil {
			return errors.New("resume needs a job store, set STORE_PATH")
		}
		defer st.Close()

		ctx, cancel := signalContext()
		defer cancel()

		jobs, err := st.ListJobs(ctx, runID)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		if len(jobs) == 0 {
			return fmt.Errorf("no persisted jobs for run %s", runID)
		}
		catalog, err := a.loadCatalog()
		if err != nil {
			return err
		}
		svc, err := a.client()
		if err != nil {
			return err
		}

		stop := serveMetrics(metricsAddr, a.log.WithField("run_id", runID))
		defer stop()

		records, runErr := a.orchestrator(svc, runID, st).Resume(ctx, catalog, jobs)
		return complete(cmd, a, runID, records, runErr)
	},
}

// complete writes whatever records a run produced, even an interrupted one.
func complete(cmd *cobra.Command, a *app, id string, records []types.AggregatedRecord, runErr error) error {
	if records == nil {
		return runErr
	}
	if err := a.finish(cmd.Context(), id, records); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("run %s interrupted, resume with --run-id: %w", id, runErr)
	}
	cmd.Printf("run %s finished: %d records written to %s\n", id, len(records), a.cfg.Dataset.ResultPath)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{runCmd, resumeCmd} {
		c.Flags().StringVar(&runID, "run-id", "", "Run identifier (generated when empty for run)")
		c.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	}
}
