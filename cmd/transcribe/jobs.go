package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List persisted runs, or the jobs of one run",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		st, err := a.openStore()
		if err != nil {
			return err
		}
		if st == nil {
			return errors.New("no job store configured, set STORE_PATH")
		}
		defer st.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if jobsRunID == "" {
			runs, err := st.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			return enc.Encode(runs)
		}
		jobs, err := st.ListJobs(cmd.Context(), jobsRunID)
		if err != nil {
			return err
		}
		return enc.Encode(jobs)
	},
}

var jobsRunID string

func init() {
	jobsCmd.Flags().StringVar(&jobsRunID, "run-id", "", "Show the jobs of this run")
}
