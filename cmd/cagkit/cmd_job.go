package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kittclouds/cagkit/internal/reindex"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect background jobs",
}

var jobWaitCmd = &cobra.Command{
	Use:   "wait [job-id...]",
	Short: "Poll jobs until they all finish",
	Long: `Polls each job every --poll-interval until it succeeds or fails. Gives up
with "Exceed polling threshold N" after --poll-threshold polls. Several jobs
are watched concurrently; the first failure stops the rest.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runJobWait,
}

var jobShowCmd = &cobra.Command{
	Use:   "show [job-id]",
	Short: "Print a job record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobShow,
}

func init() {
	addPollFlags(jobWaitCmd)
	jobCmd.AddCommand(jobWaitCmd)
	jobCmd.AddCommand(jobShowCmd)
}

func runJobWait(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	jobs, err := reindex.WaitJobs(ctx, s, args, waitOptions(cmd))
	for _, job := range jobs {
		if job != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d/%d\n", job.ID, job.Status, job.Progress, job.Total)
		}
	}
	return err
}

func runJobShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	job, err := s.GetJob(args[0])
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %q not found", args[0])
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}
