package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/tog-labels/internal/observability"
	"github.com/jonathan/tog-labels/internal/pipeline"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Describe a dataset for a given tog job id",
	RunE:  runDescribe,
}

var (
	describeJob  jobFlags
	describeJSON bool
)

func init() {
	describeJob.register(describeCmd)
	describeCmd.Flags().BoolVar(&describeJSON, "json", false, "Print the job as JSON")
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(describeJob.config())
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	src, err := describeJob.openSource(cfg)
	if err != nil {
		return err
	}

	job, err := pipeline.Describe(cmd.Context(), src, describeJob.jobID, log)
	if err != nil {
		return err
	}
	printer := observability.NewPrinter(cmd.OutOrStdout())
	if describeJSON {
		return printer.PrintJSON(job)
	}
	printer.PrintJob(job)
	return nil
}
