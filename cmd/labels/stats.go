package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/tog-labels/internal/observability"
	"github.com/jonathan/tog-labels/internal/pipeline"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Get tagged/untagged counts for a given tog job id",
	RunE:  runStats,
}

var (
	statsJob jobFlags
	statsBox bool
)

func init() {
	statsJob.register(statsCmd)
	statsCmd.Flags().BoolVar(&statsBox, "pretty", false, "Print a summary box instead of JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(statsJob.config())
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	dateRange, err := statsJob.dateRange()
	if err != nil {
		return err
	}
	src, err := statsJob.openSource(cfg)
	if err != nil {
		return err
	}

	stats, err := pipeline.Stats(cmd.Context(), src, statsJob.jobID, dateRange, log)
	if err != nil {
		return err
	}
	printer := observability.NewPrinter(cmd.OutOrStdout())
	if statsBox {
		printer.PrintStats(statsJob.jobID, stats)
		return nil
	}
	return printer.PrintJSON(stats)
}
