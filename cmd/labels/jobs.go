package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/tog-labels/internal/observability"
	"github.com/jonathan/tog-labels/internal/pipeline"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List active tog jobs as JSON",
	RunE:  runJobs,
}

// jobsConn holds only the connection flags.
var jobsConn jobFlags

func init() {
	jobsCmd.Flags().StringVar(&jobsConn.dbName, "db", "", "Database name (env TOGDB_DB)")
	jobsCmd.Flags().StringVar(&jobsConn.host, "host", "", "Database host (env TOGDB_HOST)")
	jobsCmd.Flags().IntVar(&jobsConn.port, "port", 0, "Database port (env TOGDB_PORT)")
	jobsCmd.Flags().StringVar(&jobsConn.user, "user", "", "Database user (env TOGDB_USER)")
	jobsCmd.Flags().StringVar(&jobsConn.password, "password", "", "Database password (env TOGDB_PASS)")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(jobsConn.config())
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	src, err := jobsConn.openSource(cfg)
	if err != nil {
		return err
	}

	jobs, err := pipeline.ListJobs(cmd.Context(), src, log)
	if err != nil {
		return err
	}
	return observability.NewPrinter(cmd.OutOrStdout()).PrintJSON(jobs)
}
