package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/tog-labels/internal/config"
	"github.com/jonathan/tog-labels/internal/dvc"
	"github.com/jonathan/tog-labels/internal/extract"
	"github.com/jonathan/tog-labels/internal/flatten"
	"github.com/jonathan/tog-labels/internal/observability"
	"github.com/jonathan/tog-labels/internal/pipeline"
	"github.com/jonathan/tog-labels/internal/tasks"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a dataset",
}

var downloadTogCmd = &cobra.Command{
	Use:   "tog",
	Short: "Download a dataset of a given job id from the tog database",
	Long: "Download every task of a tog job into a temporary SQLite store, then publish it as " +
		"CSV or XLSX (flattened) or as the SQLite file itself. The output path is printed on success.",
	RunE: runDownloadTog,
}

var downloadDVCCmd = &cobra.Command{
	Use:   "dvc",
	Short: "Download a dataset from a dvc enabled repo",
	RunE:  runDownloadDVC,
}

var (
	downloadJob         jobFlags
	downloadFormat      string
	downloadOutput      string
	downloadTimezone    string
	downloadBatchSize   int
	downloadFull        bool
	downloadOnlyGold    bool
	downloadTaskType    string
	downloadAnnotations bool

	dvcRepo   string
	dvcPath   string
	dvcRemote string
	dvcOutput string
)

func init() {
	downloadJob.register(downloadTogCmd)
	downloadTogCmd.Flags().StringVarP(&downloadFormat, "output-format", "o", "", "Output format: "+strings.Join(flatten.Formats, ", ")+" (default .csv)")
	downloadTogCmd.Flags().StringVar(&downloadOutput, "output", "", "Output path (default: a new file in the temp dir)")
	downloadTogCmd.Flags().StringVar(&downloadTimezone, "timezone", "", "Timezone for datetime values, like Asia/Kolkata (default UTC)")
	downloadTogCmd.Flags().StringVar(&downloadTimezone, "tz", "", "Alias of --timezone")
	downloadTogCmd.Flags().IntVar(&downloadBatchSize, "batch-size", 0, fmt.Sprintf("Number of items to download in a batch (default %d)", extract.DefaultBatchSize))
	downloadTogCmd.Flags().BoolVar(&downloadFull, "full", false, "Include untagged items")
	downloadTogCmd.Flags().BoolVar(&downloadOnlyGold, "only-gold", false, "Only download gold items")
	downloadTogCmd.Flags().StringVarP(&downloadTaskType, "task-type", "t", "", "Task type for deserialization: "+strings.Join(tasks.TypeNames(), ", ")+" (default conversation)")
	downloadTogCmd.Flags().BoolVar(&downloadAnnotations, "annotation-columns", false, "Add intent and gold-data columns parsed from tags")

	downloadDVCCmd.Flags().StringVar(&dvcRepo, "repo", "", "DVC enabled git repository (required)")
	downloadDVCCmd.Flags().StringVar(&dvcPath, "path", "", "Path to the dataset (required)")
	downloadDVCCmd.Flags().StringVar(&dvcRemote, "remote", "", "Remote, only needed when the repo has no default remote")
	downloadDVCCmd.Flags().StringVar(&dvcOutput, "output", "", "Output path (default: a new file in the temp dir)")
	_ = downloadDVCCmd.MarkFlagRequired("repo")
	_ = downloadDVCCmd.MarkFlagRequired("path")

	downloadCmd.AddCommand(downloadTogCmd, downloadDVCCmd)
	rootCmd.AddCommand(downloadCmd)
}

func runDownloadTog(cmd *cobra.Command, _ []string) error {
	flags := downloadJob.config()
	flags.OutputFormat = downloadFormat
	flags.Timezone = downloadTimezone
	flags.BatchSize = downloadBatchSize
	flags.TaskType = downloadTaskType

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	taskType, err := tasks.ParseType(cfg.TaskType)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	dateRange, err := downloadJob.dateRange()
	if err != nil {
		return err
	}
	src, err := downloadJob.openSource(cfg)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(cmd.ErrOrStderr())
	res, err := pipeline.DownloadFromDB(cmd.Context(), src, pipeline.DownloadOptions{
		Extract: extract.Options{
			JobID:     downloadJob.jobID,
			TaskType:  taskType,
			Location:  loc,
			Full:      downloadFull,
			OnlyGold:  downloadOnlyGold,
			DateRange: dateRange,
			BatchSize: cfg.BatchSize,
			Progress:  printer.PrintProgress,
		},
		Format:      cfg.OutputFormat,
		Output:      downloadOutput,
		Annotations: downloadAnnotations,
	}, log)
	if err != nil {
		return err
	}

	printer.PrintJob(res.Job)
	fmt.Fprintln(cmd.OutOrStdout(), res.Path)
	return nil
}

func runDownloadDVC(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(config.Config{})
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	client := dvc.NewClient(nil, log)
	ref := dvc.Ref{Repo: dvcRepo, Path: dvcPath, Remote: dvcRemote}
	path, err := pipeline.DownloadFromDVC(cmd.Context(), client, ref, dvcOutput, log)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

