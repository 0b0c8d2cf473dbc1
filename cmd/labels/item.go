package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/tog-labels/internal/config"
	"github.com/jonathan/tog-labels/internal/localstore"
	"github.com/jonathan/tog-labels/internal/observability"
	"github.com/jonathan/tog-labels/internal/pipeline"
	"github.com/jonathan/tog-labels/internal/tasks"
)

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Print the task and tag stored under a data id in a tog job",
	RunE:  runItem,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the tasks of a dataset downloaded with -o .sqlite",
	RunE:  runInspect,
}

var (
	itemJob      jobFlags
	itemDataID   string
	itemTaskType string
	itemTimezone string

	inspectInput    string
	inspectDataID   string
	inspectTaskType string
	inspectTimezone string
	inspectFull     bool
	inspectOnlyGold bool
)

func init() {
	taskTypeUsage := "Task type for deserialization: " + strings.Join(tasks.TypeNames(), ", ") + " (default conversation)"

	itemJob.register(itemCmd)
	itemCmd.Flags().StringVar(&itemDataID, "data-id", "", "External data id of the item (required)")
	itemCmd.Flags().StringVarP(&itemTaskType, "task-type", "t", "", taskTypeUsage)
	itemCmd.Flags().StringVar(&itemTimezone, "tz", "", "Timezone for datetime values (default UTC)")
	_ = itemCmd.MarkFlagRequired("data-id")

	inspectCmd.Flags().StringVarP(&inspectInput, "input", "i", "", "SQLite dataset to read (required)")
	inspectCmd.Flags().StringVar(&inspectDataID, "data-id", "", "Only print the item stored under this data id")
	inspectCmd.Flags().StringVarP(&inspectTaskType, "task-type", "t", "", taskTypeUsage)
	inspectCmd.Flags().StringVar(&inspectTimezone, "tz", "", "Timezone for datetime values (default UTC)")
	inspectCmd.Flags().BoolVar(&inspectFull, "full", false, "Include untagged items")
	inspectCmd.Flags().BoolVar(&inspectOnlyGold, "only-gold", false, "Only print gold items")
	_ = inspectCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(itemCmd, inspectCmd)
}

func runItem(cmd *cobra.Command, _ []string) error {
	flags := itemJob.config()
	flags.TaskType = itemTaskType
	flags.Timezone = itemTimezone

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
	src, err := itemJob.openSource(cfg)
	if err != nil {
		return err
	}

	item, err := pipeline.Item(cmd.Context(), src, itemJob.jobID, itemDataID, taskType, loc, log)
	if err != nil {
		return err
	}
	return observability.NewPrinter(cmd.OutOrStdout()).PrintTasks([]localstore.StoredTask{*item})
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(config.Config{TaskType: inspectTaskType, Timezone: inspectTimezone})
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

	items, err := pipeline.ReadLocal(cmd.Context(), inspectInput, pipeline.ReadLocalOptions{
		TaskType: taskType,
		Location: loc,
		Query:    localstore.Query{Untagged: inspectFull, OnlyGold: inspectOnlyGold},
		DataID:   inspectDataID,
	}, log)
	if err != nil {
		return err
	}
	return observability.NewPrinter(cmd.OutOrStdout()).PrintTasks(items)
}
