package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jonathan/tog-labels/internal/db"
	"github.com/jonathan/tog-labels/internal/localstore"
	"github.com/jonathan/tog-labels/internal/logger"
	"github.com/jonathan/tog-labels/internal/tasks"
)

// Item fetches the single task of a job stored under the external dataID and
// decodes it as taskType.
func Item(ctx context.Context, src db.Source, jobID int64, dataID string, taskType tasks.Type, loc *time.Location, log *logger.Logger) (*localstore.StoredTask, error) {
	var item *localstore.StoredTask
	err := withSession(ctx, src, log, func(s db.Session) error {
		if _, err := s.FetchJob(ctx, jobID); err != nil {
			return err
		}
		row, err := s.FetchByDataID(ctx, jobID, dataID)
		if err != nil {
			return err
		}

		task, err := tasks.Decode(row.Data, taskType, tasks.Options{
			DataID:   row.DataID,
			Location: loc,
			IsGold:   row.IsGold,
		})
		if err != nil {
			return fmt.Errorf("failed to decode task %d: %w", row.DataID, err)
		}
		item = &localstore.StoredTask{DataID: task.ID(), Task: task}
		if len(row.Tag) > 0 && string(row.Tag) != "null" {
			item.Tag = row.Tag
		}
		if row.TaggedTime != nil {
			ts := row.TaggedTime.UTC().Format(time.RFC3339Nano)
			item.TaggedTime = &ts
		}
		return nil
	})
	return item, err
}

// ReadLocalOptions selects tasks from a downloaded SQLite dataset.
type ReadLocalOptions struct {
	TaskType tasks.Type
	Location *time.Location
	Query    localstore.Query
	// DataID, when set, returns only the task stored under it.
	DataID string
}

// ReadLocal decodes the tasks of a dataset published with the .sqlite format.
func ReadLocal(ctx context.Context, path string, opts ReadLocalOptions, log *logger.Logger) ([]localstore.StoredTask, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	store, err := localstore.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("Failed to close dataset")
		}
	}()

	if opts.DataID != "" {
		item, err := store.TaskByDataID(ctx, opts.TaskType, opts.DataID, opts.Location)
		if err != nil {
			return nil, err
		}
		return []localstore.StoredTask{*item}, nil
	}
	return store.Tasks(ctx, opts.TaskType, opts.Query, opts.Location)
}
