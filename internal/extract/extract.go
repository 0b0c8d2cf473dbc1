// Package extract materializes a tog job into a local store.
package extract

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/tog-labels/internal/batch"
	"github.com/jonathan/tog-labels/internal/db"
	"github.com/jonathan/tog-labels/internal/localstore"
	"github.com/jonathan/tog-labels/internal/logger"
	"github.com/jonathan/tog-labels/internal/tasks"
)

// DefaultBatchSize is the number of ids fetched per round trip.
const DefaultBatchSize = 500

// Sink receives decoded rows. localstore.Store satisfies it.
type Sink interface {
	InsertRows(ctx context.Context, records []localstore.Record) error
}

// Progress is reported after every stored batch.
type Progress struct {
	Batch   int
	Batches int
	Done    int
	Total   int
}

// Options configures an extraction run.
type Options struct {
	JobID    int64
	TaskType tasks.Type
	// Location is the timezone conversation reftimes are rendered in.
	Location *time.Location
	// Full includes untagged tasks.
	Full      bool
	OnlyGold  bool
	DateRange *db.DateRange
	BatchSize int
	Predict   tasks.PredictFunc
	Progress  func(Progress)
}

func (o Options) filter() db.Filter {
	return db.Filter{Untagged: o.Full, OnlyGold: o.OnlyGold, DateRange: o.DateRange}
}

// Result summarises a completed extraction.
type Result struct {
	Job       *db.Job
	Total     int
	Processed int
	Batches   int
}

// Run fetches job metadata and ids on one session, closes it, then fetches
// and stores rows batch by batch on a second session. Any decode failure
// aborts the run.
func Run(ctx context.Context, src db.Source, dst Sink, opts Options, log *logger.Logger) (*Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	log = log.With(logrus.Fields{"job_id": opts.JobID, "task_type": opts.TaskType})

	job, total, ids, err := listPhase(ctx, src, opts, log)
	if err != nil {
		return nil, err
	}
	result := &Result{Job: job, Total: total}

	groups := batch.Split(ids, opts.BatchSize)
	if len(groups) == 0 {
		log.Info("no items matched, nothing to download")
		return result, nil
	}

	session, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open fetch session: %w", err)
	}
	defer closeSession(ctx, session, log)

	jobRef := strconv.FormatInt(opts.JobID, 10)
	for i, ids := range groups {
		rows, err := session.FetchBatch(ctx, opts.JobID, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch batch %d/%d: %w", i+1, len(groups), err)
		}

		records := make([]localstore.Record, 0, len(rows))
		for _, row := range rows {
			rec, err := toRecord(row, opts, jobRef)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}

		if err := dst.InsertRows(ctx, records); err != nil {
			return nil, fmt.Errorf("failed to store batch %d/%d: %w", i+1, len(groups), err)
		}

		result.Batches++
		result.Processed += len(rows)
		log.WithFields(logrus.Fields{
			"batch": i + 1,
			"done":  result.Processed,
			"total": total,
		}).Debug("stored batch")
		if opts.Progress != nil {
			opts.Progress(Progress{Batch: i + 1, Batches: len(groups), Done: result.Processed, Total: total})
		}
	}

	log.WithField("items", result.Processed).Info("download complete")
	return result, nil
}

// listPhase resolves the job, total and eligible ids, then closes its session
// so no server-side state is held across the fetch phase.
func listPhase(ctx context.Context, src db.Source, opts Options, log *logger.Logger) (*db.Job, int, []int64, error) {
	session, err := src.Open(ctx)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to open listing session: %w", err)
	}
	defer closeSession(ctx, session, log)

	job, err := session.FetchJob(ctx, opts.JobID)
	if err != nil {
		return nil, 0, nil, err
	}

	filter := opts.filter()
	total, err := session.CountTotal(ctx, opts.JobID, filter)
	if err != nil {
		return nil, 0, nil, err
	}

	ids, err := session.ListEligibleIDs(ctx, opts.JobID, filter)
	if err != nil {
		return nil, 0, nil, err
	}

	log.WithFields(logrus.Fields{"name": job.Name, "total": total, "ids": len(ids)}).Info("resolved job")
	return job, total, ids, nil
}

func closeSession(ctx context.Context, s db.Session, log *logger.Logger) {
	if err := s.Close(ctx); err != nil {
		log.WithError(err).Warn("failed to close database session")
	}
}

func toRecord(row db.RawRow, opts Options, jobRef string) (localstore.Record, error) {
	task, err := tasks.Decode(row.Data, opts.TaskType, tasks.Options{
		DataID:   row.DataID,
		Location: opts.Location,
		IsGold:   row.IsGold,
		Predict:  opts.Predict,
	})
	if err != nil {
		return localstore.Record{}, fmt.Errorf("failed to decode task %d: %w", row.DataID, err)
	}

	rec := localstore.Record{
		DataID: task.ID(),
		Data:   task.Document(),
		IsGold: task.Gold(),
		JobID:  &jobRef,
	}
	if row.Tag != nil {
		rec.Tag = row.Tag
	}
	if row.TaggedTime != nil {
		ts := row.TaggedTime.UTC().Format(time.RFC3339Nano)
		rec.TaggedTime = &ts
	}
	return rec, nil
}
