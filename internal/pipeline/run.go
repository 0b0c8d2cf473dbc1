// Package pipeline wires the extraction, flattening, build and upload stages
// into the operations exposed by the CLI.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/tog-labels/internal/build"
	"github.com/jonathan/tog-labels/internal/db"
	"github.com/jonathan/tog-labels/internal/dvc"
	"github.com/jonathan/tog-labels/internal/extract"
	"github.com/jonathan/tog-labels/internal/flatten"
	"github.com/jonathan/tog-labels/internal/localstore"
	"github.com/jonathan/tog-labels/internal/logger"
	"github.com/jonathan/tog-labels/internal/upload"
)

// Pipeline steps reported through ProgressEvent.
const (
	StepExtract = "extract"
	StepFlatten = "flatten"
	StepPublish = "publish"
	StepBuild   = "build"
	StepUpload  = "upload"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step    string `json:"step"`
	Message string `json:"message"`
	Content any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

func emitProgress(cb ProgressCallback, step, message string, content any) {
	if cb != nil {
		cb(ProgressEvent{Step: step, Message: message, Content: content})
	}
}

// FormatError is returned for an output format other than flatten.Formats.
type FormatError struct {
	Format string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported output format %q, expected one of %s", e.Format, strings.Join(flatten.Formats, ", "))
}

// DownloadOptions holds configuration for DownloadFromDB
type DownloadOptions struct {
	Extract extract.Options
	// Format is one of flatten.Formats.
	Format string
	// Output is the published file. Empty picks a fresh name in the temp dir.
	Output string
	// TempDir holds the intermediate store. Empty means os.TempDir.
	TempDir     string
	Annotations bool
	OnProgress  ProgressCallback
}

// DownloadResult describes a published dataset.
type DownloadResult struct {
	Path     string
	Job      *db.Job
	TaskType string
	Total    int
	Items    int
	Tagged   int
}

// DefaultOutputPath returns a fresh job-<id>-<token><format> path inside dir.
func DefaultOutputPath(dir string, jobID int64, format string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return filepath.Join(dir, fmt.Sprintf("job-%d-%s%s", jobID, token, format))
}

func checkOutput(path string) error {
	if _, err := os.Stat(path); err == nil {
		return &flatten.OutputExistsError{Path: path}
	}
	return nil
}

// DownloadFromDB extracts a job into a temporary store, then either flattens
// it to CSV/XLSX or publishes the store itself. The temporary store never
// outlives the call.
func DownloadFromDB(ctx context.Context, src db.Source, opts DownloadOptions, log *logger.Logger) (*DownloadResult, error) {
	if !slices.Contains(flatten.Formats, opts.Format) {
		return nil, &FormatError{Format: opts.Format}
	}
	output := opts.Output
	if output == "" {
		output = DefaultOutputPath(os.TempDir(), opts.Extract.JobID, opts.Format)
	}
	if err := checkOutput(output); err != nil {
		return nil, err
	}

	store, err := localstore.CreateTemp(opts.TempDir, "tog-*"+flatten.FormatSQLite)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Remove(); err != nil {
			log.WithError(err).Warn("Failed to remove temporary store")
		}
	}()
	log = log.With(logrus.Fields{"job_id": opts.Extract.JobID, "store": store.Path()})

	if opts.Extract.Progress == nil && opts.OnProgress != nil {
		opts.Extract.Progress = func(p extract.Progress) {
			emitProgress(opts.OnProgress, StepExtract, "Stored batch", p)
		}
	}
	emitProgress(opts.OnProgress, StepExtract, "Extracting job", nil)
	res, err := extract.Run(ctx, src, store, opts.Extract, log)
	if err != nil {
		return nil, err
	}

	tagged, err := store.Count(ctx, false)
	if err != nil {
		return nil, err
	}
	result := &DownloadResult{
		Path:     output,
		Job:      res.Job,
		TaskType: string(opts.Extract.TaskType),
		Total:    res.Total,
		Items:    res.Processed,
		Tagged:   tagged,
	}

	if opts.Format == flatten.FormatSQLite {
		if err := store.Close(); err != nil {
			return nil, fmt.Errorf("failed to close store: %w", err)
		}
		emitProgress(opts.OnProgress, StepPublish, "Publishing store", output)
		if err := flatten.PublishFile(store.Path(), output); err != nil {
			return nil, err
		}
		log.WithField("output", output).Info("Dataset downloaded")
		return result, nil
	}

	rows, err := store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	var flattenOpts []flatten.Option
	if opts.Annotations {
		flattenOpts = append(flattenOpts, flatten.WithAnnotations())
	}
	emitProgress(opts.OnProgress, StepFlatten, "Flattening rows", len(rows))
	table := flatten.Flatten(rows, flattenOpts...)

	emitProgress(opts.OnProgress, StepPublish, "Writing output", output)
	if err := flatten.Write(output, opts.Format, table); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"output": output, "columns": len(table.Columns)}).Info("Dataset downloaded")
	return result, nil
}

// Opener streams a file out of a versioned dataset repository.
type Opener interface {
	Open(ctx context.Context, ref dvc.Ref) (io.ReadCloser, error)
}

// DownloadFromDVC copies a CSV dataset out of a dvc repository to output.
// The file is parsed on the way through, so a non-tabular file fails before
// anything is published.
func DownloadFromDVC(ctx context.Context, opener Opener, ref dvc.Ref, output string, log *logger.Logger) (string, error) {
	if output == "" {
		token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		output = filepath.Join(os.TempDir(), token+"-"+filepath.Base(ref.Path))
	}
	if err := checkOutput(output); err != nil {
		return "", err
	}

	rc, err := opener.Open(ctx, ref)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	table, err := build.ParseCSV(rc)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s from %s: %w", ref.Path, ref.Repo, err)
	}
	if err := flatten.WriteCSV(output, table); err != nil {
		return "", err
	}
	log.WithFields(logrus.Fields{"repo": ref.Repo, "path": ref.Path, "rows": len(table.Rows), "output": output}).Info("Dataset downloaded from dvc")
	return output, nil
}

// Uploader posts upload documents. upload.Uploader satisfies it.
type Uploader interface {
	Upload(ctx context.Context, docs []build.UploadDocument, jobID int64) (*upload.Result, error)
}

// Upload reads a CSV file, builds validated documents and uploads them.
// Everything that can be rejected locally is rejected before the first request.
func Upload(ctx context.Context, path string, up Uploader, jobID int64, source string, onProgress ProgressCallback, log *logger.Logger) (*upload.Result, error) {
	table, err := build.ReadCSV(path)
	if err != nil {
		return nil, err
	}

	emitProgress(onProgress, StepBuild, "Building dataset", len(table.Rows))
	docs, err := build.Build(table, source, log)
	if err != nil {
		return nil, err
	}

	emitProgress(onProgress, StepUpload, "Uploading dataset", len(docs))
	result, err := up.Upload(ctx, docs, jobID)
	if err != nil {
		return nil, err
	}
	// Rows skipped during build still count toward the input size.
	result.Total = len(table.Rows)
	return result, nil
}

// withSession opens a session, runs fn and closes the session.
func withSession(ctx context.Context, src db.Source, log *logger.Logger, fn func(db.Session) error) error {
	session, err := src.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(ctx); cerr != nil {
			log.WithError(cerr).Warn("Failed to close database session")
		}
	}()
	return fn(session)
}

// Describe returns the metadata of an active job.
func Describe(ctx context.Context, src db.Source, jobID int64, log *logger.Logger) (*db.Job, error) {
	var job *db.Job
	err := withSession(ctx, src, log, func(s db.Session) error {
		var err error
		job, err = s.FetchJob(ctx, jobID)
		return err
	})
	return job, err
}

// ListJobs returns every active job.
func ListJobs(ctx context.Context, src db.Source, log *logger.Logger) ([]db.Job, error) {
	var jobs []db.Job
	err := withSession(ctx, src, log, func(s db.Session) error {
		var err error
		jobs, err = s.ListJobs(ctx)
		return err
	})
	return jobs, err
}

// Stats counts tagged and untagged tasks of a job, optionally bounded by dateRange.
func Stats(ctx context.Context, src db.Source, jobID int64, dateRange *db.DateRange, log *logger.Logger) (db.Stats, error) {
	var stats db.Stats
	err := withSession(ctx, src, log, func(s db.Session) error {
		if _, err := s.FetchJob(ctx, jobID); err != nil {
			return err
		}
		total, err := s.CountTotal(ctx, jobID, db.Filter{Untagged: true, DateRange: dateRange})
		if err != nil {
			return err
		}
		tagged, err := s.CountTotal(ctx, jobID, db.Filter{DateRange: dateRange})
		if err != nil {
			return err
		}
		stats = db.Stats{Total: total, Tagged: tagged, Untagged: total - tagged}
		return nil
	})
	return stats, err
}

// IsNotFound reports whether err means the job does not exist or is inactive.
func IsNotFound(err error) bool {
	var nf *db.NotFoundError
	return errors.As(err, &nf)
}
