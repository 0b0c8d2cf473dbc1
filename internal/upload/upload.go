// Package upload posts upload documents to the tog dataset server in
// concurrent batches.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/tog-labels/internal/batch"
	"github.com/jonathan/tog-labels/internal/build"
	"github.com/jonathan/tog-labels/internal/logger"
)

// Defaults for Uploader.
const (
	DefaultBatchSize = 100
	DefaultChunkSize = 10
	DefaultRetries   = 3
	DefaultDelay     = 5 * time.Second
)

const maxResponseBytes = 1 << 20

// Uploader posts documents to {baseURL}/tog/tasks/.
type Uploader struct {
	client  *http.Client
	baseURL string
	token   string
	log     *logger.Logger

	// BatchSize is the number of documents per request.
	BatchSize int
	// ChunkSize is the number of batches in flight at once. Chunks run one
	// after another.
	ChunkSize int
	// Retries is the number of extra attempts after a transient failure.
	Retries int
	// Delay is the fixed wait between attempts.
	Delay time.Duration

	newTimer func() backoff.Timer
}

// New returns an Uploader with default sizes. A nil client uses http.DefaultClient.
func New(client *http.Client, baseURL, token string, log *logger.Logger) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		log:       log,
		BatchSize: DefaultBatchSize,
		ChunkSize: DefaultChunkSize,
		Retries:   DefaultRetries,
		Delay:     DefaultDelay,
	}
}

// Result aggregates an upload run.
type Result struct {
	// Errors holds soft batch failures ordered by batch number.
	Errors []BatchError
	// Total is the number of input documents.
	Total   int
	Batches int
}

func (u *Uploader) endpoint(jobID int64) string {
	return fmt.Sprintf("%s/tog/tasks/?job_id=%d", u.baseURL, jobID)
}

// Upload sends docs in batches. Batches inside a chunk are sent concurrently
// and every chunk completes before the next starts. Non-2xx answers are
// collected in Result; an exhausted retry budget or a non-retryable request
// failure aborts the run.
func (u *Uploader) Upload(ctx context.Context, docs []build.UploadDocument, jobID int64) (*Result, error) {
	batchSize := u.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	chunkSize := u.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	batches := batch.Split(docs, batchSize)
	chunks := batch.Split(batches, chunkSize)
	result := &Result{Total: len(docs), Batches: len(batches)}
	log := u.log.With(logrus.Fields{"job_id": jobID, "batches": len(batches), "chunks": len(chunks)})
	log.Info("Uploading dataset")

	var mu sync.Mutex
	for c, chunk := range chunks {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(chunkSize)
		for j, docs := range chunk {
			number := c*chunkSize + j + 1
			g.Go(func() error {
				soft, err := u.send(gctx, jobID, number, docs)
				if err != nil {
					return err
				}
				if soft != nil {
					mu.Lock()
					result.Errors = append(result.Errors, *soft)
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		log.WithField("chunk", c+1).Debug("Chunk uploaded")
	}

	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].Batch < result.Errors[j].Batch
	})
	return result, nil
}

// send posts one batch, retrying transient network failures.
func (u *Uploader) send(ctx context.Context, jobID int64, number int, docs []build.UploadDocument) (*BatchError, error) {
	body, err := json.Marshal(docs)
	if err != nil {
		return nil, &RequestError{Batch: number, Cause: err}
	}
	log := u.log.With(logrus.Fields{"job_id": jobID, "batch": number, "size": len(docs)})

	var (
		attempts   int
		lastStatus int
		soft       *BatchError
	)
	op := func() error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint(jobID), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+u.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := u.client.Do(req)
		if err != nil {
			return classify(ctx, err)
		}
		defer func() { _ = resp.Body.Close() }()
		lastStatus = resp.StatusCode

		msg, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return classify(ctx, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			soft = &BatchError{Batch: number, Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(u.Delay), uint64(max(u.Retries, 0))),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("attempt", attempts).Warnf("Retrying batch in %s", wait)
	}
	var timer backoff.Timer
	if u.newTimer != nil {
		timer = u.newTimer()
	}

	if err := backoff.RetryNotifyWithTimer(op, policy, notify, timer); err != nil {
		if isTransient(err) && ctx.Err() == nil {
			return nil, &RetryExhaustedError{Batch: number, Attempts: attempts, LastStatus: lastStatus, Cause: err}
		}
		return nil, &RequestError{Batch: number, Cause: err}
	}
	if soft != nil {
		log.WithField("status", soft.Status).Error(soft.Message)
	} else {
		log.Debug("Batch uploaded")
	}
	return soft, nil
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || !isTransient(err) {
		return backoff.Permanent(err)
	}
	return err
}

// isTransient reports timeouts, resets and dropped connections.
func isTransient(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
