package upload

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tog-labels/internal/build"
	"github.com/jonathan/tog-labels/internal/logger"
)

// recordingTimer fires immediately and remembers every requested wait.
type recordingTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	c     chan time.Time
}

func (t *recordingTimer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waits = append(t.waits, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *recordingTimer) Stop() {}

func (t *recordingTimer) C() <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c
}

func (t *recordingTimer) Waits() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.waits...)
}

func docs(n int) []build.UploadDocument {
	out := make([]build.UploadDocument, n)
	for i := range out {
		out[i] = build.UploadDocument{
			Priority:   1,
			DataSource: "calls",
			DataID:     fmt.Sprintf("d%d", i+1),
			Data:       map[string]any{"state": "COF"},
		}
	}
	return out
}

func TestUpload_PostsBatches(t *testing.T) {
	var (
		mu       sync.Mutex
		received []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tog/tasks/", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("job_id"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body []build.UploadDocument
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		for _, d := range body {
			received = append(received, d.DataID)
		}
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	u := New(server.Client(), server.URL+"/", "secret", logger.Discard())
	u.BatchSize = 3
	u.ChunkSize = 2

	result, err := u.Upload(t.Context(), docs(10), 42)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 10, result.Total)
	assert.Equal(t, 4, result.Batches)

	want := make([]string, 10)
	for i := range want {
		want[i] = fmt.Sprintf("d%d", i+1)
	}
	assert.ElementsMatch(t, want, received)
}

func TestUpload_SoftErrorsAreCollected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []build.UploadDocument
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch id := body[0].DataID; id {
		case "d2", "d4":
			// finish out of order
			if id == "d2" {
				time.Sleep(20 * time.Millisecond)
			}
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("failed " + id))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	u := New(server.Client(), server.URL, "token", logger.Discard())
	u.BatchSize = 1
	u.ChunkSize = 5

	result, err := u.Upload(t.Context(), docs(5), 7)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, []BatchError{
		{Batch: 2, Status: 500, Message: "failed d2"},
		{Batch: 4, Status: 500, Message: "failed d4"},
	}, result.Errors)
}

func TestUpload_RetryExhaustion(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := server.Client()
	client.Timeout = 50 * time.Millisecond

	timer := &recordingTimer{}
	u := New(client, server.URL, "token", logger.Discard())
	u.Retries = 3
	u.Delay = 5 * time.Second
	u.newTimer = func() backoff.Timer { return timer }

	_, err := u.Upload(t.Context(), docs(1), 1)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Equal(t, 1, exhausted.Batch)
	assert.Equal(t, 0, exhausted.LastStatus)
	assert.EqualValues(t, 4, attempts.Load())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, timer.Waits())
}

func TestUpload_RecoversAfterTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	u := New(server.Client(), server.URL, "token", logger.Discard())
	u.newTimer = func() backoff.Timer { return &recordingTimer{} }

	result, err := u.Upload(t.Context(), docs(2), 1)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.EqualValues(t, 2, attempts.Load())
}

func TestUpload_Empty(t *testing.T) {
	u := New(nil, "http://unused.invalid", "token", logger.Discard())
	result, err := u.Upload(t.Context(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 0, result.Batches)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(fmt.Errorf("read: %w", io.EOF)))
	assert.False(t, isTransient(assert.AnError))
}
