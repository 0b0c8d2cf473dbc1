package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tog-labels/internal/db"
	"github.com/jonathan/tog-labels/internal/localstore"
	"github.com/jonathan/tog-labels/internal/logger"
	"github.com/jonathan/tog-labels/internal/tasks"
)

type fakeRow struct {
	raw     db.RawRow
	created time.Time
	tagged  bool
}

// fakeSource serves rows from memory and records how it was used.
type fakeSource struct {
	job      *db.Job
	rows     []fakeRow
	opens    int
	open     int
	batches  [][]int64
	openErr  error
	maxAlive int
}

func (f *fakeSource) Open(context.Context) (db.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	f.open++
	f.maxAlive = max(f.maxAlive, f.open)
	return &fakeSession{src: f}, nil
}

type fakeSession struct {
	src    *fakeSource
	closed bool
}

func (s *fakeSession) FetchJob(_ context.Context, jobID int64) (*db.Job, error) {
	if s.src.job == nil || s.src.job.ID != jobID {
		return nil, &db.NotFoundError{JobID: jobID}
	}
	return s.src.job, nil
}

func (s *fakeSession) ListJobs(context.Context) ([]db.Job, error) {
	return []db.Job{*s.src.job}, nil
}

func (s *fakeSession) match(filter db.Filter) []fakeRow {
	var out []fakeRow
	for _, r := range s.src.rows {
		if !filter.Untagged && !r.tagged {
			continue
		}
		if filter.OnlyGold && !r.raw.IsGold {
			continue
		}
		if filter.DateRange != nil && !inRange(*filter.DateRange, r.created) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// inRange mirrors the start-inclusive, end-exclusive SQL condition.
func inRange(r db.DateRange, t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	return r.End.IsZero() || t.Before(r.End)
}

func (s *fakeSession) FetchByDataID(_ context.Context, jobID int64, dataID string) (*db.RawRow, error) {
	for _, r := range s.src.rows {
		if fmt.Sprint(r.raw.Data["conversation_uuid"]) == dataID {
			row := r.raw
			return &row, nil
		}
	}
	return nil, &db.ItemNotFoundError{JobID: jobID, DataID: dataID}
}

func (s *fakeSession) CountTotal(_ context.Context, _ int64, filter db.Filter) (int, error) {
	return len(s.match(filter)), nil
}

func (s *fakeSession) ListEligibleIDs(_ context.Context, _ int64, filter db.Filter) ([]int64, error) {
	var ids []int64
	for _, r := range s.match(filter) {
		ids = append(ids, r.raw.DataID)
	}
	return ids, nil
}

func (s *fakeSession) FetchBatch(_ context.Context, _ int64, ids []int64) ([]db.RawRow, error) {
	s.src.batches = append(s.src.batches, append([]int64(nil), ids...))
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []db.RawRow
	// Reverse order: callers must not rely on positional correspondence.
	for i := len(s.src.rows) - 1; i >= 0; i-- {
		if want[s.src.rows[i].raw.DataID] {
			out = append(out, s.src.rows[i].raw)
		}
	}
	return out, nil
}

func (s *fakeSession) Close(context.Context) error {
	if !s.closed {
		s.closed = true
		s.src.open--
	}
	return nil
}

func conversationRows(n int, start time.Time) []fakeRow {
	rows := make([]fakeRow, n)
	for i := range rows {
		rows[i] = fakeRow{
			raw: db.RawRow{
				DataID: int64(i + 1),
				Data: map[string]any{
					"call_uuid":         fmt.Sprintf("call-%d", i),
					"conversation_uuid": fmt.Sprintf("conv-%d", i),
					"alternatives":      "[]",
					"audio_url":         "https://example.com/a.wav",
					"state":             "START",
					"reftime":           "2022-01-01T00:00:00Z",
				},
				Tag:    json.RawMessage(`[{"from_name": "tag"}]`),
				IsGold: i%2 == 0,
			},
			created: start.Add(time.Duration(i) * time.Hour),
			tagged:  i%3 != 0,
		}
	}
	return rows
}

func openStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(filepath.Join(t.TempDir(), "job.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRun_BatchCompleteness(t *testing.T) {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, tc := range []struct{ length, size int }{{0, 3}, {1, 3}, {7, 3}, {9, 3}, {10, 500}} {
		t.Run(fmt.Sprintf("L=%d,B=%d", tc.length, tc.size), func(t *testing.T) {
			src := &fakeSource{job: &db.Job{ID: 5, Name: "calls"}, rows: conversationRows(tc.length, start)}
			store := openStore(t)

			res, err := Run(context.Background(), src, store, Options{
				JobID: 5, TaskType: tasks.TypeConversation, Full: true, BatchSize: tc.size,
			}, logger.Discard())
			require.NoError(t, err)

			wantBatches := (tc.length + tc.size - 1) / tc.size
			assert.Len(t, src.batches, wantBatches)
			assert.Equal(t, wantBatches, res.Batches)
			assert.Equal(t, tc.length, res.Processed)

			seen := map[int64]int{}
			for _, b := range src.batches {
				assert.LessOrEqual(t, len(b), tc.size)
				for _, id := range b {
					seen[id]++
				}
			}
			assert.Len(t, seen, tc.length)
			for id, n := range seen {
				assert.Equal(t, 1, n, "id %d fetched more than once", id)
			}

			rows, err := store.ReadAll(context.Background())
			require.NoError(t, err)
			assert.Len(t, rows, tc.length)
		})
	}
}

func TestRun_ClosesListingSessionBeforeFetching(t *testing.T) {
	src := &fakeSource{job: &db.Job{ID: 5}, rows: conversationRows(4, time.Now())}

	_, err := Run(context.Background(), src, openStore(t), Options{JobID: 5, TaskType: tasks.TypeConversation, Full: true}, logger.Discard())
	require.NoError(t, err)

	assert.Equal(t, 2, src.opens)
	assert.Equal(t, 1, src.maxAlive)
	assert.Equal(t, 0, src.open)
}

func TestRun_StoresDecodedRows(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	tagged := time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := conversationRows(2, time.Now())
	rows[0].raw.TaggedTime = &tagged
	src := &fakeSource{job: &db.Job{ID: 5}, rows: rows}
	store := openStore(t)

	_, err = Run(context.Background(), src, store, Options{JobID: 5, TaskType: tasks.TypeConversation, Location: kolkata, Full: true}, logger.Discard())
	require.NoError(t, err)

	stored, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 2)

	sort.Slice(stored, func(i, j int) bool { return stored[i].DataID.(string) < stored[j].DataID.(string) })
	first := stored[0]
	assert.Equal(t, "conv-0", first.DataID)
	assert.True(t, first.IsGold)
	require.NotNil(t, first.JobID)
	assert.Equal(t, "5", *first.JobID)
	require.NotNil(t, first.TaggedTime)
	assert.Equal(t, "2022-03-01T12:00:00Z", *first.TaggedTime)
	assert.JSONEq(t, `[{"from_name": "tag"}]`, string(first.Tag))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(first.Data, &doc))
	assert.Equal(t, "2022-01-01T05:30:00+05:30", doc["reftime"])
	assert.Equal(t, "call-0", doc["call_uuid"])
}

func TestRun_FiltersAndProgress(t *testing.T) {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{job: &db.Job{ID: 5}, rows: conversationRows(6, start)}

	var progress []Progress
	res, err := Run(context.Background(), src, openStore(t), Options{
		JobID:     5,
		TaskType:  tasks.TypeConversation,
		BatchSize: 2,
		DateRange: &db.DateRange{Start: start.Add(time.Hour), End: start.Add(5 * time.Hour)},
		Progress:  func(p Progress) { progress = append(progress, p) },
	}, logger.Discard())
	require.NoError(t, err)

	// Hours 1..4 are in range; of those, index 3 is untagged.
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Processed)
	require.Len(t, progress, 2)
	assert.Equal(t, Progress{Batch: 2, Batches: 2, Done: 3, Total: 3}, progress[1])
}

func TestRun_DecodeFailureAborts(t *testing.T) {
	rows := conversationRows(3, time.Now())
	delete(rows[1].raw.Data, "call_uuid")
	src := &fakeSource{job: &db.Job{ID: 5}, rows: rows}

	_, err := Run(context.Background(), src, openStore(t), Options{JobID: 5, TaskType: tasks.TypeConversation, Full: true}, logger.Discard())
	require.Error(t, err)

	var decodeErr *tasks.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 0, src.open)
}

func TestRun_UnknownJob(t *testing.T) {
	src := &fakeSource{job: &db.Job{ID: 5}}

	_, err := Run(context.Background(), src, openStore(t), Options{JobID: 6, TaskType: tasks.TypeDict}, logger.Discard())
	var notFound *db.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRun_ConnectionFailure(t *testing.T) {
	src := &fakeSource{openErr: &db.ConnectionError{Op: "connect", Cause: errors.New("refused")}}

	_, err := Run(context.Background(), src, openStore(t), Options{JobID: 6, TaskType: tasks.TypeDict}, logger.Discard())
	var connErr *db.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}
