package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tog-labels/internal/db"
	"github.com/jonathan/tog-labels/internal/extract"
	"github.com/jonathan/tog-labels/internal/localstore"
	"github.com/jonathan/tog-labels/internal/tasks"
	"github.com/jonathan/tog-labels/internal/upload"
)

func TestPrintJob(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	lang := "en-US"
	desc := "Intent tagging for the banking flow"
	p.PrintJob(&db.Job{
		ID:          42,
		Name:        "banking-intents",
		Language:    &lang,
		Description: &desc,
		Config:      json.RawMessage(`{"taxonomy": ["a", "b"]}`),
	})
	output := buf.String()

	assert.Contains(t, output, "TOG JOB")
	assert.Contains(t, output, "42")
	assert.Contains(t, output, "banking-intents")
	assert.Contains(t, output, "en-US")
	assert.Contains(t, output, "1 keys")
}

func TestPrintJob_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintJob(nil)
	assert.Empty(t, buf.String())
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintStats(7, db.Stats{Total: 4, Tagged: 1, Untagged: 3})
	output := buf.String()

	assert.Contains(t, output, "JOB STATS")
	assert.Contains(t, output, "Untagged: 3")
	assert.Contains(t, output, "25.0% tagged")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf).PrintJSON(db.Stats{Total: 2, Tagged: 1, Untagged: 1}))
	assert.JSONEq(t, `{"total": 2, "tagged": 1, "untagged": 1}`, buf.String())
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintProgress(extract.Progress{Batch: 1, Batches: 2, Done: 500, Total: 1000})
	assert.Equal(t, "\rbatch 1/2  500/1000 (50%)", buf.String())

	p.PrintProgress(extract.Progress{Batch: 2, Batches: 2, Done: 1000, Total: 1000})
	assert.True(t, strings.HasSuffix(buf.String(), "(100%)\n"))
}

func TestPrintUploadErrors(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintUploadErrors(&upload.Result{
		Total: 500,
		Errors: []upload.BatchError{
			{Batch: 2, Status: 500, Message: "internal error"},
			{Batch: 4, Status: 400, Message: strings.Repeat("x", 100)},
		},
	})
	output := buf.String()

	assert.Contains(t, output, "UPLOAD ERRORS")
	assert.Contains(t, output, "2 errors over 500 items")
	assert.Contains(t, output, "batch 2 (status 500)")
	assert.Contains(t, output, "batch 4 (status 400)")
	assert.Contains(t, output, "...")
}

func TestPrintUploadErrors_None(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintUploadErrors(&upload.Result{Total: 3})
	assert.Contains(t, buf.String(), "UPLOADED 3 ITEMS")
}

func TestPrintTasks(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	ts := "2022-01-01T00:00:00Z"
	err := p.PrintTasks([]localstore.StoredTask{
		{
			DataID:     int64(7),
			Task:       &tasks.Dict{Meta: tasks.Meta{IsGold: true}, DataID: int64(7), Body: map[string]any{"text": "<hi>"}},
			Tag:        json.RawMessage(`["yes"]`),
			TaggedTime: &ts,
		},
		{
			DataID: "gen-1",
			Task:   &tasks.DataGeneration{TaskID: "gen-1"},
		},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"data_id": 7, "task": {"text": "<hi>"}, "is_gold": true, "tag": ["yes"], "tagged_time": "2022-01-01T00:00:00Z"}`, lines[0])
	assert.JSONEq(t, `{"data_id": "gen-1", "task": {"id": "gen-1", "is_gold": false}, "is_gold": false, "tag": null, "tagged_time": null}`, lines[1])
}
