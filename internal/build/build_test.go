package build

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tog-labels/internal/flatten"
	"github.com/jonathan/tog-labels/internal/logger"
)

var uploadColumns = []string{"conversation_uuid", "call_uuid", "state", "reftime", "audio_url", "alternatives"}

func validRow(i int) []string {
	return []string{
		fmt.Sprintf("conv-%d", i),
		fmt.Sprintf("call-%d", i),
		"COF",
		"2022-01-01T10:00:00+05:30",
		"https://audio.example.com/a.wav",
		`[[{"transcript": "hello", "confidence": 0.9}]]`,
	}
}

// invalidRow leaves state empty, which reaches the schema as null.
func invalidRow(i int) []string {
	row := validRow(i)
	row[2] = ""
	return row
}

func tableWith(valid, invalid int) *flatten.Table {
	table := &flatten.Table{Columns: uploadColumns}
	for i := 0; i < valid; i++ {
		table.Rows = append(table.Rows, validRow(i))
	}
	for i := 0; i < invalid; i++ {
		table.Rows = append(table.Rows, invalidRow(valid+i))
	}
	return table
}

func TestBuild_Document(t *testing.T) {
	docs, err := Build(tableWith(1, 0), "", logger.Discard())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, 1, doc.Priority)
	assert.Equal(t, DefaultSource, doc.DataSource)
	assert.Equal(t, "conv-0_call-0", doc.DataID)
	assert.False(t, doc.IsGold)
	assert.Equal(t, "COF", doc.Data["state"])
	assert.Equal(t, "call-0", doc.Data["call_uuid"])
	assert.Equal(t, []any{[]any{map[string]any{"transcript": "hello", "confidence": 0.9}}}, doc.Data["alternatives"])
}

func TestBuild_DedupIDIsDeterministic(t *testing.T) {
	first, err := Build(tableWith(3, 0), "calls", logger.Discard())
	require.NoError(t, err)
	second, err := Build(tableWith(3, 0), "calls", logger.Discard())
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].DataID, second[i].DataID)
	}
}

func TestBuild_AbortThreshold(t *testing.T) {
	for _, n := range []int{1, 2, 4, 5, 10, 11} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			half := n / 2

			docs, err := Build(tableWith(n-half, half), "calls", logger.Discard())
			require.NoError(t, err)
			assert.Len(t, docs, n-half)

			_, err = Build(tableWith(n-half-1, half+1), "calls", logger.Discard())
			var tooMany *TooManyErrorsError
			require.ErrorAs(t, err, &tooMany)
			assert.Len(t, tooMany.Failures, half+1)
			assert.Equal(t, n, tooMany.Total)
		})
	}
}

func TestBuild_MissingUtteranceColumns(t *testing.T) {
	table := &flatten.Table{
		Columns: []string{"conversation_uuid", "call_uuid", "state", "reftime", "audio_url"},
		Rows:    [][]string{{"c", "d", "s", "r", "a"}},
	}
	_, err := Build(table, "calls", logger.Discard())

	var colErr *ColumnError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, []string{"utterances|alternatives"}, colErr.Missing)
}

func TestBuild_UtterancesPreferred(t *testing.T) {
	table := &flatten.Table{
		Columns: append(append([]string{}, uploadColumns...), "utterances"),
		Rows:    [][]string{append(validRow(0), `[["from utterances"]]`)},
	}
	docs, err := Build(table, "calls", logger.Discard())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []any{[]any{"from utterances"}}, docs[0].Data["alternatives"])
}

func TestBuild_RawColumnTakesPrecedence(t *testing.T) {
	table := &flatten.Table{
		Columns: []string{"conversation_uuid", "call_uuid", "state", "alternatives", "raw"},
		Rows: [][]string{{
			"conv", "call", "ignored", "[]",
			`{"state": "RAW", "reftime": "2022-01-01", "audio_url": {"bucket": "b", "key": "k"}}`,
		}},
	}
	docs, err := Build(table, "calls", logger.Discard())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	data := docs[0].Data
	assert.Equal(t, "RAW", data["state"])
	assert.Equal(t, map[string]any{"bucket": "b", "key": "k"}, data["audio_url"])
	assert.NotContains(t, data, "raw")
	assert.Equal(t, "conv", data["conversation_uuid"])
}

func TestBuild_AudioURLObjectFromCell(t *testing.T) {
	table := tableWith(1, 0)
	table.Rows[0][4] = `{"bucket": "b", "key": "k"}`
	docs, err := Build(table, "calls", logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"bucket": "b", "key": "k"}, docs[0].Data["audio_url"])

	table.Rows[0][4] = `{"bucket": "b"}`
	table.Rows = append(table.Rows, validRow(1))
	docs, err = Build(table, "calls", logger.Discard())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestBuild_EmptyIDsSkipRow(t *testing.T) {
	table := tableWith(2, 0)
	table.Rows[1][1] = ""
	docs, err := Build(table, "calls", logger.Discard())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestNormalizeUtterances(t *testing.T) {
	log := logger.Discard().Entry
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{"json", `[["hi", "hey"]]`, []any{[]any{"hi", "hey"}}},
		{"python literal", `[[{'transcript': 'hi', 'confidence': 0.5, 'final': True}]]`,
			[]any{[]any{map[string]any{"transcript": "hi", "confidence": 0.5, "final": true}}}},
		{"garbage", `not a list`, []any{}},
		{"too deep", strings.Repeat("[", 300) + "'a'" + strings.Repeat("]", 300), []any{}},
		{"empty", "", []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeUtterances(tt.input, log))
		})
	}
}

func TestReadCSV(t *testing.T) {
	dir := t.TempDir()

	t.Run("wrong extension", func(t *testing.T) {
		for _, name := range []string{"data.tsv", "data.CSV", "data"} {
			_, err := ReadCSV(filepath.Join(dir, name))
			var extErr *ExtensionError
			assert.ErrorAs(t, err, &extErr, name)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadCSV(filepath.Join(dir, "absent.csv"))
		var readErr *ReadError
		assert.ErrorAs(t, err, &readErr)
	})

	t.Run("reads header and rows", func(t *testing.T) {
		path := filepath.Join(dir, "in.csv")
		content := "conversation_uuid,call_uuid,alternatives\nc1,k1,\"[[\"\"hi\"\"]]\"\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		table, err := ReadCSV(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"conversation_uuid", "call_uuid", "alternatives"}, table.Columns)
		assert.Equal(t, [][]string{{"c1", "k1", `[["hi"]]`}}, table.Rows)
	})
}
