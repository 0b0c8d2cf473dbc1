// Package flatten turns stored task rows into a flat table and writes it out.
package flatten

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jonathan/tog-labels/internal/annotations"
	"github.com/jonathan/tog-labels/internal/localstore"
)

// Column names outside the flattened data document.
const (
	ColumnDataID     = "data_id"
	ColumnTag        = "tag"
	ColumnIsGold     = "is_gold"
	ColumnTaggedTime = "tagged_time"
	ColumnJobID      = "job_id"
	ColumnIntent     = "intent"
	ColumnIncorrect  = "incorrect_transcript"
	ColumnGoldReady  = "gold_ready_for_training"
)

// Table is a header plus string records, in read order.
type Table struct {
	Columns []string
	Rows    [][]string
}

type options struct {
	annotations bool
}

// Option customises Flatten.
type Option func(*options)

// WithAnnotations adds intent and gold-data columns derived from the tag.
func WithAnnotations() Option {
	return func(o *options) { o.annotations = true }
}

// decodeDocument reads a stored data document. Anything that is not a JSON
// object becomes an empty document.
func decodeDocument(raw json.RawMessage) map[string]any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return map[string]any{}
	}
	return doc
}

func decodeTag(raw json.RawMessage) any {
	var tag any
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil
	}
	return tag
}

// trailingColumns follow the data keys in every table.
var trailingColumns = []string{ColumnTag, ColumnIsGold, ColumnTaggedTime, ColumnJobID}

// annotationColumns follow the trailing columns when WithAnnotations is set.
var annotationColumns = []string{ColumnIntent, ColumnIncorrect, ColumnGoldReady}

// reservedColumns returns the column names the stored row supplies itself.
func reservedColumns(o options) map[string]bool {
	reserved := map[string]bool{ColumnDataID: true}
	for _, c := range trailingColumns {
		reserved[c] = true
	}
	if o.annotations {
		for _, c := range annotationColumns {
			reserved[c] = true
		}
	}
	return reserved
}

// Flatten expands each row's data document one level into top-level columns.
// Data keys are unioned in first-seen order. A data key that shares its name
// with a stored column (data_id, tag, is_gold, ...) is dropped in favour of
// the stored value, so every header name is unique.
func Flatten(rows []localstore.Row, opts ...Option) *Table {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	docs := make([]map[string]any, len(rows))
	var keys []string
	seen := reservedColumns(o)
	for i, r := range rows {
		docs[i] = decodeDocument(r.Data)
		for _, k := range orderedKeys(r.Data, docs[i]) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	columns := make([]string, 0, len(keys)+8)
	columns = append(columns, ColumnDataID)
	columns = append(columns, keys...)
	columns = append(columns, trailingColumns...)
	if o.annotations {
		columns = append(columns, annotationColumns...)
	}

	table := &Table{Columns: columns, Rows: make([][]string, 0, len(rows))}
	for i, r := range rows {
		record := make([]string, 0, len(columns))
		record = append(record, cell(r.DataID))
		for _, k := range keys {
			record = append(record, cell(docs[i][k]))
		}
		record = append(record,
			compact(r.Tag),
			strconv.FormatBool(r.IsGold),
			deref(r.TaggedTime),
			deref(r.JobID),
		)
		if o.annotations {
			tag := decodeTag(r.Tag)
			intent, _ := annotations.ExtractIntent(tag)
			record = append(record,
				intent,
				strconv.FormatBool(annotations.IncorrectTranscript(tag)),
				strconv.FormatBool(annotations.GoldReadyForTraining(tag)),
			)
		}
		table.Rows = append(table.Rows, record)
	}
	return table
}

// orderedKeys returns the document keys in the order they appear in raw.
// Go maps are unordered, so the raw object is re-read token by token.
func orderedKeys(raw json.RawMessage, doc map[string]any) []string {
	if len(doc) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}

	keys := make([]string, 0, len(doc))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		key, ok := tok.(string)
		if !ok {
			break
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			break
		}
	}
	return keys
}

// cell renders a single value. Nested structures are written as JSON text.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(x); err != nil {
			return fmt.Sprint(x)
		}
		return string(bytes.TrimRight(buf.Bytes(), "\n"))
	}
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	if buf.String() == "null" {
		return ""
	}
	return buf.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
