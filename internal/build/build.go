// Package build turns a CSV table into validated tog upload documents.
package build

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/tog-labels/internal/flatten"
	"github.com/jonathan/tog-labels/internal/logger"
	"github.com/jonathan/tog-labels/internal/schemas"
	schemadocs "github.com/jonathan/tog-labels/schemas"
)

// DefaultSource is stamped into data_source when the caller gives none.
const DefaultSource = "calls"

// Input columns with special meaning.
const (
	ColumnRaw              = "raw"
	ColumnUtterances       = "utterances"
	ColumnAlternatives     = "alternatives"
	ColumnCallUUID         = "call_uuid"
	ColumnConversationUUID = "conversation_uuid"
)

// UploadDocument is one element of the array posted to the dataset server.
type UploadDocument struct {
	Priority   int            `json:"priority"`
	DataSource string         `json:"data_source"`
	DataID     string         `json:"data_id"`
	Data       map[string]any `json:"data"`
	IsGold     bool           `json:"is_gold"`
}

// DedupID is the data id of an uploaded conversation. It is stable across
// uploads so the server can drop repeats.
func DedupID(conversationUUID, callUUID string) string {
	return conversationUUID + "_" + callUUID
}

type layout struct {
	index     map[string]int
	utterance string
	raw       bool
}

func newLayout(columns []string) (*layout, error) {
	l := &layout{index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if _, dup := l.index[c]; !dup {
			l.index[c] = i
		}
	}

	var missing []string
	switch {
	case l.has(ColumnUtterances):
		l.utterance = ColumnUtterances
	case l.has(ColumnAlternatives):
		l.utterance = ColumnAlternatives
	default:
		missing = append(missing, ColumnUtterances+"|"+ColumnAlternatives)
	}
	for _, c := range []string{ColumnCallUUID, ColumnConversationUUID} {
		if !l.has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &ColumnError{Missing: missing, Columns: columns}
	}
	l.raw = l.has(ColumnRaw)
	return l, nil
}

func (l *layout) has(column string) bool {
	_, ok := l.index[column]
	return ok
}

func (l *layout) cell(record []string, column string) string {
	i, ok := l.index[column]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

// Build converts table rows into upload documents. Rows failing the upload
// schema are skipped; if more than half of the rows fail the whole build
// fails with *TooManyErrorsError.
func Build(table *flatten.Table, source string, log *logger.Logger) ([]UploadDocument, error) {
	if source == "" {
		source = DefaultSource
	}
	l, err := newLayout(table.Columns)
	if err != nil {
		return nil, err
	}
	schema, err := schemas.Compile("upload_task", schemadocs.UploadTask)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{"rows": len(table.Rows), "source": source}).Debug("Building upload dataset")

	docs := make([]UploadDocument, 0, len(table.Rows))
	var failures []*RowError
	for i, record := range table.Rows {
		data, dataID, err := buildRow(l, table.Columns, record, log)
		if err == nil {
			err = schema.Validate(data)
		}
		if err != nil {
			rowErr := &RowError{Row: i + 1, Cause: err}
			failures = append(failures, rowErr)
			log.WithError(err).WithField("row", i+1).Warn("Skipping invalid row")
			continue
		}
		docs = append(docs, UploadDocument{
			Priority:   1,
			DataSource: source,
			DataID:     dataID,
			Data:       data,
			IsGold:     false,
		})
	}

	if len(failures)*2 > len(table.Rows) {
		return nil, &TooManyErrorsError{Total: len(table.Rows), Failures: failures}
	}
	if len(failures) > 0 {
		log.WithFields(logrus.Fields{"skipped": len(failures), "kept": len(docs)}).Warn("Some rows were skipped")
	}
	return docs, nil
}

var errMissingID = errors.New("call_uuid and conversation_uuid must be non-empty")

func buildRow(l *layout, columns, record []string, log *logger.Logger) (map[string]any, string, error) {
	var data map[string]any
	if l.raw {
		if err := json.Unmarshal([]byte(l.cell(record, ColumnRaw)), &data); err != nil {
			return nil, "", err
		}
		if data == nil {
			data = map[string]any{}
		}
	} else {
		data = rowDocument(columns, record)
	}

	callUUID := l.cell(record, ColumnCallUUID)
	conversationUUID := l.cell(record, ColumnConversationUUID)
	if callUUID == "" || conversationUUID == "" {
		return nil, "", errMissingID
	}

	data[ColumnCallUUID] = callUUID
	data[ColumnConversationUUID] = conversationUUID
	data[ColumnAlternatives] = normalizeUtterances(l.cell(record, l.utterance), log.WithField("conversation_uuid", conversationUUID))

	return data, DedupID(conversationUUID, callUUID), nil
}

// rowDocument maps every column to its cell. Empty cells are kept as nil so
// the schema sees a present-but-null value; cells holding a JSON object or
// array are decoded so nested values written by flatten round-trip.
func rowDocument(columns, record []string) map[string]any {
	doc := make(map[string]any, len(columns))
	for i, c := range columns {
		if i >= len(record) || record[i] == "" {
			doc[c] = nil
			continue
		}
		doc[c] = decodeCell(record[i])
	}
	return doc
}

func decodeCell(s string) any {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return s
}

// normalizeUtterances accepts JSON text first and Python literal text second.
// Anything else becomes an empty list.
func normalizeUtterances(value string, log *logrus.Entry) any {
	if value == "" {
		return []any{}
	}
	var v any
	if err := json.Unmarshal([]byte(value), &v); err == nil {
		return v
	}
	v, err := parsePyLiteral(value)
	if err != nil {
		log.WithField("utterances", value).WithField("error", err.Error()).Warn("Invalid utterances, setting to []")
		return []any{}
	}
	return v
}
