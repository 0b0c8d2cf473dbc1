// Package localstore keeps one extraction run in a single-table sqlite file.
package localstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jonathan/tog-labels/internal/tasks"

	_ "modernc.org/sqlite"
)

const createTable = `CREATE TABLE IF NOT EXISTS data (
	data_id NOT NULL,
	data TEXT NOT NULL,
	tag TEXT NOT NULL,
	is_gold BOOLEAN NOT NULL,
	tagged_time TEXT,
	job_id TEXT
)`

// Record is a row to be written. Data and Tag are JSON encoded on insert.
type Record struct {
	DataID     any
	Data       any
	Tag        any
	IsGold     bool
	TaggedTime *string
	JobID      *string
}

// Row is a stored row as read back from the file.
type Row struct {
	DataID     any
	Data       json.RawMessage
	Tag        json.RawMessage
	IsGold     bool
	TaggedTime *string
	JobID      *string
}

// Store is an append-only sqlite table owned by a single pipeline run.
type Store struct {
	path string
	db   *sql.DB
}

// Open creates the file and table if they do not exist yet.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store %s: %w", path, err)
	}
	// One writer per run; a single connection keeps transactions simple.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create data table in %s: %w", path, err)
	}
	return &Store{path: path, db: db}, nil
}

// CreateTemp opens a new store in a fresh temp file.
func CreateTemp(dir, pattern string) (*Store, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp store: %w", err)
	}
	path := f.Name()
	_ = f.Close()

	s, err := Open(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle and keeps the file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Remove closes the store and deletes the backing file.
func (s *Store) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove local store %s: %w", s.path, err)
	}
	return nil
}

// encodeJSON writes UTF-8 JSON without HTML escaping.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// InsertRows appends rows in a single transaction.
func (s *Store) InsertRows(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO data (data_id, data, tag, is_gold, tagged_time, job_id) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range records {
		data, err := encodeJSON(r.Data)
		if err != nil {
			return fmt.Errorf("failed to encode data for row %d: %w", i, err)
		}
		tag, err := encodeJSON(r.Tag)
		if err != nil {
			return fmt.Errorf("failed to encode tag for row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, tasks.NormalizeID(r.DataID), data, tag, r.IsGold, r.TaggedTime, r.JobID); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rows: %w", err)
	}
	return nil
}

const selectRows = `SELECT data_id, data, tag, is_gold, tagged_time, job_id FROM data`

// ReadAll returns every row in insertion order.
func (s *Store) ReadAll(ctx context.Context) ([]Row, error) {
	return s.query(ctx, selectRows+` ORDER BY rowid`)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var (
			r          Row
			data, tag  string
			taggedTime sql.NullString
			jobID      sql.NullString
		)
		if err := rows.Scan(&r.DataID, &data, &tag, &r.IsGold, &taggedTime, &jobID); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if b, ok := r.DataID.([]byte); ok {
			r.DataID = string(b)
		}
		r.Data = json.RawMessage(data)
		r.Tag = json.RawMessage(tag)
		if taggedTime.Valid {
			r.TaggedTime = &taggedTime.String
		}
		if jobID.Valid {
			r.JobID = &jobID.String
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

// Query selects stored rows for Tasks.
type Query struct {
	// Untagged includes rows without a tag.
	Untagged bool
	OnlyGold bool
}

// StoredTask is a stored row decoded back into a task.
type StoredTask struct {
	DataID     any
	Task       tasks.Task
	Tag        json.RawMessage
	TaggedTime *string
}

// Tasks decodes the rows selected by q as tasks of type t, in insertion order.
// Conversation reftimes are re-expressed in loc.
func (s *Store) Tasks(ctx context.Context, t tasks.Type, q Query, loc *time.Location) ([]StoredTask, error) {
	query := selectRows + ` WHERE 1 = 1`
	if !q.Untagged {
		query += ` AND tag != 'null'`
	}
	if q.OnlyGold {
		query += ` AND is_gold = 1`
	}
	rows, err := s.query(ctx, query+` ORDER BY rowid`)
	if err != nil {
		return nil, err
	}

	out := make([]StoredTask, 0, len(rows))
	for _, r := range rows {
		st, err := decodeRow(r, t, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// TaskByDataID decodes the first row stored under dataID.
func (s *Store) TaskByDataID(ctx context.Context, t tasks.Type, dataID string, loc *time.Location) (*StoredTask, error) {
	rows, err := s.query(ctx, selectRows+` WHERE CAST(data_id AS TEXT) = ? ORDER BY rowid LIMIT 1`, dataID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Path: s.path, DataID: dataID}
	}
	st, err := decodeRow(rows[0], t, loc)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func decodeRow(r Row, t tasks.Type, loc *time.Location) (StoredTask, error) {
	var record map[string]any
	if err := json.Unmarshal(r.Data, &record); err != nil {
		return StoredTask{}, fmt.Errorf("failed to decode stored data for %v: %w", r.DataID, err)
	}
	task, err := tasks.Decode(record, t, tasks.Options{
		DataID:   r.DataID,
		Location: loc,
		IsGold:   r.IsGold,
		Tags:     record["tags"],
	})
	if err != nil {
		return StoredTask{}, fmt.Errorf("failed to decode stored task %v: %w", r.DataID, err)
	}
	st := StoredTask{DataID: r.DataID, Task: task, TaggedTime: r.TaggedTime}
	if string(r.Tag) != "null" {
		st.Tag = r.Tag
	}
	return st, nil
}

// Count returns the number of stored rows. Untagged rows are counted only
// when untagged is true.
func (s *Store) Count(ctx context.Context, untagged bool) (int, error) {
	query := `SELECT count(*) FROM data`
	if !untagged {
		query += ` WHERE tag != 'null'`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}
