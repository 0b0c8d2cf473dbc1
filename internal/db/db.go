// Package db provides read access to the tog annotation database.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Source opens sessions against the annotation database.
type Source interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one connection's worth of queries. Callers close a session
// between the listing and fetching phases of an extraction.
type Session interface {
	FetchJob(ctx context.Context, jobID int64) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	CountTotal(ctx context.Context, jobID int64, filter Filter) (int, error)
	ListEligibleIDs(ctx context.Context, jobID int64, filter Filter) ([]int64, error)
	FetchBatch(ctx context.Context, jobID int64, ids []int64) ([]RawRow, error)
	FetchByDataID(ctx context.Context, jobID int64, dataID string) (*RawRow, error)
	Close(ctx context.Context) error
}

// Client connects to PostgreSQL with a fixed connection URL.
type Client struct {
	databaseURL string
}

// NewClient returns a Client for the given connection URL.
func NewClient(databaseURL string) *Client {
	return &Client{databaseURL: databaseURL}
}

// Open establishes a fresh connection and verifies it.
func (c *Client) Open(ctx context.Context) (Session, error) {
	conn, err := pgx.Connect(ctx, c.databaseURL)
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Cause: err}
	}

	// Verify connection
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, &ConnectionError{Op: "ping", Cause: err}
	}

	return &Conn{conn: conn}, nil
}

// Conn wraps a single PostgreSQL connection.
type Conn struct {
	conn *pgx.Conn
}

// Close closes the connection
func (c *Conn) Close(ctx context.Context) error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(ctx)
	c.conn = nil
	return err
}

// FetchJob loads metadata for an active job.
func (c *Conn) FetchJob(ctx context.Context, jobID int64) (*Job, error) {
	var job Job
	var config []byte
	err := c.conn.QueryRow(ctx,
		`SELECT id, name, description, config, language
		 FROM jobs_job WHERE id = $1 AND is_active`,
		jobID,
	).Scan(&job.ID, &job.Name, &job.Description, &config, &job.Language)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{JobID: jobID}
		}
		return nil, &ConnectionError{Op: "fetch job", Cause: err}
	}
	if len(config) > 0 {
		job.Config = json.RawMessage(config)
	}
	return &job, nil
}

// ListJobs returns all active jobs.
func (c *Conn) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := c.conn.Query(ctx,
		`SELECT id, name, description, config, language FROM jobs_job WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, &ConnectionError{Op: "list jobs", Cause: err}
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		var config []byte
		if err := rows.Scan(&job.ID, &job.Name, &job.Description, &config, &job.Language); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		if len(config) > 0 {
			job.Config = json.RawMessage(config)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, &ConnectionError{Op: "list jobs", Cause: err}
	}
	return jobs, nil
}

// CountTotal counts the tasks of a job matching filter.
func (c *Conn) CountTotal(ctx context.Context, jobID int64, filter Filter) (int, error) {
	query, args := buildTaskQuery(`SELECT count(*)`, jobID, filter)

	var n int
	if err := c.conn.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, &ConnectionError{Op: "count tasks", Cause: err}
	}
	return n, nil
}

// ListEligibleIDs materializes the ids of every task matching filter.
func (c *Conn) ListEligibleIDs(ctx context.Context, jobID int64, filter Filter) ([]int64, error) {
	query, args := buildTaskQuery(`SELECT jobs_data.id`, jobID, filter)
	query += ` ORDER BY jobs_data.id`

	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, &ConnectionError{Op: "list ids", Cause: err}
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, &ConnectionError{Op: "list ids", Cause: err}
	}
	return ids, nil
}

// FetchBatch returns the rows whose data id is in ids. Order is not preserved.
func (c *Conn) FetchBatch(ctx context.Context, jobID int64, ids []int64) ([]RawRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := c.conn.Query(ctx,
		rawRowColumns+taskJoin+` WHERE jobs_task.job_id = $1 AND jobs_data.id = ANY($2)`,
		jobID, ids,
	)
	if err != nil {
		return nil, &ConnectionError{Op: "fetch batch", Cause: err}
	}
	defer rows.Close()

	var out []RawRow
	for rows.Next() {
		row, err := scanRawRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &ConnectionError{Op: "fetch batch", Cause: err}
	}
	return out, nil
}

// FetchByDataID returns the task whose external jobs_data.data_id matches.
func (c *Conn) FetchByDataID(ctx context.Context, jobID int64, dataID string) (*RawRow, error) {
	rows, err := c.conn.Query(ctx,
		rawRowColumns+taskJoin+` WHERE jobs_task.job_id = $1 AND jobs_data.data_id = $2 LIMIT 1`,
		jobID, dataID,
	)
	if err != nil {
		return nil, &ConnectionError{Op: "fetch item", Cause: err}
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, &ConnectionError{Op: "fetch item", Cause: err}
		}
		return nil, &ItemNotFoundError{JobID: jobID, DataID: dataID}
	}
	row, err := scanRawRow(rows)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

const rawRowColumns = `SELECT jobs_data.id, jobs_data.data, jobs_task.tag, jobs_task.is_gold, jobs_task.tagged_time`

func scanRawRow(rows pgx.Rows) (RawRow, error) {
	var (
		row        RawRow
		data, tag  []byte
		isGold     *bool
		taggedTime *time.Time
	)
	if err := rows.Scan(&row.DataID, &data, &tag, &isGold, &taggedTime); err != nil {
		return RawRow{}, fmt.Errorf("failed to scan task row: %w", err)
	}
	if err := json.Unmarshal(data, &row.Data); err != nil {
		return RawRow{}, fmt.Errorf("failed to decode data for id %d: %w", row.DataID, err)
	}
	if len(tag) > 0 {
		row.Tag = json.RawMessage(tag)
	}
	row.IsGold = isGold != nil && *isGold
	row.TaggedTime = taggedTime
	return row, nil
}
