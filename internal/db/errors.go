package db

import "fmt"

// NotFoundError indicates the job id does not resolve to an active job.
type NotFoundError struct {
	JobID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job not found or inactive: %d", e.JobID)
}

// ItemNotFoundError indicates no task of the job carries the given data id.
type ItemNotFoundError struct {
	JobID  int64
	DataID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("no item found for data id %q in job %d", e.DataID, e.JobID)
}

// ConnectionError wraps connectivity, authentication and query failures.
// There is no retry at this layer.
type ConnectionError struct {
	Op    string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database %s failed: %v", e.Op, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}
