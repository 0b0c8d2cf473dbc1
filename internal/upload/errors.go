package upload

import "fmt"

// BatchError is a soft failure: the server answered a batch with a non-2xx
// status. It is reported in Result and never stops other batches.
type BatchError struct {
	Batch   int
	Status  int
	Message string
}

func (e BatchError) Error() string {
	return fmt.Sprintf("batch %d: status %d: %s", e.Batch, e.Status, e.Message)
}

// RetryExhaustedError is returned when a batch kept failing with transient
// network errors for every allowed attempt.
type RetryExhaustedError struct {
	Batch      int
	Attempts   int
	LastStatus int
	Cause      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("batch %d: giving up after %d attempts (last status %d): %v",
		e.Batch, e.Attempts, e.LastStatus, e.Cause)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Cause
}

// RequestError wraps a non-retryable failure sending a batch.
type RequestError struct {
	Batch int
	Cause error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("batch %d: request failed: %v", e.Batch, e.Cause)
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}
