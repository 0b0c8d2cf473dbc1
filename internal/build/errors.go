package build

import (
	"fmt"
	"strings"
)

// ExtensionError is returned when the input is not a .csv file.
type ExtensionError struct {
	Path      string
	Extension string
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("expected a .csv input, got %q (%s)", e.Extension, e.Path)
}

// ColumnError is returned when the input table lacks required columns.
type ColumnError struct {
	Missing []string
	Columns []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("expected columns %s in the input, found %s",
		strings.Join(e.Missing, ", "), strings.Join(e.Columns, ", "))
}

// RowError describes one row skipped during build.
type RowError struct {
	Row   int
	Cause error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Cause)
}

func (e *RowError) Unwrap() error {
	return e.Cause
}

// TooManyErrorsError aborts a build when more than half the rows are invalid.
type TooManyErrorsError struct {
	Total    int
	Failures []*RowError
}

func (e *TooManyErrorsError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("too many errors: %d of %d rows invalid", len(e.Failures), e.Total))
	for _, f := range e.Failures {
		sb.WriteString("\n  ")
		sb.WriteString(strings.TrimSpace(f.Error()))
	}
	return sb.String()
}

// ReadError wraps failures reading the input file.
type ReadError struct {
	Path  string
	Cause error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Cause)
}

func (e *ReadError) Unwrap() error {
	return e.Cause
}
