package tasks

import (
	"fmt"
	"strings"
)

// DecodeError is returned when a source record cannot be turned into a Task.
type DecodeError struct {
	Type    Type
	Message string
	Keys    []string
	Cause   error
}

func (e *DecodeError) Error() string {
	var sb strings.Builder
	sb.WriteString("decode ")
	if e.Type != "" {
		sb.WriteString(string(e.Type))
		sb.WriteString(" ")
	}
	sb.WriteString("task: ")
	sb.WriteString(e.Message)
	if len(e.Keys) > 0 {
		sb.WriteString(fmt.Sprintf(" (keys: %s)", strings.Join(e.Keys, ", ")))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	return sb.String()
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// ParseError is returned when a timestamp matches none of the supported layouts.
type ParseError struct {
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unable to parse timestamp %q", e.Value)
}
