// Package tasks defines the closed set of task shapes stored in tog jobs and
// the rules for decoding them from loosely typed source records.
package tasks

import "fmt"

// Type selects the decoding rule for a job's records.
type Type string

const (
	TypeConversation      Type = "conversation"
	TypeSimulatedCall     Type = "simulated_call"
	TypeAudioSegment      Type = "audio_segment"
	TypeDict              Type = "dict"
	TypeCallTranscription Type = "call_transcription"
	TypeDataGeneration    Type = "data_generation"
)

// Types lists every supported task type, in CLI display order.
var Types = []Type{
	TypeConversation,
	TypeSimulatedCall,
	TypeAudioSegment,
	TypeDict,
	TypeCallTranscription,
	TypeDataGeneration,
}

// ParseType validates a task type name.
func ParseType(name string) (Type, error) {
	for _, t := range Types {
		if string(t) == name {
			return t, nil
		}
	}
	return "", &DecodeError{Message: fmt.Sprintf("invalid task type %q provided", name)}
}

// TypeNames returns the task type names as strings.
func TypeNames() []string {
	names := make([]string, len(Types))
	for i, t := range Types {
		names[i] = string(t)
	}
	return names
}

// Task is one normalized unit of labelled data. The set of implementations is
// closed to this package.
type Task interface {
	// ID is the identity used for equality and as the stored data_id.
	ID() any
	Kind() Type
	Gold() bool
	// Document is the JSON body persisted for the task.
	Document() any
	isTask()
}

// Meta carries the fields shared by all task shapes.
type Meta struct {
	Tags   any  `json:"tags,omitempty"`
	IsGold bool `json:"is_gold"`
}

// Gold reports whether the task is curated reference data.
func (m Meta) Gold() bool { return m.IsGold }

// Equal compares tasks by kind and identifier only.
func Equal(a, b Task) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Kind() == b.Kind() && normalizeID(a.ID()) == normalizeID(b.ID())
}
