package db

import (
	"encoding/json"
	"time"
)

// Job is a tagging job as stored in jobs_job.
type Job struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	Language    *string         `json:"language,omitempty"`
}

// DateRange bounds jobs_data.created_at to [Start, End). A zero bound is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Filter selects which tasks of a job are counted or listed.
type Filter struct {
	// Untagged includes tasks without a tag.
	Untagged bool
	OnlyGold bool
	// DateRange is optional.
	DateRange *DateRange
}

// RawRow is one task as fetched, before decoding.
type RawRow struct {
	DataID     int64
	Data       map[string]any
	Tag        json.RawMessage
	IsGold     bool
	TaggedTime *time.Time
}

// Stats summarises tagged and untagged counts for a job.
type Stats struct {
	Total    int `json:"total"`
	Tagged   int `json:"tagged"`
	Untagged int `json:"untagged"`
}
