// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/tog-labels/internal/db"
	"github.com/jonathan/tog-labels/internal/extract"
	"github.com/jonathan/tog-labels/internal/localstore"
	"github.com/jonathan/tog-labels/internal/upload"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// PrintJob outputs the metadata of a tog job.
func (p *Printer) PrintJob(job *db.Job) {
	if job == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:       %d\n", job.ID))
	sb.WriteString(fmt.Sprintf("Name:     %s\n", job.Name))
	if job.Language != nil {
		sb.WriteString(fmt.Sprintf("Language: %s\n", *job.Language))
	}
	if job.Description != nil && *job.Description != "" {
		sb.WriteString(fmt.Sprintf("About:    %s\n", truncate(*job.Description, 45)))
	}
	if len(job.Config) > 0 && string(job.Config) != "null" {
		var cfg map[string]any
		if err := json.Unmarshal(job.Config, &cfg); err == nil && len(cfg) > 0 {
			sb.WriteString(fmt.Sprintf("Config:   %d keys\n", len(cfg)))
		}
	}

	p.printBox("TOG JOB", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStats outputs tagged and untagged counts.
func (p *Printer) PrintStats(jobID int64, stats db.Stats) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:      %d\n", jobID))
	sb.WriteString(fmt.Sprintf("Total:    %d\n", stats.Total))
	sb.WriteString(fmt.Sprintf("Tagged:   %d\n", stats.Tagged))
	sb.WriteString(fmt.Sprintf("Untagged: %d", stats.Untagged))
	if stats.Total > 0 {
		sb.WriteString(fmt.Sprintf("\n\n%.1f%% tagged", 100*float64(stats.Tagged)/float64(stats.Total)))
	}
	p.printBox("JOB STATS", sb.String())
}

// PrintJSON writes v as indented JSON.
func (p *Printer) PrintJSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// taskLine is the JSON shape of one decoded task.
type taskLine struct {
	DataID     any             `json:"data_id"`
	Task       any             `json:"task"`
	IsGold     bool            `json:"is_gold"`
	Tag        json.RawMessage `json:"tag"`
	TaggedTime *string         `json:"tagged_time"`
}

// PrintTasks writes one JSON object per task.
func (p *Printer) PrintTasks(items []localstore.StoredTask) error {
	enc := json.NewEncoder(p.out)
	enc.SetEscapeHTML(false)
	for _, it := range items {
		tag := it.Tag
		if len(tag) == 0 {
			tag = json.RawMessage("null")
		}
		line := taskLine{
			DataID:     it.DataID,
			Task:       it.Task.Document(),
			IsGold:     it.Task.Gold(),
			Tag:        tag,
			TaggedTime: it.TaggedTime,
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

// PrintProgress writes a single-line extraction progress update.
//
//nolint:errcheck // writing to stderr; errors are not recoverable
func (p *Printer) PrintProgress(pr extract.Progress) {
	pct := 100.0
	if pr.Total > 0 {
		pct = 100 * float64(pr.Done) / float64(pr.Total)
	}
	fmt.Fprintf(p.out, "\rbatch %d/%d  %d/%d (%.0f%%)", pr.Batch, pr.Batches, pr.Done, pr.Total, pct)
	if pr.Batch == pr.Batches {
		fmt.Fprintln(p.out)
	}
}

// PrintUploadErrors outputs soft batch failures, or a success line.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintUploadErrors(result *upload.Result) {
	if result == nil {
		return
	}
	if len(result.Errors) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, fmt.Sprintf("✅ UPLOADED %d ITEMS", result.Total))
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Encountered %d errors over %d items:\n\n", len(result.Errors), result.Total))

	count := min(len(result.Errors), maxItemsToShow)
	for i := 0; i < count; i++ {
		e := result.Errors[i]
		sb.WriteString(fmt.Sprintf("⚠ batch %d (status %d)\n", e.Batch, e.Status))
		sb.WriteString(fmt.Sprintf("  %s\n", truncate(e.Message, 45)))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(result.Errors) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more errors", len(result.Errors)-maxItemsToShow))
	}

	p.printBox("UPLOAD ERRORS", strings.TrimSuffix(sb.String(), "\n"))
}
