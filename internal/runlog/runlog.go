// Package runlog captures per-parse diagnostic entries (prompts, responses,
// validation outcomes) and renders them for troubleshooting. Builders are
// safe for concurrent use; entries are append-only.
package runlog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EntryType categorizes a run log entry.
type EntryType string

// Run log entry types.
const (
	EntryInput      EntryType = "INPUT"
	EntryHeuristic  EntryType = "HEURISTIC"
	EntryPrompt     EntryType = "PROMPT"
	EntryResponse   EntryType = "RESPONSE"
	EntryValidation EntryType = "VALIDATION"
	EntrySummary    EntryType = "SUMMARY"
	EntryError      EntryType = "ERROR"
)

// Entry is a single timestamped diagnostic record. Field is the JSON key of
// the transaction field the entry concerns, when applicable.
type Entry struct {
	Timestamp time.Time
	Type      EntryType
	Title     string
	Detail    string
	Field     string
}

// Log is an immutable snapshot of one parse run's diagnostics.
type Log struct {
	RunID     string
	CreatedAt time.Time
	Entries   []Entry
}

// Markdown renders the run log as a markdown document, optionally prefixed
// with a user-supplied note.
func (l Log) Markdown(note string) string {
	var b strings.Builder
	b.WriteString("# Parse Run Diagnostics\n\n")
	fmt.Fprintf(&b, "- Run ID: %s\n", l.RunID)
	fmt.Fprintf(&b, "- Generated: %s\n", l.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- Entry count: %d\n\n", len(l.Entries))
	if strings.TrimSpace(note) != "" {
		b.WriteString("## Note\n\n")
		b.WriteString(strings.TrimSpace(note))
		b.WriteString("\n\n")
	}
	b.WriteString("## Run Details\n\n")
	for _, e := range l.Entries {
		fmt.Fprintf(&b, "### %s\n", e.Title)
		fmt.Fprintf(&b, "* Type: %s\n", e.Type)
		fmt.Fprintf(&b, "* Logged: %s\n", e.Timestamp.Format("2006-01-02 15:04:05"))
		if e.Field != "" {
			fmt.Fprintf(&b, "* Field: %s\n", e.Field)
		}
		b.WriteString("\n")
		if e.Detail != "" {
			b.WriteString("```\n")
			b.WriteString(e.Detail)
			if !strings.HasSuffix(e.Detail, "\n") {
				b.WriteString("\n")
			}
			b.WriteString("```\n\n")
		}
	}
	return b.String()
}

// Builder accumulates run log entries during a parse.
type Builder struct {
	runID     string
	createdAt time.Time
	mu        sync.Mutex
	entries   []Entry
}

// NewBuilder creates a builder seeded with the captured input.
func NewBuilder(input string) *Builder {
	b := &Builder{
		runID:     uuid.NewString(),
		createdAt: time.Now(),
	}
	b.Add(EntryInput, "Captured input", input, "")
	return b
}

// RunID returns the unique identifier assigned to this run.
func (b *Builder) RunID() string { return b.runID }

// Add appends one entry. Field may be empty for run-level entries.
func (b *Builder) Add(entryType EntryType, title, detail, field string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, Entry{
		Timestamp: time.Now(),
		Type:      entryType,
		Title:     title,
		Detail:    detail,
		Field:     field,
	})
}

// Snapshot returns an immutable copy of the accumulated log.
func (b *Builder) Snapshot() Log {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := make([]Entry, len(b.entries))
	copy(entries, b.entries)
	return Log{RunID: b.runID, CreatedAt: b.createdAt, Entries: entries}
}
