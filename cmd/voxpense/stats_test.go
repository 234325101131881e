package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voxpense/voxpense/internal/runlog"
)

func TestAggregateRuns(t *testing.T) {
	logs := []runlog.Log{
		{
			RunID: "run-1",
			Entries: []runlog.Entry{
				{Type: runlog.EntryInput, Title: "Captured input"},
				{Type: runlog.EntryPrompt, Title: "Focused prompt for merchant", Field: "merchant"},
				{Type: runlog.EntryValidation, Title: "Validation succeeded for merchant", Field: "merchant"},
				{Type: runlog.EntryPrompt, Title: "Focused prompt for tags", Field: "tags"},
				{Type: runlog.EntryValidation, Title: "Validation failed for tags", Field: "tags"},
			},
		},
		{
			RunID: "run-2",
			Entries: []runlog.Entry{
				{Type: runlog.EntryInput, Title: "Captured input"},
				{Type: runlog.EntryError, Title: "GenAI unavailable"},
			},
		},
		{
			RunID: "run-3",
			Entries: []runlog.Entry{
				{Type: runlog.EntryInput, Title: "Captured input"},
				{Type: runlog.EntryPrompt, Title: "Focused prompt for merchant", Field: "merchant"},
				{Type: runlog.EntryError, Title: "AI failure for merchant", Field: "merchant"},
			},
		},
	}

	stats := aggregateRuns(logs)

	assert.Equal(t, 3, stats.runs)
	assert.Equal(t, 3, stats.prompts)
	assert.Equal(t, 1, stats.validationPasses)
	assert.Equal(t, 1, stats.validationFails)
	assert.Equal(t, 2, stats.errors)
	assert.Equal(t, 1, stats.unavailableRuns)
	assert.Equal(t, 2, stats.fieldPrompts["merchant"])
	assert.Equal(t, 1, stats.fieldPrompts["tags"])
}

func TestAggregateRunsEmpty(t *testing.T) {
	stats := aggregateRuns(nil)
	assert.Zero(t, stats.runs)
	assert.Empty(t, stats.fieldPrompts)
}
