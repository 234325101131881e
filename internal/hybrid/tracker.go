package hybrid

import (
	"sync"

	"github.com/voxpense/voxpense/internal/model"
)

// RefinementState describes where a field is in the refinement lifecycle.
type RefinementState int

// Refinement lifecycle states.
const (
	StateIdle RefinementState = iota
	StateRefining
	StateCompleted
	StateUserModified
)

// FieldRefinementStatus is one field's current refinement state plus the
// completed value, when present.
type FieldRefinementStatus struct {
	State RefinementState
	Value any
}

// FieldRefinementTracker records per-field refinement progress and protects
// user edits: once a field is marked user modified, refinement results no
// longer overwrite it. Safe for concurrent use.
type FieldRefinementTracker struct {
	mu     sync.Mutex
	states map[model.FieldKey]FieldRefinementStatus
}

func NewFieldRefinementTracker() *FieldRefinementTracker {
	return &FieldRefinementTracker{states: make(map[model.FieldKey]FieldRefinementStatus)}
}

// MarkRefining flags the fields as in flight, skipping any the user edited.
func (t *FieldRefinementTracker) MarkRefining(fields []model.FieldKey) {
	if len(fields) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, field := range fields {
		if t.states[field].State == StateUserModified {
			continue
		}
		t.states[field] = FieldRefinementStatus{State: StateRefining}
	}
}

// MarkCompleted stores the refined value unless the user edited the field.
func (t *FieldRefinementTracker) MarkCompleted(field model.FieldKey, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[field].State == StateUserModified {
		return
	}
	t.states[field] = FieldRefinementStatus{State: StateCompleted, Value: value}
}

// MarkUserModified pins the field so later refinements cannot overwrite it.
func (t *FieldRefinementTracker) MarkUserModified(field model.FieldKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[field] = FieldRefinementStatus{State: StateUserModified}
}

// IsUserModified reports whether the user has edited the field.
func (t *FieldRefinementTracker) IsUserModified(field model.FieldKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[field].State == StateUserModified
}

// Status returns the field's current refinement status.
func (t *FieldRefinementTracker) Status(field model.FieldKey) FieldRefinementStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[field]
}

// Reset clears all tracked state.
func (t *FieldRefinementTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = make(map[model.FieldKey]FieldRefinementStatus)
}
