package hybrid

import (
	"context"
	"strings"
	"sync"
)

// MockGateway is a test implementation of the Gateway interface. Responses
// are matched by prompt substring so tests can script per-field behavior.
type MockGateway struct {
	err       error
	responses []mockResponse
	prompts   []string
	available bool
	mu        sync.Mutex
}

type mockResponse struct {
	match   string
	payload string
}

// NewMockGateway creates a gateway that reports available and returns blank
// responses until scripted otherwise.
func NewMockGateway() *MockGateway {
	return &MockGateway{available: true}
}

// SetAvailable controls what Available reports.
func (m *MockGateway) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// SetError makes every Structured call fail with err.
func (m *MockGateway) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Respond registers a payload returned for any prompt containing match.
// Registrations are checked in order; an empty match string matches all
// prompts and can serve as a default.
func (m *MockGateway) Respond(match, payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{match: match, payload: payload})
}

// Available implements Gateway.
func (m *MockGateway) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// Structured implements Gateway. It records the prompt and returns the first
// matching scripted payload, or an empty string when nothing matches.
func (m *MockGateway) Structured(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	for _, r := range m.responses {
		if r.match == "" || strings.Contains(prompt, r.match) {
			return r.payload, nil
		}
	}
	return "", nil
}

// Prompts returns a copy of every prompt seen so far.
func (m *MockGateway) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	prompts := make([]string, len(m.prompts))
	copy(prompts, m.prompts)
	return prompts
}

// CallCount returns the number of Structured calls.
func (m *MockGateway) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Reset clears recorded prompts and scripted responses.
func (m *MockGateway) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = nil
	m.responses = nil
	m.err = nil
	m.available = true
}
