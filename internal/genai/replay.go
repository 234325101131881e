package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/voxpense/voxpense/internal/common"
	"github.com/voxpense/voxpense/internal/hybrid"
)

// replayEntry is one recorded exchange. The prompt is kept alongside its
// digest so recordings stay reviewable by hand.
type replayEntry struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// ReplayGateway answers prompts from a recording file. Evaluation runs use
// it to rerun the staged pipeline deterministically without a live server.
type ReplayGateway struct {
	responses map[string]string
	mu        sync.RWMutex
}

// LoadReplay reads a recording file produced by a RecordingGateway.
func LoadReplay(path string) (*ReplayGateway, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}

	var entries []replayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse recording: %w", err)
	}

	g := &ReplayGateway{responses: make(map[string]string, len(entries))}
	for _, e := range entries {
		g.responses[promptKey(e.Prompt)] = e.Response
	}
	return g, nil
}

// Available implements hybrid.Gateway. A loaded recording is always ready.
func (g *ReplayGateway) Available() bool { return true }

// Structured implements hybrid.Gateway by looking up the recorded response
// for this exact prompt.
func (g *ReplayGateway) Structured(_ context.Context, prompt string) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	response, ok := g.responses[promptKey(prompt)]
	if !ok {
		return "", fmt.Errorf("no recorded response for prompt digest %s", promptKey(prompt)[:8])
	}
	return response, nil
}

// Size returns the number of recorded exchanges.
func (g *ReplayGateway) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.responses)
}

// RecordingGateway forwards to an inner gateway and captures every exchange
// so a later run can replay it.
type RecordingGateway struct {
	inner   hybrid.Gateway
	path    string
	entries []replayEntry
	mu      sync.Mutex
}

// NewRecordingGateway wraps inner and writes the recording to path on Flush.
func NewRecordingGateway(inner hybrid.Gateway, path string) *RecordingGateway {
	return &RecordingGateway{inner: inner, path: path}
}

// Available implements hybrid.Gateway.
func (g *RecordingGateway) Available() bool { return g.inner.Available() }

// Structured implements hybrid.Gateway. Successful exchanges are captured.
func (g *RecordingGateway) Structured(ctx context.Context, prompt string) (string, error) {
	response, err := g.inner.Structured(ctx, prompt)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.entries = append(g.entries, replayEntry{Prompt: prompt, Response: response})
	g.mu.Unlock()
	return response, nil
}

// Flush writes the captured exchanges to the recording file.
func (g *RecordingGateway) Flush() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	data, err := json.MarshalIndent(g.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}
	if err := os.WriteFile(g.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}
	return nil
}

// DisabledGateway reports unavailable so parsing stays heuristic-only.
type DisabledGateway struct{}

// Available implements hybrid.Gateway.
func (DisabledGateway) Available() bool { return false }

// NeverAvailable tells the orchestrator not to wait for this gateway.
func (DisabledGateway) NeverAvailable() bool { return true }

// Structured implements hybrid.Gateway.
func (DisabledGateway) Structured(context.Context, string) (string, error) {
	return "", common.ErrGatewayUnavailable
}
