// Package hybrid coordinates the staged parsing pipeline: deterministic
// heuristics first, then focused generative refinement of low-confidence
// fields, then a merge that always degrades to a usable heuristic result.
package hybrid

import "context"

// Gateway abstracts the generative model client so orchestration can be
// tested without a live endpoint. Implementations that will never become
// ready may additionally implement NeverAvailable() bool so the orchestrator
// skips its availability grace period.
type Gateway interface {
	// Available reports whether the model is loaded and ready to serve.
	Available() bool

	// Structured sends a prompt expecting a compact JSON response and
	// returns the raw model text.
	Structured(ctx context.Context, prompt string) (string, error)
}
