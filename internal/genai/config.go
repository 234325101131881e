// Package genai provides gateway implementations for the generative model
// used by staged refinement: an HTTP client for OpenAI-compatible inference
// servers, a replay gateway for offline evaluation, and a disabled gateway
// that forces the heuristic-only path.
package genai

import (
	"time"

	"github.com/voxpense/voxpense/internal/common"
)

// Config holds gateway configuration.
type Config struct {
	// Provider selects the gateway implementation: "http", "replay", or "off".
	Provider string

	// Endpoint is the base URL of an OpenAI-compatible inference server,
	// e.g. "http://localhost:11434/v1".
	Endpoint string

	// APIKey is sent as a bearer token when non-empty. Local servers
	// typically do not require one.
	APIKey string

	// Model names the model to request.
	Model string

	// Temperature for sampling. Structured extraction wants it low.
	Temperature float64

	// MaxTokens caps the response length.
	MaxTokens int

	// RequestTimeout bounds a single HTTP request.
	RequestTimeout time.Duration

	// RateLimit is the maximum requests per minute. Zero uses the default.
	RateLimit int

	// CacheTTL controls how long identical prompts reuse a cached response.
	// Zero uses the default; negative disables caching.
	CacheTTL time.Duration

	// ReplayPath is the recording file used by the replay provider.
	ReplayPath string
}

// Validate checks that the configuration is usable for its provider.
func (c Config) Validate() error {
	switch c.Provider {
	case "", "http":
		if c.Endpoint == "" {
			return common.NewUserError("gateway endpoint is required", common.ErrMissingConfig)
		}
		if c.Model == "" {
			return common.NewUserError("gateway model is required", common.ErrMissingConfig)
		}
	case "replay":
		if c.ReplayPath == "" {
			return common.NewUserError("replay recording path is required", common.ErrMissingConfig)
		}
	case "off":
	default:
		return common.NewUserError("unknown gateway provider: "+c.Provider, common.ErrInvalidConfig)
	}
	return nil
}
