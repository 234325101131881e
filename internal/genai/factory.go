package genai

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxpense/voxpense/internal/hybrid"
)

// NewGateway creates a gateway based on the provided configuration.
func NewGateway(cfg Config, logger *slog.Logger) (hybrid.Gateway, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "http":
		return NewHTTPGateway(cfg, logger)
	case "replay":
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return LoadReplay(cfg.ReplayPath)
	case "off":
		return DisabledGateway{}, nil
	default:
		return nil, fmt.Errorf("unsupported gateway provider: %s", cfg.Provider)
	}
}
