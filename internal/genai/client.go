package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/voxpense/voxpense/internal/common"
)

const (
	defaultRequestTimeout = 30 * time.Second
	probeTimeout          = 2 * time.Second
	probeInterval         = 2 * time.Second
)

// HTTPGateway talks to an OpenAI-compatible chat completions endpoint. It
// rate limits outbound calls and caches responses by prompt digest.
type HTTPGateway struct {
	httpClient  *http.Client
	limiter     *rateLimiter
	cache       *responseCache
	logger      *slog.Logger
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int

	probeMu   sync.Mutex
	probeAt   time.Time
	probeOK   bool
	probeWait time.Duration
}

// NewHTTPGateway creates a gateway backed by an inference server.
func NewHTTPGateway(cfg Config, logger *slog.Logger) (*HTTPGateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 300
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	var cache *responseCache
	if cfg.CacheTTL >= 0 {
		cache = newResponseCache(cfg.CacheTTL)
	}

	return &HTTPGateway{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: temperature,
		maxTokens:   maxTokens,
		limiter:     newRateLimiter(cfg.RateLimit),
		cache:       cache,
		logger:      logger,
		probeWait:   probeInterval,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Available reports whether the inference server answers its model listing
// endpoint. Probe results are held briefly so the staged pipeline's
// availability polling does not hammer the server.
func (g *HTTPGateway) Available() bool {
	g.probeMu.Lock()
	defer g.probeMu.Unlock()

	if time.Since(g.probeAt) < g.probeWait {
		return g.probeOK
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"/models", nil)
	if err != nil {
		g.probeOK = false
		g.probeAt = time.Now()
		return false
	}
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Debug("availability probe failed", "error", err)
		g.probeOK = false
		g.probeAt = time.Now()
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	g.probeOK = resp.StatusCode < http.StatusBadRequest
	g.probeAt = time.Now()
	return g.probeOK
}

// Structured sends a prompt and returns the raw model text.
func (g *HTTPGateway) Structured(ctx context.Context, prompt string) (string, error) {
	key := promptKey(prompt)
	if g.cache != nil {
		if cached, ok := g.cache.get(key); ok {
			g.logger.Debug("gateway cache hit", "key", key[:8])
			return cached, nil
		}
	}

	if err := g.limiter.wait(ctx); err != nil {
		return "", err
	}

	var text string
	err := common.WithRetry(ctx, func() error {
		var opErr error
		text, opErr = g.complete(ctx, prompt)
		return opErr
	}, common.RetryOptions{MaxAttempts: 3, MaxDelay: 5 * time.Second})
	if err != nil {
		return "", err
	}

	if g.cache != nil && text != "" {
		g.cache.set(key, text)
	}
	return text, nil
}

func (g *HTTPGateway) complete(ctx context.Context, prompt string) (string, error) {
	requestBody := map[string]any{
		"model":       g.model,
		"temperature": g.temperature,
		"max_tokens":  g.maxTokens,
		"messages": []map[string]string{
			{
				"role":    "user",
				"content": prompt,
			},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/chat/completions", strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: %s", common.ErrRateLimit, strings.TrimSpace(string(body)))
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", &common.RetryableError{
			Err:       fmt.Errorf("inference server error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: true,
		}
	case resp.StatusCode != http.StatusOK:
		return "", &common.RetryableError{
			Err:       fmt.Errorf("inference server rejected request (status %d): %s", resp.StatusCode, string(body)),
			Retryable: false,
		}
	}

	var response completionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func (g *HTTPGateway) authorize(req *http.Request) {
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
}

// ClearCache drops all cached responses.
func (g *HTTPGateway) ClearCache() {
	if g.cache != nil {
		g.cache.clear()
	}
}

// Close releases background goroutines.
func (g *HTTPGateway) Close() {
	g.limiter.Close()
	if g.cache != nil {
		g.cache.Close()
	}
}

// completionResponse is the subset of the chat completions reply we read.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}
