package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionPayload(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
	return string(body)
}

func newTestGateway(t *testing.T, serverURL string) *HTTPGateway {
	t.Helper()
	gw, err := NewHTTPGateway(Config{
		Endpoint: serverURL,
		Model:    "test-model",
		APIKey:   "test-key",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(gw.Close)
	return gw
}

func TestHTTPGatewayStructured(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(completionPayload(`{"merchant":"Starbucks"}`)))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	text, err := gw.Structured(context.Background(), "refine the merchant")
	require.NoError(t, err)

	assert.Equal(t, `{"merchant":"Starbucks"}`, text)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotBody["model"])

	messages, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
}

func TestHTTPGatewayCachesIdenticalPrompts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(completionPayload(`{"tags":[]}`)))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	for i := 0; i < 3; i++ {
		text, err := gw.Structured(context.Background(), "same prompt")
		require.NoError(t, err)
		assert.Equal(t, `{"tags":[]}`, text)
	}

	assert.Equal(t, int32(1), calls.Load())

	gw.ClearCache()
	_, err := gw.Structured(context.Background(), "same prompt")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPGatewayRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(completionPayload(`{"merchant":"Target"}`)))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	text, err := gw.Structured(context.Background(), "transient failure")
	require.NoError(t, err)
	assert.Equal(t, `{"merchant":"Target"}`, text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPGatewayDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	_, err := gw.Structured(context.Background(), "rejected prompt")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPGatewayBlankChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	text, err := gw.Structured(context.Background(), "empty reply")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestHTTPGatewayAvailability(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			if healthy.Load() {
				_, _ = w.Write([]byte(`{"data":[]}`))
			} else {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)
	assert.True(t, gw.Available())

	// A fresh probe should see the server go down once the cached result ages out.
	healthy.Store(false)
	assert.True(t, gw.Available())

	gw.probeWait = 0
	time.Sleep(time.Millisecond)
	assert.False(t, gw.Available())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "http complete", cfg: Config{Provider: "http", Endpoint: "http://localhost:11434/v1", Model: "m"}},
		{name: "http missing endpoint", cfg: Config{Provider: "http", Model: "m"}, wantErr: true},
		{name: "http missing model", cfg: Config{Provider: "http", Endpoint: "http://localhost"}, wantErr: true},
		{name: "replay complete", cfg: Config{Provider: "replay", ReplayPath: "run.json"}},
		{name: "replay missing path", cfg: Config{Provider: "replay"}, wantErr: true},
		{name: "off needs nothing", cfg: Config{Provider: "off"}},
		{name: "unknown provider", cfg: Config{Provider: "carrier-pigeon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
