package genai

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxpense/voxpense/internal/common"
	"github.com/voxpense/voxpense/internal/hybrid"
)

func TestRecordingRoundTrip(t *testing.T) {
	mock := hybrid.NewMockGateway()
	mock.Respond("merchant", `{"merchant":"Starbucks"}`)
	mock.Respond("tags", `{"tags":["Splitwise"]}`)

	path := filepath.Join(t.TempDir(), "run.json")
	recorder := NewRecordingGateway(mock, path)
	require.True(t, recorder.Available())

	ctx := context.Background()
	first, err := recorder.Structured(ctx, "refine the merchant field")
	require.NoError(t, err)
	second, err := recorder.Structured(ctx, "refine the tags field")
	require.NoError(t, err)
	require.NoError(t, recorder.Flush())

	replay, err := LoadReplay(path)
	require.NoError(t, err)
	assert.Equal(t, 2, replay.Size())
	assert.True(t, replay.Available())

	got, err := replay.Structured(ctx, "refine the merchant field")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = replay.Structured(ctx, "refine the tags field")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestReplayUnknownPrompt(t *testing.T) {
	mock := hybrid.NewMockGateway()
	mock.Respond("", `{}`)

	path := filepath.Join(t.TempDir(), "run.json")
	recorder := NewRecordingGateway(mock, path)
	_, err := recorder.Structured(context.Background(), "recorded prompt")
	require.NoError(t, err)
	require.NoError(t, recorder.Flush())

	replay, err := LoadReplay(path)
	require.NoError(t, err)

	_, err = replay.Structured(context.Background(), "never recorded")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recorded response")
}

func TestLoadReplayMissingFile(t *testing.T) {
	_, err := LoadReplay(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestDisabledGateway(t *testing.T) {
	gw := DisabledGateway{}
	assert.False(t, gw.Available())
	assert.True(t, gw.NeverAvailable())

	_, err := gw.Structured(context.Background(), "anything")
	assert.ErrorIs(t, err, common.ErrGatewayUnavailable)
}

func TestNewGatewayProviders(t *testing.T) {
	gw, err := NewGateway(Config{Provider: "off"}, nil)
	require.NoError(t, err)
	assert.IsType(t, DisabledGateway{}, gw)

	_, err = NewGateway(Config{Provider: "smoke-signal"}, nil)
	require.Error(t, err)

	_, err = NewGateway(Config{Provider: "replay"}, nil)
	require.Error(t, err)
}
