package genai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterTryAcquire(t *testing.T) {
	rl := newRateLimiter(2)
	defer rl.Close()

	assert.True(t, rl.tryAcquire())
	assert.True(t, rl.tryAcquire())
	assert.False(t, rl.tryAcquire())
}

func TestRateLimiterReset(t *testing.T) {
	rl := newRateLimiter(1)
	defer rl.Close()

	require.True(t, rl.tryAcquire())
	require.False(t, rl.tryAcquire())

	rl.reset()
	assert.True(t, rl.tryAcquire())
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	rl := newRateLimiter(1)
	defer rl.Close()

	require.True(t, rl.tryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rl.wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiterWaitSucceedsWithTokens(t *testing.T) {
	rl := newRateLimiter(5)
	defer rl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, rl.wait(ctx))
}

func TestRateLimiterDefaultsCapacity(t *testing.T) {
	rl := newRateLimiter(0)
	defer rl.Close()

	assert.Equal(t, 60, rl.capacity)
}
