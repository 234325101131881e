package genai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseCacheRoundTrip(t *testing.T) {
	cache := newResponseCache(time.Minute)
	defer cache.Close()

	key := promptKey("refine the merchant")
	_, ok := cache.get(key)
	require.False(t, ok)

	cache.set(key, `{"merchant":"Starbucks"}`)

	got, ok := cache.get(key)
	require.True(t, ok)
	assert.Equal(t, `{"merchant":"Starbucks"}`, got)
	assert.Equal(t, 1, cache.size())
}

func TestResponseCacheExpiry(t *testing.T) {
	cache := newResponseCache(10 * time.Millisecond)
	defer cache.Close()

	key := promptKey("short lived")
	cache.set(key, "value")

	time.Sleep(25 * time.Millisecond)

	_, ok := cache.get(key)
	assert.False(t, ok)
}

func TestResponseCacheClear(t *testing.T) {
	cache := newResponseCache(time.Minute)
	defer cache.Close()

	cache.set(promptKey("a"), "1")
	cache.set(promptKey("b"), "2")
	require.Equal(t, 2, cache.size())

	cache.clear()
	assert.Equal(t, 0, cache.size())
}

func TestPromptKeyStable(t *testing.T) {
	assert.Equal(t, promptKey("same input"), promptKey("same input"))
	assert.NotEqual(t, promptKey("same input"), promptKey("different input"))
}
