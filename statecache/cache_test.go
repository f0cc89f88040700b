package statecache

import (
	"context"
	"testing"
	"time"

	"github.com/AltairaLabs/miniagent/events"
	"github.com/AltairaLabs/miniagent/reduce"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T, opts ...Option) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, opts...), mr
}

func TestGetMissesWhenUnset(t *testing.T) {
	cache, _ := setupCache(t)
	_, ok := cache.Get(context.Background(), "alpha")
	assert.False(t, ok)
}

func TestSetThenGetRoundTrips(t *testing.T) {
	cache, _ := setupCache(t)
	ctx := context.Background()

	state := reduce.State{
		Messages:          []reduce.Message{{Role: reduce.RoleUser, Content: "hi"}},
		NextEventNumber:   3,
		CurrentTurnNumber: 1,
		LlmConfig: &events.SetLlmConfig{
			APIFormat: "anthropic",
			Model:     "claude",
			BaseURL:   "https://example.invalid",
			APIKeyEnv: "MY_PROVIDER_KEY",
		},
	}
	require.NoError(t, cache.Set(ctx, "alpha", state))

	got, ok := cache.Get(ctx, "alpha")
	require.True(t, ok)
	assert.Equal(t, state.Messages, got.Messages)
	assert.Equal(t, state.NextEventNumber, got.NextEventNumber)
	require.NotNil(t, got.LlmConfig)
	assert.Equal(t, *state.LlmConfig, *got.LlmConfig)
}

func TestInvalidateRemovesEntry(t *testing.T) {
	cache, _ := setupCache(t)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "alpha", reduce.State{NextEventNumber: 1}))

	require.NoError(t, cache.Invalidate(ctx, "alpha"))
	_, ok := cache.Get(ctx, "alpha")
	assert.False(t, ok)
}

func TestTTLExpiresEntry(t *testing.T) {
	cache, mr := setupCache(t, WithTTL(time.Second))
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "alpha", reduce.State{NextEventNumber: 1}))

	mr.FastForward(2 * time.Second)

	_, ok := cache.Get(ctx, "alpha")
	assert.False(t, ok)
}

func TestOutageIsTreatedAsMiss(t *testing.T) {
	cache, mr := setupCache(t)
	mr.Close()

	_, ok := cache.Get(context.Background(), "alpha")
	assert.False(t, ok)
}
