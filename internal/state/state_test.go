package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T, ttl time.Duration) (StateManager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStateManager(client, "test:", ttl), mr
}

func TestExtractionCache(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestState(t, time.Hour)

	const page = "https://groceries.example.com/dept/1234567890123"

	extracted, err := s.WasExtracted(ctx, page)
	require.NoError(t, err)
	assert.False(t, extracted)

	require.NoError(t, s.MarkExtracted(ctx, page, 12))

	extracted, err = s.WasExtracted(ctx, page)
	require.NoError(t, err)
	assert.True(t, extracted)

	mr.FastForward(2 * time.Hour)

	extracted, err = s.WasExtracted(ctx, page)
	require.NoError(t, err)
	assert.False(t, extracted)
}

func TestExtractionCacheWithoutTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestState(t, 0)

	require.NoError(t, s.MarkExtracted(ctx, "https://groceries.example.com/a", 1))
	mr.FastForward(24 * time.Hour)

	extracted, err := s.WasExtracted(ctx, "https://groceries.example.com/a")
	require.NoError(t, err)
	assert.True(t, extracted)
}

func TestSessionStats(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t, 0)

	type stats struct {
		Processed int `json:"processed"`
		Failed    int `json:"failed"`
	}

	var got stats
	id, err := s.LastSessionStats(ctx, &got)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, s.SaveSessionStats(ctx, "first", stats{Processed: 3}))
	require.NoError(t, s.SaveSessionStats(ctx, "second", stats{Processed: 5, Failed: 1}))

	id, err = s.LastSessionStats(ctx, &got)
	require.NoError(t, err)
	assert.Equal(t, "second", id)
	assert.Equal(t, stats{Processed: 5, Failed: 1}, got)
}
