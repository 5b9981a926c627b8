package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewFromClient(client), mr
}

type page struct {
	Names []string `json:"names"`
}

func TestJSONRoundTripAndMiss(t *testing.T) {
	rc, mr := newTestCache(t)
	ctx := context.Background()

	var got page
	assert.ErrorIs(t, rc.GetJSON(ctx, "missing", &got), ErrMiss)

	require.NoError(t, rc.SetJSON(ctx, LeaderboardKey(10), page{Names: []string{"Alice", "Bob"}}, time.Minute))
	require.NoError(t, rc.GetJSON(ctx, LeaderboardKey(10), &got))
	assert.Equal(t, []string{"Alice", "Bob"}, got.Names)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, rc.GetJSON(ctx, LeaderboardKey(10), &got), ErrMiss)
}

func TestInvalidateLeaderboardsOnlyTouchesLeaderboardKeys(t *testing.T) {
	rc, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, rc.SetJSON(ctx, LeaderboardKey(10), page{}, time.Minute))
	require.NoError(t, rc.SetJSON(ctx, LeaderboardKey(50), page{}, time.Minute))
	require.NoError(t, rc.Set(ctx, "hoopelo:profile:alice", "x", time.Minute))

	removed, err := rc.InvalidateLeaderboards(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, removed)
	assert.False(t, mr.Exists(LeaderboardKey(10)))
	assert.False(t, mr.Exists(LeaderboardKey(50)))
	assert.True(t, mr.Exists("hoopelo:profile:alice"))
}

func TestInvalidateLeaderboardsWithNothingCached(t *testing.T) {
	rc, _ := newTestCache(t)

	removed, err := rc.InvalidateLeaderboards(context.Background())

	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSetLeaderboardJSONSkipsPagesReadBeforeInvalidation(t *testing.T) {
	rc, mr := newTestCache(t)
	ctx := context.Background()

	generation, err := rc.LeaderboardGeneration(ctx)
	require.NoError(t, err)
	assert.Zero(t, generation)

	stored, err := rc.SetLeaderboardJSON(ctx, LeaderboardKey(10), page{Names: []string{"Alice"}}, time.Minute, generation)
	require.NoError(t, err)
	assert.True(t, stored)

	stale, err := rc.LeaderboardGeneration(ctx)
	require.NoError(t, err)

	// A result commits while the stale page is being loaded.
	_, err = rc.InvalidateLeaderboards(ctx)
	require.NoError(t, err)

	stored, err = rc.SetLeaderboardJSON(ctx, LeaderboardKey(10), page{Names: []string{"Alice"}}, time.Minute, stale)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists(LeaderboardKey(10)))

	fresh, err := rc.LeaderboardGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, stale+1, fresh)

	stored, err = rc.SetLeaderboardJSON(ctx, LeaderboardKey(10), page{Names: []string{"Bob"}}, time.Minute, fresh)
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestInvalidateLeaderboardsKeepsGeneration(t *testing.T) {
	rc, mr := newTestCache(t)
	ctx := context.Background()

	_, err := rc.InvalidateLeaderboards(ctx)
	require.NoError(t, err)
	_, err = rc.InvalidateLeaderboards(ctx)
	require.NoError(t, err)

	generation, err := rc.LeaderboardGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), generation)
	assert.True(t, mr.Exists(leaderboardGenerationKey))
}
