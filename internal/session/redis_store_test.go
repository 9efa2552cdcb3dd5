package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore("not a url", time.Minute)
	require.Error(t, err)
}

func TestSaveGetDelete(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	_, err := store.Get(ctx, "p1", "d1")
	require.ErrorIs(t, err, ErrNotFound)

	vs := New("p1", "d1")
	vs.SelectPreferred([]string{"a", "b"}, []string{"a"})
	vs.PageIndex = 1
	require.NoError(t, store.Save(ctx, vs))

	got, err := store.Get(ctx, "p1", "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Preferred)
	assert.Equal(t, []string{"a"}, got.Feasible)
	assert.Equal(t, 1, got.PageIndex)
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, store.Delete(ctx, "p1", "d1"))
	_, err = store.Get(ctx, "p1", "d1")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting twice is fine.
	require.NoError(t, store.Delete(ctx, "p1", "d1"))
}

func TestSessionExpiresAfterIdleTTL(t *testing.T) {
	store, s := setupTestRedis(t, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, New("p1", "d1")))
	s.FastForward(6 * time.Minute)

	// A mutation refreshes the TTL.
	vs, err := store.Get(ctx, "p1", "d1")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, vs))
	s.FastForward(6 * time.Minute)
	_, err = store.Get(ctx, "p1", "d1")
	require.NoError(t, err)

	s.FastForward(11 * time.Minute)
	_, err = store.Get(ctx, "p1", "d1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKeysAreScopedPerUser(t *testing.T) {
	store, s := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	a := New("p1", "d1")
	a.SelectFeasible([]string{"x"}, []string{"x"})
	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, New("p1", "d2")))

	assert.True(t, s.Exists("vote_session:p1:d1"))
	assert.True(t, s.Exists("vote_session:p1:d2"))

	got, err := store.Get(ctx, "p1", "d2")
	require.NoError(t, err)
	assert.True(t, got.Empty())
}
