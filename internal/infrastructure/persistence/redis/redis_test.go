package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigOptions(t *testing.T) {
	opts, err := DefaultConfig().options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)

	opts, err = Config{URL: "redis://:secret@cache.internal:6380/2", PoolSize: 4}.options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 4, opts.PoolSize)

	_, err = Config{URL: "http://not-redis"}.options()
	assert.Error(t, err)
}

func TestPresenceKey(t *testing.T) {
	assert.Equal(t, "presence:user:alice", PresenceKey("alice"))
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS-BACKED
// ══════════════════════════════════════════════════════════════════════════════

type recordingWriter struct {
	mu    sync.Mutex
	calls []time.Time
}

func (w *recordingWriter) TouchLastActive(_ context.Context, _ string, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, at)
	return nil
}

func testCache(t *testing.T) *Cache {
	t.Helper()
	url := os.Getenv("FITMATCH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FITMATCH_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	cache, err := NewCache(ctx, Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	require.NoError(t, cache.Client().FlushDB(ctx).Err())
	return cache
}

func TestPresenceTracker(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()
	w := &recordingWriter{}
	tracker := NewPresenceTracker(cache, w)
	now := time.Now().UTC().Truncate(time.Second)
	tracker.now = func() time.Time { return now }

	require.NoError(t, tracker.Touch(ctx, "alice", now))
	require.NoError(t, tracker.Touch(ctx, "alice", now.Add(10*time.Second)))
	require.NoError(t, tracker.Touch(ctx, "bob", now.Add(-time.Hour)))

	online, err := tracker.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)

	count, err := tracker.OnlineCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "bob's heartbeat is older than the TTL")

	removed, err := tracker.CleanupStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	require.NoError(t, tracker.Offline(ctx, "alice"))
	online, err = tracker.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)

	w.mu.Lock()
	defer w.mu.Unlock()
	// alice's second touch is throttled; Offline flushes it
	require.Len(t, w.calls, 3)
	assert.Equal(t, now, w.calls[0])
	assert.Equal(t, now.Add(-time.Hour), w.calls[1])
	assert.Equal(t, now.Add(10*time.Second), w.calls[2])
}
