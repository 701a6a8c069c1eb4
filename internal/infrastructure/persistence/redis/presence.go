package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLPresence is how long a user counts as online after the last heartbeat.
const TTLPresence = 5 * time.Minute

// DefaultFlushInterval bounds how often lastActive reaches the user store.
const DefaultFlushInterval = time.Minute

// LastActiveWriter persists lastActive into the user directory.
type LastActiveWriter interface {
	TouchLastActive(ctx context.Context, userID string, at time.Time) error
}

// PresenceInfo is what the tracker keeps per connected user.
type PresenceInfo struct {
	UserID     string    `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	FlushedAt  time.Time `json:"flushed_at"`
}

// PresenceTracker records websocket presence.
//
// Storage layout:
//   - presence:user:{id} holds PresenceInfo with TTLPresence
//   - presence:all is a sorted set of user ids scored by last seen unix time
type PresenceTracker struct {
	cache         *Cache
	writer        LastActiveWriter
	flushInterval time.Duration
	now           func() time.Time
}

// NewPresenceTracker creates a tracker. writer may be nil.
func NewPresenceTracker(cache *Cache, writer LastActiveWriter) *PresenceTracker {
	return &PresenceTracker{
		cache:         cache,
		writer:        writer,
		flushInterval: DefaultFlushInterval,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Touch marks userID as seen at `at` and periodically forwards the time to
// the user store.
func (t *PresenceTracker) Touch(ctx context.Context, userID string, at time.Time) error {
	if userID == "" {
		return ErrCacheKeyEmpty
	}

	var info PresenceInfo
	if err := t.cache.Get(ctx, PresenceKey(userID), &info); err != nil && !errors.Is(err, ErrCacheMiss) {
		return err
	}
	info.UserID = userID
	info.LastSeenAt = at

	flush := t.writer != nil && at.Sub(info.FlushedAt) >= t.flushInterval
	if flush {
		if err := t.writer.TouchLastActive(ctx, userID, at); err != nil {
			return fmt.Errorf("presence: flush last active: %w", err)
		}
		info.FlushedAt = at
	}

	pipe := t.cache.Client().TxPipeline()
	if err := setJSON(ctx, pipe, PresenceKey(userID), info, TTLPresence); err != nil {
		return err
	}
	pipe.ZAdd(ctx, keyPresenceAll, redis.Z{Score: float64(at.Unix()), Member: userID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: touch: %w", err)
	}
	return nil
}

// Offline removes userID and flushes its final lastActive.
func (t *PresenceTracker) Offline(ctx context.Context, userID string) error {
	var info PresenceInfo
	err := t.cache.Get(ctx, PresenceKey(userID), &info)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		return err
	}
	if err == nil && t.writer != nil && info.LastSeenAt.After(info.FlushedAt) {
		if err := t.writer.TouchLastActive(ctx, userID, info.LastSeenAt); err != nil {
			return fmt.Errorf("presence: flush last active: %w", err)
		}
	}

	pipe := t.cache.Client().TxPipeline()
	pipe.Del(ctx, PresenceKey(userID))
	pipe.ZRem(ctx, keyPresenceAll, userID)
	_, err = pipe.Exec(ctx)
	return err
}

// IsOnline reports whether userID was seen within TTLPresence.
func (t *PresenceTracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := t.cache.Client().Exists(ctx, PresenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OnlineCount counts users seen within TTLPresence.
func (t *PresenceTracker) OnlineCount(ctx context.Context) (int64, error) {
	since := strconv.FormatInt(t.now().Add(-TTLPresence).Unix(), 10)
	return t.cache.Client().ZCount(ctx, keyPresenceAll, since, "+inf").Result()
}

// CleanupStale drops sorted-set members older than TTLPresence.
func (t *PresenceTracker) CleanupStale(ctx context.Context) (int64, error) {
	cutoff := strconv.FormatInt(t.now().Add(-TTLPresence).Unix(), 10)
	removed, err := t.cache.Client().ZRemRangeByScore(ctx, keyPresenceAll, "-inf", "("+cutoff).Result()
	if err != nil {
		return 0, fmt.Errorf("presence: cleanup: %w", err)
	}
	return removed, nil
}

func setJSON(ctx context.Context, pipe redis.Pipeliner, key string, v PresenceInfo, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("presence: marshal: %w", err)
	}
	pipe.Set(ctx, key, data, ttl)
	return nil
}
