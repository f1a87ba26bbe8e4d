package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lease only if we still own it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SyncLease is a best-effort per-user mutex held while a sync runs.
// It only saves duplicate upstream calls; storage uniqueness keeps syncs correct without it.
type SyncLease struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewSyncLease creates a lease manager on top of the Redis cache
func NewSyncLease(c *RedisCache, ttl time.Duration) *SyncLease {
	return &SyncLease{cache: c, ttl: ttl}
}

// SyncLeaseKey returns the Redis key guarding a user's sync
func SyncLeaseKey(userID int64) string {
	return fmt.Sprintf("sync_lease:%d", userID)
}

// Acquire tries to take the user's lease. When acquired, release must be called once the sync ends.
func (l *SyncLease) Acquire(ctx context.Context, userID int64) (release func(), acquired bool, err error) {
	key := l.cache.key(SyncLeaseKey(userID))
	token := uuid.NewString()

	ok, err := l.cache.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire sync lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// The sync context may already be cancelled; releasing must still happen
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, l.cache.client, []string{key}, token).Err(); err != nil {
			l.cache.logger.Warn("Failed to release sync lease",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}

	return release, true, nil
}
