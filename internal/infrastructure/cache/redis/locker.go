package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"medication-adherence-monitor/internal/logger"
	appErrors "medication-adherence-monitor/pkg/errors"
)

const (
	DefaultLockTTL  = 15 * time.Second
	DefaultLockWait = 5 * time.Second
	retryInterval   = 50 * time.Millisecond
	keyPrefix       = "lock:"
)

// Deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a single-instance Redis mutex keyed by name.
type Locker struct {
	rdb  goredis.UniversalClient
	ttl  time.Duration
	wait time.Duration
}

func NewLocker(rdb goredis.UniversalClient, ttl, wait time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &Locker{rdb: rdb, ttl: ttl, wait: wait}
}

// Lock blocks until key is held, ctx ends or the wait budget runs out.
// The returned func releases the lock.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := keyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(fullKey, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, appErrors.ErrResourceBusy
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		logger.Warn("Failed to release lock",
			zap.String("event", "lock_release_failed"),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
