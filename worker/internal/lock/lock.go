package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker hands out the cycle lock. Acquire never blocks waiting for a
// holder: ok is false when the lock is taken. release must be called once
// when ok is true.
type Locker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// Local is an in-process Locker.
type Local struct {
	mu sync.Mutex
}

func (l *Local) Acquire(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every worker connected to the same Redis.
type Redis struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedis parses url (redis://[:password@]host:port/db) and returns a
// Locker on key. ttl bounds how long a crashed holder keeps the lock.
func NewRedis(url, key string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("lock: parse redis url: %w", err)
	}
	return NewRedisClient(redis.NewClient(opts), key, ttl), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(rdb *redis.Client, key string, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, key: key, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock: acquire %s: %w", r.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The cycle's context may already be done; release on a fresh one.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.rdb, []string{r.key}, token).Err(); err != nil {
			slog.Error("lock: release failed", "key", r.key, "err", err)
		}
	}
	return release, true, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
