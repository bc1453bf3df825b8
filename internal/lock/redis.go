package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still carries our token.
// KEYS[1] = lock key, ARGV[1] = token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLockLost is logged when a lease expired before release.
var ErrLockLost = errors.New("lock: lease expired before release")

// RedisLocker coordinates several server instances through SET NX leases.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	onLost func(key string, err error)
}

// RedisOptions configures a RedisLocker.
type RedisOptions struct {
	Prefix string
	TTL    time.Duration
	Retry  time.Duration
	// OnLost is called when a release finds the lease already gone.
	OnLost func(key string, err error)
}

// NewRedisLocker wraps an existing client.
func NewRedisLocker(client redis.UniversalClient, opts RedisOptions) *RedisLocker {
	if opts.Prefix == "" {
		opts.Prefix = "interview-scheduler:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 25 * time.Millisecond
	}
	return &RedisLocker{client: client, prefix: opts.Prefix, ttl: opts.TTL, retry: opts.Retry, onLost: opts.OnLost}
}

// DialRedis creates a client for addr.
func DialRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Lock polls until the lease is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	full := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// Release must survive the caller's context being cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		n, err := releaseScript.Run(releaseCtx, l.client, []string{full}, token).Int()
		if err == nil && n == 0 {
			err = ErrLockLost
		}
		if err != nil && l.onLost != nil {
			l.onLost(key, err)
		}
	}, nil
}
