package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Redis lock defaults.
const (
	DefaultKeyPrefix = "semdedup:lock:"
	DefaultTTL       = 11 * time.Minute
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker backed by SET NX PX on a shared Redis.
// The TTL bounds how long a crashed holder blocks the tenant.
type RedisLocker struct {
	pool      *redis.Pool
	keyPrefix string
	ttl       time.Duration
}

// NewRedisPool creates a connection pool for the given redis:// URL.
func NewRedisPool(url string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 5 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, url,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(5*time.Second),
				redis.DialWriteTimeout(5*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisLocker creates a Redis-backed locker. Zero ttl uses DefaultTTL.
func NewRedisLocker(pool *redis.Pool, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{
		pool:      pool,
		keyPrefix: DefaultKeyPrefix,
		ttl:       ttl,
	}
}

// TryAcquire takes the tenant's lock or returns ErrHeld.
func (l *RedisLocker) TryAcquire(ctx context.Context, tenantID string) (Release, error) {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("get redis connection: %w", err)
	}
	defer conn.Close()

	key := l.keyPrefix + tenantID
	token := uuid.NewString()

	_, err = redis.String(conn.Do("SET", key, token, "NX", "PX", l.ttl.Milliseconds()))
	if errors.Is(err, redis.ErrNil) {
		return nil, ErrHeld
	}
	if err != nil {
		return nil, fmt.Errorf("acquire tenant lock: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.release(key, token)
		})
	}, nil
}

func (l *RedisLocker) release(key, token string) {
	conn := l.pool.Get()
	defer conn.Close()

	if _, err := releaseScript.Do(conn, key, token); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to release tenant lock")
	}
}

// Close closes the underlying pool.
func (l *RedisLocker) Close() error {
	return l.pool.Close()
}
