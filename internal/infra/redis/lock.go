package redis

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrLockHeld means another replica owns the key.
	ErrLockHeld = errors.New("redis: lock held by another process")
	// ErrLockLost means the key expired or was taken over before Unlock.
	ErrLockLost = errors.New("redis: lock lost before release")
)

// Locker guards work that must run on one replica at a time, such as the
// expiration sweep. Acquisition is a single attempt: callers that find the
// lock held skip the run.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

var _ Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	c *Client
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{c: c}
}

// TryLock stores a fresh ULID under key. The token is required to unlock.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := ulid.MustNew(ulid.Now(), rand.Reader).String()
	ok, err := l.c.cli.SetNX(ctx, l.c.Key(key), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

// compare-and-delete so a late holder never frees a lock it no longer owns
var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	n, err := luaUnlock.Run(ctx, l.c.cli, []string{l.c.Key(key)}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}
