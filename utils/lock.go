package utils

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another owner holds the lock.
var ErrLockHeld = errors.New("lock held by another owner")

// releaseScript deletes the key only when it still holds our token.
const releaseScript = `if redis.call('GET', KEYS[1]) == ARGV[1] then return redis.call('DEL', KEYS[1]) end; return 0`

// RedisLock is an advisory lock built on SET NX PX with an owner token.
type RedisLock struct {
	rc    *redis.Client
	key   string
	token string
}

// AcquireLock tries once to take key for ttl. It returns ErrLockHeld when the key is taken
// and the raw redis error when redis cannot be reached.
func AcquireLock(ctx context.Context, rc *redis.Client, key string, ttl time.Duration) (*RedisLock, error) {
	if rc == nil {
		return nil, errors.New("redis not configured")
	}
	token := uuid.NewString()
	ok, err := rc.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &RedisLock{rc: rc, key: key, token: token}, nil
}

// Release frees the lock if this owner still holds it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.rc.Eval(ctx, releaseScript, []string{l.key}, l.token).Err()
}
