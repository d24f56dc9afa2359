package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockTTL   = 2 * time.Minute
	defaultLockRetry = 50 * time.Millisecond
	releaseTimeout   = 2 * time.Second
)

// releaseScript deletes the lock only while it still holds our token, so an
// expired holder cannot free a lock another replica has since taken.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// redisLockAPI is the subset of the go-redis client used by RedisLocker.
type redisLockAPI interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker serialises work per key across every replica sharing a redis
// server. Waiters in the same process queue on a LocalLocker first, so only
// one of them polls redis at a time.
type RedisLocker struct {
	client redisLockAPI
	local  *LocalLocker
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// NewRedisLocker returns a locker whose keys are prefix+"lock:"+key. ttl
// bounds how long a crashed holder can block a session and must exceed the
// longest turn.
func NewRedisLocker(client redisLockAPI, prefix string, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client: client,
		local:  NewLocalLocker(),
		prefix: prefix + "lock:",
		ttl:    ttl,
		retry:  defaultLockRetry,
		logger: logger,
	}
}

// Lock implements Locker. Backend failures wrap ErrUnavailable; running out
// of time while another holder has the key wraps ErrBusy.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	rkey := l.prefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, rkey, token, l.ttl).Result()
		if err != nil {
			unlockLocal()
			if ctx.Err() != nil {
				return nil, errors.Join(ErrBusy, ctx.Err())
			}
			return nil, fmt.Errorf("%w: setnx: %v", ErrUnavailable, err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			unlockLocal()
			return nil, errors.Join(ErrBusy, ctx.Err())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			defer unlockLocal()
			// The request context may already be done.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			n, err := l.client.Eval(rctx, releaseScript, []string{rkey}, token).Int64()
			switch {
			case err != nil:
				l.logger.Warn("failed to release session lock; it expires on its own",
					zap.String("key", rkey), zap.Duration("ttl", l.ttl), zap.Error(err))
			case n == 0:
				l.logger.Warn("session lock expired before release", zap.String("key", rkey))
			}
		})
	}, nil
}

// NewLockerFor returns the locker matching store: a RedisLocker sharing a
// RedisStore's client, otherwise a LocalLocker.
func NewLockerFor(store Store, ttl time.Duration, logger *zap.Logger) Locker {
	if rs, ok := store.(*RedisStore); ok {
		return NewRedisLocker(rs.client, rs.prefix, ttl, logger)
	}
	return NewLocalLocker()
}
