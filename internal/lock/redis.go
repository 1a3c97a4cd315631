package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the subset of the cache the Redis locker needs.
type Store interface {
	SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// RedisLocker holds a lease with SET NX PX and releases it only while the
// stored token is still ours, so an expired lease taken over by another
// holder is never deleted.
type RedisLocker struct {
	store  Store
	prefix string
}

func NewRedisLocker(store Store) *RedisLocker {
	return &RedisLocker{store: store, prefix: "lock:"}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	full := l.prefix + key

	ok, err := l.store.SetNX(ctx, full, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}

	release := func(ctx context.Context) error {
		_, err := l.store.CompareAndDelete(ctx, full, token)
		return err
	}

	return release, true, nil
}
