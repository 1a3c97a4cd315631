package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrLockAcquisition is returned when the key is still held after every retry.
var ErrLockAcquisition = errors.New("lock: could not acquire")

// Locker is a keyed mutual-exclusion primitive with a lease.
// TryAcquire returns a release function when the key was free.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type Options struct {
	TTL        time.Duration
	RetryCount int
	RetryDelay time.Duration
}

var DefaultOptions = Options{
	TTL:        30 * time.Second,
	RetryCount: 3,
	RetryDelay: 200 * time.Millisecond,
}

func DepositKey(userID, externalAccountID string) string {
	return fmt.Sprintf("deposit:%s:%s", userID, externalAccountID)
}

func WithdrawKey(userID, externalAccountID string) string {
	return fmt.Sprintf("withdraw:%s:%s", userID, externalAccountID)
}

func SettleBlockchainKey(txID string) string {
	return "settle-blockchain:" + txID
}

func FundingKey(txID string) string {
	return "funding:" + txID
}

// WithLock runs fn while holding key. The lock is released on every exit path,
// including a panic in fn. A release failure is logged, never returned.
func WithLock[T any](ctx context.Context, locker Locker, logger *slog.Logger, key string, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	release, err := acquire(ctx, locker, key, opts)
	if err != nil {
		return zero, err
	}

	defer func() {
		// release must not be cancelled with the request
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()

		if err := release(releaseCtx); err != nil && logger != nil {
			logger.Warn("failed to release lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	return fn(ctx)
}

func acquire(ctx context.Context, locker Locker, key string, opts Options) (func(context.Context) error, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions.TTL
	}

	attempts := opts.RetryCount + 1
	for i := 0; i < attempts; i++ {
		release, ok, err := locker.TryAcquire(ctx, key, opts.TTL)
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return release, nil
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrLockAcquisition, key)
}
