package lock

import (
	"context"
	"time"
)

// TradeLockKeyPrefix is the namespace for per-symbol trade locks.
const TradeLockKeyPrefix = "asv8:lock:trade:"

// TradeLockKey returns the lock key for one symbol.
func TradeLockKey(symbol string) string {
	return TradeLockKeyPrefix + symbol
}

// Locker is per-symbol mutual exclusion with TTL and fencing tokens.
// TryAcquire returns a token; Release only succeeds when the holder still
// owns the lock under that token, so an expired holder can never clobber a
// newer one.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
	Extend(ctx context.Context, key, token string, ttl time.Duration) error
	Close() error
}

// NopLocker is the single-instance fallback: every acquisition succeeds.
type NopLocker struct{}

func NewNopLocker() *NopLocker { return &NopLocker{} }

func (n *NopLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return "nop", true, nil
}

func (n *NopLocker) Release(ctx context.Context, key, token string) error { return nil }

func (n *NopLocker) Extend(ctx context.Context, key, token string, ttl time.Duration) error {
	return nil
}

func (n *NopLocker) Close() error { return nil }
