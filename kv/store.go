package kv

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures (network, protocol, closed client).
var ErrUnavailable = errors.New("kv store unavailable")

// ErrInvalidTTL is returned by Set when ttl is not positive. Entries without an
// expiry are never written by this module.
var ErrInvalidTTL = errors.New("kv ttl must be positive")

// Store is a TTL-keyed string map.
//
// Get reports a missing or expired key as ok=false with a nil error. Delete of a
// missing key is not an error.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Counter is implemented by backends that support fixed-window counters. The
// ttl is applied only when Incr creates the key.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
