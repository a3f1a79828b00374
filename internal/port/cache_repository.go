package port

import (
	"context"
	"errors"
	"time"
)

var ErrLockHeld = errors.New("lock held by another process")

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes the key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}

type Lock interface {
	Release(ctx context.Context) error
}

type Locker interface {
	// Obtain returns ErrLockHeld when someone else owns key
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}
