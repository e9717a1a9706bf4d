// Package lock serializes work on a key across goroutines or processes.
package lock

import (
	"context"
	"errors"
	"time"
)

var ErrNotAcquired = errors.New("lock is held by another owner")

type Locker interface {
	// Acquire takes the lock for key or returns ErrNotAcquired immediately.
	Acquire(ctx context.Context, key string) (Lease, error)
}

type Lease interface {
	Release(ctx context.Context) error
}

type RetryPolicy struct {
	Attempts int
	Wait     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 10, Wait: 200 * time.Millisecond}

// Obtain retries Acquire while the lock is contended.
func Obtain(ctx context.Context, l Locker, key string, policy RetryPolicy) (Lease, error) {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}

	var err error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		var lease Lease
		lease, err = l.Acquire(ctx, key)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}
		if attempt == policy.Attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(policy.Wait):
		}
	}
	return nil, err
}
