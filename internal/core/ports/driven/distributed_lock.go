package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates workers that share one library: the scheduler
// poll and long-running batches over the same root take a named lock.
type DistributedLock interface {
	// Acquire takes name for ttl without blocking. It reports false when the
	// lock is already held, by this instance or another.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release drops name. Releasing a lock that is not held is not an error.
	Release(ctx context.Context, name string) error

	// Extend pushes the expiry of a held lock out to ttl from now. It returns
	// domain.ErrLockNotHeld when the lock was lost. Backends without expiry
	// only check ownership.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	Ping(ctx context.Context) error
}
