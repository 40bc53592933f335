// Package lock provides distributed mutual exclusion for maintenance job
// types. The etcd-backed manager guarantees at most one holder per key
// across all instances; the memory-backed manager provides the same
// contract within a single process and serves as the fallback when no
// coordination store is configured.
package lock

import (
	"context"
	"time"
)

// Manager acquires, renews and releases expiring locks. All three
// operations are non-blocking: a false result means the caller must back
// off and reschedule, never spin-wait. Errors are advisory; callers act on
// the boolean.
type Manager interface {
	// Acquire succeeds only if the key is currently unheld. The lock
	// expires after ttl unless renewed.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Renew extends the lock's expiry. It succeeds only while owner still
	// holds the key, so a process that lost ownership cannot extend
	// someone else's lock.
	Renew(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Release deletes the lock. It succeeds only while owner still holds
	// the key.
	Release(ctx context.Context, key, owner string) (bool, error)
}
