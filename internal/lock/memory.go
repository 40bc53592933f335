package lock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	owner   string
	expires time.Time
}

// MemoryManager implements Manager with an in-process map. It provides
// real mutual exclusion within one process only, which makes it the
// fallback when no etcd endpoints are configured and the lock fake used by
// tests.
type MemoryManager struct {
	clock clockwork.Clock

	mu    sync.Mutex
	locks map[string]memoryEntry
}

// NewMemoryManager creates an in-process lock manager.
func NewMemoryManager(clock clockwork.Clock) *MemoryManager {
	return &MemoryManager{
		clock: clock,
		locks: make(map[string]memoryEntry),
	}
}

// Acquire succeeds if the key is absent or its previous holder's ttl has
// elapsed.
func (m *MemoryManager) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if e, ok := m.locks[key]; ok && e.expires.After(now) {
		return false, nil
	}

	m.locks[key] = memoryEntry{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

// Renew extends the expiry while owner still holds an unexpired lock.
func (m *MemoryManager) Renew(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	e, ok := m.locks[key]
	if !ok || e.owner != owner || !e.expires.After(now) {
		return false, nil
	}

	e.expires = now.Add(ttl)
	m.locks[key] = e
	return true, nil
}

// Release deletes the lock while owner still holds it.
func (m *MemoryManager) Release(ctx context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.locks[key]
	if !ok || e.owner != owner {
		return false, nil
	}

	delete(m.locks, key)
	return true, nil
}
