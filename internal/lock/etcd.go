package lock

import (
	"context"
	"log/slog"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultPrefix namespaces all lock keys in etcd.
const DefaultPrefix = "cryptique/runtime/lock/"

// EtcdManager implements Manager on top of an etcd cluster. Expiry is
// enforced server-side through leases, ownership checks run inside etcd
// transactions.
//
// If etcd is unreachable, every operation logs a warning and reports
// success. This is a documented reduced-consistency mode: the service keeps
// running as if it were the only instance rather than crashing, trading
// mutual exclusion for availability.
type EtcdManager struct {
	client *clientv3.Client
	prefix string
	logger *slog.Logger
}

// NewEtcdManager creates an etcd-backed lock manager using the given client.
func NewEtcdManager(client *clientv3.Client, logger *slog.Logger) *EtcdManager {
	return &EtcdManager{
		client: client,
		prefix: DefaultPrefix,
		logger: logger,
	}
}

// Acquire performs an atomic set-if-not-exists with a lease so the lock
// expires after ttl even if this process dies without releasing it.
func (m *EtcdManager) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	k := m.prefix + key

	lease, err := m.client.Grant(ctx, leaseSeconds(ttl))
	if err != nil {
		return m.degraded("acquire", key, err), nil
	}

	resp, err := m.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(k), "=", 0)).
		Then(clientv3.OpPut(k, owner, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		return m.degraded("acquire", key, err), nil
	}

	return resp.Succeeded, nil
}

// Renew attaches the key to a fresh lease, guarded by a server-side
// ownership check. The previous lease is left to expire on its own; the key
// no longer belongs to it after the put.
func (m *EtcdManager) Renew(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	k := m.prefix + key

	lease, err := m.client.Grant(ctx, leaseSeconds(ttl))
	if err != nil {
		return m.degraded("renew", key, err), nil
	}

	resp, err := m.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(k), "=", owner)).
		Then(clientv3.OpPut(k, owner, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		return m.degraded("renew", key, err), nil
	}

	return resp.Succeeded, nil
}

// Release deletes the key, guarded by a server-side ownership check so an
// instance whose lock already expired cannot delete a newer holder's lock.
func (m *EtcdManager) Release(ctx context.Context, key, owner string) (bool, error) {
	k := m.prefix + key

	resp, err := m.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(k), "=", owner)).
		Then(clientv3.OpDelete(k)).
		Commit()
	if err != nil {
		return m.degraded("release", key, err), nil
	}

	return resp.Succeeded, nil
}

// degraded records a coordination store failure and reports success so the
// orchestrator keeps working in single-instance mode.
func (m *EtcdManager) degraded(op, key string, err error) bool {
	m.logger.Warn("coordination store unavailable, continuing in single-instance mode",
		"operation", op,
		"lock_key", key,
		"error", err)
	return true
}

// leaseSeconds converts a ttl to whole seconds, the granularity of etcd
// leases, rounding sub-second ttls up to one second.
func leaseSeconds(ttl time.Duration) int64 {
	s := int64(ttl / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
