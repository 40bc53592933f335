// Package retention implements the tenant data-retention lifecycle: the
// state machine a tenant moves through after its subscription lapses, and
// the maintenance jobs that advance it in bulk. Jobs run through the batch
// processor under the resource monitor's live tunables and are dispatched
// as orchestrator tasks, one lock key per job type.
package retention

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is a tenant's position in the retention lifecycle.
type Status string

const (
	// StatusActive tenants have a live subscription and full access.
	StatusActive Status = "ACTIVE"

	// StatusGracePeriod tenants have lapsed but keep read-only access for
	// the configured grace window.
	StatusGracePeriod Status = "GRACE_PERIOD"

	// StatusRetentionPeriod tenants have lost access; their data is intact
	// but not yet scheduled for deletion.
	StatusRetentionPeriod Status = "RETENTION_PERIOD"

	// StatusPendingDeletion tenants have a deletion date set.
	StatusPendingDeletion Status = "PENDING_DELETION"

	// StatusDeleted tenants have had their data removed; a backup remains
	// until the backup-retention date.
	StatusDeleted Status = "DELETED"
)

var (
	// ErrTenantNotFound is returned when the tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrBackupFailed wraps backup creation errors during deletion.
	ErrBackupFailed = errors.New("tenant backup failed")
)

// Tenant is the billing and data-ownership unit whose retention lifecycle
// is tracked. Date pointers are nil until the corresponding transition has
// happened.
type Tenant struct {
	ID                  uuid.UUID
	Name                string
	Status              Status
	SubscriptionEndDate *time.Time
	GraceEndDate        *time.Time
	DeletionDate        *time.Time
	BackupRetentionEnd  *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Recoverable reports whether the tenant's data can still be restored at
// the given instant. Pending deletion is always reversible; deleted data
// only until the backup-retention date passes.
func (t *Tenant) Recoverable(now time.Time) bool {
	switch t.Status {
	case StatusPendingDeletion:
		return true
	case StatusDeleted:
		return t.BackupRetentionEnd != nil && !now.After(*t.BackupRetentionEnd)
	default:
		return false
	}
}
