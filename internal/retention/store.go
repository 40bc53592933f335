package retention

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TenantStore is the persistence boundary for tenant retention records.
// The postgres package provides the production implementation.
type TenantStore interface {
	// GetByID fetches one tenant, or ErrTenantNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// ListGraceExpired pages through tenants whose grace period ended at
	// or before cutoff and that are not already pending deletion or
	// deleted. The status filter is what makes the mark job idempotent.
	ListGraceExpired(ctx context.Context, cutoff time.Time, limit, offset int) ([]*Tenant, error)

	// ListPastDeletion pages through PENDING_DELETION tenants whose
	// deletion date is at or before cutoff.
	ListPastDeletion(ctx context.Context, cutoff time.Time, limit, offset int) ([]*Tenant, error)

	// MarkPendingDeletion sets PENDING_DELETION with the given deletion
	// date.
	MarkPendingDeletion(ctx context.Context, id uuid.UUID, deletionDate time.Time) error

	// MarkDeleted sets DELETED with the given backup-retention expiry.
	MarkDeleted(ctx context.Context, id uuid.UUID, backupRetentionEnd time.Time) error

	// Reactivate resets the tenant to ACTIVE and clears the lifecycle
	// dates.
	Reactivate(ctx context.Context, id uuid.UUID) error
}

// BackupStore creates backup artifacts ahead of data deletion.
type BackupStore interface {
	// CreateBackup snapshots the tenant's data and returns the artifact
	// ID. It must complete before the tenant is marked deleted.
	CreateBackup(ctx context.Context, tenant *Tenant) (string, error)
}
