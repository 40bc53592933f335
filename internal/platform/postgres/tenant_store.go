package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/platform/logger"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/retention"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/store"
)

// TenantStore implements retention.TenantStore over PostgreSQL.
type TenantStore struct {
	db store.DBTX
}

// NewTenantStore creates a TenantStore.
func NewTenantStore(db store.DBTX) *TenantStore {
	return &TenantStore{db: db}
}

const selectTenantColumns = `
	SELECT id, name, status, subscription_end_date, grace_end_date,
		deletion_date, backup_retention_end, created_at, updated_at
	FROM tenants`

// GetByID fetches one tenant.
func (s *TenantStore) GetByID(ctx context.Context, id uuid.UUID) (*retention.Tenant, error) {
	t, err := scanTenant(s.db.QueryRowContext(ctx, selectTenantColumns+` WHERE id = $1`, id))
	if err != nil {
		if err = MapError(err); store.IsNotFoundError(err) {
			return nil, retention.ErrTenantNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListGraceExpired pages through tenants whose grace period ended at or
// before cutoff, excluding those already marked or deleted. The status
// filter is what makes repeated mark runs idempotent.
func (s *TenantStore) ListGraceExpired(ctx context.Context, cutoff time.Time, limit, offset int) ([]*retention.Tenant, error) {
	query := selectTenantColumns + `
		WHERE grace_end_date IS NOT NULL
			AND grace_end_date <= $1
			AND status NOT IN ($2, $3)
		ORDER BY grace_end_date ASC, id ASC
		LIMIT $4 OFFSET $5`
	return s.list(ctx, query,
		cutoff, retention.StatusPendingDeletion, retention.StatusDeleted, limit, offset)
}

// ListPastDeletion pages through tenants whose deletion date has arrived.
func (s *TenantStore) ListPastDeletion(ctx context.Context, cutoff time.Time, limit, offset int) ([]*retention.Tenant, error) {
	query := selectTenantColumns + `
		WHERE status = $1
			AND deletion_date IS NOT NULL
			AND deletion_date <= $2
		ORDER BY deletion_date ASC, id ASC
		LIMIT $3 OFFSET $4`
	return s.list(ctx, query, retention.StatusPendingDeletion, cutoff, limit, offset)
}

// MarkPendingDeletion sets PENDING_DELETION with the deletion date.
func (s *TenantStore) MarkPendingDeletion(ctx context.Context, id uuid.UUID, deletionDate time.Time) error {
	query := `
		UPDATE tenants
		SET status = $2, deletion_date = $3, updated_at = now()
		WHERE id = $1
	`
	return s.exec(ctx, query, id, retention.StatusPendingDeletion, deletionDate)
}

// MarkDeleted sets DELETED with the backup-retention expiry.
func (s *TenantStore) MarkDeleted(ctx context.Context, id uuid.UUID, backupRetentionEnd time.Time) error {
	query := `
		UPDATE tenants
		SET status = $2, backup_retention_end = $3, updated_at = now()
		WHERE id = $1
	`
	return s.exec(ctx, query, id, retention.StatusDeleted, backupRetentionEnd)
}

// Reactivate resets the tenant to ACTIVE and clears the lifecycle dates.
func (s *TenantStore) Reactivate(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tenants
		SET status = $2, deletion_date = NULL, backup_retention_end = NULL,
			updated_at = now()
		WHERE id = $1
	`
	return s.exec(ctx, query, id, retention.StatusActive)
}

func (s *TenantStore) exec(ctx context.Context, query string, id uuid.UUID, args ...any) error {
	log := logger.FromContext(ctx)

	res, err := s.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		log.Error("failed to update tenant", "tenant_id", id, "error", err)
		return MapError(fmt.Errorf("failed to update tenant: %w", err))
	}
	if err := CheckRowsAffected(res, store.ErrTenantNotFound); err != nil {
		return retention.ErrTenantNotFound
	}
	return nil
}

func (s *TenantStore) list(ctx context.Context, query string, args ...any) ([]*retention.Tenant, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tenants", "error", err)
		return nil, MapError(fmt.Errorf("failed to query tenants: %w", err))
	}
	defer rows.Close()

	var tenants []*retention.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, MapError(fmt.Errorf("failed to scan tenant row: %w", err))
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(fmt.Errorf("error iterating tenant rows: %w", err))
	}
	return tenants, nil
}

func scanTenant(row rowScanner) (*retention.Tenant, error) {
	var (
		t               retention.Tenant
		subscriptionEnd sql.NullTime
		graceEnd        sql.NullTime
		deletionDate    sql.NullTime
		backupEnd       sql.NullTime
	)
	if err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Status,
		&subscriptionEnd,
		&graceEnd,
		&deletionDate,
		&backupEnd,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if subscriptionEnd.Valid {
		t.SubscriptionEndDate = &subscriptionEnd.Time
	}
	if graceEnd.Valid {
		t.GraceEndDate = &graceEnd.Time
	}
	if deletionDate.Valid {
		t.DeletionDate = &deletionDate.Time
	}
	if backupEnd.Valid {
		t.BackupRetentionEnd = &backupEnd.Time
	}
	return &t, nil
}
