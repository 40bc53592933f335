package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/platform/logger"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/retention"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/store"
)

// BackupStore implements retention.BackupStore by snapshotting the tenant
// record into the backups table before its data is removed. The artifact
// ID is the backup row's primary key.
type BackupStore struct {
	db store.DBTX
}

// NewBackupStore creates a BackupStore.
func NewBackupStore(db store.DBTX) *BackupStore {
	return &BackupStore{db: db}
}

// CreateBackup writes the tenant snapshot and returns the artifact ID.
func (s *BackupStore) CreateBackup(ctx context.Context, tenant *retention.Tenant) (string, error) {
	log := logger.FromContext(ctx)

	snapshot, err := json.Marshal(tenant)
	if err != nil {
		return "", fmt.Errorf("failed to encode tenant snapshot: %w", err)
	}

	artifactID := uuid.New()
	query := `
		INSERT INTO backups (id, tenant_id, snapshot, created_at)
		VALUES ($1, $2, $3, now())
	`
	if _, err := s.db.ExecContext(ctx, query, artifactID, tenant.ID, snapshot); err != nil {
		log.Error("failed to create tenant backup",
			"tenant_id", tenant.ID,
			"error", err)
		return "", MapError(fmt.Errorf("failed to create tenant backup: %w", err))
	}

	log.Info("tenant backup created",
		"tenant_id", tenant.ID,
		"artifact_id", artifactID)
	return artifactID.String(), nil
}
