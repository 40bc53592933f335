package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/cryptique-io-codehub/cryptique-sub007/internal/batch"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/config"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/resource"
	"github.com/cryptique-io-codehub/cryptique-sub007/internal/task"
)

// Task types the service registers with the orchestrator. Each job locks
// on its own type, so two instances never run the same job concurrently
// while mark and delete may overlap.
const (
	TaskTypeMark    = "retention.mark"
	TaskTypeDelete  = "retention.delete"
	TaskTypeRecover = "retention.recover"
)

// deleteSizeDiv and deleteDelayMul derive the deletion job's batching from
// the live tunables: backups are expensive, so sub-batches shrink and the
// inter-wave pause stretches relative to the mark job.
const (
	deleteSizeDiv  = 5
	deleteDelayMul = 2.0
)

// RecoveryResult is the outcome of a recovery attempt. Success false with
// a message is a legitimate business outcome, not an error.
type RecoveryResult struct {
	Success  bool      `json:"success"`
	TenantID uuid.UUID `json:"tenant_id"`
	Status   Status    `json:"status"`
	Message  string    `json:"message,omitempty"`
}

// StatusReport is the read-only view returned by CheckDataRetentionStatus.
// The effective status is derived from the subscription end date and the
// configured windows, so it can run ahead of what the mark job has
// persisted.
type StatusReport struct {
	TenantID           uuid.UUID  `json:"tenant_id"`
	Status             Status     `json:"status"`
	SubscriptionEnd    *time.Time `json:"subscription_end,omitempty"`
	GraceEnd           *time.Time `json:"grace_end,omitempty"`
	RetentionEnd       *time.Time `json:"retention_end,omitempty"`
	DeletionDate       *time.Time `json:"deletion_date,omitempty"`
	BackupRetentionEnd *time.Time `json:"backup_retention_end,omitempty"`
}

// Registry is the handler-registration surface of the orchestrator.
type Registry interface {
	RegisterHandler(taskType string, h task.Handler)
}

// Service implements the retention maintenance jobs. The resource monitor
// is started for the duration of each bulk job and stopped when it ends;
// pass a nil monitor to run without adaptive tuning (the subprocess worker
// does this).
type Service struct {
	cfg       config.RetentionConfig
	tenants   TenantStore
	backups   BackupStore
	processor *batch.Processor
	tunables  *resource.Tunables
	monitor   *resource.Monitor
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewService creates the retention service.
func NewService(
	cfg config.RetentionConfig,
	tenants TenantStore,
	backups BackupStore,
	processor *batch.Processor,
	tunables *resource.Tunables,
	monitor *resource.Monitor,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		tenants:   tenants,
		backups:   backups,
		processor: processor,
		tunables:  tunables,
		monitor:   monitor,
		clock:     clock,
		logger:    logger.With("component", "retention"),
	}
}

// RegisterHandlers binds the maintenance jobs as orchestrator task types.
// The lock key defaults to the task type, which is exactly the exclusion
// the jobs need.
func (s *Service) RegisterHandlers(r Registry) {
	r.RegisterHandler(TaskTypeMark, func(ctx context.Context, _ *task.Task) (any, error) {
		return s.MarkExpiredDataForDeletion(ctx)
	})
	r.RegisterHandler(TaskTypeDelete, func(ctx context.Context, _ *task.Task) (any, error) {
		return s.DeleteExpiredData(ctx)
	})
	r.RegisterHandler(TaskTypeRecover, func(ctx context.Context, t *task.Task) (any, error) {
		raw, _ := t.Payload["tenant_id"].(string)
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid tenant_id in payload: %w", err)
		}
		return s.RecoverTeamData(ctx, id)
	})
}

// MarkExpiredDataForDeletion moves grace-expired tenants to
// PENDING_DELETION with a deletion date one retention period out. The
// store's status filter excludes already-marked tenants, so a second run
// over the same population marks nothing.
func (s *Service) MarkExpiredDataForDeletion(ctx context.Context) (*batch.Result, error) {
	s.startMonitor(ctx)
	defer s.stopMonitor()

	now := s.clock.Now().UTC()
	tenants, err := s.collect(ctx, func(ctx context.Context, limit, offset int) ([]*Tenant, error) {
		return s.tenants.ListGraceExpired(ctx, now, limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list grace-expired tenants: %w", err)
	}

	deletionDate := now.AddDate(0, 0, s.cfg.RetentionPeriodDays)
	s.logger.Info("marking expired tenants for deletion",
		"tenants", len(tenants),
		"deletion_date", deletionDate)

	res, err := batch.Process(ctx, s.processor, tenants,
		func(ctx context.Context, chunk []*Tenant) error {
			for _, t := range chunk {
				if err := s.tenants.MarkPendingDeletion(ctx, t.ID, deletionDate); err != nil {
					return fmt.Errorf("failed to mark tenant %s: %w", t.ID, err)
				}
			}
			return nil
		},
		batch.Options{
			Tunables:    s.tunables,
			Concurrency: s.tunables.Concurrency(),
		})
	s.logJobResult("mark", res, err)
	return res, err
}

// DeleteExpiredData backs up and deletes tenants past their deletion
// date. Backups are created strictly sequentially within a chunk, and the
// chunking itself is a scaled-down view of the live tunables. A tenant is
// only marked deleted after its backup succeeded.
func (s *Service) DeleteExpiredData(ctx context.Context) (*batch.Result, error) {
	s.startMonitor(ctx)
	defer s.stopMonitor()

	now := s.clock.Now().UTC()
	tenants, err := s.collect(ctx, func(ctx context.Context, limit, offset int) ([]*Tenant, error) {
		return s.tenants.ListPastDeletion(ctx, now, limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants past deletion date: %w", err)
	}

	backupEnd := now.AddDate(0, 0, s.cfg.BackupRetentionDays)
	s.logger.Info("deleting expired tenant data",
		"tenants", len(tenants),
		"backup_retention_end", backupEnd)

	concurrency := s.tunables.Concurrency() / 2
	if concurrency < 1 {
		concurrency = 1
	}

	res, err := batch.Process(ctx, s.processor, tenants,
		func(ctx context.Context, chunk []*Tenant) error {
			for _, t := range chunk {
				artifactID, err := s.backups.CreateBackup(ctx, t)
				if err != nil {
					return fmt.Errorf("%w: tenant %s: %v", ErrBackupFailed, t.ID, err)
				}
				if err := s.tenants.MarkDeleted(ctx, t.ID, backupEnd); err != nil {
					return fmt.Errorf("failed to mark tenant %s deleted: %w", t.ID, err)
				}
				s.logger.Info("tenant data deleted",
					"tenant_id", t.ID,
					"backup_artifact", artifactID)
			}
			return nil
		},
		batch.Options{
			Tunables:    resource.NewScaled(s.tunables, deleteSizeDiv, deleteDelayMul),
			Concurrency: concurrency,
		})
	s.logJobResult("delete", res, err)
	return res, err
}

// RecoverTeamData restores a tenant scheduled for or past deletion. From
// PENDING_DELETION the revert is unconditional; from DELETED it succeeds
// only while the backup-retention window is open.
func (s *Service) RecoverTeamData(ctx context.Context, tenantID uuid.UUID) (*RecoveryResult, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	res := &RecoveryResult{TenantID: tenantID, Status: t.Status}

	switch {
	case t.Status == StatusPendingDeletion:
		// Nothing was deleted yet, so the revert needs no backup.
	case t.Status == StatusDeleted && t.Recoverable(now):
	case t.Status == StatusDeleted:
		res.Message = "backup retention window has passed, data is unrecoverable"
		s.logger.Warn("tenant recovery refused",
			"tenant_id", tenantID,
			"backup_retention_end", t.BackupRetentionEnd)
		return res, nil
	default:
		res.Message = fmt.Sprintf("tenant is not scheduled for deletion (status %s)", t.Status)
		return res, nil
	}

	if err := s.tenants.Reactivate(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("failed to reactivate tenant %s: %w", tenantID, err)
	}

	res.Success = true
	res.Status = StatusActive
	s.logger.Info("tenant data recovered", "tenant_id", tenantID, "previous_status", t.Status)
	return res, nil
}

// CheckDataRetentionStatus derives the tenant's effective retention state
// from its subscription end date and the configured windows. Persisted
// PENDING_DELETION and DELETED states are authoritative; everything
// earlier is computed, so the report is correct even before the mark job
// has run.
func (s *Service) CheckDataRetentionStatus(ctx context.Context, tenantID uuid.UUID) (*StatusReport, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		TenantID:           t.ID,
		Status:             t.Status,
		SubscriptionEnd:    t.SubscriptionEndDate,
		DeletionDate:       t.DeletionDate,
		BackupRetentionEnd: t.BackupRetentionEnd,
	}

	if t.Status == StatusPendingDeletion || t.Status == StatusDeleted {
		return report, nil
	}

	now := s.clock.Now().UTC()
	if t.SubscriptionEndDate == nil || now.Before(*t.SubscriptionEndDate) {
		report.Status = StatusActive
		return report, nil
	}

	graceEnd := t.SubscriptionEndDate.AddDate(0, 0, s.cfg.GracePeriodDays)
	retentionEnd := graceEnd.AddDate(0, 0, s.cfg.RetentionPeriodDays)
	report.GraceEnd = &graceEnd
	report.RetentionEnd = &retentionEnd

	if !now.After(graceEnd) {
		report.Status = StatusGracePeriod
	} else {
		report.Status = StatusRetentionPeriod
	}
	return report, nil
}

// collect drains a paginated listing into one slice before processing, so
// batch mutations cannot shift the pagination under the query.
func (s *Service) collect(ctx context.Context, list func(ctx context.Context, limit, offset int) ([]*Tenant, error)) ([]*Tenant, error) {
	var all []*Tenant
	for offset := 0; ; offset += s.cfg.PageSize {
		page, err := list(ctx, s.cfg.PageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < s.cfg.PageSize {
			return all, nil
		}
	}
}

func (s *Service) startMonitor(ctx context.Context) {
	if s.monitor != nil {
		s.monitor.Start(ctx)
	}
}

func (s *Service) stopMonitor() {
	if s.monitor != nil {
		s.monitor.Stop()
	}
}

func (s *Service) logJobResult(job string, res *batch.Result, err error) {
	if res == nil {
		return
	}
	s.logger.Info("retention job finished",
		"job", job,
		"total", res.TotalItems,
		"succeeded", res.SuccessfulItems,
		"failed", res.FailedItems,
		"batches", res.Batches,
		"duration", res.Duration,
		"aborted", err != nil)
}
