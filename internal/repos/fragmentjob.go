package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

type FragmentJobRepo interface {
	Enqueue(ctx context.Context, tx *gorm.DB, engagementID, fragmentID uuid.UUID) (*domain.FragmentJob, error)

	// Claims the next job that is runnable:
	// - status=queued
	// - OR status=failed and attempts < maxAttempts and last_error_at older than retryDelay (or NULL)
	// - OR status=running but heartbeat is stale (crash recovery)
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*domain.FragmentJob, error)

	MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause string, maxAttempts int) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	CountByStatus(ctx context.Context, tx *gorm.DB, status string) (int64, error)
}

type fragmentJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFragmentJobRepo(db *gorm.DB, baseLog *logger.Logger) FragmentJobRepo {
	return &fragmentJobRepo{db: db, log: baseLog.With("repo", "FragmentJobRepo")}
}

func (r *fragmentJobRepo) Enqueue(ctx context.Context, tx *gorm.DB, engagementID, fragmentID uuid.UUID) (*domain.FragmentJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var existing domain.FragmentJob
	err := transaction.WithContext(ctx).Where("fragment_id = ?", fragmentID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	job := &domain.FragmentJob{
		EngagementID: engagementID,
		FragmentID:   fragmentID,
		Status:       domain.JobQueued,
	}
	if cerr := transaction.WithContext(ctx).Create(job).Error; cerr != nil {
		return nil, cerr
	}
	return job, nil
}

func (r *fragmentJobRepo) ClaimNextRunnable(
	ctx context.Context,
	tx *gorm.DB,
	maxAttempts int,
	retryDelay time.Duration,
	staleRunning time.Duration,
) (*domain.FragmentJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)

	var claimed *domain.FragmentJob

	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job domain.FragmentJob

		q := txx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
				(
					status = ?
					OR (
						status = ?
						AND attempts < ?
						AND (last_error_at IS NULL OR last_error_at < ?)
					)
					OR (
						status = ?
						AND heartbeat_at IS NOT NULL
						AND heartbeat_at < ?
					)
				)
			`, domain.JobQueued, domain.JobFailed, maxAttempts, retryCutoff, domain.JobRunning, staleCutoff).
			Order("created_at ASC")

		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		uErr := txx.Model(&domain.FragmentJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       domain.JobRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}

		claimed = &job
		return nil
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *fragmentJobRepo) MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&domain.FragmentJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.JobSucceeded,
			"last_error": "",
			"updated_at": now,
		}).Error
}

// MarkFailed records the failure; once attempts reach maxAttempts the job
// moves to dead and stops being claimed.
func (r *fragmentJobRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause string, maxAttempts int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var job domain.FragmentJob
	if err := transaction.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return err
	}
	status := domain.JobFailed
	if job.Attempts >= maxAttempts {
		status = domain.JobDead
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&domain.FragmentJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"last_error":    cause,
			"last_error_at": now,
			"updated_at":    now,
		}).Error
}

func (r *fragmentJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&domain.FragmentJob{}).
		Where("id = ? AND status = ?", id, domain.JobRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *fragmentJobRepo) CountByStatus(ctx context.Context, tx *gorm.DB, status string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&domain.FragmentJob{}).
		Where("status = ?", status).
		Count(&n).Error
	return n, err
}
