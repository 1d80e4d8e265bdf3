package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

type ContradictionRepo interface {
	// Upsert records a detection idempotently: a new row on first sight,
	// a refreshed last_detected_at / severity on re-detection. Returns the
	// row and whether it was newly created.
	Upsert(ctx context.Context, tx *gorm.DB, c *domain.Contradiction) (*domain.Contradiction, bool, error)
	GetOpenByElementID(ctx context.Context, tx *gorm.DB, elementID uuid.UUID) ([]*domain.Contradiction, error)
	GetByEngagement(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID, status string) ([]*domain.Contradiction, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	AutoCloseStale(ctx context.Context, tx *gorm.DB, elementID uuid.UUID, seenIDs []uuid.UUID) (int64, error)
}

type contradictionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContradictionRepo(db *gorm.DB, baseLog *logger.Logger) ContradictionRepo {
	return &contradictionRepo{db: db, log: baseLog.With("repo", "ContradictionRepo")}
}

func (r *contradictionRepo) Upsert(ctx context.Context, tx *gorm.DB, c *domain.Contradiction) (*domain.Contradiction, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var existing domain.Contradiction
	q := transaction.WithContext(ctx).
		Where("element_id = ? AND mismatch_type = ? AND assertion_a = ?", c.ElementID, c.MismatchType, c.AssertionA)
	if c.AssertionB != nil {
		q = q.Where("assertion_b = ?", *c.AssertionB)
	} else {
		q = q.Where("assertion_b IS NULL")
	}
	err := q.First(&existing).Error
	if err == nil {
		updates := map[string]interface{}{
			"last_detected_at": c.LastDetectedAt,
			"severity":         c.Severity,
			"severity_label":   c.SeverityLabel,
			"resolution":       c.Resolution,
			"detail":           c.Detail,
		}
		if uerr := r.UpdateFields(ctx, transaction, existing.ID, updates); uerr != nil {
			return nil, false, uerr
		}
		existing.LastDetectedAt = c.LastDetectedAt
		existing.Severity = c.Severity
		existing.SeverityLabel = c.SeverityLabel
		existing.Resolution = c.Resolution
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	if cerr := transaction.WithContext(ctx).Create(c).Error; cerr != nil {
		return nil, false, cerr
	}
	return c, true, nil
}

func (r *contradictionRepo) GetOpenByElementID(ctx context.Context, tx *gorm.DB, elementID uuid.UUID) ([]*domain.Contradiction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Contradiction
	if err := transaction.WithContext(ctx).
		Where("element_id = ? AND status = ?", elementID, domain.ContradictionOpen).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *contradictionRepo) GetByEngagement(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID, status string) ([]*domain.Contradiction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Where("engagement_id = ?", engagementID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var results []*domain.Contradiction
	if err := q.Order("severity DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *contradictionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&domain.Contradiction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// AutoCloseStale closes open contradictions on an element that the latest
// detection pass no longer produced, e.g. after one side was superseded.
func (r *contradictionRepo) AutoCloseStale(ctx context.Context, tx *gorm.DB, elementID uuid.UUID, seenIDs []uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	q := transaction.WithContext(ctx).
		Model(&domain.Contradiction{}).
		Where("element_id = ? AND status = ?", elementID, domain.ContradictionOpen)
	if len(seenIDs) > 0 {
		q = q.Where("id NOT IN ?", seenIDs)
	}
	res := q.Updates(map[string]interface{}{
		"status":      domain.ContradictionAutoClosed,
		"resolved_at": now,
		"updated_at":  now,
	})
	return res.RowsAffected, res.Error
}
