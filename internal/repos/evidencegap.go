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

type EvidenceGapRepo interface {
	// Open creates or reopens the gap of the given kind on the element.
	// Returns the gap and whether the call changed its state.
	Open(ctx context.Context, tx *gorm.DB, g *domain.EvidenceGap) (*domain.EvidenceGap, bool, error)
	Close(ctx context.Context, tx *gorm.DB, elementID uuid.UUID, gapKind string) (bool, error)
	GetOpenByElementID(ctx context.Context, tx *gorm.DB, elementID uuid.UUID) ([]*domain.EvidenceGap, error)
	GetOpenByEngagement(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID) ([]*domain.EvidenceGap, error)
}

type evidenceGapRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEvidenceGapRepo(db *gorm.DB, baseLog *logger.Logger) EvidenceGapRepo {
	return &evidenceGapRepo{db: db, log: baseLog.With("repo", "EvidenceGapRepo")}
}

func (r *evidenceGapRepo) Open(ctx context.Context, tx *gorm.DB, g *domain.EvidenceGap) (*domain.EvidenceGap, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var existing domain.EvidenceGap
	err := transaction.WithContext(ctx).
		Where("element_id = ? AND gap_kind = ?", g.ElementID, g.GapKind).
		First(&existing).Error
	if err == nil {
		if existing.Status == domain.GapOpen {
			return &existing, false, nil
		}
		now := time.Now()
		if uerr := transaction.WithContext(ctx).
			Model(&domain.EvidenceGap{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"status":     domain.GapOpen,
				"detail":     g.Detail,
				"opened_at":  now,
				"closed_at":  nil,
				"updated_at": now,
			}).Error; uerr != nil {
			return nil, false, uerr
		}
		existing.Status = domain.GapOpen
		return &existing, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	if cerr := transaction.WithContext(ctx).Create(g).Error; cerr != nil {
		return nil, false, cerr
	}
	return g, true, nil
}

func (r *evidenceGapRepo) Close(ctx context.Context, tx *gorm.DB, elementID uuid.UUID, gapKind string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&domain.EvidenceGap{}).
		Where("element_id = ? AND gap_kind = ? AND status = ?", elementID, gapKind, domain.GapOpen).
		Updates(map[string]interface{}{
			"status":     domain.GapClosed,
			"closed_at":  now,
			"updated_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *evidenceGapRepo) GetOpenByElementID(ctx context.Context, tx *gorm.DB, elementID uuid.UUID) ([]*domain.EvidenceGap, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.EvidenceGap
	if err := transaction.WithContext(ctx).
		Where("element_id = ? AND status = ?", elementID, domain.GapOpen).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *evidenceGapRepo) GetOpenByEngagement(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID) ([]*domain.EvidenceGap, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.EvidenceGap
	if err := transaction.WithContext(ctx).
		Where("engagement_id = ? AND status = ?", engagementID, domain.GapOpen).
		Order("opened_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
