package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

type EvidenceFragmentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, fragments []*domain.EvidenceFragment) ([]*domain.EvidenceFragment, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.EvidenceFragment, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.EvidenceFragment, error)
	GetByEvidenceItemID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) ([]*domain.EvidenceFragment, error)
	CountPriorBySource(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID, sourceItemIDs []uuid.UUID) (int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	MarkSuperseded(ctx context.Context, tx *gorm.DB, id, byID uuid.UUID) error
}

type evidenceFragmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEvidenceFragmentRepo(db *gorm.DB, baseLog *logger.Logger) EvidenceFragmentRepo {
	return &evidenceFragmentRepo{db: db, log: baseLog.With("repo", "EvidenceFragmentRepo")}
}

func (r *evidenceFragmentRepo) Create(ctx context.Context, tx *gorm.DB, fragments []*domain.EvidenceFragment) ([]*domain.EvidenceFragment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(fragments) == 0 {
		return []*domain.EvidenceFragment{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&fragments).Error; err != nil {
		return nil, err
	}
	return fragments, nil
}

func (r *evidenceFragmentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.EvidenceFragment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var f domain.EvidenceFragment
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *evidenceFragmentRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.EvidenceFragment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.EvidenceFragment
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *evidenceFragmentRepo) GetByEvidenceItemID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) ([]*domain.EvidenceFragment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.EvidenceFragment
	if err := transaction.WithContext(ctx).
		Where("evidence_item_id = ?", itemID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *evidenceFragmentRepo) CountPriorBySource(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID, sourceItemIDs []uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sourceItemIDs) == 0 {
		return 0, nil
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&domain.EvidenceFragment{}).
		Where("engagement_id = ? AND evidence_item_id IN ? AND scored_at IS NOT NULL", engagementID, sourceItemIDs).
		Count(&n).Error
	return n, err
}

func (r *evidenceFragmentRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&domain.EvidenceFragment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *evidenceFragmentRepo) MarkSuperseded(ctx context.Context, tx *gorm.DB, id, byID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&domain.EvidenceFragment{}).
		Where("id = ? AND superseded_by IS NULL", id).
		Update("superseded_by", byID).Error
}
