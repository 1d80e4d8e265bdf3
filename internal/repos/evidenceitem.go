package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

type EvidenceItemRepo interface {
	Create(ctx context.Context, tx *gorm.DB, item *domain.EvidenceItem) (*domain.EvidenceItem, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.EvidenceItem, error)
	GetByContentHash(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID, contentHash string) (*domain.EvidenceItem, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.EvidenceItem, error)
	CountBySourceSystem(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID, sourceSystem string) (int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type evidenceItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEvidenceItemRepo(db *gorm.DB, baseLog *logger.Logger) EvidenceItemRepo {
	return &evidenceItemRepo{db: db, log: baseLog.With("repo", "EvidenceItemRepo")}
}

func (r *evidenceItemRepo) Create(ctx context.Context, tx *gorm.DB, item *domain.EvidenceItem) (*domain.EvidenceItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *evidenceItemRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.EvidenceItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var item domain.EvidenceItem
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *evidenceItemRepo) GetByContentHash(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID, contentHash string) (*domain.EvidenceItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var item domain.EvidenceItem
	err := transaction.WithContext(ctx).
		Where("engagement_id = ? AND content_hash = ?", engagementID, contentHash).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *evidenceItemRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.EvidenceItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.EvidenceItem
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *evidenceItemRepo) CountBySourceSystem(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID, sourceSystem string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&domain.EvidenceItem{}).
		Where("engagement_id = ? AND source_system = ?", engagementID, sourceSystem).
		Count(&n).Error
	return n, err
}

func (r *evidenceItemRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&domain.EvidenceItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}
