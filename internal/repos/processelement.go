package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

type ProcessElementRepo interface {
	Create(ctx context.Context, tx *gorm.DB, e *domain.ProcessElement) (*domain.ProcessElement, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.ProcessElement, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.ProcessElement, error)
	GetByNameNorm(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID, kind, nameNorm string) (*domain.ProcessElement, error)
	GetByEngagementAndKind(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID, kind string) ([]*domain.ProcessElement, error)
	GetByEngagement(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID) ([]*domain.ProcessElement, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type processElementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessElementRepo(db *gorm.DB, baseLog *logger.Logger) ProcessElementRepo {
	return &processElementRepo{db: db, log: baseLog.With("repo", "ProcessElementRepo")}
}

func (r *processElementRepo) Create(ctx context.Context, tx *gorm.DB, e *domain.ProcessElement) (*domain.ProcessElement, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

func (r *processElementRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.ProcessElement, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var e domain.ProcessElement
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *processElementRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.ProcessElement, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.ProcessElement
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *processElementRepo) GetByNameNorm(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID, kind, nameNorm string) (*domain.ProcessElement, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var e domain.ProcessElement
	err := transaction.WithContext(ctx).
		Where("engagement_id = ? AND kind = ? AND name_norm = ?", engagementID, kind, nameNorm).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *processElementRepo) GetByEngagementAndKind(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID, kind string) ([]*domain.ProcessElement, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.ProcessElement
	if err := transaction.WithContext(ctx).
		Where("engagement_id = ? AND kind = ?", engagementID, kind).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *processElementRepo) GetByEngagement(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID) ([]*domain.ProcessElement, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.ProcessElement
	if err := transaction.WithContext(ctx).
		Where("engagement_id = ?", engagementID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *processElementRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&domain.ProcessElement{}).
		Where("id = ?", id).
		Updates(updates).Error
}
