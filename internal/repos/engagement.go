package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
	apperrors "github.com/kmflow/kmflow-backend/internal/pkg/errors"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

type EngagementRepo interface {
	Create(ctx context.Context, tx *gorm.DB, e *domain.Engagement) (*domain.Engagement, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Engagement, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type engagementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEngagementRepo(db *gorm.DB, baseLog *logger.Logger) EngagementRepo {
	return &engagementRepo{db: db, log: baseLog.With("repo", "EngagementRepo")}
}

func (r *engagementRepo) Create(ctx context.Context, tx *gorm.DB, e *domain.Engagement) (*domain.Engagement, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

func (r *engagementRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Engagement, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var e domain.Engagement
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("engagement %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *engagementRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&domain.Engagement{}).
		Where("id = ?", id).
		Updates(updates).Error
}
