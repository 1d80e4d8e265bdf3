package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

type NamingAliasRepo interface {
	Create(ctx context.Context, tx *gorm.DB, a *domain.NamingAlias) (*domain.NamingAlias, error)
	GetByEngagement(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID) ([]*domain.NamingAlias, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type namingAliasRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNamingAliasRepo(db *gorm.DB, baseLog *logger.Logger) NamingAliasRepo {
	return &namingAliasRepo{db: db, log: baseLog.With("repo", "NamingAliasRepo")}
}

func (r *namingAliasRepo) Create(ctx context.Context, tx *gorm.DB, a *domain.NamingAlias) (*domain.NamingAlias, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

func (r *namingAliasRepo) GetByEngagement(ctx context.Context, tx *gorm.DB, engagementID uuid.UUID) ([]*domain.NamingAlias, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.NamingAlias
	if err := transaction.WithContext(ctx).
		Where("engagement_id = ?", engagementID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *namingAliasRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&domain.NamingAlias{}).
		Where("id = ?", id).
		Updates(updates).Error
}
