package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

type AssertionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, a *domain.Assertion) (*domain.Assertion, error)
	GetByFragmentAndHash(ctx context.Context, tx *gorm.DB, fragmentID uuid.UUID, claimHash string) (*domain.Assertion, error)
	GetActiveByElementID(ctx context.Context, tx *gorm.DB, elementID uuid.UUID) ([]*domain.Assertion, error)
	GetActiveByFragmentID(ctx context.Context, tx *gorm.DB, fragmentID uuid.UUID) ([]*domain.Assertion, error)
	GetActiveByEvidenceItemID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) ([]*domain.Assertion, error)
	Supersede(ctx context.Context, tx *gorm.DB, id, byID uuid.UUID) error
	SupersedeByFragment(ctx context.Context, tx *gorm.DB, fragmentID, byFragmentID uuid.UUID) (int64, error)
}

type assertionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssertionRepo(db *gorm.DB, baseLog *logger.Logger) AssertionRepo {
	return &assertionRepo{db: db, log: baseLog.With("repo", "AssertionRepo")}
}

func (r *assertionRepo) Create(ctx context.Context, tx *gorm.DB, a *domain.Assertion) (*domain.Assertion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

func (r *assertionRepo) GetByFragmentAndHash(ctx context.Context, tx *gorm.DB, fragmentID uuid.UUID, claimHash string) (*domain.Assertion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var a domain.Assertion
	err := transaction.WithContext(ctx).
		Where("fragment_id = ? AND claim_hash = ?", fragmentID, claimHash).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assertionRepo) GetActiveByElementID(ctx context.Context, tx *gorm.DB, elementID uuid.UUID) ([]*domain.Assertion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Assertion
	if err := transaction.WithContext(ctx).
		Where("element_id = ? AND superseded_by IS NULL", elementID).
		Order("asserted_at ASC, id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *assertionRepo) GetActiveByFragmentID(ctx context.Context, tx *gorm.DB, fragmentID uuid.UUID) ([]*domain.Assertion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Assertion
	if err := transaction.WithContext(ctx).
		Where("fragment_id = ? AND superseded_by IS NULL", fragmentID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *assertionRepo) GetActiveByEvidenceItemID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) ([]*domain.Assertion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Assertion
	if err := transaction.WithContext(ctx).
		Where("evidence_item_id = ? AND superseded_by IS NULL", itemID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *assertionRepo) Supersede(ctx context.Context, tx *gorm.DB, id, byID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&domain.Assertion{}).
		Where("id = ? AND superseded_by IS NULL", id).
		Update("superseded_by", byID).Error
}

// SupersedeByFragment retires every active assertion from a fragment, used
// when a corrected fragment replaces an earlier parse of the same content.
func (r *assertionRepo) SupersedeByFragment(ctx context.Context, tx *gorm.DB, fragmentID, byFragmentID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&domain.Assertion{}).
		Where("fragment_id = ? AND superseded_by IS NULL", fragmentID).
		Update("superseded_by", byFragmentID)
	return res.RowsAffected, res.Error
}
