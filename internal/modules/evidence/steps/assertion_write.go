package steps

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
)

// ResolvedClaim is a validated candidate bound to its resolved element.
type ResolvedClaim struct {
	ElementID     uuid.UUID
	Claim         domain.ClaimPayload
	Confidence    float64
	Provisional   bool
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
	ExtractorName string
	ExtractorVer  string
}

// WriteResult reports what an assertion write pass actually did.
type WriteResult struct {
	Created []*domain.Assertion
	Skipped int
	Touched []uuid.UUID
}

// WriteAssertions persists claims idempotently: a (fragment, claim hash)
// pair that already exists is skipped, so re-running a fragment is a no-op.
// All creates go through the caller's transaction so a canceled job leaves
// either the whole claim set or none of it.
// Returns the distinct element ids touched so callers know what to rescore.
func WriteAssertions(ctx context.Context, d *Deps, tx *gorm.DB, item *domain.EvidenceItem, frag *domain.EvidenceFragment, claims []ResolvedClaim, now time.Time) (WriteResult, error) {
	var res WriteResult
	touched := map[uuid.UUID]bool{}

	for _, rc := range claims {
		hash := rc.Claim.Hash()
		existing, err := d.Assertions.GetByFragmentAndHash(ctx, tx, frag.ID, hash)
		if err != nil {
			return res, err
		}
		if existing != nil {
			res.Skipped++
			touched[existing.ElementID] = true
			continue
		}

		a := &domain.Assertion{
			EngagementID:     frag.EngagementID,
			ElementID:        rc.ElementID,
			FragmentID:       frag.ID,
			EvidenceItemID:   item.ID,
			ClaimKind:        rc.Claim.Kind,
			Claim:            domain.MustJSON(rc.Claim),
			ClaimHash:        hash,
			EvidenceCategory: item.Category,
			ExtractorName:    rc.ExtractorName,
			ExtractorVersion: rc.ExtractorVer,
			Confidence:       clamp01(rc.Confidence),
			Provisional:      rc.Provisional,
			EffectiveFrom:    rc.EffectiveFrom,
			EffectiveTo:      rc.EffectiveTo,
			AssertedAt:       now,
		}
		created, err := d.Assertions.Create(ctx, tx, a)
		if err != nil {
			return res, err
		}
		res.Created = append(res.Created, created)
		touched[rc.ElementID] = true
	}

	for id := range touched {
		res.Touched = append(res.Touched, id)
	}
	return res, nil
}
