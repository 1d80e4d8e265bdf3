package steps

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
)

func TestWriteAssertionsIdempotent(t *testing.T) {
	assertions := newFakeAssertionRepo()
	d := &Deps{Assertions: assertions}

	eng := uuid.New()
	item := &domain.EvidenceItem{ID: uuid.New(), EngagementID: eng, Category: domain.CategoryDocuments}
	frag := &domain.EvidenceFragment{ID: uuid.New(), EngagementID: eng, EvidenceItemID: item.ID}
	element := uuid.New()

	claims := []ResolvedClaim{
		{
			ElementID:  element,
			Claim:      domain.ClaimPayload{Kind: domain.ClaimExistence, Subject: "approve invoice"},
			Confidence: 0.7,
		},
		{
			ElementID: element,
			Claim: domain.ClaimPayload{
				Kind: domain.ClaimSequence, Subject: "approve invoice", Object: "post payment", Direction: domain.SeqPrecedes,
			},
			Confidence: 0.8,
		},
	}

	now := time.Now()
	first, err := WriteAssertions(context.Background(), d, nil, item, frag, claims, now)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if len(first.Created) != 2 || first.Skipped != 0 {
		t.Fatalf("expected 2 created on first pass, got %+v", first)
	}
	if len(first.Touched) != 1 || first.Touched[0] != element {
		t.Fatalf("expected one touched element, got %+v", first.Touched)
	}

	second, err := WriteAssertions(context.Background(), d, nil, item, frag, claims, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(second.Created) != 0 || second.Skipped != 2 {
		t.Fatalf("replay must create nothing, got %+v", second)
	}
	if len(assertions.rows) != 2 {
		t.Fatalf("store should still hold 2 assertions, got %d", len(assertions.rows))
	}
}

func TestWriteAssertionsCarriesEvidenceContext(t *testing.T) {
	assertions := newFakeAssertionRepo()
	d := &Deps{Assertions: assertions}

	eng := uuid.New()
	sourceDate := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	item := &domain.EvidenceItem{ID: uuid.New(), EngagementID: eng, Category: domain.CategoryStructuredData}
	frag := &domain.EvidenceFragment{ID: uuid.New(), EngagementID: eng, EvidenceItemID: item.ID}

	res, err := WriteAssertions(context.Background(), d, nil, item, frag, []ResolvedClaim{{
		ElementID:     uuid.New(),
		Claim:         domain.ClaimPayload{Kind: domain.ClaimExistence, Subject: "post payment"},
		Confidence:    1.7, // out of range on purpose
		Provisional:   true,
		EffectiveFrom: &sourceDate,
		ExtractorName: "rules",
		ExtractorVer:  "1.0.0",
	}}, time.Now())
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	a := res.Created[0]
	if a.EvidenceCategory != domain.CategoryStructuredData {
		t.Fatalf("assertion should inherit the item category, got %s", a.EvidenceCategory)
	}
	if a.Confidence != 1 {
		t.Fatalf("confidence should clamp to 1, got %v", a.Confidence)
	}
	if !a.Provisional {
		t.Fatalf("provisional flag lost")
	}
	if a.EffectiveFrom == nil || !a.EffectiveFrom.Equal(sourceDate) {
		t.Fatalf("effective_from should carry the source date")
	}
}

func TestWriteAssertionsForwardsTransaction(t *testing.T) {
	assertions := newFakeAssertionRepo()
	d := &Deps{Assertions: assertions}

	eng := uuid.New()
	item := &domain.EvidenceItem{ID: uuid.New(), EngagementID: eng, Category: domain.CategoryDocuments}
	frag := &domain.EvidenceFragment{ID: uuid.New(), EngagementID: eng, EvidenceItemID: item.ID}
	tx := &gorm.DB{}

	_, err := WriteAssertions(context.Background(), d, tx, item, frag, []ResolvedClaim{{
		ElementID:  uuid.New(),
		Claim:      domain.ClaimPayload{Kind: domain.ClaimExistence, Subject: "approve invoice"},
		Confidence: 0.7,
	}}, time.Now())
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if assertions.lastTx != tx {
		t.Fatalf("writes must run on the caller's transaction handle")
	}
}

func TestClaimHashStability(t *testing.T) {
	a := domain.ClaimPayload{Kind: domain.ClaimSequence, Subject: "Approve Invoice", Object: "Post Payment", Direction: "precedes"}
	b := domain.ClaimPayload{Kind: domain.ClaimSequence, Subject: "  approve invoice ", Object: "post payment", Direction: "PRECEDES"}
	if a.Hash() != b.Hash() {
		t.Fatalf("hash must be case and whitespace insensitive")
	}
	c := a
	c.Direction = "follows"
	if a.Hash() == c.Hash() {
		t.Fatalf("different directions must hash differently")
	}
}
