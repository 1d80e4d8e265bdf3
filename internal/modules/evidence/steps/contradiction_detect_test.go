package steps

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/ontology"
)

func assertionWithClaim(t *testing.T, claim domain.ClaimPayload, category string, conf float64) *domain.Assertion {
	t.Helper()
	return &domain.Assertion{
		ID:               uuid.New(),
		ElementID:        uuid.New(),
		FragmentID:       uuid.New(),
		EvidenceItemID:   uuid.New(),
		ClaimKind:        claim.Kind,
		Claim:            datatypes.JSON(domain.MustJSON(claim)),
		ClaimHash:        claim.Hash(),
		EvidenceCategory: category,
		Confidence:       conf,
	}
}

func TestFindMismatchesSequenceDirectionConflict(t *testing.T) {
	a := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimSequence, Subject: "approve invoice", Object: "Post Payment", Direction: domain.SeqPrecedes,
	}, domain.CategoryStructuredData, 0.8)
	b := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimSequence, Subject: "approve invoice", Object: "post payment", Direction: domain.SeqFollows,
	}, domain.CategoryDocuments, 0.6)

	got := FindMismatches([]*domain.Assertion{a, b})
	if len(got) != 1 || got[0].Type != domain.MismatchSequence {
		t.Fatalf("expected one SEQUENCE_MISMATCH, got %+v", got)
	}
}

func TestFindMismatchesSequenceDifferentCounterpartsNoConflict(t *testing.T) {
	a := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimSequence, Subject: "approve invoice", Object: "post payment", Direction: domain.SeqPrecedes,
	}, domain.CategoryStructuredData, 0.8)
	b := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimSequence, Subject: "approve invoice", Object: "match purchase order", Direction: domain.SeqFollows,
	}, domain.CategoryDocuments, 0.6)

	if got := FindMismatches([]*domain.Assertion{a, b}); len(got) != 0 {
		t.Fatalf("different counterparts should not conflict, got %+v", got)
	}
}

func TestFindMismatchesRoleConflict(t *testing.T) {
	a := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimRole, Subject: "approve invoice", Object: "Finance Controller",
	}, domain.CategoryStructuredData, 0.9)
	b := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimRole, Subject: "approve invoice", Object: "AP Clerk",
	}, domain.CategoryCommunications, 0.5)

	got := FindMismatches([]*domain.Assertion{a, b})
	if len(got) != 1 || got[0].Type != domain.MismatchRole {
		t.Fatalf("expected one ROLE_MISMATCH, got %+v", got)
	}
}

func TestFindMismatchesExistenceDenial(t *testing.T) {
	a := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimExistence, Subject: "manual override",
	}, domain.CategoryDocuments, 0.7)
	b := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimExistence, Subject: "manual override", Negated: true,
	}, domain.CategoryStructuredData, 0.9)

	got := FindMismatches([]*domain.Assertion{a, b})
	if len(got) != 1 || got[0].Type != domain.MismatchExistence {
		t.Fatalf("expected one EXISTENCE_MISMATCH, got %+v", got)
	}
}

func TestFindMismatchesRuleTextConflict(t *testing.T) {
	a := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimRule, Subject: "approve invoice", Object: "approval policy", RuleText: "two approvers above 10k",
	}, domain.CategoryRegulatoryPolicy, 0.8)
	b := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimRule, Subject: "approve invoice", Object: "approval policy", RuleText: "one approver above 10k",
	}, domain.CategoryDocuments, 0.7)

	got := FindMismatches([]*domain.Assertion{a, b})
	if len(got) != 1 || got[0].Type != domain.MismatchRule {
		t.Fatalf("expected one RULE_MISMATCH, got %+v", got)
	}
}

func TestFindMismatchesIOConflict(t *testing.T) {
	a := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimIO, Subject: "post payment", Object: "payment file", Direction: domain.IOConsumes, Counterpart: "approve invoice",
	}, domain.CategoryStructuredData, 0.8)
	b := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimIO, Subject: "post payment", Object: "remittance advice", Direction: domain.IOConsumes, Counterpart: "approve invoice",
	}, domain.CategoryDocuments, 0.6)

	got := FindMismatches([]*domain.Assertion{a, b})
	if len(got) != 1 || got[0].Type != domain.MismatchIO {
		t.Fatalf("expected one IO_MISMATCH, got %+v", got)
	}

	// Opposite directions on the same counterpart describe a normal flow.
	b2 := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimIO, Subject: "post payment", Object: "remittance advice", Direction: domain.IOProduces, Counterpart: "approve invoice",
	}, domain.CategoryDocuments, 0.6)
	if got := FindMismatches([]*domain.Assertion{a, b2}); len(got) != 0 {
		t.Fatalf("produce/consume pair is not a conflict, got %+v", got)
	}
}

func TestFindMismatchesPairOrientationStable(t *testing.T) {
	a := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimRole, Subject: "approve invoice", Object: "Finance Controller",
	}, domain.CategoryStructuredData, 0.9)
	b := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimRole, Subject: "approve invoice", Object: "AP Clerk",
	}, domain.CategoryCommunications, 0.5)

	forward := FindMismatches([]*domain.Assertion{a, b})
	reversed := FindMismatches([]*domain.Assertion{b, a})
	if len(forward) != 1 || len(reversed) != 1 {
		t.Fatalf("expected one mismatch each way, got %d and %d", len(forward), len(reversed))
	}
	// The same conflict must carry the same (A, B) pair no matter which
	// order the scan visited the assertions in.
	if forward[0].A.ID != reversed[0].A.ID || forward[0].B.ID != reversed[0].B.ID {
		t.Fatalf("pair orientation depends on scan order: %s/%s vs %s/%s",
			forward[0].A.ID, forward[0].B.ID, reversed[0].A.ID, reversed[0].B.ID)
	}
	if forward[0].ValueA != reversed[0].ValueA || forward[0].ValueB != reversed[0].ValueB {
		t.Fatalf("conflict values must follow the canonical orientation")
	}
}

func TestControlGapMismatch(t *testing.T) {
	ont, err := ontology.LoadDefault()
	if err != nil {
		t.Fatalf("load ontology: %v", err)
	}
	el := &domain.ProcessElement{ID: uuid.New(), Kind: domain.KindActivity, Name: "Approve Invoice"}

	bare := assertionWithClaim(t, domain.ClaimPayload{Kind: domain.ClaimExistence, Subject: "approve invoice"}, domain.CategoryDocuments, 0.7)
	if _, ok := ControlGapMismatch(ont, el, []*domain.Assertion{bare}); !ok {
		t.Fatalf("activity without rule claims should flag a control gap")
	}

	ruled := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimRule, Subject: "approve invoice", Object: "sox approval control", RuleText: "dual sign-off",
	}, domain.CategoryControlsEvidence, 0.8)
	if _, ok := ControlGapMismatch(ont, el, []*domain.Assertion{bare, ruled}); ok {
		t.Fatalf("governed activity should not flag a control gap")
	}

	role := &domain.ProcessElement{ID: uuid.New(), Kind: domain.KindRole, Name: "AP Clerk"}
	if _, ok := ControlGapMismatch(ont, role, []*domain.Assertion{bare}); ok {
		t.Fatalf("roles carry no control requirement")
	}

	empty := &domain.ProcessElement{ID: uuid.New(), Kind: domain.KindActivity, Name: "Ghost"}
	if _, ok := ControlGapMismatch(ont, empty, nil); ok {
		t.Fatalf("no assertions means nothing to anchor a gap on")
	}
}

func TestClassifyNamingVariantAutoCloses(t *testing.T) {
	a := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimRole, Subject: "approve invoice", Object: "Finance Controller",
	}, domain.CategoryStructuredData, 0.9)
	b := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimRole, Subject: "approve invoice", Object: "FC",
	}, domain.CategoryCommunications, 0.5)

	mismatches := FindMismatches([]*domain.Assertion{a, b})
	if len(mismatches) != 1 {
		t.Fatalf("expected raw mismatch before alias resolution, got %+v", mismatches)
	}

	aliases := NewAliasIndex([]*domain.NamingAlias{{
		Canonical: "Finance Controller",
		Aliases:   datatypes.JSON(domain.MustJSON([]string{"FC", "fin controller"})),
	}})
	c := ClassifyMismatch(mismatches[0], aliases)
	if c.Resolution != domain.ResolutionNamingVariant {
		t.Fatalf("alias-equivalent roles should classify as naming variant, got %s", c.Resolution)
	}
	if c.Status != domain.ContradictionAutoClosed {
		t.Fatalf("naming variants auto-close, got %s", c.Status)
	}
}

func TestClassifyTemporalShift(t *testing.T) {
	from1 := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	to1 := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	from2 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	a := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimRole, Subject: "approve invoice", Object: "AP Clerk",
	}, domain.CategoryDocuments, 0.7)
	a.EffectiveFrom, a.EffectiveTo = &from1, &to1
	b := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimRole, Subject: "approve invoice", Object: "Shared Services",
	}, domain.CategoryStructuredData, 0.8)
	b.EffectiveFrom = &from2

	mismatches := FindMismatches([]*domain.Assertion{a, b})
	if len(mismatches) != 1 {
		t.Fatalf("expected one mismatch, got %+v", mismatches)
	}
	c := ClassifyMismatch(mismatches[0], NewAliasIndex(nil))
	if c.Resolution != domain.ResolutionTemporalShift {
		t.Fatalf("non-overlapping effective ranges should classify as temporal shift, got %s", c.Resolution)
	}
	if c.Status != domain.ContradictionAutoClosed {
		t.Fatalf("temporal shifts auto-close, got %s", c.Status)
	}

	// Missing temporal metadata can never establish a shift.
	b.EffectiveFrom = nil
	c = ClassifyMismatch(mismatches[0], NewAliasIndex(nil))
	if c.Resolution != domain.ResolutionGenuineDisagreement {
		t.Fatalf("absent metadata defaults to genuine disagreement, got %s", c.Resolution)
	}
	if c.Status != domain.ContradictionOpen {
		t.Fatalf("genuine disagreements open for review, got %s", c.Status)
	}
}

func TestClassifySeverityScaling(t *testing.T) {
	a := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimExistence, Subject: "manual override",
	}, domain.CategoryDocuments, 1.0)
	b := assertionWithClaim(t, domain.ClaimPayload{
		Kind: domain.ClaimExistence, Subject: "manual override", Negated: true,
	}, domain.CategoryStructuredData, 1.0)

	mismatches := FindMismatches([]*domain.Assertion{a, b})
	c := ClassifyMismatch(mismatches[0], NewAliasIndex(nil))
	if c.Severity != domain.MismatchWeight(domain.MismatchExistence) {
		t.Fatalf("full-confidence existence conflict should carry the full class weight, got %v", c.Severity)
	}
	if c.Label != domain.SeverityCritical {
		t.Fatalf("expected critical, got %s", c.Label)
	}

	a.Confidence, b.Confidence = 0.3, 0.3
	weak := ClassifyMismatch(FindMismatches([]*domain.Assertion{a, b})[0], NewAliasIndex(nil))
	if weak.Severity >= c.Severity {
		t.Fatalf("weak extractions should produce weaker contradictions")
	}
	if weak.Label == domain.SeverityCritical {
		t.Fatalf("0.3-confidence conflict must not be critical, got %v", weak.Severity)
	}
}
