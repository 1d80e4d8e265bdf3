package steps

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/kmflow/kmflow-backend/internal/domain"
)

func resolveDeps() (*Deps, *fakeElementRepo) {
	elements := newFakeElementRepo()
	return &Deps{Elements: elements}, elements
}

func seedElement(f *fakeElementRepo, engagementID uuid.UUID, kind, name string, vec []float32) *domain.ProcessElement {
	el := &domain.ProcessElement{
		ID:           uuid.New(),
		EngagementID: engagementID,
		Kind:         kind,
		Name:         name,
		NameNorm:     NormalizeName(name),
	}
	if vec != nil {
		el.Embedding = datatypes.JSON(domain.MustJSON(vec))
	}
	f.rows[el.ID] = el
	return el
}

func TestResolveElementExactMatch(t *testing.T) {
	d, elements := resolveDeps()
	eng := uuid.New()
	existing := seedElement(elements, eng, domain.KindActivity, "Approve Invoice", nil)

	res, err := ResolveElement(context.Background(), d, nil, NewAliasIndex(nil), eng, domain.KindActivity, "approve   invoice!", nil, domain.DefaultEngagementConfig())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Created || res.Element.ID != existing.ID || res.MatchedBy != "exact" {
		t.Fatalf("expected exact match onto existing element, got %+v", res)
	}
}

func TestResolveElementAliasMatch(t *testing.T) {
	d, elements := resolveDeps()
	eng := uuid.New()
	existing := seedElement(elements, eng, domain.KindRole, "Finance Controller", nil)

	aliases := NewAliasIndex([]*domain.NamingAlias{{
		Canonical: "Finance Controller",
		Aliases:   datatypes.JSON(domain.MustJSON([]string{"FC"})),
	}})
	res, err := ResolveElement(context.Background(), d, nil, aliases, eng, domain.KindRole, "FC", nil, domain.DefaultEngagementConfig())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Created || res.Element.ID != existing.ID || res.MatchedBy != "alias" {
		t.Fatalf("expected alias match, got %+v", res)
	}
}

func TestResolveElementEmbeddingMatch(t *testing.T) {
	d, elements := resolveDeps()
	eng := uuid.New()
	existing := seedElement(elements, eng, domain.KindActivity, "Approve Invoice", []float32{1, 0, 0, 0})
	seedElement(elements, eng, domain.KindActivity, "Post Payment", []float32{0, 1, 0, 0})

	res, err := ResolveElement(context.Background(), d, nil, NewAliasIndex(nil), eng, domain.KindActivity, "Invoice Approval", []float32{0.99, 0.05, 0, 0}, domain.DefaultEngagementConfig())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Created || res.Element.ID != existing.ID || res.MatchedBy != "embedding" {
		t.Fatalf("expected embedding match, got %+v", res)
	}
	if res.Similarity < domain.DefaultSimilarityMinScore {
		t.Fatalf("similarity below floor should not have matched: %v", res.Similarity)
	}
}

func TestResolveElementAmbiguousCreatesMergeCandidate(t *testing.T) {
	d, elements := resolveDeps()
	eng := uuid.New()
	// Two near-identical candidates straddle the new mention.
	seedElement(elements, eng, domain.KindActivity, "Approve Invoice", []float32{1, 0.10, 0, 0})
	seedElement(elements, eng, domain.KindActivity, "Approve Invoices", []float32{1, 0.11, 0, 0})

	res, err := ResolveElement(context.Background(), d, nil, NewAliasIndex(nil), eng, domain.KindActivity, "Invoice Approval", []float32{1, 0.105, 0, 0}, domain.DefaultEngagementConfig())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Created {
		t.Fatalf("ambiguous match must never merge silently, got %+v", res)
	}
	if !res.MergeCandidate || !res.Element.MergeCandidate {
		t.Fatalf("ambiguous creation should flag merge review, got %+v", res)
	}
}

func TestResolveElementBelowFloorCreatesClean(t *testing.T) {
	d, elements := resolveDeps()
	eng := uuid.New()
	seedElement(elements, eng, domain.KindActivity, "Post Payment", []float32{0, 1, 0, 0})

	res, err := ResolveElement(context.Background(), d, nil, NewAliasIndex(nil), eng, domain.KindActivity, "Reconcile Ledger", []float32{1, 0, 0, 0}, domain.DefaultEngagementConfig())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Created || res.MergeCandidate {
		t.Fatalf("dissimilar mention should create a clean element, got %+v", res)
	}
	if res.Element.Brightness != domain.BrightnessDark || res.Element.EvidenceGrade != domain.GradeU {
		t.Fatalf("new element starts dark/U, got %s/%s", res.Element.Brightness, res.Element.EvidenceGrade)
	}
}
