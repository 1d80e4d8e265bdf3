package steps

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kmflow/kmflow-backend/internal/domain"
)

type consensusFixture struct {
	in ConsensusInput
}

func newConsensusFixture(now time.Time) *consensusFixture {
	return &consensusFixture{in: ConsensusInput{
		FragmentQuality: map[uuid.UUID]float64{},
		ItemValidated:   map[uuid.UUID]bool{},
		ItemSourceDate:  map[uuid.UUID]*time.Time{},
		ExpectedSources: 3,
		HalfLifeDays:    1095,
		Now:             now,
	}}
}

func (f *consensusFixture) addAssertion(category string, quality float64, sourceAge time.Duration, validated bool) *domain.Assertion {
	a := &domain.Assertion{
		ID:               uuid.New(),
		ElementID:        uuid.New(),
		FragmentID:       uuid.New(),
		EvidenceItemID:   uuid.New(),
		ClaimKind:        domain.ClaimExistence,
		EvidenceCategory: category,
		Confidence:       0.8,
	}
	f.in.Assertions = append(f.in.Assertions, a)
	f.in.FragmentQuality[a.FragmentID] = quality
	f.in.ItemValidated[a.EvidenceItemID] = validated
	date := f.in.Now.Add(-sourceAge)
	f.in.ItemSourceDate[a.EvidenceItemID] = &date
	return a
}

func TestComputeConsensusEmptySet(t *testing.T) {
	got := ComputeConsensus(ConsensusInput{Now: time.Now()})
	if got.Confidence != 0 || got.Grade != domain.GradeU || got.Brightness != domain.BrightnessDark {
		t.Fatalf("empty set should be zero/U/dark, got %+v", got)
	}
}

func TestComputeConsensusThreeAgreeingSystemSources(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f := newConsensusFixture(now)
	for i := 0; i < 3; i++ {
		f.addAssertion(domain.CategoryStructuredData, 0.9, 24*time.Hour, false)
	}

	got := ComputeConsensus(f.in)
	if got.Coverage != 1 {
		t.Fatalf("three of three expected sources should give full coverage, got %v", got.Coverage)
	}
	if got.Agreement != 1 {
		t.Fatalf("no conflicts should give full agreement, got %v", got.Agreement)
	}
	if got.Confidence < 0.95 {
		t.Fatalf("expected near-ceiling confidence, got %v", got.Confidence)
	}
	if got.Brightness != domain.BrightnessBright {
		t.Fatalf("expected bright, got %s", got.Brightness)
	}
	if got.Grade != domain.GradeB {
		t.Fatalf("multi-source unvalidated should be grade B, got %s", got.Grade)
	}
}

func TestComputeConsensusConflictDimsElement(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f := newConsensusFixture(now)
	f.addAssertion(domain.CategoryStructuredData, 0.8, 24*time.Hour, false)
	f.addAssertion(domain.CategoryCommunications, 0.6, 24*time.Hour, false)
	f.in.GenuineConflicts = 1

	got := ComputeConsensus(f.in)
	if got.Agreement != 0 {
		t.Fatalf("one conflict over one pair should zero agreement, got %v", got.Agreement)
	}
	if got.Brightness != domain.BrightnessDim {
		t.Fatalf("conflicted two-source element should be dim, got %s (conf=%v)", got.Brightness, got.Confidence)
	}
}

func TestComputeConsensusSingleSourceCeiling(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f := newConsensusFixture(now)
	f.addAssertion(domain.CategoryStructuredData, 1.0, time.Hour, false)

	got := ComputeConsensus(f.in)
	if got.Coverage > 0.34 {
		t.Fatalf("one of three expected sources caps coverage at a third, got %v", got.Coverage)
	}
	// A perfect single source tops out around 0.80: the coverage term
	// withholds two thirds of its weight until more sources arrive.
	if got.Confidence > 0.81 {
		t.Fatalf("single-source confidence should cap near 0.80, got %v", got.Confidence)
	}
	if got.Grade != domain.GradeC {
		t.Fatalf("confident single source should be grade C, got %s", got.Grade)
	}

	// Adding a second perfect source moves the score by no more than the
	// coverage term's single-source share.
	f.addAssertion(domain.CategoryStructuredData, 1.0, time.Hour, false)
	two := ComputeConsensus(f.in)
	if delta := two.Confidence - got.Confidence; delta > wCoverage/3+1e-9 {
		t.Fatalf("second source moved confidence by %v, more than one coverage share", delta)
	}
}

func TestComputeConsensusGradeA(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f := newConsensusFixture(now)
	f.addAssertion(domain.CategoryStructuredData, 0.9, time.Hour, true)
	f.addAssertion(domain.CategoryDocuments, 0.9, time.Hour, false)

	got := ComputeConsensus(f.in)
	if got.Grade != domain.GradeA {
		t.Fatalf("validated multi-source should be grade A, got %s", got.Grade)
	}
}

func TestBrightnessGradeCap(t *testing.T) {
	if got := domain.BrightnessFor(0.9, domain.GradeD); got != domain.BrightnessDim {
		t.Fatalf("grade D caps brightness at dim, got %s", got)
	}
	if got := domain.BrightnessFor(0.9, domain.GradeU); got != domain.BrightnessDim {
		t.Fatalf("grade U caps brightness at dim, got %s", got)
	}
	if got := domain.BrightnessFor(0.3, domain.GradeD); got != domain.BrightnessDark {
		t.Fatalf("dark still applies below the floor, got %s", got)
	}
	if got := domain.BrightnessFor(0.9, domain.GradeB); got != domain.BrightnessBright {
		t.Fatalf("grade B is not capped, got %s", got)
	}
}

func TestComputeConsensusOrderIndependent(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f := newConsensusFixture(now)
	f.addAssertion(domain.CategoryStructuredData, 0.9, time.Hour, false)
	f.addAssertion(domain.CategoryDocuments, 0.5, 400*24*time.Hour, false)
	f.addAssertion(domain.CategoryCommunications, 0.3, 900*24*time.Hour, true)

	forward := ComputeConsensus(f.in)

	reversed := f.in
	reversed.Assertions = []*domain.Assertion{f.in.Assertions[2], f.in.Assertions[0], f.in.Assertions[1]}
	backward := ComputeConsensus(reversed)

	if forward.Confidence != backward.Confidence || forward.Grade != backward.Grade {
		t.Fatalf("scoring must not depend on assertion order: %+v vs %+v", forward, backward)
	}
}
