package steps

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/kmflow/kmflow-backend/internal/domain"
)

func TestCompletenessScore(t *testing.T) {
	empty := &domain.EvidenceFragment{FragmentType: domain.FragmentTypeText, Content: "   "}
	if got := CompletenessScore(empty); got != 0 {
		t.Fatalf("empty fragment should score 0, got %v", got)
	}

	short := &domain.EvidenceFragment{FragmentType: domain.FragmentTypeText, Content: "invoice approval step"}
	if got := CompletenessScore(short); got <= 0 || got >= 0.1 {
		t.Fatalf("three words should score low, got %v", got)
	}

	long := &domain.EvidenceFragment{
		FragmentType: domain.FragmentTypeText,
		Content:      strings.Repeat("the invoice is approved by the finance controller ", 30),
	}
	if got := CompletenessScore(long); got != 1 {
		t.Fatalf("long fragment should saturate at 1, got %v", got)
	}

	diagram := &domain.EvidenceFragment{FragmentType: domain.FragmentTypeDiagram, Content: "x"}
	if got := CompletenessScore(diagram); got != neutralScore {
		t.Fatalf("diagram completeness is unknowable, want %v got %v", neutralScore, got)
	}
}

func TestReliabilityScoreAuthorityLadder(t *testing.T) {
	system := &domain.EvidenceItem{Category: domain.CategoryStructuredData}
	doc := &domain.EvidenceItem{Category: domain.CategoryDocuments}
	comm := &domain.EvidenceItem{Category: domain.CategoryCommunications}
	aid := &domain.EvidenceItem{Category: domain.CategoryJobAids}

	if !(ReliabilityScore(system) > ReliabilityScore(doc) &&
		ReliabilityScore(doc) > ReliabilityScore(comm) &&
		ReliabilityScore(comm) > ReliabilityScore(aid)) {
		t.Fatalf("authority ladder violated: system=%v doc=%v comm=%v aid=%v",
			ReliabilityScore(system), ReliabilityScore(doc), ReliabilityScore(comm), ReliabilityScore(aid))
	}

	validated := &domain.EvidenceItem{Category: domain.CategoryDocuments, ValidationStatus: domain.ValidationApproved}
	if ReliabilityScore(validated) <= ReliabilityScore(doc) {
		t.Fatalf("SME approval should raise reliability")
	}

	unknown := &domain.EvidenceItem{Category: "carrier_pigeon"}
	if got := ReliabilityScore(unknown); got != 0.5 {
		t.Fatalf("unknown category should be neutral, got %v", got)
	}
}

func TestFreshnessScoreHalfLife(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	if got := FreshnessScore(nil, now, 1095); got != neutralScore {
		t.Fatalf("missing source date should be neutral, got %v", got)
	}

	fresh := now.AddDate(0, 0, -1)
	if got := FreshnessScore(&fresh, now, 1095); got < 0.99 {
		t.Fatalf("day-old evidence should be near 1, got %v", got)
	}

	halfLife := now.AddDate(-3, 0, 0)
	got := FreshnessScore(&halfLife, now, 1095)
	if math.Abs(got-0.5) > 0.01 {
		t.Fatalf("three-year-old evidence at a three-year half-life should be ~0.5, got %v", got)
	}

	future := now.AddDate(0, 1, 0)
	if got := FreshnessScore(&future, now, 1095); got != 1 {
		t.Fatalf("future-dated evidence clamps to 1, got %v", got)
	}
}

func TestConsistencyScoreGrowsWithHistory(t *testing.T) {
	if got := ConsistencyScore(0); got != 0.5 {
		t.Fatalf("no history should score neutral, got %v", got)
	}
	prev := 0.5
	for _, n := range []int64{1, 4, 20} {
		got := ConsistencyScore(n)
		if got <= prev || got >= 1 {
			t.Fatalf("consistency should grow toward 1: n=%d got=%v prev=%v", n, got, prev)
		}
		prev = got
	}
}

func TestCompositeScore(t *testing.T) {
	s := QualityScores{Completeness: 0.8, Reliability: 0.6, Freshness: 0.4, Consistency: 0.2}

	if got := CompositeScore(s, nil); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("default composite should be the plain mean, got %v", got)
	}

	weighted := CompositeScore(s, map[string]float64{"completeness": 1, "reliability": 1})
	if math.Abs(weighted-0.7) > 1e-9 {
		t.Fatalf("weighted composite wrong: got %v", weighted)
	}

	if got := CompositeScore(s, map[string]float64{"nonsense": 3}); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("unusable weights should fall back to the mean, got %v", got)
	}
}
