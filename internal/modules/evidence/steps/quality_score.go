package steps

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kmflow/kmflow-backend/internal/domain"
)

// QualityScores holds the four scored dimensions and their composite, all
// in [0,1].
type QualityScores struct {
	Completeness float64
	Reliability  float64
	Freshness    float64
	Consistency  float64
	Composite    float64
}

const neutralScore = 0.5

// CompletenessScore estimates how much of the expected content the fragment
// actually carries. Text saturates around 120 words; diagrams are scored
// neutral because word counts say nothing about them.
func CompletenessScore(f *domain.EvidenceFragment) float64 {
	content := strings.TrimSpace(f.Content)
	if content == "" {
		return 0
	}
	if f.FragmentType == domain.FragmentTypeDiagram {
		return neutralScore
	}
	words := len(strings.Fields(content))
	return clamp01(float64(words) / 120.0)
}

// ReliabilityScore is the category authority prior, nudged up when an SME
// has approved the item.
func ReliabilityScore(item *domain.EvidenceItem) float64 {
	w := domain.AuthorityWeight(item.Category)
	if item.SMEValidated() {
		w += 0.1
	}
	return clamp01(w)
}

// FreshnessScore decays with the age of the source artifact. Items without
// a source date are unknowable and score neutral.
func FreshnessScore(sourceDate *time.Time, now time.Time, halfLifeDays float64) float64 {
	if sourceDate == nil {
		return neutralScore
	}
	ageDays := now.Sub(*sourceDate).Hours() / 24
	return clamp01(decay(ageDays, halfLifeDays))
}

// ConsistencyScore rewards sources that have already produced fragments
// without being contradicted: it starts neutral and approaches 1 as the
// prior fragment count n grows.
func ConsistencyScore(priorFromSameSource int64) float64 {
	n := float64(priorFromSameSource)
	if n < 0 {
		n = 0
	}
	return 1 - 0.5/(1+0.5*n)
}

// CompositeScore is the unweighted mean of the four dimensions unless the
// engagement overrides the weights. Unknown weight keys are ignored;
// all-zero weights fall back to the mean.
func CompositeScore(s QualityScores, weights map[string]float64) float64 {
	if len(weights) == 0 {
		return meanFloat([]float64{s.Completeness, s.Reliability, s.Freshness, s.Consistency})
	}
	type dim struct {
		key string
		val float64
	}
	dims := []dim{
		{"completeness", s.Completeness},
		{"reliability", s.Reliability},
		{"freshness", s.Freshness},
		{"consistency", s.Consistency},
	}
	var sum, wsum float64
	for _, d := range dims {
		w, ok := weights[d.key]
		if !ok || w <= 0 {
			continue
		}
		sum += w * d.val
		wsum += w
	}
	if wsum == 0 {
		return meanFloat([]float64{s.Completeness, s.Reliability, s.Freshness, s.Consistency})
	}
	return clamp01(sum / wsum)
}

// ScoreFragment computes and persists the fragment's quality dimensions.
func ScoreFragment(ctx context.Context, d *Deps, item *domain.EvidenceItem, frag *domain.EvidenceFragment, cfg domain.EngagementConfig, now time.Time) (QualityScores, error) {
	prior, err := d.Fragments.CountPriorBySource(ctx, nil, frag.EngagementID, []uuid.UUID{item.ID})
	if err != nil {
		return QualityScores{}, err
	}

	scores := QualityScores{
		Completeness: CompletenessScore(frag),
		Reliability:  ReliabilityScore(item),
		Freshness:    FreshnessScore(item.SourceDate, now, cfg.FreshnessHalfLifeDays),
		Consistency:  ConsistencyScore(prior),
	}
	scores.Composite = CompositeScore(scores, cfg.QualityWeights)

	updates := map[string]interface{}{
		"completeness":  scores.Completeness,
		"reliability":   scores.Reliability,
		"freshness":     scores.Freshness,
		"consistency":   scores.Consistency,
		"quality_score": scores.Composite,
		"scored_at":     now,
	}
	if err := d.Fragments.UpdateFields(ctx, nil, frag.ID, updates); err != nil {
		return QualityScores{}, err
	}
	frag.Completeness = scores.Completeness
	frag.Reliability = scores.Reliability
	frag.Freshness = scores.Freshness
	frag.Consistency = scores.Consistency
	frag.QualityScore = scores.Composite
	frag.ScoredAt = &now
	return scores, nil
}
