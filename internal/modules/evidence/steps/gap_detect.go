package steps

import (
	"context"
	"time"

	"github.com/kmflow/kmflow-backend/internal/domain"
)

// staleRecencyFloor: below this the evidence behind the element is roughly
// two half-lives old.
const staleRecencyFloor = 0.25

// GapSignal says whether a gap kind should be open on the element right now.
type GapSignal struct {
	Kind   string
	Open   bool
	Detail map[string]interface{}
}

// GapSignals derives the full gap slate from one scoring pass. Pure; the
// caller reconciles signals against stored gaps.
func GapSignals(el *domain.ProcessElement, score ConsensusResult, hasAssertions, controlGap bool) []GapSignal {
	return []GapSignal{
		{
			Kind: domain.GapSingleSource,
			Open: hasAssertions && score.DistinctSources == 1,
			Detail: map[string]interface{}{
				"distinct_sources": score.DistinctSources,
			},
		},
		{
			Kind: domain.GapStaleEvidence,
			Open: hasAssertions && score.Recency < staleRecencyFloor,
			Detail: map[string]interface{}{
				"recency": score.Recency,
			},
		},
		{
			// Opens for any dark element, including one with no active
			// assertions at all (confidence 0, grade U).
			Kind: domain.GapDarkElement,
			Open: score.Brightness == domain.BrightnessDark,
			Detail: map[string]interface{}{
				"confidence": score.Confidence,
			},
		},
		{
			Kind:   domain.GapMissingControl,
			Open:   controlGap,
			Detail: map[string]interface{}{"element": el.Name},
		},
		{
			Kind:   domain.GapMergeReview,
			Open:   el.MergeCandidate,
			Detail: map[string]interface{}{"element": el.Name},
		},
	}
}

// SyncGaps opens and closes stored gaps to match the signals, returning the
// kinds that were newly opened so the caller can notify reviewers.
func SyncGaps(ctx context.Context, d *Deps, el *domain.ProcessElement, signals []GapSignal, now time.Time) ([]string, error) {
	var opened []string
	for _, s := range signals {
		if s.Open {
			gap := &domain.EvidenceGap{
				EngagementID: el.EngagementID,
				ElementID:    el.ID,
				GapKind:      s.Kind,
				Status:       domain.GapOpen,
				Detail:       domain.MustJSON(s.Detail),
				OpenedAt:     now,
			}
			_, changed, err := d.Gaps.Open(ctx, nil, gap)
			if err != nil {
				return opened, err
			}
			if changed {
				opened = append(opened, s.Kind)
			}
			continue
		}
		if _, err := d.Gaps.Close(ctx, nil, el.ID, s.Kind); err != nil {
			return opened, err
		}
	}
	return opened, nil
}
