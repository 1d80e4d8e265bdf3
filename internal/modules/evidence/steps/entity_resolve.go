package steps

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
)

// Resolution is the outcome of matching a candidate name onto the element
// table.
type Resolution struct {
	Element        *domain.ProcessElement
	Created        bool
	MatchedBy      string // exact | alias | embedding | created
	MergeCandidate bool
	Similarity     float64
}

// ResolveElement maps a candidate mention onto an existing process element
// or creates a new one. Matching runs in three tiers: exact normalized name,
// curated alias, then embedding similarity. An embedding match needs both a
// floor score and a clear gap to the runner-up; two candidates inside the
// gap mean the mention is ambiguous, so a new element is created and flagged
// for merge review rather than silently merged.
func ResolveElement(ctx context.Context, d *Deps, tx *gorm.DB, aliases *AliasIndex, engagementID uuid.UUID, kind, name string, embedding []float32, cfg domain.EngagementConfig) (*Resolution, error) {
	norm := NormalizeName(name)

	if el, err := d.Elements.GetByNameNorm(ctx, tx, engagementID, kind, norm); err != nil {
		return nil, err
	} else if el != nil {
		return &Resolution{Element: el, MatchedBy: "exact"}, nil
	}

	canon := aliases.Canonical(name)
	if canon != norm {
		if el, err := d.Elements.GetByNameNorm(ctx, tx, engagementID, kind, canon); err != nil {
			return nil, err
		} else if el != nil {
			return &Resolution{Element: el, MatchedBy: "alias"}, nil
		}
	}

	best, second, bestEl, err := nearestByEmbedding(ctx, d, tx, engagementID, kind, embedding)
	if err != nil {
		return nil, err
	}

	mergeFlag := false
	if bestEl != nil && best >= cfg.SimilarityMinScore {
		if best-second >= cfg.SimilarityMinGap {
			return &Resolution{Element: bestEl, MatchedBy: "embedding", Similarity: best}, nil
		}
		// Runner-up too close: ambiguous, never merge silently.
		mergeFlag = true
	}

	el := &domain.ProcessElement{
		EngagementID:   engagementID,
		Kind:           kind,
		Name:           name,
		NameNorm:       norm,
		Brightness:     domain.BrightnessDark,
		EvidenceGrade:  domain.GradeU,
		MergeCandidate: mergeFlag,
	}
	if len(embedding) > 0 {
		el.Embedding = domain.MustJSON(embedding)
	}
	created, err := d.Elements.Create(ctx, tx, el)
	if err != nil {
		// A concurrent writer may have created the same name; fall back to it.
		if existing, gerr := d.Elements.GetByNameNorm(ctx, tx, engagementID, kind, norm); gerr == nil && existing != nil {
			return &Resolution{Element: existing, MatchedBy: "exact"}, nil
		}
		return nil, err
	}
	return &Resolution{Element: created, Created: true, MatchedBy: "created", MergeCandidate: mergeFlag, Similarity: best}, nil
}

func nearestByEmbedding(ctx context.Context, d *Deps, tx *gorm.DB, engagementID uuid.UUID, kind string, embedding []float32) (best, second float64, bestEl *domain.ProcessElement, err error) {
	if len(embedding) == 0 {
		return 0, 0, nil, nil
	}
	existing, err := d.Elements.GetByEngagementAndKind(ctx, tx, engagementID, kind)
	if err != nil {
		return 0, 0, nil, err
	}
	for _, el := range existing {
		vec := el.EmbeddingVector()
		if len(vec) == 0 {
			continue
		}
		sim := Cosine(embedding, vec)
		switch {
		case sim > best:
			second = best
			best = sim
			bestEl = el
		case sim > second:
			second = sim
		}
	}
	return best, second, bestEl, nil
}

// MarkMergeReview flags an element for merge review and opens the matching
// gap so a consultant sees it.
func MarkMergeReview(ctx context.Context, d *Deps, tx *gorm.DB, el *domain.ProcessElement, now time.Time) error {
	if err := d.Elements.UpdateFields(ctx, tx, el.ID, map[string]interface{}{"merge_candidate": true}); err != nil {
		return err
	}
	_, _, err := d.Gaps.Open(ctx, tx, &domain.EvidenceGap{
		EngagementID: el.EngagementID,
		ElementID:    el.ID,
		GapKind:      domain.GapMergeReview,
		Status:       domain.GapOpen,
		OpenedAt:     now,
	})
	return err
}
