package steps

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kmflow/kmflow-backend/internal/data/graph"
	"github.com/kmflow/kmflow-backend/internal/domain"
	apperrors "github.com/kmflow/kmflow-backend/internal/pkg/errors"
	"github.com/kmflow/kmflow-backend/internal/platform/redisbus"
)

// RescoreOutcome reports one scoring pass: the consensus result plus what
// the pass newly opened, for callers that count or notify.
type RescoreOutcome struct {
	Score                 ConsensusResult
	NewContradictionTypes []string
	OpenedGapKinds        []string
}

// RescoreElement is the single-writer scoring pass for one element: it
// reruns the pairwise mismatch scan, classifies what it finds, recomputes
// weighted consensus, reconciles gaps, mirrors the result into the graph
// and rebuilds bridges. The per-element lock makes concurrent fragment
// workers safe; everything computed here depends only on the active
// assertion set, so replays converge.
func RescoreElement(ctx context.Context, d *Deps, cfg domain.EngagementConfig, elementID uuid.UUID, now time.Time) (*RescoreOutcome, error) {
	key := elementID.String()
	d.Locks.Lock(key)
	defer d.Locks.Unlock(key)

	el, err := d.Elements.GetByID(ctx, nil, elementID)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, apperrors.NotFoundf("element %s", elementID)
	}

	assertions, err := d.Assertions.GetActiveByElementID(ctx, nil, elementID)
	if err != nil {
		return nil, err
	}

	fragQuality, itemValidated, itemSourceDate, err := loadEvidenceContext(ctx, d, assertions)
	if err != nil {
		return nil, err
	}

	aliasRows, err := d.Aliases.GetByEngagement(ctx, nil, el.EngagementID)
	if err != nil {
		return nil, err
	}
	aliases := NewAliasIndex(aliasRows)

	ont := d.Ontology.Current()
	var classified []Classified
	genuine := 0
	for _, m := range FindMismatches(assertions) {
		c := ClassifyMismatch(m, aliases)
		if c.Status == domain.ContradictionOpen {
			genuine++
		}
		classified = append(classified, c)
	}
	controlGap := false
	if m, ok := ControlGapMismatch(ont, el, assertions); ok {
		controlGap = true
		c := ClassifyMismatch(m, aliases)
		c.Status = domain.ContradictionOpen
		classified = append(classified, c)
	}

	score := ComputeConsensus(ConsensusInput{
		Assertions:       assertions,
		FragmentQuality:  fragQuality,
		ItemValidated:    itemValidated,
		ItemSourceDate:   itemSourceDate,
		GenuineConflicts: genuine,
		ExpectedSources:  cfg.ExpectedSourceCount,
		HalfLifeDays:     cfg.FreshnessHalfLifeDays,
		Now:              now,
	})

	newOpen, seenIDs, err := persistContradictions(ctx, d, el, classified, now)
	if err != nil {
		return nil, err
	}
	if _, err := d.Contradictions.AutoCloseStale(ctx, nil, el.ID, seenIDs); err != nil {
		return nil, err
	}

	if err := d.Elements.UpdateFields(ctx, nil, el.ID, map[string]interface{}{
		"confidence":     score.Confidence,
		"brightness":     score.Brightness,
		"evidence_grade": score.Grade,
		"last_scored_at": now,
	}); err != nil {
		return nil, err
	}
	el.Confidence = score.Confidence
	el.Brightness = score.Brightness
	el.EvidenceGrade = score.Grade

	openedGaps, err := SyncGaps(ctx, d, el, GapSignals(el, score, len(assertions) > 0, controlGap), now)
	if err != nil {
		return nil, err
	}

	// Graph mirror and bridges are best effort: Postgres already holds the
	// truth, and the mirror converges on the next pass.
	if d.Graph != nil {
		if err := graph.UpsertElement(ctx, d.Graph, ont, el, assertions, d.Log); err != nil {
			d.Log.Warn("graph mirror failed", "element_id", el.ID, "error", err)
		} else {
			upserts, retractions, berr := BuildBridges(ctx, d, cfg, el, assertions, classified)
			if berr != nil {
				d.Log.Warn("bridge inference failed", "element_id", el.ID, "error", berr)
			} else {
				if err := graph.UpsertBridges(ctx, d.Graph, ont, el.EngagementID.String(), upserts); err != nil {
					d.Log.Warn("bridge upsert failed", "element_id", el.ID, "error", err)
				}
				for _, r := range retractions {
					if err := graph.RetractBridge(ctx, d.Graph, el.EngagementID.String(), r); err != nil {
						d.Log.Warn("bridge retract failed", "element_id", el.ID, "error", err)
					}
				}
			}
		}
	}

	publishReviewEvents(ctx, d, cfg, el, newOpen, openedGaps)

	outcome := &RescoreOutcome{Score: score, OpenedGapKinds: openedGaps}
	for _, c := range newOpen {
		outcome.NewContradictionTypes = append(outcome.NewContradictionTypes, c.MismatchType)
	}
	return outcome, nil
}

func loadEvidenceContext(ctx context.Context, d *Deps, assertions []*domain.Assertion) (map[uuid.UUID]float64, map[uuid.UUID]bool, map[uuid.UUID]*time.Time, error) {
	fragIDs := map[uuid.UUID]bool{}
	itemIDs := map[uuid.UUID]bool{}
	for _, a := range assertions {
		fragIDs[a.FragmentID] = true
		itemIDs[a.EvidenceItemID] = true
	}

	quality := map[uuid.UUID]float64{}
	if len(fragIDs) > 0 {
		frags, err := d.Fragments.GetByIDs(ctx, nil, keys(fragIDs))
		if err != nil {
			return nil, nil, nil, err
		}
		for _, f := range frags {
			quality[f.ID] = f.QualityScore
		}
	}

	validated := map[uuid.UUID]bool{}
	sourceDate := map[uuid.UUID]*time.Time{}
	if len(itemIDs) > 0 {
		items, err := d.Items.GetByIDs(ctx, nil, keys(itemIDs))
		if err != nil {
			return nil, nil, nil, err
		}
		for _, it := range items {
			validated[it.ID] = it.SMEValidated()
			sourceDate[it.ID] = it.SourceDate
		}
	}
	return quality, validated, sourceDate, nil
}

func keys(m map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// persistContradictions upserts every classified mismatch and returns the
// newly created open ones plus all ids seen this pass.
func persistContradictions(ctx context.Context, d *Deps, el *domain.ProcessElement, classified []Classified, now time.Time) ([]*domain.Contradiction, []uuid.UUID, error) {
	var newOpen []*domain.Contradiction
	var seen []uuid.UUID
	for _, c := range classified {
		detail := map[string]interface{}{
			"value_a": c.ValueA,
			"value_b": c.ValueB,
		}
		row := &domain.Contradiction{
			EngagementID:    el.EngagementID,
			ElementID:       el.ID,
			MismatchType:    c.Type,
			AssertionA:      c.A.ID,
			Resolution:      c.Resolution,
			Status:          c.Status,
			Severity:        c.Severity,
			SeverityLabel:   c.Label,
			Detail:          domain.MustJSON(detail),
			FirstDetectedAt: now,
			LastDetectedAt:  now,
		}
		if c.B != nil {
			id := c.B.ID
			row.AssertionB = &id
		}
		if c.Status == domain.ContradictionAutoClosed {
			row.ResolvedAt = &now
		}
		stored, created, err := d.Contradictions.Upsert(ctx, nil, row)
		if err != nil {
			return nil, nil, err
		}
		seen = append(seen, stored.ID)
		if created && stored.Status == domain.ContradictionOpen {
			newOpen = append(newOpen, stored)
		}
	}
	return newOpen, seen, nil
}

// publishReviewEvents pushes what a consultant needs to look at. Only
// contradictions at or above the engagement's severity floor surface as
// review items; everything below stays recorded in postgres without a ping.
func publishReviewEvents(ctx context.Context, d *Deps, cfg domain.EngagementConfig, el *domain.ProcessElement, contradictions []*domain.Contradiction, openedGaps []string) {
	if d.Review == nil {
		return
	}
	for _, c := range contradictions {
		if c.Severity < cfg.ReviewSeverityFloor {
			continue
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"contradiction_id": c.ID,
			"mismatch_type":    c.MismatchType,
			"severity":         c.Severity,
			"severity_label":   c.SeverityLabel,
		})
		ev := redisbus.Event{
			Type:         redisbus.EventContradiction,
			EngagementID: el.EngagementID.String(),
			ElementID:    el.ID.String(),
			Payload:      payload,
		}
		if err := d.Review.Publish(ctx, ev); err != nil {
			d.Log.Warn("review publish failed", "type", ev.Type, "error", err)
		}
	}
	for _, kind := range openedGaps {
		payload, _ := json.Marshal(map[string]interface{}{"gap_kind": kind})
		evType := redisbus.EventGapOpened
		if kind == domain.GapMergeReview {
			evType = redisbus.EventMergeReview
		}
		ev := redisbus.Event{
			Type:         evType,
			EngagementID: el.EngagementID.String(),
			ElementID:    el.ID.String(),
			Payload:      payload,
		}
		if err := d.Review.Publish(ctx, ev); err != nil {
			d.Log.Warn("review publish failed", "type", ev.Type, "error", err)
		}
	}
}
