package steps

import (
	"context"

	"github.com/google/uuid"

	"github.com/kmflow/kmflow-backend/internal/data/graph"
	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/ontology"
)

// Correlation bridge thresholds: elements sharing three or more fragments
// get a confirmed edge, exactly two a suggested one.
const (
	correlationConfirmed = 0.7
	correlationSuggested = 0.5
)

func correlationStatus(sharedFragments int) (float64, string, bool) {
	switch {
	case sharedFragments >= 3:
		return correlationConfirmed, "confirmed", true
	case sharedFragments == 2:
		return correlationSuggested, "suggested", true
	default:
		return 0, "", false
	}
}

// Evidence-artifact kinds that can anchor a SUPPORTS edge.
func evidenceArtifactKind(kind string) bool {
	switch kind {
	case domain.KindDocument, domain.KindCommunication, domain.KindDataObject:
		return true
	}
	return false
}

func atLeastDim(brightness string) bool {
	return brightness == domain.BrightnessBright || brightness == domain.BrightnessDim
}

// BuildBridges infers semantic bridges for one element:
//
//   - SUPPORTS from evidence-artifact elements repeatedly co-asserted with
//     it, thresholded on shared fragment count;
//   - CORRELATES_WITH other elements over the same shared-fragment counts;
//   - GOVERNED_BY the policy or control named by the element's rule claims,
//     when both endpoints are at least dim;
//   - DEVIATES_FROM a target element when an open genuine contradiction
//     pits a BPM model assertion against observed evidence.
//
// Bridges are only asserted while the element is at least dim and carries
// no open contradiction at or above the review severity floor; when either
// precondition fails, every candidate comes back as a retraction instead.
func BuildBridges(ctx context.Context, d *Deps, cfg domain.EngagementConfig, el *domain.ProcessElement, assertions []*domain.Assertion, contradictions []Classified) ([]graph.BridgeEdge, []graph.BridgeEdge, error) {
	ont := d.Ontology.Current()
	elLabel, ok := ont.LabelForKind(el.Kind)
	if !ok {
		return nil, nil, nil
	}

	corr, err := correlationBridges(ctx, d, el, elLabel, assertions)
	if err != nil {
		return nil, nil, err
	}
	gov, err := governanceBridges(ctx, d, ont, el, elLabel, assertions)
	if err != nil {
		return nil, nil, err
	}
	deviation := deviationBridges(ont, el, elLabel, contradictions)

	all := append(corr, gov...)
	all = append(all, deviation...)
	if !atLeastDim(el.Brightness) || hasBlockingContradiction(cfg, contradictions) {
		return nil, all, nil
	}
	return all, nil, nil
}

func hasBlockingContradiction(cfg domain.EngagementConfig, contradictions []Classified) bool {
	for _, c := range contradictions {
		if c.Status == domain.ContradictionOpen && c.Severity >= cfg.ReviewSeverityFloor {
			return true
		}
	}
	return false
}

// correlationBridges derives both CORRELATES_WITH and SUPPORTS from the
// shared-fragment counts: co-occurrence is symmetric, support runs from the
// evidence artifact toward the element it corroborates.
func correlationBridges(ctx context.Context, d *Deps, el *domain.ProcessElement, elLabel string, assertions []*domain.Assertion) ([]graph.BridgeEdge, error) {
	shared := map[uuid.UUID]int{}
	seenFrag := map[uuid.UUID]bool{}
	for _, a := range assertions {
		if seenFrag[a.FragmentID] {
			continue
		}
		seenFrag[a.FragmentID] = true
		others, err := d.Assertions.GetActiveByFragmentID(ctx, nil, a.FragmentID)
		if err != nil {
			return nil, err
		}
		counted := map[uuid.UUID]bool{}
		for _, o := range others {
			if o.ElementID == el.ID || counted[o.ElementID] {
				continue
			}
			counted[o.ElementID] = true
			shared[o.ElementID]++
		}
	}

	var coIDs []uuid.UUID
	for id, n := range shared {
		if _, _, ok := correlationStatus(n); ok {
			coIDs = append(coIDs, id)
		}
	}
	if len(coIDs) == 0 {
		return nil, nil
	}
	coElements, err := d.Elements.GetByIDs(ctx, nil, coIDs)
	if err != nil {
		return nil, err
	}

	ont := d.Ontology.Current()
	var out []graph.BridgeEdge
	for _, co := range coElements {
		conf, status, _ := correlationStatus(shared[co.ID])
		coLabel, ok := ont.LabelForKind(co.Kind)
		if !ok {
			continue
		}
		if err := ont.EdgeAllowed("CORRELATES_WITH", elLabel, coLabel); err == nil {
			out = append(out, graph.BridgeEdge{
				Rel:        "CORRELATES_WITH",
				FromLabel:  elLabel,
				FromNorm:   el.NameNorm,
				ToLabel:    coLabel,
				ToNorm:     co.NameNorm,
				ToName:     co.Name,
				Confidence: conf,
				Status:     status,
			})
		}
		if evidenceArtifactKind(co.Kind) {
			if err := ont.EdgeAllowed("SUPPORTS", coLabel, elLabel); err == nil {
				out = append(out, graph.BridgeEdge{
					Rel:        "SUPPORTS",
					FromLabel:  coLabel,
					FromNorm:   co.NameNorm,
					ToLabel:    elLabel,
					ToNorm:     el.NameNorm,
					ToName:     el.Name,
					Confidence: conf,
					Status:     status,
				})
			}
		}
	}
	return out, nil
}

// governanceBridges promotes the element's rule claims into GOVERNED_BY
// edges once the named policy exists as an element and both endpoints are
// at least dim.
func governanceBridges(ctx context.Context, d *Deps, ont *ontology.Ontology, el *domain.ProcessElement, elLabel string, assertions []*domain.Assertion) ([]graph.BridgeEdge, error) {
	if !atLeastDim(el.Brightness) {
		return nil, nil
	}
	var out []graph.BridgeEdge
	seen := map[string]bool{}
	for _, a := range assertions {
		if a.ClaimKind != domain.ClaimRule {
			continue
		}
		norm := NormalizeName(a.Payload().Object)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true

		for _, kind := range []string{domain.KindPolicy, domain.KindControl, domain.KindBusinessRule} {
			policy, err := d.Elements.GetByNameNorm(ctx, nil, el.EngagementID, kind, norm)
			if err != nil {
				return nil, err
			}
			if policy == nil || !atLeastDim(policy.Brightness) {
				continue
			}
			policyLabel, ok := ont.LabelForKind(policy.Kind)
			if !ok {
				continue
			}
			if err := ont.EdgeAllowed("GOVERNED_BY", elLabel, policyLabel); err != nil {
				continue
			}
			out = append(out, graph.BridgeEdge{
				Rel:        "GOVERNED_BY",
				FromLabel:  elLabel,
				FromNorm:   el.NameNorm,
				ToLabel:    policyLabel,
				ToNorm:     policy.NameNorm,
				ToName:     policy.Name,
				Confidence: a.Confidence,
				Status:     "confirmed",
			})
			break
		}
	}
	return out, nil
}

// deviationBridges fires when a BPM process model disagrees with observed
// evidence: the model's claimed value becomes the target element the
// observed one deviates from.
func deviationBridges(ont *ontology.Ontology, el *domain.ProcessElement, elLabel string, contradictions []Classified) []graph.BridgeEdge {
	if err := ont.EdgeAllowed("DEVIATES_FROM", elLabel, "TargetElement"); err != nil {
		return nil
	}
	var out []graph.BridgeEdge
	for _, c := range contradictions {
		if c.Status != domain.ContradictionOpen || c.B == nil {
			continue
		}
		var modelValue string
		switch {
		case c.A.EvidenceCategory == domain.CategoryBPMModels:
			modelValue = c.ValueA
		case c.B.EvidenceCategory == domain.CategoryBPMModels:
			modelValue = c.ValueB
		default:
			continue
		}
		toNorm := NormalizeName(modelValue)
		if toNorm == "" {
			continue
		}
		out = append(out, graph.BridgeEdge{
			Rel:        "DEVIATES_FROM",
			FromLabel:  elLabel,
			FromNorm:   el.NameNorm,
			ToLabel:    "TargetElement",
			ToNorm:     toNorm,
			ToName:     modelValue,
			Confidence: c.Severity,
			Status:     "suggested",
		})
	}
	return out
}
