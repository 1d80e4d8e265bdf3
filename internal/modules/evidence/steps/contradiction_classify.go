package steps

import (
	"github.com/kmflow/kmflow-backend/internal/domain"
)

// Classified carries a mismatch plus its three-way resolution and severity.
type Classified struct {
	Mismatch
	Resolution string
	Status     string
	Severity   float64
	Label      string
}

// ClassifyMismatch runs the resolution ladder:
//
//  1. NAMING_VARIANT when the conflicting values are alias-equivalent;
//     auto-closed, no consultant attention needed.
//  2. TEMPORAL_SHIFT when both assertions carry effective ranges that do
//     not overlap: the process simply changed. Auto-closed. Missing
//     temporal metadata means the shift cannot be established, so the
//     mismatch falls through.
//  3. GENUINE_DISAGREEMENT otherwise: opened for review.
//
// Severity is the mismatch class weight scaled by the mean extraction
// confidence of the assertions involved; weak extractions produce weak
// contradictions.
func ClassifyMismatch(m Mismatch, aliases *AliasIndex) Classified {
	c := Classified{Mismatch: m}

	switch {
	case isNamingVariant(m, aliases):
		c.Resolution = domain.ResolutionNamingVariant
		c.Status = domain.ContradictionAutoClosed
	case isTemporalShift(m):
		c.Resolution = domain.ResolutionTemporalShift
		c.Status = domain.ContradictionAutoClosed
	default:
		c.Resolution = domain.ResolutionGenuineDisagreement
		c.Status = domain.ContradictionOpen
	}

	conf := m.A.Confidence
	if m.B != nil {
		conf = (m.A.Confidence + m.B.Confidence) / 2
	}
	c.Severity = clamp01(domain.MismatchWeight(m.Type) * conf)
	c.Label = domain.SeverityLabel(c.Severity)
	return c
}

func isNamingVariant(m Mismatch, aliases *AliasIndex) bool {
	if m.B == nil {
		return false
	}
	switch m.Type {
	case domain.MismatchRole, domain.MismatchRule, domain.MismatchIO:
		return aliases.Same(m.ValueA, m.ValueB)
	default:
		// Direction and existence conflicts are not naming problems.
		return false
	}
}

// isTemporalShift needs effective dates on both sides; absent metadata can
// never establish a shift.
func isTemporalShift(m Mismatch) bool {
	if m.B == nil {
		return false
	}
	a, b := m.A, m.B
	if a.EffectiveFrom == nil || b.EffectiveFrom == nil {
		return false
	}
	if a.EffectiveTo != nil && !a.EffectiveTo.After(*b.EffectiveFrom) {
		return true
	}
	if b.EffectiveTo != nil && !b.EffectiveTo.After(*a.EffectiveFrom) {
		return true
	}
	return false
}
