package steps

import (
	"bytes"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/ontology"
)

// Mismatch is one detected conflict between two active assertions on the
// same element. B is nil for single-sided findings (control gaps).
type Mismatch struct {
	Type string
	A    *domain.Assertion
	B    *domain.Assertion

	// Raw values that conflicted, kept for the contradiction detail blob.
	ValueA string
	ValueB string
}

// FindMismatches runs the pairwise scan over one element's active
// assertions. Comparison is on normalized raw values; alias equivalence is
// left to classification so naming variants still surface as auto-closed
// records.
func FindMismatches(assertions []*domain.Assertion) []Mismatch {
	var out []Mismatch
	for i := 0; i < len(assertions); i++ {
		for j := i + 1; j < len(assertions); j++ {
			if m, ok := mismatchBetween(assertions[i], assertions[j]); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

func mismatchBetween(a, b *domain.Assertion) (Mismatch, bool) {
	if a.ClaimKind != b.ClaimKind {
		return Mismatch{}, false
	}
	// Canonical pair orientation: smaller assertion id first, so the same
	// conflict re-detected in any scan order upserts onto one stored row.
	if bytes.Compare(a.ID[:], b.ID[:]) > 0 {
		a, b = b, a
	}
	pa, pb := a.Payload(), b.Payload()

	switch a.ClaimKind {
	case domain.ClaimExistence:
		if pa.Negated != pb.Negated {
			return Mismatch{Type: domain.MismatchExistence, A: a, B: b, ValueA: existenceValue(pa), ValueB: existenceValue(pb)}, true
		}

	case domain.ClaimSequence:
		// Same counterpart activity, opposite direction.
		if NormalizeName(pa.Object) == NormalizeName(pb.Object) &&
			pa.Direction != pb.Direction && pa.Direction != "" && pb.Direction != "" {
			return Mismatch{Type: domain.MismatchSequence, A: a, B: b, ValueA: pa.Direction, ValueB: pb.Direction}, true
		}

	case domain.ClaimRole:
		if NormalizeName(pa.Object) != NormalizeName(pb.Object) {
			return Mismatch{Type: domain.MismatchRole, A: a, B: b, ValueA: pa.Object, ValueB: pb.Object}, true
		}

	case domain.ClaimRule:
		if NormalizeName(pa.Object) == NormalizeName(pb.Object) &&
			NormalizeName(pa.RuleText) != NormalizeName(pb.RuleText) {
			return Mismatch{Type: domain.MismatchRule, A: a, B: b, ValueA: pa.RuleText, ValueB: pb.RuleText}, true
		}

	case domain.ClaimIO:
		// Same direction and same counterpart but a different artifact:
		// two sources disagree about what flows across the same edge.
		if pa.Direction == pb.Direction &&
			NormalizeName(pa.Counterpart) == NormalizeName(pb.Counterpart) &&
			NormalizeName(pa.Counterpart) != "" &&
			NormalizeName(pa.Object) != NormalizeName(pb.Object) {
			return Mismatch{Type: domain.MismatchIO, A: a, B: b, ValueA: pa.Object, ValueB: pb.Object}, true
		}
	}
	return Mismatch{}, false
}

func existenceValue(p domain.ClaimPayload) string {
	if p.Negated {
		return "absent"
	}
	return "present"
}

// ControlGapMismatch checks the ontology's control requirement for the
// element kind: activities with no rule claim pointing at a policy or
// control are flagged. Single-sided, anchored on the element's oldest
// active assertion.
func ControlGapMismatch(ont *ontology.Ontology, el *domain.ProcessElement, assertions []*domain.Assertion) (Mismatch, bool) {
	if _, ok := ont.ControlRuleFor(el.Kind); !ok {
		return Mismatch{}, false
	}
	if len(assertions) == 0 {
		return Mismatch{}, false
	}
	for _, a := range assertions {
		if a.ClaimKind == domain.ClaimRule {
			return Mismatch{}, false
		}
	}
	return Mismatch{Type: domain.MismatchControlGap, A: assertions[0], ValueA: el.Name}, true
}
