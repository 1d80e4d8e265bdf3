package steps

import (
	"fmt"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/ontology"
)

// Candidate is one extractor output: a process element mention plus the
// claim it makes about that element. ObjectKind is set for relational claims
// so the ontology endpoint check can run before any element exists.
type Candidate struct {
	Kind       string  `json:"kind"`
	Name       string  `json:"name"`
	ObjectKind string  `json:"object_kind,omitempty"`
	Confidence float64 `json:"confidence"`
	Span       string  `json:"span,omitempty"`

	Claim domain.ClaimPayload `json:"claim"`
}

// Rejection records why a candidate was refused, kept on the fragment for
// audit.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// claimRelations maps each relational claim kind to the ontology
// relationship it asserts.
func claimRelation(claim domain.ClaimPayload) (string, bool) {
	switch claim.Kind {
	case domain.ClaimSequence:
		return "PRECEDES", true
	case domain.ClaimRole:
		return "PERFORMED_BY", true
	case domain.ClaimRule:
		return "GOVERNED_BY", true
	case domain.ClaimIO:
		if claim.Direction == domain.IOConsumes {
			return "CONSUMES", true
		}
		return "PRODUCES", true
	default:
		return "", false
	}
}

// ValidateCandidates filters extractor output against the ontology. Rejected
// candidates never become assertions; every rejection carries a reason.
func ValidateCandidates(ont *ontology.Ontology, cands []Candidate) ([]Candidate, []Rejection) {
	var valid []Candidate
	var rejected []Rejection

	for _, c := range cands {
		name := NormalizeName(c.Name)
		if name == "" {
			rejected = append(rejected, Rejection{Name: c.Name, Reason: "empty_name"})
			continue
		}
		label, ok := ont.LabelForKind(c.Kind)
		if !ok {
			rejected = append(rejected, Rejection{Name: c.Name, Reason: "unknown_kind", Detail: c.Kind})
			continue
		}
		if nt := ont.NodeTypes[label]; !nt.Extractable {
			rejected = append(rejected, Rejection{Name: c.Name, Reason: "not_extractable", Detail: label})
			continue
		}
		if c.Confidence <= 0 {
			rejected = append(rejected, Rejection{Name: c.Name, Reason: "zero_confidence"})
			continue
		}

		switch c.Claim.Kind {
		case domain.ClaimExistence:
			// nothing beyond the element itself
		case domain.ClaimSequence, domain.ClaimRole, domain.ClaimRule, domain.ClaimIO:
			if NormalizeName(c.Claim.Object) == "" {
				rejected = append(rejected, Rejection{Name: c.Name, Reason: "missing_object", Detail: c.Claim.Kind})
				continue
			}
			rel, _ := claimRelation(c.Claim)
			objLabel, ok := ont.LabelForKind(c.ObjectKind)
			if !ok {
				rejected = append(rejected, Rejection{Name: c.Name, Reason: "unknown_object_kind", Detail: c.ObjectKind})
				continue
			}
			if err := ont.EdgeAllowed(rel, label, objLabel); err != nil {
				rejected = append(rejected, Rejection{
					Name:   c.Name,
					Reason: "ontology_violation",
					Detail: fmt.Sprintf("%v", err),
				})
				continue
			}
		default:
			rejected = append(rejected, Rejection{Name: c.Name, Reason: "unknown_claim_kind", Detail: c.Claim.Kind})
			continue
		}

		valid = append(valid, c)
	}
	return valid, rejected
}

// DefaultObjectKind fills the expected object kind for relational claims
// when the extractor left it blank.
func DefaultObjectKind(claim domain.ClaimPayload) string {
	switch claim.Kind {
	case domain.ClaimSequence:
		return domain.KindActivity
	case domain.ClaimRole:
		return domain.KindRole
	case domain.ClaimRule:
		return domain.KindPolicy
	case domain.ClaimIO:
		return domain.KindDataObject
	default:
		return ""
	}
}
