package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Claim kinds. Every assertion makes exactly one kind of claim about its
// element.
const (
	ClaimExistence = "existence"
	ClaimSequence  = "sequence"
	ClaimRole      = "role"
	ClaimRule      = "rule"
	ClaimIO        = "io"
)

const (
	IOProduces = "produces"
	IOConsumes = "consumes"

	SeqPrecedes = "precedes"
	SeqFollows  = "follows"
)

// ClaimPayload is the structured body of an assertion. Subject is always the
// normalized name of the owning element; the remaining fields depend on Kind:
//
//	existence: Negated marks an explicit denial ("there is no X step")
//	sequence:  Object is the other activity, Direction precedes/follows
//	role:      Object is the performing role
//	rule:      Object is the governing policy/control, RuleText the constraint
//	io:        Object is the artifact token, Direction produces/consumes,
//	           Counterpart the adjacent activity on the other end of the flow
type ClaimPayload struct {
	Kind        string `json:"kind"`
	Subject     string `json:"subject"`
	Object      string `json:"object,omitempty"`
	Direction   string `json:"direction,omitempty"`
	RuleText    string `json:"rule_text,omitempty"`
	Counterpart string `json:"counterpart,omitempty"`
	Negated     bool   `json:"negated,omitempty"`
}

// Hash returns the canonical claim hash used for idempotent assertion
// writes. It is stable across field ordering and whitespace.
func (c ClaimPayload) Hash() string {
	neg := "0"
	if c.Negated {
		neg = "1"
	}
	parts := []string{
		strings.ToLower(strings.TrimSpace(c.Kind)),
		strings.ToLower(strings.TrimSpace(c.Subject)),
		strings.ToLower(strings.TrimSpace(c.Object)),
		strings.ToLower(strings.TrimSpace(c.Direction)),
		strings.ToLower(strings.TrimSpace(c.RuleText)),
		strings.ToLower(strings.TrimSpace(c.Counterpart)),
		neg,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Assertion is one fragment-backed claim about one process element. The
// (fragment_id, claim_hash) pair is unique: re-processing a fragment never
// duplicates assertions. Superseded assertions stay for audit but are
// excluded from scoring.
type Assertion struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EngagementID   uuid.UUID `gorm:"type:uuid;not null;index" json:"engagement_id"`
	ElementID      uuid.UUID `gorm:"type:uuid;not null;index" json:"element_id"`
	FragmentID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_assertion_claim" json:"fragment_id"`
	EvidenceItemID uuid.UUID `gorm:"type:uuid;not null;index" json:"evidence_item_id"`

	ClaimKind        string         `gorm:"column:claim_kind;not null" json:"claim_kind"`
	Claim            datatypes.JSON `gorm:"column:claim;type:jsonb;not null" json:"claim"`
	ClaimHash        string         `gorm:"column:claim_hash;not null;uniqueIndex:uq_assertion_claim" json:"claim_hash"`
	EvidenceCategory string         `gorm:"column:evidence_category;not null" json:"evidence_category"`
	ExtractorName    string         `gorm:"column:extractor_name" json:"extractor_name,omitempty"`
	ExtractorVersion string         `gorm:"column:extractor_version" json:"extractor_version,omitempty"`

	Confidence    float64    `gorm:"column:confidence;default:0" json:"confidence"`
	Provisional   bool       `gorm:"column:provisional;default:false" json:"provisional"`
	EffectiveFrom *time.Time `gorm:"column:effective_from" json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `gorm:"column:effective_to" json:"effective_to,omitempty"`
	AssertedAt    time.Time  `gorm:"column:asserted_at;not null" json:"asserted_at"`
	SupersededBy  *uuid.UUID `gorm:"column:superseded_by;type:uuid" json:"superseded_by,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Assertion) TableName() string { return "assertion" }

func (a *Assertion) Active() bool { return a.SupersededBy == nil }

func (a *Assertion) Payload() ClaimPayload {
	var p ClaimPayload
	if len(a.Claim) > 0 {
		_ = jsonUnmarshal(a.Claim, &p)
	}
	return p
}
