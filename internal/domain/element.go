package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Process element kinds. These map one-to-one onto graph node labels.
const (
	KindActivity     = "activity"
	KindDecision     = "decision"
	KindRole         = "role"
	KindSystem       = "system"
	KindDocument     = "document"
	KindPolicy       = "policy"
	KindControl      = "control"
	KindBusinessRule = "business_rule"
	KindDataObject   = "data_object"
	KindCommunication = "communication"
	KindTargetElement = "target_element"
)

// Brightness bands over element confidence.
const (
	BrightnessBright = "bright"
	BrightnessDim    = "dim"
	BrightnessDark   = "dark"

	BrightThreshold = 0.75
	DimThreshold    = 0.40
)

// Evidence grades.
const (
	GradeA = "A" // SME-validated with at least two independent sources
	GradeB = "B" // two or more sources, none validated
	GradeC = "C" // single source, validated or confidence at/above the dim floor
	GradeD = "D" // single unvalidated source below the floor
	GradeU = "U" // no active evidence
)

// BrightnessFor bands a confidence score, then applies the grade cap:
// D and U graded elements can never present as bright.
func BrightnessFor(confidence float64, grade string) string {
	b := BrightnessDark
	switch {
	case confidence >= BrightThreshold:
		b = BrightnessBright
	case confidence >= DimThreshold:
		b = BrightnessDim
	}
	if b == BrightnessBright && (grade == GradeD || grade == GradeU) {
		b = BrightnessDim
	}
	return b
}

// ProcessElement is a node in the engagement's process knowledge graph:
// an activity, decision, role, system, document, policy and so on. Elements
// are created by entity resolution and rescored after every assertion write.
type ProcessElement struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EngagementID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_element_name" json:"engagement_id"`
	Kind         string    `gorm:"column:kind;not null;uniqueIndex:uq_element_name" json:"kind"`
	Name         string    `gorm:"column:name;not null" json:"name"`
	NameNorm     string    `gorm:"column:name_norm;not null;uniqueIndex:uq_element_name" json:"name_norm"`

	Aliases   datatypes.JSON `gorm:"column:aliases;type:jsonb" json:"aliases,omitempty"`
	Embedding datatypes.JSON `gorm:"column:embedding;type:jsonb" json:"-"`

	Confidence     float64    `gorm:"column:confidence;default:0" json:"confidence"`
	Brightness     string     `gorm:"column:brightness;not null;default:'dark'" json:"brightness"`
	EvidenceGrade  string     `gorm:"column:evidence_grade;not null;default:'U'" json:"evidence_grade"`
	MergeCandidate bool       `gorm:"column:merge_candidate;default:false" json:"merge_candidate"`
	SMEValidated   bool       `gorm:"column:sme_validated;default:false" json:"sme_validated"`
	LastScoredAt   *time.Time `gorm:"column:last_scored_at" json:"last_scored_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ProcessElement) TableName() string { return "process_element" }

func (p *ProcessElement) AliasList() []string {
	var out []string
	if len(p.Aliases) > 0 {
		_ = jsonUnmarshal(p.Aliases, &out)
	}
	return out
}

func (p *ProcessElement) EmbeddingVector() []float32 {
	var out []float32
	if len(p.Embedding) > 0 {
		_ = jsonUnmarshal(p.Embedding, &out)
	}
	return out
}
