package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Mismatch types, ordered roughly by how often they show up in practice.
const (
	MismatchSequence  = "SEQUENCE_MISMATCH"
	MismatchRole      = "ROLE_MISMATCH"
	MismatchRule      = "RULE_MISMATCH"
	MismatchExistence = "EXISTENCE_MISMATCH"
	MismatchIO        = "IO_MISMATCH"
	MismatchControlGap = "CONTROL_GAP"
)

// Resolution classes for a detected mismatch.
const (
	ResolutionNamingVariant      = "NAMING_VARIANT"
	ResolutionTemporalShift      = "TEMPORAL_SHIFT"
	ResolutionGenuineDisagreement = "GENUINE_DISAGREEMENT"
)

const (
	ContradictionOpen       = "open"
	ContradictionAutoClosed = "auto_closed"
	ContradictionResolved   = "resolved"
	ContradictionDismissed  = "dismissed"
)

// Severity labels over the numeric severity score.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// categoryWeights scale mismatch severity by how structurally damaging the
// mismatch class is.
var categoryWeights = map[string]float64{
	MismatchExistence:  1.00,
	MismatchControlGap: 0.95,
	MismatchSequence:   0.85,
	MismatchIO:         0.80,
	MismatchRule:       0.75,
	MismatchRole:       0.65,
}

func MismatchWeight(mismatchType string) float64 {
	if w, ok := categoryWeights[mismatchType]; ok {
		return w
	}
	return 0.5
}

func SeverityLabel(severity float64) string {
	switch {
	case severity >= 0.8:
		return SeverityCritical
	case severity >= 0.6:
		return SeverityHigh
	case severity >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Contradiction records one detected mismatch between two assertions on the
// same element (AssertionB is null for single-sided findings such as control
// gaps). The (element, type, pair) triple is unique so re-detection is
// idempotent.
type Contradiction struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EngagementID uuid.UUID  `gorm:"type:uuid;not null;index" json:"engagement_id"`
	ElementID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_contradiction_pair" json:"element_id"`
	MismatchType string     `gorm:"column:mismatch_type;not null;uniqueIndex:uq_contradiction_pair" json:"mismatch_type"`
	AssertionA   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_contradiction_pair" json:"assertion_a"`
	AssertionB   *uuid.UUID `gorm:"type:uuid;uniqueIndex:uq_contradiction_pair" json:"assertion_b,omitempty"`

	Resolution       string         `gorm:"column:resolution;not null" json:"resolution"`
	Status           string         `gorm:"column:status;not null;default:'open'" json:"status"`
	Severity         float64        `gorm:"column:severity;default:0" json:"severity"`
	SeverityLabel    string         `gorm:"column:severity_label" json:"severity_label"`
	Detail           datatypes.JSON `gorm:"column:detail;type:jsonb" json:"detail,omitempty"`
	ResolvedBy       string         `gorm:"column:resolved_by" json:"resolved_by,omitempty"`
	ResolutionNote   string         `gorm:"column:resolution_note" json:"resolution_note,omitempty"`
	ResolvedAt       *time.Time     `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	FirstDetectedAt  time.Time      `gorm:"column:first_detected_at;not null" json:"first_detected_at"`
	LastDetectedAt   time.Time      `gorm:"column:last_detected_at;not null" json:"last_detected_at"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Contradiction) TableName() string { return "contradiction" }
