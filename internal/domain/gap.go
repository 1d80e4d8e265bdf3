package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Evidence gap kinds.
const (
	GapSingleSource   = "single_source"
	GapStaleEvidence  = "stale_evidence"
	GapMissingControl = "missing_control"
	GapDarkElement    = "dark_element"
	GapMergeReview    = "merge_review"
)

const (
	GapOpen   = "open"
	GapClosed = "closed"
)

// EvidenceGap is an open question the pipeline wants a consultant to chase:
// an element resting on one source, stale evidence, a missing control, a
// dark element, or a merge candidate needing human review.
type EvidenceGap struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EngagementID uuid.UUID      `gorm:"type:uuid;not null;index" json:"engagement_id"`
	ElementID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uq_gap_kind" json:"element_id"`
	GapKind      string         `gorm:"column:gap_kind;not null;uniqueIndex:uq_gap_kind" json:"gap_kind"`
	Status       string         `gorm:"column:status;not null;default:'open'" json:"status"`
	Detail       datatypes.JSON `gorm:"column:detail;type:jsonb" json:"detail,omitempty"`
	OpenedAt     time.Time      `gorm:"column:opened_at;not null" json:"opened_at"`
	ClosedAt     *time.Time     `gorm:"column:closed_at" json:"closed_at,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (EvidenceGap) TableName() string { return "evidence_gap" }
