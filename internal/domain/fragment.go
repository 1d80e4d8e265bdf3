package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	FragmentTypeText      = "text"
	FragmentTypeTable     = "table"
	FragmentTypeEventLog  = "event_log"
	FragmentTypeDiagram   = "diagram"
	FragmentTypeTranscript = "transcript"
)

// EvidenceFragment is a parser-emitted slice of an evidence item: a
// paragraph, a table, an event-log window, a diagram region. Fragments are
// the unit of extraction and of quality scoring.
type EvidenceFragment struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EngagementID  uuid.UUID `gorm:"type:uuid;not null;index" json:"engagement_id"`
	EvidenceItemID uuid.UUID `gorm:"type:uuid;not null;index" json:"evidence_item_id"`
	FragmentType  string    `gorm:"column:fragment_type;not null" json:"fragment_type"`
	Content       string    `gorm:"column:content;type:text;not null" json:"content"`
	ParserName    string    `gorm:"column:parser_name" json:"parser_name,omitempty"`
	ParserVersion string    `gorm:"column:parser_version" json:"parser_version,omitempty"`

	// Quality dimensions, all in [0,1]. Unknowable dimensions are stored as
	// the neutral 0.5 rather than NULL so the composite stays a plain mean.
	Completeness float64 `gorm:"column:completeness;default:0" json:"completeness"`
	Reliability  float64 `gorm:"column:reliability;default:0" json:"reliability"`
	Freshness    float64 `gorm:"column:freshness;default:0" json:"freshness"`
	Consistency  float64 `gorm:"column:consistency;default:0" json:"consistency"`
	QualityScore float64 `gorm:"column:quality_score;default:0;index" json:"quality_score"`
	ScoredAt     *time.Time `gorm:"column:scored_at" json:"scored_at,omitempty"`

	Rejections   datatypes.JSON `gorm:"column:rejections;type:jsonb" json:"rejections,omitempty"`
	SupersededBy *uuid.UUID     `gorm:"column:superseded_by;type:uuid" json:"superseded_by,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (EvidenceFragment) TableName() string { return "evidence_fragment" }
