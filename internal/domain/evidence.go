package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Evidence categories. Reliability authority is keyed off these.
const (
	CategoryDocuments        = "documents"
	CategoryImages           = "images"
	CategoryAudio            = "audio"
	CategoryVideo            = "video"
	CategoryStructuredData   = "structured_data"
	CategorySaaSExports      = "saas_exports"
	CategoryKM4Work          = "km4work"
	CategoryBPMModels        = "bpm_process_models"
	CategoryRegulatoryPolicy = "regulatory_policy"
	CategoryControlsEvidence = "controls_evidence"
	CategoryCommunications   = "domain_communications"
	CategoryJobAids          = "job_aids_edge_cases"
)

const (
	ValidationPending  = "pending"
	ValidationApproved = "approved"
	ValidationRejected = "rejected"
)

// authorityWeights encodes the source-authority ladder used by the
// reliability dimension: system-generated records outrank documents,
// documents outrank human communications, communications outrank
// interview-style artifacts and job aids.
var authorityWeights = map[string]float64{
	CategoryStructuredData:   1.00,
	CategorySaaSExports:      1.00,
	CategoryKM4Work:          0.95,
	CategoryControlsEvidence: 0.90,
	CategoryRegulatoryPolicy: 0.90,
	CategoryBPMModels:        0.85,
	CategoryDocuments:        0.80,
	CategoryImages:           0.70,
	CategoryCommunications:   0.60,
	CategoryAudio:            0.50,
	CategoryVideo:            0.50,
	CategoryJobAids:          0.45,
}

// AuthorityWeight returns the reliability prior for an evidence category.
// Unknown categories get the neutral 0.5.
func AuthorityWeight(category string) float64 {
	if w, ok := authorityWeights[category]; ok {
		return w
	}
	return 0.5
}

func KnownCategory(category string) bool {
	_, ok := authorityWeights[category]
	return ok
}

// EvidenceItem is one ingested source artifact. ContentHash deduplicates
// re-uploads of the same bytes within an engagement.
type EvidenceItem struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EngagementID uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uq_item_hash" json:"engagement_id"`
	Name         string     `gorm:"column:name;not null" json:"name"`
	Category     string     `gorm:"column:category;not null" json:"category"`
	Format       string     `gorm:"column:format" json:"format,omitempty"`
	ContentHash  string     `gorm:"column:content_hash;not null;uniqueIndex:uq_item_hash" json:"content_hash"`
	SourceSystem string     `gorm:"column:source_system" json:"source_system,omitempty"`
	SourceDate   *time.Time `gorm:"column:source_date" json:"source_date,omitempty"`

	ValidationStatus string     `gorm:"column:validation_status;not null;default:'pending'" json:"validation_status"`
	ValidatedBy      string     `gorm:"column:validated_by" json:"validated_by,omitempty"`
	ValidatedAt      *time.Time `gorm:"column:validated_at" json:"validated_at,omitempty"`

	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (EvidenceItem) TableName() string { return "evidence_item" }

func (e *EvidenceItem) SMEValidated() bool {
	return e.ValidationStatus == ValidationApproved
}
