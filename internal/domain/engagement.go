package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EngagementStatusActive   = "active"
	EngagementStatusPaused   = "paused"
	EngagementStatusArchived = "archived"
)

// Engagement is the tenancy boundary. Every evidence item, fragment,
// assertion, element and contradiction hangs off exactly one engagement,
// and all scoring thresholds can be overridden per engagement via Config.
type Engagement struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string         `gorm:"column:name;not null" json:"name"`
	Client    string         `gorm:"column:client" json:"client,omitempty"`
	Status    string         `gorm:"column:status;not null;default:'active'" json:"status"`
	Config    datatypes.JSON `gorm:"column:config;type:jsonb" json:"config,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Engagement) TableName() string { return "engagement" }
