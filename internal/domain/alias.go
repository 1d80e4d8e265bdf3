package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// NamingAlias maps known name variants onto a canonical element name within
// an engagement. Alias tables are seeded by consultants and grown when merge
// candidates are approved; the classifier consults them before calling a
// mismatch genuine.
type NamingAlias struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EngagementID  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uq_alias_canonical" json:"engagement_id"`
	Canonical     string         `gorm:"column:canonical;not null" json:"canonical"`
	CanonicalNorm string         `gorm:"column:canonical_norm;not null;uniqueIndex:uq_alias_canonical" json:"canonical_norm"`
	Aliases       datatypes.JSON `gorm:"column:aliases;type:jsonb" json:"aliases"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (NamingAlias) TableName() string { return "naming_alias" }

func (n *NamingAlias) AliasList() []string {
	var out []string
	if len(n.Aliases) > 0 {
		_ = jsonUnmarshal(n.Aliases, &out)
	}
	return out
}
