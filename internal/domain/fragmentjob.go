package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobDead      = "dead"
)

// FragmentJob is one queued unit of pipeline work: score, extract and write
// assertions for a single fragment. Jobs are claimed with SKIP LOCKED so any
// number of workers can share the table; stale running jobs are reclaimed
// after their heartbeat goes quiet.
type FragmentJob struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EngagementID uuid.UUID  `gorm:"type:uuid;not null;index" json:"engagement_id"`
	FragmentID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"fragment_id"`
	Status       string     `gorm:"column:status;not null;default:'queued';index" json:"status"`
	Attempts     int        `gorm:"column:attempts;default:0" json:"attempts"`
	LastError    string     `gorm:"column:last_error" json:"last_error,omitempty"`
	LastErrorAt  *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	LockedAt     *time.Time `gorm:"column:locked_at" json:"locked_at,omitempty"`
	HeartbeatAt  *time.Time `gorm:"column:heartbeat_at" json:"heartbeat_at,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (FragmentJob) TableName() string { return "fragment_job" }
