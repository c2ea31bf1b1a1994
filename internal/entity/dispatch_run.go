package entity

import (
	"database/sql"
	"time"
)

// RunStatus is the lifecycle state of a dispatch run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusTimeout   RunStatus = "timeout"
)

// DispatchRun records one dispatcher tick: when it ran, how it ended and the
// matched/sent/failed/skipped counts for the run.
type DispatchRun struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Status       RunStatus      `gorm:"not null" json:"status"`
	StartedAt    time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt  sql.NullTime   `json:"completed_at"`
	Matched      int            `json:"matched"`
	Sent         int            `json:"sent"`
	Failed       int            `json:"failed"`
	Skipped      int            `json:"skipped"`
	ErrorMessage sql.NullString `json:"error_message"`
}

func (DispatchRun) TableName() string {
	return "dispatch_runs"
}
