package dto

import "time"

// DispatchRunResponse is the DTO for API responses containing dispatch run details.
type DispatchRunResponse struct {
	ID        uint      `json:"id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Duration  int64     `json:"duration_ms"`
	Matched   int       `json:"matched"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Error     string    `json:"error,omitempty"`
}
