package dto

import "time"

// DueEntry is one prediction entry whose scheduled time falls inside the
// current dispatch window, resolved to a concrete timestamp.
type DueEntry struct {
	BatchID        uint      `json:"batch_id"`
	EntryIndex     int       `json:"entry_index"`
	OwnerID        string    `json:"owner_id"`
	Time           string    `json:"time"`
	PredictedValue float64   `json:"predicted_value"`
	At             time.Time `json:"at"`
}

// DispatchSummary is the outcome of a single dispatch run.
type DispatchSummary struct {
	RunID       uint      `json:"run_id"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	Matched     int       `json:"matched"`
	Sent        int       `json:"sent"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}
