package entity

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// PredictionEntry is a single predicted round within a batch: a wall-clock
// "HH:MM" time and the predicted crash multiplier for that round.
type PredictionEntry struct {
	Time           string  `json:"time"`
	PredictedValue float64 `json:"predicted_value"`
}

// PredictionBatch is one generation event: an ordered list of prediction
// entries produced for a single user. Batches are written by the prediction
// generation flow and only read here.
type PredictionBatch struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	OwnerID         string         `gorm:"not null;index" json:"owner_id"`
	Entries         datatypes.JSON `gorm:"type:jsonb" json:"entries"`
	SavedStrategies datatypes.JSON `gorm:"type:jsonb" json:"saved_strategies"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (PredictionBatch) TableName() string {
	return "prediction_batches"
}

// DecodedEntries unmarshals the stored entries list, preserving insertion order.
func (b *PredictionBatch) DecodedEntries() ([]PredictionEntry, error) {
	if len(b.Entries) == 0 {
		return nil, nil
	}
	var entries []PredictionEntry
	if err := json.Unmarshal(b.Entries, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
