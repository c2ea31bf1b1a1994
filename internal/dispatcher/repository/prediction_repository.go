package repository

import (
	"context"
	"time"

	"jetpredict-notifier/internal/dispatcher/dto"
	"jetpredict-notifier/internal/entity"
	"jetpredict-notifier/pkg/logger"
	"jetpredict-notifier/pkg/utils"

	"gorm.io/gorm"
)

// PredictionRepository answers the due-entries query: every prediction entry
// whose scheduled time falls inside a given half-open window. Callers stay
// decoupled from how the match is computed, so a time-indexed store can
// replace the scan without touching the dispatcher.
type PredictionRepository interface {
	FindDue(ctx context.Context, windowStart, windowEnd time.Time) ([]dto.DueEntry, error)
}

// NewPredictionRepository creates a new GORM-based prediction repository.
func NewPredictionRepository(db *gorm.DB, logger *logger.Logger) PredictionRepository {
	return &predictionRepository{db: db, logger: logger}
}

type predictionRepository struct {
	db     *gorm.DB
	logger *logger.Logger
}

// FindDue scans all prediction batches and returns the entries whose scheduled
// time, constructed on windowStart's calendar date, lies in [windowStart, windowEnd).
func (r *predictionRepository) FindDue(ctx context.Context, windowStart, windowEnd time.Time) ([]dto.DueEntry, error) {
	var batches []entity.PredictionBatch
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&batches).Error; err != nil {
		return nil, err
	}

	return r.collectDue(batches, windowStart, windowEnd), nil
}

// collectDue matches batch entries against the window. Batches without an
// owner or entries, and entries with unparseable times, are skipped.
func (r *predictionRepository) collectDue(batches []entity.PredictionBatch, windowStart, windowEnd time.Time) []dto.DueEntry {
	var due []dto.DueEntry

	for _, batch := range batches {
		if batch.OwnerID == "" {
			continue
		}
		entries, err := batch.DecodedEntries()
		if err != nil {
			r.logger.Warn("Failed to decode batch entries", logger.ErrorField(err), logger.Field("batch_id", batch.ID))
			continue
		}
		if len(entries) == 0 {
			continue
		}

		for i, entry := range entries {
			hour, minute, err := utils.ParseClockTime(entry.Time)
			if err != nil {
				r.logger.Debug("Skipping entry with invalid time", logger.StringField("time", entry.Time), logger.Field("batch_id", batch.ID))
				continue
			}

			// The timestamp is pinned to windowStart's calendar date, not the
			// tick's. When a tick straddles midnight the window opens on the
			// next day, and a "00:00" entry must resolve to that day to match.
			at := utils.AtClock(windowStart, hour, minute)
			if at.Before(windowStart) || !at.Before(windowEnd) {
				continue
			}

			due = append(due, dto.DueEntry{
				BatchID:        batch.ID,
				EntryIndex:     i,
				OwnerID:        batch.OwnerID,
				Time:           entry.Time,
				PredictedValue: entry.PredictedValue,
				At:             at,
			})
		}
	}

	return due
}
