package repository

import (
	"context"
	"fmt"
	"time"

	"jetpredict-notifier/pkg/common"
	redisPkg "jetpredict-notifier/pkg/redis"
)

// AlertMarkerRepository tracks which (batch, entry, date) alerts were already
// dispatched, so a neighboring tick re-matching the same entry is a no-op.
type AlertMarkerRepository interface {
	Acquire(ctx context.Context, batchID uint, entryIndex int, day time.Time) (bool, error)
	RecordLastRun(ctx context.Context, matched, sent, failed int, at time.Time) error
}

// NewAlertMarkerRepository creates a Redis-backed alert marker repository.
// markerTTL only needs to outlive adjacent ticks; tomorrow's identical time
// slot gets a fresh key because the calendar date is part of it.
func NewAlertMarkerRepository(redisClient *redisPkg.Client, markerTTL time.Duration) AlertMarkerRepository {
	return &alertMarkerRepository{
		redisClient: redisClient,
		markerTTL:   markerTTL,
	}
}

type alertMarkerRepository struct {
	redisClient *redisPkg.Client
	markerTTL   time.Duration
}

// Acquire claims the idempotency marker for one entry. It returns false when
// another run already claimed it.
func (r *alertMarkerRepository) Acquire(ctx context.Context, batchID uint, entryIndex int, day time.Time) (bool, error) {
	key := fmt.Sprintf(common.RedisKeyAlertMarker, batchID, entryIndex, day.Format(common.MarkerDateLayout))
	return r.redisClient.SetNX(ctx, key, time.Now().Unix(), r.markerTTL).Result()
}

// RecordLastRun stores the latest run counters for operational visibility.
func (r *alertMarkerRepository) RecordLastRun(ctx context.Context, matched, sent, failed int, at time.Time) error {
	pipe := r.redisClient.Pipeline()
	pipe.HSet(ctx, common.RedisKeyLastRun, map[string]interface{}{
		"matched":   matched,
		"sent":      sent,
		"failed":    failed,
		"timestamp": at.Unix(),
	})
	pipe.Expire(ctx, common.RedisKeyLastRun, 24*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}
