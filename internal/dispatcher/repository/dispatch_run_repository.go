package repository

import (
	"context"

	"jetpredict-notifier/internal/entity"

	"gorm.io/gorm"
)

// DispatchRunRepository defines the interface for dispatch run data operations.
type DispatchRunRepository interface {
	Create(ctx context.Context, run *entity.DispatchRun) error
	Update(ctx context.Context, run *entity.DispatchRun) error
	FindByID(ctx context.Context, id uint) (*entity.DispatchRun, error)
	FindRecent(ctx context.Context, limit int) ([]entity.DispatchRun, error)
}

// NewDispatchRunRepository creates a new GORM-based dispatch run repository.
func NewDispatchRunRepository(db *gorm.DB) DispatchRunRepository {
	return &dispatchRunRepository{db: db}
}

type dispatchRunRepository struct {
	db *gorm.DB
}

// Create creates a new dispatch run record.
func (r *dispatchRunRepository) Create(ctx context.Context, run *entity.DispatchRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Update updates a dispatch run record.
func (r *dispatchRunRepository) Update(ctx context.Context, run *entity.DispatchRun) error {
	return r.db.WithContext(ctx).Updates(run).Error
}

// FindByID retrieves a dispatch run record by its ID.
func (r *dispatchRunRepository) FindByID(ctx context.Context, id uint) (*entity.DispatchRun, error) {
	var run entity.DispatchRun
	if err := r.db.WithContext(ctx).First(&run, id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// FindRecent retrieves the most recent dispatch run records.
func (r *dispatchRunRepository) FindRecent(ctx context.Context, limit int) ([]entity.DispatchRun, error) {
	var runs []entity.DispatchRun
	if err := r.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
