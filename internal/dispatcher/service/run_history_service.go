package service

import (
	"context"

	"jetpredict-notifier/internal/dispatcher/dto"
	"jetpredict-notifier/internal/dispatcher/repository"
	"jetpredict-notifier/internal/entity"
	"jetpredict-notifier/pkg/logger"
)

const defaultRunHistoryLimit = 50

// RunHistoryService defines the interface for reading dispatch run history.
type RunHistoryService interface {
	GetRunByID(ctx context.Context, id uint) (*dto.DispatchRunResponse, error)
	GetRecentRuns(ctx context.Context, limit int) ([]*dto.DispatchRunResponse, error)
}

// NewRunHistoryService creates a new run history service.
func NewRunHistoryService(runRepo repository.DispatchRunRepository, logger *logger.Logger) RunHistoryService {
	return &runHistoryService{
		runRepo: runRepo,
		logger:  logger,
	}
}

type runHistoryService struct {
	runRepo repository.DispatchRunRepository
	logger  *logger.Logger
}

// GetRunByID retrieves a dispatch run record by its ID.
func (s *runHistoryService) GetRunByID(ctx context.Context, id uint) (*dto.DispatchRunResponse, error) {
	run, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to find dispatch run", logger.ErrorField(err), logger.Field("run_id", id))
		return nil, err
	}
	return s.mapToRunResponse(run), nil
}

// GetRecentRuns retrieves the most recent dispatch run records.
func (s *runHistoryService) GetRecentRuns(ctx context.Context, limit int) ([]*dto.DispatchRunResponse, error) {
	if limit <= 0 {
		limit = defaultRunHistoryLimit
	}

	runs, err := s.runRepo.FindRecent(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to get recent dispatch runs", logger.ErrorField(err))
		return nil, err
	}

	var responses []*dto.DispatchRunResponse
	for _, run := range runs {
		responses = append(responses, s.mapToRunResponse(&run))
	}

	return responses, nil
}

// mapToRunResponse maps an entity.DispatchRun to a dto.DispatchRunResponse.
func (s *runHistoryService) mapToRunResponse(run *entity.DispatchRun) *dto.DispatchRunResponse {
	var duration int64
	if run.CompletedAt.Valid {
		duration = run.CompletedAt.Time.Sub(run.StartedAt).Milliseconds()
	}

	return &dto.DispatchRunResponse{
		ID:        run.ID,
		Status:    string(run.Status),
		StartedAt: run.StartedAt,
		Duration:  duration,
		Matched:   run.Matched,
		Sent:      run.Sent,
		Failed:    run.Failed,
		Skipped:   run.Skipped,
		Error:     run.ErrorMessage.String,
	}
}
