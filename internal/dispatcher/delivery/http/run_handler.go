package http

import (
	"net/http"
	"strconv"

	"jetpredict-notifier/internal/dispatcher/dto"
	"jetpredict-notifier/internal/dispatcher/service"
	"jetpredict-notifier/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RunHandler handles HTTP requests for dispatch run history.
type RunHandler struct {
	runHistoryService service.RunHistoryService
	logger            *logger.Logger
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(runHistoryService service.RunHistoryService, logger *logger.Logger) *RunHandler {
	return &RunHandler{runHistoryService: runHistoryService, logger: logger}
}

// RegisterRoutes registers the run routes to the Echo group.
func (h *RunHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetRecentRuns)
	g.GET("/:id", h.GetRunByID)
}

// GetRecentRuns returns the most recent dispatch runs, newest first.
func (h *RunHandler) GetRecentRuns(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid limit"})
		}
		limit = parsed
	}

	runs, err := h.runHistoryService.GetRecentRuns(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, runs)
}

// GetRunByID returns a single dispatch run.
func (h *RunHandler) GetRunByID(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid run ID"})
	}

	run, err := h.runHistoryService.GetRunByID(c.Request().Context(), uint(id))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, run)
}
