package http

import (
	"net/http"

	"jetpredict-notifier/internal/dispatcher/dto"
	"jetpredict-notifier/internal/dispatcher/service"
	"jetpredict-notifier/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DispatchHandler handles HTTP requests for manual dispatch triggers.
type DispatchHandler struct {
	dispatcherService service.DispatcherService
	logger            *logger.Logger
}

// NewDispatchHandler creates a new DispatchHandler.
func NewDispatchHandler(dispatcherService service.DispatcherService, logger *logger.Logger) *DispatchHandler {
	return &DispatchHandler{dispatcherService: dispatcherService, logger: logger}
}

// RegisterRoutes registers the dispatch routes to the Echo group.
func (h *DispatchHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.TriggerDispatch)
}

// TriggerDispatch runs one dispatch cycle outside the cron schedule and
// returns its summary.
func (h *DispatchHandler) TriggerDispatch(c echo.Context) error {
	summary, err := h.dispatcherService.Dispatch(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, summary)
}
