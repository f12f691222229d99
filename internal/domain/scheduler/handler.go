package scheduler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vitalsched/vitalsched/internal/domain/task"
	"github.com/vitalsched/vitalsched/internal/platform/auth"
	"github.com/vitalsched/vitalsched/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Devices and gateways push readings
	submitGroup := api.Group("", auth.RequireRole("admin", "device"))
	submitGroup.POST("/tasks", h.SubmitTask)

	// Operators run dispatch cycles
	opsGroup := api.Group("", auth.RequireRole("admin", "operator"))
	opsGroup.POST("/dispatch", h.Dispatch)

	// Read endpoints for dashboards and analysis
	readGroup := api.Group("", auth.RequireRole("admin", "operator", "analyst"))
	readGroup.GET("/queues/stats", h.QueueStats)
	readGroup.GET("/records", h.ListRecords)
	readGroup.GET("/metrics/summary", h.MetricsSummary)
}

// SubmitRequest is the body of POST /tasks. Urgency is optional; when empty
// it is classified from the vitals.
type SubmitRequest struct {
	PatientID int             `json:"patient_id"`
	Vitals    task.VitalSigns `json:"vitals"`
	Urgency   task.Urgency    `json:"urgency,omitempty"`
}

func (h *Handler) SubmitTask(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	if req.Urgency != "" && !req.Urgency.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid urgency")
	}

	result, err := h.svc.Submit(c.Request().Context(), req.PatientID, req.Vitals, req.Urgency)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !result.Accepted {
		return c.JSON(http.StatusTooManyRequests, result)
	}
	return c.JSON(http.StatusCreated, result)
}

// dispatchResponse combines the dispatch cycle outcome with how many of the
// dispatched tasks already executed.
type dispatchResponse struct {
	DispatchReport
	Executed int `json:"executed"`
}

func (h *Handler) Dispatch(c echo.Context) error {
	ctx := c.Request().Context()
	report, err := h.svc.DispatchQueued(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	executed := h.svc.ExecutePending(ctx)
	return c.JSON(http.StatusOK, dispatchResponse{DispatchReport: report, Executed: executed})
}

func (h *Handler) QueueStats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"queues":           h.svc.QueueStats(),
		"rejected":         h.svc.Rejected(),
		"edge_utilization": h.svc.EdgeUtilization(),
	})
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total := h.svc.Records(pg.Limit, pg.Offset)
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) MetricsSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.MetricsSummary())
}
