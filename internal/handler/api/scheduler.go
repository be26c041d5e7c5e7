package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/scheduler"
	xhttp "FinPolicy/pkg/http"
	applogger "FinPolicy/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CycleRunner triggers and reports retrain cycles.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*models.CycleSummary, error)
	Status() scheduler.Status
}

// SchedulerHandler lets operators run a cycle outside the cadence.
type SchedulerHandler struct {
	l       *applogger.Logger
	sched   CycleRunner
	timeout time.Duration
}

// NewSchedulerHandler builds the handler. Background cycles are bounded by
// timeout.
func NewSchedulerHandler(l *applogger.Logger, sched CycleRunner, timeout time.Duration) *SchedulerHandler {
	if l == nil {
		l = applogger.Nop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &SchedulerHandler{l: l.Component("api.scheduler"), sched: sched, timeout: timeout}
}

func (h *SchedulerHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/scheduler")
	g.POST("/run", h.Run)
	g.GET("/status", h.Status)
}

// Run starts a cycle. With ?wait=true the summary is returned once the cycle
// ends, otherwise the cycle runs in the background and 202 is returned.
func (h *SchedulerHandler) Run(c echo.Context) error {
	wait, err := parseWait(c.QueryParam("wait"))
	if err != nil {
		return xhttp.BadRequestResponse(c, []*xhttp.AppError{xhttp.BadRequestError("wait must be a boolean").WithParam("wait", c.QueryParam("wait"))})
	}

	if wait {
		sum, err := h.sched.RunCycle(c.Request().Context())
		if errors.Is(err, scheduler.ErrCycleInFlight) {
			return inFlight(c)
		}
		if err != nil {
			h.l.Error("manual cycle failed", applogger.Error(err))
			return xhttp.ErrorResponse(c, err)
		}
		return xhttp.SuccessResponse(c, sum)
	}

	if h.sched.Status().Running {
		return inFlight(c)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		sum, err := h.sched.RunCycle(ctx)
		switch {
		case errors.Is(err, scheduler.ErrCycleInFlight):
			h.l.Info("manual cycle skipped, another is running")
		case err != nil:
			h.l.Error("manual cycle failed", applogger.Error(err))
		default:
			h.l.Info("manual cycle finished",
				applogger.String("cycle_id", sum.ID),
				applogger.String("outcome", string(sum.Outcome)),
			)
		}
	}()
	return xhttp.AcceptedResponse(c, h.sched.Status())
}

func (h *SchedulerHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.sched.Status())
}

// echo binds query params for GET and DELETE only, so POST reads it here.
func parseWait(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func inFlight(c echo.Context) error {
	return xhttp.DataResponse(c, http.StatusConflict, []*xhttp.AppError{
		xhttp.NewAppError("ERR_CYCLE_IN_FLIGHT", "", scheduler.ErrCycleInFlight.Error(), http.StatusConflict),
	})
}
