package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	xhttp "FinPolicy/pkg/http"

	"github.com/labstack/echo/v4"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// ReadinessHandler runs dependency checks for /readyz.
type ReadinessHandler struct {
	checks  map[string]Check
	timeout time.Duration
}

func NewReadinessHandler(checks map[string]Check, timeout time.Duration) *ReadinessHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ReadinessHandler{checks: checks, timeout: timeout}
}

func (h *ReadinessHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/readyz", h.Ready)
}

// Ready answers 200 when every check passes and 503 otherwise, listing each
// dependency's result.
func (h *ReadinessHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make(map[string]string, len(names))
	status := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			result[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}
	return xhttp.DataResponse(c, status, result)
}
