package api

import (
	"context"
	"net/http"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/registry"
	xhttp "FinPolicy/pkg/http"
	applogger "FinPolicy/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ModelCatalog is the read side of the model registry.
type ModelCatalog interface {
	ListVersions(ctx context.Context, name string) ([]string, error)
	Active(ctx context.Context, name string) (*models.ActiveModel, error)
	VerifyModelIntegrity(ctx context.Context, name, version string) (*registry.IntegrityReport, error)
}

// PromotionHistory lists past promotions, newest first.
type PromotionHistory interface {
	History(ctx context.Context, name string, limit int) ([]models.ActiveModel, error)
}

// ModelsHandler exposes stored versions and integrity checks.
type ModelsHandler struct {
	l       *applogger.Logger
	catalog ModelCatalog
	history PromotionHistory
}

// NewModelsHandler builds the handler. history is optional.
func NewModelsHandler(l *applogger.Logger, catalog ModelCatalog, history PromotionHistory) *ModelsHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &ModelsHandler{l: l.Component("api.models"), catalog: catalog, history: history}
}

func (h *ModelsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/models")
	g.GET("/:name/versions", h.Versions)
	g.GET("/:name/active", h.Active)
	g.GET("/:name/versions/:version/integrity", h.Integrity)
	if h.history != nil {
		g.GET("/:name/history", h.History)
	}
}

func (h *ModelsHandler) Versions(c echo.Context) error {
	req := &models.ModelNameParams{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	versions, err := h.catalog.ListVersions(c.Request().Context(), req.Name)
	if err != nil {
		h.l.Error("list versions failed", applogger.String("model", req.Name), applogger.Error(err))
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, versions, int64(len(versions)))
}

func (h *ModelsHandler) Active(c echo.Context) error {
	req := &models.ModelNameParams{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	am, err := h.catalog.Active(c.Request().Context(), req.Name)
	if err != nil {
		return xhttp.ErrorResponse(c, err)
	}
	if am == nil {
		return xhttp.NotFoundResponse(c, []*xhttp.AppError{xhttp.NotFoundError("no promoted version").WithParam("model", req.Name)})
	}
	return xhttp.SuccessResponse(c, am)
}

// Integrity scores one stored version. "latest" resolves to the newest.
func (h *ModelsHandler) Integrity(c echo.Context) error {
	req := &models.ModelVersionParams{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rep, err := h.catalog.VerifyModelIntegrity(c.Request().Context(), req.Name, req.Version)
	if err != nil {
		h.l.Error("integrity check failed",
			applogger.String("model", req.Name),
			applogger.String("version", req.Version),
			applogger.Error(err),
		)
		return xhttp.ErrorResponse(c, err)
	}
	status := http.StatusOK
	if !rep.Valid {
		status = http.StatusUnprocessableEntity
	}
	return xhttp.DataResponse(c, status, rep)
}

func (h *ModelsHandler) History(c echo.Context) error {
	req := &models.HistoryParams{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.history.History(c.Request().Context(), req.Name, req.Limit)
	if err != nil {
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}
