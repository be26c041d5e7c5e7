package api

import (
	"context"

	"FinPolicy/internal/domain/models"
	xhttp "FinPolicy/pkg/http"
	applogger "FinPolicy/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Predictor serves filtered actions and sized proposals.
type Predictor interface {
	Predict(ctx context.Context, state models.TradingState) (*models.Prediction, error)
	Decide(ctx context.Context, req models.DecideRequest) (*models.TradeProposal, error)
}

// RiskEvaluator sizes one trade.
type RiskEvaluator interface {
	Evaluate(req models.RiskRequest) (*models.RiskManagementResult, error)
}

// MarketReader assembles market data from stored candles.
type MarketReader interface {
	MarketData(ctx context.Context, symbol string) (models.MarketData, error)
	FillDecide(ctx context.Context, req *models.DecideRequest) error
}

// DecisionHandler exposes inference and risk sizing.
type DecisionHandler struct {
	l      *applogger.Logger
	svc    Predictor
	risk   RiskEvaluator
	market MarketReader
}

// NewDecisionHandler builds the handler. market may be nil, in which case
// decide requests must carry their own market data.
func NewDecisionHandler(l *applogger.Logger, svc Predictor, risk RiskEvaluator, market MarketReader) *DecisionHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &DecisionHandler{l: l.Component("api.decisions"), svc: svc, risk: risk, market: market}
}

func (h *DecisionHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/predict", h.Predict)
	g.POST("/decide", h.Decide)
	g.POST("/risk/evaluate", h.EvaluateRisk)
	if h.market != nil {
		g.GET("/market/:symbol", h.Market)
	}
}

func (h *DecisionHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := h.svc.Predict(c.Request().Context(), req.State)
	if err != nil {
		h.l.Error("predict failed", applogger.String("symbol", req.State.Symbol), applogger.Error(err))
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *DecisionHandler) Decide(c echo.Context) error {
	req := &models.DecideRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	if h.market != nil {
		if err := h.market.FillDecide(ctx, req); err != nil {
			h.l.Warn("market data unavailable", applogger.String("symbol", req.State.Symbol), applogger.Error(err))
			return xhttp.ErrorResponse(c, err)
		}
	}
	p, err := h.svc.Decide(ctx, *req)
	if err != nil {
		h.l.Error("decide failed", applogger.String("symbol", req.State.Symbol), applogger.Error(err))
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, p)
}

// EvaluateRisk returns the full sizing result. A result that fails its
// validation is still returned so callers can read the reasons.
func (h *DecisionHandler) EvaluateRisk(c echo.Context) error {
	req := &models.RiskRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.risk.Evaluate(*req)
	if err != nil {
		h.l.Warn("risk evaluation failed", applogger.String("symbol", req.Symbol), applogger.Error(err))
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DecisionHandler) Market(c echo.Context) error {
	req := &models.MarketParams{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	md, err := h.market.MarketData(c.Request().Context(), req.Symbol)
	if err != nil {
		return xhttp.ErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, md)
}
