package models

import (
	"math"
	"time"

	"FinPolicy/pkg/errs"
)

// DefaultFeatureDim is the length of the feature vector fed to the policy.
const DefaultFeatureDim = 50

// TradingState is an immutable observation consumed by one prediction.
type TradingState struct {
	Features  []float64      `json:"features" validate:"required,min=1"`
	Timestamp time.Time      `json:"timestamp"`
	Symbol    string         `json:"symbol" validate:"required"`
	Timeframe string         `json:"timeframe" default:"H1"`
	Market    MarketContext  `json:"market"`
	Position  PositionState  `json:"position"`
	Portfolio PortfolioState `json:"portfolio"`
}

type MarketContext struct {
	Price      float64  `json:"price"`
	Volatility float64  `json:"volatility"`
	Trend      Trend    `json:"trend"`
	Sessions   []string `json:"sessions,omitempty"`
	NewsImpact bool     `json:"newsImpact"`
}

type PositionState struct {
	Direction     Direction `json:"direction,omitempty"`
	Size          float64   `json:"size"`
	UnrealizedPnL float64   `json:"unrealizedPnl"`
}

type PortfolioState struct {
	Equity    float64 `json:"equity"`
	Margin    float64 `json:"margin"`
	RiskLevel float64 `json:"riskLevel" validate:"gte=0,lte=1"`
}

// Validate checks the feature vector against the network input size.
func (s TradingState) Validate(dim int) error {
	const op = "validate state"
	if len(s.Features) != dim {
		return errs.Newf(errs.KindValidation, op, "feature length %d, want %d", len(s.Features), dim)
	}
	for i, v := range s.Features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.Newf(errs.KindValidation, op, "feature %d is not finite", i)
		}
	}
	return nil
}
