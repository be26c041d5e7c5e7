package inference

import (
	"fmt"
	"time"

	"FinPolicy/internal/domain/models"
)

// ApplyFilters runs the decision filters in order. Each filter that fires
// appends its reason; none of them removes information from the action.
func ApplyFilters(a *models.RLAction, state models.TradingState, at time.Time, cfg *Config) {
	if a.Confidence < cfg.MinConfidence {
		a.Hold(fmt.Sprintf("low confidence %.2f below threshold %.2f", a.Confidence, cfg.MinConfidence))
	}
	if a.RiskLevel > cfg.HighRiskLevel && a.Direction != models.DirectionHold {
		a.Intensity /= 2
		a.Reason(fmt.Sprintf("high risk level %.2f, intensity halved", a.RiskLevel))
	}
	if rl := state.Portfolio.RiskLevel; rl > cfg.PortfolioLimit && a.Direction != models.DirectionHold {
		a.Hold(fmt.Sprintf("portfolio risk level %.2f above %.2f", rl, cfg.PortfolioLimit))
	}
	if !inWindow(at.UTC().Hour(), cfg.OptimalStart, cfg.OptimalEnd) && a.Direction != models.DirectionHold {
		a.Intensity *= cfg.OffHoursFactor
		a.Reason(fmt.Sprintf("outside optimal hours %02d-%02d UTC, intensity x%.2f", cfg.OptimalStart, cfg.OptimalEnd, cfg.OffHoursFactor))
	}
}

// inWindow handles windows that wrap midnight.
func inWindow(hour, start, end int) bool {
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
