package risk

import (
	"fmt"
	"strings"

	"FinPolicy/internal/domain/models"
	"FinPolicy/pkg/errs"
)

// comfortableRR is the R:R below which a trade is flagged as merely adequate.
const comfortableRR = 2.0

// Validate checks a sized result against the account and portfolio limits.
func (e *Engine) Validate(req models.RiskRequest, res *models.RiskManagementResult) models.RiskValidation {
	v := models.RiskValidation{}
	m := res.Metrics
	maxRisk := e.cfg.MaxRiskPerTrade

	if m.RiskPercent > maxRisk {
		v.Errors = append(v.Errors, fmt.Sprintf("risk %.2f%% exceeds max %.2f%% per trade", m.RiskPercent*100, maxRisk*100))
	}
	if total := req.Portfolio.TotalRiskPct + m.RiskPercent; total > e.cfg.MaxPortfolioRisk {
		v.Errors = append(v.Errors, fmt.Sprintf("portfolio risk %.2f%% exceeds max %.2f%%", total*100, e.cfg.MaxPortfolioRisk*100))
	}
	if m.RiskRewardRatio < e.cfg.MinRR {
		v.Errors = append(v.Errors, fmt.Sprintf("risk:reward %.2f below minimum %.2f", m.RiskRewardRatio, e.cfg.MinRR))
	}
	if n := len(req.Positions); n >= e.cfg.MaxPositions {
		v.Errors = append(v.Errors, fmt.Sprintf("%d open positions, max %d", n, e.cfg.MaxPositions))
	}
	if req.Portfolio.DailyLossPct >= e.cfg.MaxDailyLoss {
		v.Errors = append(v.Errors, fmt.Sprintf("daily loss %.2f%% reached limit %.2f%%", req.Portfolio.DailyLossPct*100, e.cfg.MaxDailyLoss*100))
	}
	if req.Portfolio.CurrentDrawdownPct >= e.cfg.MaxDrawdown {
		v.Errors = append(v.Errors, fmt.Sprintf("drawdown %.2f%% reached max %.2f%%", req.Portfolio.CurrentDrawdownPct*100, e.cfg.MaxDrawdown*100))
	}

	if m.RiskPercent > maxRisk*e.cfg.WarnRiskRatio {
		v.Warnings = append(v.Warnings, fmt.Sprintf("risk %.2f%% is above %.0f%% of the per-trade max", m.RiskPercent*100, e.cfg.WarnRiskRatio*100))
	}
	if m.RiskRewardRatio < comfortableRR {
		v.Warnings = append(v.Warnings, fmt.Sprintf("risk:reward %.2f is only adequate", m.RiskRewardRatio))
	}
	if m.ExpectedValue < 0 {
		v.Warnings = append(v.Warnings, "negative expected value")
	}

	v.IsValid = len(v.Errors) == 0
	return v
}

// Approve returns a KindRiskLimit error naming every hard failure.
func Approve(res *models.RiskManagementResult) error {
	if res == nil {
		return errs.New(errs.KindValidation, "approve", "nil risk result")
	}
	if res.Validation.IsValid {
		return nil
	}
	return errs.New(errs.KindRiskLimit, "approve", strings.Join(res.Validation.Errors, "; "))
}

// ExpectedValue in account currency for a trade risking risk to make risk*rr.
func ExpectedValue(winRate, rr, risk float64) float64 {
	return winRate*rr*risk - (1-winRate)*risk
}
