package risk

import "FinPolicy/internal/domain/models"

// TakeProfit targets the configured R:R, never below MinRR nor above MaxRR,
// and lays out the partial exits.
func (e *Engine) TakeProfit(req models.RiskRequest, sl models.StopLossResult) models.TakeProfitResult {
	rr := clamp(e.cfg.TargetRR, e.cfg.MinRR, e.cfg.MaxRR)
	sign := req.Direction.Sign()
	res := models.TakeProfitResult{
		Distance:   sl.Distance * rr,
		RiskReward: rr,
	}
	res.Price = req.Entry + sign*res.Distance

	for _, p := range e.cfg.Partials {
		if p.Percent <= 0 || p.RMultiple <= 0 {
			continue
		}
		res.Partials = append(res.Partials, models.TakeProfitLevel{
			Price:     req.Entry + sign*sl.Distance*p.RMultiple,
			Percent:   p.Percent,
			RMultiple: p.RMultiple,
		})
	}
	return res
}
