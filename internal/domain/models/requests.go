package models

// PredictRequest asks for a filtered action for one state.
type PredictRequest struct {
	State TradingState `json:"state"`
}

// DecideRequest runs prediction then risk sizing for a non-HOLD action.
type DecideRequest struct {
	State     TradingState  `json:"state"`
	Entry     float64       `json:"entry" validate:"gt=0"`
	Account   AccountInfo   `json:"account"`
	Specs     SymbolSpecs   `json:"specs"`
	Market    MarketData    `json:"market"`
	Positions []Position    `json:"positions"`
	Portfolio PortfolioRisk `json:"portfolio"`
	Stats     *TradeStats   `json:"stats,omitempty"`
}

// RiskRequest converts the decide request into the risk engine input.
func (r DecideRequest) RiskRequest(dir Direction, intensity float64) RiskRequest {
	return RiskRequest{
		Symbol:    r.State.Symbol,
		Direction: dir,
		Entry:     r.Entry,
		Intensity: intensity,
		Account:   r.Account,
		Specs:     r.Specs,
		Market:    r.Market,
		Positions: r.Positions,
		Portfolio: r.Portfolio,
		Stats:     r.Stats,
	}
}

// ModelVersionParams addresses one stored version.
type ModelVersionParams struct {
	Name    string `param:"name" validate:"required"`
	Version string `param:"version" validate:"required"`
}

// ModelNameParams addresses one model.
type ModelNameParams struct {
	Name string `param:"name" validate:"required"`
}

// MarketParams addresses one symbol.
type MarketParams struct {
	Symbol string `param:"symbol" validate:"required"`
}

// HistoryParams pages through past promotions.
type HistoryParams struct {
	Name  string `param:"name" validate:"required"`
	Limit int    `query:"limit" default:"20" validate:"gte=1,lte=500"`
}
