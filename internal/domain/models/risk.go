package models

// Trend describes the prevailing market structure.
type Trend string

const (
	TrendNeutral    Trend = "neutral"
	TrendUp         Trend = "up"
	TrendDown       Trend = "down"
	TrendStrongUp   Trend = "strong_up"
	TrendStrongDown Trend = "strong_down"
	TrendRanging    Trend = "ranging"
)

// Trending reports any directional trend.
func (t Trend) Trending() bool {
	return t == TrendUp || t == TrendDown || t == TrendStrongUp || t == TrendStrongDown
}

// Strong reports a strong directional trend.
func (t Trend) Strong() bool {
	return t == TrendStrongUp || t == TrendStrongDown
}

// AccountInfo is a read-only broker snapshot.
type AccountInfo struct {
	Balance    float64 `json:"balance" validate:"gt=0"`
	Equity     float64 `json:"equity" validate:"gte=0"`
	Margin     float64 `json:"margin" validate:"gte=0"`
	FreeMargin float64 `json:"freeMargin" validate:"gte=0"`
	Leverage   int     `json:"leverage" default:"100"`
	Currency   string  `json:"currency" default:"USD"`
}

// SymbolSpecs are instrument facts. PipSize defaults from the symbol when zero.
type SymbolSpecs struct {
	Symbol       string  `json:"symbol" validate:"required"`
	MinLot       float64 `json:"minLot" default:"0.01" validate:"gt=0"`
	MaxLot       float64 `json:"maxLot" default:"100" validate:"gtfield=MinLot"`
	LotStep      float64 `json:"lotStep" default:"0.01" validate:"gt=0"`
	TickValue    float64 `json:"tickValue" validate:"gte=0"`
	TickSize     float64 `json:"tickSize" validate:"gte=0"`
	ContractSize float64 `json:"contractSize" default:"100000"`
	PipSize      float64 `json:"pipSize"`
}

// ATRData is one timeframe's average true range.
type ATRData struct {
	Timeframe string  `json:"timeframe"`
	Value     float64 `json:"value"`
}

// MarketStructure carries structural levels and the regime read.
// Volatility is current over average volatility, 1.0 meaning normal.
type MarketStructure struct {
	Support    []float64 `json:"support"`
	Resistance []float64 `json:"resistance"`
	Trend      Trend     `json:"trend"`
	Volatility float64   `json:"volatility"`
}

type MarketData struct {
	ATRData    []ATRData       `json:"atrData"`
	Structure  MarketStructure `json:"marketStructure"`
	NewsImpact bool            `json:"newsImpact"`
}

// ATR returns the value for a timeframe, or 0.
func (m MarketData) ATR(tf string) float64 {
	for _, a := range m.ATRData {
		if a.Timeframe == tf {
			return a.Value
		}
	}
	return 0
}

// Position is an open broker position.
type Position struct {
	Symbol        string    `json:"symbol"`
	Direction     Direction `json:"direction"`
	Lots          float64   `json:"lots"`
	EntryPrice    float64   `json:"entryPrice"`
	StopLoss      float64   `json:"stopLoss"`
	RiskAmount    float64   `json:"riskAmount"`
	UnrealizedPnL float64   `json:"unrealizedPnl"`
}

// PortfolioRisk summarizes account level exposure. Percentages are fractions.
type PortfolioRisk struct {
	TotalRiskPct       float64            `json:"totalRiskPct"`
	DailyLossPct       float64            `json:"dailyLossPct"`
	CurrentDrawdownPct float64            `json:"currentDrawdownPct"`
	RiskLevel          float64            `json:"riskLevel"`
	Correlations       map[string]float64 `json:"correlations,omitempty"`
}

// TradeStats feed the Kelly fraction.
type TradeStats struct {
	WinRate float64 `json:"winRate"`
	AvgWin  float64 `json:"avgWin"`
	AvgLoss float64 `json:"avgLoss"`
	Trades  int     `json:"trades"`
}

// RiskRequest is everything the risk engine needs to size one proposal.
type RiskRequest struct {
	Symbol    string         `json:"symbol" validate:"required"`
	Direction Direction      `json:"direction" validate:"oneof=BUY SELL"`
	Entry     float64        `json:"entry" validate:"gt=0"`
	Intensity float64        `json:"intensity" default:"1"`
	Account   AccountInfo    `json:"account"`
	Specs     SymbolSpecs    `json:"specs"`
	Market    MarketData     `json:"market"`
	Positions []Position     `json:"positions"`
	Portfolio PortfolioRisk  `json:"portfolio"`
	Stats     *TradeStats    `json:"stats,omitempty"`
}

type StopLossResult struct {
	Price          float64 `json:"price"`
	Distance       float64 `json:"distance"`
	Pips           float64 `json:"pips"`
	Method         string  `json:"method"`
	ATR            float64 `json:"atr"`
	Multiplier     float64 `json:"multiplier"`
	StructureLevel float64 `json:"structureLevel,omitempty"`
}

type TakeProfitLevel struct {
	Price     float64 `json:"price"`
	Percent   float64 `json:"percent"`
	RMultiple float64 `json:"rMultiple"`
}

type TakeProfitResult struct {
	Price      float64           `json:"price"`
	Distance   float64           `json:"distance"`
	RiskReward float64           `json:"riskReward"`
	Partials   []TakeProfitLevel `json:"partials,omitempty"`
}

type SizeAdjustment struct {
	Name   string  `json:"name"`
	Factor float64 `json:"factor"`
}

type PositionSizeResult struct {
	Lots        float64          `json:"lots"`
	RawLots     float64          `json:"rawLots"`
	RiskAmount  float64          `json:"riskAmount"`
	Adjustments []SizeAdjustment `json:"adjustments,omitempty"`
}

type RiskMetrics struct {
	RiskAmount      float64 `json:"riskAmount"`
	RiskPercent     float64 `json:"riskPercent"`
	RiskRewardRatio float64 `json:"riskRewardRatio"`
	ExpectedValue   float64 `json:"expectedValue"`
	KellyFraction   float64 `json:"kellyFraction"`
	PipValuePerLot  float64 `json:"pipValuePerLot"`
}

type RiskValidation struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// RiskManagementResult lives for one decision and is never persisted.
type RiskManagementResult struct {
	Symbol          string             `json:"symbol"`
	Direction       Direction          `json:"direction"`
	Entry           float64            `json:"entry"`
	StopLoss        StopLossResult     `json:"stopLoss"`
	TakeProfit      TakeProfitResult   `json:"takeProfit"`
	PositionSize    PositionSizeResult `json:"positionSize"`
	Metrics         RiskMetrics        `json:"riskMetrics"`
	Validation      RiskValidation     `json:"validation"`
	Recommendations []string           `json:"recommendations,omitempty"`
}
