package risk

// Stop placement modes.
const (
	// StopModeAuto uses multi-timeframe ATR when at least two timeframes are
	// available and the simplified regime table otherwise.
	StopModeAuto       = "auto"
	StopModeMultiTF    = "multi_tf"
	StopModeSimplified = "simplified"
)

// Option configures Engine.
type Option func(*Config)

// Coefficients is the regime table of the simplified stop mode. Factors
// compose multiplicatively starting from Neutral.
type Coefficients struct {
	Neutral    float64 `yaml:"neutral" default:"1.0"`
	HighVol    float64 `yaml:"high_vol" default:"1.5"`
	LowVol     float64 `yaml:"low_vol" default:"0.7"`
	Trending   float64 `yaml:"trending" default:"0.9"`
	Ranging    float64 `yaml:"ranging" default:"1.2"`
	NewsImpact float64 `yaml:"news_impact" default:"2.0"`
}

// PartialExit closes Percent of the position at RMultiple times the risk distance.
type PartialExit struct {
	Percent   float64 `yaml:"percent"`
	RMultiple float64 `yaml:"r_multiple"`
}

// Config holds every risk rule. Percentages are fractions (0.02 = 2%).
type Config struct {
	StopMode      string             `yaml:"stop_mode" default:"auto" validate:"oneof=auto multi_tf simplified"`
	PrimaryTF     string             `yaml:"primary_tf" default:"H1"`
	ATRWeights    map[string]float64 `yaml:"atr_weights"`
	BaseATRMult   float64            `yaml:"base_atr_multiplier" default:"1.5"`
	MinATRMult    float64            `yaml:"min_atr_multiplier" default:"1.0"`
	MaxATRMult    float64            `yaml:"max_atr_multiplier" default:"3.0"`
	HighVolFactor float64            `yaml:"high_vol_factor" default:"1.3"`
	RangingFactor float64            `yaml:"ranging_factor" default:"1.15"`
	StrongFactor  float64            `yaml:"strong_trend_factor" default:"0.85"`

	Coefficients   Coefficients `yaml:"coefficients"`
	MinCoefficient float64      `yaml:"min_coefficient" default:"0.5"`
	MaxCoefficient float64      `yaml:"max_coefficient" default:"3.0"`

	MinStopDistancePct float64 `yaml:"min_stop_distance_pct" default:"0.0005"`
	MaxStopDistancePct float64 `yaml:"max_stop_distance_pct" default:"0.03"`
	StructureMinRatio  float64 `yaml:"structure_min_ratio" default:"0.5"`
	StructureMaxRatio  float64 `yaml:"structure_max_ratio" default:"1.5"`
	EnforceSymbolPips  bool    `yaml:"enforce_symbol_pips" default:"true"`

	TargetRR float64       `yaml:"target_rr" default:"2.0"`
	MinRR    float64       `yaml:"min_rr" default:"1.5"`
	MaxRR    float64       `yaml:"max_rr" default:"3.0"`
	Partials []PartialExit `yaml:"partials"`

	MaxRiskPerTrade      float64 `yaml:"max_risk_per_trade" default:"0.02"`
	MaxPortfolioRisk     float64 `yaml:"max_portfolio_risk" default:"0.06"`
	MaxPositions         int     `yaml:"max_positions" default:"5"`
	MaxDailyLoss         float64 `yaml:"max_daily_loss" default:"0.05"`
	MaxDrawdown          float64 `yaml:"max_drawdown" default:"0.2"`
	CorrelationThreshold float64 `yaml:"correlation_threshold" default:"0.7"`
	MinVolFactor         float64 `yaml:"min_vol_factor" default:"0.3"`
	MaxVolFactor         float64 `yaml:"max_vol_factor" default:"1.5"`
	DrawdownFloor        float64 `yaml:"drawdown_floor" default:"0.25"`
	UseKelly             bool    `yaml:"use_kelly" default:"true"`
	KellyMultiplier      float64 `yaml:"kelly_multiplier" default:"0.25"`
	MinKellyTrades       int     `yaml:"min_kelly_trades" default:"20"`
	DefaultWinRate       float64 `yaml:"default_win_rate" default:"0.5"`
	WarnRiskRatio        float64 `yaml:"warn_risk_ratio" default:"0.75"`
}

// DefaultConfig mirrors the struct tag defaults.
func DefaultConfig() Config {
	return Config{
		StopMode:      StopModeAuto,
		PrimaryTF:     "H1",
		ATRWeights:    DefaultATRWeights(),
		BaseATRMult:   1.5,
		MinATRMult:    1.0,
		MaxATRMult:    3.0,
		HighVolFactor: 1.3,
		RangingFactor: 1.15,
		StrongFactor:  0.85,
		Coefficients: Coefficients{
			Neutral:    1.0,
			HighVol:    1.5,
			LowVol:     0.7,
			Trending:   0.9,
			Ranging:    1.2,
			NewsImpact: 2.0,
		},
		MinCoefficient:       0.5,
		MaxCoefficient:       3.0,
		MinStopDistancePct:   0.0005,
		MaxStopDistancePct:   0.03,
		StructureMinRatio:    0.5,
		StructureMaxRatio:    1.5,
		EnforceSymbolPips:    true,
		TargetRR:             2.0,
		MinRR:                1.5,
		MaxRR:                3.0,
		Partials:             DefaultPartials(),
		MaxRiskPerTrade:      0.02,
		MaxPortfolioRisk:     0.06,
		MaxPositions:         5,
		MaxDailyLoss:         0.05,
		MaxDrawdown:          0.2,
		CorrelationThreshold: 0.7,
		MinVolFactor:         0.3,
		MaxVolFactor:         1.5,
		DrawdownFloor:        0.25,
		UseKelly:             true,
		KellyMultiplier:      0.25,
		MinKellyTrades:       20,
		DefaultWinRate:       0.5,
		WarnRiskRatio:        0.75,
	}
}

// DefaultATRWeights concentrates 55% on H1 and H4.
func DefaultATRWeights() map[string]float64 {
	return map[string]float64{
		"M5":  0.10,
		"M15": 0.15,
		"H1":  0.30,
		"H4":  0.25,
		"D1":  0.20,
	}
}

// DefaultPartials exits 30/40/30 at 1R, 2R and 3R.
func DefaultPartials() []PartialExit {
	return []PartialExit{
		{Percent: 0.3, RMultiple: 1},
		{Percent: 0.4, RMultiple: 2},
		{Percent: 0.3, RMultiple: 3},
	}
}

// WithConfig replaces the whole rule set. Empty maps and slices keep defaults.
func WithConfig(c Config) Option {
	return func(dst *Config) {
		if len(c.ATRWeights) == 0 {
			c.ATRWeights = dst.ATRWeights
		}
		if len(c.Partials) == 0 {
			c.Partials = dst.Partials
		}
		*dst = c
	}
}

// WithStopMode selects the stop placement mode.
func WithStopMode(mode string) Option {
	return func(c *Config) { c.StopMode = mode }
}

// WithMaxRiskPerTrade sets the per-trade risk budget as a fraction of balance.
func WithMaxRiskPerTrade(pct float64) Option {
	return func(c *Config) { c.MaxRiskPerTrade = pct }
}

// WithKelly toggles Kelly scaling.
func WithKelly(enabled bool) Option {
	return func(c *Config) { c.UseKelly = enabled }
}
