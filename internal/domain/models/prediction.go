package models

import "time"

// Uncertainty splits prediction uncertainty into its parts.
type Uncertainty struct {
	Epistemic float64 `json:"epistemic"`
	Aleatoric float64 `json:"aleatoric"`
	Total     float64 `json:"total"`
	Samples   int     `json:"samples"`
}

// Prediction is one served inference, kept for audit and sample derivation.
type Prediction struct {
	ID              string       `json:"id"`
	Symbol          string       `json:"symbol"`
	Timeframe       string       `json:"timeframe"`
	Action          RLAction     `json:"action"`
	RawDirection    Direction    `json:"rawDirection"`
	Probabilities   []float64    `json:"probabilities"`
	LogProb         float64      `json:"logProb"`
	Value           float64      `json:"value"`
	ConstraintScore *float64     `json:"constraintScore,omitempty"`
	Uncertainty     Uncertainty  `json:"uncertainty"`
	Model           ModelRef     `json:"model"`
	Fallback        bool         `json:"fallback"`
	State           TradingState `json:"state"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// TradeProposal is handed to the execution layer. It is advice only.
type TradeProposal struct {
	ID         string                `json:"id"`
	Symbol     string                `json:"symbol"`
	Direction  Direction             `json:"direction"`
	Entry      float64               `json:"entry"`
	StopLoss   float64               `json:"stopLoss"`
	TakeProfit float64               `json:"takeProfit"`
	Lots       float64               `json:"lots"`
	Approved   bool                  `json:"approved"`
	Errors     []string              `json:"errors,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
	Prediction *Prediction           `json:"prediction"`
	Risk       *RiskManagementResult `json:"risk,omitempty"`
	CreatedAt  time.Time             `json:"createdAt"`
}
