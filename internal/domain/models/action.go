package models

// Direction is the discrete trade intent produced by the policy.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Policy output indices. The order is part of the persisted model format.
const (
	ActionBuy  = 0
	ActionSell = 1
	ActionHold = 2

	NumActions = 3
)

// DirectionFromIndex maps a policy output index to a Direction.
func DirectionFromIndex(i int) Direction {
	switch i {
	case ActionBuy:
		return DirectionBuy
	case ActionSell:
		return DirectionSell
	default:
		return DirectionHold
	}
}

// Index is the policy output index of d.
func (d Direction) Index() int {
	switch d {
	case DirectionBuy:
		return ActionBuy
	case DirectionSell:
		return ActionSell
	default:
		return ActionHold
	}
}

// Sign is +1 for BUY, -1 for SELL and 0 for HOLD.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionBuy:
		return 1
	case DirectionSell:
		return -1
	default:
		return 0
	}
}

// RLAction is the policy decision after the inference filters ran.
type RLAction struct {
	Direction      Direction `json:"direction"`
	Intensity      float64   `json:"intensity"`
	Confidence     float64   `json:"confidence"`
	RiskLevel      float64   `json:"riskLevel"`
	ExpectedReward float64   `json:"expectedReward"`
	Reasoning      []string  `json:"reasoning"`
}

// Hold neutralizes the action and records why.
func (a *RLAction) Hold(reason string) {
	a.Direction = DirectionHold
	a.Intensity = 0
	a.Reason(reason)
}

// Reason appends a human readable explanation.
func (a *RLAction) Reason(reason string) {
	a.Reasoning = append(a.Reasoning, reason)
}
