package models

import "time"

// SchemaVersion of the persisted model payload.
const SchemaVersion = 1

// ModelKind tags which heads a model carries.
type ModelKind string

const (
	ModelKindPPO  ModelKind = "ppo"
	ModelKindCPPO ModelKind = "cppo"
)

// Valid reports whether k is a known kind.
func (k ModelKind) Valid() bool {
	return k == ModelKindPPO || k == ModelKindCPPO
}

// LayerWeights is one dense layer. Weights is out x in, Biases has length out.
type LayerWeights struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// ModelWeights is the persisted form of a policy/value(/constraint) model.
// Values are immutable once saved; a retrain always produces a new version.
type ModelWeights struct {
	SchemaVersion int            `json:"schemaVersion"`
	Kind          ModelKind      `json:"kind"`
	PolicyNet     []LayerWeights `json:"policyNet"`
	ValueNet      []LayerWeights `json:"valueNet"`
	ConstraintNet []LayerWeights `json:"constraintNet,omitempty"`
	Metadata      ModelMetadata  `json:"metadata"`
}

type ModelMetadata struct {
	Name             string    `json:"name,omitempty"`
	Version          string    `json:"version"`
	Kind             ModelKind `json:"kind"`
	TrainingDate     time.Time `json:"trainingDate"`
	TrainingEpisodes int       `json:"trainingEpisodes"`
	Accuracy         float64   `json:"accuracy"`
	Sharpe           float64   `json:"sharpe"`
	WinRate          float64   `json:"winRate"`
	MaxDrawdown      float64   `json:"maxDrawdown"`
	ValidationReward float64   `json:"validationReward"`
	Checksum         uint64    `json:"checksum,string,omitempty"`
	ModelSizeBytes   int64     `json:"modelSizeBytes"`
	InputDim         int       `json:"inputDim"`
	HiddenDims       []int     `json:"hiddenDims,omitempty"`
}

// Clone returns a deep copy.
func (w *ModelWeights) Clone() *ModelWeights {
	if w == nil {
		return nil
	}
	out := *w
	out.PolicyNet = cloneLayers(w.PolicyNet)
	out.ValueNet = cloneLayers(w.ValueNet)
	out.ConstraintNet = cloneLayers(w.ConstraintNet)
	out.Metadata.HiddenDims = append([]int(nil), w.Metadata.HiddenDims...)
	return &out
}

func cloneLayers(in []LayerWeights) []LayerWeights {
	if in == nil {
		return nil
	}
	out := make([]LayerWeights, len(in))
	for i, l := range in {
		rows := make([][]float64, len(l.Weights))
		for r, row := range l.Weights {
			rows[r] = append([]float64(nil), row...)
		}
		out[i] = LayerWeights{Weights: rows, Biases: append([]float64(nil), l.Biases...)}
	}
	return out
}

// ModelRef names a model version in the registry.
type ModelRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ActiveModel is the promotion record of the version currently serving.
type ActiveModel struct {
	Name             string    `json:"name" db:"model_name"`
	Version          string    `json:"version" db:"version"`
	ValidationReward float64   `json:"validationReward" db:"validation_reward"`
	PromotedAt       time.Time `json:"promotedAt" db:"promoted_at"`
}
