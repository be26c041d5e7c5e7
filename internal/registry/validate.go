package registry

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/nn"
	"FinPolicy/pkg/errs"
	applogger "FinPolicy/pkg/logger"
)

// ValidationReport lists hard errors and soft warnings for a payload.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// IntegrityReport extends validation with quality checks on the metadata.
type IntegrityReport struct {
	Ref      models.ModelRef `json:"ref"`
	Valid    bool            `json:"valid"`
	Score    float64         `json:"score"`
	Errors   []string        `json:"errors,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Issues   []string        `json:"issues,omitempty"`
	Age      time.Duration   `json:"age"`
	Checksum string          `json:"checksum,omitempty"`
}

// Quality floors below which a stored model is flagged.
const (
	minSharpe      = 1.0
	minWinRate     = 0.5
	maxDrawdownCap = 0.2
)

// ValidateModel checks structure, finiteness and the checksum of an in-memory
// payload. A checksum mismatch is a hard error; a missing checksum or missing
// descriptive metadata only warns, since SaveModel stamps the checksum.
func (r *Registry) ValidateModel(w *models.ModelWeights) ValidationReport {
	return validateWeights(w, false)
}

// validateStored is ValidateModel for payloads read back from storage, where
// every model was written with a checksum and its absence means tampering.
func validateStored(w *models.ModelWeights) ValidationReport {
	return validateWeights(w, true)
}

func validateWeights(w *models.ModelWeights, stored bool) ValidationReport {
	rep := ValidationReport{}
	if w == nil {
		rep.Errors = append(rep.Errors, "weights are nil")
		return rep
	}

	if err := nn.CheckStructure(w); err != nil {
		rep.Errors = append(rep.Errors, err.Error())
	}
	if bad := countNonFinite(w); bad > 0 {
		rep.Errors = append(rep.Errors, fmt.Sprintf("%d non-finite parameters", bad))
	}
	if w.Metadata.Checksum != 0 {
		if got := nn.Checksum(w); got != w.Metadata.Checksum {
			rep.Errors = append(rep.Errors, fmt.Sprintf("checksum mismatch: stored %016x, computed %016x", w.Metadata.Checksum, got))
		}
	} else if stored {
		rep.Errors = append(rep.Errors, "checksum is missing")
	} else {
		rep.Warnings = append(rep.Warnings, "checksum is missing")
	}

	if w.Metadata.Version == "" {
		rep.Warnings = append(rep.Warnings, "metadata version is missing")
	}
	if w.Metadata.TrainingDate.IsZero() {
		rep.Warnings = append(rep.Warnings, "metadata training date is missing")
	}

	rep.Valid = len(rep.Errors) == 0
	return rep
}

func countNonFinite(w *models.ModelWeights) int {
	n := 0
	for _, head := range [][]models.LayerWeights{w.PolicyNet, w.ValueNet, w.ConstraintNet} {
		for _, l := range head {
			for _, row := range l.Weights {
				for _, v := range row {
					if math.IsNaN(v) || math.IsInf(v, 0) {
						n++
					}
				}
			}
			for _, v := range l.Biases {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					n++
				}
			}
		}
	}
	return n
}

// VerifyModelIntegrity reads a version straight from storage (bypassing the
// cache) and scores it. The score starts at 1, loses 0.1 per warning and 0.2
// per quality issue, and is 0 when any hard check fails.
func (r *Registry) VerifyModelIntegrity(ctx context.Context, name, version string) (*IntegrityReport, error) {
	const op = "verify integrity"
	if version == "" || version == Latest {
		v, err := r.GetLatestVersion(ctx, name)
		if err != nil {
			return nil, err
		}
		version = v
	}

	data, err := r.store.Get(ctx, r.key(name, version, modelFile))
	if err != nil {
		return nil, errs.Wrap(errs.KindResource, op, err)
	}

	rep := &IntegrityReport{Ref: models.ModelRef{Name: name, Version: version}}
	w, err := decodeWeights(data)
	if err != nil {
		rep.Errors = append(rep.Errors, err.Error())
		return rep, nil
	}
	rep.Checksum = fmt.Sprintf("%016x", w.Metadata.Checksum)

	v := validateStored(w)
	rep.Errors = append(rep.Errors, v.Errors...)
	rep.Warnings = append(rep.Warnings, v.Warnings...)

	if meta, err := r.ReadMetadata(ctx, name, version); err != nil {
		rep.Warnings = append(rep.Warnings, "metadata.json unreadable: "+err.Error())
	} else if meta.Checksum != w.Metadata.Checksum {
		rep.Errors = append(rep.Errors, fmt.Sprintf("metadata.json checksum %016x does not match model.json %016x", meta.Checksum, w.Metadata.Checksum))
	}

	meta := w.Metadata
	if !meta.TrainingDate.IsZero() {
		rep.Age = r.cfg.Now().Sub(meta.TrainingDate)
		if rep.Age > r.cfg.MaxAge {
			rep.Issues = append(rep.Issues, fmt.Sprintf("model is %d days old", int(rep.Age.Hours()/24)))
		}
	}
	if meta.Sharpe < minSharpe {
		rep.Issues = append(rep.Issues, fmt.Sprintf("sharpe %.2f below %.1f", meta.Sharpe, minSharpe))
	}
	if meta.WinRate < minWinRate {
		rep.Issues = append(rep.Issues, fmt.Sprintf("win rate %.2f below %.2f", meta.WinRate, minWinRate))
	}
	if meta.MaxDrawdown > maxDrawdownCap {
		rep.Issues = append(rep.Issues, fmt.Sprintf("max drawdown %.2f above %.2f", meta.MaxDrawdown, maxDrawdownCap))
	}

	rep.Valid = len(rep.Errors) == 0
	rep.Score = integrityScore(rep)
	r.l.Info("integrity verified",
		applogger.String("model", name),
		applogger.String("version", version),
		applogger.Bool("valid", rep.Valid),
		applogger.Float("score", rep.Score),
		applogger.Int("issues", len(rep.Issues)),
	)
	return rep, nil
}

func integrityScore(rep *IntegrityReport) float64 {
	if len(rep.Errors) > 0 {
		return 0
	}
	score := 1.0 - 0.1*float64(len(rep.Warnings)) - 0.2*float64(len(rep.Issues))
	return math.Max(0, math.Min(1, score))
}
