package repository

import (
	"context"

	"FinPolicy/internal/domain/models"
	domrepo "FinPolicy/internal/domain/repository"
	applogger "FinPolicy/pkg/logger"
)

// LogPredictionLog writes one structured log line per prediction. It is the
// sink when no broker is configured, so served predictions are never lost
// silently.
type LogPredictionLog struct {
	l *applogger.Logger
}

var _ domrepo.PredictionLog = (*LogPredictionLog)(nil)

func NewLogPredictionLog(l *applogger.Logger) *LogPredictionLog {
	if l == nil {
		l = applogger.Nop()
	}
	return &LogPredictionLog{l: l.Component("prediction_log")}
}

func (g *LogPredictionLog) LogPrediction(_ context.Context, p *models.Prediction) error {
	if p == nil {
		return nil
	}
	fields := []applogger.Field{
		applogger.String("id", p.ID),
		applogger.String("symbol", p.Symbol),
		applogger.String("timeframe", p.Timeframe),
		applogger.String("direction", string(p.Action.Direction)),
		applogger.String("raw_direction", string(p.RawDirection)),
		applogger.Float("confidence", p.Action.Confidence),
		applogger.Float("risk_level", p.Action.RiskLevel),
		applogger.Float("value", p.Value),
		applogger.String("model", p.Model.Name),
		applogger.String("version", p.Model.Version),
		applogger.Bool("fallback", p.Fallback),
		applogger.Strings("reasoning", p.Action.Reasoning),
	}
	if p.ConstraintScore != nil {
		fields = append(fields, applogger.Float("constraint", *p.ConstraintScore))
	}
	g.l.Info("prediction served", fields...)
	return nil
}
