package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"FinPolicy/internal/domain/models"
	domrepo "FinPolicy/internal/domain/repository"
	"FinPolicy/pkg/errs"
	pkgkafka "FinPolicy/pkg/kafka"
	applogger "FinPolicy/pkg/logger"

	"github.com/google/uuid"
)

// OutcomeHandler consumes realized trade outcomes and stores them as
// training samples. A message is one sample or an array of samples.
type OutcomeHandler struct {
	topic   string
	dim     int
	store   domrepo.SampleStore
	metrics domrepo.Metrics
	now     func() time.Time
	l       *applogger.Logger
}

var _ pkgkafka.MessageHandler = (*OutcomeHandler)(nil)

func NewOutcomeHandler(topic string, dim int, store domrepo.SampleStore, metrics domrepo.Metrics, l *applogger.Logger) *OutcomeHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &OutcomeHandler{
		topic:   topic,
		dim:     dim,
		store:   store,
		metrics: metrics,
		now:     time.Now,
		l:       l.Component("outcome_handler"),
	}
}

func (h *OutcomeHandler) Topic() string { return h.topic }

// Handle stores the valid samples of a message. Malformed rows are dropped;
// a message with nothing usable is a validation error.
func (h *OutcomeHandler) Handle(ctx context.Context, b []byte) error {
	const op = "handle outcome"
	samples, err := decodeSamples(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return errs.Wrap(errs.KindValidation, op, err)
	}

	valid := samples[:0]
	for _, s := range samples {
		if err := s.Validate(h.dim); err != nil {
			h.metrics.RecordError(string(errs.KindValidation))
			h.l.Warn("sample dropped", applogger.String("id", s.ID), applogger.Error(err))
			continue
		}
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.Timestamp.IsZero() {
			s.Timestamp = h.now().UTC()
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		return errs.Newf(errs.KindValidation, op, "no valid samples in %d rows", len(samples))
	}

	start := time.Now()
	err = h.store.StoreSamples(ctx, valid)
	h.metrics.RecordLatency("sample_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError(string(errs.KindResource))
		return errs.Wrap(errs.KindResource, op, err)
	}
	return nil
}

func decodeSamples(b []byte) ([]models.TrainingSample, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var out []models.TrainingSample
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var s models.TrainingSample
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return []models.TrainingSample{s}, nil
}
