package repository

import (
	"context"

	"FinPolicy/internal/domain/models"
	domrepo "FinPolicy/internal/domain/repository"
)

// Publisher is the slice of the Kafka producer the log needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaPredictionLog publishes each prediction keyed by symbol, so one
// symbol's predictions stay ordered within a partition.
type KafkaPredictionLog struct {
	pub   Publisher
	topic string
}

var _ domrepo.PredictionLog = (*KafkaPredictionLog)(nil)

func NewKafkaPredictionLog(pub Publisher, topic string) *KafkaPredictionLog {
	return &KafkaPredictionLog{pub: pub, topic: topic}
}

func (k *KafkaPredictionLog) LogPrediction(ctx context.Context, p *models.Prediction) error {
	return k.pub.Publish(ctx, k.topic, []byte(p.Symbol), p)
}
