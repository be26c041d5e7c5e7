// Package metrics records process metrics with Prometheus.
package metrics

import (
	"sync"

	"FinPolicy/internal/domain/models"
	domrepo "FinPolicy/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions  *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	cache        *prometheus.CounterVec
	epochLoss    *prometheus.GaugeVec
	clipFraction prometheus.Gauge
	approxKL     prometheus.Gauge
	cycles       *prometheus.CounterVec
	activeModel  *prometheus.GaugeVec

	mu     sync.Mutex
	active map[string]string
}

var _ domrepo.Metrics = (*Recorder)(nil)

// New registers the collectors with reg, or the default registerer when nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		predictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finpolicy_predictions_total",
			Help: "Predictions served by final direction",
		}, []string{"direction", "fallback"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finpolicy_errors_total",
			Help: "Errors by kind",
		}, []string{"kind"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finpolicy_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finpolicy_model_cache_requests_total",
			Help: "Model cache lookups by result",
		}, []string{"result"}),
		epochLoss: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "finpolicy_training_loss",
			Help: "Loss components of the last training epoch",
		}, []string{"component"}),
		clipFraction: f.NewGauge(prometheus.GaugeOpts{
			Name: "finpolicy_training_clip_fraction",
			Help: "Clip fraction of the last training epoch",
		}),
		approxKL: f.NewGauge(prometheus.GaugeOpts{
			Name: "finpolicy_training_approx_kl",
			Help: "Approximate KL of the last training epoch",
		}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finpolicy_scheduler_cycles_total",
			Help: "Retrain cycles by outcome",
		}, []string{"outcome"}),
		activeModel: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "finpolicy_active_model",
			Help: "1 for the promoted version of each model",
		}, []string{"name", "version"}),
		active: make(map[string]string),
	}
}

func (r *Recorder) RecordPrediction(direction string, fallback bool) {
	fb := "false"
	if fallback {
		fb = "true"
	}
	r.predictions.WithLabelValues(direction, fb).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordCache(hit bool) {
	if hit {
		r.cache.WithLabelValues("hit").Inc()
		return
	}
	r.cache.WithLabelValues("miss").Inc()
}

func (r *Recorder) RecordEpoch(m models.EpochMetrics) {
	r.epochLoss.WithLabelValues("policy").Set(m.PolicyLoss)
	r.epochLoss.WithLabelValues("value").Set(m.ValueLoss)
	r.epochLoss.WithLabelValues("entropy").Set(m.EntropyLoss)
	r.epochLoss.WithLabelValues("constraint").Set(m.ConstraintLoss)
	r.epochLoss.WithLabelValues("total").Set(m.TotalLoss)
	r.clipFraction.Set(m.ClipFraction)
	r.approxKL.Set(m.ApproxKL)
}

func (r *Recorder) RecordCycle(outcome string) {
	r.cycles.WithLabelValues(outcome).Inc()
}

// RecordActiveModel moves the gauge from the previous version to version.
func (r *Recorder) RecordActiveModel(name, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.active[name]; ok && prev != version {
		r.activeModel.DeleteLabelValues(name, prev)
	}
	r.active[name] = version
	r.activeModel.WithLabelValues(name, version).Set(1)
}
