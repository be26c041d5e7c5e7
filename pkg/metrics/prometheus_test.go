package metrics

import (
	"testing"

	"FinPolicy/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounters(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordPrediction("BUY", false)
	r.RecordPrediction("BUY", false)
	r.RecordPrediction("HOLD", true)
	r.RecordCache(true)
	r.RecordCache(false)
	r.RecordCache(false)
	r.RecordError("timeout")
	r.RecordCycle("skipped")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.predictions.WithLabelValues("BUY", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.predictions.WithLabelValues("HOLD", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cycles.WithLabelValues("skipped")))
}

func TestRecorderEpochGauges(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.RecordEpoch(models.EpochMetrics{PolicyLoss: 0.3, TotalLoss: 0.9, ClipFraction: 0.12, ApproxKL: 0.004})

	assert.Equal(t, 0.3, testutil.ToFloat64(r.epochLoss.WithLabelValues("policy")))
	assert.Equal(t, 0.9, testutil.ToFloat64(r.epochLoss.WithLabelValues("total")))
	assert.Equal(t, 0.12, testutil.ToFloat64(r.clipFraction))
	assert.Equal(t, 0.004, testutil.ToFloat64(r.approxKL))
}

func TestRecorderActiveModelKeepsOneSeriesPerName(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.RecordActiveModel("finpolicy", "v1")
	r.RecordActiveModel("finpolicy", "v2")
	r.RecordActiveModel("baseline", "v9")

	assert.Equal(t, 2, testutil.CollectAndCount(r.activeModel))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activeModel.WithLabelValues("finpolicy", "v2")))
}
