package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycleDuration    *prometheus.HistogramVec
	decisionsTotal   *prometheus.CounterVec
	predictionsTotal *prometheus.CounterVec
	cacheTotal       *prometheus.CounterVec
	killSwitchLevel  prometheus.Gauge
	trainingJobs     *prometheus.CounterVec
	ordersTotal      *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradepilot_cycle_duration_seconds",
				Help:    "Duration of periodic engine cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_decisions_total",
				Help: "Total number of trading decisions by action",
			},
			[]string{"symbol", "action"},
		),
		predictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_predictions_total",
				Help: "Total number of predictions by model and source",
			},
			[]string{"model", "source"},
		),
		cacheTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_prediction_cache_total",
				Help: "Prediction cache lookups by result",
			},
			[]string{"result"},
		),
		killSwitchLevel: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradepilot_kill_switch_level",
				Help: "Current kill switch escalation level",
			},
		),
		trainingJobs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_training_jobs_total",
				Help: "Training job transitions by terminal status",
			},
			[]string{"status"},
		),
		ordersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_orders_total",
				Help: "Order executor calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordCycle records the duration of one periodic engine task run.
func (r *Recorder) RecordCycle(task string, seconds float64) {
	r.cycleDuration.WithLabelValues(task).Observe(seconds)
}

// RecordDecision records an emitted trading decision.
func (r *Recorder) RecordDecision(symbol, action string) {
	r.decisionsTotal.WithLabelValues(symbol, action).Inc()
}

// RecordPrediction records a prediction by model type and source.
func (r *Recorder) RecordPrediction(modelType, source string) {
	r.predictionsTotal.WithLabelValues(modelType, source).Inc()
}

// RecordCacheHit records a prediction cache lookup result.
func (r *Recorder) RecordCacheHit(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheTotal.WithLabelValues(result).Inc()
}

// SetKillSwitchLevel exposes the current kill switch level as a gauge.
func (r *Recorder) SetKillSwitchLevel(level int) {
	r.killSwitchLevel.Set(float64(level))
}

// RecordTrainingJob records a training job reaching the given status.
func (r *Recorder) RecordTrainingJob(status string) {
	r.trainingJobs.WithLabelValues(status).Inc()
}

// RecordOrder records an order executor call.
func (r *Recorder) RecordOrder(op string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	r.ordersTotal.WithLabelValues(op, outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
