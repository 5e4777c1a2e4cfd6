package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PipelineSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradepilot",
			Subsystem: "pipeline",
			Name:      "samples_total",
			Help:      "Market samples by pipeline stage",
		},
		[]string{"stage"},
	)

	PipelineBufferDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tradepilot",
			Subsystem: "pipeline",
			Name:      "buffer_depth",
			Help:      "Samples waiting in the publish retry buffer",
		},
	)
)
