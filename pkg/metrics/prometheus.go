package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements the pipeline Metrics using Prometheus.
type Recorder struct {
	analyses         *prometheus.CounterVec
	confidence       *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
	stageLatency     *prometheus.HistogramVec
	producerFailures *prometheus.CounterVec
}

// New registers the recorder's collectors on the default registerer.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalfuse_final_signals_total",
				Help: "Final signals produced by horizon and direction",
			},
			[]string{"horizon", "direction"},
		),
		confidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalfuse_final_confidence",
				Help:    "Adjusted confidence of final signals",
				Buckets: []float64{15, 25, 35, 45, 55, 65, 75, 85, 95},
			},
			[]string{"horizon"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalfuse_horizon_errors_total",
				Help: "Failed horizons by error kind",
			},
			[]string{"horizon", "kind"},
		),
		stageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalfuse_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		producerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalfuse_producer_failures_total",
				Help: "Producers that failed or timed out",
			},
			[]string{"source"},
		),
	}
	reg.MustRegister(r.analyses, r.confidence, r.errorsTotal, r.stageLatency, r.producerFailures)
	return r
}

func (r *Recorder) RecordAnalysis(horizon, direction string, confidence float64) {
	r.analyses.WithLabelValues(horizon, direction).Inc()
	r.confidence.WithLabelValues(horizon).Observe(confidence)
}

func (r *Recorder) RecordError(horizon, kind string) {
	r.errorsTotal.WithLabelValues(horizon, kind).Inc()
}

func (r *Recorder) RecordStageLatency(stage string, seconds float64) {
	r.stageLatency.WithLabelValues(stage).Observe(seconds)
}

func (r *Recorder) RecordProducerFailure(source string) {
	r.producerFailures.WithLabelValues(source).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAnalysis(string, string, float64) {}
func (Nop) RecordError(string, string)             {}
func (Nop) RecordStageLatency(string, float64)     {}
func (Nop) RecordProducerFailure(string)           {}
