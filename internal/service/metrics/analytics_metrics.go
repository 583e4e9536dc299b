package metrics

import (
	"context"
	"sync"
	"time"

	"SignalFuse/internal/domain/models"
	domsvc "SignalFuse/internal/domain/service"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	AnalyticsLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signalfuse",
			Subsystem: "analytics",
			Name:      "latency_seconds",
			Help:      "Latency of ML weight lookups",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"horizon"},
	)

	AnalyticsErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalfuse",
			Subsystem: "analytics",
			Name:      "errors_total",
			Help:      "Failed ML weight lookups",
		},
		[]string{"horizon"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(AnalyticsLatency, AnalyticsErrors)
	})
}

// InstrumentedWeights times every call to the wrapped provider.
type InstrumentedWeights struct {
	next domsvc.WeightProvider
}

func NewInstrumentedWeights(next domsvc.WeightProvider) *InstrumentedWeights {
	Register()
	return &InstrumentedWeights{next: next}
}

func (w *InstrumentedWeights) Weights(ctx context.Context, symbol string, h models.Horizon, features map[string]float64) (models.WeightSet, error) {
	start := time.Now()
	ws, err := w.next.Weights(ctx, symbol, h, features)
	AnalyticsLatency.WithLabelValues(string(h)).Observe(time.Since(start).Seconds())
	if err != nil {
		AnalyticsErrors.WithLabelValues(string(h)).Inc()
	}
	return ws, err
}
