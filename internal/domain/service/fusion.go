package service

import (
	"context"

	"SignalFuse/internal/domain/models"
)

// SignalProducer is one opaque subsystem that turns market context into a
// directional signal for a horizon.
type SignalProducer interface {
	ID() string
	Produce(ctx context.Context, in ProducerInput) (models.SubsystemSignal, error)
}

// ProducerInput is what every producer receives. Candles are oldest first.
type ProducerInput struct {
	Symbol   string
	Horizon  models.Horizon
	Price    float64
	Candles  []models.Candle
	Snapshot models.IndicatorSnapshot
}

// WeightProvider supplies per-source weights and a confidence multiplier
// for a horizon given a feature vector.
type WeightProvider interface {
	Weights(ctx context.Context, symbol string, horizon models.Horizon, features map[string]float64) (models.WeightSet, error)
}
