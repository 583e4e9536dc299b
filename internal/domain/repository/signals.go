package repository

import (
	"context"

	"SignalFuse/internal/domain/models"
)

// SignalPublisher ships finished analyses to downstream consumers.
type SignalPublisher interface {
	Publish(ctx context.Context, a *models.Analysis) error
	Close() error
}

// SignalJournal stores final signals and serves their history.
type SignalJournal interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, a *models.Analysis) error
	History(ctx context.Context, symbol string, limit int) ([]models.SignalRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// Broadcaster pushes analyses to live subscribers.
type Broadcaster interface {
	Broadcast(a *models.Analysis)
}

type Metrics interface {
	RecordAnalysis(horizon, direction string, confidence float64)
	RecordError(horizon, kind string)
	RecordStageLatency(stage string, seconds float64)
	RecordProducerFailure(source string)
}
