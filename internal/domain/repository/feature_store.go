package repository

import (
	"context"
	"time"

	"SignalFuse/internal/domain/models"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// FeatureStore provides read-only access to candles for analysis.
type FeatureStore interface {
	// GetCandlesBefore returns up to n candles with bucket <= asOf, oldest first.
	GetCandlesBefore(ctx context.Context, symbol string, asOf time.Time, n int, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}
