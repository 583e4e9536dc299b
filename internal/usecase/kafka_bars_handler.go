package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	pkgkafka "SignalFuse/pkg/kafka"
	applogger "SignalFuse/pkg/logger"
)

// KafkaBarsHandler triggers an analysis for every bar-close event on a
// timeframe one of the horizons reads.
type KafkaBarsHandler struct {
	topic   string
	uc      *AnalyzeUseCase
	tfs     map[domrepo.Timeframe]bool
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewKafkaBarsHandler(topic string, uc *AnalyzeUseCase, metrics domrepo.Metrics, l *applogger.Logger) *KafkaBarsHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &KafkaBarsHandler{
		topic: topic,
		uc:    uc,
		tfs: map[domrepo.Timeframe]bool{
			uc.cfg.Scalp.Timeframe: true,
			uc.cfg.Swing.Timeframe: true,
		},
		metrics: metrics,
		l:       l,
	}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// Handle decodes {symbol, tf, t}. Malformed events are permanent failures;
// store outages are returned for retry.
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.BarClosedEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return fmt.Errorf("decode bar event: %v: %w", err, pkgkafka.ErrPermanent)
	}
	if ev.Symbol == "" || ev.Timestamp <= 0 {
		return fmt.Errorf("bar event missing symbol or t: %w", pkgkafka.ErrPermanent)
	}
	if ev.Timeframe != "" && !h.tfs[domrepo.Timeframe(ev.Timeframe)] {
		return nil
	}

	asOf := barTime(ev.Timestamp)
	if start, ok := pkgkafka.StartTimeFrom(ctx); ok && h.metrics != nil {
		h.metrics.RecordStageLatency("bar_lag", start.Sub(asOf).Seconds())
	}

	a, err := h.uc.Analyze(ctx, AnalyzeParams{Symbol: ev.Symbol, AsOf: asOf, Emit: true})
	switch {
	case err == nil:
	case errors.Is(err, models.ErrNotFound), errors.Is(err, ErrSymbolRequired):
		h.l.Warn("bar event skipped",
			applogger.String("symbol", ev.Symbol),
			applogger.String("trace_id", pkgkafka.TraceIDFrom(ctx)),
			applogger.Error(err))
		return nil
	default:
		return err
	}
	h.l.Debug("bar analysis emitted",
		applogger.String("symbol", a.Symbol),
		applogger.String("tf", ev.Timeframe),
		applogger.String("id", a.ID))
	return nil
}

// barTime accepts unix seconds or millis.
func barTime(t int64) time.Time {
	if t > 1e11 {
		return time.UnixMilli(t).UTC()
	}
	return time.Unix(t, 0).UTC()
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
