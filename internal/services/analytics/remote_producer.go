package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"SignalFuse/internal/domain/models"
	domsvc "SignalFuse/internal/domain/service"
)

// remoteCandles caps how much history is shipped to a remote engine.
const remoteCandles = 100

// HTTPProducer is a SignalProducer backed by an external engine.
type HTTPProducer struct {
	id       string
	path     string
	base     *HTTPServiceBase
	horizons map[models.Horizon]bool
}

// NewHTTPProducer registers a remote engine. Empty horizons means both.
func NewHTTPProducer(id, baseURL, path string, timeout time.Duration, horizons []string) *HTTPProducer {
	p := &HTTPProducer{id: id, path: path, base: NewHTTPServiceBase(baseURL, timeout)}
	if len(horizons) > 0 {
		p.horizons = make(map[models.Horizon]bool, len(horizons))
		for _, h := range horizons {
			p.horizons[models.Horizon(h)] = true
		}
	}
	return p
}

func (p *HTTPProducer) ID() string { return p.id }

// Serves reports whether the engine is registered for h.
func (p *HTTPProducer) Serves(h models.Horizon) bool {
	return p.horizons == nil || p.horizons[h]
}

type producerRequest struct {
	Symbol   string                   `json:"symbol"`
	Horizon  string                   `json:"horizon"`
	Price    float64                  `json:"price"`
	Snapshot models.IndicatorSnapshot `json:"snapshot"`
	Candles  []models.Candle          `json:"candles"`
}

// producerResponse accepts numbers, numeric strings or garbage for every
// numeric field; garbage decodes to NaN so the normalizer substitutes.
type producerResponse struct {
	Direction  string     `json:"direction"`
	Confidence looseFloat `json:"confidence"`
	Scale      string     `json:"scale"`
	Entry      looseFloat `json:"entry"`
	StopLoss   looseFloat `json:"stop_loss"`
	TakeProfit looseFloat `json:"take_profit"`
}

func (p *HTTPProducer) Produce(ctx context.Context, in domsvc.ProducerInput) (models.SubsystemSignal, error) {
	candles := in.Candles
	if len(candles) > remoteCandles {
		candles = candles[len(candles)-remoteCandles:]
	}
	req := producerRequest{
		Symbol:   in.Symbol,
		Horizon:  string(in.Horizon),
		Price:    in.Price,
		Snapshot: in.Snapshot,
		Candles:  candles,
	}
	var resp producerResponse
	if err := p.base.PostJSON(ctx, p.path, req, &resp); err != nil {
		return models.SubsystemSignal{}, fmt.Errorf("producer %s: %w", p.id, err)
	}
	scale := models.ConfidenceScale(strings.ToLower(strings.TrimSpace(resp.Scale)))
	if scale == "" {
		scale = models.ScalePercent
	}
	return models.SubsystemSignal{
		SourceID:   p.id,
		Horizon:    in.Horizon,
		Direction:  models.Direction(strings.ToUpper(strings.TrimSpace(resp.Direction))),
		Confidence: float64(resp.Confidence),
		Scale:      scale,
		Entry:      float64(resp.Entry),
		StopLoss:   float64(resp.StopLoss),
		TakeProfit: float64(resp.TakeProfit),
	}, nil
}

type looseFloat float64

func (f *looseFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = looseFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = looseFloat(v)
			return nil
		}
	}
	*f = looseFloat(math.NaN())
	return nil
}

var _ domsvc.SignalProducer = (*HTTPProducer)(nil)
