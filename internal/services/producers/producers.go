package producers

import (
	"context"
	"math"

	"SignalFuse/internal/domain/models"
	"SignalFuse/internal/domain/service"
)

// Built-in producer ids.
const (
	TrendID     = "trend"
	MomentumID  = "momentum"
	StructureID = "structure"
	QuantumID   = "quantum"
)

// fallbackATRPct sizes producer stops when the snapshot has no ATR.
const fallbackATRPct = 0.005

// bracket places a stop and a target around price, k ATRs apart. Swing
// brackets are twice as wide.
func bracket(in service.ProducerInput, d models.Direction, stopATR, targetATR float64) (entry, stop, target float64) {
	atr := in.Snapshot.ATR
	if atr <= 0 {
		atr = in.Price * fallbackATRPct
	}
	if in.Horizon == models.HorizonSwing {
		atr *= 2
	}
	s := d.Sign()
	return in.Price, in.Price - s*stopATR*atr, in.Price + s*targetATR*atr
}

func signal(id string, in service.ProducerInput, d models.Direction, conf float64, scale models.ConfidenceScale) models.SubsystemSignal {
	entry, stop, target := bracket(in, d, 1, 2)
	return models.SubsystemSignal{
		SourceID:   id,
		Horizon:    in.Horizon,
		Direction:  d,
		Confidence: conf,
		Scale:      scale,
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: target,
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func directionOf(score float64) models.Direction {
	if score < 0 {
		return models.DirectionSell
	}
	return models.DirectionBuy
}

// Trend votes on moving-average alignment.
type Trend struct{}

func (Trend) ID() string { return TrendID }

func (Trend) Produce(_ context.Context, in service.ProducerInput) (models.SubsystemSignal, error) {
	s := in.Snapshot
	if s.MA20 == 0 || s.MA50 == 0 {
		return models.SubsystemSignal{}, &models.MissingDataError{Component: "producer.trend", Need: 50, Have: len(in.Candles)}
	}
	score := sign(in.Price-s.MA20) + sign(s.MA20-s.MA50)
	votes := 2.0
	if s.MA200 > 0 {
		score += sign(s.MA50 - s.MA200)
		votes++
	}
	conf := 45 + math.Abs(score)/votes*45
	return signal(TrendID, in, directionOf(score), conf, models.ScalePercent), nil
}

// Momentum votes on RSI side, MACD histogram and normalized momentum.
type Momentum struct{}

func (Momentum) ID() string { return MomentumID }

func (Momentum) Produce(_ context.Context, in service.ProducerInput) (models.SubsystemSignal, error) {
	s := in.Snapshot
	if s.RSI == 0 && s.ATR == 0 {
		return models.SubsystemSignal{}, &models.MissingDataError{Component: "producer.momentum"}
	}
	votes := sign(s.RSI-50) + sign(s.MACDHistogram()) + sign(s.Momentum)
	score := votes
	if score == 0 {
		score = sign(s.Momentum)
	}
	conf := math.Min(95, 40+15*math.Abs(votes)+10*math.Abs(s.Momentum))
	return signal(MomentumID, in, directionOf(score), conf, models.ScalePercent), nil
}

// Structure reads higher highs and higher lows (or their mirror) off 5-bar
// fractal pivots.
type Structure struct {
	Span int
}

func (Structure) ID() string { return StructureID }

func (p Structure) Produce(_ context.Context, in service.ProducerInput) (models.SubsystemSignal, error) {
	span := p.Span
	if span <= 0 {
		span = 2
	}
	if len(in.Candles) < 2*span+1 {
		return models.SubsystemSignal{}, &models.MissingDataError{Component: "producer.structure", Need: 2*span + 1, Have: len(in.Candles)}
	}
	highs, lows := FractalPivots(in.Candles, span)

	var score float64
	conf := 40.0
	if len(highs) >= 2 && len(lows) >= 2 {
		hh := sign(highs[len(highs)-1] - highs[len(highs)-2])
		hl := sign(lows[len(lows)-1] - lows[len(lows)-2])
		score = hh + hl
		switch math.Abs(score) {
		case 2:
			conf = 72
		case 1:
			conf = 55
		}
	}
	if score == 0 {
		first, last := in.Candles[0].Close, in.Candles[len(in.Candles)-1].Close
		score = sign(last - first)
	}
	return signal(StructureID, in, directionOf(score), conf, models.ScalePercent), nil
}

// FractalPivots returns pivot highs and pivot lows in chronological order.
// Bar i pivots when it is the strict extreme of [i-span, i+span].
func FractalPivots(candles []models.Candle, span int) (highs, lows []float64) {
	for i := span; i < len(candles)-span; i++ {
		hi, lo := true, true
		for j := i - span; j <= i+span; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				hi = false
			}
			if candles[j].Low <= candles[i].Low {
				lo = false
			}
		}
		if hi {
			highs = append(highs, candles[i].High)
		}
		if lo {
			lows = append(lows, candles[i].Low)
		}
	}
	return highs, lows
}

// Quantum blends momentum, MACD, trend and RSI into a 0..10 score and
// reports conviction on the same 0..10 scale.
type Quantum struct{}

func (Quantum) ID() string { return QuantumID }

func (Quantum) Produce(_ context.Context, in service.ProducerInput) (models.SubsystemSignal, error) {
	s := in.Snapshot
	if s.ATR == 0 {
		return models.SubsystemSignal{}, &models.MissingDataError{Component: "producer.quantum"}
	}
	q := 5 + 2.5*s.Momentum + 1.0*sign(s.MACDHistogram())
	switch s.Trend {
	case models.TrendBullish:
		q += 1
	case models.TrendBearish:
		q -= 1
	}
	if s.RSI > 0 {
		q += (s.RSI - 50) / 50
	}
	q = math.Max(0, math.Min(10, q))
	conf := math.Min(10, 5+math.Abs(q-5))
	return signal(QuantumID, in, directionOf(q-5), conf, models.ScaleTen), nil
}

// Builtin returns the built-in producers keyed by id.
func Builtin() map[string]service.SignalProducer {
	return map[string]service.SignalProducer{
		TrendID:     Trend{},
		MomentumID:  Momentum{},
		StructureID: Structure{Span: 2},
		QuantumID:   Quantum{},
	}
}
