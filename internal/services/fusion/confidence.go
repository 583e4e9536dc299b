package fusion

import (
	"fmt"
	"math"

	"SignalFuse/internal/domain/models"
)

// Confidence band. Anything that adjusts below the weak cutoff is pinned to
// the floor.
const (
	ConfidenceFloor   = 15.0
	ConfidenceCeiling = 95.0
	weakSignalCutoff  = 40.0
)

// ConfidenceInput is the market context the adjuster re-scores against.
type ConfidenceInput struct {
	Base            float64
	Direction       models.Direction
	ConfluenceScore int
	MaxScore        int
	VolatilityPct   float64
	Momentum        float64
	RSI             float64
	Trend           models.TrendLabel
	RiskReward      float64
	Price           float64
	MAShort         float64
	MALong          float64
}

// AdjustConfidence sums the context terms onto the base confidence and
// returns a value in [15,95].
func AdjustConfidence(in ConfidenceInput) float64 {
	v, _ := ExplainConfidence(in)
	return v
}

// ExplainConfidence is AdjustConfidence plus a short note per term that
// moved the score, in evaluation order.
func ExplainConfidence(in ConfidenceInput) (float64, []string) {
	total := in.Base
	var notes []string
	add := func(delta float64, note string) {
		total += delta
		notes = append(notes, note)
	}

	sign := in.Direction.Sign()
	with := sign > 0 && in.Price > in.MAShort && in.MAShort > in.MALong ||
		sign < 0 && in.Price < in.MAShort && in.MAShort < in.MALong
	against := sign > 0 && in.Price < in.MAShort && in.MAShort < in.MALong ||
		sign < 0 && in.Price > in.MAShort && in.MAShort > in.MALong
	switch {
	case with:
		add(10, "price and MAs aligned")
	case against:
		add(-20, "late entry against MA stack")
	}

	if sign*in.Momentum < -0.3 {
		add(-15, "momentum opposes direction")
	}

	if in.MaxScore > 0 {
		total += float64(in.ConfluenceScore) / float64(in.MaxScore) * 15
	}

	switch {
	case in.VolatilityPct > 2.5:
		add(-10, "extreme volatility")
	case in.VolatilityPct > 2.0:
		add(-5, "high volatility")
	}

	switch m := math.Abs(in.Momentum); {
	case m > 0.7:
		add(8, "strong momentum")
	case m > 0.5:
		add(4, "solid momentum")
	case m < 0.2:
		add(-5, "weak momentum")
	}

	switch {
	case in.RSI > 80 || in.RSI < 20:
		add(-8, fmt.Sprintf("RSI extreme %.0f", in.RSI))
	case in.RSI > 70 || in.RSI < 30:
		add(-3, fmt.Sprintf("RSI stretched %.0f", in.RSI))
	}

	if in.Trend.Directional() {
		add(6, "trending market")
	} else {
		add(-4, "no clear trend")
	}

	switch {
	case in.RiskReward >= 2.0:
		add(5, "good R:R")
	case in.RiskReward < 1.0:
		add(-10, "poor R:R")
	}

	if !finite(total) || total < weakSignalCutoff {
		return ConfidenceFloor, append(notes, "signal too weak to act on")
	}
	return clamp(total, ConfidenceFloor, ConfidenceCeiling), notes
}
