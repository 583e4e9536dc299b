package fusion

import (
	"errors"
	"math"

	"SignalFuse/internal/domain/models"
)

// RiskInput is everything the risk calculator looks at.
type RiskInput struct {
	Horizon         models.Horizon
	Direction       models.Direction
	Entry           float64
	ATR             float64
	VolatilityPct   float64
	Trend           models.TrendLabel
	Momentum        float64
	ConfluenceScore int
	MaxScore        int
}

type riskTable struct {
	baseStop   float64
	volHigh    float64 // volatility > 2.0
	volMid     float64 // volatility > 1.5
	volLow     float64 // volatility < 0.5
	trendMult  float64 // directional trend
	stopMin    float64 // x ATR, 0 = unbounded
	stopMax    float64
	baseTarget float64
	momStrong  float64 // |momentum| > 0.7
	momMid     float64 // |momentum| > 0.5
	confHigh   float64 // confluence ratio >= 0.8
	confMid    float64 // confluence ratio > 0.6
	targetMin  float64
	targetMax  float64
}

var (
	scalpRisk = riskTable{
		baseStop: 0.7, volHigh: 1.1, volMid: 1.05, volLow: 0.8, trendMult: 1.0,
		stopMin: 0.5, stopMax: 1.2,
		baseTarget: 1.5, momStrong: 0.3, momMid: 0.2, confHigh: 0.25, confMid: 0.15,
		targetMin: 1.0, targetMax: 2.5,
	}
	swingRisk = riskTable{
		baseStop: 2.0, volHigh: 1.5, volMid: 1.3, volLow: 0.7, trendMult: 1.2,
		baseTarget: 3.5, momStrong: 0.5, momMid: 0.3, confHigh: 0.4, confMid: 0.2,
	}

	errNonPositiveEntry = errors.New("entry must be positive")
	errNegativeLevel    = errors.New("risk level crosses zero")
)

// High-volatility target haircut.
const (
	targetVolCutoff = 2.5
	targetVolScale  = 0.85
)

// ComputeRisk derives stop and target distances from ATR using the horizon's
// multiplier table. Swing carries a second target at twice the first.
func ComputeRisk(in RiskInput) (models.RiskLevels, error) {
	if !finite(in.ATR) || in.ATR <= 0 {
		return models.RiskLevels{}, &models.MissingDataError{Component: "risk.atr"}
	}
	if !finite(in.VolatilityPct) || !finite(in.Momentum) {
		return models.RiskLevels{}, &models.MissingDataError{Component: "risk.context"}
	}
	if !finite(in.Entry) || in.Entry <= 0 {
		return models.RiskLevels{}, &models.ComputationError{
			Horizon: in.Horizon, Stage: "risk", Inputs: map[string]float64{"entry": in.Entry}, Err: errNonPositiveEntry,
		}
	}

	tbl := scalpRisk
	if in.Horizon == models.HorizonSwing {
		tbl = swingRisk
	}
	stopDist := in.ATR * tbl.baseStop * volatilityMultiplier(tbl, in.VolatilityPct) * trendMultiplier(tbl, in.Trend)
	if tbl.stopMax > 0 {
		stopDist = clamp(stopDist, in.ATR*tbl.stopMin, in.ATR*tbl.stopMax)
	}

	mult := tbl.baseTarget
	switch m := math.Abs(in.Momentum); {
	case m > 0.7:
		mult += tbl.momStrong
	case m > 0.5:
		mult += tbl.momMid
	}
	if in.MaxScore > 0 {
		switch ratio := float64(in.ConfluenceScore) / float64(in.MaxScore); {
		case ratio >= 0.8:
			mult += tbl.confHigh
		case ratio > 0.6:
			mult += tbl.confMid
		}
	}
	if in.VolatilityPct > targetVolCutoff {
		mult *= targetVolScale
	}
	targetDist := in.ATR * mult
	if tbl.targetMax > 0 {
		targetDist = clamp(targetDist, in.ATR*tbl.targetMin, in.ATR*tbl.targetMax)
	}

	return buildLevels(in.Horizon, in.Direction, in.Entry, stopDist, targetDist, 2*targetDist)
}

func volatilityMultiplier(tbl riskTable, vol float64) float64 {
	switch {
	case vol > 2.0:
		return tbl.volHigh
	case vol > 1.5:
		return tbl.volMid
	case vol < 0.5:
		return tbl.volLow
	default:
		return 1.0
	}
}

func trendMultiplier(tbl riskTable, t models.TrendLabel) float64 {
	if t.Directional() {
		return tbl.trendMult
	}
	return 1.0
}

// buildLevels places stop and targets around entry. target2Dist is only
// used on swing.
func buildLevels(h models.Horizon, d models.Direction, entry, stopDist, target1Dist, target2Dist float64) (models.RiskLevels, error) {
	sign := d.Sign()
	if sign == 0 {
		return models.RiskLevels{}, &models.ComputationError{Horizon: h, Stage: "risk", Err: errors.New("unknown direction " + string(d))}
	}
	lv := models.RiskLevels{
		Entry:          entry,
		StopLoss:       entry - sign*stopDist,
		Target1:        entry + sign*target1Dist,
		StopDistance:   stopDist,
		TargetDistance: target1Dist,
	}
	if h == models.HorizonSwing {
		lv.Target2 = entry + sign*target2Dist
	}
	if lv.StopLoss <= 0 || lv.Target1 <= 0 || (h == models.HorizonSwing && lv.Target2 <= 0) {
		return models.RiskLevels{}, &models.ComputationError{
			Horizon: h, Stage: "risk",
			Inputs: map[string]float64{"entry": entry, "stop_distance": stopDist, "target_distance": target1Dist},
			Err:    errNegativeLevel,
		}
	}
	if stopDist > 0 {
		lv.RiskRewardRatio = math.Abs(lv.HeadlineTarget()-entry) / stopDist
	}
	return lv, nil
}

// DifferentiationPolicy keeps swing risk visibly wider than scalp risk.
type DifferentiationPolicy struct {
	MinStopRatio      float64
	FallbackStopPct   float64
	FallbackTargetPct float64
}

// DefaultDifferentiationPolicy returns ratio 1.5 with 2.5%/10% fallbacks.
func DefaultDifferentiationPolicy() DifferentiationPolicy {
	return DifferentiationPolicy{MinStopRatio: 1.5, FallbackStopPct: 2.5, FallbackTargetPct: 10}
}

// EnforceDifferentiation guarantees swing.StopDistance >= MinStopRatio x
// scalp.StopDistance. A violating swing is rebuilt from fixed percentages
// of its entry, raised to the minimum ratio if still short, and flagged
// Adjusted. The swing direction is dir.
func EnforceDifferentiation(scalp, swing models.RiskLevels, dir models.Direction, p DifferentiationPolicy) (models.RiskLevels, error) {
	if p.MinStopRatio <= 0 || scalp.StopDistance <= 0 {
		return swing, nil
	}
	minStop := p.MinStopRatio * scalp.StopDistance
	if swing.StopDistance >= minStop {
		return swing, nil
	}

	stopDist := swing.Entry * p.FallbackStopPct / 100
	target2Dist := swing.Entry * p.FallbackTargetPct / 100
	if stopDist < minStop {
		stopDist = minStop
	}
	// Keep the rebuilt reward at least as far as the stop.
	if target2Dist < 2*stopDist {
		target2Dist = 2 * stopDist
	}
	lv, err := buildLevels(models.HorizonSwing, dir, swing.Entry, stopDist, target2Dist/2, target2Dist)
	if err != nil {
		return swing, err
	}
	lv.Adjusted = true
	return lv, nil
}
