package levels

import (
	"fmt"
	"math"
	"sort"

	"SignalFuse/internal/domain/models"
)

const (
	// MaxPerSide caps supports and resistances independently.
	MaxPerSide = 3
	// DedupeFraction of the current price two kept levels must be apart.
	DedupeFraction = 0.001

	fibWindow   = 50
	swingWindow = 20
	swingSpan   = 2 // bars on each side, 5-bar fractal
	roundStep   = 5.0
	roundRange  = 30.0
)

var fibRatios = []struct {
	ratio    float64
	label    string
	strength int
}{
	{0.236, "Fib 23.6%", 1},
	{0.382, "Fib 38.2%", 2},
	{0.5, "Fib 50%", 2},
	{0.618, "Fib 61.8%", 3},
	{0.786, "Fib 78.6%", 2},
}

// Aggregate builds the nearest deduplicated supports and resistances around
// price. Sources without enough data are skipped.
func Aggregate(candles []models.Candle, price float64, ind models.IndicatorSnapshot) models.SupportResistanceLevels {
	pool, _ := Candidates(candles, price, ind)
	return Select(pool, price)
}

// Candidates returns the raw candidate pool and the sources that were
// skipped for lack of data.
func Candidates(candles []models.Candle, price float64, ind models.IndicatorSnapshot) ([]models.SupportResistanceLevel, []*models.MissingDataError) {
	var (
		pool    []models.SupportResistanceLevel
		skipped []*models.MissingDataError
	)
	if len(candles) == 0 {
		skipped = append(skipped, &models.MissingDataError{Component: "levels.pivot", Need: 1, Have: 0})
	} else {
		pool = append(pool, pivotLevels(candles[len(candles)-1])...)
	}

	if len(candles) < fibWindow {
		skipped = append(skipped, &models.MissingDataError{Component: "levels.fibonacci", Need: fibWindow, Have: len(candles)})
	} else {
		pool = append(pool, fibLevels(candles[len(candles)-fibWindow:])...)
	}

	pool = append(pool, maLevels(ind)...)

	if len(candles) < 2*swingSpan+1 {
		skipped = append(skipped, &models.MissingDataError{Component: "levels.swing", Need: 2*swingSpan + 1, Have: len(candles)})
	} else {
		win := candles
		if len(win) > swingWindow {
			win = win[len(win)-swingWindow:]
		}
		pool = append(pool, swingLevels(win)...)
	}

	if finite(price) && price > 0 {
		pool = append(pool, roundLevels(price)...)
	}
	return pool, skipped
}

// Select splits the pool around price, orders each side by proximity and
// keeps at most MaxPerSide levels that are more than DedupeFraction x price
// apart.
func Select(pool []models.SupportResistanceLevel, price float64) models.SupportResistanceLevels {
	out := models.SupportResistanceLevels{
		Supports:    []models.SupportResistanceLevel{},
		Resistances: []models.SupportResistanceLevel{},
	}
	if !finite(price) || price <= 0 {
		return out
	}
	var below, above []models.SupportResistanceLevel
	for _, c := range pool {
		switch {
		case !finite(c.Price) || c.Price <= 0:
		case c.Price < price:
			below = append(below, c)
		case c.Price > price:
			above = append(above, c)
		}
	}
	minGap := DedupeFraction * price
	out.Supports = nearest(below, price, minGap)
	out.Resistances = nearest(above, price, minGap)
	return out
}

func nearest(side []models.SupportResistanceLevel, price, minGap float64) []models.SupportResistanceLevel {
	sort.SliceStable(side, func(i, j int) bool {
		di, dj := math.Abs(side[i].Price-price), math.Abs(side[j].Price-price)
		if di != dj {
			return di < dj
		}
		if side[i].Strength != side[j].Strength {
			return side[i].Strength > side[j].Strength
		}
		return side[i].Label < side[j].Label
	})
	kept := make([]models.SupportResistanceLevel, 0, MaxPerSide)
	for _, c := range side {
		ok := true
		for _, k := range kept {
			if math.Abs(c.Price-k.Price) <= minGap {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		kept = append(kept, c)
		if len(kept) == MaxPerSide {
			break
		}
	}
	return kept
}

func pivotLevels(last models.Candle) []models.SupportResistanceLevel {
	p := (last.High + last.Low + last.Close) / 3
	rng := last.High - last.Low
	return []models.SupportResistanceLevel{
		{Price: p, Label: "Pivot", Strength: 3, SourceType: models.LevelSourcePivot},
		{Price: 2*p - last.Low, Label: "R1", Strength: 2, SourceType: models.LevelSourcePivot},
		{Price: p + rng, Label: "R2", Strength: 1, SourceType: models.LevelSourcePivot},
		{Price: 2*p - last.High, Label: "S1", Strength: 2, SourceType: models.LevelSourcePivot},
		{Price: p - rng, Label: "S2", Strength: 1, SourceType: models.LevelSourcePivot},
	}
}

func fibLevels(win []models.Candle) []models.SupportResistanceLevel {
	hi, lo := win[0].High, win[0].Low
	for _, c := range win[1:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	if hi <= lo {
		return nil
	}
	out := make([]models.SupportResistanceLevel, 0, len(fibRatios))
	for _, f := range fibRatios {
		out = append(out, models.SupportResistanceLevel{
			Price: hi - f.ratio*(hi-lo), Label: f.label, Strength: f.strength, SourceType: models.LevelSourceFib,
		})
	}
	return out
}

func maLevels(ind models.IndicatorSnapshot) []models.SupportResistanceLevel {
	mas := []struct {
		v        float64
		label    string
		strength int
	}{
		{ind.MA20, "MA20", 1},
		{ind.MA50, "MA50", 2},
		{ind.MA100, "MA100", 2},
		{ind.MA200, "MA200", 3},
	}
	var out []models.SupportResistanceLevel
	for _, m := range mas {
		if m.v == 0 || !finite(m.v) {
			continue
		}
		out = append(out, models.SupportResistanceLevel{Price: m.v, Label: m.label, Strength: m.strength, SourceType: models.LevelSourceMA})
	}
	return out
}

// swingLevels marks bar i as a swing high (low) when its high (low) is the
// extreme of the surrounding 5-bar window.
func swingLevels(win []models.Candle) []models.SupportResistanceLevel {
	var out []models.SupportResistanceLevel
	for i := swingSpan; i < len(win)-swingSpan; i++ {
		hi, lo := true, true
		for j := i - swingSpan; j <= i+swingSpan; j++ {
			if j == i {
				continue
			}
			if win[j].High >= win[i].High {
				hi = false
			}
			if win[j].Low <= win[i].Low {
				lo = false
			}
		}
		if hi {
			out = append(out, models.SupportResistanceLevel{Price: win[i].High, Label: "Swing High", Strength: 2, SourceType: models.LevelSourceSwing})
		}
		if lo {
			out = append(out, models.SupportResistanceLevel{Price: win[i].Low, Label: "Swing Low", Strength: 2, SourceType: models.LevelSourceSwing})
		}
	}
	return out
}

func roundLevels(price float64) []models.SupportResistanceLevel {
	var out []models.SupportResistanceLevel
	start := math.Ceil((price-roundRange)/roundStep) * roundStep
	for v := start; v <= price+roundRange; v += roundStep {
		if v <= 0 {
			continue
		}
		strength := 1
		if math.Mod(v, 50) == 0 {
			strength = 2
		}
		out = append(out, models.SupportResistanceLevel{Price: v, Label: fmt.Sprintf("Round %g", v), Strength: strength, SourceType: models.LevelSourceRound})
	}
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
