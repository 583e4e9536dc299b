package features

import (
	"math"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
)

// Indicator periods.
const (
	RSIPeriod      = 14
	ATRPeriod      = 14
	MACDFast       = 12
	MACDSlow       = 26
	MACDSignal     = 9
	MomentumPeriod = 10

	// MinCandles is what Snapshot needs for ATR; shorter indicators are left zero.
	MinCandles = ATRPeriod + 1
)

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the last
// window returns using the provided number of bars per year.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// BarsPerYearForTF returns the approximate number of bars per year for a timeframe.
func BarsPerYearForTF(tf domrepo.Timeframe) float64 {
	return float64(365*24*60*60) / tf.Duration().Seconds()
}

// SMA returns the simple moving average of the last period closes, or 0.
func SMA(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	sum := 0.0
	for _, c := range candles[len(candles)-period:] {
		sum += c.Close
	}
	return sum / float64(period)
}

// EMASeries returns the EMA of values seeded with the SMA of the first period values.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values))
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	out[period-1] = seed / float64(period)
	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out[period-1:]
}

// RSI computes Wilder's RSI over period, or 0 when there is not enough data.
func RSI(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := candles[i].Close - candles[i-1].Close
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgG, avgL := gain/float64(period), loss/float64(period)
	for i := period + 1; i < len(candles); i++ {
		d := candles[i].Close - candles[i-1].Close
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgG = (avgG*float64(period-1) + g) / float64(period)
		avgL = (avgL*float64(period-1) + l) / float64(period)
	}
	if avgL == 0 {
		if avgG == 0 {
			return 50
		}
		return 100
	}
	rs := avgG / avgL
	return 100 - 100/(1+rs)
}

// MACD returns the MACD line and its signal line, zero when too short.
func MACD(candles []models.Candle, fast, slow, signal int) (float64, float64) {
	if len(candles) < slow+signal {
		return 0, 0
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	f := EMASeries(closes, fast)
	s := EMASeries(closes, slow)
	// align fast EMA with slow EMA
	f = f[len(f)-len(s):]
	line := make([]float64, len(s))
	for i := range s {
		line[i] = f[i] - s[i]
	}
	sig := EMASeries(line, signal)
	return line[len(line)-1], sig[len(sig)-1]
}

// ATR computes Wilder's average true range, or 0 when too short.
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	tr := func(i int) float64 {
		c, prev := candles[i], candles[i-1].Close
		return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
	}
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr(i)
	}
	atr := sum / float64(period)
	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + tr(i)) / float64(period)
	}
	return atr
}

// Momentum is the close change over period bars in units of 2 ATR, squashed
// into [-1,1] with tanh.
func Momentum(candles []models.Candle, period int, atr float64) float64 {
	if period <= 0 || len(candles) <= period || atr <= 0 {
		return 0
	}
	last := candles[len(candles)-1].Close
	prev := candles[len(candles)-1-period].Close
	return math.Tanh((last - prev) / (2 * atr))
}

// Trend labels the MA stack. A flat, quiet stack is RANGING.
func Trend(price, ma20, ma50, ma200, volPct float64) models.TrendLabel {
	long := ma200
	if long == 0 {
		long = ma50
	}
	if ma20 == 0 || ma50 == 0 {
		return models.TrendNeutral
	}
	switch {
	case price > ma20 && ma20 > ma50 && ma50 >= long:
		return models.TrendBullish
	case price < ma20 && ma20 < ma50 && ma50 <= long:
		return models.TrendBearish
	case price > 0 && math.Abs(ma20-ma50)/price < 0.002 && volPct < 0.5:
		return models.TrendRanging
	default:
		return models.TrendNeutral
	}
}

// Snapshot computes the indicator snapshot of a candle series (oldest
// first). Indicators without enough history are left zero.
func Snapshot(candles []models.Candle) (models.IndicatorSnapshot, error) {
	if len(candles) < MinCandles {
		return models.IndicatorSnapshot{}, &models.MissingDataError{Component: "features.snapshot", Need: MinCandles, Have: len(candles)}
	}
	price := candles[len(candles)-1].Close
	s := models.IndicatorSnapshot{
		RSI:   RSI(candles, RSIPeriod),
		ATR:   ATR(candles, ATRPeriod),
		MA20:  SMA(candles, 20),
		MA50:  SMA(candles, 50),
		MA100: SMA(candles, 100),
		MA200: SMA(candles, 200),
	}
	s.MACD, s.MACDSignal = MACD(candles, MACDFast, MACDSlow, MACDSignal)
	s.Momentum = Momentum(candles, MomentumPeriod, s.ATR)
	if price > 0 {
		s.VolatilityPct = s.ATR / price * 100
	}
	s.Trend = Trend(price, s.MA20, s.MA50, s.MA200, s.VolatilityPct)
	return s, nil
}

// Vector flattens a snapshot plus realized volatility into the feature
// vector the ML weight service expects.
func Vector(candles []models.Candle, s models.IndicatorSnapshot, tf domrepo.Timeframe) map[string]float64 {
	price := 0.0
	if len(candles) > 0 {
		price = candles[len(candles)-1].Close
	}
	rel := func(ma float64) float64 {
		if ma == 0 || price == 0 {
			return 0
		}
		return price/ma - 1
	}
	trend := 0.0
	switch s.Trend {
	case models.TrendBullish:
		trend = 1
	case models.TrendBearish:
		trend = -1
	}
	return map[string]float64{
		"rsi":            s.RSI,
		"macd_hist":      s.MACDHistogram(),
		"atr_pct":        s.VolatilityPct,
		"momentum":       s.Momentum,
		"dist_ma20":      rel(s.MA20),
		"dist_ma50":      rel(s.MA50),
		"dist_ma200":     rel(s.MA200),
		"trend":          trend,
		"realized_vol":   RealizedVolatility(ComputeLogReturns(candles), 20, BarsPerYearForTF(tf)),
		"bars_available": float64(len(candles)),
	}
}
