package models

import "time"

// Candle represents an OHLCV record.
type Candle struct {
	Bucket time.Time `json:"t"`
	Symbol string    `json:"symbol,omitempty"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

type TrendLabel string

const (
	TrendBullish TrendLabel = "BULLISH"
	TrendBearish TrendLabel = "BEARISH"
	TrendNeutral TrendLabel = "NEUTRAL"
	TrendRanging TrendLabel = "RANGING"
)

// Directional reports whether the label names a trending market.
func (t TrendLabel) Directional() bool { return t == TrendBullish || t == TrendBearish }

// IndicatorSnapshot is the precomputed indicator state for one series.
// Momentum is normalized to [-1,1]; VolatilityPct is ATR as a percent of price.
type IndicatorSnapshot struct {
	RSI           float64    `json:"rsi"`
	MACD          float64    `json:"macd"`
	MACDSignal    float64    `json:"macd_signal"`
	ATR           float64    `json:"atr"`
	MA20          float64    `json:"ma20"`
	MA50          float64    `json:"ma50"`
	MA100         float64    `json:"ma100"`
	MA200         float64    `json:"ma200"`
	Momentum      float64    `json:"momentum"`
	VolatilityPct float64    `json:"volatility_pct"`
	Trend         TrendLabel `json:"trend"`
}

// MACDHistogram returns MACD minus its signal line.
func (s IndicatorSnapshot) MACDHistogram() float64 { return s.MACD - s.MACDSignal }

// MarketContext is the raw context the confluence scorer re-examines.
type MarketContext struct {
	Price    float64           `json:"price"`
	Snapshot IndicatorSnapshot `json:"snapshot"`
}

// WeightSet is what a weight provider hands the resolver for one horizon.
type WeightSet struct {
	Weights              map[string]float64 `json:"weights"`
	ConfidenceMultiplier float64            `json:"confidence_multiplier"`
	Source               string             `json:"source"` // "static" or "ml"
}
