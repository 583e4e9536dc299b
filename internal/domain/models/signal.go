package models

import "time"

// Horizon is the trading timeframe class a signal belongs to.
type Horizon string

const (
	HorizonScalp Horizon = "scalp"
	HorizonSwing Horizon = "swing"
)

// Horizons lists every horizon in evaluation order.
var Horizons = []Horizon{HorizonScalp, HorizonSwing}

func (h Horizon) Valid() bool { return h == HorizonScalp || h == HorizonSwing }

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

func (d Direction) Valid() bool { return d == DirectionBuy || d == DirectionSell }

// Sign returns +1 for BUY, -1 for SELL and 0 for anything else.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionBuy:
		return 1
	case DirectionSell:
		return -1
	default:
		return 0
	}
}

// ConfidenceScale declares the range a producer reports confidence on.
type ConfidenceScale string

const (
	ScalePercent ConfidenceScale = "percent" // [0,100]
	ScaleTen     ConfidenceScale = "ten"     // [0,10], e.g. the quantum score
	ScaleUnit    ConfidenceScale = "unit"    // [0,1]
)

// SubsystemSignal is the raw output of one signal producer for one horizon.
type SubsystemSignal struct {
	SourceID   string          `json:"source_id"`
	Horizon    Horizon         `json:"horizon"`
	Direction  Direction       `json:"direction"`
	Confidence float64         `json:"confidence"`
	Scale      ConfidenceScale `json:"scale,omitempty"`
	Entry      float64         `json:"entry"`
	StopLoss   float64         `json:"stop_loss"`
	TakeProfit float64         `json:"take_profit"`
}

// NormalizedSignal is a SubsystemSignal mapped onto the common scale.
type NormalizedSignal struct {
	SourceID       string  `json:"source_id"`
	DirectionScore float64 `json:"direction_score"` // -1 or +1
	Confidence     float64 `json:"confidence"`      // 0..100
}

// ResolvedSignal is the weighted decision for one horizon. Direction is
// final once resolved; later stages only touch confidence.
type ResolvedSignal struct {
	Horizon               Horizon   `json:"horizon"`
	Direction             Direction `json:"direction"`
	WeightedConfidence    float64   `json:"weighted_confidence"`
	DirectionScorePercent float64   `json:"direction_score_percent"`
	DecidedBy             string    `json:"decided_by"` // "threshold" or the tie-break source id
}

// ConfluenceFactor is one checklist entry of the confluence scorer.
type ConfluenceFactor struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Weight int    `json:"weight"`
}

type ConfluenceResult struct {
	Horizon  Horizon            `json:"horizon"`
	Score    int                `json:"score"`
	MaxScore int                `json:"max_score"`
	Factors  []ConfluenceFactor `json:"factors"`
	Context  MarketContext      `json:"context"`
}

// Ratio returns Score/MaxScore, or 0 when MaxScore is zero.
func (c ConfluenceResult) Ratio() float64 {
	if c.MaxScore <= 0 {
		return 0
	}
	return float64(c.Score) / float64(c.MaxScore)
}

// RiskLevels holds entry, stop and targets. Target2 is zero for scalp.
type RiskLevels struct {
	Entry           float64 `json:"entry"`
	StopLoss        float64 `json:"stop_loss"`
	Target1         float64 `json:"target1"`
	Target2         float64 `json:"target2,omitempty"`
	StopDistance    float64 `json:"stop_distance"`
	TargetDistance  float64 `json:"target_distance"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
	Adjusted        bool    `json:"adjusted,omitempty"`
}

// HeadlineTarget is the target used for the headline risk/reward ratio.
func (r RiskLevels) HeadlineTarget() float64 {
	if r.Target2 != 0 {
		return r.Target2
	}
	return r.Target1
}

// FinalSignal is the actionable recommendation for one horizon.
type FinalSignal struct {
	Horizon               Horizon          `json:"horizon"`
	Direction             Direction        `json:"direction"`
	Entry                 float64          `json:"entry"`
	StopLoss              float64          `json:"stop_loss"`
	Target1               float64          `json:"target1"`
	Target2               float64          `json:"target2,omitempty"`
	Confidence            float64          `json:"confidence"`
	RiskRewardRatio       float64          `json:"risk_reward_ratio"`
	DirectionScorePercent float64          `json:"direction_score_percent"`
	Confluence            ConfluenceResult `json:"confluence"`
	Reason                string           `json:"reason"`
	Sessions              []string         `json:"sessions,omitempty"`
	Issues                []string         `json:"issues,omitempty"`
}

// Analysis is the result of one analysis request for a symbol.
type Analysis struct {
	ID        string                  `json:"id"`
	Symbol    string                  `json:"symbol"`
	AsOf      time.Time               `json:"as_of"`
	Price     float64                 `json:"price"`
	Scalp     *FinalSignal            `json:"scalp,omitempty"`
	Swing     *FinalSignal            `json:"swing,omitempty"`
	Levels    SupportResistanceLevels `json:"levels"`
	Producers map[string]string       `json:"producer_errors,omitempty"`
	Errors    map[string]string       `json:"errors,omitempty"`
}

// HasSignal reports whether at least one horizon produced a signal.
func (a *Analysis) HasSignal() bool { return a.Scalp != nil || a.Swing != nil }

// Signal returns the final signal for a horizon, or nil.
func (a *Analysis) Signal(h Horizon) *FinalSignal {
	switch h {
	case HorizonScalp:
		return a.Scalp
	case HorizonSwing:
		return a.Swing
	default:
		return nil
	}
}

// Records flattens the produced signals into journal rows, scalp first.
func (a *Analysis) Records() []SignalRecord {
	out := make([]SignalRecord, 0, 2)
	for _, h := range Horizons {
		if s := a.Signal(h); s != nil {
			out = append(out, SignalRecord{
				AnalysisID: a.ID,
				Symbol:     a.Symbol,
				AsOf:       a.AsOf.UnixMilli(),
				Signal:     *s,
			})
		}
	}
	return out
}
