package fusion

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"SignalFuse/internal/domain/models"
	"SignalFuse/internal/services/sessions"
)

// Config tunes the pipeline. The zero value is not useful; start from
// DefaultConfig.
type Config struct {
	// StrictValidation fails the horizon on an inconsistent producer signal
	// instead of excluding that producer.
	StrictValidation bool
	// PricePrecision is the number of decimals prices are rounded to in the
	// final signal. Negative disables rounding.
	PricePrecision  int32
	Differentiation DifferentiationPolicy
}

func DefaultConfig() Config {
	return Config{
		StrictValidation: true,
		PricePrecision:   2,
		Differentiation:  DefaultDifferentiationPolicy(),
	}
}

// Engine runs Normalize → Resolve → ScoreConfluence → ComputeRisk →
// AdjustConfidence for one horizon. It holds no mutable state.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// HorizonInput is one horizon's worth of inputs. AsOf only feeds the
// session labels.
type HorizonInput struct {
	Horizon  models.Horizon
	AsOf     time.Time
	Price    float64
	Signals  []models.SubsystemSignal
	Weights  models.WeightSet
	Snapshot models.IndicatorSnapshot
}

// HorizonResult keeps the unrounded risk next to the final signal so the
// differentiation step can rework swing after both horizons finished.
type HorizonResult struct {
	Signal     models.FinalSignal
	Risk       models.RiskLevels
	Resolved   models.ResolvedSignal
	Confluence models.ConfluenceResult

	confidence ConfidenceInput
	issues     []string
	sessions   []string
}

func (e *Engine) AnalyzeHorizon(in HorizonInput) (*HorizonResult, error) {
	h := in.Horizon
	if !h.Valid() {
		return nil, &models.ComputationError{Horizon: h, Stage: "input", Err: fmt.Errorf("unknown horizon %q", h)}
	}
	if !finite(in.Price) || in.Price <= 0 {
		return nil, &models.ComputationError{Horizon: h, Stage: "input", Inputs: map[string]float64{"price": in.Price}, Err: errNonPositiveEntry}
	}

	norm := Normalize(in.Signals, in.Price)
	var issues []string
	for _, ce := range norm.Issues {
		issues = append(issues, ce.Error())
	}
	if len(norm.Rejected) > 0 {
		if e.cfg.StrictValidation {
			return nil, norm.Rejected[0]
		}
		for _, rj := range norm.Rejected {
			issues = append(issues, "excluded: "+rj.Error())
		}
	}

	resolved, err := Resolve(h, norm.Signals, in.Weights.Weights)
	if err != nil {
		return nil, err
	}

	ctx := models.MarketContext{Price: in.Price, Snapshot: in.Snapshot}
	conf := ScoreConfluence(h, resolved.Direction, ctx)

	s := in.Snapshot
	risk, err := ComputeRisk(RiskInput{
		Horizon:         h,
		Direction:       resolved.Direction,
		Entry:           in.Price,
		ATR:             s.ATR,
		VolatilityPct:   s.VolatilityPct,
		Trend:           s.Trend,
		Momentum:        s.Momentum,
		ConfluenceScore: conf.Score,
		MaxScore:        conf.MaxScore,
	})
	if err != nil {
		return nil, err
	}

	maShort, maLong := s.MA20, s.MA50
	if h == models.HorizonSwing {
		maShort, maLong = s.MA50, s.MA200
	}
	res := &HorizonResult{
		Risk:       risk,
		Resolved:   resolved,
		Confluence: conf,
		confidence: ConfidenceInput{
			Base:            baseConfidence(resolved.WeightedConfidence, in.Weights.ConfidenceMultiplier),
			Direction:       resolved.Direction,
			ConfluenceScore: conf.Score,
			MaxScore:        conf.MaxScore,
			VolatilityPct:   s.VolatilityPct,
			Momentum:        s.Momentum,
			RSI:             s.RSI,
			Trend:           s.Trend,
			RiskReward:      risk.RiskRewardRatio,
			Price:           in.Price,
			MAShort:         maShort,
			MALong:          maLong,
		},
		issues:   issues,
		sessions: sessions.ActiveKillZones(in.AsOf),
	}
	e.assemble(res)
	return res, nil
}

// Differentiate widens swing risk when it sits too close to scalp risk and
// re-scores swing confidence against the new R:R. Nil results are skipped.
func (e *Engine) Differentiate(scalp, swing *HorizonResult) error {
	if scalp == nil || swing == nil {
		return nil
	}
	lv, err := EnforceDifferentiation(scalp.Risk, swing.Risk, swing.Resolved.Direction, e.cfg.Differentiation)
	if err != nil {
		return err
	}
	if !lv.Adjusted {
		return nil
	}
	swing.Risk = lv
	swing.confidence.RiskReward = lv.RiskRewardRatio
	swing.issues = append(swing.issues, fmt.Sprintf("swing risk widened to %.1fx scalp stop", e.cfg.Differentiation.MinStopRatio))
	e.assemble(swing)
	return nil
}

func baseConfidence(weighted, multiplier float64) float64 {
	if !finite(multiplier) || multiplier <= 0 {
		multiplier = 1
	}
	return clamp(weighted*multiplier, 0, 100)
}

func (e *Engine) assemble(r *HorizonResult) {
	confidence, notes := ExplainConfidence(r.confidence)
	lv := e.roundLevels(r.Resolved.Direction, r.Risk)

	reason := fmt.Sprintf("%s %s: direction score %.1f%% (%s), confluence %d/%d (%.0f%%), R:R %.2f",
		r.Resolved.Direction, r.Resolved.Horizon, r.Resolved.DirectionScorePercent, r.Resolved.DecidedBy,
		r.Confluence.Score, r.Confluence.MaxScore, r.Confluence.Ratio()*100, r.Risk.RiskRewardRatio)
	if len(notes) > 0 {
		reason += "; " + strings.Join(notes, ", ")
	}

	r.Signal = models.FinalSignal{
		Horizon:               r.Resolved.Horizon,
		Direction:             r.Resolved.Direction,
		Entry:                 lv.Entry,
		StopLoss:              lv.StopLoss,
		Target1:               lv.Target1,
		Target2:               lv.Target2,
		Confidence:            round(confidence, 2),
		RiskRewardRatio:       round(r.Risk.RiskRewardRatio, 2),
		DirectionScorePercent: round(r.Resolved.DirectionScorePercent, 2),
		Confluence:            r.Confluence,
		Reason:                reason,
		Sessions:              r.sessions,
		Issues:                r.issues,
	}
}

// roundLevels rounds prices to the configured precision, keeping the raw
// values when rounding would collapse the stop/target ordering.
func (e *Engine) roundLevels(d models.Direction, lv models.RiskLevels) models.RiskLevels {
	if e.cfg.PricePrecision < 0 {
		return lv
	}
	p := e.cfg.PricePrecision
	out := lv
	out.Entry = round(lv.Entry, p)
	out.StopLoss = round(lv.StopLoss, p)
	out.Target1 = round(lv.Target1, p)
	if lv.Target2 != 0 {
		out.Target2 = round(lv.Target2, p)
	}
	if !OrderingHolds(d, out) {
		return lv
	}
	return out
}

// OrderingHolds reports whether lv satisfies stop < entry < target1 < target2
// for BUY and the mirror for SELL.
func OrderingHolds(d models.Direction, lv models.RiskLevels) bool {
	sign := d.Sign()
	if sign == 0 {
		return false
	}
	if !(sign*(lv.Entry-lv.StopLoss) > 0 && sign*(lv.Target1-lv.Entry) > 0) {
		return false
	}
	if lv.Target2 != 0 && !(sign*(lv.Target2-lv.Target1) > 0) {
		return false
	}
	return true
}

func round(v float64, places int32) float64 {
	if !finite(v) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
