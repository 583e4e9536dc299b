package fusion

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"SignalFuse/internal/domain/models"
)

func scalpInput() HorizonInput {
	return HorizonInput{
		Horizon: models.HorizonScalp,
		AsOf:    time.Date(2024, 1, 9, 8, 15, 0, 0, time.UTC),
		Price:   2650,
		Signals: []models.SubsystemSignal{
			{SourceID: "momentum", Horizon: models.HorizonScalp, Direction: models.DirectionBuy, Confidence: 70, Entry: 2650, StopLoss: 2645, TakeProfit: 2660},
			{SourceID: "structure", Horizon: models.HorizonScalp, Direction: models.DirectionBuy, Confidence: 60, Entry: 2650, StopLoss: 2644, TakeProfit: 2662},
			{SourceID: "quantum", Horizon: models.HorizonScalp, Direction: models.DirectionSell, Confidence: 6, Scale: models.ScaleTen, Entry: 2650, StopLoss: 2655, TakeProfit: 2640},
		},
		Weights: models.WeightSet{
			Weights:              map[string]float64{"momentum": 0.40, "structure": 0.35, "quantum": 0.25},
			ConfidenceMultiplier: 1,
			Source:               "static",
		},
		Snapshot: models.IndicatorSnapshot{
			RSI: 50, MACD: 1, MACDSignal: 0.5, ATR: 5,
			MA20: 2655, MA50: 2640, MA100: 2620, MA200: 2600,
			Momentum: 0.6, VolatilityPct: 1.0, Trend: models.TrendBullish,
		},
	}
}

func TestEngine_AnalyzeHorizon_WorkedScalp(t *testing.T) {
	e := NewEngine(DefaultConfig())
	res, err := e.AnalyzeHorizon(scalpInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig := res.Signal
	if sig.Direction != models.DirectionBuy {
		t.Fatalf("expected BUY, got %s", sig.Direction)
	}
	if sig.Confluence.Score != 4 || sig.Confluence.MaxScore != 5 {
		t.Fatalf("expected confluence 4/5, got %d/%d", sig.Confluence.Score, sig.Confluence.MaxScore)
	}
	if sig.Entry != 2650 || sig.StopLoss != 2646.5 || sig.Target1 != 2659.75 || sig.RiskRewardRatio != 2.79 {
		t.Fatalf("unexpected levels %+v", sig)
	}
	if sig.Confidence < ConfidenceFloor || sig.Confidence > ConfidenceCeiling {
		t.Fatalf("confidence out of band: %v", sig.Confidence)
	}
	if len(sig.Sessions) != 1 || sig.Sessions[0] != "LONDON_OPEN" {
		t.Fatalf("expected LONDON_OPEN session, got %v", sig.Sessions)
	}
	if !strings.HasPrefix(sig.Reason, "BUY scalp:") {
		t.Fatalf("unexpected reason %q", sig.Reason)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	e := NewEngine(DefaultConfig())
	var out [][]byte
	for i := 0; i < 2; i++ {
		res, err := e.AnalyzeHorizon(scalpInput())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := json.Marshal(res.Signal)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		out = append(out, b)
	}
	if !bytes.Equal(out[0], out[1]) {
		t.Fatalf("outputs differ:\n%s\n%s", out[0], out[1])
	}
}

func TestEngine_InconsistentSignalPolicy(t *testing.T) {
	in := scalpInput()
	in.Signals[1].StopLoss = 2700 // BUY with stop above entry

	strict := NewEngine(DefaultConfig())
	_, err := strict.AnalyzeHorizon(in)
	var is *models.InconsistentSignalError
	if !errors.As(err, &is) || is.SourceID != "structure" {
		t.Fatalf("expected inconsistent signal error, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.StrictValidation = false
	res, err := NewEngine(cfg).AnalyzeHorizon(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Signal.Issues) != 1 || !strings.HasPrefix(res.Signal.Issues[0], "excluded: ") {
		t.Fatalf("expected exclusion issue, got %v", res.Signal.Issues)
	}
}

func TestEngine_MissingATRFailsOnlyThatHorizon(t *testing.T) {
	e := NewEngine(DefaultConfig())
	in := scalpInput()
	in.Snapshot.ATR = 0
	_, err := e.AnalyzeHorizon(in)
	var md *models.MissingDataError
	if !errors.As(err, &md) {
		t.Fatalf("expected missing data error, got %v", err)
	}

	swing := scalpInput()
	swing.Horizon = models.HorizonSwing
	swing.Weights.Weights = map[string]float64{"momentum": 0.35, "structure": 0.35, "quantum": 0.30}
	if _, err := e.AnalyzeHorizon(swing); err != nil {
		t.Fatalf("swing must be unaffected, got %v", err)
	}
}

func TestEngine_MLMultiplierScalesBase(t *testing.T) {
	e := NewEngine(DefaultConfig())
	a, err := e.AnalyzeHorizon(scalpInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := scalpInput()
	in.Weights.ConfidenceMultiplier = 1.2
	b, err := e.AnalyzeHorizon(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Signal.Confidence < a.Signal.Confidence {
		t.Fatalf("multiplier above 1 must not lower confidence: %v < %v", b.Signal.Confidence, a.Signal.Confidence)
	}
}

func TestEngine_Differentiate(t *testing.T) {
	e := NewEngine(DefaultConfig())
	scalp, err := e.AnalyzeHorizon(scalpInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := scalpInput()
	in.Horizon = models.HorizonSwing
	in.Weights.Weights = map[string]float64{"momentum": 0.35, "structure": 0.35, "quantum": 0.30}
	in.Snapshot.ATR = 1 // swing stop 2.4, well under 1.5x scalp
	swing, err := e.AnalyzeHorizon(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Differentiate(scalp, swing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !swing.Risk.Adjusted {
		t.Fatalf("expected swing to be adjusted")
	}
	if swing.Risk.StopDistance < 1.5*scalp.Risk.StopDistance {
		t.Fatalf("post-condition violated: %v vs %v", swing.Risk.StopDistance, scalp.Risk.StopDistance)
	}
	if swing.Signal.StopLoss != 2583.75 || swing.Signal.Target2 != 2915 {
		t.Fatalf("unexpected swing signal %+v", swing.Signal)
	}
	if n := len(swing.Signal.Issues); n == 0 || !strings.Contains(swing.Signal.Issues[n-1], "widened") {
		t.Fatalf("expected widening issue, got %v", swing.Signal.Issues)
	}
	if err := e.Differentiate(nil, swing); err != nil {
		t.Fatalf("nil scalp must be a no-op, got %v", err)
	}
}
