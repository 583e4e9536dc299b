package producers

import (
	"context"
	"errors"
	"testing"

	"SignalFuse/internal/domain/models"
	"SignalFuse/internal/domain/service"
)

func bullishInput(h models.Horizon) service.ProducerInput {
	return service.ProducerInput{
		Symbol:  "XAUUSD",
		Horizon: h,
		Price:   110,
		Snapshot: models.IndicatorSnapshot{
			RSI: 62, MACD: 1.2, MACDSignal: 0.8, ATR: 2,
			MA20: 105, MA50: 100, MA200: 90,
			Momentum: 0.7, VolatilityPct: 1.5, Trend: models.TrendBullish,
		},
	}
}

func TestBuiltinIDs(t *testing.T) {
	for id, p := range Builtin() {
		if p.ID() != id {
			t.Fatalf("producer keyed %q reports %q", id, p.ID())
		}
	}
}

func TestProducersAgreeOnBullishContext(t *testing.T) {
	in := bullishInput(models.HorizonScalp)
	for _, p := range []service.SignalProducer{Trend{}, Momentum{}, Quantum{}} {
		sig, err := p.Produce(context.Background(), in)
		if err != nil {
			t.Fatalf("%s: %v", p.ID(), err)
		}
		if sig.Direction != models.DirectionBuy {
			t.Fatalf("%s: expected BUY, got %s", p.ID(), sig.Direction)
		}
		if !(sig.StopLoss < sig.Entry && sig.Entry < sig.TakeProfit) {
			t.Fatalf("%s: bracket out of order %+v", p.ID(), sig)
		}
	}
}

func TestTrendConfidenceFullAlignment(t *testing.T) {
	sig, _ := Trend{}.Produce(context.Background(), bullishInput(models.HorizonSwing))
	if sig.Confidence != 90 {
		t.Fatalf("expected 90, got %v", sig.Confidence)
	}
}

func TestSwingBracketIsWider(t *testing.T) {
	scalp, _ := Trend{}.Produce(context.Background(), bullishInput(models.HorizonScalp))
	swing, _ := Trend{}.Produce(context.Background(), bullishInput(models.HorizonSwing))
	if scalp.Entry-scalp.StopLoss != 2 || swing.Entry-swing.StopLoss != 4 {
		t.Fatalf("unexpected stops scalp=%v swing=%v", scalp.StopLoss, swing.StopLoss)
	}
}

func TestSellBracket(t *testing.T) {
	in := bullishInput(models.HorizonScalp)
	in.Price = 80
	in.Snapshot.MA20, in.Snapshot.MA50, in.Snapshot.MA200 = 90, 95, 100
	sig, err := Trend{}.Produce(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Direction != models.DirectionSell || !(sig.TakeProfit < sig.Entry && sig.Entry < sig.StopLoss) {
		t.Fatalf("unexpected sell signal %+v", sig)
	}
}

func TestTrendMissingMAs(t *testing.T) {
	in := bullishInput(models.HorizonScalp)
	in.Snapshot.MA50 = 0
	_, err := Trend{}.Produce(context.Background(), in)
	var md *models.MissingDataError
	if !errors.As(err, &md) {
		t.Fatalf("expected MissingDataError, got %v", err)
	}
}

func TestQuantumUsesTenScale(t *testing.T) {
	sig, err := Quantum{}.Produce(context.Background(), bullishInput(models.HorizonScalp))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Scale != models.ScaleTen || sig.Confidence < 0 || sig.Confidence > 10 {
		t.Fatalf("unexpected quantum signal %+v", sig)
	}
}

func candlesFromHighs(highs, lows []float64) []models.Candle {
	out := make([]models.Candle, len(highs))
	for i := range highs {
		out[i] = models.Candle{High: highs[i], Low: lows[i], Open: lows[i], Close: highs[i]}
	}
	return out
}

func TestFractalPivots(t *testing.T) {
	highs := []float64{1, 2, 5, 2, 1, 2, 6, 2, 1}
	lows := []float64{1, 0.5, 1, 0.8, 0.2, 0.9, 1, 0.9, 1}
	h, l := FractalPivots(candlesFromHighs(highs, lows), 2)
	if len(h) != 2 || h[0] != 5 || h[1] != 6 {
		t.Fatalf("unexpected highs %v", h)
	}
	if len(l) != 1 || l[0] != 0.2 {
		t.Fatalf("unexpected lows %v", l)
	}
}

func TestStructureHigherHighsHigherLows(t *testing.T) {
	highs := []float64{1, 2, 5, 2, 1, 2, 4, 6, 4, 3, 4, 5, 8, 5, 4}
	lows := []float64{1, 0.9, 1, 0.9, 0.2, 0.9, 1, 1.2, 1.1, 0.5, 1, 1.3, 1.4, 1.3, 1.2}
	in := service.ProducerInput{Horizon: models.HorizonSwing, Price: 5, Candles: candlesFromHighs(highs, lows)}
	sig, err := Structure{Span: 2}.Produce(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Direction != models.DirectionBuy || sig.Confidence != 72 {
		t.Fatalf("expected confident BUY, got %+v", sig)
	}
}

func TestStructureNeedsCandles(t *testing.T) {
	_, err := Structure{Span: 2}.Produce(context.Background(), service.ProducerInput{Price: 1})
	var md *models.MissingDataError
	if !errors.As(err, &md) || md.Need != 5 {
		t.Fatalf("expected MissingDataError need 5, got %v", err)
	}
}
