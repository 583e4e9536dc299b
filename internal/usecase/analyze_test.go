package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	"SignalFuse/internal/domain/service"
	"SignalFuse/internal/service/cache"
	"SignalFuse/internal/services/analytics"
	"SignalFuse/internal/services/fusion"
	"SignalFuse/pkg/metrics"
)

var t0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func series240(tf domrepo.Timeframe) []models.Candle {
	out := make([]models.Candle, 240)
	prev := 100.0
	for i := range out {
		c := 100 + 0.1*float64(i) + 0.5*math.Sin(float64(i)/3)
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * tf.Duration()),
			Symbol: "XAUUSD",
			Open:   prev,
			High:   math.Max(prev, c) + 0.4,
			Low:    math.Min(prev, c) - 0.4,
			Close:  c,
			Volume: 10,
		}
		prev = c
	}
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	candles  map[domrepo.Timeframe][]models.Candle
	fail     map[domrepo.Timeframe]error
	calls    int
	lastAsOf time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{candles: map[domrepo.Timeframe][]models.Candle{
		domrepo.TF5m: series240(domrepo.TF5m),
		domrepo.TF1h: series240(domrepo.TF1h),
	}}
}

func (s *fakeStore) GetCandlesBefore(_ context.Context, _ string, asOf time.Time, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastAsOf = asOf
	if err := s.fail[tf]; err != nil {
		return nil, err
	}
	var out []models.Candle
	for _, c := range s.candles[tf] {
		if !c.Bucket.After(asOf) {
			out = append(out, c)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (s *fakeStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	return s.GetCandlesBefore(ctx, symbol, time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC), n, tf)
}

type fakeProducer struct {
	id   string
	dir  models.Direction
	conf float64
	err  error
}

func (p fakeProducer) ID() string { return p.id }

func (p fakeProducer) Produce(_ context.Context, in service.ProducerInput) (models.SubsystemSignal, error) {
	if p.err != nil {
		return models.SubsystemSignal{}, p.err
	}
	s := p.dir.Sign()
	return models.SubsystemSignal{
		SourceID:   p.id,
		Horizon:    in.Horizon,
		Direction:  p.dir,
		Confidence: p.conf,
		Scale:      models.ScalePercent,
		Entry:      in.Price,
		StopLoss:   in.Price * (1 - 0.01*s),
		TakeProfit: in.Price * (1 + 0.02*s),
	}, nil
}

type failingWeights struct{}

func (failingWeights) Weights(context.Context, string, models.Horizon, map[string]float64) (models.WeightSet, error) {
	return models.WeightSet{}, errors.New("ml down")
}

type fakeJournal struct {
	mu    sync.Mutex
	saved []*models.Analysis
}

func (j *fakeJournal) Init(context.Context) error { return nil }
func (j *fakeJournal) Save(_ context.Context, a *models.Analysis) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.saved = append(j.saved, a)
	return nil
}
func (j *fakeJournal) History(_ context.Context, symbol string, limit int) ([]models.SignalRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []models.SignalRecord
	for _, a := range j.saved {
		if a.Symbol == symbol {
			out = append(out, a.Records()...)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
func (j *fakeJournal) Health(context.Context) error { return nil }
func (j *fakeJournal) Close() error                 { return nil }

type fakePublisher struct{ published int }

func (p *fakePublisher) Publish(context.Context, *models.Analysis) error { p.published++; return nil }
func (p *fakePublisher) Close() error                                  { return nil }

type fakeBroadcaster struct{ got []*models.Analysis }

func (b *fakeBroadcaster) Broadcast(a *models.Analysis) { b.got = append(b.got, a) }

func producersBuy() []service.SignalProducer {
	return []service.SignalProducer{
		fakeProducer{id: "a", dir: models.DirectionBuy, conf: 80},
		fakeProducer{id: "b", dir: models.DirectionBuy, conf: 70},
	}
}

func newUseCase(store domrepo.FeatureStore, deps AnalyzeDeps, scalpProducers, swingProducers []service.SignalProducer) *AnalyzeUseCase {
	w := map[string]float64{"a": 0.6, "b": 0.4}
	deps.Store = store
	deps.Engine = fusion.NewEngine(fusion.DefaultConfig())
	deps.Collector = NewSignalCollector(time.Second, metrics.Nop{})
	deps.Fallback = analytics.NewStaticWeightProvider(w, w)
	deps.Metrics = metrics.Nop{}
	uc := NewAnalyzeUseCase(deps, AnalyzeConfig{
		Scalp:    HorizonSetup{Timeframe: domrepo.TF5m, Candles: 220, Producers: scalpProducers},
		Swing:    HorizonSetup{Timeframe: domrepo.TF1h, Candles: 220, Producers: swingProducers},
		CacheTTL: time.Minute,
	})
	uc.now = func() time.Time { return time.Date(2024, 3, 20, 14, 0, 0, 0, time.UTC) }
	return uc
}

func TestAnalyzeBothHorizons(t *testing.T) {
	store := newFakeStore()
	uc := newUseCase(store, AnalyzeDeps{}, producersBuy(), producersBuy())

	a, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: " xauusd "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Symbol != "XAUUSD" || a.ID == "" {
		t.Fatalf("unexpected header %+v", a)
	}
	if a.Scalp == nil || a.Swing == nil {
		t.Fatalf("expected both horizons, errors=%v", a.Errors)
	}
	if a.Scalp.Direction != models.DirectionBuy || a.Swing.Direction != models.DirectionBuy {
		t.Fatalf("unexpected directions %s/%s", a.Scalp.Direction, a.Swing.Direction)
	}
	if a.Scalp.DirectionScorePercent != 100 {
		t.Fatalf("unanimous agreement should score 100, got %v", a.Scalp.DirectionScorePercent)
	}
	for _, s := range []*models.FinalSignal{a.Scalp, a.Swing} {
		if s.Confidence < 15 || s.Confidence > 95 {
			t.Fatalf("confidence out of band: %v", s.Confidence)
		}
		if !(s.StopLoss < s.Entry && s.Entry < s.Target1) {
			t.Fatalf("ordering broken: %+v", s)
		}
	}
	last := store.candles[domrepo.TF5m][239].Close
	if a.Price != last {
		t.Fatalf("price = %v, want last scalp close %v", a.Price, last)
	}
	if len(a.Levels.Supports) > 3 || len(a.Levels.Resistances) > 3 {
		t.Fatalf("too many levels %+v", a.Levels)
	}
	if a.Errors != nil || a.Producers != nil {
		t.Fatalf("unexpected errors %v %v", a.Errors, a.Producers)
	}
}

func TestAnalyzeProducerFailureIsolated(t *testing.T) {
	scalp := append(producersBuy(), fakeProducer{id: "c", err: errors.New("timeout")})
	uc := newUseCase(newFakeStore(), AnalyzeDeps{}, scalp, producersBuy())

	a, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "XAUUSD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Scalp == nil {
		t.Fatalf("scalp should survive one producer failure: %v", a.Errors)
	}
	if a.Producers["scalp.c"] != "timeout" {
		t.Fatalf("missing failure marker: %v", a.Producers)
	}
}

func TestAnalyzeHorizonStoreErrorIsolated(t *testing.T) {
	store := newFakeStore()
	store.fail = map[domrepo.Timeframe]error{domrepo.TF1h: errors.New("clickhouse down")}
	uc := newUseCase(store, AnalyzeDeps{}, producersBuy(), producersBuy())

	a, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "XAUUSD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Scalp == nil || a.Swing != nil {
		t.Fatalf("expected scalp only, got scalp=%v swing=%v", a.Scalp != nil, a.Swing != nil)
	}
	if a.Errors["swing"] == "" {
		t.Fatalf("swing failure not recorded: %v", a.Errors)
	}
	if len(a.Levels.Supports)+len(a.Levels.Resistances) == 0 {
		t.Fatalf("levels should fall back to scalp candles")
	}
}

func TestAnalyzeNoCandles(t *testing.T) {
	store := &fakeStore{candles: map[domrepo.Timeframe][]models.Candle{}}
	uc := newUseCase(store, AnalyzeDeps{}, producersBuy(), producersBuy())
	_, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "NOPE"})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAnalyzeAllStoresDown(t *testing.T) {
	store := newFakeStore()
	down := errors.New("down")
	store.fail = map[domrepo.Timeframe]error{domrepo.TF1h: down, domrepo.TF5m: down}
	uc := newUseCase(store, AnalyzeDeps{}, producersBuy(), producersBuy())
	_, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "X"})
	if !errors.Is(err, down) || errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestAnalyzeSymbolRequired(t *testing.T) {
	uc := newUseCase(newFakeStore(), AnalyzeDeps{}, nil, nil)
	if _, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "  "}); !errors.Is(err, ErrSymbolRequired) {
		t.Fatalf("expected ErrSymbolRequired, got %v", err)
	}
}

func TestAnalyzeFallsBackToStaticWeights(t *testing.T) {
	uc := newUseCase(newFakeStore(), AnalyzeDeps{Weights: failingWeights{}}, producersBuy(), producersBuy())
	a, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "XAUUSD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Scalp == nil || a.Swing == nil {
		t.Fatalf("static fallback should keep both horizons: %v", a.Errors)
	}
}

func TestAnalyzeNoWeightsForProducers(t *testing.T) {
	other := []service.SignalProducer{fakeProducer{id: "zzz", dir: models.DirectionSell, conf: 90}}
	uc := newUseCase(newFakeStore(), AnalyzeDeps{}, other, producersBuy())
	a, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "XAUUSD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Scalp != nil || a.Errors["scalp"] == "" {
		t.Fatalf("scalp without weighted participants must fail alone")
	}
	if a.Swing == nil {
		t.Fatalf("swing must be unaffected")
	}
}

func TestAnalyzeEmitAndCache(t *testing.T) {
	store := newFakeStore()
	j, p, b := &fakeJournal{}, &fakePublisher{}, &fakeBroadcaster{}
	uc := newUseCase(store, AnalyzeDeps{
		Cache:       cache.NewTTLCache(),
		Journal:     j,
		Publisher:   p,
		Broadcaster: b,
	}, producersBuy(), producersBuy())

	first, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "XAUUSD", Emit: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "XAUUSD", Emit: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("second call should be served from cache")
	}
	if len(j.saved) != 1 || p.published != 1 || len(b.got) != 1 {
		t.Fatalf("emit should run once: journal=%d publish=%d broadcast=%d", len(j.saved), p.published, len(b.got))
	}

	recs, err := uc.History(context.Background(), "xauusd", 10)
	if err != nil || len(recs) != 2 {
		t.Fatalf("expected 2 journaled records, got %d %v", len(recs), err)
	}
}

func TestAnalyzeReplayThenEmitSameInstant(t *testing.T) {
	store := newFakeStore()
	j, p, b := &fakeJournal{}, &fakePublisher{}, &fakeBroadcaster{}
	uc := newUseCase(store, AnalyzeDeps{
		Cache:       cache.NewTTLCache(),
		Journal:     j,
		Publisher:   p,
		Broadcaster: b,
	}, producersBuy(), producersBuy())
	asOf := t0.Add(100 * time.Hour)

	replay, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "XAUUSD", AsOf: asOf})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(j.saved) != 0 || p.published != 0 || len(b.got) != 0 {
		t.Fatalf("replay must not emit")
	}
	for i := 0; i < 2; i++ {
		bar, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "XAUUSD", AsOf: asOf, Emit: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if bar.ID != replay.ID {
			t.Fatalf("expected the cached analysis to be reused")
		}
	}
	if len(j.saved) != 1 || p.published != 1 || len(b.got) != 1 {
		t.Fatalf("expected one emit: journal=%d publish=%d broadcast=%d", len(j.saved), p.published, len(b.got))
	}
}

func TestAnalyzeAsOfReadsHistory(t *testing.T) {
	store := newFakeStore()
	uc := newUseCase(store, AnalyzeDeps{}, producersBuy(), producersBuy())
	asOf := t0.Add(100 * time.Hour)

	a, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "XAUUSD", AsOf: asOf})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.lastAsOf.Equal(asOf) || !a.AsOf.Equal(asOf) {
		t.Fatalf("as-of not propagated: store=%v analysis=%v", store.lastAsOf, a.AsOf)
	}
	if a.Price != store.candles[domrepo.TF5m][239].Close {
		t.Fatalf("5m series ends before as-of, expected its last close")
	}
}

func TestHistoryJournalDisabled(t *testing.T) {
	uc := newUseCase(newFakeStore(), AnalyzeDeps{}, nil, nil)
	if _, err := uc.History(context.Background(), "X", 10); !errors.Is(err, ErrJournalDisabled) {
		t.Fatalf("expected ErrJournalDisabled, got %v", err)
	}
}

func TestLevels(t *testing.T) {
	uc := newUseCase(newFakeStore(), AnalyzeDeps{}, nil, nil)
	lv, err := uc.Levels(context.Background(), "XAUUSD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lv.Supports) == 0 || len(lv.Supports) > 3 || len(lv.Resistances) > 3 {
		t.Fatalf("unexpected levels %+v", lv)
	}
	empty := newUseCase(&fakeStore{candles: map[domrepo.Timeframe][]models.Candle{}}, AnalyzeDeps{}, nil, nil)
	if _, err := empty.Levels(context.Background(), "XAUUSD"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
