package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	"SignalFuse/internal/domain/service"
	"SignalFuse/internal/service/cache"
	"SignalFuse/internal/services/features"
	"SignalFuse/internal/services/fusion"
	"SignalFuse/internal/services/levels"
	applogger "SignalFuse/pkg/logger"
	xutil "SignalFuse/pkg/util"

	"github.com/google/uuid"
)

var (
	ErrSymbolRequired  = errors.New("symbol required")
	ErrJournalDisabled = errors.New("signal journal disabled")
)

// HorizonSetup is where one horizon reads candles from and who votes on it.
type HorizonSetup struct {
	Horizon   models.Horizon
	Timeframe domrepo.Timeframe
	Candles   int
	Producers []service.SignalProducer
}

type AnalyzeConfig struct {
	Scalp    HorizonSetup
	Swing    HorizonSetup
	Timeout  time.Duration
	CacheTTL time.Duration
}

func (c AnalyzeConfig) setup(h models.Horizon) HorizonSetup {
	if h == models.HorizonSwing {
		return c.Swing
	}
	return c.Scalp
}

// AnalyzeDeps lists collaborators. Store, Engine, Collector and Fallback are
// required; the rest may be nil.
type AnalyzeDeps struct {
	Store       domrepo.FeatureStore
	Engine      *fusion.Engine
	Collector   *SignalCollector
	Weights     service.WeightProvider
	Fallback    service.WeightProvider
	Cache       cache.BytesCache
	Journal     domrepo.SignalJournal
	Publisher   domrepo.SignalPublisher
	Broadcaster domrepo.Broadcaster
	Metrics     domrepo.Metrics
	Logger      *applogger.Logger
}

// AnalyzeUseCase runs the fusion pipeline for both horizons of a symbol.
type AnalyzeUseCase struct {
	AnalyzeDeps
	cfg   AnalyzeConfig
	now   func() time.Time
	newID func() string
}

func NewAnalyzeUseCase(deps AnalyzeDeps, cfg AnalyzeConfig) *AnalyzeUseCase {
	if deps.Logger == nil {
		deps.Logger = applogger.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.Scalp.Horizon = models.HorizonScalp
	cfg.Swing.Horizon = models.HorizonSwing
	return &AnalyzeUseCase{
		AnalyzeDeps: deps,
		cfg:         cfg,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

type AnalyzeParams struct {
	Symbol string
	// AsOf pins the analysis to the last bar closed at or before it. Zero
	// means now, on the latest candles.
	AsOf time.Time
	// Emit journals, publishes and broadcasts the result.
	Emit bool
}

// series is the candle history of both horizons.
type series struct {
	candles map[models.Horizon][]models.Candle
	errs    map[models.Horizon]error
}

func (s series) lastBucket(h models.Horizon) int64 {
	c := s.candles[h]
	if len(c) == 0 {
		return 0
	}
	return c[len(c)-1].Bucket.Unix()
}

func (uc *AnalyzeUseCase) Analyze(ctx context.Context, p AnalyzeParams) (*models.Analysis, error) {
	symbol := xutil.NormalizeSymbol(p.Symbol)
	if symbol == "" {
		return nil, ErrSymbolRequired
	}
	live := p.AsOf.IsZero()
	asOf := p.AsOf
	if live {
		asOf = uc.now()
	}
	asOf = asOf.UTC()

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()

	start := time.Now()
	s, err := uc.loadSeries(ctx, symbol, asOf, live)
	uc.stage("candles", start)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("analysis:%s:%d:%d:%d", symbol, xutil.AlignToBar(asOf, time.Minute).Unix(),
		s.lastBucket(models.HorizonScalp), s.lastBucket(models.HorizonSwing))
	if e, ok := uc.cached(ctx, key); ok {
		if p.Emit && !e.Emitted && e.Analysis.HasSignal() {
			uc.emit(ctx, e.Analysis)
			uc.store(ctx, key, e.Analysis, true)
		}
		return e.Analysis, nil
	}

	a := &models.Analysis{
		ID:        uc.newID(),
		Symbol:    symbol,
		AsOf:      asOf,
		Producers: map[string]string{},
		Errors:    map[string]string{},
	}

	type item struct {
		h        models.Horizon
		res      *fusion.HorizonResult
		failures map[string]string
		err      error
	}
	ch := make(chan item, len(models.Horizons))
	for _, h := range models.Horizons {
		go func(h models.Horizon) {
			if err := s.errs[h]; err != nil {
				ch <- item{h: h, err: err}
				return
			}
			res, failures, err := uc.runHorizon(ctx, symbol, asOf, uc.cfg.setup(h), s.candles[h])
			ch <- item{h: h, res: res, failures: failures, err: err}
		}(h)
	}

	results := map[models.Horizon]*fusion.HorizonResult{}
	for range models.Horizons {
		it := <-ch
		for src, msg := range it.failures {
			a.Producers[string(it.h)+"."+src] = msg
		}
		if it.err != nil {
			uc.horizonFailed(a, symbol, it.h, it.err)
			continue
		}
		results[it.h] = it.res
	}

	scalp, swing := results[models.HorizonScalp], results[models.HorizonSwing]
	if err := uc.Engine.Differentiate(scalp, swing); err != nil {
		uc.horizonFailed(a, symbol, models.HorizonSwing, err)
		swing = nil
	}
	if scalp != nil {
		sig := scalp.Signal
		a.Scalp = &sig
	}
	if swing != nil {
		sig := swing.Signal
		a.Swing = &sig
	}

	start = time.Now()
	a.Price, a.Levels = levelsFor(s)
	uc.stage("levels", start)

	for _, h := range models.Horizons {
		if sig := a.Signal(h); sig != nil && uc.Metrics != nil {
			uc.Metrics.RecordAnalysis(string(h), string(sig.Direction), sig.Confidence)
		}
	}
	if len(a.Producers) == 0 {
		a.Producers = nil
	}
	if len(a.Errors) == 0 {
		a.Errors = nil
	}

	emitted := p.Emit && a.HasSignal()
	if emitted {
		uc.emit(ctx, a)
	}
	uc.store(ctx, key, a, emitted)
	uc.Logger.Info("analysis complete",
		applogger.String("symbol", symbol),
		applogger.String("id", a.ID),
		applogger.Bool("scalp", a.Scalp != nil),
		applogger.Bool("swing", a.Swing != nil),
		applogger.Int("producer_errors", len(a.Producers)))
	return a, nil
}

func (uc *AnalyzeUseCase) loadSeries(ctx context.Context, symbol string, asOf time.Time, live bool) (series, error) {
	s := series{
		candles: make(map[models.Horizon][]models.Candle, len(models.Horizons)),
		errs:    make(map[models.Horizon]error, len(models.Horizons)),
	}
	type item struct {
		h       models.Horizon
		candles []models.Candle
		err     error
	}
	ch := make(chan item, len(models.Horizons))
	for _, h := range models.Horizons {
		go func(setup HorizonSetup) {
			var (
				c   []models.Candle
				err error
			)
			if live {
				c, err = uc.Store.GetLatestNCandles(ctx, symbol, setup.Candles, setup.Timeframe)
			} else {
				c, err = uc.Store.GetCandlesBefore(ctx, symbol, asOf, setup.Candles, setup.Timeframe)
			}
			ch <- item{h: setup.Horizon, candles: c, err: err}
		}(uc.cfg.setup(h))
	}

	var storeErr error
	for range models.Horizons {
		it := <-ch
		if it.err != nil {
			storeErr = it.err
			s.errs[it.h] = fmt.Errorf("load %s candles: %w", it.h, it.err)
			continue
		}
		s.candles[it.h] = it.candles
	}

	if len(s.candles[models.HorizonScalp]) == 0 && len(s.candles[models.HorizonSwing]) == 0 {
		if storeErr != nil {
			return s, fmt.Errorf("load candles for %s: %w", symbol, storeErr)
		}
		return s, fmt.Errorf("candles for %s: %w", symbol, models.ErrNotFound)
	}
	return s, nil
}

func (uc *AnalyzeUseCase) runHorizon(ctx context.Context, symbol string, asOf time.Time, setup HorizonSetup, candles []models.Candle) (*fusion.HorizonResult, map[string]string, error) {
	h := setup.Horizon
	if len(candles) == 0 {
		return nil, nil, &models.MissingDataError{Component: "candles." + string(h), Need: setup.Candles}
	}
	price := candles[len(candles)-1].Close

	start := time.Now()
	snap, err := features.Snapshot(candles)
	uc.stage("snapshot", start)
	if err != nil {
		return nil, nil, err
	}

	start = time.Now()
	col := uc.Collector.Collect(ctx, setup.Producers, service.ProducerInput{
		Symbol:   symbol,
		Horizon:  h,
		Price:    price,
		Candles:  candles,
		Snapshot: snap,
	})
	uc.stage("collect", start)

	start = time.Now()
	ws, err := uc.weightsFor(ctx, symbol, h, features.Vector(candles, snap, setup.Timeframe))
	uc.stage("weights", start)
	if err != nil {
		return nil, col.Failures, err
	}

	start = time.Now()
	res, err := uc.Engine.AnalyzeHorizon(fusion.HorizonInput{
		Horizon:  h,
		AsOf:     asOf,
		Price:    price,
		Signals:  col.Signals,
		Weights:  ws,
		Snapshot: snap,
	})
	uc.stage("fuse", start)
	return res, col.Failures, err
}

// weightsFor prefers the ML provider and falls back to static weights.
func (uc *AnalyzeUseCase) weightsFor(ctx context.Context, symbol string, h models.Horizon, vec map[string]float64) (models.WeightSet, error) {
	if uc.Weights != nil {
		ws, err := uc.Weights.Weights(ctx, symbol, h, vec)
		if err == nil {
			return ws, nil
		}
		uc.Logger.Warn("ml weights unavailable, using static weights",
			applogger.String("symbol", symbol),
			applogger.String("horizon", string(h)),
			applogger.Error(err))
	}
	ws, err := uc.Fallback.Weights(ctx, symbol, h, vec)
	if err != nil {
		return ws, &models.ComputationError{Horizon: h, Stage: "weights", Err: err}
	}
	return ws, nil
}

func (uc *AnalyzeUseCase) horizonFailed(a *models.Analysis, symbol string, h models.Horizon, err error) {
	a.Errors[string(h)] = err.Error()
	kind := models.ErrorKind(err)
	if uc.Metrics != nil {
		uc.Metrics.RecordError(string(h), kind)
	}
	uc.Logger.Warn("horizon failed",
		applogger.String("symbol", symbol),
		applogger.String("horizon", string(h)),
		applogger.String("kind", kind),
		applogger.Error(err))
}

// levelsFor reads levels off the swing series when present, else scalp.
// Price always comes from the freshest (scalp) close available.
func levelsFor(s series) (float64, models.SupportResistanceLevels) {
	src := s.candles[models.HorizonSwing]
	if len(src) == 0 {
		src = s.candles[models.HorizonScalp]
	}
	priceSrc := s.candles[models.HorizonScalp]
	if len(priceSrc) == 0 {
		priceSrc = src
	}
	price := priceSrc[len(priceSrc)-1].Close
	snap, _ := features.Snapshot(src)
	return price, levels.Aggregate(src, price, snap)
}

// Levels returns support and resistance for the latest swing candles.
func (uc *AnalyzeUseCase) Levels(ctx context.Context, symbol string) (models.SupportResistanceLevels, error) {
	symbol = xutil.NormalizeSymbol(symbol)
	if symbol == "" {
		return models.SupportResistanceLevels{}, ErrSymbolRequired
	}
	setup := uc.cfg.Swing
	candles, err := uc.Store.GetLatestNCandles(ctx, symbol, setup.Candles, setup.Timeframe)
	if err != nil {
		return models.SupportResistanceLevels{}, fmt.Errorf("load swing candles: %w", err)
	}
	if len(candles) == 0 {
		return models.SupportResistanceLevels{}, fmt.Errorf("candles for %s: %w", symbol, models.ErrNotFound)
	}
	_, lv := levelsFor(series{candles: map[models.Horizon][]models.Candle{models.HorizonSwing: candles}})
	return lv, nil
}

// History lists journaled signals for a symbol, newest first.
func (uc *AnalyzeUseCase) History(ctx context.Context, symbol string, limit int) ([]models.SignalRecord, error) {
	if uc.Journal == nil {
		return nil, ErrJournalDisabled
	}
	symbol = xutil.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrSymbolRequired
	}
	return uc.Journal.History(ctx, symbol, limit)
}

// cacheEntry remembers whether the analysis was already emitted, so a
// replay cached first does not swallow a later emitting call.
type cacheEntry struct {
	Analysis *models.Analysis `json:"analysis"`
	Emitted  bool             `json:"emitted"`
}

func (uc *AnalyzeUseCase) cached(ctx context.Context, key string) (cacheEntry, bool) {
	if uc.Cache == nil || uc.cfg.CacheTTL <= 0 {
		return cacheEntry{}, false
	}
	b, ok, err := uc.Cache.GetBytes(ctx, key)
	if err != nil || !ok {
		return cacheEntry{}, false
	}
	var e cacheEntry
	if err := json.Unmarshal(b, &e); err != nil || e.Analysis == nil {
		return cacheEntry{}, false
	}
	return e, true
}

func (uc *AnalyzeUseCase) store(ctx context.Context, key string, a *models.Analysis, emitted bool) {
	if uc.Cache == nil || uc.cfg.CacheTTL <= 0 {
		return
	}
	b, err := json.Marshal(cacheEntry{Analysis: a, Emitted: emitted})
	if err != nil {
		uc.Logger.Warn("analysis not cacheable", applogger.String("id", a.ID), applogger.Error(err))
		return
	}
	if err := uc.Cache.SetBytes(ctx, key, b, uc.cfg.CacheTTL); err != nil {
		uc.Logger.Warn("analysis cache write failed", applogger.Error(err))
	}
}

// emit fans a finished analysis out to the journal, the topic and live
// subscribers. Failures are logged; the analysis itself already succeeded.
func (uc *AnalyzeUseCase) emit(ctx context.Context, a *models.Analysis) {
	if uc.Journal != nil {
		if err := uc.Journal.Save(ctx, a); err != nil {
			uc.Logger.Error("journal save failed", applogger.String("id", a.ID), applogger.Error(err))
		}
	}
	if uc.Publisher != nil {
		if err := uc.Publisher.Publish(ctx, a); err != nil {
			uc.Logger.Error("signal publish failed", applogger.String("id", a.ID), applogger.Error(err))
		}
	}
	if uc.Broadcaster != nil {
		uc.Broadcaster.Broadcast(a)
	}
}

func (uc *AnalyzeUseCase) stage(name string, start time.Time) {
	if uc.Metrics != nil {
		uc.Metrics.RecordStageLatency(name, time.Since(start).Seconds())
	}
}
