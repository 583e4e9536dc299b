package di

import (
	"context"
	"fmt"
	"sort"
	"time"

	"SignalFuse/internal/domain/models"
	"SignalFuse/internal/domain/repository"
	"SignalFuse/internal/domain/service"
	"SignalFuse/internal/handler/api"
	"SignalFuse/internal/handler/ws"
	internalrepo "SignalFuse/internal/repository"
	"SignalFuse/internal/service/cache"
	imetrics "SignalFuse/internal/service/metrics"
	"SignalFuse/internal/service/ratelimit"
	"SignalFuse/internal/services/analytics"
	"SignalFuse/internal/services/fusion"
	"SignalFuse/internal/services/producers"
	"SignalFuse/internal/usecase"
	pkgch "SignalFuse/pkg/clickhouse"
	"SignalFuse/pkg/config"
	xhttp "SignalFuse/pkg/http"
	pkgkafka "SignalFuse/pkg/kafka"
	applogger "SignalFuse/pkg/logger"
	"SignalFuse/pkg/metrics"
	"SignalFuse/pkg/postgres"
	"SignalFuse/pkg/server"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	imetrics.Register()
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the
// candles table exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.CandlesSchema(ch.Database, ch.CandlesTable)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideFeatureStore creates the ClickHouse candle store.
func ProvideFeatureStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.FeatureStore {
	return internalrepo.NewCHFeatureStore(ch, cfg.ClickHouse.Database, cfg.ClickHouse.CandlesTable, l)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithBatchSize(k.Producer.BatchSize),
		pkgkafka.WithBatchBytes(k.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(k.Producer.Linger),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithAsync(k.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher publishes final signals to kafka when enabled.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.SignalPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalsTopic)
}

// ProvidePostgresPool opens the journal pool, or returns nil when disabled.
func ProvidePostgresPool(cfg *config.Config) (*pgxpool.Pool, error) {
	if !cfg.Postgres.Enabled {
		return nil, nil
	}
	pc := postgres.DefaultPoolConfig()
	pc.URL = cfg.Postgres.URL
	pc.MaxConns = cfg.Postgres.MaxConns
	pc.MinConns = cfg.Postgres.MinConns
	pc.MaxConnLifetime = cfg.Postgres.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.Postgres.MaxConnIdleTime
	pc.ConnectTimeout = cfg.Postgres.ConnectTimeout

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := postgres.NewPool(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	return pool, nil
}

// ProvideSignalJournal creates the final_signals journal and its schema.
func ProvideSignalJournal(pool *pgxpool.Pool) (repository.SignalJournal, error) {
	if pool == nil {
		return nil, nil
	}
	j := internalrepo.NewPostgresSignalJournal(pool)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := j.Init(ctx); err != nil {
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return j, nil
}

// ProvideCache returns redis when configured, else an in-process TTL cache.
func ProvideCache(cfg *config.Config, l *applogger.Logger) cache.BytesCache {
	r := cfg.Analytics.Redis
	if !r.Enabled {
		return cache.NewTTLCache()
	}
	rc := cache.NewRedisCache(cache.RedisConfig{
		Addr: r.Addr, Password: r.Password, DB: r.DB, Prefix: r.Prefix, PoolSize: r.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		l.Warn("redis unreachable, using in-process cache", applogger.String("addr", r.Addr), applogger.Error(err))
		_ = rc.Close()
		return cache.NewTTLCache()
	}
	return rc
}

// ProvideHub creates the websocket broadcast hub.
func ProvideHub(l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l)
}

// ProvideEngine builds the fusion engine from config.
func ProvideEngine(cfg *config.Config) *fusion.Engine {
	fc := fusion.DefaultConfig()
	fc.StrictValidation = cfg.Strict()
	fc.PricePrecision = cfg.Precision()
	d := cfg.Fusion.Differentiation
	fc.Differentiation = fusion.DifferentiationPolicy{
		MinStopRatio:      d.MinStopRatio,
		FallbackStopPct:   d.FallbackStopPct,
		FallbackTargetPct: d.FallbackTargetPct,
	}
	return fusion.NewEngine(fc)
}

// HorizonProducers resolves the producers voting on each horizon: the
// built-ins and remote engines that carry a configured weight there.
func HorizonProducers(cfg *config.Config) (map[models.Horizon][]service.SignalProducer, error) {
	remote := make([]*analytics.HTTPProducer, 0, len(cfg.Fusion.Remote))
	for _, r := range cfg.Fusion.Remote {
		remote = append(remote, analytics.NewHTTPProducer(r.ID, r.URL, r.Path, r.Timeout, r.Horizons))
	}
	builtin := producers.Builtin()

	out := make(map[models.Horizon][]service.SignalProducer, len(models.Horizons))
	for _, h := range models.Horizons {
		hc, _ := cfg.Horizon(string(h))
		ids := make([]string, 0, len(hc.Weights))
		for id := range hc.Weights {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			if p, ok := builtin[id]; ok {
				out[h] = append(out[h], p)
				continue
			}
			found := false
			for _, rp := range remote {
				if rp.ID() == id && rp.Serves(h) {
					out[h] = append(out[h], rp)
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("fusion.%s.weights: no producer %q serves this horizon", h, id)
			}
		}
	}
	return out, nil
}

// ProvideAnalyzeUseCase assembles the analysis pipeline.
func ProvideAnalyzeUseCase(
	cfg *config.Config,
	store repository.FeatureStore,
	engine *fusion.Engine,
	m repository.Metrics,
	c cache.BytesCache,
	journal repository.SignalJournal,
	pub repository.SignalPublisher,
	hub *ws.Hub,
	l *applogger.Logger,
) (*usecase.AnalyzeUseCase, error) {
	byHorizon, err := HorizonProducers(cfg)
	if err != nil {
		return nil, err
	}
	static := analytics.NewStaticWeightProvider(cfg.Fusion.Scalp.Weights, cfg.Fusion.Swing.Weights)

	deps := usecase.AnalyzeDeps{
		Store:       store,
		Engine:      engine,
		Collector:   usecase.NewSignalCollector(cfg.Analytics.Timeout, m),
		Fallback:    static,
		Cache:       c,
		Journal:     journal,
		Publisher:   pub,
		Broadcaster: hub,
		Metrics:     m,
		Logger:      l,
	}
	if cfg.Analytics.MLServiceURL != "" {
		ml := analytics.NewHTTPWeightProvider(cfg.Analytics.MLServiceURL, cfg.Analytics.Timeout, cfg.Analytics.Retries, static.Sources)
		deps.Weights = imetrics.NewInstrumentedWeights(
			analytics.NewCachedWeightProvider(ml, c, cfg.Analytics.CacheTTL))
	}

	return usecase.NewAnalyzeUseCase(deps, usecase.AnalyzeConfig{
		Scalp: usecase.HorizonSetup{
			Timeframe: repository.Timeframe(cfg.Fusion.Scalp.Timeframe),
			Candles:   cfg.Fusion.Scalp.Candles,
			Producers: byHorizon[models.HorizonScalp],
		},
		Swing: usecase.HorizonSetup{
			Timeframe: repository.Timeframe(cfg.Fusion.Swing.Timeframe),
			Candles:   cfg.Fusion.Swing.Candles,
			Producers: byHorizon[models.HorizonSwing],
		},
		CacheTTL: cfg.Analytics.CacheTTL,
	}), nil
}

// ProvideKafkaBarsHandler triggers analyses on bar-close events.
func ProvideKafkaBarsHandler(cfg *config.Config, uc *usecase.AnalyzeUseCase, m repository.Metrics, l *applogger.Logger) *usecase.KafkaBarsHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, uc, m, l)
}

// ProvideKafkaConsumer creates the bar-close consumer, or nil when kafka is
// off.
func ProvideKafkaConsumer(cfg *config.Config, kh *usecase.KafkaBarsHandler, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	k := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(k.GroupID),
		pkgkafka.WithConsumerWorkers(k.Workers),
		pkgkafka.WithConsumerBufferSize(k.BufferSize),
		pkgkafka.WithConsumerRetry(k.RetryMax, k.BackoffMin, k.BackoffMax),
		pkgkafka.WithConsumerDLQ(k.DLQTopic),
		pkgkafka.WithConsumerFetch(k.MinBytes, k.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(kh)
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook()))
	return consumer, nil
}

// ProvideHTTPServer builds the echo server with every route.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	uc *usecase.AnalyzeUseCase,
	hub *ws.Hub,
	health *server.HealthHandler,
) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	handlers := []xhttp.Handler{api.NewAnalysisHandler(l, uc), hub, health}
	return xhttp.NewServer(l, handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithRateLimit(ratelimit.New(ratelimit.WithIdleEviction(10*time.Minute)), cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst),
	)
}

// ProvideHealthHandler probes the stores the service depends on.
func ProvideHealthHandler(ch *pkgch.Client, journal repository.SignalJournal) *server.HealthHandler {
	checks := []server.Checker{server.CheckFunc{N: "clickhouse", F: ch.Health}}
	if journal != nil {
		checks = append(checks, server.CheckFunc{N: "postgres", F: journal.Health})
	}
	return server.NewHealthHandler(2*time.Second, checks...)
}

// ProvideApp creates the application and hands it every closable resource.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	journal repository.SignalJournal,
	c cache.BytesCache,
	chClient *pkgch.Client,
) *server.App {
	if producer != nil && cfg.Logging.Collector.Enabled {
		lc := cfg.Logging.Collector
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   lc.FlushInterval,
			CountThreshold: lc.CountThreshold,
			Topic:          lc.Topic,
			Publisher:      producer,
		})
	}

	var closers []server.Closer
	if journal != nil {
		closers = append(closers, server.Closer{Name: "postgres", Closer: journal})
	}
	if rc, ok := c.(*cache.RedisCache); ok {
		closers = append(closers, server.Closer{Name: "redis", Closer: rc})
	}
	if producer != nil {
		closers = append(closers, server.Closer{Name: "kafka producer", Closer: producer})
	}
	closers = append(closers, server.Closer{Name: "clickhouse", Closer: chClient})
	return server.New(cfg, l, httpServer, consumer, closers)
}
