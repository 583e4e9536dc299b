package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// HorizonConfig selects candles, producers and static weights for one horizon.
type HorizonConfig struct {
	Timeframe string             `yaml:"timeframe" validate:"required,oneof=1m 5m 15m 1h 4h 1d"`
	Candles   int                `yaml:"candles" validate:"gte=15,lte=5000"`
	Weights   map[string]float64 `yaml:"weights" validate:"required,min=1,dive,gte=0,lte=1"`
}

// RemoteProducerConfig registers an external signal engine reached over HTTP.
type RemoteProducerConfig struct {
	ID       string        `yaml:"id" validate:"required"`
	URL      string        `yaml:"url" validate:"required,url"`
	Path     string        `yaml:"path" default:"/signal"`
	Timeout  time.Duration `yaml:"timeout" default:"2s"`
	Horizons []string      `yaml:"horizons" validate:"dive,oneof=scalp swing"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps" default:"10"`
			Burst int     `yaml:"burst" default:"20"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic" default:"signalfuse.logs"`
			FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalsTopic string   `yaml:"signals_topic" default:"signals.final"`
		BarsTopic    string   `yaml:"bars_topic" default:"bars.closed"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"20ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"signalfuse"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"market"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		CandlesTable     string        `yaml:"candles_table" default:"candles"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Postgres struct {
		Enabled         bool          `yaml:"enabled"`
		URL             string        `yaml:"url"`
		MaxConns        int32         `yaml:"max_conns" default:"10"`
		MinConns        int32         `yaml:"min_conns" default:"1"`
		MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" default:"1h"`
		MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" default:"30m"`
		ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"5s"`
	} `yaml:"postgres"`
	Analytics struct {
		MLServiceURL string        `yaml:"ml_service_url"`
		Timeout      time.Duration `yaml:"timeout" default:"3s"`
		Retries      int           `yaml:"retries" default:"2"`
		CacheTTL     time.Duration `yaml:"cache_ttl" default:"30s"`
		Redis        struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"signalfuse:"`
			PoolSize int    `yaml:"pool_size" default:"10" validate:"gte=1"`
		} `yaml:"redis"`
	} `yaml:"analytics"`
	Fusion struct {
		StrictValidation *bool                  `yaml:"strict_validation" default:"true"`
		PricePrecision   *int32                 `yaml:"price_precision" default:"2"`
		Scalp            HorizonConfig          `yaml:"scalp"`
		Swing            HorizonConfig          `yaml:"swing"`
		Remote           []RemoteProducerConfig `yaml:"remote_producers" validate:"dive"`
		Differentiation  struct {
			MinStopRatio      float64 `yaml:"min_stop_ratio" default:"1.5" validate:"gt=0"`
			FallbackStopPct   float64 `yaml:"fallback_stop_pct" default:"2.5" validate:"gt=0,lt=100"`
			FallbackTargetPct float64 `yaml:"fallback_target_pct" default:"10" validate:"gt=0,lt=100"`
		} `yaml:"differentiation"`
	} `yaml:"fusion"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, fills defaults and
// validates the result.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (when present) and the YAML file, then overrides
// with environment variables before validating.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_SIGNALS_TOPIC"); v != "" {
		c.Kafka.SignalsTopic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.Postgres.URL = v
		c.Postgres.Enabled = true
	}
	if v := os.Getenv("ML_SERVICE_URL"); v != "" {
		c.Analytics.MLServiceURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Analytics.Redis.Addr = v
		c.Analytics.Redis.Enabled = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	c.applyHorizonDefaults()
	return &c, nil
}

func (c *Config) applyHorizonDefaults() {
	if c.Fusion.Scalp.Timeframe == "" {
		c.Fusion.Scalp.Timeframe = "5m"
	}
	if c.Fusion.Scalp.Candles == 0 {
		c.Fusion.Scalp.Candles = 300
	}
	if len(c.Fusion.Scalp.Weights) == 0 {
		c.Fusion.Scalp.Weights = map[string]float64{"momentum": 0.40, "structure": 0.35, "quantum": 0.25}
	}
	if c.Fusion.Swing.Timeframe == "" {
		c.Fusion.Swing.Timeframe = "1h"
	}
	if c.Fusion.Swing.Candles == 0 {
		c.Fusion.Swing.Candles = 300
	}
	if len(c.Fusion.Swing.Weights) == 0 {
		c.Fusion.Swing.Weights = map[string]float64{"trend": 0.35, "structure": 0.35, "quantum": 0.30}
	}
}

// Validate checks struct tags plus the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for name, h := range map[string]HorizonConfig{"scalp": c.Fusion.Scalp, "swing": c.Fusion.Swing} {
		sum := 0.0
		for _, w := range h.Weights {
			sum += w
		}
		if sum > 1+1e-9 {
			return fmt.Errorf("fusion.%s.weights sum to %.4f, must be <= 1", name, sum)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Postgres.Enabled && c.Postgres.URL == "" {
		return fmt.Errorf("postgres.url is required when postgres is enabled")
	}
	seen := map[string]bool{}
	for _, r := range c.Fusion.Remote {
		if seen[r.ID] {
			return fmt.Errorf("fusion.remote_producers: duplicated id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// Strict reports whether inconsistent producer signals fail the horizon.
func (c *Config) Strict() bool {
	return c.Fusion.StrictValidation == nil || *c.Fusion.StrictValidation
}

// Precision returns the price rounding precision.
func (c *Config) Precision() int32 {
	if c.Fusion.PricePrecision == nil {
		return 2
	}
	return *c.Fusion.PricePrecision
}

// Horizon returns the horizon section by name.
func (c *Config) Horizon(name string) (HorizonConfig, bool) {
	switch name {
	case "scalp":
		return c.Fusion.Scalp, true
	case "swing":
		return c.Fusion.Swing, true
	default:
		return HorizonConfig{}, false
	}
}
