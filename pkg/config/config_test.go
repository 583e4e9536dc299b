package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: test\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Server.Port != 8080 || c.Server.ShutdownTimeout != 10*time.Second {
		t.Fatalf("server defaults not applied: %+v", c.Server)
	}
	if !c.Strict() || c.Precision() != 2 {
		t.Fatalf("fusion defaults not applied")
	}
	if c.Fusion.Differentiation.MinStopRatio != 1.5 || c.Fusion.Differentiation.FallbackStopPct != 2.5 || c.Fusion.Differentiation.FallbackTargetPct != 10 {
		t.Fatalf("differentiation defaults not applied: %+v", c.Fusion.Differentiation)
	}
	if c.Fusion.Scalp.Weights["momentum"] != 0.40 || c.Fusion.Swing.Weights["trend"] != 0.35 {
		t.Fatalf("default weights not applied: %+v %+v", c.Fusion.Scalp.Weights, c.Fusion.Swing.Weights)
	}
	if c.Fusion.Scalp.Timeframe != "5m" || c.Fusion.Swing.Timeframe != "1h" {
		t.Fatalf("default timeframes not applied")
	}
}

func TestLoad_ExplicitFalseAndZeroSurvive(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: test\nfusion:\n  strict_validation: false\n  price_precision: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Strict() {
		t.Fatalf("explicit strict_validation=false was overwritten")
	}
	if c.Precision() != 0 {
		t.Fatalf("explicit price_precision=0 was overwritten, got %d", c.Precision())
	}
}

func TestLoad_RejectsOverweightHorizon(t *testing.T) {
	body := `environment: test
fusion:
  scalp:
    timeframe: 5m
    candles: 200
    weights:
      momentum: 0.6
      structure: 0.5
`
	_, err := Load(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "fusion.scalp.weights") {
		t.Fatalf("expected weight sum error, got %v", err)
	}
}

func TestLoad_RejectsBadTimeframe(t *testing.T) {
	body := `environment: test
fusion:
  swing:
    timeframe: 2h
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected validation error for timeframe 2h")
	}
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ML_SERVICE_URL", "http://ml:8000")
	t.Setenv("PORT", "9090")
	c, err := LoadWithEnv(writeConfig(t, "environment: test\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("kafka override not applied: %+v", c.Kafka.Brokers)
	}
	if c.Analytics.MLServiceURL != "http://ml:8000" || c.Server.Port != 9090 {
		t.Fatalf("env overrides not applied")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
