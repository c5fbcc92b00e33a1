package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"RecessionLens/internal/domain/errs"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := c.Pipeline
	if p.WindowLength != 12 || p.SplitRatio != 0.8 || p.Epochs != 100 || p.BatchSize != 32 {
		t.Fatalf("unexpected pipeline defaults %+v", p)
	}
	if p.ScalerFitScope != "train" || c.Predictions.Sink != "none" || c.Artifacts.Backend != "file" {
		t.Fatalf("unexpected selectors %+v", c)
	}
	if !c.Metrics.Enabled || !c.Artifacts.Compress {
		t.Fatalf("metrics and compression should default on")
	}
	if c.Predictions.CacheTTL != 10*time.Minute {
		t.Fatalf("cache ttl %v", c.Predictions.CacheTTL)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := writeFile(t, `
environment: test
pipeline:
  input_path: data.csv
  window_length: 6
  epochs: 3
artifacts:
  compress: false
metrics:
  enabled: false
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Pipeline.WindowLength != 6 || c.Pipeline.Epochs != 3 || c.Pipeline.BatchSize != 32 {
		t.Fatalf("overlay failed %+v", c.Pipeline)
	}
	if c.Artifacts.Compress || c.Metrics.Enabled {
		t.Fatalf("explicit false must survive defaults")
	}
	if err := c.RequireInput(); err != nil {
		t.Fatalf("require input: %v", err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []string{
		"pipeline:\n  split_ratio: 1.5\n",
		"pipeline:\n  scaler_fit_scope: test\n",
		"predictions:\n  sink: s3\n",
		"pipeline: [unclosed",
	}
	for _, body := range cases {
		if _, err := Load(writeFile(t, body)); !errors.Is(err, errs.ErrConfig) {
			t.Fatalf("%q: expected ConfigError, got %v", body, err)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("INPUT_PATH", "/data/indicators.csv")
	t.Setenv("WINDOW_LENGTH", "9")
	t.Setenv("SPLIT_RATIO", "0.75")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("LOG_LEVEL", "DEBUG")

	c, err := LoadWithEnv("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Pipeline.InputPath != "/data/indicators.csv" || c.Pipeline.WindowLength != 9 || c.Pipeline.SplitRatio != 0.75 {
		t.Fatalf("env not applied %+v", c.Pipeline)
	}
	if len(c.Kafka.Brokers) != 2 || c.Log.Level != "debug" {
		t.Fatalf("env not applied %+v %v", c.Kafka.Brokers, c.Log.Level)
	}
}

func TestLoadWithEnvBadNumber(t *testing.T) {
	t.Setenv("EPOCHS", "many")
	if _, err := LoadWithEnv(""); !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestRequireInput(t *testing.T) {
	c := Default()
	if err := c.RequireInput(); !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("expected ConfigError without input path, got %v", err)
	}
	c.Source.Type = "clickhouse"
	if err := c.RequireInput(); err != nil {
		t.Fatalf("clickhouse source needs no input path: %v", err)
	}
}

func TestModelConfig(t *testing.T) {
	mc := Default().Pipeline.ModelConfig(5)
	if mc.InputSize != 5 || mc.HiddenSize != 100 || mc.Layers != 2 || mc.Dropout != 0.2 || mc.LearningRate != 0.001 {
		t.Fatalf("unexpected model config %+v", mc)
	}
}

func TestApplyDefaultsReportsConfigError(t *testing.T) {
	if err := applyDefaults(Config{}); !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("expected ConfigError for a non-pointer, got %v", err)
	}
	var c Config
	if err := applyDefaults(&c); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	if c.Pipeline.WindowLength != 12 || c.Server.Port != 8080 || len(c.Server.CORSOrigins) != 1 {
		t.Fatalf("defaults not applied: %+v", c.Pipeline)
	}
}
