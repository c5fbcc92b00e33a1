package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/services/lstm"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	} `yaml:"log"`
	Pipeline Pipeline `yaml:"pipeline"`
	Source   struct {
		Type  string `yaml:"type" default:"csv" validate:"oneof=csv clickhouse"`
		Table string `yaml:"table" default:"indicators" validate:"required"`
	} `yaml:"source"`
	Artifacts struct {
		Backend    string `yaml:"backend" default:"file" validate:"oneof=file badger"`
		BadgerPath string `yaml:"badger_path" default:"./data/artifacts"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"artifacts"`
	Predictions struct {
		Sink     string        `yaml:"sink" default:"none" validate:"oneof=none clickhouse kafka"`
		Table    string        `yaml:"table" default:"predictions"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"10m"`
	} `yaml:"predictions"`
	Export struct {
		Dir string `yaml:"dir" default:"./export"`
	} `yaml:"export"`
	Retrain struct {
		Schedule string `yaml:"schedule"` // cron spec or descriptor like "@monthly"; empty disables
	} `yaml:"retrain"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps" default:"5" validate:"gt=0"`
			Burst int     `yaml:"burst" default:"10" validate:"gte=1"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Kafka struct {
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		Topic        string   `yaml:"topic" default:"recession.predictions"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"recession-predictions"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"recession.predictions.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"recession"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Queue    string `yaml:"queue" default:"recession:train"`
		Workers  int    `yaml:"workers" default:"1" validate:"gte=1"`
	} `yaml:"redis"`
}

// Pipeline is the configuration of the training and inference core.
type Pipeline struct {
	InputPath      string  `yaml:"input_path"`
	ScalerPath     string  `yaml:"scaler_path" default:"./artifacts/scaler.json" validate:"required"`
	ModelPath      string  `yaml:"model_path" default:"./artifacts/model.bundle" validate:"required"`
	WindowLength   int     `yaml:"window_length" default:"12" validate:"gte=1"`
	SplitRatio     float64 `yaml:"split_ratio" default:"0.8" validate:"gt=0,lt=1"`
	Epochs         int     `yaml:"epochs" default:"100" validate:"gte=1"`
	BatchSize      int     `yaml:"batch_size" default:"32" validate:"gte=1"`
	ScalerFitScope string  `yaml:"scaler_fit_scope" default:"train" validate:"oneof=train full"`
	HiddenSize     int     `yaml:"hidden_size" default:"100" validate:"gte=1"`
	Layers         int     `yaml:"layers" default:"2" validate:"gte=1"`
	Dropout        float64 `yaml:"dropout" default:"0.2" validate:"gte=0,lt=1"`
	LearningRate   float64 `yaml:"learning_rate" default:"0.001" validate:"gt=0"`
	Seed           int64   `yaml:"seed" default:"42"`
}

var validate = validator.New()

// Default returns a configuration with every default applied. It panics if
// the default tags are malformed.
func Default() *Config {
	c, err := newDefault()
	if err != nil {
		panic(err)
	}
	return c
}

func newDefault() (*Config, error) {
	var c Config
	if err := applyDefaults(&c); err != nil {
		return nil, err
	}
	c.Metrics.Enabled = true
	c.Artifacts.Compress = true
	return &c, nil
}

// applyDefaults fills the default tags of the struct v points to.
func applyDefaults(v interface{}) error {
	if err := defaults.Set(v); err != nil {
		return errs.Config("config", "apply defaults").Wrap(err)
	}
	return nil
}

// Load reads and parses a YAML configuration file over the defaults. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	c, err := newDefault()
	if err != nil {
		return nil, err
	}
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, errs.Config("config", "read %s", path).Wrap(err)
		default:
			if err := yaml.Unmarshal(b, c); err != nil {
				return nil, errs.Config("config", "parse %s", path).Wrap(err)
			}
		}
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory is read first when present.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errs.Config("config", "load .env").Wrap(err)
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	// Override with environment variables
	if v := os.Getenv("INPUT_PATH"); v != "" {
		c.Pipeline.InputPath = v
	}
	if v := os.Getenv("SCALER_PATH"); v != "" {
		c.Pipeline.ScalerPath = v
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Pipeline.ModelPath = v
	}
	if err := envInt("WINDOW_LENGTH", &c.Pipeline.WindowLength); err != nil {
		return err
	}
	if err := envInt("EPOCHS", &c.Pipeline.Epochs); err != nil {
		return err
	}
	if err := envInt("BATCH_SIZE", &c.Pipeline.BatchSize); err != nil {
		return err
	}
	if v := os.Getenv("SPLIT_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.Config("config", "SPLIT_RATIO=%q is not a number", v)
		}
		c.Pipeline.SplitRatio = f
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("RETRAIN_SCHEDULE"); v != "" {
		c.Retrain.Schedule = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errs.Config("config", "%s=%q is not an integer", key, v)
	}
	*dst = n
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return errs.Config("config", "%s failed %q validation (value %v)", ve[0].Namespace(), ve[0].Tag(), ve[0].Value())
		}
		return errs.Config("config", "invalid configuration").Wrap(err)
	}
	if c.Predictions.Sink == "kafka" && len(c.Kafka.Brokers) == 0 {
		return errs.Config("config", "predictions.sink=kafka requires kafka.brokers")
	}
	if c.Artifacts.Backend == "badger" && c.Artifacts.BadgerPath == "" {
		return errs.Config("config", "artifacts.backend=badger requires artifacts.badger_path")
	}
	return nil
}

// RequireInput fails when the selected indicator source cannot be located.
func (c *Config) RequireInput() error {
	if c.Source.Type == "csv" && c.Pipeline.InputPath == "" {
		return errs.Config("config", "pipeline.input_path (INPUT_PATH) is required")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// ModelConfig derives the network configuration for inputSize features.
func (p Pipeline) ModelConfig(inputSize int) lstm.Config {
	mc := lstm.DefaultConfig(inputSize)
	mc.HiddenSize = p.HiddenSize
	mc.Layers = p.Layers
	mc.Dropout = p.Dropout
	mc.LearningRate = p.LearningRate
	mc.Seed = p.Seed
	return mc
}
