package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// KillSwitchRule maps a breached risk condition onto a kill-switch level.
// Condition names match RiskMetrics fields: drawdown, daily_loss, exposure,
// utilization.
type KillSwitchRule struct {
	Condition string  `yaml:"condition"`
	Threshold float64 `yaml:"threshold"`
	Level     int     `yaml:"level"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Logging     struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Market struct {
		Feed             string        `yaml:"feed" default:"kafka"` // kafka or sim
		WebSocketURL     string        `yaml:"websocket_url"`
		APIKey           string        `yaml:"api_key"`
		Symbols          []string      `yaml:"symbols"`
		ReferenceSymbols []string      `yaml:"reference_symbols"`
		HistorySize      int           `yaml:"history_size" default:"200"`
		MinSamples       int           `yaml:"min_samples" default:"20"`
		ReconnectDelay   time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval     time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"market"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		SampleTopic  string   `yaml:"sample_topic" default:"market.samples"`
		LogTopic     string   `yaml:"log_topic" default:"engine.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"tradepilot-engine"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"250ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"tradepilot"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"tradepilot"`
	} `yaml:"redis"`
	Queue struct {
		Mode       string        `yaml:"mode" default:"both"` // produceronly, consumeronly, both
		Name       string        `yaml:"name" default:"training"`
		Workers    int           `yaml:"workers" default:"2"`
		MaxRetries int           `yaml:"max_retries"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
	} `yaml:"queue"`
	Engine struct {
		TradingInterval    time.Duration `yaml:"trading_interval" default:"30s"`
		PositionInterval   time.Duration `yaml:"position_interval" default:"60s"`
		RiskInterval       time.Duration `yaml:"risk_interval" default:"120s"`
		KillSwitchInterval time.Duration `yaml:"kill_switch_interval" default:"30s"`
		SnapshotInterval   time.Duration `yaml:"snapshot_interval" default:"5m"`
	} `yaml:"engine"`
	Risk struct {
		BasePositionSize float64          `yaml:"base_position_size" default:"1000"`
		PortfolioValue   float64          `yaml:"portfolio_value" default:"100000"`
		RiskTolerance    float64          `yaml:"risk_tolerance" default:"1.0"`
		MaxExposure      float64          `yaml:"max_exposure" default:"50000"`
		MaxOpenPositions int              `yaml:"max_open_positions" default:"10"`
		MaxDrawdown      float64          `yaml:"max_drawdown" default:"0.25"`
		KillSwitchRules  []KillSwitchRule `yaml:"kill_switch_rules"`
	} `yaml:"risk"`
	Ensemble struct {
		ActionThreshold   float64       `yaml:"action_threshold" default:"0.6"`
		SentimentWeight   float64       `yaml:"sentiment_weight" default:"0.2"`
		PerformanceWindow time.Duration `yaml:"performance_window" default:"168h"`
	} `yaml:"ensemble"`
	Inference struct {
		Mode              string        `yaml:"mode" default:"local"` // local or remote
		ServiceURL        string        `yaml:"service_url"`
		Timeout           time.Duration `yaml:"timeout" default:"10s"`
		SequenceLength    int           `yaml:"sequence_length" default:"60"`
		CacheTTL          time.Duration `yaml:"cache_ttl" default:"1m"`
		RetryAttempts     int           `yaml:"retry_attempts" default:"3"`
		RetryBackoff      time.Duration `yaml:"retry_backoff" default:"1s"`
		AgreeBoost        float64       `yaml:"agree_boost" default:"1.15"`
		MaxConfidence     float64       `yaml:"max_confidence" default:"0.95"`
		DisagreeDiscount  float64       `yaml:"disagree_discount" default:"0.65"`
		HoldBelow         float64       `yaml:"hold_below" default:"0.6"`
	} `yaml:"inference"`
	Training struct {
		Mode                 string        `yaml:"mode" default:"local"` // local or remote
		ServiceURL           string        `yaml:"service_url"`
		Timeout              time.Duration `yaml:"timeout" default:"120s"`
		Epochs               int           `yaml:"epochs" default:"100"`
		LearningRate         float64       `yaml:"learning_rate" default:"0.001"`
		FineTuneEpochs       int           `yaml:"fine_tune_epochs" default:"30"`
		FineTuneLearningRate float64       `yaml:"fine_tune_learning_rate" default:"0.0001"`
		IncrementalEpochs    int           `yaml:"incremental_epochs" default:"20"`
		Patience             int           `yaml:"patience" default:"10"`
		BatchSize            int           `yaml:"batch_size" default:"32"`
		HistorySamples       int           `yaml:"history_samples" default:"500"`
		KeepVersions         int           `yaml:"keep_versions" default:"5"`
		PromotionMargin      float64       `yaml:"promotion_margin" default:"0.05"`
	} `yaml:"training"`
	Execution struct {
		Mode       string        `yaml:"mode" default:"paper"` // paper or rest
		BaseURL    string        `yaml:"base_url"`
		APIKey     string        `yaml:"api_key"`
		Timeout    time.Duration `yaml:"timeout" default:"10s"`
		RatePerSec float64       `yaml:"rate_per_sec" default:"5"`
		RateBurst  int           `yaml:"rate_burst" default:"10"`
	} `yaml:"execution"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Fill unset scalars from struct tags before validating.
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.applyRuleDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Market.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("MARKET_API_KEY"); v != "" {
		c.Market.APIKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("INFERENCE_SERVICE_URL"); v != "" {
		c.Inference.ServiceURL = v
		c.Inference.Mode = "remote"
	}
	if v := os.Getenv("TRAINING_SERVICE_URL"); v != "" {
		c.Training.ServiceURL = v
		c.Training.Mode = "remote"
	}
	if v := os.Getenv("EXECUTION_API_KEY"); v != "" {
		c.Execution.APIKey = v
	}

	return c, nil
}

// applyRuleDefaults installs the stock kill-switch rule table when the file
// does not define one.
func (c *Config) applyRuleDefaults() {
	if len(c.Risk.KillSwitchRules) > 0 {
		return
	}
	c.Risk.KillSwitchRules = []KillSwitchRule{
		{Condition: "drawdown", Threshold: 0.10, Level: 1},
		{Condition: "drawdown", Threshold: 0.15, Level: 2},
		{Condition: "drawdown", Threshold: 0.20, Level: 3},
		{Condition: "daily_loss", Threshold: 0.05, Level: 2},
		{Condition: "utilization", Threshold: 0.90, Level: 1},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Market.Symbols) == 0 {
		return fmt.Errorf("market.symbols cannot be empty")
	}
	if c.Market.Feed != "kafka" && c.Market.Feed != "sim" {
		return fmt.Errorf("market.feed must be 'kafka' or 'sim', got '%s'", c.Market.Feed)
	}
	if c.Inference.Mode != "local" && c.Inference.Mode != "remote" {
		return fmt.Errorf("inference.mode must be 'local' or 'remote', got '%s'", c.Inference.Mode)
	}
	if c.Inference.Mode == "remote" && c.Inference.ServiceURL == "" {
		return fmt.Errorf("inference.service_url is required in remote mode")
	}
	if c.Training.Mode != "local" && c.Training.Mode != "remote" {
		return fmt.Errorf("training.mode must be 'local' or 'remote', got '%s'", c.Training.Mode)
	}
	if c.Training.Mode == "remote" && c.Training.ServiceURL == "" {
		return fmt.Errorf("training.service_url is required in remote mode")
	}
	if c.Execution.Mode != "paper" && c.Execution.Mode != "rest" {
		return fmt.Errorf("execution.mode must be 'paper' or 'rest', got '%s'", c.Execution.Mode)
	}
	if c.Execution.Mode == "rest" && c.Execution.BaseURL == "" {
		return fmt.Errorf("execution.base_url is required in rest mode")
	}
	for _, r := range c.Risk.KillSwitchRules {
		if r.Level < 1 || r.Level > 3 {
			return fmt.Errorf("kill switch rule level must be 1..3, got %d", r.Level)
		}
		switch r.Condition {
		case "drawdown", "daily_loss", "exposure", "utilization":
		default:
			return fmt.Errorf("unknown kill switch condition '%s'", r.Condition)
		}
	}
	return nil
}
