package config

import (
	"fmt"
	"os"
	"time"

	"SignalScan/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Log struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"14"`
		// CollectTopic publishes aggregated error logs to Kafka when the kafka sink is enabled.
		CollectTopic    string        `yaml:"collect_topic"`
		CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
	} `yaml:"log"`

	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	API APIConfig `yaml:"api"`

	Scanners struct {
		EMACross       EMACrossConfig       `yaml:"ema_cross"`
		MACDDivergence MACDDivergenceConfig `yaml:"macd_divergence"`
	} `yaml:"scanners"`

	Results struct {
		Store string        `yaml:"store" default:"memory" validate:"oneof=memory redis"`
		TTL   time.Duration `yaml:"ttl" default:"168h"`
		Redis struct {
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"signalscan"`
			PoolSize int    `yaml:"pool_size" default:"10"`
			MinIdle  int    `yaml:"min_idle" default:"2"`
		} `yaml:"redis"`
	} `yaml:"results"`

	Sink struct {
		Kafka struct {
			Enabled      bool          `yaml:"enabled"`
			Brokers      []string      `yaml:"brokers"`
			Topic        string        `yaml:"topic" default:"signalscan.results"`
			RequiredAcks int           `yaml:"required_acks" default:"-1"`
			Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=none gzip snappy lz4 zstd"`
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			AutoCreate   bool          `yaml:"auto_create_topic"`
		} `yaml:"kafka"`
		ClickHouse struct {
			Enabled          bool          `yaml:"enabled"`
			Host             string        `yaml:"host" default:"localhost"`
			Port             int           `yaml:"port" default:"9000"`
			Database         string        `yaml:"database" default:"signalscan"`
			User             string        `yaml:"user" default:"default"`
			Password         string        `yaml:"password"`
			UseHTTP          bool          `yaml:"use_http"`
			DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
			ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
			AsyncInsert      bool          `yaml:"async_insert"`
			WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
			MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		} `yaml:"clickhouse"`
	} `yaml:"sink"`
}

// APIConfig describes the upstream market-data API shared by every scanner.
type APIConfig struct {
	Endpoints     []string      `yaml:"endpoints" default:"[\"https://data-api.binance.vision\",\"https://fapi.binance.com\"]" validate:"min=1,dive,url"`
	TickerPath    string        `yaml:"ticker_path" default:"/fapi/v1/ticker/24hr" validate:"startswith=/"`
	KlinesPath    string        `yaml:"klines_path" default:"/fapi/v1/klines" validate:"startswith=/"`
	QuoteSuffix   string        `yaml:"quote_suffix" default:"USDT"`
	UserAgent     string        `yaml:"user_agent" default:"Mozilla/5.0 (signalscan/1.0)"`
	Timeout       time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	MaxRetries    int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	Backoff       time.Duration `yaml:"backoff" default:"1s" validate:"gte=0"`
	RetryStatuses []int         `yaml:"retry_statuses" default:"[418,429,403,451,500,502,503,504]"`

	RateLimit struct {
		RPS   float64 `yaml:"rps" validate:"gte=0"`
		Burst int     `yaml:"burst" default:"1"`
	} `yaml:"rate_limit"`

	Breaker struct {
		Enabled             bool          `yaml:"enabled"`
		ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"5"`
		OpenTimeout         time.Duration `yaml:"open_timeout" default:"30s"`
	} `yaml:"breaker"`
}

// ScannerConfig holds the fields every scan kind shares. Defaults differ per kind
// and are applied by the SetDefaults methods below.
type ScannerConfig struct {
	Interval       string        `yaml:"interval"`
	BarLimit       int           `yaml:"bar_limit" validate:"gte=2,lte=1500"`
	MinBars        int           `yaml:"min_bars" validate:"gte=2"`
	MinQuoteVolume float64       `yaml:"min_quote_volume" validate:"gte=0"`
	MaxInstruments int           `yaml:"max_instruments" validate:"gte=1"`
	Excluded       []string      `yaml:"excluded"`
	DropOpenBar    bool          `yaml:"drop_open_bar"`
	Concurrency    int           `yaml:"concurrency" validate:"gte=1,lte=64"`
	Pacing         time.Duration `yaml:"pacing" validate:"gte=0"`
}

type EMACrossConfig struct {
	ScannerConfig  `yaml:",inline"`
	Fast           int     `yaml:"fast" validate:"gte=1"`
	Slow           int     `yaml:"slow" validate:"gte=2"`
	ImminentGapPct float64 `yaml:"imminent_gap_pct" validate:"gt=0"`
	PrepGapPct     float64 `yaml:"prep_gap_pct" validate:"gt=0"`
	ImminentWindow int     `yaml:"imminent_window" validate:"gte=1"`
	PrepWindow     int     `yaml:"prep_window" validate:"gte=1"`
}

func (c *EMACrossConfig) SetDefaults() {
	setScannerDefaults(&c.ScannerConfig, "15m", 300, 220, 1_000_000, 400, 80*time.Millisecond)
	setInt(&c.Fast, 10)
	setInt(&c.Slow, 200)
	setFloat(&c.ImminentGapPct, 0.001)
	setFloat(&c.PrepGapPct, 0.003)
	setInt(&c.ImminentWindow, 3)
	setInt(&c.PrepWindow, 6)
}

type MACDDivergenceConfig struct {
	ScannerConfig `yaml:",inline"`
	Fast          int `yaml:"fast" validate:"gte=1"`
	Slow          int `yaml:"slow" validate:"gte=2"`
	Signal        int `yaml:"signal" validate:"gte=1"`
	Lookback      int `yaml:"lookback" validate:"gte=2"`
	RecentBars    int `yaml:"recent_bars" validate:"gte=1"`
	TopN          int `yaml:"top_n" validate:"gte=0"`
	BottomN       int `yaml:"bottom_n" validate:"gte=0"`
}

func (c *MACDDivergenceConfig) SetDefaults() {
	setScannerDefaults(&c.ScannerConfig, "1h", 720, 120, 5_000_000, 1000, 0)
	if c.Excluded == nil {
		c.Excluded = []string{"TUTUSDT", "USDCUSDT", "USDPUSDT"}
	}
	c.DropOpenBar = true
	setInt(&c.Fast, 12)
	setInt(&c.Slow, 26)
	setInt(&c.Signal, 9)
	setInt(&c.Lookback, 40)
	setInt(&c.RecentBars, 5)
	setInt(&c.TopN, 5)
	setInt(&c.BottomN, 5)
}

func setScannerDefaults(c *ScannerConfig, interval string, limit, minBars int, minVol float64, maxInst int, pacing time.Duration) {
	if defaults.CanUpdate(c.Interval) {
		c.Interval = interval
	}
	setInt(&c.BarLimit, limit)
	setInt(&c.MinBars, minBars)
	setFloat(&c.MinQuoteVolume, minVol)
	setInt(&c.MaxInstruments, maxInst)
	setInt(&c.Concurrency, 4)
	if defaults.CanUpdate(c.Pacing) {
		c.Pacing = pacing
	}
}

func setInt(p *int, v int) {
	if defaults.CanUpdate(*p) {
		*p = v
	}
}

func setFloat(p *float64, v float64) {
	if defaults.CanUpdate(*p) {
		*p = v
	}
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// EnvOverrides lists the settings that may be replaced through SIGNALSCAN_* variables.
type EnvOverrides struct {
	Environment  string   `envconfig:"ENVIRONMENT"`
	LogLevel     string   `envconfig:"LOG_LEVEL"`
	Endpoints    []string `envconfig:"ENDPOINTS"`
	ServerPort   int      `envconfig:"SERVER_PORT"`
	ResultsStore string   `envconfig:"RESULTS_STORE"`
	RedisHost    string   `envconfig:"REDIS_HOST"`
	RedisPass    string   `envconfig:"REDIS_PASSWORD"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	CHPassword   string   `envconfig:"CLICKHOUSE_PASSWORD"`
}

// LoadWithEnv loads the YAML file, then applies .env and SIGNALSCAN_* overrides.
func LoadWithEnv(path string) (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	c := &Config{}
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		c = loaded
	} else {
		d, err := Default()
		if err != nil {
			return nil, err
		}
		c = d
	}

	var env EnvOverrides
	if err := envconfig.Process("SIGNALSCAN", &env); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	c.applyEnv(env)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(env EnvOverrides) {
	if env.Environment != "" {
		c.Environment = env.Environment
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if len(env.Endpoints) > 0 {
		c.API.Endpoints = env.Endpoints
	}
	if env.ServerPort > 0 {
		c.Server.Port = env.ServerPort
	}
	if env.ResultsStore != "" {
		c.Results.Store = env.ResultsStore
	}
	if env.RedisHost != "" {
		c.Results.Redis.Host = env.RedisHost
	}
	if env.RedisPass != "" {
		c.Results.Redis.Password = env.RedisPass
	}
	if len(env.KafkaBrokers) > 0 {
		c.Sink.Kafka.Brokers = env.KafkaBrokers
	}
	if env.CHPassword != "" {
		c.Sink.ClickHouse.Password = env.CHPassword
	}
}

var validate = validator.New()

// Validate checks field constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	ema := c.Scanners.EMACross
	if ema.Fast >= ema.Slow {
		return fmt.Errorf("scanners.ema_cross: fast (%d) must be below slow (%d)", ema.Fast, ema.Slow)
	}
	if ema.PrepGapPct < ema.ImminentGapPct {
		return fmt.Errorf("scanners.ema_cross: prep_gap_pct must be >= imminent_gap_pct")
	}
	if ema.PrepWindow < ema.ImminentWindow {
		return fmt.Errorf("scanners.ema_cross: prep_window must be >= imminent_window")
	}

	macd := c.Scanners.MACDDivergence
	if macd.Fast >= macd.Slow {
		return fmt.Errorf("scanners.macd_divergence: fast (%d) must be below slow (%d)", macd.Fast, macd.Slow)
	}

	for name, s := range map[string]ScannerConfig{"ema_cross": ema.ScannerConfig, "macd_divergence": macd.ScannerConfig} {
		if _, ok := util.ParseInterval(s.Interval); !ok {
			return fmt.Errorf("scanners.%s: invalid interval %q", name, s.Interval)
		}
		if s.MinBars > s.BarLimit {
			return fmt.Errorf("scanners.%s: min_bars (%d) exceeds bar_limit (%d)", name, s.MinBars, s.BarLimit)
		}
	}

	if c.Sink.Kafka.Enabled && len(c.Sink.Kafka.Brokers) == 0 {
		return fmt.Errorf("sink.kafka.brokers cannot be empty when kafka sink is enabled")
	}
	return nil
}
