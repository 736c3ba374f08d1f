package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"SigPull/pkg/util"
)

type Config struct {
	Environment  string             `yaml:"environment" default:"development"`
	Server       ServerConfig       `yaml:"server"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
	Watchlist    WatchlistConfig    `yaml:"watchlist"`
	Bars         BarsConfig         `yaml:"bars"`
	Signals      SignalsConfig      `yaml:"signals"`
	Resolver     ResolverConfig     `yaml:"resolver"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Learner      LearnerConfig      `yaml:"learner"`
	Storage      StorageConfig      `yaml:"storage"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Binance      BinanceConfig      `yaml:"binance"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	ClickHouse   ClickHouseConfig   `yaml:"clickhouse"`
	Redis        RedisConfig        `yaml:"redis"`
	TimeSync     TimeSyncConfig     `yaml:"timesync"`
	Manipulation ManipulationConfig `yaml:"manipulation"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"3000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"500ms"`
	// Per-client token bucket for websocket control messages.
	ControlBurst  int     `yaml:"control_burst" default:"5"`
	ControlPerSec float64 `yaml:"control_per_sec" default:"1"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type LoggingConfig struct {
	Level          string        `yaml:"level" default:"info"`
	Format         string        `yaml:"format" default:"json"`
	Output         string        `yaml:"output" default:"stdout"`
	CollectErrors  bool          `yaml:"collect_errors" default:"true"`
	FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
	CountThreshold int           `yaml:"count_threshold" default:"100"`
}

// WatchlistConfig groups the watched symbols by market type.
type WatchlistConfig struct {
	Real        []string `yaml:"real"`
	OTC         []string `yaml:"otc"`
	Crypto      []string `yaml:"crypto" default:"[\"BTCUSDT\"]"`
	Commodities []string `yaml:"commodities"`
}

type BarsConfig struct {
	HistoryMax int `yaml:"history_max" default:"2000"`
}

type SignalsConfig struct {
	EmitInterval  time.Duration `yaml:"emit_interval" default:"5s"`
	MinConfidence int           `yaml:"min_confidence" default:"10"`
	Expiry        time.Duration `yaml:"expiry" default:"60s"`
	Window        int           `yaml:"window" default:"300"`
	HTFSeconds    int64         `yaml:"htf_seconds" default:"60"`
	MinHistory    int           `yaml:"min_history" default:"30"`
	Synthetic     bool          `yaml:"synthetic" default:"true"`
}

type ResolverConfig struct {
	Interval  time.Duration `yaml:"interval" default:"5s"`
	ScanLimit int           `yaml:"scan_limit" default:"200"`
}

type HousekeepingConfig struct {
	Interval       time.Duration `yaml:"interval" default:"120s"`
	DriftInterval  time.Duration `yaml:"drift_interval" default:"60s"`
	DriftThreshold float64       `yaml:"drift_threshold" default:"0.002"`
}

type LearnerConfig struct {
	Store string  `yaml:"store" default:"file"` // file | redis
	Path  string  `yaml:"path" default:"data/learner.json"`
	Key   string  `yaml:"key" default:"learner:state"`
	Alpha float64 `yaml:"alpha" default:"0.05"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" default:"memory"` // memory | clickhouse
}

type IngestConfig struct {
	Backend      string `yaml:"backend" default:"direct"` // direct | kafka
	ArchiveTicks bool   `yaml:"archive_ticks"`
	BufferSize   int    `yaml:"buffer_size" default:"4096"`
	// MaxPerSecond throttles the pipeline; 0 disables throttling.
	MaxPerSecond int `yaml:"max_per_second"`
}

type BinanceConfig struct {
	Enabled        bool          `yaml:"enabled" default:"true"`
	WebSocketURL   string        `yaml:"websocket_url" default:"wss://stream.binance.com:9443/stream"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"15s"`
	BackoffMin     time.Duration `yaml:"backoff_min" default:"1s"`
	BackoffMax     time.Duration `yaml:"backoff_max" default:"30s"`
	HandshakeLimit time.Duration `yaml:"handshake_timeout" default:"10s"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
	TicksTopic  string   `yaml:"ticks_topic" default:"sigpull.ticks"`
	EventsTopic string   `yaml:"events_topic" default:"sigpull.events"`
	// PublishEvents mirrors broadcast events to EventsTopic.
	PublishEvents bool           `yaml:"publish_events"`
	Compression   string         `yaml:"compression" default:"snappy"`
	Producer      ProducerConfig `yaml:"producer"`
	Consumer      ConsumerConfig `yaml:"consumer"`
}

type ProducerConfig struct {
	RequiredAcks int           `yaml:"required_acks" default:"1"`
	MaxAttempts  int           `yaml:"max_attempts" default:"5"`
	Linger       time.Duration `yaml:"linger" default:"20ms"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
	BatchSize    int           `yaml:"batch_size" default:"500"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	Async        bool          `yaml:"async"`
}

type ConsumerConfig struct {
	GroupID    string        `yaml:"group_id" default:"sigpull-bars"`
	Workers    int           `yaml:"workers" default:"2"`
	BufferSize int           `yaml:"buffer_size" default:"1000"`
	RetryMax   int           `yaml:"retry_max" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic   string        `yaml:"dlq_topic"`
	MinBytes   int           `yaml:"min_bytes" default:"1"`
	MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
}

type ClickHouseConfig struct {
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"9000"`
	Database     string        `yaml:"database" default:"sigpull"`
	User         string        `yaml:"user" default:"default"`
	Password     string        `yaml:"password"`
	UseHTTP      bool          `yaml:"use_http"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	// MaxExecutionTime caps server-side query time.
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"sigpull"`
}

type TimeSyncConfig struct {
	Enabled  bool          `yaml:"enabled" default:"true"`
	URL      string        `yaml:"url" default:"https://worldtimeapi.org/api/timezone/Etc/UTC"`
	Interval time.Duration `yaml:"interval" default:"60s"`
	Timeout  time.Duration `yaml:"timeout" default:"5s"`
}

// ManipulationConfig enables the remote anomaly scorer next to the local rules.
type ManipulationConfig struct {
	RemoteURL string        `yaml:"remote_url"`
	Timeout   time.Duration `yaml:"timeout" default:"3s"`
	Attempts  int           `yaml:"attempts" default:"2"`
}

// Default returns a configuration populated only from struct defaults.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment variables.
// A missing file is not an error when the environment carries the configuration.
func LoadWithEnv(path string) (*Config, error) {
	var c *Config
	if _, err := os.Stat(path); err == nil {
		if c, err = Load(path); err != nil {
			return nil, err
		}
	} else {
		c = Default()
	}

	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("WATCH_SYMBOLS"); v != "" {
		// Unclassified symbols are sorted by suffix in the watch list.
		c.Watchlist = WatchlistConfig{}
		for _, s := range splitList(v) {
			if strings.HasSuffix(strings.ToUpper(s), "USDT") {
				c.Watchlist.Crypto = append(c.Watchlist.Crypto, s)
			} else {
				c.Watchlist.Real = append(c.Watchlist.Real, s)
			}
		}
	}
	if v := getenv("HISTORY_MAX"); v != "" {
		c.Bars.HistoryMax = util.ParseIntDefault(v, c.Bars.HistoryMax)
	}
	if v := getenv("MIN_BROADCAST_CONF"); v != "" {
		c.Signals.MinConfidence = util.ParseIntDefault(v, c.Signals.MinConfidence)
	}
	if v := getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := getenv("INGEST_BACKEND"); v != "" {
		c.Ingest.Backend = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("LEARNER_PATH"); v != "" {
		c.Learner.Path = v
	}
	if v := getenv("ANOMALY_SERVICE_URL"); v != "" {
		c.Manipulation.RemoteURL = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Symbols returns every watched symbol across all market types.
func (w WatchlistConfig) Symbols() []string {
	out := make([]string, 0, len(w.Real)+len(w.OTC)+len(w.Crypto)+len(w.Commodities))
	out = append(out, w.Real...)
	out = append(out, w.OTC...)
	out = append(out, w.Crypto...)
	out = append(out, w.Commodities...)
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Watchlist.Symbols()) == 0 {
		return fmt.Errorf("watchlist cannot be empty")
	}
	if c.Bars.HistoryMax < 50 {
		return fmt.Errorf("bars.history_max must be >= 50, got %d", c.Bars.HistoryMax)
	}
	if c.Signals.EmitInterval <= 0 || c.Resolver.Interval <= 0 || c.Housekeeping.Interval <= 0 {
		return fmt.Errorf("signals.emit_interval, resolver.interval and housekeeping.interval must be positive")
	}
	if c.Signals.MinConfidence < 0 || c.Signals.MinConfidence > 99 {
		return fmt.Errorf("signals.min_confidence must be within 0..99, got %d", c.Signals.MinConfidence)
	}
	if c.Signals.Expiry <= 0 {
		return fmt.Errorf("signals.expiry must be positive")
	}
	if c.Signals.HTFSeconds < 2 {
		return fmt.Errorf("signals.htf_seconds must be >= 2, got %d", c.Signals.HTFSeconds)
	}
	if c.Resolver.ScanLimit < 1 {
		return fmt.Errorf("resolver.scan_limit must be positive")
	}
	if c.Learner.Alpha <= 0 {
		return fmt.Errorf("learner.alpha must be positive, got %v", c.Learner.Alpha)
	}
	switch c.Learner.Store {
	case "file":
		if c.Learner.Path == "" {
			return fmt.Errorf("learner.path is required for the file store")
		}
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("learner.store 'redis' requires redis.enabled")
		}
	default:
		return fmt.Errorf("learner.store must be 'file' or 'redis', got '%s'", c.Learner.Store)
	}
	if c.Storage.Backend != "memory" && c.Storage.Backend != "clickhouse" {
		return fmt.Errorf("storage.backend must be 'memory' or 'clickhouse', got '%s'", c.Storage.Backend)
	}
	if c.Ingest.Backend != "direct" && c.Ingest.Backend != "kafka" {
		return fmt.Errorf("ingest.backend must be 'direct' or 'kafka', got '%s'", c.Ingest.Backend)
	}
	if c.Server.ControlBurst < 1 || c.Server.ControlPerSec <= 0 {
		return fmt.Errorf("server.control_burst and server.control_per_sec must be positive")
	}
	if (c.Ingest.Backend == "kafka" || c.Kafka.PublishEvents) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is in use")
	}
	return nil
}
