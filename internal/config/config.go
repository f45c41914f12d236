package config

import "time"

// Config is the root configuration for a producer instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance" envPrefix:"INSTANCE_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	API       APIConfig       `yaml:"api" envPrefix:"API_"`
	Broker    BrokerConfig    `yaml:"broker" envPrefix:"BROKER_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Shutdown  ShutdownConfig  `yaml:"shutdown" envPrefix:"SHUTDOWN_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Archive   ArchiveConfig   `yaml:"archive" envPrefix:"ARCHIVE_"`
}

// InstanceConfig identifies this producer.
type InstanceConfig struct {
	ID string `yaml:"id" env:"ID"`
}

// LogConfig controls the root slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // text or json
}

// APIConfig holds quote API settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	APIKey       string        `yaml:"api_key" env:"KEY"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"RETRY_BACKOFF"`
	RateLimit    float64       `yaml:"rate_limit" env:"RATE_LIMIT"` // requests per second, 0 = unlimited
	RateBurst    int           `yaml:"rate_burst" env:"RATE_BURST"`
}

// BrokerConfig holds NATS JetStream settings.
type BrokerConfig struct {
	URL            string        `yaml:"url" env:"URL"`
	Subject        string        `yaml:"subject" env:"SUBJECT"` // topic records are published to
	Stream         string        `yaml:"stream" env:"STREAM"`
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"PUBLISH_TIMEOUT"` // max stall before Send gives up
	MaxPending     int           `yaml:"max_pending" env:"MAX_PENDING"`         // unacknowledged async publishes
	ReconnectWait  time.Duration `yaml:"reconnect_wait" env:"RECONNECT_WAIT"`
}

// SchedulerConfig holds per-key job settings.
type SchedulerConfig struct {
	Interval     time.Duration `yaml:"interval" env:"INTERVAL"`         // default tick interval
	MinInterval  time.Duration `yaml:"min_interval" env:"MIN_INTERVAL"` // lower bound for per-key intervals
	Workers      int           `yaml:"workers" env:"WORKERS"`           // concurrent ticks across all keys
	TickTimeout  time.Duration `yaml:"tick_timeout" env:"TICK_TIMEOUT"`
	DrainTimeout time.Duration `yaml:"drain_timeout" env:"DRAIN_TIMEOUT"`
}

// ShutdownConfig bounds the shutdown steps.
type ShutdownConfig struct {
	FlushTimeout time.Duration `yaml:"flush_timeout" env:"FLUSH_TIMEOUT"`
	CloseTimeout time.Duration `yaml:"close_timeout" env:"CLOSE_TIMEOUT"`
}

// ServerConfig holds control surface settings.
type ServerConfig struct {
	Port         int           `yaml:"port" env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// ArchiveConfig holds the optional quote archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	Database      DBConfig      `yaml:"database" envPrefix:"DB_"`
	BatchSize     int           `yaml:"batch_size" env:"BATCH_SIZE"`
	FlushInterval time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
	BufferSize    int           `yaml:"buffer_size" env:"BUFFER_SIZE"`
	MaxBufferSize int           `yaml:"max_buffer_size" env:"MAX_BUFFER_SIZE"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Name     string `yaml:"name" env:"NAME"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxConns int    `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns int    `yaml:"min_conns" env:"MIN_CONNS"`
}
