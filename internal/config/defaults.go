package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID         = "quote-producer"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultAPITimeout         = 10 * time.Second
	DefaultMaxRetries         = 2
	DefaultRetryBackoff       = 200 * time.Millisecond
	DefaultBrokerURL          = "nats://127.0.0.1:4222"
	DefaultSubject            = "stock-price"
	DefaultStream             = "QUOTES"
	DefaultPublishTimeout     = 5 * time.Second
	DefaultMaxPending         = 4096
	DefaultReconnectWait      = 100 * time.Millisecond
	DefaultInterval           = 1 * time.Second
	DefaultMinInterval        = 100 * time.Millisecond
	DefaultWorkers            = 16
	DefaultTickTimeout        = 10 * time.Second
	DefaultDrainTimeout       = 10 * time.Second
	DefaultFlushTimeout       = 10 * time.Second
	DefaultCloseTimeout       = 10 * time.Second
	DefaultServerPort         = 5000
	DefaultServerReadTimeout  = 10 * time.Second
	DefaultServerWriteTimeout = 10 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultArchiveBatchSize   = 500
	DefaultArchiveFlush       = 1 * time.Second
	DefaultArchiveBufferSize  = 1024
	DefaultArchiveMaxBuffer   = 100000
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Broker defaults
	if c.Broker.URL == "" {
		c.Broker.URL = DefaultBrokerURL
	}
	if c.Broker.Subject == "" {
		c.Broker.Subject = DefaultSubject
	}
	if c.Broker.Stream == "" {
		c.Broker.Stream = DefaultStream
	}
	if c.Broker.PublishTimeout == 0 {
		c.Broker.PublishTimeout = DefaultPublishTimeout
	}
	if c.Broker.MaxPending == 0 {
		c.Broker.MaxPending = DefaultMaxPending
	}
	if c.Broker.ReconnectWait == 0 {
		c.Broker.ReconnectWait = DefaultReconnectWait
	}

	// Scheduler defaults
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = DefaultInterval
	}
	if c.Scheduler.MinInterval == 0 {
		c.Scheduler.MinInterval = DefaultMinInterval
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = DefaultWorkers
	}
	if c.Scheduler.TickTimeout == 0 {
		c.Scheduler.TickTimeout = DefaultTickTimeout
	}
	if c.Scheduler.DrainTimeout == 0 {
		c.Scheduler.DrainTimeout = DefaultDrainTimeout
	}

	// Shutdown defaults
	if c.Shutdown.FlushTimeout == 0 {
		c.Shutdown.FlushTimeout = DefaultFlushTimeout
	}
	if c.Shutdown.CloseTimeout == 0 {
		c.Shutdown.CloseTimeout = DefaultCloseTimeout
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultServerWriteTimeout
	}

	// Archive defaults
	applyDBDefaults(&c.Archive.Database)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultArchiveBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultArchiveFlush
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultArchiveBufferSize
	}
	if c.Archive.MaxBufferSize == 0 {
		c.Archive.MaxBufferSize = DefaultArchiveMaxBuffer
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
