package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be > 0")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.RateLimit < 0 {
		return errors.New("api.rate_limit must be >= 0")
	}

	if c.Broker.URL == "" {
		return errors.New("broker.url is required")
	}
	if err := validateSubject(c.Broker.Subject); err != nil {
		return err
	}
	if c.Broker.Stream == "" {
		return errors.New("broker.stream is required")
	}
	if c.Broker.PublishTimeout <= 0 {
		return errors.New("broker.publish_timeout must be > 0")
	}
	if c.Broker.MaxPending < 1 {
		return errors.New("broker.max_pending must be >= 1")
	}

	if c.Scheduler.MinInterval <= 0 {
		return errors.New("scheduler.min_interval must be > 0")
	}
	if c.Scheduler.Interval < c.Scheduler.MinInterval {
		return fmt.Errorf("scheduler.interval (%s) cannot be below scheduler.min_interval (%s)",
			c.Scheduler.Interval, c.Scheduler.MinInterval)
	}
	if c.Scheduler.Workers < 1 {
		return errors.New("scheduler.workers must be >= 1")
	}
	if c.Scheduler.TickTimeout <= 0 {
		return errors.New("scheduler.tick_timeout must be > 0")
	}
	if c.Scheduler.DrainTimeout <= 0 {
		return errors.New("scheduler.drain_timeout must be > 0")
	}

	if c.Shutdown.FlushTimeout <= 0 {
		return errors.New("shutdown.flush_timeout must be > 0")
	}
	if c.Shutdown.CloseTimeout <= 0 {
		return errors.New("shutdown.close_timeout must be > 0")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Archive.Enabled {
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
		if c.Archive.MaxBufferSize < c.Archive.BufferSize {
			return fmt.Errorf("archive.max_buffer_size (%d) cannot be below buffer_size (%d)",
				c.Archive.MaxBufferSize, c.Archive.BufferSize)
		}
	}

	return nil
}

// validateSubject rejects empty subjects and subjects a publisher cannot use.
func validateSubject(subject string) error {
	if subject == "" {
		return errors.New("broker.subject is required")
	}
	if strings.ContainsAny(subject, " \t\r\n*>") {
		return fmt.Errorf("broker.subject %q must not contain whitespace or wildcards", subject)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
