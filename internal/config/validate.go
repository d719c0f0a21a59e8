package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if err := validateURL("backend.base_url", c.Backend.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.Channel.BaseURL != "" {
		if err := validateURL("channel.base_url", c.Channel.BaseURL, "http", "https", "ws", "wss"); err != nil {
			return err
		}
	}

	if c.Channel.HeartbeatInterval <= 0 {
		return errors.New("channel.heartbeat_interval must be > 0")
	}
	if c.Channel.ReconnectDelay <= 0 {
		return errors.New("channel.reconnect_delay must be > 0")
	}

	if c.Bootstrap.MaxAttempts < 1 {
		return errors.New("bootstrap.max_attempts must be >= 1")
	}
	if c.Bootstrap.ProbeInterval <= 0 {
		return errors.New("bootstrap.probe_interval must be > 0")
	}
	if c.Bootstrap.SlowStartAfter > c.Bootstrap.HardFailAfter {
		return fmt.Errorf("bootstrap.slow_start_after (%s) cannot exceed hard_fail_after (%s)",
			c.Bootstrap.SlowStartAfter, c.Bootstrap.HardFailAfter)
	}

	switch c.Session.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Session.Redis.Addr == "" {
			return errors.New("session.redis.addr is required")
		}
	default:
		return fmt.Errorf("session.store must be %q or %q, got %q", StoreMemory, StoreRedis, c.Session.Store)
	}

	if c.History.Enabled {
		if err := c.History.Database.validate("history.database"); err != nil {
			return err
		}
		if c.History.BatchSize < 1 {
			return errors.New("history.batch_size must be >= 1")
		}
		if c.History.BufferSize < 1 {
			return errors.New("history.buffer_size must be >= 1")
		}
		if c.History.FlushInterval <= 0 {
			return errors.New("history.flush_interval must be > 0")
		}
	}

	seen := make(map[string]bool, len(c.Workspaces))
	for i, id := range c.Workspaces {
		if id == "" {
			return fmt.Errorf("workspaces[%d] is empty", i)
		}
		if seen[id] {
			return fmt.Errorf("workspaces[%d] duplicates %q", i, id)
		}
		seen[id] = true
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// SlogLevel parses Log.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%s must include a host", field)
			}
			return nil
		}
	}
	return fmt.Errorf("%s has unsupported scheme %q", field, u.Scheme)
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
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
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
