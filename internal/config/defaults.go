package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHealthPath        = "/"
	DefaultBackendTimeout    = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReconnectDelay    = 3 * time.Second
	DefaultDialTimeout       = 15 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultProbeInterval     = 2 * time.Second
	DefaultMaxAttempts       = 60
	DefaultProbeTimeout      = 5 * time.Second
	DefaultSlowStartAfter    = 20 * time.Second
	DefaultHardFailAfter     = 105 * time.Second
	DefaultSessionStore      = StoreMemory
	DefaultSessionKey        = "datapulse:backend_awake"
	DefaultSessionTTL        = 12 * time.Hour
	DefaultRedisAddr         = "localhost:6379"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultBatchSize         = 100
	DefaultFlushInterval     = 1 * time.Second
	DefaultBufferSize        = 1000
	DefaultServerAddr        = ":8080"
	DefaultLogLevel          = "info"
)

// Session flag stores.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

func (c *Config) applyDefaults() {
	// Backend defaults
	if c.Backend.HealthPath == "" {
		c.Backend.HealthPath = DefaultHealthPath
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultBackendTimeout
	}

	// Channel defaults
	if c.Channel.BaseURL == "" {
		c.Channel.BaseURL = c.Backend.BaseURL
	}
	if c.Channel.HeartbeatInterval == 0 {
		c.Channel.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Channel.ReconnectDelay == 0 {
		c.Channel.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Channel.DialTimeout == 0 {
		c.Channel.DialTimeout = DefaultDialTimeout
	}
	if c.Channel.HandshakeTimeout == 0 {
		c.Channel.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Channel.WriteTimeout == 0 {
		c.Channel.WriteTimeout = DefaultWriteTimeout
	}

	// Bootstrap defaults
	if c.Bootstrap.ProbeInterval == 0 {
		c.Bootstrap.ProbeInterval = DefaultProbeInterval
	}
	if c.Bootstrap.MaxAttempts == 0 {
		c.Bootstrap.MaxAttempts = DefaultMaxAttempts
	}
	if c.Bootstrap.ProbeTimeout == 0 {
		c.Bootstrap.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Bootstrap.SlowStartAfter == 0 {
		c.Bootstrap.SlowStartAfter = DefaultSlowStartAfter
	}
	if c.Bootstrap.HardFailAfter == 0 {
		c.Bootstrap.HardFailAfter = DefaultHardFailAfter
	}

	// Session defaults
	if c.Session.Store == "" {
		c.Session.Store = DefaultSessionStore
	}
	if c.Session.Key == "" {
		c.Session.Key = DefaultSessionKey
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = DefaultSessionTTL
	}
	if c.Session.Redis.Addr == "" {
		c.Session.Redis.Addr = DefaultRedisAddr
	}

	// History defaults
	applyDBDefaults(&c.History.Database)
	if c.History.BatchSize == 0 {
		c.History.BatchSize = DefaultBatchSize
	}
	if c.History.FlushInterval == 0 {
		c.History.FlushInterval = DefaultFlushInterval
	}
	if c.History.BufferSize == 0 {
		c.History.BufferSize = DefaultBufferSize
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
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
