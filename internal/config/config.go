package config

import "time"

// Config is the root configuration for a livewatch daemon.
type Config struct {
	Backend    BackendConfig   `yaml:"backend"`
	Channel    ChannelConfig   `yaml:"channel"`
	Bootstrap  BootstrapConfig `yaml:"bootstrap"`
	Session    SessionConfig   `yaml:"session"`
	History    HistoryConfig   `yaml:"history"`
	Server     ServerConfig    `yaml:"server"`
	Log        LogConfig       `yaml:"log"`
	Workspaces []string        `yaml:"workspaces"`
}

// BackendConfig holds DataPulse API settings.
type BackendConfig struct {
	BaseURL    string        `yaml:"base_url"`
	HealthPath string        `yaml:"health_path"`
	Token      string        `yaml:"token"` // Bearer token, sent on probes and channel handshakes
	Timeout    time.Duration `yaml:"timeout"`
}

// ChannelConfig holds live status channel settings.
type ChannelConfig struct {
	BaseURL           string        `yaml:"base_url"` // Defaults to backend.base_url
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// BootstrapConfig holds cold-start probe settings.
type BootstrapConfig struct {
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	MaxAttempts    int           `yaml:"max_attempts"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	SlowStartAfter time.Duration `yaml:"slow_start_after"`
	HardFailAfter  time.Duration `yaml:"hard_fail_after"`
}

// SessionConfig selects where the "backend awake" flag lives.
type SessionConfig struct {
	Store string        `yaml:"store"` // "memory" or "redis"
	Key   string        `yaml:"key"`
	TTL   time.Duration `yaml:"ttl"`
	Redis RedisConfig   `yaml:"redis"`
}

// RedisConfig holds a Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HistoryConfig holds the optional job status history sink.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ServerConfig holds the status API listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
