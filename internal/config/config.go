package config

import "time"

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Server    ServerConfig    `yaml:"server"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InstanceConfig identifies this streamer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// GatewayConfig holds KIS open-API settings.
type GatewayConfig struct {
	RestURL    string        `yaml:"rest_url"` // OAuth endpoints
	WSURL      string        `yaml:"ws_url"`   // Realtime gateway
	AppKey     string        `yaml:"app_key"`
	AppSecret  string        `yaml:"app_secret"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DatabaseConfig holds the Postgres connection for watchlist reads.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
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

// SessionConfig holds realtime session pacing and recovery settings.
type SessionConfig struct {
	ConnectGrace       time.Duration `yaml:"connect_grace"`
	CommandSpacing     time.Duration `yaml:"command_spacing"`
	ReconnectDelay     time.Duration `yaml:"reconnect_delay"`
	StaleKeyDelay      time.Duration `yaml:"stale_key_delay"`
	MinConnectInterval time.Duration `yaml:"min_connect_interval"`
	KeyRetries         int           `yaml:"key_retries"`
	KeyRetryDelay      time.Duration `yaml:"key_retry_delay"`
	EventBuffer        int           `yaml:"event_buffer"`
}

// BroadcastConfig holds quote fan-out settings.
type BroadcastConfig struct {
	Capacity int `yaml:"capacity"` // Per-subscriber buffer
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ScheduleConfig holds the trading-day clock. Times are "HH:MM" in the
// configured timezone.
type ScheduleConfig struct {
	Timezone    string `yaml:"timezone"`
	OpenTime    string `yaml:"open_time"`
	CloseTime   string `yaml:"close_time"`
	RefreshTime string `yaml:"refresh_time"` // Daily credential reset
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // Empty means stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}
