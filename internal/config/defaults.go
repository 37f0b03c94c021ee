package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL            = "https://openapi.koreainvestment.com:9443"
	DefaultWSURL              = "ws://ops.koreainvestment.com:21000"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultConnectGrace       = 2 * time.Second
	DefaultCommandSpacing     = 100 * time.Millisecond
	DefaultReconnectDelay     = 30 * time.Second
	DefaultStaleKeyDelay      = 2 * time.Second
	DefaultMinConnectInterval = 1 * time.Second
	DefaultKeyRetries         = 3
	DefaultKeyRetryDelay      = 10 * time.Second
	DefaultEventBuffer        = 256
	DefaultBroadcastCapacity  = 256
	DefaultServerPort         = 8080
	DefaultTimezone           = "Asia/Seoul"
	DefaultOpenTime           = "08:00"
	DefaultCloseTime          = "20:00"
	DefaultRefreshTime        = "11:00"
	DefaultLogLevel           = "info"
	DefaultLogMaxSizeMB       = 100
	DefaultLogMaxBackups      = 5
	DefaultLogMaxAgeDays      = 14
)

func (c *StreamerConfig) applyDefaults() {
	// Gateway defaults
	if c.Gateway.RestURL == "" {
		c.Gateway.RestURL = DefaultRestURL
	}
	if c.Gateway.WSURL == "" {
		c.Gateway.WSURL = DefaultWSURL
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = DefaultAPITimeout
	}
	if c.Gateway.MaxRetries == 0 {
		c.Gateway.MaxRetries = DefaultMaxRetries
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Session defaults
	if c.Session.ConnectGrace == 0 {
		c.Session.ConnectGrace = DefaultConnectGrace
	}
	if c.Session.CommandSpacing == 0 {
		c.Session.CommandSpacing = DefaultCommandSpacing
	}
	if c.Session.ReconnectDelay == 0 {
		c.Session.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Session.StaleKeyDelay == 0 {
		c.Session.StaleKeyDelay = DefaultStaleKeyDelay
	}
	if c.Session.MinConnectInterval == 0 {
		c.Session.MinConnectInterval = DefaultMinConnectInterval
	}
	if c.Session.KeyRetries == 0 {
		c.Session.KeyRetries = DefaultKeyRetries
	}
	if c.Session.KeyRetryDelay == 0 {
		c.Session.KeyRetryDelay = DefaultKeyRetryDelay
	}
	if c.Session.EventBuffer == 0 {
		c.Session.EventBuffer = DefaultEventBuffer
	}

	// Broadcast defaults
	if c.Broadcast.Capacity == 0 {
		c.Broadcast.Capacity = DefaultBroadcastCapacity
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}

	// Schedule defaults
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = DefaultTimezone
	}
	if c.Schedule.OpenTime == "" {
		c.Schedule.OpenTime = DefaultOpenTime
	}
	if c.Schedule.CloseTime == "" {
		c.Schedule.CloseTime = DefaultCloseTime
	}
	if c.Schedule.RefreshTime == "" {
		c.Schedule.RefreshTime = DefaultRefreshTime
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
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
