package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Gateway.AppKey == "" {
		return errors.New("gateway.app_key is required")
	}
	if c.Gateway.AppSecret == "" {
		return errors.New("gateway.app_secret is required")
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	if c.Session.CommandSpacing < 0 {
		return errors.New("session.command_spacing must be >= 0")
	}
	if c.Session.MinConnectInterval < time.Second {
		return errors.New("session.min_connect_interval must be >= 1s")
	}
	if c.Session.EventBuffer < 1 {
		return errors.New("session.event_buffer must be >= 1")
	}

	if c.Broadcast.Capacity < 1 {
		return errors.New("broadcast.capacity must be >= 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone %q is invalid: %w", c.Schedule.Timezone, err)
	}
	for _, f := range []struct{ name, value string }{
		{"schedule.open_time", c.Schedule.OpenTime},
		{"schedule.close_time", c.Schedule.CloseTime},
		{"schedule.refresh_time", c.Schedule.RefreshTime},
	} {
		if _, err := time.Parse("15:04", f.value); err != nil {
			return fmt.Errorf("%s %q is not HH:MM", f.name, f.value)
		}
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
