package config

import (
	"fmt"
	"net"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultPort                = 8000
	DefaultDatabaseURL         = "sqlite://todos.db"
	DefaultMaxOpenConns        = 10
	DefaultConnMaxLifetime     = 5 * time.Minute
	DefaultMaintenanceSchedule = "@daily"
)

// Config is the resolved runtime configuration for the server
type Config struct {
	Port        int
	Bind        string
	AllowSubnet string
	DatabaseURL string

	LogLevel string
	LogFile  string

	MaxOpenConns    int
	ConnMaxLifetime time.Duration

	// MaintenanceSchedule is a cron spec for PRAGMA optimize; empty disables it.
	// MAINTENANCE_SCHEDULE=off disables it from the environment.
	MaintenanceSchedule string

	// NullOnMissing makes GET /todos/{id} answer null with 200 for unknown ids
	NullOnMissing bool

	Timeouts TimeoutConfig
}

// Default returns a Config populated with default values
func Default() *Config {
	return &Config{
		Port:                DefaultPort,
		DatabaseURL:         DefaultDatabaseURL,
		LogLevel:            "info",
		MaxOpenConns:        DefaultMaxOpenConns,
		ConnMaxLifetime:     DefaultConnMaxLifetime,
		MaintenanceSchedule: DefaultMaintenanceSchedule,
		Timeouts:            DefaultTimeoutConfig(),
	}
}

// ApplyEnv fills fields from the environment. changed reports whether the
// named command line flag was given; those fields keep the flag value even
// when it equals the default. A nil changed treats every flag as unset.
func (c *Config) ApplyEnv(l *Loader, changed func(flag string) bool) {
	if changed == nil {
		changed = func(string) bool { return false }
	}

	if !changed("port") {
		c.Port = l.Int("PORT", c.Port)
	}
	if !changed("bind") {
		c.Bind = l.String("BIND", c.Bind)
	}
	if !changed("allow-subnet") {
		c.AllowSubnet = l.String("ALLOW_SUBNET", c.AllowSubnet)
	}
	if !changed("database-url") {
		c.DatabaseURL = l.String("DATABASE_URL", c.DatabaseURL)
	}
	if !changed("verbose") {
		c.LogLevel = l.String("LOG_LEVEL", c.LogLevel)
	}
	if !changed("log-file") {
		c.LogFile = l.String("LOG_FILE", c.LogFile)
	}
	if !changed("max-open-conns") {
		c.MaxOpenConns = l.Int("DB_MAX_OPEN_CONNS", c.MaxOpenConns)
	}
	if !changed("conn-max-lifetime") {
		c.ConnMaxLifetime = l.Duration("DB_CONN_MAX_LIFETIME", c.ConnMaxLifetime)
	}
	if !changed("request-timeout") {
		c.Timeouts.Request = l.Duration("REQUEST_TIMEOUT", c.Timeouts.Request)
	}
	if !changed("maintenance-schedule") && l.Has("MAINTENANCE_SCHEDULE") {
		c.MaintenanceSchedule = l.String("MAINTENANCE_SCHEDULE", c.MaintenanceSchedule)
		if c.MaintenanceSchedule == "off" {
			c.MaintenanceSchedule = ""
		}
	}
	if !changed("null-on-missing") {
		c.NullOnMissing = l.Bool("NULL_ON_MISSING", c.NullOnMissing)
	}
}

// Validate checks the configuration and returns the parsed allow-list subnet, if any
func (c *Config) Validate() (*net.IPNet, error) {
	if c.Port <= 0 || c.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.Bind != "" {
		if ip := net.ParseIP(c.Bind); ip == nil {
			return nil, fmt.Errorf("invalid bind address: %s", c.Bind)
		}
	}

	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("--database-url flag or DATABASE_URL environment variable is required")
	}

	switch c.LogLevel {
	case "trace", "debug", "info":
	default:
		return nil, fmt.Errorf("invalid log level %q (want trace, debug or info)", c.LogLevel)
	}

	if c.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", c.MaxOpenConns)
	}
	if c.ConnMaxLifetime < 0 {
		return nil, fmt.Errorf("connection max lifetime cannot be negative")
	}
	if c.Timeouts.Request <= 0 {
		return nil, fmt.Errorf("request timeout must be positive")
	}

	if c.MaintenanceSchedule != "" {
		if _, err := cron.ParseStandard(c.MaintenanceSchedule); err != nil {
			return nil, fmt.Errorf("invalid maintenance schedule %q: %w", c.MaintenanceSchedule, err)
		}
	}

	var allowedNet *net.IPNet
	if c.AllowSubnet != "" {
		_, parsedNet, err := net.ParseCIDR(c.AllowSubnet)
		if err != nil {
			return nil, fmt.Errorf("invalid allow-subnet CIDR: %s", c.AllowSubnet)
		}
		allowedNet = parsedNet
	}

	return allowedNet, nil
}

// ListenAddr returns the address the HTTP server binds to
func (c *Config) ListenAddr() string {
	if c.Bind != "" {
		return net.JoinHostPort(c.Bind, fmt.Sprint(c.Port))
	}
	return fmt.Sprintf(":%d", c.Port)
}
