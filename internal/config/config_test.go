package config

import (
	"testing"
	"time"
)

func TestLoader(t *testing.T) {
	l := NewLoader(MapSource{
		"INT":      "42",
		"BAD_INT":  "forty-two",
		"BOOL":     "true",
		"BOOL_NUM": "0",
		"STR":      "  hello  ",
		"BLANK":    "   ",
		"DUR":      "1m30s",
		"BAD_DUR":  "90",
	})

	if got := l.Int("INT", 1); got != 42 {
		t.Errorf("Int(INT) = %d, want 42", got)
	}
	if got := l.Int("BAD_INT", 7); got != 7 {
		t.Errorf("Int(BAD_INT) = %d, want default 7", got)
	}
	if got := l.Int("MISSING", 3); got != 3 {
		t.Errorf("Int(MISSING) = %d, want default 3", got)
	}
	if got := l.Bool("BOOL", false); !got {
		t.Error("Bool(BOOL) = false, want true")
	}
	if got := l.Bool("BOOL_NUM", true); got {
		t.Error("Bool(BOOL_NUM) = true, want false")
	}
	if got := l.String("STR", "x"); got != "hello" {
		t.Errorf("String(STR) = %q, want %q", got, "hello")
	}
	if got := l.String("BLANK", "fallback"); got != "fallback" {
		t.Errorf("String(BLANK) = %q, want fallback", got)
	}
	if got := l.Duration("DUR", time.Second); got != 90*time.Second {
		t.Errorf("Duration(DUR) = %v, want 1m30s", got)
	}
	if got := l.Duration("BAD_DUR", time.Second); got != time.Second {
		t.Errorf("Duration(BAD_DUR) = %v, want default 1s", got)
	}
	if l.Has("BLANK") {
		t.Error("Has(BLANK) = true, want false")
	}
}

func TestNilLoaderUsesDefaults(t *testing.T) {
	var l *Loader
	if got := l.Int("PORT", 8000); got != 8000 {
		t.Errorf("nil loader Int = %d, want 8000", got)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(NewLoader(MapSource{
		"PORT":                 "9090",
		"DATABASE_URL":         "sqlite:///data/todos.db",
		"DB_CONN_MAX_LIFETIME": "2m",
		"NULL_ON_MISSING":      "true",
		"MAINTENANCE_SCHEDULE": "off",
	}), nil)

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.DatabaseURL != "sqlite:///data/todos.db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.ConnMaxLifetime != 2*time.Minute {
		t.Errorf("ConnMaxLifetime = %v, want 2m", cfg.ConnMaxLifetime)
	}
	if !cfg.NullOnMissing {
		t.Error("NullOnMissing = false, want true")
	}
	if cfg.MaintenanceSchedule != "" {
		t.Errorf("MaintenanceSchedule = %q, want disabled", cfg.MaintenanceSchedule)
	}
}

func flagsChanged(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestApplyEnv_FlagsWin(t *testing.T) {
	cfg := Default()
	cfg.Port = 7000
	cfg.DatabaseURL = "sqlite://flag.db"

	cfg.ApplyEnv(NewLoader(MapSource{
		"PORT":         "9090",
		"DATABASE_URL": "sqlite://env.db",
	}), flagsChanged("port", "database-url"))

	if cfg.Port != 7000 {
		t.Errorf("Port = %d, want flag value 7000", cfg.Port)
	}
	if cfg.DatabaseURL != "sqlite://flag.db" {
		t.Errorf("DatabaseURL = %q, want flag value", cfg.DatabaseURL)
	}
}

// A flag that repeats the default value is still an explicit choice.
func TestApplyEnv_FlagsAtDefaultWin(t *testing.T) {
	cfg := Default()

	cfg.ApplyEnv(NewLoader(MapSource{
		"PORT":                 "9000",
		"DATABASE_URL":         "sqlite://env.db",
		"DB_MAX_OPEN_CONNS":    "50",
		"DB_CONN_MAX_LIFETIME": "1m",
		"MAINTENANCE_SCHEDULE": "off",
	}), flagsChanged("port", "database-url", "max-open-conns", "conn-max-lifetime", "maintenance-schedule"))

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want flag value %d", cfg.Port, DefaultPort)
	}
	if cfg.DatabaseURL != DefaultDatabaseURL {
		t.Errorf("DatabaseURL = %q, want flag value %q", cfg.DatabaseURL, DefaultDatabaseURL)
	}
	if cfg.MaxOpenConns != DefaultMaxOpenConns {
		t.Errorf("MaxOpenConns = %d, want flag value %d", cfg.MaxOpenConns, DefaultMaxOpenConns)
	}
	if cfg.ConnMaxLifetime != DefaultConnMaxLifetime {
		t.Errorf("ConnMaxLifetime = %v, want flag value %v", cfg.ConnMaxLifetime, DefaultConnMaxLifetime)
	}
	if cfg.MaintenanceSchedule != DefaultMaintenanceSchedule {
		t.Errorf("MaintenanceSchedule = %q, want flag value %q", cfg.MaintenanceSchedule, DefaultMaintenanceSchedule)
	}
}

// Env applies to fields whose flag was left unset even when the current
// value is not the default.
func TestApplyEnv_UnsetFlagsTakeEnv(t *testing.T) {
	cfg := Default()
	cfg.Bind = "127.0.0.1"

	cfg.ApplyEnv(NewLoader(MapSource{"BIND": "10.0.0.5", "NULL_ON_MISSING": "false"}), flagsChanged("port"))

	if cfg.Bind != "10.0.0.5" {
		t.Errorf("Bind = %q, want env value", cfg.Bind)
	}
	if cfg.NullOnMissing {
		t.Error("NullOnMissing = true, want false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "port zero", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "port too large", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "bad bind", mutate: func(c *Config) { c.Bind = "localhost" }, wantErr: true},
		{name: "good bind", mutate: func(c *Config) { c.Bind = "127.0.0.1" }},
		{name: "bad subnet", mutate: func(c *Config) { c.AllowSubnet = "10.0.0.0" }, wantErr: true},
		{name: "empty database url", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "warn" }, wantErr: true},
		{name: "no connections", mutate: func(c *Config) { c.MaxOpenConns = 0 }, wantErr: true},
		{name: "negative lifetime", mutate: func(c *Config) { c.ConnMaxLifetime = -time.Second }, wantErr: true},
		{name: "bad schedule", mutate: func(c *Config) { c.MaintenanceSchedule = "every day" }, wantErr: true},
		{name: "cron schedule", mutate: func(c *Config) { c.MaintenanceSchedule = "0 3 * * *" }},
		{name: "disabled schedule", mutate: func(c *Config) { c.MaintenanceSchedule = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			_, err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidate_ReturnsSubnet(t *testing.T) {
	cfg := Default()
	cfg.AllowSubnet = "192.168.1.0/24"

	allowedNet, err := cfg.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowedNet == nil || allowedNet.String() != "192.168.1.0/24" {
		t.Fatalf("expected 192.168.1.0/24, got %v", allowedNet)
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Default()
	if got := cfg.ListenAddr(); got != ":8000" {
		t.Errorf("ListenAddr() = %q, want :8000", got)
	}

	cfg.Bind = "::1"
	cfg.Port = 9000
	if got := cfg.ListenAddr(); got != "[::1]:9000" {
		t.Errorf("ListenAddr() = %q, want [::1]:9000", got)
	}
}
