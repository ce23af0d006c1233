package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Source looks up raw configuration values by key
type Source interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads values from the process environment
type EnvSource struct{}

// Lookup implements Source
func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapSource serves values from a map, mostly useful in tests
type MapSource map[string]string

// Lookup implements Source
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Loader provides typed access to settings with default values
type Loader struct {
	src Source
}

// NewLoader creates a new settings loader
func NewLoader(src Source) *Loader {
	return &Loader{src: src}
}

func (l *Loader) get(key string) string {
	if l == nil || l.src == nil {
		return ""
	}
	val, _ := l.src.Lookup(key)
	return strings.TrimSpace(val)
}

// Has reports whether key is set to a non-empty value
func (l *Loader) Has(key string) bool {
	return l.get(key) != ""
}

// Int retrieves an integer setting, returning defaultVal if not found or invalid
func (l *Loader) Int(key string, defaultVal int) int {
	if val := l.get(key); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			return v
		}
	}
	return defaultVal
}

// Bool retrieves a boolean setting, returning defaultVal if not found or invalid.
// Accepts the forms understood by strconv.ParseBool.
func (l *Loader) Bool(key string, defaultVal bool) bool {
	if val := l.get(key); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			return v
		}
	}
	return defaultVal
}

// String retrieves a string setting, returning defaultVal if not found or empty
func (l *Loader) String(key, defaultVal string) string {
	if val := l.get(key); val != "" {
		return val
	}
	return defaultVal
}

// Duration retrieves a duration setting, returning defaultVal if not found or invalid
// Expects the value to be in Go duration format (e.g., "1h30m", "5s")
func (l *Loader) Duration(key string, defaultVal time.Duration) time.Duration {
	if val := l.get(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
