package config

import "time"

// TimeoutConfig holds timeout settings for the HTTP server.
type TimeoutConfig struct {
	// Read is the time allowed to read a request including its body. Default: 15s
	Read time.Duration

	// Idle is how long keep-alive connections wait for the next request. Default: 120s
	Idle time.Duration

	// Request bounds handler execution through chi's Timeout middleware. Default: 60s
	Request time.Duration

	// Shutdown bounds graceful shutdown. Default: 30s
	Shutdown time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Read:     15 * time.Second,
		Idle:     120 * time.Second,
		Request:  60 * time.Second,
		Shutdown: 30 * time.Second,
	}
}
