package config

import (
	"os"
	"strconv"
	"time"
)

// StreamConfig holds tuning for the connection registry and room directory.
type StreamConfig struct {
	HeartbeatInterval time.Duration // keep-alive frame period per connection
	ReaperInterval    time.Duration // registry sweep period
	StaleAfter        time.Duration // lastSeenAt age at which a connection is reaped
	ConnectWindow     time.Duration // rolling window for admission rate limiting
	ConnectCeiling    int           // max admissions per user within ConnectWindow
}

// DefaultConfig returns the default stream configuration.
func DefaultConfig() *StreamConfig {
	return &StreamConfig{
		HeartbeatInterval: 60 * time.Second,
		ReaperInterval:    2 * time.Minute,
		StaleAfter:        10 * time.Minute,
		ConnectWindow:     60 * time.Second,
		ConnectCeiling:    25,
	}
}

// ConfigFromEnv loads stream configuration from environment variables.
// Falls back to defaults for any missing or unparseable values.
func ConfigFromEnv() *StreamConfig {
	cfg := DefaultConfig()

	if v := os.Getenv("STREAM_HEARTBEAT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HeartbeatInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("STREAM_REAPER_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ReaperInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("STREAM_STALE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StaleAfter = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("STREAM_CONNECT_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ConnectWindow = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("STREAM_CONNECT_CEILING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ConnectCeiling = n
		}
	}
	return cfg
}
