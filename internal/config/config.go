package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server        ServerConfig        `toml:"server"`        // HTTP/WebSocket server settings
	Upstream      UpstreamConfig      `toml:"upstream"`      // Upstream real-time feed settings
	Interpolation InterpolationConfig `toml:"interpolation"` // Position smoothing settings
	Broadcast     BroadcastConfig     `toml:"broadcast"`     // Downstream delta broadcast settings
	Storage       StorageConfig       `toml:"storage"`       // Track history persistence settings
	Logging       LoggingConfig       `toml:"logging"`       // Application logging settings
	Station       StationConfig       `toml:"station"`       // Reference station settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, recommended for streaming)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// UpstreamConfig contains settings for the upstream real-time aircraft feed
type UpstreamConfig struct {
	WebSocketURL string `toml:"websocket_url"` // URL of the upstream WebSocket feed (e.g., ws://host:port/ws)
	HTTPBaseURL  string `toml:"http_base_url"` // Base URL for the REST fallback (e.g., http://host:port/api/v1)

	// Request/response correlation settings
	RequestTimeoutMs   int  `toml:"request_timeout_ms"`   // Timeout for a correlated request before falling back or failing (default: 5000)
	EnableHTTPFallback bool `toml:"enable_http_fallback"` // Satisfy timed-out socket requests via the REST endpoint instead of failing

	// Reconnection backoff settings
	ReconnectInitialDelayMs int     `toml:"reconnect_initial_delay_ms"` // Initial reconnect delay in milliseconds (default: 1000)
	ReconnectMaxDelayMs     int     `toml:"reconnect_max_delay_ms"`     // Maximum reconnect delay in milliseconds (default: 30000)
	ReconnectMultiplier     float64 `toml:"reconnect_multiplier"`       // Backoff multiplier applied per attempt (default: 2.0)
	ReconnectJitterFraction float64 `toml:"reconnect_jitter_fraction"`  // Random jitter fraction added to each delay, 0.0-1.0 (default: 0.25)
	ReconnectMaxAttempts    int     `toml:"reconnect_max_attempts"`     // Maximum reconnect attempts (0 = unbounded)

	// REST fallback cache settings
	CacheSize       int `toml:"cache_size"`           // Maximum number of cached GET responses (default: 128)
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`    // TTL for cached GET responses in seconds (default: 10)
	HTTPTimeoutSecs int `toml:"http_timeout_seconds"` // HTTP client timeout for fallback requests (default: 10)
}

// InterpolationConfig contains settings for position smoothing between updates
type InterpolationConfig struct {
	Enabled         bool `toml:"enabled"`           // Enable smoothed interpolation (false = display raw targets directly)
	DurationMs      int  `toml:"duration_ms"`       // Interpolation window in milliseconds; should match the upstream update cadence (default: 1000)
	FrameIntervalMs int  `toml:"frame_interval_ms"` // How often the interpolation loop recomputes displayed positions (default: 16, ~60 Hz)
}

// BroadcastConfig contains settings for downstream delta broadcasting
type BroadcastConfig struct {
	IntervalMs int `toml:"interval_ms"` // How often deltas are diffed and pushed to downstream clients (default: 1000)
}

// StorageConfig contains track history persistence configuration
type StorageConfig struct {
	Enabled           bool   `toml:"enabled"`              // Enable SQLite track history persistence
	SQLitePath        string `toml:"sqlite_path"`          // Path to the SQLite database file
	MaxPositionsInAPI int    `toml:"max_positions_in_api"` // Maximum number of positions to return in the history API response (default: 500)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StationConfig contains the reference station location, used for distance
// and magnetic variation enrichment in API responses
type StationConfig struct {
	Latitude      float64 `toml:"latitude"`       // Latitude of the station in decimal degrees
	Longitude     float64 `toml:"longitude"`      // Longitude of the station in decimal degrees
	ElevationFeet int     `toml:"elevation_feet"` // Elevation of the station above sea level in feet
}

// Load loads the configuration from the given path
func Load(path string) (*Config, error) {
	var config Config
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and applies defaults for unset fields
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}

	// Validate upstream config
	if c.Upstream.WebSocketURL == "" {
		return fmt.Errorf("upstream websocket_url is required")
	}
	if c.Upstream.EnableHTTPFallback && c.Upstream.HTTPBaseURL == "" {
		return fmt.Errorf("upstream http_base_url is required when enable_http_fallback is set")
	}
	if c.Upstream.RequestTimeoutMs <= 0 {
		c.Upstream.RequestTimeoutMs = 5000
	}
	if c.Upstream.ReconnectInitialDelayMs <= 0 {
		c.Upstream.ReconnectInitialDelayMs = 1000
	}
	if c.Upstream.ReconnectMaxDelayMs <= 0 {
		c.Upstream.ReconnectMaxDelayMs = 30000
	}
	if c.Upstream.ReconnectMaxDelayMs < c.Upstream.ReconnectInitialDelayMs {
		return fmt.Errorf("reconnect_max_delay_ms (%d) must be >= reconnect_initial_delay_ms (%d)",
			c.Upstream.ReconnectMaxDelayMs, c.Upstream.ReconnectInitialDelayMs)
	}
	if c.Upstream.ReconnectMultiplier <= 1.0 {
		c.Upstream.ReconnectMultiplier = 2.0
	}
	if c.Upstream.ReconnectJitterFraction < 0 || c.Upstream.ReconnectJitterFraction > 1 {
		return fmt.Errorf("reconnect_jitter_fraction must be between 0.0 and 1.0, got %f", c.Upstream.ReconnectJitterFraction)
	}
	if c.Upstream.CacheSize <= 0 {
		c.Upstream.CacheSize = 128
	}
	if c.Upstream.CacheTTLSeconds <= 0 {
		c.Upstream.CacheTTLSeconds = 10
	}
	if c.Upstream.HTTPTimeoutSecs <= 0 {
		c.Upstream.HTTPTimeoutSecs = 10
	}

	// Validate interpolation config
	if c.Interpolation.DurationMs <= 0 {
		c.Interpolation.DurationMs = 1000
	}
	if c.Interpolation.FrameIntervalMs <= 0 {
		c.Interpolation.FrameIntervalMs = 16
	}
	if c.Interpolation.FrameIntervalMs > c.Interpolation.DurationMs {
		return fmt.Errorf("frame_interval_ms (%d) must not exceed duration_ms (%d)",
			c.Interpolation.FrameIntervalMs, c.Interpolation.DurationMs)
	}

	// Validate broadcast config
	if c.Broadcast.IntervalMs <= 0 {
		c.Broadcast.IntervalMs = 1000
	}

	// Validate storage config
	if c.Storage.Enabled && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage sqlite_path is required when storage is enabled")
	}
	if c.Storage.MaxPositionsInAPI <= 0 {
		c.Storage.MaxPositionsInAPI = 500
	}

	// Validate station config
	if c.Station.Latitude < -90 || c.Station.Latitude > 90 {
		return fmt.Errorf("invalid station latitude: %f", c.Station.Latitude)
	}
	if c.Station.Longitude < -180 || c.Station.Longitude > 180 {
		return fmt.Errorf("invalid station longitude: %f", c.Station.Longitude)
	}

	// Validate logging config
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// RequestTimeout returns the correlated request timeout as a duration
func (c *UpstreamConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// InterpolationDuration returns the interpolation window as a duration
func (c *InterpolationConfig) InterpolationDuration() time.Duration {
	return time.Duration(c.DurationMs) * time.Millisecond
}

// FrameInterval returns the interpolation frame interval as a duration
func (c *InterpolationConfig) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}
