package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Upstream: UpstreamConfig{
			WebSocketURL: "ws://localhost:8000/ws",
		},
	}
}

// TestValidateDefaults tests that validation fills unset fields with
// their documented defaults.
func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	if cfg.Upstream.RequestTimeoutMs != 5000 {
		t.Errorf("Expected default request timeout 5000, got %d", cfg.Upstream.RequestTimeoutMs)
	}
	if cfg.Upstream.ReconnectInitialDelayMs != 1000 {
		t.Errorf("Expected default initial delay 1000, got %d", cfg.Upstream.ReconnectInitialDelayMs)
	}
	if cfg.Upstream.ReconnectMaxDelayMs != 30000 {
		t.Errorf("Expected default max delay 30000, got %d", cfg.Upstream.ReconnectMaxDelayMs)
	}
	if cfg.Upstream.ReconnectMultiplier != 2.0 {
		t.Errorf("Expected default multiplier 2.0, got %f", cfg.Upstream.ReconnectMultiplier)
	}
	if cfg.Interpolation.DurationMs != 1000 {
		t.Errorf("Expected default interpolation duration 1000, got %d", cfg.Interpolation.DurationMs)
	}
	if cfg.Interpolation.FrameIntervalMs != 16 {
		t.Errorf("Expected default frame interval 16, got %d", cfg.Interpolation.FrameIntervalMs)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected default host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Storage.MaxPositionsInAPI != 500 {
		t.Errorf("Expected default max positions 500, got %d", cfg.Storage.MaxPositionsInAPI)
	}
}

// TestValidateRejections tests configurations that must fail validation.
func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing port", func(c *Config) { c.Server.Port = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"missing upstream url", func(c *Config) { c.Upstream.WebSocketURL = "" }},
		{"fallback without base url", func(c *Config) { c.Upstream.EnableHTTPFallback = true }},
		{"jitter above one", func(c *Config) { c.Upstream.ReconnectJitterFraction = 1.5 }},
		{"negative jitter", func(c *Config) { c.Upstream.ReconnectJitterFraction = -0.1 }},
		{"max delay below initial", func(c *Config) {
			c.Upstream.ReconnectInitialDelayMs = 5000
			c.Upstream.ReconnectMaxDelayMs = 1000
		}},
		{"frame longer than window", func(c *Config) {
			c.Interpolation.DurationMs = 100
			c.Interpolation.FrameIntervalMs = 200
		}},
		{"storage without path", func(c *Config) { c.Storage.Enabled = true }},
		{"bad latitude", func(c *Config) { c.Station.Latitude = 91 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := validConfig()
			c.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation to fail")
			}
		})
	}
}

// TestLoadWithFallback tests the config search path.
func TestLoadWithFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[server]
port = 9090

[upstream]
websocket_url = "ws://example:8000/ws"
request_timeout_ms = 2500

[interpolation]
enabled = true
duration_ms = 800
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Upstream.RequestTimeout() != 2500*time.Millisecond {
		t.Errorf("Expected request timeout 2.5s, got %s", cfg.Upstream.RequestTimeout())
	}
	if cfg.Interpolation.InterpolationDuration() != 800*time.Millisecond {
		t.Errorf("Expected interpolation window 800ms, got %s", cfg.Interpolation.InterpolationDuration())
	}

	t.Run("Missing file fails", func(t *testing.T) {
		if _, err := LoadWithFallback(filepath.Join(dir, "nope.toml")); err == nil {
			t.Error("Expected error for missing config")
		}
	})
}
