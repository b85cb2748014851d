package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ":8081", cfg.Signal.Address)
	assert.Equal(t, "local", cfg.Transport.Backend)
	assert.Equal(t, 3*time.Second, cfg.Recording.LeadTime)
	assert.NotEmpty(t, cfg.Recording.MimePreferences)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such-file.yaml"))
	assert.NoError(t, err)
	assert.Equal(t, DefaultConfig().Signal.Address, cfg.Signal.Address)
}

func TestLoadFromFile(t *testing.T) {
	yaml := `
signal:
  address: ":9999"
recording:
  lead_time: 5s
  countdown_tick: 100ms
transport:
  backend: relay
  relay_url: "ws://relay.example.com/ws"
logging:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Signal.Address)
	assert.Equal(t, 5*time.Second, cfg.Recording.LeadTime)
	assert.Equal(t, 100*time.Millisecond, cfg.Recording.CountdownTick)
	assert.Equal(t, "relay", cfg.Transport.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Values absent from the file keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Signal.PingInterval)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("signal:\n  address: \"\"\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty address", func(c *Config) { c.Signal.Address = "" }, true},
		{"zero ping interval", func(c *Config) { c.Signal.PingInterval = 0 }, true},
		{"zero lead time", func(c *Config) { c.Recording.LeadTime = 0 }, true},
		{"no mime preferences", func(c *Config) { c.Recording.MimePreferences = nil }, true},
		{"unknown backend", func(c *Config) { c.Transport.Backend = "carrier-pigeon" }, true},
		{"relay without url", func(c *Config) {
			c.Transport.Backend = "relay"
			c.Transport.RelayURL = ""
		}, true},
		{"inverted port range", func(c *Config) {
			c.WebRTC.PortRange.Min = 50000
			c.WebRTC.PortRange.Max = 40000
		}, true},
		{"half port range", func(c *Config) { c.WebRTC.PortRange.Min = 50000 }, true},
		{"persistence without base url", func(c *Config) {
			c.Persistence.Enabled = true
			c.Persistence.BaseURL = ""
		}, true},
		{"redis without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}, true},
		{"rate limiting without burst", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.Burst = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAMSYNC_SIGNAL_ADDRESS", ":7777")
	t.Setenv("CAMSYNC_RELAY_URL", "ws://override.example.com/ws")
	t.Setenv("CAMSYNC_LOG_LEVEL", "warn")
	t.Setenv("CAMSYNC_REDIS_ADDRESS", "redis.internal:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Signal.Address)
	assert.Equal(t, "ws://override.example.com/ws", cfg.Transport.RelayURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Address)
}
