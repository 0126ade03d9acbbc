package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 2, cfg.Audio.Channels)
	assert.Equal(t, "warn", cfg.Policy.OnOverBudget)
	assert.Equal(t, 10*time.Second, cfg.Policy.JoinWindow)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.RTC.STUNURLs)
	assert.Equal(t, domain.DefaultBusState(), cfg.Audio.BusState())
}

func TestLoadFile_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: debug
port: 9000
audio:
  device_class: xr-tier3
  channels: 1
  monitor_volume: 0.5
record:
  enabled: true
  path: /tmp/out.wav
`), 0o600))
	t.Setenv("VOICE_AUDIO_DUAL_ROUTING", "false")
	t.Setenv("VOICE_PORT", "9100")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "xr-tier3", cfg.Audio.DeviceClass)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, float32(0.5), cfg.Audio.MonitorVolume)
	assert.False(t, cfg.Audio.DualRouting)
	assert.True(t, cfg.Record.Enabled)
	assert.Equal(t, "/tmp/out.wav", cfg.Record.Path)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Port: 8080, PingPeriod: time.Second, Audio: Audio{Channels: 2}}
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"bad port", func(c *Config) { c.Port = 0 }, false},
		{"bad ping", func(c *Config) { c.PingPeriod = 0 }, false},
		{"three channels", func(c *Config) { c.Audio.Channels = 3 }, false},
		{"unknown class", func(c *Config) { c.Audio.DeviceClass = "toaster" }, false},
		{"known class", func(c *Config) { c.Audio.DeviceClass = "mobile" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}
