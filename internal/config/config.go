package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Audio    Audio    `mapstructure:"audio"`
	Playback Playback `mapstructure:"playback"`
	Record   Record   `mapstructure:"record"`
	RTC      RTC      `mapstructure:"rtc"`
	Policy   Policy   `mapstructure:"policy"`
}

type Audio struct {
	// DeviceClass wins over DeviceModel when both are set.
	DeviceClass         string  `mapstructure:"device_class"`
	DeviceModel         string  `mapstructure:"device_model"`
	Channels            int     `mapstructure:"channels"`
	DualRouting         bool    `mapstructure:"dual_routing"`
	SpatialDefault      bool    `mapstructure:"spatial_default"`
	ExternalSpatializer bool    `mapstructure:"external_spatializer"`
	MonitorVolume       float32 `mapstructure:"monitor_volume"`
	BroadcastVolume     float32 `mapstructure:"broadcast_volume"`
	Compression         bool    `mapstructure:"compression"`
	EQ                  bool    `mapstructure:"eq"`
	Reverb              bool    `mapstructure:"reverb"`
	ReverbAmount        float32 `mapstructure:"reverb_amount"`
	InboxSize           int     `mapstructure:"inbox_size"`
	MaxQueuedCycles     int     `mapstructure:"max_queued_cycles"`
	// MeterEvery emits a bus level event every N cycles; 0 disables it.
	MeterEvery int `mapstructure:"meter_every"`
	EventQueue int `mapstructure:"event_queue"`
}

type Playback struct {
	Enabled      bool          `mapstructure:"enabled"`
	MasterGain   float32       `mapstructure:"master_gain"`
	BufferCycles int           `mapstructure:"buffer_cycles"`
	Latency      time.Duration `mapstructure:"latency"`
}

type Record struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Queue   int    `mapstructure:"queue"`
}

type RTC struct {
	STUNURLs []string `mapstructure:"stun_urls"`
}

type Policy struct {
	OnOverBudget string        `mapstructure:"on_over_budget"`
	JoinLimit    int           `mapstructure:"join_limit"`
	JoinWindow   time.Duration `mapstructure:"join_window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("audio.device_class", "")
	v.SetDefault("audio.device_model", "")
	v.SetDefault("audio.channels", 2)
	v.SetDefault("audio.dual_routing", true)
	v.SetDefault("audio.spatial_default", false)
	v.SetDefault("audio.external_spatializer", false)
	v.SetDefault("audio.monitor_volume", 1.0)
	v.SetDefault("audio.broadcast_volume", 1.0)
	v.SetDefault("audio.compression", true)
	v.SetDefault("audio.eq", false)
	v.SetDefault("audio.reverb", false)
	v.SetDefault("audio.reverb_amount", 0.2)
	v.SetDefault("audio.inbox_size", 256)
	v.SetDefault("audio.max_queued_cycles", 8)
	v.SetDefault("audio.meter_every", 10)
	v.SetDefault("audio.event_queue", 256)

	v.SetDefault("playback.enabled", false)
	v.SetDefault("playback.master_gain", 1.0)
	v.SetDefault("playback.buffer_cycles", 8)
	v.SetDefault("playback.latency", "40ms")

	v.SetDefault("record.enabled", false)
	v.SetDefault("record.path", "broadcast.wav")
	v.SetDefault("record.queue", 64)

	v.SetDefault("rtc.stun_urls", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("policy.on_over_budget", "warn")
	v.SetDefault("policy.join_limit", 5)
	v.SetDefault("policy.join_window", "10s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). VOICE_*
// environment variables override file values, e.g. VOICE_AUDIO_CHANNELS.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load for an explicit path; a missing file means defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("%w: ping_period %s", ErrInvalid, c.PingPeriod)
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("%w: audio.channels %d", ErrInvalid, c.Audio.Channels)
	}
	if c.Audio.DeviceClass != "" {
		if _, err := domain.ParseDeviceClass(c.Audio.DeviceClass); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	return nil
}

// BusState is the initial bus configured under audio.
func (a Audio) BusState() domain.BusState {
	return domain.BusState{
		MonitorBusVolume:   a.MonitorVolume,
		BroadcastBusVolume: a.BroadcastVolume,
		DualRoutingEnabled: a.DualRouting,
		CompressionEnabled: a.Compression,
		EQEnabled:          a.EQ,
		ReverbEnabled:      a.Reverb,
		ReverbAmount:       a.ReverbAmount,
	}
}
