// Package config provides the configuration structure for tts-pad.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/caarlos0/env/v11"
)

// Playback modes.
const (
	PlaybackBrowser = "browser"
	PlaybackSpeaker = "speaker"
)

// Default values.
const (
	defaultHTTPAddr          = ":8080"
	defaultPreferencesBucket = "TTS_PAD_PREFS"
	defaultAudioBucket       = "TTS_PAD_AUDIO"
	defaultAudioTTLSeconds   = 3600
	defaultEmbeddedPort      = 4222
	defaultActionsSubject    = "ttspad.actions"
	defaultTimeoutSeconds    = 30
	defaultRegion            = "westeurope"
	defaultStatusRevertMS    = 1000
	defaultToastDurationMS   = 3000
	defaultToastFadeMS       = 300
	defaultEnvFile           = ".env"
)

// ErrUnknownPlaybackMode indicates a playback mode other than browser or speaker.
var ErrUnknownPlaybackMode = errors.New("unknown playback mode")

// HTTPConfig holds the configuration of the web surface.
type HTTPConfig struct {
	Addr string `env:"TTS_PAD_HTTP_ADDR" toml:"addr"`
}

// NATSConfig holds the configuration for NATS.
// An empty URL starts an embedded server on EmbeddedPort storing its data under StoreDir.
type NATSConfig struct {
	URL               string `env:"TTS_PAD_NATS_URL" toml:"url"`
	StoreDir          string `toml:"store_dir"`
	EmbeddedPort      int    `toml:"embedded_port"`
	PreferencesBucket string `toml:"preferences_bucket"`
	AudioBucket       string `toml:"audio_bucket"`
	AudioTTLSeconds   int    `toml:"audio_ttl_seconds"`
	ActionsSubject    string `toml:"actions_subject"`
}

// AzureConfig holds the speech provider settings that are not credentials.
type AzureConfig struct {
	BundledConfig  string `toml:"bundled_config"`
	EnvFile        string `toml:"env_file"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	OutputFormat   string `toml:"output_format"`
	DefaultRegion  string `toml:"default_region"`
}

// UIConfig holds the feedback timings.
type UIConfig struct {
	StatusRevertMS  int `toml:"status_revert_ms"`
	ToastDurationMS int `toml:"toast_duration_ms"`
	ToastFadeMS     int `toml:"toast_fade_ms"`
}

// PlaybackConfig selects where synthesized audio is played.
type PlaybackConfig struct {
	Mode string `env:"TTS_PAD_PLAYBACK_MODE" toml:"mode"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `env:"TTS_PAD_LOGS_DIR" toml:"base_logs_dir"`
	DataDir     string `env:"TTS_PAD_DATA_DIR" toml:"data_dir"`
}

// Config is the root configuration structure.
type Config struct {
	HTTP     HTTPConfig     `toml:"http"`
	NATS     NATSConfig     `toml:"nats"`
	Azure    AzureConfig    `toml:"azure"`
	UI       UIConfig       `toml:"ui"`
	Playback PlaybackConfig `toml:"playback"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration for tts-pad.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	err = Finalize(&cfg, nil)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Finalize applies environment overrides and defaults, then validates.
// A nil environ reads the process environment.
func Finalize(cfg *Config, environ map[string]string) error {
	err := env.ParseWithOptions(cfg, env.Options{Environment: environ})
	if err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.ApplyDefaults()

	return cfg.Validate()
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	setDefault(&c.HTTP.Addr, defaultHTTPAddr)
	setDefault(&c.NATS.PreferencesBucket, defaultPreferencesBucket)
	setDefault(&c.NATS.AudioBucket, defaultAudioBucket)
	setDefault(&c.NATS.ActionsSubject, defaultActionsSubject)
	setDefault(&c.Azure.DefaultRegion, defaultRegion)
	setDefault(&c.Azure.EnvFile, defaultEnvFile)
	setDefault(&c.Playback.Mode, PlaybackBrowser)

	if c.NATS.EmbeddedPort == 0 {
		c.NATS.EmbeddedPort = defaultEmbeddedPort
	}

	if c.NATS.AudioTTLSeconds <= 0 {
		c.NATS.AudioTTLSeconds = defaultAudioTTLSeconds
	}

	if c.Azure.TimeoutSeconds <= 0 {
		c.Azure.TimeoutSeconds = defaultTimeoutSeconds
	}

	if c.UI.StatusRevertMS <= 0 {
		c.UI.StatusRevertMS = defaultStatusRevertMS
	}

	if c.UI.ToastDurationMS <= 0 {
		c.UI.ToastDurationMS = defaultToastDurationMS
	}

	if c.UI.ToastFadeMS <= 0 {
		c.UI.ToastFadeMS = defaultToastFadeMS
	}
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	switch c.Playback.Mode {
	case PlaybackBrowser, PlaybackSpeaker:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPlaybackMode, c.Playback.Mode)
	}
}

// AudioTTL is the lifetime of a synthesized clip in the object store.
func (c *NATSConfig) AudioTTL() time.Duration {
	return time.Duration(c.AudioTTLSeconds) * time.Second
}

// Timeout bounds one provider round trip.
func (c *AzureConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StatusRevertDelay is how long a success status stays before reverting to ready.
func (c *UIConfig) StatusRevertDelay() time.Duration {
	return time.Duration(c.StatusRevertMS) * time.Millisecond
}

// ToastDuration is how long a toast stays fully visible.
func (c *UIConfig) ToastDuration() time.Duration {
	return time.Duration(c.ToastDurationMS) * time.Millisecond
}

// ToastFade is the length of the fade-out animation.
func (c *UIConfig) ToastFade() time.Duration {
	return time.Duration(c.ToastFadeMS) * time.Millisecond
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
