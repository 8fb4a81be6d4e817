// Package config_test tests the configuration loading for tts-pad.
package config_test

import (
	"testing"
	"time"

	"github.com/book-expert/tts-pad/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[http]
addr = "127.0.0.1:9000"

[nats]
url = "nats://127.0.0.1:4222"
preferences_bucket = "PREFS"
audio_bucket = "AUDIO"
audio_ttl_seconds = 600
actions_subject = "pad.actions"

[azure]
bundled_config = "web/config.json"
timeout_seconds = 15
output_format = "audio-24khz-48kbitrate-mono-mp3"

[ui]
status_revert_ms = 1500

[playback]
mode = "speaker"

[paths]
base_logs_dir = "/var/log/tts-pad"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	require.NoError(t, config.Finalize(&cfg, map[string]string{}))

	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "PREFS", cfg.NATS.PreferencesBucket)
	assert.Equal(t, "AUDIO", cfg.NATS.AudioBucket)
	assert.Equal(t, 10*time.Minute, cfg.NATS.AudioTTL())
	assert.Equal(t, "pad.actions", cfg.NATS.ActionsSubject)
	assert.Equal(t, "web/config.json", cfg.Azure.BundledConfig)
	assert.Equal(t, 15*time.Second, cfg.Azure.Timeout())
	assert.Equal(t, "audio-24khz-48kbitrate-mono-mp3", cfg.Azure.OutputFormat)
	assert.Equal(t, 1500*time.Millisecond, cfg.UI.StatusRevertDelay())
	assert.Equal(t, config.PlaybackSpeaker, cfg.Playback.Mode)
	assert.Equal(t, "/var/log/tts-pad", cfg.Paths.BaseLogsDir)
}

func TestFinalize_Defaults(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	require.NoError(t, config.Finalize(&cfg, map[string]string{}))

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Empty(t, cfg.NATS.URL, "an empty URL selects the embedded server")
	assert.Equal(t, "TTS_PAD_PREFS", cfg.NATS.PreferencesBucket)
	assert.Equal(t, "TTS_PAD_AUDIO", cfg.NATS.AudioBucket)
	assert.Equal(t, "ttspad.actions", cfg.NATS.ActionsSubject)
	assert.Equal(t, time.Hour, cfg.NATS.AudioTTL())
	assert.Equal(t, 4222, cfg.NATS.EmbeddedPort)
	assert.Equal(t, "westeurope", cfg.Azure.DefaultRegion)
	assert.Equal(t, ".env", cfg.Azure.EnvFile)
	assert.Equal(t, 30*time.Second, cfg.Azure.Timeout())
	assert.Equal(t, time.Second, cfg.UI.StatusRevertDelay())
	assert.Equal(t, 3*time.Second, cfg.UI.ToastDuration())
	assert.Equal(t, 300*time.Millisecond, cfg.UI.ToastFade())
	assert.Equal(t, config.PlaybackBrowser, cfg.Playback.Mode)
}

func TestFinalize_EnvironmentOverrides(t *testing.T) {
	t.Parallel()

	cfg := config.Config{HTTP: config.HTTPConfig{Addr: ":1"}}

	err := config.Finalize(&cfg, map[string]string{
		"TTS_PAD_HTTP_ADDR":     ":9999",
		"TTS_PAD_NATS_URL":      "nats://broker:4222",
		"TTS_PAD_PLAYBACK_MODE": "speaker",
		"TTS_PAD_LOGS_DIR":      "/tmp/logs",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, config.PlaybackSpeaker, cfg.Playback.Mode)
	assert.Equal(t, "/tmp/logs", cfg.Paths.BaseLogsDir)
}

func TestFinalize_RejectsUnknownPlaybackMode(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Playback: config.PlaybackConfig{Mode: "radio"}}

	err := config.Finalize(&cfg, map[string]string{})
	require.ErrorIs(t, err, config.ErrUnknownPlaybackMode)
}
