// Package settings resolves the operator configuration: credentials and the voice list.
//
// Sources are tried in order: the persisted preference store, the bundled
// configuration resource, the process environment (optionally seeded from a
// .env file) and finally an empty configuration that requires setup. A
// source that cannot be read or parsed is logged and treated as absent.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-pad/internal/core"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Persisted storage keys.
const (
	KeySettings      = "azureConfig"
	KeySelectedVoice = "selectedVoice"
	KeySelectedRate  = "selectedRate"
)

// Environment variable names for the credential fallback.
const (
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
)

const (
	extYAML = ".yaml"
	extYML  = ".yml"
)

// Source names where the settings came from.
type Source string

// Settings sources.
const (
	SourceStore       Source = "store"
	SourceBundled     Source = "bundled"
	SourceEnvironment Source = "environment"
	SourceEmpty       Source = "empty"
)

// Log messages.
const (
	logFmtStoreReadFailed     = "Failed to read persisted settings: %v"
	logFmtStoreParseFailed    = "Failed to parse persisted settings: %v"
	logFmtBundledReadFailed   = "Could not read bundled configuration %s: %v"
	logFmtBundledParseFailed  = "Failed to parse bundled configuration %s: %v"
	logFmtEnvFileReadFailed   = "Could not read environment file %s: %v"
	logFmtSettingsLoaded      = "Settings loaded from %s (key present: %t, region: %q, voices: %d)"
	logNoSettingsFound        = "No settings found, setup is required"
	errFmtFailedToEncode      = "failed to encode settings: %w"
	errFmtFailedToPersist     = "failed to persist settings: %w"
	errStoreNotConfiguredText = "settings store is not configured"
)

// ErrStoreNotConfigured is returned by Save when the loader has no store.
var ErrStoreNotConfigured = errors.New(errStoreNotConfiguredText)

// DefaultVoices is used when the configuration carries no voice list.
var DefaultVoices = []core.Voice{
	{ID: "de-DE-ChristophNeural", Name: "German - Christoph", Lang: "de-DE"},
	{ID: "cs-CZ-AntoninNeural", Name: "Czech - Antonín", Lang: "cs-CZ"},
	{ID: "en-US-GuyNeural", Name: "English - Guy", Lang: "en-US"},
}

// Result is the outcome of Load.
type Result struct {
	Settings      core.Settings
	Source        Source
	SetupRequired bool
}

// Loader reads and writes the settings.
type Loader struct {
	store       core.KeyValueStore
	log         *logger.Logger
	lookupEnv   func(string) (string, bool)
	bundledPath string
	envFile     string
}

// Options configures a Loader. Store may be nil for read-only use.
type Options struct {
	Store       core.KeyValueStore
	Log         *logger.Logger
	BundledPath string
	EnvFile     string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// NewLoader creates a settings loader.
func NewLoader(opts Options) *Loader {
	lookupEnv := opts.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	return &Loader{
		store:       opts.Store,
		log:         opts.Log,
		lookupEnv:   lookupEnv,
		bundledPath: opts.BundledPath,
		envFile:     opts.EnvFile,
	}
}

// Load resolves the settings. It never fails; missing or corrupt sources fall through.
func (l *Loader) Load(ctx context.Context) Result {
	settings, ok := l.fromStore(ctx)
	source := SourceStore

	if !ok {
		settings, ok = l.fromBundled()
		source = SourceBundled
	}

	if !ok {
		settings, ok = l.fromEnvironment()
		source = SourceEnvironment
	}

	if !ok {
		l.log.Info(logNoSettingsFound)

		return Result{
			Settings:      core.Settings{Voices: []core.Voice{}},
			Source:        SourceEmpty,
			SetupRequired: true,
		}
	}

	l.log.Info(logFmtSettingsLoaded, source, settings.AzureKey != "", settings.AzureRegion, len(settings.Voices))

	return Result{
		Settings:      settings,
		Source:        source,
		SetupRequired: !settings.Credentials().Complete(),
	}
}

// Save persists the settings as JSON.
func (l *Loader) Save(ctx context.Context, settings core.Settings) error {
	if l.store == nil {
		return ErrStoreNotConfigured
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf(errFmtFailedToEncode, err)
	}

	err = l.store.Put(ctx, KeySettings, data)
	if err != nil {
		return fmt.Errorf(errFmtFailedToPersist, err)
	}

	return nil
}

// ResolveVoices returns the configured voices, or the defaults when none are configured.
func ResolveVoices(settings core.Settings) []core.Voice {
	source := settings.Voices
	if len(source) == 0 {
		source = DefaultVoices
	}

	voices := make([]core.Voice, len(source))
	copy(voices, source)

	return voices
}

func (l *Loader) fromStore(ctx context.Context) (core.Settings, bool) {
	if l.store == nil {
		return core.Settings{}, false
	}

	data, err := l.store.Get(ctx, KeySettings)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			l.log.Warn(logFmtStoreReadFailed, err)
		}

		return core.Settings{}, false
	}

	var settings core.Settings

	err = json.Unmarshal(data, &settings)
	if err != nil {
		l.log.Error(logFmtStoreParseFailed, err)

		return core.Settings{}, false
	}

	return settings, true
}

func (l *Loader) fromBundled() (core.Settings, bool) {
	if l.bundledPath == "" {
		return core.Settings{}, false
	}

	data, err := os.ReadFile(l.bundledPath)
	if err != nil {
		l.log.Warn(logFmtBundledReadFailed, l.bundledPath, err)

		return core.Settings{}, false
	}

	settings, err := parseBundled(l.bundledPath, data)
	if err != nil {
		l.log.Error(logFmtBundledParseFailed, l.bundledPath, err)

		return core.Settings{}, false
	}

	return settings, true
}

func (l *Loader) fromEnvironment() (core.Settings, bool) {
	fileValues := map[string]string{}

	if l.envFile != "" {
		values, err := godotenv.Read(l.envFile)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				l.log.Warn(logFmtEnvFileReadFailed, l.envFile, err)
			}
		} else {
			fileValues = values
		}
	}

	lookup := func(name string) string {
		value, ok := l.lookupEnv(name)
		if ok && value != "" {
			return strings.TrimSpace(value)
		}

		return strings.TrimSpace(fileValues[name])
	}

	key := lookup(EnvAzureSpeechKey)
	region := lookup(EnvAzureSpeechRegion)

	if key == "" && region == "" {
		return core.Settings{}, false
	}

	return core.Settings{AzureKey: key, AzureRegion: region, Voices: []core.Voice{}}, true
}

func parseBundled(path string, data []byte) (core.Settings, error) {
	var settings core.Settings

	switch strings.ToLower(filepath.Ext(path)) {
	case extYAML, extYML:
		err := yaml.Unmarshal(data, &settings)
		if err != nil {
			return core.Settings{}, fmt.Errorf("failed to unmarshal YAML: %w", err)
		}
	default:
		err := json.Unmarshal(data, &settings)
		if err != nil {
			return core.Settings{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
		}
	}

	return settings, nil
}
