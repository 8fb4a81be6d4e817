package settings_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-pad/internal/core"
	"github.com/book-expert/tts-pad/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockStore = errors.New("mock store unavailable")

// mockStore is an in-memory core.KeyValueStore.
type mockStore struct {
	mu      sync.Mutex
	values  map[string][]byte
	failGet bool
}

func newMockStore() *mockStore {
	return &mockStore{values: map[string][]byte{}}
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failGet {
		return nil, errMockStore
	}

	value, ok := m.values[key]
	if !ok {
		return nil, core.ErrNotFound
	}

	return value, nil
}

func (m *mockStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value

	return nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "settings-test.log")
	require.NoError(t, err)

	return testLogger
}

func noEnv(string) (string, bool) { return "", false }

func writeBundled(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_PrefersStore(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	stored, err := json.Marshal(core.Settings{AzureKey: "stored-key", AzureRegion: "northeurope"})
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), settings.KeySettings, stored))

	loader := settings.NewLoader(settings.Options{
		Store:       store,
		Log:         newTestLogger(t),
		BundledPath: writeBundled(t, "config.json", `{"azureKey":"bundled","azureRegion":"westeurope"}`),
		LookupEnv:   noEnv,
	})

	result := loader.Load(context.Background())

	assert.Equal(t, settings.SourceStore, result.Source)
	assert.Equal(t, "stored-key", result.Settings.AzureKey)
	assert.Equal(t, "northeurope", result.Settings.AzureRegion)
	assert.False(t, result.SetupRequired)
}

func TestLoad_CorruptStoreFallsThroughToBundled(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	require.NoError(t, store.Put(context.Background(), settings.KeySettings, []byte("{not json")))

	loader := settings.NewLoader(settings.Options{
		Store: store,
		Log:   newTestLogger(t),
		BundledPath: writeBundled(t, "config.json", `{
			"azureKey": "bundled-key",
			"azureRegion": "westeurope",
			"voices": [{"id": "de-DE-KillianNeural", "name": "Killian", "lang": "de-DE"}]
		}`),
		LookupEnv: noEnv,
	})

	result := loader.Load(context.Background())

	assert.Equal(t, settings.SourceBundled, result.Source)
	assert.Equal(t, "bundled-key", result.Settings.AzureKey)
	require.Len(t, result.Settings.Voices, 1)
	assert.Equal(t, "de-DE-KillianNeural", result.Settings.Voices[0].ID)
}

func TestLoad_StoreErrorFallsThrough(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.failGet = true

	loader := settings.NewLoader(settings.Options{
		Store:     store,
		Log:       newTestLogger(t),
		LookupEnv: noEnv,
	})

	result := loader.Load(context.Background())

	assert.Equal(t, settings.SourceEmpty, result.Source)
	assert.True(t, result.SetupRequired)
}

func TestLoad_BundledYAML(t *testing.T) {
	t.Parallel()

	loader := settings.NewLoader(settings.Options{
		Log: newTestLogger(t),
		BundledPath: writeBundled(t, "config.yaml", `
azureKey: yaml-key
azureRegion: westeurope
voices:
  - id: cs-CZ-VlastaNeural
    name: Vlasta
    lang: cs-CZ
`),
		LookupEnv: noEnv,
	})

	result := loader.Load(context.Background())

	assert.Equal(t, settings.SourceBundled, result.Source)
	assert.Equal(t, "yaml-key", result.Settings.AzureKey)
	assert.Equal(t, []core.Voice{{ID: "cs-CZ-VlastaNeural", Name: "Vlasta", Lang: "cs-CZ"}}, result.Settings.Voices)
}

func TestLoad_BundledWithoutRegionRequiresSetup(t *testing.T) {
	t.Parallel()

	loader := settings.NewLoader(settings.Options{
		Log:         newTestLogger(t),
		BundledPath: writeBundled(t, "config.json", `{"azureKey":"only-key"}`),
		LookupEnv:   noEnv,
	})

	result := loader.Load(context.Background())

	assert.Equal(t, settings.SourceBundled, result.Source)
	assert.True(t, result.SetupRequired)
}

func TestLoad_EnvironmentFallback(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		settings.EnvAzureSpeechKey: "env-key",
	}
	envFile := writeBundled(t, ".env", "AZURE_SPEECH_KEY=file-key\nAZURE_SPEECH_REGION=swedencentral\n")

	loader := settings.NewLoader(settings.Options{
		Log:         newTestLogger(t),
		BundledPath: filepath.Join(t.TempDir(), "missing.json"),
		EnvFile:     envFile,
		LookupEnv: func(name string) (string, bool) {
			value, ok := env[name]

			return value, ok
		},
	})

	result := loader.Load(context.Background())

	assert.Equal(t, settings.SourceEnvironment, result.Source)
	assert.Equal(t, "env-key", result.Settings.AzureKey, "process environment wins over the .env file")
	assert.Equal(t, "swedencentral", result.Settings.AzureRegion)
	assert.False(t, result.SetupRequired)
}

func TestLoad_NothingYieldsEmpty(t *testing.T) {
	t.Parallel()

	loader := settings.NewLoader(settings.Options{
		Store:     newMockStore(),
		Log:       newTestLogger(t),
		EnvFile:   filepath.Join(t.TempDir(), ".env"),
		LookupEnv: noEnv,
	})

	result := loader.Load(context.Background())

	assert.Equal(t, settings.SourceEmpty, result.Source)
	assert.True(t, result.SetupRequired)
	assert.Empty(t, result.Settings.AzureKey)
	assert.NotNil(t, result.Settings.Voices)
	assert.Empty(t, result.Settings.Voices)
}

func TestSave_RoundTrip(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	loader := settings.NewLoader(settings.Options{Store: store, Log: newTestLogger(t), LookupEnv: noEnv})

	saved := core.Settings{AzureKey: "k", AzureRegion: "westeurope", Voices: settings.DefaultVoices}
	require.NoError(t, loader.Save(context.Background(), saved))

	raw, err := store.Get(context.Background(), settings.KeySettings)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"azureKey":"k"`)

	result := loader.Load(context.Background())
	assert.Equal(t, saved, result.Settings)
}

func TestSave_WithoutStore(t *testing.T) {
	t.Parallel()

	loader := settings.NewLoader(settings.Options{Log: newTestLogger(t), LookupEnv: noEnv})

	err := loader.Save(context.Background(), core.Settings{})
	require.ErrorIs(t, err, settings.ErrStoreNotConfigured)
}

func TestResolveVoices(t *testing.T) {
	t.Parallel()

	assert.Equal(t, settings.DefaultVoices, settings.ResolveVoices(core.Settings{}))

	custom := []core.Voice{{ID: "en-GB-RyanNeural", Name: "Ryan", Lang: "en-GB"}}
	assert.Equal(t, custom, settings.ResolveVoices(core.Settings{Voices: custom}))
}
