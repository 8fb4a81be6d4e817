package kvstore_test

import (
	"context"
	"testing"

	"github.com/book-expert/tts-pad/internal/core"
	"github.com/book-expert/tts-pad/internal/kvstore"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJetStream(t *testing.T) nats.JetStreamContext {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		natsServer.Shutdown()
	})

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	return jetstreamContext
}

func TestNatsKeyValueStore_PutGet(t *testing.T) {
	t.Parallel()

	store, err := kvstore.New(newTestJetStream(t), "test-prefs")
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "selectedVoice", []byte("de-DE-ChristophNeural")))
	require.NoError(t, store.Put(ctx, "selectedVoice", []byte("cs-CZ-AntoninNeural")))

	value, err := store.Get(ctx, "selectedVoice")
	require.NoError(t, err)
	assert.Equal(t, "cs-CZ-AntoninNeural", string(value))
}

func TestNatsKeyValueStore_SlotsAreIndependent(t *testing.T) {
	t.Parallel()

	store, err := kvstore.New(newTestJetStream(t), "test-prefs")
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, store.Put(ctx, core.Slot1.TextKey(), []byte("first")))
	require.NoError(t, store.Put(ctx, core.Slot2.TextKey(), []byte("second")))
	require.NoError(t, store.Put(ctx, core.Slot1.TextKey(), []byte("first, edited")))

	first, err := store.Get(ctx, core.Slot1.TextKey())
	require.NoError(t, err)
	second, err := store.Get(ctx, core.Slot2.TextKey())
	require.NoError(t, err)

	assert.Equal(t, "first, edited", string(first))
	assert.Equal(t, "second", string(second))
}

func TestNatsKeyValueStore_MissingKey(t *testing.T) {
	t.Parallel()

	store, err := kvstore.New(newTestJetStream(t), "test-prefs")
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "azureConfig")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestNatsKeyValueStore_RebindsExistingBucket(t *testing.T) {
	t.Parallel()

	jetstreamContext := newTestJetStream(t)

	first, err := kvstore.New(jetstreamContext, "test-prefs")
	require.NoError(t, err)
	require.NoError(t, first.Put(context.Background(), "selectedRate", []byte("+10%")))

	second, err := kvstore.New(jetstreamContext, "test-prefs")
	require.NoError(t, err)

	value, err := second.Get(context.Background(), "selectedRate")
	require.NoError(t, err)
	assert.Equal(t, "+10%", string(value))
}
