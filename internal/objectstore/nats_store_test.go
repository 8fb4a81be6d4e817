// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/book-expert/tts-pad/internal/core"
	"github.com/book-expert/tts-pad/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-memory NATS server for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
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

	return natsServer, natsConnection
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	// 1. Setup
	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "test-audio", time.Hour)
	require.NoError(t, err)

	// 2. Test Data
	ctx := context.Background()
	key := "clip.mp3"
	uploadData := []byte("ID3 pretend this is audio")

	// 3. Upload
	err = store.Upload(ctx, key, uploadData)
	require.NoError(t, err)

	// 4. Download
	downloadData, err := store.Download(ctx, key)
	require.NoError(t, err)

	// 5. Assert
	require.Equal(t, uploadData, downloadData)
}

func TestNatsObjectStore_MissingObject(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "test-audio", 0)
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "missing.mp3")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestNatsObjectStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	first, err := objectstore.New(jetstreamContext, "shared-audio", time.Hour)
	require.NoError(t, err)
	require.NoError(t, first.Upload(context.Background(), "a.mp3", []byte("a")))

	second, err := objectstore.New(jetstreamContext, "shared-audio", time.Hour)
	require.NoError(t, err)

	data, err := second.Download(context.Background(), "a.mp3")
	require.NoError(t, err)
	require.Equal(t, []byte("a"), data)
}
