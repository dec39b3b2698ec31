// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/book-expert/dashscope-tts/internal/objectstore"
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

func newStore(t *testing.T, bucket string) (*objectstore.NatsObjectStore, nats.JetStreamContext) {
	t.Helper()

	natsServer, natsConnection := StartTestServer(t)
	t.Cleanup(natsServer.Shutdown)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, bucket)
	require.NoError(t, err)

	return store, jetstreamContext
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "test-bucket")
	ctx := context.Background()
	uploadData := []byte("hello world, this is a test")

	err := store.Upload(ctx, "my-test-object", uploadData)
	require.NoError(t, err)

	downloadData, err := store.Download(ctx, "my-test-object")
	require.NoError(t, err)
	require.Equal(t, uploadData, downloadData)
}

func TestNatsObjectStore_UploadStream(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "stream-bucket")
	ctx := context.Background()

	reader, writer := io.Pipe()

	go func() {
		for _, chunk := range []string{"ID3", "-frame-1", "-frame-2"} {
			_, _ = writer.Write([]byte(chunk))
		}

		_ = writer.Close()
	}()

	err := store.UploadStream(ctx, "speech.mp3", reader)
	require.NoError(t, err)

	data, err := store.Download(ctx, "speech.mp3")
	require.NoError(t, err)
	require.Equal(t, []byte("ID3-frame-1-frame-2"), data)
}

func TestNatsObjectStore_UploadStreamReaderError(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "broken-bucket")
	ctx := context.Background()
	errSynthesis := errors.New("synthesis failed")

	reader, writer := io.Pipe()

	go func() {
		_, _ = writer.Write([]byte("partial"))
		_ = writer.CloseWithError(errSynthesis)
	}()

	err := store.UploadStream(ctx, "speech.mp3", reader)
	require.ErrorIs(t, err, errSynthesis)

	_, err = store.Download(ctx, "speech.mp3")
	require.Error(t, err)
}

func TestNew_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	store, jetstreamContext := newStore(t, "shared-bucket")

	err := store.Upload(context.Background(), "key", []byte("v1"))
	require.NoError(t, err)

	again, err := objectstore.New(jetstreamContext, "shared-bucket")
	require.NoError(t, err)

	data, err := again.Download(context.Background(), "key")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), data)
}
