// Package broker connects tts-pad to NATS, starting an embedded server when no URL is configured.
package broker

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const (
	clientName     = "tts-pad"
	readyTimeout   = 10 * time.Second
	embeddedHost   = "127.0.0.1"
	maxPayloadSize = 8 * 1024 * 1024
)

// ErrNotReady indicates that the embedded server did not accept connections in time.
var ErrNotReady = errors.New("embedded NATS server failed to start within timeout")

// Options configures the connection.
type Options struct {
	Log *logger.Logger
	// URL of an external server. Empty starts an embedded server.
	URL string
	// StoreDir is the JetStream directory of the embedded server.
	StoreDir string
	// Port of the embedded server; -1 picks a random port.
	Port int
}

// Broker is a NATS connection with JetStream, and the embedded server if one was started.
type Broker struct {
	server           *server.Server
	natsConnection   *nats.Conn
	jetstreamContext nats.JetStreamContext
	log              *logger.Logger
	closed           chan struct{}
}

// Start connects to NATS.
func Start(opts Options) (*Broker, error) {
	broker := &Broker{log: opts.Log, closed: make(chan struct{})}
	url := opts.URL

	if url == "" {
		embedded, err := startEmbedded(opts)
		if err != nil {
			return nil, err
		}

		broker.server = embedded
		url = embedded.ClientURL()
	}

	natsConnection, err := nats.Connect(url,
		nats.Name(clientName),
		nats.ClosedHandler(func(*nats.Conn) { close(broker.closed) }),
	)
	if err != nil {
		broker.shutdownServer()

		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()
		broker.shutdownServer()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	broker.natsConnection = natsConnection
	broker.jetstreamContext = jetstreamContext

	opts.Log.Info("Connected to NATS at %s (embedded: %t)", url, broker.server != nil)

	return broker, nil
}

// Conn returns the NATS connection.
func (b *Broker) Conn() *nats.Conn {
	return b.natsConnection
}

// JetStream returns the JetStream context.
func (b *Broker) JetStream() nats.JetStreamContext {
	return b.jetstreamContext
}

// ClientURL is the URL clients use to reach the server.
func (b *Broker) ClientURL() string {
	return b.natsConnection.ConnectedUrl()
}

// Close drains the connection and stops the embedded server.
func (b *Broker) Close() error {
	var drainErr error

	if b.natsConnection != nil {
		err := b.natsConnection.Drain()
		switch {
		case errors.Is(err, nats.ErrConnectionClosed):
		case err != nil:
			drainErr = fmt.Errorf("failed to drain NATS connection: %w", err)
		default:
			select {
			case <-b.closed:
			case <-time.After(readyTimeout):
			}
		}
	}

	b.shutdownServer()

	return drainErr
}

func (b *Broker) shutdownServer() {
	if b.server == nil {
		return
	}

	b.server.Shutdown()
	b.server.WaitForShutdown()
	b.log.Info("Embedded NATS server stopped")
}

func startEmbedded(opts Options) (*server.Server, error) {
	serverOpts := &server.Options{
		Host:       embeddedHost,
		Port:       opts.Port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: maxPayloadSize,
		JetStream:  true,
		StoreDir:   opts.StoreDir,
	}

	embedded, err := server.NewServer(serverOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}

	go embedded.Start()

	if !embedded.ReadyForConnections(readyTimeout) {
		embedded.Shutdown()

		return nil, ErrNotReady
	}

	opts.Log.Info("Embedded NATS server started at %s (store: %s)", embedded.ClientURL(), opts.StoreDir)

	return embedded, nil
}
