package tts

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a full-duplex, message-framed connection. *websocket.Conn
// satisfies it.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn.
type Dialer interface {
	DialContext(ctx context.Context, url string, header http.Header) (Conn, error)
}

type websocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer returns a Dialer backed by gorilla/websocket.
func NewWebsocketDialer(handshakeTimeout time.Duration) Dialer {
	return &websocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (d *websocketDialer) DialContext(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake with %s failed (%s): %w", url, resp.Status, err)
		}

		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	return conn, nil
}
