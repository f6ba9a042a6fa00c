package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const maxFrameBytes = 4 << 20

// Transport is one open, message-oriented duplex connection to the engine.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a transport.
type Dialer func(ctx context.Context) (Transport, error)

// Endpoint selects and authenticates the engine transport.
type Endpoint struct {
	URL         string
	Token       string
	DialTimeout time.Duration
}

// NewDialer picks the transport from the endpoint scheme: ws, wss, or grpc.
func NewDialer(ep Endpoint) (Dialer, error) {
	raw := strings.TrimSpace(ep.URL)
	if raw == "" {
		return nil, errors.New("engine endpoint is empty")
	}
	if ep.DialTimeout <= 0 {
		ep.DialTimeout = 3 * time.Second
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse engine endpoint %q: %w", raw, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		return func(ctx context.Context) (Transport, error) {
			return DialWebsocket(ctx, raw, ep.Token, ep.DialTimeout)
		}, nil
	case "grpc":
		return func(ctx context.Context) (Transport, error) {
			return DialGRPC(ctx, u.Host, ep.Token, ep.DialTimeout)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported engine scheme %q", u.Scheme)
	}
}

type wsTransport struct {
	conn *websocket.Conn
}

// DialWebsocket opens a binary websocket session.
func DialWebsocket(ctx context.Context, rawURL, token string, timeout time.Duration) (Transport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var opts websocket.DialOptions
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	conn, _, err := websocket.Dial(dialCtx, rawURL, &opts)
	if err != nil {
		return nil, fmt.Errorf("dial engine websocket %q: %w", rawURL, err)
	}
	conn.SetReadLimit(maxFrameBytes)
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) Send(ctx context.Context, frame []byte) error {
	return t.conn.Write(ctx, websocket.MessageBinary, frame)
}

func (t *wsTransport) Recv(ctx context.Context) ([]byte, error) {
	_, frame, err := t.conn.Read(ctx)
	return frame, err
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "session closed")
}
