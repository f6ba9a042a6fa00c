package plugin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const maxFrameBytes = 1 << 20

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "plugin removed")
}

// Handler upgrades plugin connections and feeds their frames to the manager.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Plugins connect from extension origins, and the listener is loopback only.
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			m.logger.Debug("plugin upgrade failed", "error", err)
			return
		}
		conn.SetReadLimit(maxFrameBytes)
		c := &wsConn{conn: conn}
		defer m.Drop(c)

		for {
			_, frame, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if err := m.Dispatch(c, frame); err != nil {
				m.logger.Debug("plugin frame rejected", "error", err)
			}
		}
	})
}

// Serve accepts plugin connections on listener until ctx is done.
func (m *Manager) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve plugins: %w", err)
	}
	return nil
}
