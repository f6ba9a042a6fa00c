package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Handler serves one control intent.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// requestReadTimeout bounds how long a client may take to send its request.
const requestReadTimeout = 2 * time.Second

// ServeOption customizes Serve.
type ServeOption func(*server)

// WithLogger logs served intents and malformed requests.
func WithLogger(logger *slog.Logger) ServeOption {
	return func(s *server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type server struct {
	handler Handler
	logger  *slog.Logger
}

// Serve answers one request per connection until ctx is cancelled or the
// listener closes. In-flight connections finish before Serve returns.
func Serve(ctx context.Context, listener net.Listener, handler Handler, opts ...ServeOption) error {
	s := &server{
		handler: handler,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *server) serveConn(ctx context.Context, conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(requestReadTimeout))

	var req Request
	if err := readMessage(bufio.NewReader(conn), &req); err != nil {
		s.logger.Debug("ipc request rejected", "error", err)
		verb := "read request"
		if errors.Is(err, errMalformed) {
			verb = "decode request"
		}
		_ = writeMessage(conn, Response{OK: false, Error: fmt.Sprintf("%s: %v", verb, err)})
		return
	}

	resp := s.handler.Handle(ctx, req)
	s.logger.Debug("ipc request served", "command", req.Command, "ok", resp.OK, "state", resp.State)
	if err := writeMessage(conn, resp); err != nil {
		s.logger.Debug("ipc response not delivered", "command", req.Command, "error", err)
	}
}
