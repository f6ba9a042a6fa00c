package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/parley/internal/wire"
)

const (
	DefaultKeepAliveInterval = 30 * time.Second
	DefaultKeepAliveTimeout  = 3 * time.Second
	DefaultIdleTimeout       = time.Hour
	DefaultIdleCheckInterval = 5 * time.Minute
)

var (
	ErrNotConnected     = errors.New("engine session is not connected")
	ErrKeepAliveTimeout = errors.New("engine keepalive was not acknowledged")
	ErrIdleTimeout      = errors.New("engine session idle")
)

// Handler receives inbound traffic and transport faults.
// Calls are made from the client's receive goroutine.
type Handler interface {
	HandleCommands(resp *wire.CommandsResponse)
	HandleFault(err error)
}

// Recorder observes session traffic.
type Recorder interface {
	RequestSent(kind string)
	RequestDropped(kind string)
	KeepAliveTimeout()
}

type nopRecorder struct{}

func (nopRecorder) RequestSent(string)    {}
func (nopRecorder) RequestDropped(string) {}
func (nopRecorder) KeepAliveTimeout()     {}

// Config controls session timers.
type Config struct {
	KeepAliveInterval time.Duration
	KeepAliveTimeout  time.Duration
	IdleTimeout       time.Duration
	IdleCheckInterval time.Duration

	// StreamDump receives one JSON line per decoded inbound commands response.
	StreamDump io.Writer
}

func (c Config) withDefaults() Config {
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.KeepAliveTimeout <= 0 {
		c.KeepAliveTimeout = DefaultKeepAliveTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.IdleCheckInterval <= 0 {
		c.IdleCheckInterval = DefaultIdleCheckInterval
	}
	return c
}

// Client maintains one logical session to the engine.
// It never reconnects on its own.
type Client struct {
	dial     Dialer
	cfg      Config
	handler  Handler
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	connectMu sync.Mutex
	sendMu    sync.Mutex

	mu           sync.Mutex
	session      *session
	lastActivity time.Time
	dumpMu       sync.Mutex
}

type session struct {
	transport Transport
	cancel    context.CancelFunc
	done      chan struct{}
	keepAlive *time.Timer
	closed    bool
}

// Option customizes a Client.
type Option func(*Client)

func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates a disconnected client.
func NewClient(dial Dialer, cfg Config, handler Handler, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{
		dial:     dial,
		cfg:      cfg.withDefaults(),
		handler:  handler,
		recorder: nopRecorder{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connected reports whether a transport is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Connect opens the session. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	c.lastActivity = c.now()
	connected := c.session != nil
	c.mu.Unlock()
	if connected {
		return nil
	}

	transport, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect engine: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		transport: transport,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	c.session = s
	c.lastActivity = c.now()
	c.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.receive(runCtx, s)
	}()
	go func() {
		defer wg.Done()
		c.tick(runCtx, s)
	}()
	go func() {
		wg.Wait()
		close(s.done)
	}()

	c.logger.Debug("engine session connected")
	return nil
}

// Send encodes and transmits req. It drops the request when disconnected.
func (c *Client) Send(ctx context.Context, req wire.Request) error {
	kind := wire.Kind(req)

	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		c.recorder.RequestDropped(kind)
		c.logger.Debug("engine request dropped while disconnected", "kind", kind)
		return nil
	}

	frame, err := wire.EncodeRequest(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", kind, err)
	}

	c.sendMu.Lock()
	err = s.transport.Send(ctx, frame)
	c.sendMu.Unlock()
	if err != nil {
		c.fault(s, fmt.Errorf("send %s request: %w", kind, err))
		return nil
	}

	c.recorder.RequestSent(kind)
	return nil
}

// Disconnect closes the session without reporting a fault.
func (c *Client) Disconnect() {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return
	}
	c.teardown(s)
	<-s.done
}

func (c *Client) receive(ctx context.Context, s *session) {
	for {
		frame, err := s.transport.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.fault(s, fmt.Errorf("receive engine frame: %w", err))
			return
		}

		resp, err := wire.DecodeResponse(frame)
		if err != nil {
			c.logger.Warn("engine frame dropped", "error", err.Error())
			continue
		}

		switch r := resp.(type) {
		case wire.KeepAliveResponse:
			c.mu.Lock()
			if s.keepAlive != nil {
				s.keepAlive.Stop()
				s.keepAlive = nil
			}
			c.mu.Unlock()
		case *wire.CommandsResponse:
			c.mu.Lock()
			c.lastActivity = c.now()
			c.mu.Unlock()
			c.dump(r)
			if c.handler != nil {
				c.handler.HandleCommands(r)
			}
		}
	}
}

func (c *Client) tick(ctx context.Context, s *session) {
	keepAlive := time.NewTicker(c.cfg.KeepAliveInterval)
	defer keepAlive.Stop()
	idle := time.NewTicker(c.cfg.IdleCheckInterval)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			c.sendKeepAlive(ctx, s)
		case <-idle.C:
			c.mu.Lock()
			inactive := c.now().Sub(c.lastActivity)
			c.mu.Unlock()
			if inactive >= c.cfg.IdleTimeout {
				c.logger.Info("engine session idle, disconnecting", "inactive", inactive.String())
				go c.fault(s, ErrIdleTimeout)
				return
			}
		}
	}
}

func (c *Client) sendKeepAlive(ctx context.Context, s *session) {
	c.mu.Lock()
	if s.closed {
		c.mu.Unlock()
		return
	}
	if s.keepAlive == nil {
		s.keepAlive = time.AfterFunc(c.cfg.KeepAliveTimeout, func() {
			c.recorder.KeepAliveTimeout()
			c.fault(s, ErrKeepAliveTimeout)
		})
	}
	c.mu.Unlock()

	frame, err := wire.EncodeRequest(wire.KeepAliveRequest{})
	if err != nil {
		return
	}
	c.sendMu.Lock()
	err = s.transport.Send(ctx, frame)
	c.sendMu.Unlock()
	if err != nil && ctx.Err() == nil {
		go c.fault(s, fmt.Errorf("send keepalive: %w", err))
	}
}

// fault tears the session down and reports err once.
func (c *Client) fault(s *session, err error) {
	if !c.teardown(s) {
		return
	}
	c.logger.Error("engine session fault", "error", err.Error())
	if c.handler != nil {
		c.handler.HandleFault(err)
	}
}

// teardown closes s exactly once and reports whether this call closed it.
func (c *Client) teardown(s *session) bool {
	c.mu.Lock()
	if s.closed {
		c.mu.Unlock()
		return false
	}
	s.closed = true
	if s.keepAlive != nil {
		s.keepAlive.Stop()
		s.keepAlive = nil
	}
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()

	s.cancel()
	if err := s.transport.Close(); err != nil {
		c.logger.Debug("engine transport close failed", "error", err.Error())
	}
	return true
}

func (c *Client) dump(resp *wire.CommandsResponse) {
	if c.cfg.StreamDump == nil {
		return
	}
	line, err := json.Marshal(struct {
		At       string                 `json:"at"`
		Response *wire.CommandsResponse `json:"response"`
	}{
		At:       c.now().UTC().Format(time.RFC3339Nano),
		Response: resp,
	})
	if err != nil {
		return
	}

	c.dumpMu.Lock()
	defer c.dumpMu.Unlock()
	_, _ = c.cfg.StreamDump.Write(append(line, '\n'))
}
