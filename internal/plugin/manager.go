// Package plugin tracks editor and browser plugins connected over a local
// websocket and exchanges commands with them.
package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/parley/internal/wire"
)

const (
	DefaultTimeout        = 3 * time.Second
	DefaultHeartbeatTTL   = 5 * time.Minute
	DefaultSweepInterval  = time.Minute
	maximumIconLength     = 20000
	jetbrainsLegacyAppTag = "intellij"
)

// ErrTimeout reports a plugin that did not answer a response in time.
var ErrTimeout = errors.New("plugin response timed out")

// Conn is the outbound half of a plugin connection.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Plugin is one registered plugin connection.
type Plugin struct {
	ID            string
	App           string
	Match         string
	Icon          string
	LastHeartbeat time.Time
	LastActive    time.Time

	conn  Conn
	match *regexp.Regexp
}

// Manager owns the plugin registry and pending callbacks.
type Manager struct {
	mu       sync.Mutex
	plugins  []*Plugin
	pending  map[string]chan json.RawMessage
	timeout  time.Duration
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	onText    func(string)
	onChange  func(app string)
	onTimeout func(app string)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithTimeout sets how long Send waits for a plugin callback.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock injects a clock for heartbeat expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTextHandler receives text a plugin asks to be interpreted.
func WithTextHandler(fn func(string)) Option {
	return func(m *Manager) { m.onText = fn }
}

// WithInstallHandler is told the first time a plugin app registers.
func WithInstallHandler(fn func(app string)) Option {
	return func(m *Manager) { m.onChange = fn }
}

// WithTimeoutHandler observes plugins dropped for not answering.
func WithTimeoutHandler(fn func(app string)) Option {
	return func(m *Manager) { m.onTimeout = fn }
}

// NewManager builds an empty registry.
func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		pending: make(map[string]chan json.RawMessage),
		timeout: DefaultTimeout,
		ttl:     DefaultHeartbeatTTL,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connected reports whether a plugin serves the given application.
func (m *Manager) Connected(app string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fromAppLocked(app) != nil
}

// Plugins returns a snapshot of the registry.
func (m *Manager) Plugins() []Plugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		cp := *p
		cp.conn = nil
		out = append(out, cp)
	}
	return out
}

// Send forwards a response to the plugin serving app and waits for its
// callback payload. A missing plugin yields a nil payload and no error.
func (m *Manager) Send(ctx context.Context, app string, resp *wire.CommandsResponse) (json.RawMessage, error) {
	m.mu.Lock()
	p := m.fromAppLocked(app)
	if p == nil {
		m.mu.Unlock()
		return nil, nil
	}
	conn := p.conn
	callback := uuid.NewString()
	reply := make(chan json.RawMessage, 1)
	m.pending[callback] = reply
	m.mu.Unlock()

	data, err := json.Marshal(responseData{Callback: callback, Response: encodeResponse(resp)})
	if err != nil {
		m.forget(callback)
		return nil, fmt.Errorf("encode plugin response: %w", err)
	}
	frame, err := json.Marshal(Envelope{Message: "response", Data: data})
	if err != nil {
		m.forget(callback)
		return nil, fmt.Errorf("encode plugin envelope: %w", err)
	}
	if err := conn.Send(ctx, frame); err != nil {
		m.forget(callback)
		m.removeConn(conn)
		return nil, fmt.Errorf("send to plugin %s: %w", app, err)
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case payload := <-reply:
		return payload, nil
	case <-timer.C:
		m.forget(callback)
		m.removeConn(conn)
		if m.onTimeout != nil {
			m.onTimeout(app)
		}
		return nil, ErrTimeout
	case <-ctx.Done():
		m.forget(callback)
		return nil, ctx.Err()
	}
}

// SendCommand wraps one command into an execute-only response.
func (m *Manager) SendCommand(ctx context.Context, app string, cmd wire.Command) (json.RawMessage, error) {
	return m.Send(ctx, app, &wire.CommandsResponse{
		Execute: &wire.Alternative{Commands: []wire.Command{cmd}},
	})
}

// Sweep drops plugins whose heartbeat is older than the expiry.
func (m *Manager) Sweep() {
	now := m.now()
	m.removeWhere(func(p *Plugin) bool { return now.Sub(p.LastHeartbeat) > m.ttl })
}

// Run sweeps stale plugins until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Dispatch applies one inbound frame from conn.
func (m *Manager) Dispatch(conn Conn, frame []byte) error {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return fmt.Errorf("decode plugin frame: %w", err)
	}

	switch env.Message {
	case "active", "heartbeat":
		var id identity
		if err := json.Unmarshal(env.Data, &id); err != nil {
			return fmt.Errorf("decode plugin %s: %w", env.Message, err)
		}
		if id.ID == "" {
			return fmt.Errorf("plugin %s missing id", env.Message)
		}
		m.update(conn, id, env.Message == "active")
	case "callback":
		var cb callbackData
		if err := json.Unmarshal(env.Data, &cb); err != nil {
			return fmt.Errorf("decode plugin callback: %w", err)
		}
		m.resolve(cb.Callback, cb.Data)
	case "disconnect":
		m.removeConn(conn)
	case "sendText":
		var td textData
		if err := json.Unmarshal(env.Data, &td); err != nil {
			return fmt.Errorf("decode plugin text: %w", err)
		}
		if m.onText != nil && td.Text != "" {
			m.onText(td.Text)
		}
	default:
		m.logger.Debug("ignoring plugin message", "message", env.Message)
	}
	return nil
}

// Drop forgets every plugin registered on conn.
func (m *Manager) Drop(conn Conn) {
	m.removeConn(conn)
}

func (m *Manager) update(conn Conn, id identity, active bool) {
	now := m.now()
	if id.Icon != "" && !validIcon(id.Icon) {
		m.logger.Debug("plugin icon rejected", "plugin", id.ID)
		id.Icon = ""
	}

	m.mu.Lock()
	p := m.fromIDLocked(id.ID)
	installed := ""
	if p != nil {
		p.conn = conn
		if active && id.Icon != "" {
			p.Icon = id.Icon
		}
	} else {
		app := id.App
		if app == jetbrainsLegacyAppTag {
			app = "jetbrains"
		}
		p = &Plugin{ID: id.ID, App: app, Icon: id.Icon, LastActive: now, LastHeartbeat: now, conn: conn}
		if active && id.Match != "" {
			re, err := regexp.Compile("(?i)" + id.Match)
			if err != nil {
				m.logger.Debug("plugin match pattern rejected", "plugin", id.ID, "error", err)
			} else {
				p.Match = id.Match
				p.match = re
			}
		}
		m.plugins = append(m.plugins, p)
		installed = app
	}
	if active {
		p.LastActive = now
	} else {
		p.LastHeartbeat = now
	}
	m.mu.Unlock()

	if installed != "" {
		m.logger.Info("plugin registered", "plugin", id.ID, "app", installed)
		if m.onChange != nil {
			m.onChange(installed)
		}
	}
}

func validIcon(icon string) bool {
	return len(icon) <= maximumIconLength && strings.HasPrefix(icon, "data:")
}

func (m *Manager) resolve(callback string, payload json.RawMessage) {
	m.mu.Lock()
	reply, ok := m.pending[callback]
	delete(m.pending, callback)
	m.mu.Unlock()
	if ok {
		reply <- payload
	}
}

func (m *Manager) forget(callback string) {
	m.mu.Lock()
	delete(m.pending, callback)
	m.mu.Unlock()
}

func (m *Manager) removeConn(conn Conn) {
	m.removeWhere(func(p *Plugin) bool { return p.conn == conn })
}

func (m *Manager) removeWhere(drop func(*Plugin) bool) {
	m.mu.Lock()
	kept := m.plugins[:0]
	var closing []Conn
	for _, p := range m.plugins {
		if drop(p) {
			closing = append(closing, p.conn)
			continue
		}
		kept = append(kept, p)
	}
	m.plugins = kept
	m.mu.Unlock()

	for _, c := range closing {
		if c != nil {
			_ = c.Close()
		}
	}
}

// fromAppLocked prefers exact app matches, then plugin match patterns, and
// picks the most recently active candidate.
func (m *Manager) fromAppLocked(app string) *Plugin {
	var found []*Plugin
	for _, p := range m.plugins {
		if p.App == app {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		for _, p := range m.plugins {
			if p.match != nil && p.match.MatchString(app) {
				found = append(found, p)
			}
		}
	}
	if len(found) == 0 {
		return nil
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].LastActive.After(found[j].LastActive) })
	return found[0]
}

func (m *Manager) fromIDLocked(id string) *Plugin {
	for _, p := range m.plugins {
		if p.ID == id {
			return p
		}
	}
	return nil
}
