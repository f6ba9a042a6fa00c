// Package editor resolves the focused application and the editor state
// snapshot that accompanies every chunk and text request.
package editor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/rbright/parley/internal/host"
	"github.com/rbright/parley/internal/policy"
	"github.com/rbright/parley/internal/wire"
)

// PluginChannel is the subset of the plugin manager the tracker needs.
type PluginChannel interface {
	Connected(app string) bool
	SendCommand(ctx context.Context, app string, cmd wire.Command) (json.RawMessage, error)
}

type pluginState struct {
	Source      string `json:"source"`
	Cursor      int    `json:"cursor"`
	Filename    string `json:"filename"`
	Available   *bool  `json:"available"`
	CanGetState *bool  `json:"canGetState"`
	CanSetState *bool  `json:"canSetState"`
	Error       string `json:"error"`
}

// Tracker owns the active application and dictation flag.
type Tracker struct {
	env     host.Environment
	policy  policy.Policy
	plugins PluginChannel
	inserts *InsertHistory
	logger  *slog.Logger
	client  string

	mu        sync.Mutex
	app       string
	dictating bool
}

func NewTracker(env host.Environment, p policy.Policy, plugins PluginChannel, inserts *InsertHistory, clientID string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if inserts == nil {
		inserts = NewInsertHistory(nil)
	}
	return &Tracker{env: env, policy: p, plugins: plugins, inserts: inserts, client: clientID, logger: logger}
}

// Inserts exposes the insert history typed text is recorded in.
func (t *Tracker) Inserts() *InsertHistory {
	return t.inserts
}

// Refresh re-reads the focused window and returns its canonical name.
func (t *Tracker) Refresh(ctx context.Context) string {
	win, err := t.env.ActiveWindow(ctx)
	if err != nil {
		t.logger.Debug("active window unavailable", "error", err)
		return t.App()
	}
	app := t.policy.Classify(win.Class)
	t.mu.Lock()
	t.app = app
	t.mu.Unlock()
	return app
}

func (t *Tracker) App() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.app
}

func (t *Tracker) SetDictating(v bool) {
	t.mu.Lock()
	t.dictating = v
	t.mu.Unlock()
}

func (t *Tracker) Dictating() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dictating
}

// PluginConnected reports whether a plugin serves the focused application.
func (t *Tracker) PluginConnected() bool {
	return t.plugins != nil && t.plugins.Connected(t.App())
}

func (t *Tracker) IsTerminal() bool          { return t.policy.IsTerminal(t.App()) }
func (t *Tracker) IsFirstPartyBrowser() bool { return t.policy.IsBrowser(t.App()) }
func (t *Tracker) IsFirstPartyEditor() bool  { return t.policy.IsEditor(t.App()) }

// State resolves the editor snapshot: a connected plugin first, then the
// desktop, then the insert history when the source cannot be read.
func (t *Tracker) State(ctx context.Context, includeClipboard bool) wire.EditorState {
	app := t.App()
	state := wire.EditorState{Application: app, ClientIdentifier: t.client}

	if t.plugins != nil && t.plugins.Connected(app) {
		t.fromPlugin(ctx, app, &state)
	} else {
		got, err := t.env.EditorState(ctx)
		if err == nil {
			state.Source = got.Source
			state.Cursor = got.Cursor
			state.Filename = got.Filename
		}
		state.CanGetState = err == nil
		state.CanSetState = false
	}

	if t.policy.IsTerminal(app) {
		state.CanSetState = false
	}

	if !state.CanGetState {
		state.Source = t.inserts.Latest(app)
		state.Cursor = utf8.RuneCountInString(state.Source)
	}

	if includeClipboard {
		if clip, err := t.env.Clipboard(ctx); err == nil {
			state.Clipboard = clip
		}
	}
	return state
}

func (t *Tracker) fromPlugin(ctx context.Context, app string, state *wire.EditorState) {
	payload, err := t.plugins.SendCommand(ctx, app, wire.Command{Type: wire.CommandGetEditorState})
	if err != nil || len(payload) == 0 {
		t.logger.Debug("plugin editor state unavailable", "app", app, "error", err)
		return
	}
	var got pluginState
	if err := json.Unmarshal(payload, &got); err != nil {
		t.logger.Debug("plugin editor state malformed", "app", app, "error", err)
		return
	}
	if got.Error != "" {
		return
	}

	state.Source = got.Source
	state.Cursor = got.Cursor
	state.Filename = got.Filename
	state.CanGetState = flag(got.CanGetState, got.Available)
	state.CanSetState = flag(got.CanSetState, got.Available)
}

func flag(v, available *bool) bool {
	if v != nil {
		return *v
	}
	if available != nil {
		return *available
	}
	return true
}
