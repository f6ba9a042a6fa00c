// Package executor turns an accepted interpretation into desktop operations,
// forwards it to a connected plugin, and owns the undo/redo history and the
// pending alternatives a "use N" command selects from.
package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rbright/parley/internal/edit"
	"github.com/rbright/parley/internal/editor"
	"github.com/rbright/parley/internal/host"
	"github.com/rbright/parley/internal/policy"
	"github.com/rbright/parley/internal/sanitize"
	"github.com/rbright/parley/internal/wire"
)

// Requester sends side-channel requests straight to the engine session.
type Requester interface {
	Initialize(ctx context.Context)
	EditorState(ctx context.Context, includeClipboard bool)
	Callback(ctx context.Context, kind wire.CallbackType, text string)
	Text(ctx context.Context, text string, includeAlternatives bool)
}

// Presenter renders alternatives for the user.
type Presenter interface {
	ShowAlternatives(alts []wire.Alternative)
	Highlight(indices []int)
	ClearAlternatives()
	ClearWorking()
}

// Editor is the focused-application view commands are applied against.
type Editor interface {
	App() string
	State(ctx context.Context, includeClipboard bool) wire.EditorState
	PluginConnected() bool
	IsFirstPartyBrowser() bool
	SetDictating(bool)
	Inserts() *editor.InsertHistory
}

// Plugins forwards a response to the plugin serving an application.
type Plugins interface {
	Send(ctx context.Context, app string, resp *wire.CommandsResponse) (json.RawMessage, error)
	SendCommand(ctx context.Context, app string, cmd wire.Command) (json.RawMessage, error)
}

// Listener stops listening when a pause command runs.
type Listener interface {
	Pause(ctx context.Context)
}

// Recorder counts handled commands.
type Recorder interface {
	CommandHandled(ctx context.Context, kind wire.CommandType, err error)
	Resolution(ctx context.Context)
}

type nopRecorder struct{}

func (nopRecorder) CommandHandled(context.Context, wire.CommandType, error) {}
func (nopRecorder) Resolution(context.Context)                              {}

// Display configures how many alternatives are shown and for how long.
type Display struct {
	MiniMode          bool
	FewerAlternatives bool
	AlternativesCount int
	HideTimeout       time.Duration
}

// Deps collects the executor's collaborators.
type Deps struct {
	Env       host.Environment
	Editor    Editor
	Plugins   Plugins
	Requests  Requester
	Presenter Presenter
	History   *edit.History
	Policy    policy.Policy
	Recorder  Recorder
	Logger    *slog.Logger
	Display   Display
}

// Executor applies responses. Host access is exclusive: one handler runs at a time.
type Executor struct {
	env       host.Environment
	editor    Editor
	plugins   Plugins
	requests  Requester
	presenter Presenter
	history   *edit.History
	policy    policy.Policy
	recorder  Recorder
	logger    *slog.Logger
	display   Display
	sanitizer *sanitize.Sanitizer
	handlers  map[wire.CommandType]handler

	actuator sync.Mutex

	mu        sync.Mutex
	pending   *wire.CommandsResponse
	chainDone chan struct{}
	hideTimer *time.Timer
	listener  Listener
	lastChunk string
}

// New wires an executor.
func New(d Deps) *Executor {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.History == nil {
		d.History = edit.NewHistory(0, 0)
	}
	e := &Executor{
		env:       d.Env,
		editor:    d.Editor,
		plugins:   d.Plugins,
		requests:  d.Requests,
		presenter: d.Presenter,
		history:   d.History,
		policy:    d.Policy,
		recorder:  d.Recorder,
		logger:    d.Logger,
		display:   d.Display,
		chainDone: make(chan struct{}),
	}
	e.sanitizer = sanitize.New(d.Env, d.Editor, d.Plugins, d.History, d.Policy, d.Logger)
	e.sanitizer.Display = func() sanitize.Display {
		return sanitize.Display{
			Constrained: e.display.MiniMode && e.display.FewerAlternatives,
			Max:         e.display.AlternativesCount,
		}
	}
	e.handlers = e.commandHandlers()
	return e
}

// SetListener attaches the listening toggle a pause command drives.
func (e *Executor) SetListener(l Listener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

// History exposes the undo/redo stack.
func (e *Executor) History() *edit.History {
	return e.history
}

// PostProcess sanitizes a final response against the current pending list.
func (e *Executor) PostProcess(ctx context.Context, resp *wire.CommandsResponse) *wire.CommandsResponse {
	return e.sanitizer.Sanitize(ctx, resp, e)
}

// Truncate applies the display's alternative limit without other sanitizing.
func (e *Executor) Truncate(resp *wire.CommandsResponse) *wire.CommandsResponse {
	out := resp.Clone()
	if out == nil || !e.display.MiniMode || !e.display.FewerAlternatives {
		return out
	}
	limit := max(1, e.display.AlternativesCount)
	if len(out.Alternatives) > limit {
		out.Alternatives = out.Alternatives[:limit]
	}
	return out
}

// PendingCount reports how many alternatives "use N" can select from.
func (e *Executor) PendingCount() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return 0, false
	}
	return len(e.pending.Alternatives), true
}

func (e *Executor) ClearPending() {
	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()
}

func hasExecute(resp *wire.CommandsResponse) bool {
	return resp != nil && resp.Execute != nil && len(resp.Execute.Commands) > 0
}

// ShowAlternatives renders a response and remembers it as pending when final.
func (e *Executor) ShowAlternatives(resp *wire.CommandsResponse) {
	if resp == nil || resp.IsMeta() {
		return
	}

	if len(resp.Alternatives) > 0 {
		e.logger.Debug("showing alternatives", "count", len(resp.Alternatives), "final", resp.Final)
		e.presenter.ShowAlternatives(resp.Alternatives)
		if resp.Final {
			e.savePending(resp)
			if hasExecute(resp) {
				e.presenter.Highlight([]int{0})
			} else {
				e.presenter.Highlight(nil)
			}
		}
	}

	if e.display.MiniMode && e.display.HideTimeout > 0 {
		e.resetHideTimer(max(time.Millisecond, e.display.HideTimeout))
	}
}

func (e *Executor) resetHideTimer(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hideTimer != nil {
		e.hideTimer.Stop()
	}
	e.hideTimer = time.AfterFunc(d, e.presenter.ClearAlternatives)
}

func (e *Executor) savePending(resp *wire.CommandsResponse) {
	if len(resp.Alternatives) == 0 && hasExecute(resp) {
		return
	}
	e.mu.Lock()
	e.pending = &wire.CommandsResponse{ChunkID: resp.ChunkID, Alternatives: resp.ValidAlternatives()}
	e.mu.Unlock()
}

// Execute renders resp and runs its execute target. It returns only after any
// chained remainder has completed its own execute cycle.
func (e *Executor) Execute(ctx context.Context, resp *wire.CommandsResponse) {
	e.execute(ctx, resp, true)
}

func (e *Executor) execute(ctx context.Context, resp *wire.CommandsResponse, render bool) {
	if resp == nil {
		e.resolveChain()
		return
	}
	e.mu.Lock()
	e.lastChunk = resp.ChunkID
	e.mu.Unlock()

	e.presenter.ClearWorking()
	if render {
		e.ShowAlternatives(resp)
	}
	if len(resp.Alternatives) > 0 {
		e.history.SetUseNeedsUndo(false)
	}

	if !hasExecute(resp) {
		e.resolveChain()
		return
	}
	e.addToHistory(ctx, resp)

	var forwarded json.RawMessage
	if e.plugins != nil {
		reply, err := e.plugins.Send(ctx, e.editor.App(), resp)
		if err != nil {
			e.logger.Debug("plugin forward failed", "app", e.editor.App(), "error", err)
		}
		forwarded = reply
	}

	inserts := e.editor.Inserts()
	for _, cmd := range resp.Execute.Commands {
		h, ok := e.handlers[cmd.Type]
		if !ok {
			continue
		}
		switch cmd.Type {
		case wire.CommandDiff, wire.CommandInsert, wire.CommandRun:
		default:
			inserts.Clear()
		}

		err := e.run(ctx, cmd, h)
		e.recorder.CommandHandled(ctx, cmd.Type, err)
		if err != nil {
			e.logger.Warn("command failed", "type", cmd.Type.String(), "error", err)
		}

		if cmd.Type == wire.CommandRun || cmd.Type == wire.CommandPress {
			inserts.Clear()
		}
	}

	if resp.Execute.Remaining != "" {
		e.executeChain(ctx, resp.Execute.Remaining)
		return
	}
	e.handlePluginReply(ctx, forwarded)
}

// run holds the actuator for the handler unless the handler re-enters execute.
func (e *Executor) run(ctx context.Context, cmd wire.Command, h handler) error {
	if cmd.Type != wire.CommandUse {
		e.actuator.Lock()
		defer e.actuator.Unlock()
	}
	return h(ctx, cmd)
}

func (e *Executor) addToHistory(ctx context.Context, resp *wire.CommandsResponse) {
	if slices.ContainsFunc(resp.Execute.Commands, func(c wire.Command) bool {
		return c.Type == wire.CommandUse || c.Type == wire.CommandCancel
	}) {
		return
	}
	e.requests.Callback(ctx, wire.CallbackAddToHistory, resp.Execute.Transcript)
}

// ExecutePending runs a previously shown alternative by 0-based index.
func (e *Executor) ExecutePending(ctx context.Context, index int) bool {
	e.mu.Lock()
	pending := e.pending
	lastChunk := e.lastChunk
	e.mu.Unlock()
	if pending == nil || index < 0 || index >= len(pending.Alternatives) {
		return false
	}

	alt := pending.Alternatives[index]
	e.logger.Info("resolved pending alternative",
		"alternative_id", alt.AlternativeID,
		"resolved_chunk_id", pending.ChunkID,
		"chunk_id", lastChunk,
	)
	e.recorder.Resolution(ctx)

	e.execute(ctx, &wire.CommandsResponse{Execute: &alt}, false)
	e.presenter.Highlight([]int{index})
	return true
}

func (e *Executor) chainSignal() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chainDone
}

// resolveChain wakes every chain waiter and arms a fresh signal.
func (e *Executor) resolveChain() {
	e.mu.Lock()
	close(e.chainDone)
	e.chainDone = make(chan struct{})
	e.mu.Unlock()
}

// Abort releases chain waiters whose response will never arrive.
func (e *Executor) Abort() {
	e.resolveChain()
}

func (e *Executor) executeChain(ctx context.Context, text string) {
	e.logger.Debug("executing chain", "text", text)
	done := e.chainSignal()
	e.requests.Initialize(ctx)
	e.requests.Callback(ctx, wire.CallbackChain, text)
	select {
	case <-done:
	case <-ctx.Done():
	}
}

type pluginReply struct {
	Message string `json:"message"`
	Data    struct {
		Type wire.CallbackType `json:"type"`
		Text string            `json:"text"`
	} `json:"data"`
}

func (e *Executor) handlePluginReply(ctx context.Context, forwarded json.RawMessage) {
	e.resolveChain()
	if len(forwarded) == 0 {
		return
	}

	var reply pluginReply
	if err := json.Unmarshal(forwarded, &reply); err != nil {
		e.logger.Debug("plugin reply malformed", "error", err)
		return
	}

	switch reply.Message {
	case "callback":
		e.requests.EditorState(ctx, false)
		e.requests.Callback(ctx, reply.Data.Type, "")
	case "sendText":
		e.requests.Text(ctx, reply.Data.Text, true)
	case "open":
		e.requests.EditorState(ctx, false)
		e.requests.Callback(ctx, wire.CallbackOpenFile, "")
	}
}

// Close stops the hide timer.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hideTimer != nil {
		e.hideTimer.Stop()
	}
}
