package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/parley/internal/microphone"
	"github.com/rbright/parley/internal/policy"
	"github.com/rbright/parley/internal/wire"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeEngine struct {
	mu         sync.Mutex
	requests   []wire.Request
	connectErr error
	connects   atomic.Int32
	closes     atomic.Int32
}

func (f *fakeEngine) Connect(context.Context) error {
	f.connects.Add(1)
	return f.connectErr
}

func (f *fakeEngine) Send(_ context.Context, req wire.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeEngine) Disconnect() {
	f.closes.Add(1)
}

func (f *fakeEngine) sent() []wire.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.Request(nil), f.requests...)
}

func (f *fakeEngine) kinds() []string {
	var out []string
	for _, req := range f.sent() {
		out = append(out, wire.Kind(req))
	}
	return out
}

func (f *fakeEngine) reset() {
	f.mu.Lock()
	f.requests = nil
	f.mu.Unlock()
}

type fakeEditor struct {
	plugin    atomic.Bool
	editor    atomic.Bool
	dictating atomic.Bool
	refreshes atomic.Int32
}

func (f *fakeEditor) Refresh(context.Context) string {
	f.refreshes.Add(1)
	return "code"
}

func (f *fakeEditor) State(_ context.Context, includeClipboard bool) wire.EditorState {
	state := wire.EditorState{Application: "code", Source: "hello", Cursor: 5}
	if includeClipboard {
		state.Clipboard = "clip"
	}
	return state
}

func (f *fakeEditor) PluginConnected() bool    { return f.plugin.Load() }
func (f *fakeEditor) IsFirstPartyEditor() bool { return f.editor.Load() }
func (f *fakeEditor) Dictating() bool          { return f.dictating.Load() }

type fakeMic struct {
	mu          sync.Mutex
	subs        map[string]microphone.Subscriber
	registerErr error
	unregisters atomic.Int32
}

func (f *fakeMic) Register(_ context.Context, name string, sub microphone.Subscriber) error {
	if f.registerErr != nil {
		return f.registerErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = map[string]microphone.Subscriber{}
	}
	f.subs[name] = sub
	return nil
}

func (f *fakeMic) Unregister(name string) {
	f.unregisters.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, name)
}

func (f *fakeMic) registered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[subscriberName] != nil
}

func (f *fakeMic) emit(ev microphone.Event) {
	f.mu.Lock()
	sub := f.subs[subscriberName]
	f.mu.Unlock()
	if sub != nil {
		sub(ev)
	}
}

type fakeExecutor struct {
	mu        sync.Mutex
	executed  []*wire.CommandsResponse
	shown     []*wire.CommandsResponse
	processed atomic.Int32
	aborts    atomic.Int32
	block     chan struct{}
}

func (f *fakeExecutor) PostProcess(_ context.Context, resp *wire.CommandsResponse) *wire.CommandsResponse {
	f.processed.Add(1)
	return resp
}

func (f *fakeExecutor) Truncate(resp *wire.CommandsResponse) *wire.CommandsResponse {
	return resp
}

func (f *fakeExecutor) ShowAlternatives(resp *wire.CommandsResponse) {
	f.mu.Lock()
	f.shown = append(f.shown, resp)
	f.mu.Unlock()
}

func (f *fakeExecutor) Execute(ctx context.Context, resp *wire.CommandsResponse) {
	f.mu.Lock()
	f.executed = append(f.executed, resp)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}
}

func (f *fakeExecutor) Abort() {
	f.aborts.Add(1)
}

func (f *fakeExecutor) executions() []*wire.CommandsResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*wire.CommandsResponse(nil), f.executed...)
}

func (f *fakeExecutor) shownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shown)
}

type fakePresenter struct {
	mu        sync.Mutex
	listening bool
	speaking  bool
	partials  []bool
	errors    []string
}

func (f *fakePresenter) SetListening(v bool) {
	f.mu.Lock()
	f.listening = v
	f.mu.Unlock()
}

func (f *fakePresenter) SetSpeaking(v bool) {
	f.mu.Lock()
	f.speaking = v
	f.mu.Unlock()
}

func (f *fakePresenter) SetPartial(v bool) {
	f.mu.Lock()
	f.partials = append(f.partials, v)
	f.mu.Unlock()
}

func (f *fakePresenter) ShowError(text string) {
	f.mu.Lock()
	f.errors = append(f.errors, text)
	f.mu.Unlock()
}

func (f *fakePresenter) errorTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.errors...)
}

func (f *fakePresenter) lastPartial() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.partials) == 0 {
		return false, false
	}
	return f.partials[len(f.partials)-1], true
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (f *fakeRecorder) ChunkOutcome(_ context.Context, outcome string) {
	f.mu.Lock()
	f.outcomes = append(f.outcomes, outcome)
	f.mu.Unlock()
}

func (f *fakeRecorder) ExecuteCompleted(context.Context, float64) {}

func (f *fakeRecorder) count(outcome string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.outcomes {
		if o == outcome {
			n++
		}
	}
	return n
}

type harness struct {
	t         *testing.T
	ignore    goleak.Option
	orch      *Orchestrator
	engine    *fakeEngine
	editor    *fakeEditor
	mic       *fakeMic
	exec      *fakeExecutor
	presenter *fakePresenter
	recorder  *fakeRecorder
	clock     atomic.Pointer[time.Time]
	ids       atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:         t,
		ignore:    goleak.IgnoreCurrent(),
		engine:    &fakeEngine{},
		editor:    &fakeEditor{},
		mic:       &fakeMic{},
		exec:      &fakeExecutor{},
		presenter: &fakePresenter{},
		recorder:  &fakeRecorder{},
	}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.clock.Store(&start)
	return h
}

// start runs the sender and orchestrator; cleanup cancels and verifies
// that every goroutine they own has exited.
func (h *harness) start() {
	h.t.Helper()
	sender := NewSender(h.engine, h.editor, nil)
	h.orch = New(Config{SilenceThreshold: 1}, Deps{
		Outbound:   sender,
		Microphone: h.mic,
		Editor:     h.editor,
		Executor:   h.exec,
		Presenter:  h.presenter,
		Recorder:   h.recorder,
		Policy:     policy.Default(),
		Now:        func() time.Time { return *h.clock.Load() },
		NewID:      func() string { return fmt.Sprintf("c%d", h.ids.Add(1)) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = sender.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = h.orch.Run(ctx)
	}()
	h.t.Cleanup(func() {
		h.exec.mu.Lock()
		if h.exec.block != nil {
			select {
			case <-h.exec.block:
			default:
				close(h.exec.block)
			}
		}
		h.exec.mu.Unlock()
		cancel()
		wg.Wait()
		goleak.VerifyNone(h.t, h.ignore)
	})
}

func (h *harness) advance(d time.Duration) {
	next := h.clock.Load().Add(d)
	h.clock.Store(&next)
}

// listen starts listening and waits for the gate to open.
func (h *harness) listen() {
	h.t.Helper()
	h.orch.SetListening(true)
	require.Eventually(h.t, func() bool {
		return h.mic.registered() && h.engine.connects.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func (h *harness) waitKinds(want ...string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		got := h.engine.kinds()
		return len(got) >= len(want) && slices.Equal(got[len(got)-len(want):], want)
	}, time.Second, 5*time.Millisecond, "engine saw %v", h.engine.kinds())
}

func (h *harness) waitExecutions(n int) []*wire.CommandsResponse {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return len(h.exec.executions()) == n
	}, time.Second, 5*time.Millisecond)
	return h.exec.executions()
}

func (h *harness) speak(frames int) string {
	h.t.Helper()
	before := h.ids.Load()
	h.mic.emit(microphone.Event{Kind: microphone.EventChunkStart, Audio: []byte{1}})
	// Ids are allocated on the loop goroutine.
	require.Eventually(h.t, func() bool {
		return h.ids.Load() == before+1
	}, time.Second, 5*time.Millisecond)
	id := fmt.Sprintf("c%d", before+1)
	for range frames {
		h.mic.emit(microphone.Event{Kind: microphone.EventAudio, Audio: []byte{2}, Speaking: true})
	}
	h.mic.emit(microphone.Event{Kind: microphone.EventChunkEnd})
	return id
}

func (h *harness) silence(n int) {
	h.mic.emit(microphone.Event{Kind: microphone.EventAudio, Silence: n})
}

func command(transcript string, cmds ...wire.Command) wire.Alternative {
	return wire.Alternative{Transcript: transcript, Commands: cmds}
}

func finalResponse(chunkID string, threshold float64, execute bool, alts ...wire.Alternative) *wire.CommandsResponse {
	resp := &wire.CommandsResponse{
		ChunkID:          chunkID,
		Final:            true,
		SilenceThreshold: threshold,
		Alternatives:     alts,
	}
	if execute && len(alts) > 0 {
		top := alts[0]
		resp.Execute = &top
	}
	return resp
}

var errDial = errors.New("dial refused")
