// Package orchestrator turns microphone chunks and engine responses into
// executions. One event loop owns the chunk store and the buffering gate;
// microphone, protocol, and completion callbacks only post events to it.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/parley/internal/chunk"
	"github.com/rbright/parley/internal/microphone"
	"github.com/rbright/parley/internal/policy"
	"github.com/rbright/parley/internal/wire"
)

const subscriberName = "orchestrator"

// Outbound is the ordered engine writer.
type Outbound interface {
	Forward(req wire.Request)
	Connect(done func(error))
	Disconnect()
	Text(ctx context.Context, text string, includeAlternatives bool)
}

// Microphone is the named-subscriber registry.
type Microphone interface {
	Register(ctx context.Context, name string, sub microphone.Subscriber) error
	Unregister(name string)
}

// Editor reports the focus facts append-to-previous depends on.
type Editor interface {
	PluginConnected() bool
	IsFirstPartyEditor() bool
	Dictating() bool
}

// Executor applies accepted responses.
type Executor interface {
	PostProcess(ctx context.Context, resp *wire.CommandsResponse) *wire.CommandsResponse
	Truncate(resp *wire.CommandsResponse) *wire.CommandsResponse
	ShowAlternatives(resp *wire.CommandsResponse)
	Execute(ctx context.Context, resp *wire.CommandsResponse)
	Abort()
}

// Presenter is the orchestrator-facing subset of the presentation layer.
type Presenter interface {
	SetListening(listening bool)
	SetSpeaking(speaking bool)
	SetPartial(partial bool)
	ShowError(text string)
}

// Recorder observes chunk outcomes.
type Recorder interface {
	ChunkOutcome(ctx context.Context, outcome string)
	ExecuteCompleted(ctx context.Context, seconds float64)
}

type nopPresenter struct{}

func (nopPresenter) SetListening(bool) {}
func (nopPresenter) SetSpeaking(bool)  {}
func (nopPresenter) SetPartial(bool)   {}
func (nopPresenter) ShowError(string)  {}

type nopRecorder struct{}

func (nopRecorder) ChunkOutcome(context.Context, string)      {}
func (nopRecorder) ExecuteCompleted(context.Context, float64) {}

// Config tunes evaluation.
type Config struct {
	// SilenceThreshold scales the engine's per-response silence threshold.
	SilenceThreshold float64
	Capacity         int
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Inbox      *Inbox
	Outbound   Outbound
	Microphone Microphone
	Editor     Editor
	Executor   Executor
	Presenter  Presenter
	Recorder   Recorder
	Policy     policy.Policy
	Logger     *slog.Logger
	Now        func() time.Time
	NewID      func() string
}

// Inbox receives engine traffic before the orchestrator runs. It
// implements protocol.Handler and never blocks the receive goroutine.
type Inbox struct {
	responses *mailbox[*wire.CommandsResponse]
	events    *mailbox[event]
}

func NewInbox() *Inbox {
	return &Inbox{
		responses: newMailbox[*wire.CommandsResponse](),
		events:    newMailbox[event](),
	}
}

func (in *Inbox) HandleCommands(resp *wire.CommandsResponse) {
	if resp != nil {
		in.responses.push(resp)
	}
}

func (in *Inbox) HandleFault(err error) {
	in.events.push(faultEvent{err: err})
}

type event interface{}

type listenEvent struct{ on bool }

type toggleEvent struct{}

type faultEvent struct{ err error }

type micEvent struct {
	epoch uint64
	ev    microphone.Event
}

type responseEvent struct{ resp *wire.CommandsResponse }

type connectedEvent struct {
	epoch uint64
	err   error
}

type executedEvent struct{ epoch uint64 }

type intentEvent struct{ resp *wire.CommandsResponse }

// Orchestrator is the chunk state machine.
type Orchestrator struct {
	cfg       Config
	inbox     *Inbox
	out       Outbound
	mic       Microphone
	editor    Editor
	exec      Executor
	presenter Presenter
	recorder  Recorder
	policy    policy.Policy
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	listeningFlag atomic.Bool
	work          sync.WaitGroup

	// Owned by the Run goroutine.
	ctx           context.Context
	store         *chunk.Store
	listening     bool
	speaking      bool
	epoch         uint64
	holds         int
	queue         []wire.Request
	noiseDeadline time.Time
}

// New wires an orchestrator. Run starts it.
func New(cfg Config, d Deps) *Orchestrator {
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = 1
	}
	if d.Inbox == nil {
		d.Inbox = NewInbox()
	}
	if d.Presenter == nil {
		d.Presenter = nopPresenter{}
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return &Orchestrator{
		cfg:       cfg,
		inbox:     d.Inbox,
		out:       d.Outbound,
		mic:       d.Microphone,
		editor:    d.Editor,
		exec:      d.Executor,
		presenter: d.Presenter,
		recorder:  d.Recorder,
		policy:    d.Policy,
		logger:    d.Logger,
		now:       d.Now,
		newID:     d.NewID,
		ctx:       context.Background(),
		store:     chunk.NewStore(cfg.Capacity),
	}
}

// Listening reports the requested listening state.
func (o *Orchestrator) Listening() bool {
	return o.listeningFlag.Load()
}

// SetListening requests a listening state change.
func (o *Orchestrator) SetListening(on bool) {
	o.post(listenEvent{on: on})
}

// Toggle flips listening.
func (o *Orchestrator) Toggle() {
	o.post(toggleEvent{})
}

// Pause stops listening; the executor calls it for a pause command.
func (o *Orchestrator) Pause(context.Context) {
	o.SetListening(false)
}

func (o *Orchestrator) HandleCommands(resp *wire.CommandsResponse) {
	o.inbox.HandleCommands(resp)
}

func (o *Orchestrator) HandleFault(err error) {
	o.inbox.HandleFault(err)
}

func (o *Orchestrator) post(ev event) {
	o.inbox.events.push(ev)
}

// Run owns all chunk state until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx = ctx

	var responses sync.WaitGroup
	responses.Add(1)
	go func() {
		defer responses.Done()
		o.processResponses(ctx)
	}()

	defer func() {
		o.stopListening()
		responses.Wait()
		o.work.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.inbox.events.ready:
			for _, ev := range o.inbox.events.drain() {
				o.dispatch(ev)
			}
		}
	}
}

func (o *Orchestrator) dispatch(ev event) {
	switch e := ev.(type) {
	case listenEvent:
		if e.on {
			o.startListening()
		} else {
			o.stopListening()
		}
	case toggleEvent:
		if o.listening {
			o.stopListening()
		} else {
			o.startListening()
		}
	case faultEvent:
		o.logger.Error("engine session lost, pausing", "error", e.err)
		if o.listening {
			o.presenter.ShowError("Engine connection lost")
		}
		o.stopListening()
	case micEvent:
		if e.epoch != o.epoch || !o.listening {
			return
		}
		switch e.ev.Kind {
		case microphone.EventChunkStart:
			o.onChunkStart(e.ev)
		case microphone.EventAudio:
			o.onAudio(e.ev)
		case microphone.EventChunkEnd:
			o.onChunkEnd()
		}
	case responseEvent:
		o.onCommandsResponse(e.resp)
	case connectedEvent:
		if e.epoch != o.epoch {
			return
		}
		if e.err != nil {
			o.logger.Error("engine connect failed", "error", e.err)
			o.presenter.ShowError("Engine unreachable")
			o.stopListening()
			return
		}
		o.release()
	case executedEvent:
		if e.epoch != o.epoch {
			return
		}
		o.release()
	case intentEvent:
		o.execute(e.resp)
	}
}

func (o *Orchestrator) startListening() {
	if o.listening {
		return
	}
	o.listening = true
	o.listeningFlag.Store(true)
	o.presenter.SetListening(true)
	o.logger.Info("listening started")

	epoch := o.epoch
	o.hold()
	err := o.mic.Register(o.ctx, subscriberName, func(ev microphone.Event) {
		o.post(micEvent{epoch: epoch, ev: ev})
	})
	if err != nil {
		o.logger.Error("microphone unavailable", "error", err)
		o.presenter.ShowError("Microphone unavailable")
		o.stopListening()
		return
	}
	o.out.Connect(func(err error) {
		o.post(connectedEvent{epoch: epoch, err: err})
	})
}

// stopListening releases the microphone and the session and forgets every
// chunk. Completions posted by work started before this point are ignored.
func (o *Orchestrator) stopListening() {
	if !o.listening {
		return
	}
	o.listening = false
	o.listeningFlag.Store(false)
	o.logger.Info("listening stopped")

	o.mic.Unregister(subscriberName)
	o.out.Forward(wire.DisableRequest{})
	o.out.Disconnect()
	o.presenter.SetListening(false)

	o.store.Clear()
	o.noiseDeadline = time.Time{}
	o.queue = nil
	o.holds = 0
	o.speaking = false
	o.epoch++
	o.exec.Abort()
}

// processResponses post-processes final responses in arrival order before
// the loop sees them. Text responses never touch the chunk store; each runs
// on its own goroutine so a chained hop can complete while its parent waits.
func (o *Orchestrator) processResponses(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.inbox.responses.ready:
			for _, resp := range o.inbox.responses.drain() {
				if ctx.Err() != nil {
					return
				}
				if resp.TextResponse {
					o.work.Add(1)
					go func() {
						defer o.work.Done()
						o.runText(ctx, resp)
					}()
					continue
				}
				if resp.Final {
					resp = o.exec.PostProcess(ctx, resp)
				}
				o.post(responseEvent{resp: resp})
			}
		}
	}
}

func (o *Orchestrator) runText(ctx context.Context, resp *wire.CommandsResponse) {
	resp = o.exec.PostProcess(ctx, resp)
	o.exec.Execute(ctx, resp)
	if resp != nil && resp.Execute != nil {
		o.logger.Info("text command executed", "transcript", resp.Execute.Transcript)
	}
}
