package orchestrator

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/rbright/parley/internal/wire"
)

// Engine is the protocol session the sender writes to.
type Engine interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, req wire.Request) error
	Disconnect()
}

// EditorSource resolves the editor snapshot carried by initialize and
// editor-state requests.
type EditorSource interface {
	Refresh(ctx context.Context) string
	State(ctx context.Context, includeClipboard bool) wire.EditorState
}

// Sender is the single writer to the engine. Jobs run strictly in
// submission order on the Run goroutine, so an editor snapshot is
// always taken right before the request that carries it is sent.
type Sender struct {
	engine Engine
	editor EditorSource
	logger *slog.Logger
	jobs   *mailbox[func(context.Context)]
}

// NewSender creates an idle sender. Run drains it.
func NewSender(engine Engine, editor EditorSource, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sender{
		engine: engine,
		editor: editor,
		logger: logger,
		jobs:   newMailbox[func(context.Context)](),
	}
}

// Run executes queued jobs until ctx is cancelled.
func (s *Sender) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.jobs.ready:
			for _, job := range s.jobs.drain() {
				if ctx.Err() != nil {
					return nil
				}
				job(ctx)
			}
		}
	}
}

// Forward queues req. Initialize and editor-state requests get a fresh
// editor snapshot; endpoint requests get a fresh endpoint id.
func (s *Sender) Forward(req wire.Request) {
	s.jobs.push(func(ctx context.Context) {
		s.send(ctx, s.complete(ctx, req))
	})
}

// Connect queues a session open; done receives the outcome.
func (s *Sender) Connect(done func(error)) {
	s.jobs.push(func(ctx context.Context) {
		err := s.engine.Connect(ctx)
		if done != nil {
			done(err)
		}
	})
}

// Disconnect queues a session close behind everything already submitted.
func (s *Sender) Disconnect() {
	s.jobs.push(func(context.Context) {
		s.engine.Disconnect()
	})
}

func (s *Sender) Initialize(context.Context) {
	s.Forward(wire.InitializeRequest{})
}

func (s *Sender) EditorState(_ context.Context, includeClipboard bool) {
	s.jobs.push(func(ctx context.Context) {
		s.send(ctx, wire.EditorStateRequest{EditorState: s.snapshot(ctx, includeClipboard)})
	})
}

func (s *Sender) Callback(_ context.Context, kind wire.CallbackType, text string) {
	s.Forward(wire.CallbackRequest{Type: kind, Text: text})
}

// Text starts a fresh engine context and submits a typed utterance.
func (s *Sender) Text(_ context.Context, text string, includeAlternatives bool) {
	s.Forward(wire.InitializeRequest{})
	s.Forward(wire.TextRequest{Text: text, IncludeAlternatives: includeAlternatives})
}

func (s *Sender) complete(ctx context.Context, req wire.Request) wire.Request {
	switch r := req.(type) {
	case wire.InitializeRequest:
		if s.editor != nil {
			s.editor.Refresh(ctx)
		}
		r.EditorState = s.snapshot(ctx, false)
		return r
	case wire.EditorStateRequest:
		r.EditorState = s.snapshot(ctx, false)
		return r
	case wire.EndpointRequest:
		if r.EndpointID == "" {
			r.EndpointID = uuid.NewString()
		}
		return r
	default:
		return req
	}
}

func (s *Sender) snapshot(ctx context.Context, includeClipboard bool) wire.EditorState {
	if s.editor == nil {
		return wire.EditorState{}
	}
	return s.editor.State(ctx, includeClipboard)
}

func (s *Sender) send(ctx context.Context, req wire.Request) {
	if err := s.engine.Send(ctx, req); err != nil {
		s.logger.Warn("engine request failed", "kind", wire.Kind(req), "error", err)
	}
}
