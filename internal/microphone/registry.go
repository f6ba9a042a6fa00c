// Package microphone segments captured audio into speech chunks and fans the
// resulting events out to named subscribers.
package microphone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/parley/internal/audio"
)

type EventKind string

const (
	EventChunkStart EventKind = "chunk_start"
	EventAudio      EventKind = "audio"
	EventChunkEnd   EventKind = "chunk_end"
)

// Event is one microphone notification. Silence counts consecutive quiet
// frames and keeps counting after a chunk ends.
type Event struct {
	Kind     EventKind
	Audio    []byte
	Silence  int
	Speaking bool
	Volume   float64
}

// Stream is an open capture.
type Stream interface {
	Frames() <-chan []byte
	Stop() error
}

// Source opens captures on demand.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Subscriber receives events on the capture goroutine and must not block.
type Subscriber func(Event)

var ErrDuplicateSubscriber = errors.New("microphone subscriber already registered")

// Registry starts capture with the first subscriber and stops it with the last.
type Registry struct {
	source Source
	vad    VADConfig
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]Subscriber
	stream Stream
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRegistry(source Source, vad VADConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		source: source,
		vad:    vad,
		logger: logger,
		subs:   make(map[string]Subscriber),
	}
}

// Register adds a named subscriber, opening the capture if it is the first.
func (r *Registry) Register(ctx context.Context, name string, sub Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSubscriber, name)
	}
	if len(r.subs) == 0 {
		if err := r.startLocked(ctx); err != nil {
			return err
		}
	}
	r.subs[name] = sub
	return nil
}

// Unregister removes a subscriber and stops capture once none remain.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	if _, ok := r.subs[name]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.subs, name)
	if len(r.subs) > 0 {
		r.mu.Unlock()
		return
	}
	stream, cancel, done := r.stream, r.cancel, r.done
	r.stream, r.cancel, r.done = nil, nil, nil
	r.mu.Unlock()

	if stream == nil {
		return
	}
	cancel()
	if err := stream.Stop(); err != nil {
		r.logger.Warn("stop microphone capture", "error", err.Error())
	}
	<-done
	if counted, ok := stream.(interface{ Stats() audio.Stats }); ok {
		stats := counted.Stats()
		r.logger.Info("microphone capture stopped",
			"bytes", stats.Bytes,
			"frames", stats.Frames,
			"dropped_frames", stats.Dropped,
		)
	}
}

// Running reports whether capture is open.
func (r *Registry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}

func (r *Registry) startLocked(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := r.source.Open(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("open microphone: %w", err)
	}

	r.stream = stream
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.pump(stream, r.done)
	return nil
}

// pump segments frames until the stream closes.
func (r *Registry) pump(stream Stream, done chan struct{}) {
	defer close(done)

	segmenter := NewSegmenter(r.vad)
	for frame := range stream.Frames() {
		if len(frame) == 0 {
			continue
		}
		for _, ev := range segmenter.Push(frame) {
			r.publish(ev)
		}
	}
}

func (r *Registry) publish(ev Event) {
	r.mu.Lock()
	subs := make([]Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		sub(ev)
	}
}
