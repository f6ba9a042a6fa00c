// Package indicator presents listening state and alternatives through
// Hyprland notifications and audio cues, and keeps a snapshot for status.
package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/hypr"
	"github.com/rbright/parley/internal/wire"
)

const (
	colorListening = "rgb(89b4fa)"
	colorWorking   = "rgb(cba6f7)"
	colorOptions   = "rgb(a6e3a1)"
	colorError     = "rgb(f38ba8)"

	persistentMS = 300000

	labelListening = "Listening…"
	labelError     = "Voice command error"
)

// State is the presentation snapshot reported by status.
type State struct {
	Listening    bool     `json:"listening"`
	Speaking     bool     `json:"speaking"`
	Partial      bool     `json:"partial"`
	Working      bool     `json:"working"`
	Alternatives []string `json:"alternatives,omitempty"`
	Highlighted  []int    `json:"highlighted,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Notifier abstracts the notification surface.
type Notifier interface {
	Notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error
	Dismiss(ctx context.Context) error
}

type hyprNotifier struct{}

func (hyprNotifier) Notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	return hypr.Notify(ctx, icon, timeoutMS, color, text)
}

func (hyprNotifier) Dismiss(ctx context.Context) error {
	return hypr.DismissNotify(ctx)
}

// Presenter implements the orchestrator and executor presentation contracts.
// Notifications are dispatched on one background worker so callers never block
// on hyprctl.
type Presenter struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	notifier Notifier
	player   *cuePlayer
	cue      func(cueKind) error

	mu    sync.Mutex
	state State

	jobsMu  sync.Mutex
	jobs    chan func(context.Context)
	closed  bool
	done    chan struct{}
	sounds  sync.WaitGroup
}

// Option customizes a Presenter.
type Option func(*Presenter)

// WithNotifier replaces the Hyprland notification surface.
func WithNotifier(n Notifier) Option {
	return func(p *Presenter) {
		if n != nil {
			p.notifier = n
		}
	}
}

func withCuePlayer(play func(cueKind) error) Option {
	return func(p *Presenter) { p.cue = play }
}

// NewPresenter starts the notification worker. Close stops it.
func NewPresenter(cfg config.IndicatorConfig, logger *slog.Logger, opts ...Option) *Presenter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Presenter{
		cfg:      cfg,
		logger:   logger,
		notifier: hyprNotifier{},
		player:   newCuePlayer(cfg),
		jobs:     make(chan func(context.Context), 32),
		done:     make(chan struct{}),
	}
	p.cue = p.player.play
	for _, opt := range opts {
		opt(p)
	}
	go p.work()
	return p
}

// Snapshot returns a copy of the current presentation state.
func (p *Presenter) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.state
	out.Alternatives = slices.Clone(p.state.Alternatives)
	out.Highlighted = slices.Clone(p.state.Highlighted)
	return out
}

func (p *Presenter) SetListening(listening bool) {
	p.mu.Lock()
	p.state.Listening = listening
	p.state.Partial = false
	p.state.Speaking = false
	p.state.Error = ""
	if !listening {
		p.state.Alternatives = nil
		p.state.Highlighted = nil
	}
	p.mu.Unlock()

	if listening {
		p.playCue(cueListen)
		p.enqueue(func(ctx context.Context) error {
			return p.notifier.Notify(ctx, 1, persistentMS, colorListening, labelListening)
		})
		return
	}
	p.playCue(cuePause)
	p.enqueue(p.notifier.Dismiss)
}

func (p *Presenter) SetSpeaking(speaking bool) {
	p.mu.Lock()
	p.state.Speaking = speaking
	p.mu.Unlock()
}

func (p *Presenter) SetPartial(partial bool) {
	p.mu.Lock()
	p.state.Partial = partial
	if partial {
		p.state.Working = true
	}
	p.mu.Unlock()
}

// ShowError surfaces a fault such as a dropped engine session.
func (p *Presenter) ShowError(text string) {
	if strings.TrimSpace(text) == "" {
		text = labelError
	}
	p.mu.Lock()
	p.state.Error = text
	p.mu.Unlock()

	p.playCue(cueError)
	timeout := p.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1600
	}
	p.enqueue(func(ctx context.Context) error {
		return p.notifier.Notify(ctx, 3, timeout, colorError, text)
	})
}

func (p *Presenter) ShowAlternatives(alts []wire.Alternative) {
	lines := make([]string, 0, len(alts))
	for _, alt := range alts {
		lines = append(lines, describe(alt))
	}

	p.mu.Lock()
	p.state.Alternatives = lines
	p.state.Highlighted = nil
	partial := p.state.Partial
	p.mu.Unlock()

	if len(lines) == 0 {
		return
	}
	color := colorOptions
	if partial {
		color = colorWorking
	}
	text := formatAlternatives(lines)
	p.enqueue(func(ctx context.Context) error {
		return p.notifier.Notify(ctx, 5, persistentMS, color, text)
	})
}

func (p *Presenter) Highlight(indices []int) {
	p.mu.Lock()
	p.state.Highlighted = slices.Clone(indices)
	p.mu.Unlock()
	if len(indices) > 0 {
		p.playCue(cueExecute)
	}
}

func (p *Presenter) ClearAlternatives() {
	p.mu.Lock()
	had := len(p.state.Alternatives) > 0
	p.state.Alternatives = nil
	p.state.Highlighted = nil
	listening := p.state.Listening
	p.mu.Unlock()

	if !had {
		return
	}
	p.enqueue(func(ctx context.Context) error {
		if err := p.notifier.Dismiss(ctx); err != nil {
			return err
		}
		if !listening {
			return nil
		}
		return p.notifier.Notify(ctx, 1, persistentMS, colorListening, labelListening)
	})
}

func (p *Presenter) ClearWorking() {
	p.mu.Lock()
	p.state.Working = false
	p.state.Partial = false
	p.mu.Unlock()
}

// Close drains pending notifications, waits for cues in flight and stops
// the worker.
func (p *Presenter) Close() {
	p.jobsMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.jobsMu.Unlock()
	<-p.done
	p.sounds.Wait()
	p.player.close()
}

func (p *Presenter) enqueue(job func(context.Context) error) {
	if !p.cfg.Enable {
		return
	}
	run := func(ctx context.Context) {
		runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
		defer cancel()
		if err := job(runCtx); err != nil {
			p.log("indicator dispatch failed", err)
		}
	}

	p.jobsMu.Lock()
	defer p.jobsMu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.jobs <- run:
	default:
		p.logger.Debug("indicator queue full, notification dropped")
	}
}

func (p *Presenter) work() {
	defer close(p.done)
	for job := range p.jobs {
		job(context.Background())
	}
}

// playCue plays asynchronously; the player serializes overlapping cues.
func (p *Presenter) playCue(kind cueKind) {
	if !p.cfg.SoundEnable {
		return
	}
	p.jobsMu.Lock()
	defer p.jobsMu.Unlock()
	if p.closed {
		return
	}
	p.sounds.Add(1)
	go func() {
		defer p.sounds.Done()
		if err := p.cue(kind); err != nil {
			p.log("indicator audio cue failed", err)
		}
	}()
}

func (p *Presenter) log(message string, err error) {
	if err == nil {
		return
	}
	p.logger.Debug(message, "error", err.Error())
}

func describe(alt wire.Alternative) string {
	if alt.Description != "" {
		return alt.Description
	}
	return alt.Transcript
}

func formatAlternatives(lines []string) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, line)
	}
	return b.String()
}
