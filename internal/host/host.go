// Package host is the desktop capability surface commands are applied through.
package host

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rbright/parley/internal/policy"
	"github.com/rbright/parley/internal/wire"
)

// ErrUnsupported marks a capability the running desktop cannot provide.
var ErrUnsupported = errors.New("capability unsupported")

// Window identifies the focused application.
type Window struct {
	Address string
	Class   string
	Title   string
}

// Environment is the set of desktop primitives commands are materialized with.
// Every call may fail; callers treat failures as an unavailable capability.
type Environment interface {
	PressKey(ctx context.Context, key string, modifiers []string, count int) error
	TypeText(ctx context.Context, text string) error
	Clipboard(ctx context.Context) (string, error)
	SetClipboard(ctx context.Context, text string) error
	ActiveWindow(ctx context.Context) (Window, error)
	InstalledApplications(ctx context.Context) ([]string, error)
	RunningApplications(ctx context.Context) ([]string, error)
	ClickableTargets(ctx context.Context) ([]string, error)
	Focus(ctx context.Context, app string) error
	Launch(ctx context.Context, app string) error
	Quit(ctx context.Context, app string) error
	EditorState(ctx context.Context) (wire.EditorState, error)
}

// Options configures the Hyprland environment.
type Options struct {
	ClipboardArgv     []string
	ClipboardReadArgv []string
	TypeArgv          []string
	TypeViaClipboard  bool
	PasteShortcut     string
	KeyDelay          time.Duration
	ApplicationDirs   []string
}

// Hyprland implements Environment with hyprctl, wtype, and wl-clipboard.
type Hyprland struct {
	opts   Options
	policy policy.Policy
	logger *slog.Logger
}

// NewHyprland builds the Hyprland environment.
func NewHyprland(opts Options, p policy.Policy, logger *slog.Logger) *Hyprland {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.PasteShortcut == "" {
		opts.PasteShortcut = "CTRL,V"
	}
	if len(opts.ApplicationDirs) == 0 {
		opts.ApplicationDirs = defaultApplicationDirs()
	}
	return &Hyprland{opts: opts, policy: p, logger: logger}
}

// ClickableTargets is not available without an accessibility bridge.
func (h *Hyprland) ClickableTargets(context.Context) ([]string, error) {
	return nil, ErrUnsupported
}

// EditorState is not available without an accessibility bridge.
func (h *Hyprland) EditorState(context.Context) (wire.EditorState, error) {
	return wire.EditorState{}, ErrUnsupported
}
