package observe

import (
	"context"

	"github.com/rbright/parley/internal/host"
	"github.com/rbright/parley/internal/wire"
)

// Environment counts capability faults of the wrapped host environment.
type Environment struct {
	host.Environment
	metrics *Metrics
}

func InstrumentEnvironment(env host.Environment, m *Metrics) *Environment {
	return &Environment{Environment: env, metrics: m}
}

func (e *Environment) fault(ctx context.Context, capability string, err error) error {
	e.metrics.CapabilityFault(ctx, capability, err)
	return err
}

func (e *Environment) PressKey(ctx context.Context, key string, modifiers []string, count int) error {
	return e.fault(ctx, "press_key", e.Environment.PressKey(ctx, key, modifiers, count))
}

func (e *Environment) TypeText(ctx context.Context, text string) error {
	return e.fault(ctx, "type_text", e.Environment.TypeText(ctx, text))
}

func (e *Environment) Clipboard(ctx context.Context) (string, error) {
	text, err := e.Environment.Clipboard(ctx)
	return text, e.fault(ctx, "clipboard", err)
}

func (e *Environment) SetClipboard(ctx context.Context, text string) error {
	return e.fault(ctx, "set_clipboard", e.Environment.SetClipboard(ctx, text))
}

func (e *Environment) ActiveWindow(ctx context.Context) (host.Window, error) {
	win, err := e.Environment.ActiveWindow(ctx)
	return win, e.fault(ctx, "active_window", err)
}

func (e *Environment) InstalledApplications(ctx context.Context) ([]string, error) {
	apps, err := e.Environment.InstalledApplications(ctx)
	return apps, e.fault(ctx, "installed_applications", err)
}

func (e *Environment) RunningApplications(ctx context.Context) ([]string, error) {
	apps, err := e.Environment.RunningApplications(ctx)
	return apps, e.fault(ctx, "running_applications", err)
}

func (e *Environment) ClickableTargets(ctx context.Context) ([]string, error) {
	targets, err := e.Environment.ClickableTargets(ctx)
	return targets, e.fault(ctx, "clickable_targets", err)
}

func (e *Environment) Focus(ctx context.Context, app string) error {
	return e.fault(ctx, "focus", e.Environment.Focus(ctx, app))
}

func (e *Environment) Launch(ctx context.Context, app string) error {
	return e.fault(ctx, "launch", e.Environment.Launch(ctx, app))
}

func (e *Environment) Quit(ctx context.Context, app string) error {
	return e.fault(ctx, "quit", e.Environment.Quit(ctx, app))
}

func (e *Environment) EditorState(ctx context.Context) (wire.EditorState, error) {
	state, err := e.Environment.EditorState(ctx)
	return state, e.fault(ctx, "editor_state", err)
}
