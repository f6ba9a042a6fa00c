// Package hosttest provides an in-memory desktop for tests.
package hosttest

import (
	"context"
	"strings"
	"sync"

	"github.com/rbright/parley/internal/host"
	"github.com/rbright/parley/internal/wire"
)

// Call is one recorded desktop action.
type Call struct {
	Op   string
	Arg  string
	Mods []string
	N    int
}

// Fake records every action and simulates a single text buffer.
type Fake struct {
	mu sync.Mutex

	Window     host.Window
	Installed  []string
	Running    []string
	Clickables []string
	ClipText   string
	Source     []rune
	Cursor     int
	// Readable exposes Source through EditorState.
	Readable bool
	Fail     map[string]error

	Calls []Call
}

var _ host.Environment = (*Fake)(nil)

func (f *Fake) record(c Call) error {
	f.Calls = append(f.Calls, c)
	if f.Fail != nil {
		return f.Fail[c.Op]
	}
	return nil
}

func (f *Fake) PressKey(_ context.Context, key string, modifiers []string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "press", Arg: key, Mods: modifiers, N: count}); err != nil {
		return err
	}
	if len(modifiers) > 0 {
		return nil
	}
	for i := 0; i < count; i++ {
		switch key {
		case "left":
			if f.Cursor > 0 {
				f.Cursor--
			}
		case "right":
			if f.Cursor < len(f.Source) {
				f.Cursor++
			}
		case "backspace":
			if f.Cursor > 0 {
				f.Source = append(f.Source[:f.Cursor-1:f.Cursor-1], f.Source[f.Cursor:]...)
				f.Cursor--
			}
		}
	}
	return nil
}

func (f *Fake) TypeText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "type", Arg: text}); err != nil {
		return err
	}
	r := []rune(text)
	out := make([]rune, 0, len(f.Source)+len(r))
	out = append(out, f.Source[:f.Cursor]...)
	out = append(out, r...)
	out = append(out, f.Source[f.Cursor:]...)
	f.Source = out
	f.Cursor += len(r)
	return nil
}

func (f *Fake) Clipboard(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "clipboard"}); err != nil {
		return "", err
	}
	return f.ClipText, nil
}

func (f *Fake) SetClipboard(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "set_clipboard", Arg: text}); err != nil {
		return err
	}
	f.ClipText = text
	return nil
}

func (f *Fake) ActiveWindow(context.Context) (host.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil && f.Fail["active"] != nil {
		return host.Window{}, f.Fail["active"]
	}
	return f.Window, nil
}

func (f *Fake) InstalledApplications(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Installed...), nil
}

func (f *Fake) RunningApplications(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Running...), nil
}

func (f *Fake) ClickableTargets(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Clickables == nil {
		return nil, host.ErrUnsupported
	}
	return append([]string(nil), f.Clickables...), nil
}

func (f *Fake) Focus(_ context.Context, app string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(Call{Op: "focus", Arg: app})
}

func (f *Fake) Launch(_ context.Context, app string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(Call{Op: "launch", Arg: app})
}

func (f *Fake) Quit(_ context.Context, app string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(Call{Op: "quit", Arg: app})
}

func (f *Fake) EditorState(context.Context) (wire.EditorState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Readable {
		return wire.EditorState{}, host.ErrUnsupported
	}
	return wire.EditorState{Source: string(f.Source), Cursor: f.Cursor}, nil
}

// SetText replaces the buffer and cursor.
func (f *Fake) SetText(text string, cursor int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Source = []rune(text)
	f.Cursor = cursor
}

// Text returns the buffer and cursor.
func (f *Fake) Text() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.Source), f.Cursor
}

// Ops returns the recorded calls rendered as "op:arg".
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		s := c.Op
		if c.Arg != "" {
			s += ":" + c.Arg
		}
		if len(c.Mods) > 0 {
			s += "+" + strings.Join(c.Mods, "+")
		}
		out = append(out, s)
	}
	return out
}
