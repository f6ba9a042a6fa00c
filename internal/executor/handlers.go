package executor

import (
	"context"
	"fmt"

	"github.com/rbright/parley/internal/edit"
	"github.com/rbright/parley/internal/wire"
)

type handler func(context.Context, wire.Command) error

// commandHandlers lists the command types applied locally. Everything else is
// left to the plugin the response was forwarded to.
func (e *Executor) commandHandlers() map[wire.CommandType]handler {
	return map[wire.CommandType]handler{
		wire.CommandCancel:       e.cancel,
		wire.CommandClipboard:    e.clipboard,
		wire.CommandCopy:         e.copy,
		wire.CommandCustom:       e.custom,
		wire.CommandDiff:         e.diff,
		wire.CommandFocus:        e.focus,
		wire.CommandInsert:       e.insert,
		wire.CommandLaunch:       e.launch,
		wire.CommandPause:        e.pause,
		wire.CommandPress:        e.press,
		wire.CommandQuit:         e.quit,
		wire.CommandRedo:         e.redo,
		wire.CommandRun:          e.runCommand,
		wire.CommandStartDictate: e.startDictate,
		wire.CommandStopDictate:  e.stopDictate,
		wire.CommandUndo:         e.undo,
		wire.CommandUse:          e.use,
	}
}

func (e *Executor) cancel(context.Context, wire.Command) error {
	e.ClearPending()
	e.presenter.ClearAlternatives()
	return nil
}

func (e *Executor) clipboard(ctx context.Context, cmd wire.Command) error {
	e.requests.EditorState(ctx, true)
	e.requests.Callback(ctx, wire.CallbackPaste, cmd.Direction)
	return nil
}

func (e *Executor) copy(ctx context.Context, cmd wire.Command) error {
	return e.env.SetClipboard(ctx, cmd.Text)
}

func (e *Executor) diff(ctx context.Context, cmd wire.Command) error {
	state := e.editor.State(ctx, false)
	if state.CanSetState {
		return nil
	}
	_, err := e.history.Apply(ctx, e.keyboard(), state, edit.NewNativeDiff(cmd))
	return err
}

func (e *Executor) focus(ctx context.Context, cmd wire.Command) error {
	return e.env.Focus(ctx, cmd.Text)
}

func (e *Executor) insert(ctx context.Context, cmd wire.Command) error {
	text := cmd.Source
	if text == "" {
		text = cmd.Text
	}
	state := e.editor.State(ctx, false)
	_, err := e.history.Apply(ctx, e.keyboard(), state, &edit.Insert{Text: text})
	return err
}

func (e *Executor) launch(ctx context.Context, cmd wire.Command) error {
	return e.env.Launch(ctx, cmd.Text)
}

func (e *Executor) pause(ctx context.Context, _ wire.Command) error {
	e.ClearPending()
	e.presenter.ClearAlternatives()
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l != nil {
		l.Pause(ctx)
	}
	return nil
}

func (e *Executor) press(ctx context.Context, cmd wire.Command) error {
	return e.env.PressKey(ctx, cmd.PressedKey(), cmd.Modifiers, max(1, cmd.Index))
}

func (e *Executor) quit(ctx context.Context, cmd wire.Command) error {
	return e.env.Quit(ctx, cmd.Text)
}

func (e *Executor) redo(ctx context.Context, _ wire.Command) error {
	state := e.editor.State(ctx, false)
	if !edit.NeedsUndoStack(state) {
		return nil
	}
	_, err := e.history.Redo(ctx, e.keyboard(), state)
	return err
}

func (e *Executor) runCommand(ctx context.Context, cmd wire.Command) error {
	state := e.editor.State(ctx, false)
	if _, err := e.history.Apply(ctx, e.keyboard(), state, edit.NewNativeDiff(cmd)); err != nil {
		return err
	}
	return e.env.PressKey(ctx, "enter", nil, 1)
}

func (e *Executor) startDictate(context.Context, wire.Command) error {
	e.editor.SetDictating(true)
	return nil
}

func (e *Executor) stopDictate(context.Context, wire.Command) error {
	e.editor.SetDictating(false)
	return nil
}

func (e *Executor) undo(ctx context.Context, _ wire.Command) error {
	state := e.editor.State(ctx, false)
	if !edit.NeedsUndoStack(state) {
		return nil
	}
	_, err := e.history.Undo(ctx, e.keyboard(), state)
	return err
}

// use replaces the auto-executed top alternative with the selected one.
func (e *Executor) use(ctx context.Context, cmd wire.Command) error {
	if e.history.UseNeedsUndo() {
		e.actuator.Lock()
		state := e.editor.State(ctx, false)
		_, err := e.history.Undo(ctx, e.keyboard(), state)
		e.actuator.Unlock()
		if err != nil {
			return fmt.Errorf("undo before use %d: %w", cmd.Index, err)
		}
	}
	if !e.ExecutePending(ctx, cmd.Index-1) {
		e.logger.Debug("use target missing", "index", cmd.Index)
	}
	return nil
}
