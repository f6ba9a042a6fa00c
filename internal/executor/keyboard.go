package executor

import (
	"context"

	"github.com/rbright/parley/internal/edit"
	"github.com/rbright/parley/internal/editor"
	"github.com/rbright/parley/internal/host"
)

// keyboard records typed text so apps without readable state still have a
// best-effort source for the next request.
type keyboard struct {
	env     host.Environment
	inserts *editor.InsertHistory
	app     string
}

var _ edit.Keyboard = keyboard{}

func (e *Executor) keyboard() keyboard {
	return keyboard{env: e.env, inserts: e.editor.Inserts(), app: e.editor.App()}
}

func (k keyboard) PressKey(ctx context.Context, key string, modifiers []string, count int) error {
	return k.env.PressKey(ctx, key, modifiers, count)
}

func (k keyboard) TypeText(ctx context.Context, text string) error {
	k.inserts.Add(k.app, text)
	return k.env.TypeText(ctx, text)
}
