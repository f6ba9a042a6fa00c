// Package edit turns commands into keystroke operations and keeps the
// bounded undo/redo history of applied edits.
package edit

import (
	"context"
	"unicode/utf8"
)

// Keyboard is the exclusive input actuator operations run against.
type Keyboard interface {
	PressKey(ctx context.Context, key string, modifiers []string, count int) error
	TypeText(ctx context.Context, text string) error
}

// Operation is one unit of physical input: MoveCursor, PressKey, TypeText, or Composite.
type Operation interface {
	operation()
}

// MoveCursor moves the caret horizontally between two rune offsets.
type MoveCursor struct {
	From int
	To   int
}

// PressKey presses one key Count times.
type PressKey struct {
	Key       string
	Modifiers []string
	Count     int
}

// TypeText types literal text.
type TypeText struct {
	Text string
}

// Composite runs its children in order.
type Composite []Operation

func (MoveCursor) operation() {}
func (PressKey) operation()   {}
func (TypeText) operation()   {}
func (Composite) operation()  {}

// Keystrokes counts the primitive key events an operation costs.
func Keystrokes(op Operation) int {
	switch o := op.(type) {
	case MoveCursor:
		return abs(o.To - o.From)
	case PressKey:
		return o.Count
	case TypeText:
		return utf8.RuneCountInString(o.Text)
	case Composite:
		total := 0
		for _, child := range o {
			total += Keystrokes(child)
		}
		return total
	default:
		return 0
	}
}

// Run executes an operation to completion, stopping at the first failure.
func Run(ctx context.Context, kb Keyboard, op Operation) error {
	switch o := op.(type) {
	case MoveCursor:
		change := o.To - o.From
		switch {
		case change > 0:
			return kb.PressKey(ctx, "right", nil, change)
		case change < 0:
			return kb.PressKey(ctx, "left", nil, -change)
		}
		return nil
	case PressKey:
		if o.Count <= 0 {
			return nil
		}
		return kb.PressKey(ctx, o.Key, o.Modifiers, o.Count)
	case TypeText:
		if o.Text == "" {
			return nil
		}
		return kb.TypeText(ctx, o.Text)
	case Composite:
		for _, child := range o {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := Run(ctx, kb, child); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

// Substitution replaces [start,stop) starting from cursor and returns where the caret ends.
func Substitution(start, stop int, substitution string, cursor int) (Operation, int) {
	op := Composite{
		MoveCursor{From: cursor, To: stop},
		PressKey{Key: "backspace", Count: stop - start},
		TypeText{Text: substitution},
	}
	return op, start + utf8.RuneCountInString(substitution)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
