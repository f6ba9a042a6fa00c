package edit

import (
	"strings"
	"unicode/utf8"

	"github.com/rbright/parley/internal/wire"
)

// Entry is one reversible edit: *Insert or *NativeDiff.
type Entry interface {
	entry()
}

// Insert types text; its inverse deletes it again.
type Insert struct {
	Text string
}

// NativeDiff replays a server-computed diff as keystrokes.
type NativeDiff struct {
	Command wire.Command

	beforeCursor int
	beforeSource string
	afterSource  string
}

func (*Insert) entry()     {}
func (*NativeDiff) entry() {}

// NewNativeDiff wraps a DIFF command.
func NewNativeDiff(cmd wire.Command) *NativeDiff {
	return &NativeDiff{Command: cmd, beforeCursor: -1}
}

// plan computes the forward operation without capturing state.
func plan(e Entry, state wire.EditorState) Operation {
	switch v := e.(type) {
	case *Insert:
		return TypeText{Text: v.Text}
	case *NativeDiff:
		return v.forward(state)
	default:
		return Composite{}
	}
}

// apply captures the before state and returns the forward operation.
func apply(e Entry, state wire.EditorState) Operation {
	if d, ok := e.(*NativeDiff); ok {
		d.beforeCursor = state.Cursor
		d.beforeSource = state.Source
		d.afterSource = d.Command.Source
	}
	return plan(e, state)
}

func inverse(e Entry, state wire.EditorState) Operation {
	switch v := e.(type) {
	case *Insert:
		return PressKey{Key: "backspace", Count: utf8.RuneCountInString(v.Text)}
	case *NativeDiff:
		return v.backward(state)
	default:
		return Composite{}
	}
}

// expectedUndoSource reports whether the live editor still shows what the entry produced.
func expectedUndoSource(e Entry, state wire.EditorState) bool {
	d, ok := e.(*NativeDiff)
	if !ok {
		return true
	}
	return !state.CanSetState || normalize(state.Source) == normalize(d.afterSource)
}

// forward applies changes last to first so earlier offsets stay valid.
func (d *NativeDiff) forward(state wire.EditorState) Operation {
	changes := d.Command.Changes
	ops := make(Composite, 0, len(changes)+1)
	cursor := state.Cursor
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		op, next := Substitution(c.Start, c.Stop, c.Substitution, cursor)
		ops = append(ops, op)
		cursor = next
	}
	return append(ops, MoveCursor{From: cursor, To: d.Command.Cursor})
}

// backward walks changes first to last, restoring text from the captured source.
func (d *NativeDiff) backward(state wire.EditorState) Operation {
	before := []rune(d.beforeSource)
	changes := d.Command.Changes
	ops := make(Composite, 0, len(changes)+1)
	cursor := state.Cursor
	for _, c := range changes {
		stop := c.Start + utf8.RuneCountInString(c.Substitution)
		if !state.CanGetState {
			cursor = stop
		}
		op, next := Substitution(c.Start, stop, runeSlice(before, c.Start, c.Stop), cursor)
		ops = append(ops, op)
		cursor = next
	}
	target := d.beforeCursor
	if target < 0 {
		target = cursor
	}
	return append(ops, MoveCursor{From: cursor, To: target})
}

func runeSlice(r []rune, start, stop int) string {
	start = min(max(start, 0), len(r))
	stop = min(max(stop, start), len(r))
	return string(r[start:stop])
}

var foldPunctuation = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"–", "-",
	"—", "-",
	"…", "...",
)

func normalize(text string) string {
	return foldPunctuation.Replace(strings.TrimSpace(strings.ToLower(text)))
}
