package edit

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/rbright/parley/internal/wire"
)

const (
	DefaultDepth         = 20
	DefaultMaxKeystrokes = 250
)

// History is the bounded undo/redo stack with a next-entry cursor.
type History struct {
	mu            sync.Mutex
	depth         int
	maxKeystrokes int
	entries       []Entry
	next          int
	useNeedsUndo  bool
}

// NewHistory builds a history; non-positive limits select the defaults.
func NewHistory(depth int, maxKeystrokes int) *History {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if maxKeystrokes <= 0 {
		maxKeystrokes = DefaultMaxKeystrokes
	}
	return &History{depth: depth, maxKeystrokes: maxKeystrokes}
}

func (h *History) MaxKeystrokes() int {
	return h.maxKeystrokes
}

// NeedsUndoStack reports whether undo must be synthesized locally.
func NeedsUndoStack(state wire.EditorState) bool {
	return !state.CanSetState
}

// Apply runs an entry and records it, truncating any redo tail.
// Entries at or over the keystroke budget are skipped.
func (h *History) Apply(ctx context.Context, kb Keyboard, state wire.EditorState, e Entry) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if Keystrokes(plan(e, state)) >= h.maxKeystrokes {
		return false, nil
	}

	h.useNeedsUndo = true
	if err := Run(ctx, kb, apply(e, state)); err != nil {
		return false, err
	}

	h.entries = append(h.entries[:h.next], e)
	for len(h.entries) > h.depth {
		h.entries[0] = nil
		h.entries = h.entries[1:]
	}
	h.next = len(h.entries)
	return true, nil
}

// Undo reverts the entry before the cursor when the live source still matches
// and the inverse fits the keystroke budget.
func (h *History) Undo(ctx context.Context, kb Keyboard, state wire.EditorState) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.canUndoLocked(state) {
		return false, nil
	}
	e := h.entries[h.next-1]
	op := inverse(e, state)
	if Keystrokes(op) >= h.maxKeystrokes {
		return false, nil
	}
	h.next--
	return true, Run(ctx, kb, op)
}

// Redo re-applies the entry at the cursor.
func (h *History) Redo(ctx context.Context, kb Keyboard, state wire.EditorState) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.next >= len(h.entries) {
		return false, nil
	}
	e := h.entries[h.next]
	if Keystrokes(plan(e, state)) >= h.maxKeystrokes {
		return false, nil
	}
	op := apply(e, state)
	h.next++
	return true, Run(ctx, kb, op)
}

func (h *History) CanUndo(state wire.EditorState) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canUndoLocked(state)
}

func (h *History) canUndoLocked(state wire.EditorState) bool {
	return h.next-1 >= 0 && expectedUndoSource(h.entries[h.next-1], state)
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.next < len(h.entries)
}

// Len reports how many entries are retained.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// UseNeedsUndo reports whether a following "use N" must first undo the last edit.
func (h *History) UseNeedsUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.useNeedsUndo
}

func (h *History) SetUseNeedsUndo(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useNeedsUndo = v
}

// Cost is the keystroke cost of one command against the given editor state.
// It is the single cost authority for both budget checks and execution.
func (h *History) Cost(state wire.EditorState, cmd wire.Command) int {
	switch cmd.Type {
	case wire.CommandDiff:
		if state.CanSetState {
			return 0
		}
		return Keystrokes(NewNativeDiff(cmd).forward(state))
	case wire.CommandInsert:
		return utf8.RuneCountInString(cmd.Text)
	case wire.CommandUndo:
		if !NeedsUndoStack(state) {
			return 0
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		if !h.canUndoLocked(state) {
			return 0
		}
		return Keystrokes(inverse(h.entries[h.next-1], state))
	case wire.CommandRedo:
		if !NeedsUndoStack(state) {
			return 0
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.next >= len(h.entries) {
			return 0
		}
		return Keystrokes(plan(h.entries[h.next], state))
	default:
		return 0
	}
}

// AlternativeCost sums Cost over every command of an alternative.
func (h *History) AlternativeCost(state wire.EditorState, alt wire.Alternative) int {
	total := 0
	for _, cmd := range alt.Commands {
		total += h.Cost(state, cmd)
	}
	return total
}
