package editor

import (
	"sync"
	"time"
)

// InsertExpiry bounds how long a typed insert is trusted as the editor's text.
const InsertExpiry = 10 * time.Second

type insert struct {
	app  string
	text string
	at   time.Time
}

// InsertHistory remembers text recently typed into an application that
// cannot report its own state.
type InsertHistory struct {
	mu      sync.Mutex
	entries []insert
	now     func() time.Time
}

func NewInsertHistory(now func() time.Time) *InsertHistory {
	if now == nil {
		now = time.Now
	}
	return &InsertHistory{now: now}
}

// Add records text typed into app.
func (h *InsertHistory) Add(app, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append([]insert{{app: app, text: text, at: h.now()}}, h.entries...)
}

// Latest returns the newest insert for app, or "" after clearing the
// history when focus moved or the insert expired.
func (h *InsertHistory) Latest(app string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return ""
	}
	head := h.entries[0]
	if head.app != app || h.now().Sub(head.at) > InsertExpiry {
		h.entries = nil
		return ""
	}
	return head.text
}

func (h *InsertHistory) Clear() {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()
}

