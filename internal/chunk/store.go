// Package chunk holds the recent speech chunks and their engine responses.
package chunk

import (
	"time"

	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/wire"
)

// DefaultCapacity bounds how many chunks are retained.
const DefaultCapacity = 50

// Record is one continuous span of detected speech.
type Record struct {
	ID        string
	AudioSize int
	Silence   int
	State     fsm.State

	Executed time.Time
	Reverted time.Time

	Response         *wire.CommandsResponse
	RevertedResponse *wire.CommandsResponse
}

// Current returns the response evaluation should act on.
func (r *Record) Current() *wire.CommandsResponse {
	if !r.Reverted.IsZero() {
		return r.RevertedResponse
	}
	return r.Response
}

// Resolved reports when the chunk was last executed or reverted.
func (r *Record) Resolved() time.Time {
	if r.Executed.After(r.Reverted) {
		return r.Executed
	}
	return r.Reverted
}

// Advance applies one lifecycle event, leaving the state untouched on error.
func (r *Record) Advance(event fsm.Event) error {
	next, err := fsm.Transition(r.State, event)
	if err != nil {
		return err
	}
	r.State = next
	return nil
}

// Store keeps chunks newest first. It is owned by a single goroutine.
type Store struct {
	capacity int
	records  []*Record
}

// NewStore returns an empty store; non-positive capacity selects DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// Add starts a new chunk at the head, evicting the oldest beyond capacity.
// Adding an id already present replaces that record.
func (s *Store) Add(id string) *Record {
	s.Remove(id)
	r := &Record{ID: id, State: fsm.StateSpeaking}
	s.records = append([]*Record{r}, s.records...)
	if len(s.records) > s.capacity {
		for i := s.capacity; i < len(s.records); i++ {
			s.records[i] = nil
		}
		s.records = s.records[:s.capacity]
	}
	return r
}

// Get finds a chunk by id.
func (s *Store) Get(id string) (*Record, bool) {
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Head returns the most recently started chunk.
func (s *Store) Head() (*Record, bool) {
	return s.Index(0)
}

// Index returns the i-th newest chunk.
func (s *Store) Index(i int) (*Record, bool) {
	if i < 0 || i >= len(s.records) {
		return nil, false
	}
	return s.records[i], true
}

// Remove drops a chunk by id.
func (s *Store) Remove(id string) {
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return
		}
	}
}

func (s *Store) Size() int {
	return len(s.records)
}

func (s *Store) Clear() {
	s.records = nil
}
