package client

import (
	"encoding/json"
	"sync"
)

// resultSlot is the single-assignment outcome of a call. The first fill wins; later
// fills are rejected. It is shared between the invoking goroutine and the deadline timer.
type resultSlot struct {
	mu      sync.Mutex
	filled  bool
	payload json.RawMessage
	err     error
	done    chan struct{}
}

func newResultSlot() *resultSlot {
	return &resultSlot{done: make(chan struct{})}
}

// fill stores the outcome if the slot is still empty and reports whether it did.
func (s *resultSlot) fill(payload json.RawMessage, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filled {
		return false
	}
	s.filled = true
	s.payload = payload
	s.err = err
	close(s.done)
	return true
}

func (s *resultSlot) isFilled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *resultSlot) result() (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload, s.err
}

// tracker holds the one correlation id a call is waiting on. Registering a new id
// replaces the old one; responses for any other id are not ours.
type tracker struct {
	id   string
	slot *resultSlot
}

func newTracker(slot *resultSlot) *tracker {
	return &tracker{slot: slot}
}

func (t *tracker) register(id string) {
	t.id = id
}

func (t *tracker) matches(id string) bool {
	return t.id != "" && id == t.id
}

// resolve completes the call with payload. It returns true iff id is the pending one
// and the slot was still empty.
func (t *tracker) resolve(id string, payload json.RawMessage) bool {
	if !t.matches(id) {
		return false
	}
	t.id = ""
	return t.slot.fill(payload, nil)
}

// reject is resolve for failures.
func (t *tracker) reject(id string, reason error) bool {
	if !t.matches(id) {
		return false
	}
	t.id = ""
	return t.slot.fill(nil, reason)
}
