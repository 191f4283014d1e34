// Package debounce provides a single-slot delayed action whose pending run is
// replaced by every new Schedule call.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Slot holds at most one pending action. Scheduling again cancels the pending
// action and starts a fresh delay.
type Slot struct {
	clock clockwork.Clock

	mu    sync.Mutex
	timer clockwork.Timer
	seq   uint64
}

func NewSlot(clock clockwork.Clock) *Slot {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Slot{clock: clock}
}

// Schedule runs fn after d unless another Schedule or Cancel happens first.
func (s *Slot) Schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		// A timer that already fired cannot be stopped, so the seq check
		// drops a run that was replaced after firing.
		if s.seq != seq {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending action, if any.
func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
}

func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
