package game

import (
	"sync"
	"time"
)

// Scheduler owns a session's one-shot timers. Fired callbacks must revalidate
// the state they act on: Cancel stops a timer best-effort, and a callback that
// raced the cancel observes the cleared state and returns.
type Scheduler struct {
	mu     sync.Mutex
	nextID int64
	timers map[int64]*time.Timer
}

func newScheduler() *Scheduler {
	return &Scheduler{timers: map[int64]*time.Timer{}}
}

// Schedule arms a one-shot timer and returns its id.
func (s *Scheduler) Schedule(d time.Duration, fn func()) int64 {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.timers[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fn()
	})
	s.mu.Unlock()
	return id
}

// Cancel stops a pending timer. A timer that already fired is a no-op.
func (s *Scheduler) Cancel(id int64) {
	s.mu.Lock()
	t, ok := s.timers[id]
	if ok {
		delete(s.timers, id)
	}
	s.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// CancelAll stops every pending timer.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	timers := s.timers
	s.timers = map[int64]*time.Timer{}
	s.mu.Unlock()
	for _, t := range timers {
		t.Stop()
	}
}
