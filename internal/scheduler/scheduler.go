// Package scheduler arms one-shot no-show timers. Callbacks run on their own
// goroutines, detached from the request that armed them, so the engine
// re-validates entry state at fire time instead of trusting what was true at
// arm time.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/thanhvo2104/admitq/pkg/logger"
)

// Callback receives the entry whose timer fired. It is invoked at most once
// per Arm call, no earlier than the requested delay.
type Callback func(ctx context.Context, entryID string)

// Handle identifies one specific arming. Disarming an old handle after the
// entry was re-armed is a no-op.
type Handle struct {
	entryID string
	gen     uint64
}

type ExpiryScheduler interface {
	Arm(entryID string, delay time.Duration) Handle
	// Disarm cancels the timer if it has not fired. A lost race against the
	// firing goroutine is acceptable; the state machine's re-validation is
	// the authoritative guard.
	Disarm(h Handle)
	Stop()
}

type armedTimer struct {
	gen   uint64
	timer *time.Timer
}

type timerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*armedTimer
	nextGen uint64
	cb      Callback
	l       logger.Logger
	stopped bool
}

func NewTimerScheduler(cb Callback, l logger.Logger) ExpiryScheduler {
	return &timerScheduler{
		timers: make(map[string]*armedTimer),
		cb:     cb,
		l:      l,
	}
}

func (s *timerScheduler) Arm(entryID string, delay time.Duration) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Handle{}
	}

	// Re-arming replaces any prior timer for the same entry.
	if prev, ok := s.timers[entryID]; ok {
		prev.timer.Stop()
	}

	s.nextGen++
	gen := s.nextGen

	at := &armedTimer{gen: gen}
	at.timer = time.AfterFunc(delay, func() {
		s.fire(entryID, gen)
	})
	s.timers[entryID] = at

	return Handle{entryID: entryID, gen: gen}
}

func (s *timerScheduler) fire(entryID string, gen uint64) {
	s.mu.Lock()
	cur, ok := s.timers[entryID]
	if !ok || cur.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, entryID)
	s.mu.Unlock()

	s.cb(context.Background(), entryID)
}

func (s *timerScheduler) Disarm(h Handle) {
	if h.entryID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.timers[h.entryID]
	if !ok || cur.gen != h.gen {
		return
	}

	cur.timer.Stop()
	delete(s.timers, h.entryID)
}

func (s *timerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, at := range s.timers {
		at.timer.Stop()
		delete(s.timers, id)
	}
}
