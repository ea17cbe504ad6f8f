// Package notify is the push side channel that tells each waiting
// participant their live position. Delivery is best-effort: a slow or gone
// consumer is dropped silently, never surfaced to the engine caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/thanhvo2104/admitq/internal/models"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

type Hub interface {
	// Open returns the entry's push channel, replacing and closing any
	// prior channel for the same entry (a reconnect invalidates the old
	// connection).
	Open(entryID string) <-chan models.NotificationEvent
	Push(entryID string, ev models.NotificationEvent)
	Close(entryID string)

	// Watch subscribes to the owner-facing fan-out for a resource. The
	// returned cancel func removes the watcher.
	Watch(resourceID string) (<-chan models.NotificationEvent, func())
	Broadcast(resourceID string, ev models.NotificationEvent)

	Shutdown()
}

type subscriber struct {
	ch         chan models.NotificationEvent
	lastActive time.Time
}

type hub struct {
	mu       sync.Mutex
	subs     map[string]*subscriber
	watchers map[string]map[*subscriber]struct{}

	bufSize     int
	idleTimeout time.Duration
	l           logger.Logger
	stopCh      chan struct{}
	stopOnce    sync.Once
}

func NewHub(bufSize int, idleTimeout time.Duration, l logger.Logger) Hub {
	h := &hub{
		subs:        make(map[string]*subscriber),
		watchers:    make(map[string]map[*subscriber]struct{}),
		bufSize:     bufSize,
		idleTimeout: idleTimeout,
		l:           l,
		stopCh:      make(chan struct{}),
	}

	go h.janitor()

	return h
}

func (h *hub) Open(entryID string) <-chan models.NotificationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.subs[entryID]; ok {
		close(prev.ch)
	}

	sub := &subscriber{
		ch:         make(chan models.NotificationEvent, h.bufSize),
		lastActive: time.Now(),
	}
	h.subs[entryID] = sub

	return sub.ch
}

func (h *hub) Push(entryID string, ev models.NotificationEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[entryID]
	if !ok {
		return
	}

	select {
	case sub.ch <- ev:
		sub.lastActive = time.Now()
	default:
		// Consumer stopped draining; drop it rather than block the engine.
		h.l.Debugf(context.Background(), "notify: dropping stalled channel for entry %s", entryID)
		close(sub.ch)
		delete(h.subs, entryID)
	}
}

func (h *hub) Close(entryID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[entryID]; ok {
		close(sub.ch)
		delete(h.subs, entryID)
	}
}

func (h *hub) Watch(resourceID string) (<-chan models.NotificationEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{
		ch:         make(chan models.NotificationEvent, h.bufSize),
		lastActive: time.Now(),
	}

	set, ok := h.watchers[resourceID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.watchers[resourceID] = set
	}
	set[sub] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if set, ok := h.watchers[resourceID]; ok {
			if _, present := set[sub]; present {
				delete(set, sub)
				close(sub.ch)
			}
			if len(set) == 0 {
				delete(h.watchers, resourceID)
			}
		}
	}

	return sub.ch, cancel
}

func (h *hub) Broadcast(resourceID string, ev models.NotificationEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.watchers[resourceID] {
		select {
		case sub.ch <- ev:
			sub.lastActive = time.Now()
		default:
			// A stalled watcher misses this event; it is a dashboard feed,
			// not the system of record.
		}
	}
}

// janitor expires entry channels with no delivery inside idleTimeout, so
// abandoned connections cannot accumulate.
func (h *hub) janitor() {
	interval := h.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-h.idleTimeout)

			h.mu.Lock()
			for id, sub := range h.subs {
				if sub.lastActive.Before(cutoff) {
					close(sub.ch)
					delete(h.subs, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
	for rid, set := range h.watchers {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.watchers, rid)
	}
}
