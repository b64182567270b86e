// Package feed fans committed map events out to live subscribers.
package feed

import (
	"log/slog"
	"sync"

	"hexidle/internal/game"
)

const DefaultBuffer = 64

// Hub is a game.EventSink. Publish never blocks: a subscriber whose
// buffer is full loses the event and is counted in Dropped.
type Hub struct {
	log    *slog.Logger
	buffer int

	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  uint64
	dropped uint64
	onCount func(n int)
}

type subscriber struct {
	ch     chan game.Event
	closed bool
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{log: logger, buffer: buffer, subs: make(map[uint64]*subscriber)}
}

// OnCount registers a callback invoked with the subscriber count after
// every change. Used for the feed gauge.
func (h *Hub) OnCount(fn func(n int)) {
	h.mu.Lock()
	h.onCount = fn
	h.mu.Unlock()
}

// Subscribe returns the event channel and a cancel func. The channel is
// closed after cancel.
func (h *Hub) Subscribe() (<-chan game.Event, func()) {
	s := &subscriber{ch: make(chan game.Event, h.buffer)}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = s
	n := len(h.subs)
	fn := h.onCount
	h.mu.Unlock()
	if fn != nil {
		fn(n)
	}

	var once sync.Once
	return s.ch, func() {
		once.Do(func() { h.unsubscribe(id) })
	}
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		s.closed = true
		close(s.ch)
	}
	n := len(h.subs)
	fn := h.onCount
	h.mu.Unlock()
	if ok && fn != nil {
		fn(n)
	}
}

func (h *Hub) Publish(ev game.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		if s.closed {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped++
			h.log.Debug("feed subscriber lagging", "subscriber", id, "event", ev.Type)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
