package sched

import (
	"sync"

	"overture/internal/directive"
)

const defaultSubscriberBuffer = 256

// OutputEvent is one captured line paired with the node that produced
// it. Color rides along so renderers need no second lookup.
type OutputEvent struct {
	Node  string          `json:"node"`
	Color directive.Color `json:"color,omitempty"`
	Line  Line            `json:"line"`
}

// OutputHub fans captured lines out to live subscribers. Slow
// subscribers lose lines rather than stall the producing process.
type OutputHub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan OutputEvent
	closed bool
}

func NewOutputHub() *OutputHub {
	return &OutputHub{
		subs: make(map[uint64]chan OutputEvent),
	}
}

func (h *OutputHub) Subscribe(buffer int) (<-chan OutputEvent, func()) {
	if h == nil {
		return nil, func() {}
	}
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		ch := make(chan OutputEvent)
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	ch := make(chan OutputEvent, buffer)
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing)
		}
	}
}

func (h *OutputHub) Broadcast(event OutputEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	subs := make([]chan OutputEvent, 0, len(h.subs))
	for _, ch := range h.subs {
		subs = append(subs, ch)
	}
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *OutputHub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
