package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/fathima-sithara/realtime-client/internal/events"
)

var (
	ErrNotConnected     = errors.New("realtime connection not established")
	ErrSendQueueFull    = errors.New("realtime send queue full")
	ErrHandshakeRefused = errors.New("realtime handshake refused")
)

// Handler receives a decoded inbound event on the read goroutine.
type Handler func(events.Event)

// Subscription identifies one On registration so it can be removed.
type Subscription struct {
	event string
	id    uint64
}

// Transport is the realtime channel the stores and view-models consume.
type Transport interface {
	Connect(ctx context.Context, token string) error
	Disconnect() error
	Connected() bool
	On(event string, h Handler) Subscription
	Off(sub Subscription)
	Emit(event string, payload any) error
	EmitTyping(conversationID string, isTyping bool) error
}

type entry struct {
	id uint64
	h  Handler
}

// registry keeps handlers per event name in registration order.
type registry struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]entry
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string][]entry)}
}

func (r *registry) on(event string, h Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.handlers[event] = append(r.handlers[event], entry{id: r.nextID, h: h})
	return Subscription{event: event, id: r.nextID}
}

func (r *registry) off(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.handlers[sub.event]
	for i, e := range list {
		if e.id == sub.id {
			r.handlers[sub.event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.handlers[sub.event]) == 0 {
		delete(r.handlers, sub.event)
	}
}

func (r *registry) count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}

// dispatch calls the handlers registered at the moment of delivery. The lock
// is not held while they run so handlers may call On/Off.
func (r *registry) dispatch(ev events.Event) {
	r.mu.RLock()
	list := append([]entry(nil), r.handlers[ev.EventName()]...)
	r.mu.RUnlock()
	for _, e := range list {
		e.h(ev)
	}
}
