package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fathima-sithara/realtime-client/internal/events"
)

// Emitted is one outbound frame captured by Fake.
type Emitted struct {
	Event   string
	Payload any
}

// Fake is an in-memory Transport for tests. Inject runs a payload through
// the same decode path the real client uses.
type Fake struct {
	reg *registry

	mu          sync.Mutex
	connected   bool
	connects    int
	token       string
	emitted     []Emitted
	FailConnect error
}

func NewFake() *Fake {
	return &Fake{reg: newRegistry()}
}

func (f *Fake) Connect(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailConnect != nil {
		return f.FailConnect
	}
	if f.connected {
		return nil
	}
	f.connected = true
	f.connects++
	f.token = token
	return nil
}

func (f *Fake) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) On(event string, h Handler) Subscription { return f.reg.on(event, h) }

func (f *Fake) Off(sub Subscription) { f.reg.off(sub) }

func (f *Fake) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.emitted = append(f.emitted, Emitted{Event: event, Payload: payload})
	return nil
}

func (f *Fake) EmitTyping(conversationID string, isTyping bool) error {
	return f.Emit(events.TypingOut, events.TypingPayload{ConversationID: conversationID, IsTyping: isTyping})
}

// Inject delivers payload as if the server had pushed event. Payloads that
// fail validation are dropped and the error is returned.
func (f *Fake) Inject(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ev, err := events.Decode(event, b)
	if err != nil {
		return err
	}
	f.reg.dispatch(ev)
	return nil
}

func (f *Fake) Emitted() []Emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Emitted(nil), f.emitted...)
}

// Handlers reports how many handlers are registered for event.
func (f *Fake) Handlers(event string) int { return f.reg.count(event) }

func (f *Fake) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *Fake) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}
