package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-client/internal/events"
)

// gateway is a minimal upgrader that records frames and lets tests push.
type gateway struct {
	srv      *httptest.Server
	mu       sync.Mutex
	conns    []*websocket.Conn
	received []events.Envelope
	token    string
	auth     string
}

func newGateway(t *testing.T, refuse bool) *gateway {
	t.Helper()
	g := &gateway{}
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refuse {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.mu.Lock()
		g.conns = append(g.conns, c)
		g.token = r.URL.Query().Get("token")
		g.auth = r.Header.Get("Authorization")
		g.mu.Unlock()
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env events.Envelope
			if json.Unmarshal(data, &env) == nil {
				g.mu.Lock()
				g.received = append(g.received, env)
				g.mu.Unlock()
			}
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *gateway) url() string { return "ws" + strings.TrimPrefix(g.srv.URL, "http") }

func (g *gateway) push(t *testing.T, raw string) {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.conns)
	require.NoError(t, g.conns[len(g.conns)-1].WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (g *gateway) connCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *gateway) frames() []events.Envelope {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]events.Envelope(nil), g.received...)
}

func TestConnectIsIdempotent(t *testing.T) {
	g := newGateway(t, false)
	c := NewClient(Options{URL: g.url()})
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background(), "tok"))
	require.NoError(t, c.Connect(context.Background(), "tok"))
	assert.True(t, c.Connected())
	assert.Eventually(t, func() bool { return g.connCount() == 1 }, time.Second, 10*time.Millisecond)

	g.mu.Lock()
	assert.Equal(t, "tok", g.token)
	assert.Equal(t, "Bearer tok", g.auth)
	g.mu.Unlock()
}

func TestConnectRefused(t *testing.T) {
	g := newGateway(t, true)
	c := NewClient(Options{URL: g.url()})

	err := c.Connect(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrHandshakeRefused)
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Emit(events.JoinConversation, events.JoinPayload{ConversationID: "c"}), ErrNotConnected)
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	g := newGateway(t, false)
	c := NewClient(Options{URL: g.url()})
	defer c.Disconnect()
	require.NoError(t, c.Connect(context.Background(), "tok"))
	require.Eventually(t, func() bool { return g.connCount() == 1 }, time.Second, 10*time.Millisecond)

	var mu sync.Mutex
	var order []string
	c.On(events.Typing, func(events.Event) { mu.Lock(); order = append(order, "first"); mu.Unlock() })
	c.On(events.Typing, func(events.Event) { mu.Lock(); order = append(order, "second"); mu.Unlock() })

	g.push(t, `{"event":"typing","data":{"conversationId":"c1","userId":"u2","userName":"Bob","isTyping":true}}`)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestInvalidFramesAreDropped(t *testing.T) {
	g := newGateway(t, false)
	c := NewClient(Options{URL: g.url()})
	defer c.Disconnect()
	require.NoError(t, c.Connect(context.Background(), "tok"))
	require.Eventually(t, func() bool { return g.connCount() == 1 }, time.Second, 10*time.Millisecond)

	got := make(chan events.Event, 4)
	c.On(events.UserOnline, func(ev events.Event) { got <- ev })

	g.push(t, `not json`)
	g.push(t, `{"event":"user-online","data":{}}`)
	g.push(t, `{"event":"user-online","data":{"userId":"u7"}}`)

	select {
	case ev := <-got:
		assert.Equal(t, "u7", ev.(events.PresenceEvent).UserID)
	case <-time.After(time.Second):
		t.Fatal("valid frame not delivered")
	}
	assert.Len(t, got, 0)
}

func TestOffStopsDelivery(t *testing.T) {
	g := newGateway(t, false)
	c := NewClient(Options{URL: g.url()})
	defer c.Disconnect()
	require.NoError(t, c.Connect(context.Background(), "tok"))
	require.Eventually(t, func() bool { return g.connCount() == 1 }, time.Second, 10*time.Millisecond)

	removed := make(chan struct{}, 1)
	kept := make(chan struct{}, 1)
	sub := c.On(events.UserOffline, func(events.Event) { removed <- struct{}{} })
	c.On(events.UserOffline, func(events.Event) { kept <- struct{}{} })
	c.Off(sub)

	g.push(t, `{"event":"user-offline","data":{"userId":"u1"}}`)
	select {
	case <-kept:
	case <-time.After(time.Second):
		t.Fatal("remaining handler not called")
	}
	assert.Len(t, removed, 0)
}

func TestEmitWritesEnvelope(t *testing.T) {
	g := newGateway(t, false)
	c := NewClient(Options{URL: g.url()})
	defer c.Disconnect()
	require.NoError(t, c.Connect(context.Background(), "tok"))

	require.NoError(t, c.Emit(events.JoinConversation, events.JoinPayload{ConversationID: "c1"}))
	require.NoError(t, c.EmitTyping("c1", false))

	assert.Eventually(t, func() bool { return len(g.frames()) == 2 }, time.Second, 10*time.Millisecond)
	f := g.frames()
	assert.Equal(t, events.JoinConversation, f[0].Event)
	assert.JSONEq(t, `{"conversationId":"c1"}`, string(f[0].Data))
	assert.Equal(t, events.TypingOut, f[1].Event)
	assert.JSONEq(t, `{"conversationId":"c1","isTyping":false}`, string(f[1].Data))
}

func TestTypingStartsAreRateLimitedStopsAreNot(t *testing.T) {
	g := newGateway(t, false)
	c := NewClient(Options{URL: g.url(), TypingRPS: 1})
	defer c.Disconnect()
	require.NoError(t, c.Connect(context.Background(), "tok"))

	for i := 0; i < 5; i++ {
		require.NoError(t, c.EmitTyping("c1", true))
	}
	require.NoError(t, c.EmitTyping("c1", false))
	require.NoError(t, c.EmitTyping("c1", false))

	assert.Eventually(t, func() bool { return len(g.frames()) == 3 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, g.frames(), 3)
}

func TestServerCloseFlipsConnected(t *testing.T) {
	g := newGateway(t, false)
	c := NewClient(Options{URL: g.url()})
	require.NoError(t, c.Connect(context.Background(), "tok"))
	require.Eventually(t, func() bool { return g.connCount() == 1 }, time.Second, 10*time.Millisecond)

	g.mu.Lock()
	_ = g.conns[0].Close()
	g.mu.Unlock()

	assert.Eventually(t, func() bool { return !c.Connected() }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, c.Emit(events.JoinConversation, nil), ErrNotConnected)
}
