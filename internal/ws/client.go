package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/realtime-client/internal/events"
	metrics "github.com/fathima-sithara/realtime-client/internal/metric"
)

type Options struct {
	URL            string
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	// TypingRPS caps typing=true emits per second. Zero disables the cap.
	TypingRPS float64
	Dialer    *websocket.Dialer
	Logger    *zap.SugaredLogger
}

// Client is the gorilla/websocket Transport. One Client owns at most one
// live connection; Connect while connected is a no-op.
type Client struct {
	opts   Options
	reg    *registry
	log    *zap.SugaredLogger
	typing *rate.Limiter
	mu     sync.Mutex
	conn   *connection
}

type connection struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *connection) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func NewClient(opts Options) *Client {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.WriteDeadline <= 0 {
		opts.WriteDeadline = 10 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 * 1024
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	c := &Client{opts: opts, reg: newRegistry(), log: opts.Logger}
	if opts.TypingRPS > 0 {
		burst := int(opts.TypingRPS)
		if burst < 1 {
			burst = 1
		}
		c.typing = rate.NewLimiter(rate.Limit(opts.TypingRPS), burst)
	}
	return c
}

// Connect dials the gateway with token. It fails when the handshake is
// refused; callers are expected to carry on without realtime updates.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)

	wsConn, resp, err := c.opts.Dialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: status %d", ErrHandshakeRefused, resp.StatusCode)
		}
		return fmt.Errorf("%w: %v", ErrHandshakeRefused, err)
	}

	conn := &connection{ws: wsConn, send: make(chan []byte, 256), done: make(chan struct{})}
	c.conn = conn
	metrics.Connected.Set(1)
	c.log.Infow("realtime connected", "url", c.opts.URL)

	go c.writePump(conn)
	go c.readPump(conn)
	return nil
}

// Disconnect closes the live connection, if any.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	conn.close()
	metrics.Connected.Set(0)
	return nil
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) On(event string, h Handler) Subscription { return c.reg.on(event, h) }

func (c *Client) Off(sub Subscription) { c.reg.off(sub) }

// Emit queues a frame for the writer. Delivery is not acknowledged.
func (c *Client) Emit(event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	b, err := events.Encode(event, payload)
	if err != nil {
		return err
	}
	select {
	case conn.send <- b:
		metrics.EventsEmitted.WithLabelValues(event).Inc()
		return nil
	case <-conn.done:
		return ErrNotConnected
	default:
		return ErrSendQueueFull
	}
}

// EmitTyping sends a typing start/stop frame. Starts beyond the configured
// rate are dropped silently; stops always go out.
func (c *Client) EmitTyping(conversationID string, isTyping bool) error {
	if isTyping && c.typing != nil && !c.typing.Allow() {
		return nil
	}
	return c.Emit(events.TypingOut, events.TypingPayload{ConversationID: conversationID, IsTyping: isTyping})
}

func (c *Client) readPump(conn *connection) {
	defer c.dropped(conn)

	conn.ws.SetReadLimit(c.opts.MaxMessageSize)
	readWait := 2 * c.opts.PingInterval
	_ = conn.ws.SetReadDeadline(time.Now().Add(readWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		mt, data, err := conn.ws.ReadMessage()
		if err != nil {
			select {
			case <-conn.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Warnf("realtime read error: %v", err)
				} else {
					c.log.Infof("realtime connection closed: %v", err)
				}
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(readWait))
		if mt != websocket.TextMessage {
			continue
		}
		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			metrics.EventsRejected.WithLabelValues("unknown").Inc()
			c.log.Warnf("realtime frame dropped: malformed envelope")
			continue
		}
		ev, err := events.Decode(env.Event, env.Data)
		if err != nil {
			metrics.EventsRejected.WithLabelValues(env.Event).Inc()
			c.log.Warnf("realtime frame dropped: %v", err)
			continue
		}
		metrics.EventsReceived.WithLabelValues(env.Event).Inc()
		c.reg.dispatch(ev)
	}
}

func (c *Client) writePump(conn *connection) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.close()
	}()
	for {
		select {
		case b := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteDeadline))
			if err := conn.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Warnf("realtime write error: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteDeadline)); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.log.Warnf("realtime ping error: %v", err)
				}
				return
			}
		case <-conn.done:
			return
		}
	}
}

// dropped forgets conn after the server side goes away. A later Connect
// dials afresh; nothing reconnects on its own.
func (c *Client) dropped(conn *connection) {
	conn.close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		metrics.Connected.Set(0)
	}
	c.mu.Unlock()
}
