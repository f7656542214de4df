package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-client/internal/models"
	"github.com/fathima-sithara/realtime-client/internal/notification"
)

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// drainTimeout bounds how long queued changes are flushed at shutdown.
const drainTimeout = 5 * time.Second

// Producer exports notification changes so other tools on the desktop or
// in the team's pipeline can follow them. Changes are queued and written
// by Run; a full queue drops the change rather than stall the store.
type Producer struct {
	writer writer
	topic  string
	queue  chan record
	log    *zap.SugaredLogger

	started  atomic.Bool
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

type record struct {
	Kind         string              `json:"kind"`
	Notification models.Notification `json:"notification"`
	At           time.Time           `json:"at"`
}

func NewProducer(brokers []string, topic string, log *zap.SugaredLogger) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		Async:        false,
	}
	return newProducer(w, topic, log)
}

func newProducer(w writer, topic string, log *zap.SugaredLogger) *Producer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Producer{
		writer: w,
		topic:  topic,
		queue:  make(chan record, 256),
		log:    log,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Attach starts forwarding store changes. The returned func stops it.
func (p *Producer) Attach(s *notification.Store) func() {
	return s.Subscribe(func(c notification.Change) {
		r := record{Kind: c.Kind.String(), Notification: c.Notification, At: time.Now()}
		select {
		case p.queue <- r:
		default:
			p.log.Warnw("notification export queue full, dropping", "kind", r.Kind, "id", r.Notification.ID)
		}
	})
}

// Run writes queued changes until ctx is done or Close is called. Whatever
// is still queued then is flushed within drainTimeout.
func (p *Producer) Run(ctx context.Context) {
	p.started.Store(true)
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.drain(context.Background())
			return
		case <-p.quit:
			p.drain(context.Background())
			return
		case r := <-p.queue:
			if ctx.Err() != nil {
				p.drain(context.Background(), r)
				return
			}
			if err := p.publish(ctx, r); err != nil && ctx.Err() == nil {
				p.log.Warnf("export notification %s: %v", r.Notification.ID, err)
			}
		}
	}
}

// drain writes taken, then everything left in the queue.
func (p *Producer) drain(ctx context.Context, taken ...record) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	for {
		var r record
		if len(taken) > 0 {
			r, taken = taken[0], taken[1:]
		} else {
			select {
			case r = <-p.queue:
			default:
				return
			}
		}
		if err := p.publish(ctx, r); err != nil {
			p.log.Warnf("export notification %s at shutdown: %v", r.Notification.ID, err)
		}
		if ctx.Err() != nil {
			p.log.Warnf("export drain stopped with %d changes queued: %v", len(p.queue), ctx.Err())
			return
		}
	}
}

func (p *Producer) publish(ctx context.Context, r record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	key := r.Notification.ID
	if key == "" {
		key = r.At.Format(time.RFC3339Nano)
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{Key: []byte(key), Value: b, Time: r.At})
}

// Close stops Run, waits for it to flush the queue (or for ctx), then
// closes the writer. Without a running Run the queue is flushed here.
func (p *Producer) Close(ctx context.Context) error {
	p.quitOnce.Do(func() { close(p.quit) })
	if p.started.Load() {
		select {
		case <-p.done:
		case <-ctx.Done():
			p.log.Warnf("export flush abandoned: %v", ctx.Err())
		}
	} else {
		p.drain(ctx)
	}
	return p.writer.Close()
}
