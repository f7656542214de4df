// Package messaging keeps the conversation list and the open conversation's
// messages in sync with the REST API and the realtime transport.
//
// All state lives behind one mutex. Transport handlers run on the socket
// read goroutine and REST calls run on the caller's goroutine; neither holds
// the lock across network I/O.
package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-client/internal/api"
	metrics "github.com/fathima-sithara/realtime-client/internal/metric"
	"github.com/fathima-sithara/realtime-client/internal/models"
	"github.com/fathima-sithara/realtime-client/internal/ws"
)

var (
	ErrEmptyMessage         = errors.New("message needs text or at least one file")
	ErrNoActiveConversation = errors.New("no conversation selected")
	ErrStaleSelection       = errors.New("conversation selection superseded")
	ErrClosed               = errors.New("messaging view closed")
)

const DefaultTypingIdle = 2 * time.Second

// API is the subset of the REST client the view needs.
type API interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	GetConversation(ctx context.Context, id string) (models.Conversation, error)
	CreateConversation(ctx context.Context, in api.CreateConversationInput) (models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	UnreadCount(ctx context.Context, conversationID string) (int, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, in api.SendMessageInput) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	AddReaction(ctx context.Context, messageID, emoji string) error
	MarkConversationRead(ctx context.Context, conversationID string) error
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Notifier surfaces failures to the user.
type Notifier interface {
	Error(title, message string) models.Notification
}

type Deps struct {
	API         API
	Transport   ws.Transport
	Notifier    Notifier
	Logger      *zap.SugaredLogger
	CurrentUser models.User
	TypingIdle  time.Duration
}

// Composer is the draft state next to the input box.
type Composer struct {
	ReplyTo *models.ReplyRef
	Files   []api.File
}

type typist struct {
	userID string
	name   string
}

type View struct {
	api    API
	t      ws.Transport
	notify Notifier
	log    *zap.SugaredLogger
	self   models.User
	idle   time.Duration

	mu            sync.Mutex
	life          context.Context
	stop          context.CancelFunc
	closed        bool
	subs          []ws.Subscription
	convs         []models.Conversation
	byParticipant map[string]map[string]struct{}
	users         []models.User
	online        map[string]struct{}

	active    string
	selGen    uint64
	selCancel context.CancelFunc
	messages  []models.Message
	typing    []typist
	composer  Composer

	// typingMu orders typing emits so a stop never overtakes its start.
	typingMu    sync.Mutex
	typingTimer *time.Timer
	typingConv  string
	typingSeq   uint64
}

func New(d Deps) *View {
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.TypingIdle <= 0 {
		d.TypingIdle = DefaultTypingIdle
	}
	return &View{
		api:           d.API,
		t:             d.Transport,
		notify:        d.Notifier,
		log:           d.Logger,
		self:          d.CurrentUser,
		idle:          d.TypingIdle,
		byParticipant: map[string]map[string]struct{}{},
		online:        map[string]struct{}{},
	}
}

// Start attaches the transport handlers and loads the conversation list.
// The view's lifetime is bound to ctx and ends at Close.
func (v *View) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.life == nil {
		v.life, v.stop = context.WithCancel(ctx)
		v.subscribe()
	}
	life := v.life
	v.mu.Unlock()

	return v.LoadConversations(life)
}

// Close detaches every handler the view registered and cancels in-flight
// requests. A pending typing indicator is flushed.
func (v *View) Close() {
	v.StopTyping()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	subs := v.subs
	v.subs = nil
	if v.selCancel != nil {
		v.selCancel()
		v.selCancel = nil
	}
	if v.stop != nil {
		v.stop()
	}
	v.mu.Unlock()

	for _, s := range subs {
		v.t.Off(s)
	}
}

// scoped derives a request context that also ends with the view.
func (v *View) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	c, cancel := context.WithCancel(ctx)
	v.mu.Lock()
	life := v.life
	v.mu.Unlock()
	if life == nil {
		return c, cancel
	}
	release := context.AfterFunc(life, cancel)
	return c, func() {
		release()
		cancel()
	}
}

// fail logs err and shows it to the user, unless the request was cancelled
// because the user moved on.
func (v *View) fail(title string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrStaleSelection) {
		v.log.Debugf("%s: %v", title, err)
		return err
	}
	v.log.Errorf("%s: %v", title, err)
	if v.notify != nil {
		v.notify.Error(title, err.Error())
	}
	return err
}

func (v *View) Conversations() []models.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Conversation, len(v.convs))
	for i, c := range v.convs {
		c.Participants = append([]models.Participant(nil), c.Participants...)
		out[i] = c
	}
	return out
}

// Messages returns the open conversation's messages in display order.
func (v *View) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Message, len(v.messages))
	for i, m := range v.messages {
		out[i] = m.Clone()
	}
	return out
}

// Active returns the open conversation, if any.
func (v *View) Active() (models.Conversation, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == "" {
		return models.Conversation{}, false
	}
	if i := v.indexOfConv(v.active); i >= 0 {
		return v.convs[i], true
	}
	return models.Conversation{ID: v.active}, true
}

// TypingUsers lists who is typing in the open conversation, in the order
// they started.
func (v *View) TypingUsers() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.typing))
	for i, t := range v.typing {
		out[i] = t.name
	}
	return out
}

func (v *View) Online(userID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.online[userID]
	return ok
}

func (v *View) Users() []models.User {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.User(nil), v.users...)
}

func (v *View) Composer() Composer {
	v.mu.Lock()
	defer v.mu.Unlock()
	c := v.composer
	c.Files = append([]api.File(nil), c.Files...)
	if c.ReplyTo != nil {
		r := *c.ReplyTo
		c.ReplyTo = &r
	}
	return c
}

// SetReplyTo quotes a message of the open conversation in the next send.
func (v *View) SetReplyTo(messageID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.indexOfMessage(messageID)
	if i < 0 {
		return api.ErrNotFound
	}
	v.composer.ReplyTo = models.NewReplyRef(v.messages[i])
	return nil
}

func (v *View) ClearReplyTo() {
	v.mu.Lock()
	v.composer.ReplyTo = nil
	v.mu.Unlock()
}

func (v *View) AttachFiles(files ...api.File) {
	v.mu.Lock()
	v.composer.Files = append(v.composer.Files, files...)
	v.mu.Unlock()
}

func (v *View) ClearFiles() {
	v.mu.Lock()
	v.composer.Files = nil
	v.mu.Unlock()
}

func (v *View) indexOfConv(id string) int {
	for i := range v.convs {
		if v.convs[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *View) indexOfMessage(id string) int {
	for i := range v.messages {
		if v.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *View) syncPendingGauge() {
	n := 0
	for _, m := range v.messages {
		if m.Pending {
			n++
		}
	}
	metrics.PendingMessages.Set(float64(n))
}
