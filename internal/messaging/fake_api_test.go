package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fathima-sithara/realtime-client/internal/api"
	"github.com/fathima-sithara/realtime-client/internal/models"
)

var serverTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu         sync.Mutex
	convs      []models.Conversation
	detail     map[string]models.Conversation
	unread     map[string]int
	history    map[string][]models.Message
	users      []models.User
	historyGo  map[string]chan struct{}
	historyErr error
	sendGo     chan struct{}
	sendErr    error
	apiErr     error

	sent       []api.SendMessageInput
	markedRead []string
	reactions  []string
	deleted    []string
	deletedCv  []string
	nextID     int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		detail:    map[string]models.Conversation{},
		unread:    map[string]int{},
		history:   map[string][]models.Message{},
		historyGo: map[string]chan struct{}{},
	}
}

func (f *fakeAPI) ListConversations(context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.apiErr != nil {
		return nil, f.apiErr
	}
	out := make([]models.Conversation, len(f.convs))
	copy(out, f.convs)
	return out, nil
}

func (f *fakeAPI) GetConversation(_ context.Context, id string) (models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.detail[id]; ok {
		return d, nil
	}
	for _, c := range f.convs {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Conversation{}, api.ErrNotFound
}

func (f *fakeAPI) CreateConversation(_ context.Context, in api.CreateConversationInput) (models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.apiErr != nil {
		return models.Conversation{}, f.apiErr
	}
	f.nextID++
	c := models.Conversation{ID: fmt.Sprintf("new-%d", f.nextID), Name: in.Name, Type: in.Type}
	for _, id := range in.ParticipantIDs {
		c.Participants = append(c.Participants, models.Participant{ID: id, Name: id})
	}
	return c, nil
}

func (f *fakeAPI) DeleteConversation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.apiErr != nil {
		return f.apiErr
	}
	f.deletedCv = append(f.deletedCv, id)
	return nil
}

func (f *fakeAPI) UnreadCount(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread[id], nil
}

// ListMessages ignores ctx on purpose so tests can exercise late responses.
func (f *fakeAPI) ListMessages(_ context.Context, id string) ([]models.Message, error) {
	f.mu.Lock()
	gate := f.historyGo[id]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return append([]models.Message(nil), f.history[id]...), nil
}

func (f *fakeAPI) SendMessage(_ context.Context, in api.SendMessageInput) (models.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, in)
	gate := f.sendGo
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return models.Message{}, f.sendErr
	}
	return f.serverCopy(in), nil
}

func (f *fakeAPI) serverCopy(in api.SendMessageInput) models.Message {
	return models.Message{
		ID:             "srv-" + in.ClientID,
		ClientID:       in.ClientID,
		ConversationID: in.ConversationID,
		SenderID:       "me",
		SenderName:     "Me",
		Content:        in.Content,
		Type:           models.MessageText,
		Timestamp:      serverTime,
	}
}

func (f *fakeAPI) DeleteMessage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) AddReaction(_ context.Context, id, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, id+":"+emoji)
	return nil
}

func (f *fakeAPI) MarkConversationRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, id)
	return nil
}

func (f *fakeAPI) ListUsers(context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.apiErr != nil {
		return nil, f.apiErr
	}
	return f.users, nil
}

func (f *fakeAPI) marked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.markedRead...)
}

func (f *fakeAPI) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *fakeNotifier) Error(title, message string) models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	return models.Notification{Title: title, Message: message, Severity: models.SeverityError}
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.titles)
}
