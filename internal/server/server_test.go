package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-client/internal/api"
	"github.com/fathima-sithara/realtime-client/internal/messaging"
	"github.com/fathima-sithara/realtime-client/internal/models"
	"github.com/fathima-sithara/realtime-client/internal/notification"
)

type stubChat struct {
	active    string
	messages  []models.Message
	sent      []messaging.SendInput
	replyTo   string
	reactions []string
	selectErr error
	sendErr   error
}

func (s *stubChat) Conversations() []models.Conversation {
	return []models.Conversation{{ID: "c1", Name: "Bob"}}
}

func (s *stubChat) Active() (models.Conversation, bool) {
	return models.Conversation{ID: s.active}, s.active != ""
}

func (s *stubChat) Select(_ context.Context, id string) error {
	if s.selectErr != nil {
		return s.selectErr
	}
	s.active = id
	return nil
}

func (s *stubChat) Messages() []models.Message { return s.messages }

func (s *stubChat) Send(_ context.Context, in messaging.SendInput) (models.Message, error) {
	if s.sendErr != nil {
		return models.Message{}, s.sendErr
	}
	s.sent = append(s.sent, in)
	return models.Message{ID: "srv-1", Content: in.Content}, nil
}

func (s *stubChat) SetReplyTo(id string) error {
	if id == "missing" {
		return api.ErrNotFound
	}
	s.replyTo = id
	return nil
}

func (s *stubChat) DeleteMessage(context.Context, string) error { return nil }

func (s *stubChat) AddReaction(_ context.Context, id, emoji string) error {
	s.reactions = append(s.reactions, id+emoji)
	return nil
}

func (s *stubChat) TypingUsers() []string { return []string{"Bob"} }

func (s *stubChat) Keystroke() error {
	if s.active == "" {
		return messaging.ErrNoActiveConversation
	}
	return nil
}

func (s *stubChat) Users() []models.User { return nil }

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, s *Server, method, path, body string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &env)
	return resp.StatusCode, env
}

func newTestServer() (*Server, *stubChat, *notification.Store) {
	chat := &stubChat{}
	inbox := notification.NewStore(time.Hour, nil)
	return New(Deps{Chat: chat, Inbox: inbox, Connected: func() bool { return true }}), chat, inbox
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok","realtime":true}`, string(b))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSelectAndSend(t *testing.T) {
	s, chat, _ := newTestServer()

	status, env := do(t, s, http.MethodPost, "/v1/messages", `{"content":"hi"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "ok", env.Status)

	chat.sendErr = messaging.ErrNoActiveConversation
	status, env = do(t, s, http.MethodPost, "/v1/messages", `{"content":"hi"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "error", env.Status)
	chat.sendErr = nil

	status, _ = do(t, s, http.MethodPost, "/v1/conversations/c1/select", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "c1", chat.active)

	status, _ = do(t, s, http.MethodPost, "/v1/messages", `{"content":"again","reply_to":"m1"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "m1", chat.replyTo)
	assert.Equal(t, "again", chat.sent[1].Content)

	status, _ = do(t, s, http.MethodPost, "/v1/messages", `{"content":"x","reply_to":"missing"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSendErrorMapping(t *testing.T) {
	s, chat, _ := newTestServer()

	chat.sendErr = messaging.ErrEmptyMessage
	status, _ := do(t, s, http.MethodPost, "/v1/messages", `{"content":""}`)
	assert.Equal(t, http.StatusBadRequest, status)

	chat.sendErr = &api.Error{Op: "send_message", Status: 503}
	status, _ = do(t, s, http.MethodPost, "/v1/messages", `{"content":"x"}`)
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestReactionRequiresEmoji(t *testing.T) {
	s, chat, _ := newTestServer()

	status, _ := do(t, s, http.MethodPost, "/v1/messages/m1/reactions", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, s, http.MethodPost, "/v1/messages/m1/reactions", `{"emoji":"🎉"}`)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, []string{"m1🎉"}, chat.reactions)
}

func TestListMessagesGroupsReactions(t *testing.T) {
	s, chat, _ := newTestServer()
	chat.messages = []models.Message{{ID: "m1", Reactions: []models.Reaction{
		{Emoji: "👍", UserID: "u1"}, {Emoji: "👍", UserID: "u2"},
	}}}

	status, env := do(t, s, http.MethodGet, "/v1/messages", "")
	require.Equal(t, http.StatusOK, status)
	var out []struct {
		ID             string                 `json:"id"`
		ReactionGroups []models.ReactionGroup `json:"reactionGroups"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].ReactionGroups[0].Count)
}

func TestTyping(t *testing.T) {
	s, _, _ := newTestServer()
	status, _ := do(t, s, http.MethodPost, "/v1/typing", "")
	assert.Equal(t, http.StatusConflict, status)

	status, env := do(t, s, http.MethodGet, "/v1/typing", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `["Bob"]`, string(env.Data))
}

func TestNotificationRoutes(t *testing.T) {
	s, _, inbox := newTestServer()
	a := inbox.Warning("a", "")
	inbox.Error("b", "")

	_, env := do(t, s, http.MethodGet, "/v1/notifications", "")
	var list struct {
		Items  []models.Notification `json:"items"`
		Unread int                   `json:"unread"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Items, 2)
	assert.Equal(t, 2, list.Unread)

	status, _ := do(t, s, http.MethodPost, "/v1/notifications/"+a.ID+"/read", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, inbox.UnreadCount())

	status, _ = do(t, s, http.MethodPost, "/v1/notifications/read-all", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, inbox.UnreadCount())

	status, _ = do(t, s, http.MethodDelete, "/v1/notifications/"+a.ID, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, s, http.MethodDelete, "/v1/notifications/"+a.ID, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, s, http.MethodDelete, "/v1/notifications", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, inbox.List())
}
