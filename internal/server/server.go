// Package server exposes the client's live state and user actions over a
// loopback HTTP API, plus health and prometheus metrics.
package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-client/internal/api"
	"github.com/fathima-sithara/realtime-client/internal/events"
	"github.com/fathima-sithara/realtime-client/internal/messaging"
	"github.com/fathima-sithara/realtime-client/internal/models"
)

// Chat is the messaging view as seen by the HTTP layer.
type Chat interface {
	Conversations() []models.Conversation
	Active() (models.Conversation, bool)
	Select(ctx context.Context, id string) error
	Messages() []models.Message
	Send(ctx context.Context, in messaging.SendInput) (models.Message, error)
	SetReplyTo(messageID string) error
	DeleteMessage(ctx context.Context, messageID string) error
	AddReaction(ctx context.Context, messageID, emoji string) error
	TypingUsers() []string
	Keystroke() error
	Users() []models.User
}

// Inbox is the notification store as seen by the HTTP layer.
type Inbox interface {
	List() []models.Notification
	UnreadCount() int
	MarkAsRead(id string) bool
	MarkAllAsRead() int
	Remove(id string) bool
	ClearAll()
}

type Deps struct {
	Chat      Chat
	Inbox     Inbox
	Connected func() bool
	Logger    *zap.SugaredLogger
}

type Server struct {
	app   *fiber.App
	chat  Chat
	inbox Inbox
	live  func() bool
	log   *zap.SugaredLogger
}

type sendRequest struct {
	Content string `json:"content"`
	ReplyTo string `json:"reply_to"`
}

type reactionRequest struct {
	Emoji string `json:"emoji" validate:"required"`
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Connected == nil {
		d.Connected = func() bool { return false }
	}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	s := &Server{app: app, chat: d.Chat, inbox: d.Inbox, live: d.Connected, log: d.Logger}

	app.Use(recovery(d.Logger), requestLogger(d.Logger))
	// the desktop UI is served from its own dev origin
	app.Use(cors.New(cors.Config{AllowOrigins: "*", AllowMethods: "GET,POST,DELETE"}))

	app.Get("/health", s.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/v1")
	v1.Get("/conversations", s.listConversations)
	v1.Post("/conversations/:id/select", s.selectConversation)
	v1.Get("/messages", s.listMessages)
	v1.Post("/messages", s.sendMessage)
	v1.Delete("/messages/:id", s.deleteMessage)
	v1.Post("/messages/:id/reactions", s.addReaction)
	v1.Get("/typing", s.typing)
	v1.Post("/typing", s.keystroke)
	v1.Get("/users", s.users)

	v1.Get("/notifications", s.listNotifications)
	v1.Post("/notifications/read-all", s.readAll)
	v1.Post("/notifications/:id/read", s.readNotification)
	v1.Delete("/notifications/:id", s.removeNotification)
	v1.Delete("/notifications", s.clearNotifications)

	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "realtime": s.live()})
}

func (s *Server) listConversations(c *fiber.Ctx) error {
	return jsonSuccess(c, fiber.StatusOK, s.chat.Conversations())
}

func (s *Server) selectConversation(c *fiber.Ctx) error {
	if err := s.chat.Select(c.UserContext(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	conv, _ := s.chat.Active()
	return jsonSuccess(c, fiber.StatusOK, conv)
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	msgs := s.chat.Messages()
	type view struct {
		models.Message
		ReactionGroups []models.ReactionGroup `json:"reactionGroups,omitempty"`
	}
	out := make([]view, len(msgs))
	for i, m := range msgs {
		out[i] = view{Message: m, ReactionGroups: models.GroupReactions(m.Reactions)}
	}
	return jsonSuccess(c, fiber.StatusOK, out)
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid body")
	}
	if req.ReplyTo != "" {
		if err := s.chat.SetReplyTo(req.ReplyTo); err != nil {
			return s.fail(c, err)
		}
	}
	m, err := s.chat.Send(c.UserContext(), messaging.SendInput{Content: req.Content})
	if err != nil {
		return s.fail(c, err)
	}
	return jsonSuccess(c, fiber.StatusCreated, m)
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	if err := s.chat.DeleteMessage(c.UserContext(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return jsonSuccess(c, fiber.StatusAccepted, nil)
}

func (s *Server) addReaction(c *fiber.Ctx) error {
	var req reactionRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid body")
	}
	if err := events.Validate(req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "emoji is required")
	}
	if err := s.chat.AddReaction(c.UserContext(), c.Params("id"), req.Emoji); err != nil {
		return s.fail(c, err)
	}
	return jsonSuccess(c, fiber.StatusAccepted, nil)
}

func (s *Server) typing(c *fiber.Ctx) error {
	return jsonSuccess(c, fiber.StatusOK, s.chat.TypingUsers())
}

func (s *Server) keystroke(c *fiber.Ctx) error {
	if err := s.chat.Keystroke(); err != nil {
		return s.fail(c, err)
	}
	return jsonSuccess(c, fiber.StatusAccepted, nil)
}

func (s *Server) users(c *fiber.Ctx) error {
	return jsonSuccess(c, fiber.StatusOK, s.chat.Users())
}

func (s *Server) listNotifications(c *fiber.Ctx) error {
	return jsonSuccess(c, fiber.StatusOK, fiber.Map{
		"items":  s.inbox.List(),
		"unread": s.inbox.UnreadCount(),
	})
}

func (s *Server) readNotification(c *fiber.Ctx) error {
	s.inbox.MarkAsRead(c.Params("id"))
	return jsonSuccess(c, fiber.StatusOK, fiber.Map{"unread": s.inbox.UnreadCount()})
}

func (s *Server) readAll(c *fiber.Ctx) error {
	s.inbox.MarkAllAsRead()
	return jsonSuccess(c, fiber.StatusOK, fiber.Map{"unread": s.inbox.UnreadCount()})
}

func (s *Server) removeNotification(c *fiber.Ctx) error {
	if !s.inbox.Remove(c.Params("id")) {
		return jsonError(c, fiber.StatusNotFound, "notification not found")
	}
	return jsonSuccess(c, fiber.StatusOK, nil)
}

func (s *Server) clearNotifications(c *fiber.Ctx) error {
	s.inbox.ClearAll()
	return jsonSuccess(c, fiber.StatusOK, nil)
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, messaging.ErrEmptyMessage):
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, messaging.ErrNoActiveConversation),
		errors.Is(err, messaging.ErrStaleSelection),
		errors.Is(err, context.Canceled):
		return jsonError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, api.ErrNotFound):
		return jsonError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, api.ErrUnauthorized):
		return jsonError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, api.ErrBadRequest),
		errors.Is(err, api.ErrForbidden),
		errors.Is(err, api.ErrConflict),
		errors.Is(err, api.ErrServiceUnavailable):
		return jsonError(c, fiber.StatusBadGateway, err.Error())
	}
	s.log.Errorf("request failed: %v", err)
	return jsonError(c, fiber.StatusInternalServerError, "internal error")
}
