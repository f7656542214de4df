// Package events defines the typed payloads exchanged with the realtime
// gateway. Every inbound frame is decoded and validated here, so handlers
// only ever see well-formed values.
package events

import (
	"time"

	"github.com/fathima-sithara/realtime-client/internal/models"
)

// Inbound event names.
const (
	NewMessage     = "new-message"
	MessageDeleted = "message-deleted"
	Typing         = "typing"
	ReactionAdded  = "reaction-added"
	MessageRead    = "message-read"
	MessagesRead   = "messages-read"
	UserOnline     = "user-online"
	UserOffline    = "user-offline"
	Notification   = "notification"
	TaskUpdated    = "task-updated"
	TaskCreated    = "task-created"
)

// Outbound event names.
const (
	JoinConversation = "join-conversation"
	TypingOut        = "typing"
)

// Event is implemented by every decoded payload.
type Event interface {
	EventName() string
}

type Attachment struct {
	Name     string `json:"name" validate:"required"`
	URL      string `json:"url" validate:"required"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size" validate:"gte=0"`
}

type ReplyTo struct {
	ID         string `json:"id" validate:"required"`
	Content    string `json:"content"`
	SenderName string `json:"senderName"`
}

// MessagePayload is the server's message shape, shared by REST responses
// and the new-message push.
type MessagePayload struct {
	ID             string            `json:"id" validate:"required"`
	ClientID       string            `json:"clientId,omitempty"`
	ConversationID string            `json:"conversationId" validate:"required"`
	SenderID       string            `json:"senderId" validate:"required"`
	SenderName     string            `json:"senderName"`
	Content        string            `json:"content"`
	Type           string            `json:"type" validate:"omitempty,oneof=text image file"`
	CreatedAt      time.Time         `json:"createdAt"`
	Read           bool              `json:"read"`
	Attachments    []Attachment      `json:"attachments,omitempty" validate:"dive"`
	Reactions      []models.Reaction `json:"reactions,omitempty" validate:"dive"`
	ReplyTo        *ReplyTo          `json:"replyTo,omitempty"`
}

// Model converts the wire payload into the view-model representation.
func (p MessagePayload) Model() models.Message {
	m := models.Message{
		ID:             p.ID,
		ClientID:       p.ClientID,
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		SenderName:     p.SenderName,
		Content:        p.Content,
		Type:           models.MessageType(p.Type),
		Timestamp:      p.CreatedAt,
		Read:           p.Read,
		Reactions:      append([]models.Reaction(nil), p.Reactions...),
	}
	if m.Type == "" {
		m.Type = models.MessageText
	}
	for _, a := range p.Attachments {
		m.Attachments = append(m.Attachments, models.Attachment(a))
	}
	if p.ReplyTo != nil {
		m.ReplyTo = &models.ReplyRef{ID: p.ReplyTo.ID, Content: p.ReplyTo.Content, SenderName: p.ReplyTo.SenderName}
	}
	return m
}

type NewMessageEvent struct {
	MessagePayload
}

func (NewMessageEvent) EventName() string { return NewMessage }

type MessageDeletedEvent struct {
	MessageID      string `json:"messageId" validate:"required"`
	ConversationID string `json:"conversationId"`
}

func (MessageDeletedEvent) EventName() string { return MessageDeleted }

type TypingEvent struct {
	ConversationID string `json:"conversationId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
	UserName       string `json:"userName"`
	IsTyping       bool   `json:"isTyping"`
}

func (TypingEvent) EventName() string { return Typing }

type ReactionAddedEvent struct {
	MessageID      string          `json:"messageId" validate:"required"`
	ConversationID string          `json:"conversationId"`
	Reaction       models.Reaction `json:"reaction"`
}

func (ReactionAddedEvent) EventName() string { return ReactionAdded }

type MessageReadEvent struct {
	MessageID      string `json:"messageId" validate:"required"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func (MessageReadEvent) EventName() string { return MessageRead }

// MessagesReadEvent marks a batch as read. With no MessageIDs, every own
// message in the conversation is affected.
type MessagesReadEvent struct {
	ConversationID string   `json:"conversationId" validate:"required"`
	UserID         string   `json:"userId"`
	MessageIDs     []string `json:"messageIds,omitempty"`
}

func (MessagesReadEvent) EventName() string { return MessagesRead }

type PresenceEvent struct {
	name   string
	UserID string `json:"userId" validate:"required"`
}

func (e PresenceEvent) EventName() string { return e.name }

// Online reports whether this is a user-online event.
func (e PresenceEvent) Online() bool { return e.name == UserOnline }

type NotificationEvent struct {
	Title     string `json:"title" validate:"required"`
	Message   string `json:"message"`
	Type      string `json:"type" validate:"omitempty,oneof=info success warning error"`
	ActionURL string `json:"actionUrl,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

func (NotificationEvent) EventName() string { return Notification }

type TaskEvent struct {
	name   string
	TaskID string `json:"taskId" validate:"required"`
	Title  string `json:"title"`
	Status string `json:"status,omitempty"`
	UserID string `json:"userId,omitempty"`
}

func (e TaskEvent) EventName() string { return e.name }

// Raw carries frames whose name has no typed decoder.
type Raw struct {
	Name string
	Data []byte
}

func (r Raw) EventName() string { return r.Name }

// JoinPayload is emitted so the gateway routes a conversation's pushes to us.
type JoinPayload struct {
	ConversationID string `json:"conversationId"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}
