package api

import (
	"time"

	"github.com/fathima-sithara/realtime-client/internal/models"
)

// ConversationPayload is the server's conversation shape.
type ConversationPayload struct {
	ID           string               `json:"id" validate:"required"`
	Name         string               `json:"name"`
	Avatar       string               `json:"avatar"`
	Type         string               `json:"type" validate:"omitempty,oneof=direct group"`
	Participants []models.Participant `json:"participants" validate:"dive"`
	LastMessage  string               `json:"lastMessage"`
	LastActivity time.Time            `json:"lastActivity"`
}

// Model converts the payload. Display name and avatar are left as sent;
// the messaging layer derives them against the current user.
func (p ConversationPayload) Model() models.Conversation {
	c := models.Conversation{
		ID:           p.ID,
		Name:         p.Name,
		Avatar:       p.Avatar,
		Type:         models.ConversationType(p.Type),
		Participants: append([]models.Participant(nil), p.Participants...),
		LastMessage:  p.LastMessage,
		LastActivity: p.LastActivity,
	}
	if c.Type == "" {
		c.Type = models.ConversationDirect
		if len(c.Participants) > 2 {
			c.Type = models.ConversationGroup
		}
	}
	return c
}

type CreateConversationInput struct {
	Type           models.ConversationType `json:"type"`
	Name           string                  `json:"name,omitempty"`
	ParticipantIDs []string                `json:"participantIds"`
}

// File is an attachment selected for upload.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

type SendMessageInput struct {
	ConversationID string
	ClientID       string
	Content        string
	ReplyToID      string
	Files          []File
}

type sendMessageBody struct {
	ClientID  string `json:"clientId"`
	Content   string `json:"content"`
	ReplyToID string `json:"replyToId,omitempty"`
}

type reactionBody struct {
	Emoji string `json:"emoji"`
}

type unreadCountBody struct {
	Count int `json:"count" validate:"gte=0"`
}

type userPayload struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Avatar string `json:"avatar"`
}
