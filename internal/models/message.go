package models

import (
	"time"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// replyPreviewLimit bounds the quoted parent content carried by a reply.
const replyPreviewLimit = 100

type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type Reaction struct {
	Emoji    string `json:"emoji" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	UserName string `json:"userName"`
}

// ReactionGroup is the display aggregate for one emoji.
type ReactionGroup struct {
	Emoji string
	Count int
	Users []string
}

type ReplyRef struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SenderName string `json:"senderName"`
}

type Message struct {
	ID             string       `json:"id"`
	ClientID       string       `json:"clientId,omitempty"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	SenderName     string       `json:"senderName"`
	Content        string       `json:"content"`
	Type           MessageType  `json:"type"`
	Timestamp      time.Time    `json:"timestamp"`
	Read           bool         `json:"read"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Reactions      []Reaction   `json:"reactions,omitempty"`
	ReplyTo        *ReplyRef    `json:"replyTo,omitempty"`
	// Pending marks the optimistic copy awaiting server confirmation.
	Pending bool `json:"pending,omitempty"`
}

// Clone returns a deep copy so snapshots handed out of a store cannot alias it.
func (m Message) Clone() Message {
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Reactions != nil {
		m.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		m.ReplyTo = &r
	}
	return m
}

// GroupReactions counts reactions per emoji in first-seen order. Repeated
// reactions from the same user are counted, matching what the server sends.
func GroupReactions(rs []Reaction) []ReactionGroup {
	idx := map[string]int{}
	var out []ReactionGroup
	for _, r := range rs {
		i, ok := idx[r.Emoji]
		if !ok {
			i = len(out)
			idx[r.Emoji] = i
			out = append(out, ReactionGroup{Emoji: r.Emoji})
		}
		out[i].Count++
		name := r.UserName
		if name == "" {
			name = r.UserID
		}
		out[i].Users = append(out[i].Users, name)
	}
	return out
}

// NewReplyRef quotes parent, trimming its content for the preview.
func NewReplyRef(parent Message) *ReplyRef {
	c := []rune(parent.Content)
	if len(c) > replyPreviewLimit {
		c = c[:replyPreviewLimit]
	}
	return &ReplyRef{ID: parent.ID, Content: string(c), SenderName: parent.SenderName}
}
