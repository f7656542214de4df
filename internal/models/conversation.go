package models

import (
	"strings"
	"time"
	"unicode"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type Participant struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

type Conversation struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Avatar       string           `json:"avatar"`
	LastMessage  string           `json:"lastMessage"`
	LastActivity time.Time        `json:"lastActivity"`
	UnreadCount  int              `json:"unreadCount"`
	Online       bool             `json:"online"`
	Type         ConversationType `json:"type"`
	Participants []Participant    `json:"participants"`
}

// OtherParticipants returns everyone but selfID, in listed order.
func (c *Conversation) OtherParticipants(selfID string) []Participant {
	out := make([]Participant, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.ID != selfID {
			out = append(out, p)
		}
	}
	return out
}

// DisplayName is the explicit group name if set, otherwise the names of all
// participants except selfID joined by ", ".
func DisplayName(explicit string, participants []Participant, selfID string) string {
	if n := strings.TrimSpace(explicit); n != "" {
		return n
	}
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.ID == selfID || p.Name == "" {
			continue
		}
		names = append(names, p.Name)
	}
	return strings.Join(names, ", ")
}

// AvatarInitials derives up to two upper-case initials from name, falling
// back to the first participant other than selfID.
func AvatarInitials(name string, participants []Participant, selfID string) string {
	if in := initials(name); in != "" {
		return in
	}
	for _, p := range participants {
		if p.ID != selfID {
			return initials(p.Name)
		}
	}
	return ""
}

func initials(name string) string {
	out := make([]rune, 0, 2)
	for _, w := range strings.Fields(name) {
		r := []rune(w)[0]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		out = append(out, unicode.ToUpper(r))
		if len(out) == 2 {
			break
		}
	}
	return string(out)
}
