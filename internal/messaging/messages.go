package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/realtime-client/internal/api"
	"github.com/fathima-sithara/realtime-client/internal/models"
)

const tempIDPrefix = "temp-"

// SendInput is one send action. Nil Files or ReplyTo fall back to the
// composer state.
type SendInput struct {
	Content string
	Files   []api.File
	ReplyTo *models.ReplyRef
}

// Send appends an optimistic copy to the open conversation and posts it.
// The copy carries a client id that the server echoes back; whichever of
// the REST response or the new-message push arrives first confirms it and
// the other becomes a no-op. On failure the copy is removed.
func (v *View) Send(ctx context.Context, in SendInput) (models.Message, error) {
	text := strings.TrimSpace(in.Content)

	v.mu.Lock()
	if v.active == "" {
		v.mu.Unlock()
		return models.Message{}, ErrNoActiveConversation
	}
	files := in.Files
	if files == nil {
		files = append([]api.File(nil), v.composer.Files...)
	}
	reply := in.ReplyTo
	if reply == nil {
		reply = v.composer.ReplyTo
	}
	if text == "" && len(files) == 0 {
		v.mu.Unlock()
		return models.Message{}, ErrEmptyMessage
	}

	convID := v.active
	gen := v.selGen
	clientID := uuid.NewString()
	tmp := models.Message{
		ID:             tempIDPrefix + uuid.NewString(),
		ClientID:       clientID,
		ConversationID: convID,
		SenderID:       v.self.ID,
		SenderName:     v.self.Name,
		Content:        text,
		Type:           messageType(files),
		Timestamp:      time.Now(),
		Read:           true,
		Attachments:    attachments(files),
		Pending:        true,
	}
	if reply != nil {
		r := *reply
		tmp.ReplyTo = &r
	}
	v.messages = append(v.messages, tmp)
	v.syncPendingGauge()
	v.mu.Unlock()

	v.StopTyping()

	ctx, cancel := v.scoped(ctx)
	defer cancel()

	req := api.SendMessageInput{ConversationID: convID, ClientID: clientID, Content: text, Files: files}
	if reply != nil {
		req.ReplyToID = reply.ID
	}
	sent, err := v.api.SendMessage(ctx, req)
	if err != nil {
		v.mu.Lock()
		if i := v.indexOfPending(clientID); i >= 0 {
			v.messages = append(v.messages[:i:i], v.messages[i+1:]...)
			v.syncPendingGauge()
		}
		v.mu.Unlock()
		return models.Message{}, v.fail("Failed to send message", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selGen == gen {
		v.confirm(clientID, sent)
		v.composer = Composer{}
	}
	v.touchConversation(sent)
	if i := v.indexOfClient(clientID); i >= 0 {
		return v.messages[i].Clone(), nil
	}
	return sent, nil
}

// confirm swaps in the server id and timestamp for the entry carrying
// clientID. Content and position are kept. Caller holds v.mu.
func (v *View) confirm(clientID string, srv models.Message) bool {
	i := v.indexOfClient(clientID)
	if i < 0 || !v.messages[i].Pending {
		return false
	}
	if j := v.indexOfMessage(srv.ID); j >= 0 && j != i {
		// The same message already arrived without its client id.
		v.messages = append(v.messages[:i:i], v.messages[i+1:]...)
		v.syncPendingGauge()
		return true
	}
	m := &v.messages[i]
	m.ID = srv.ID
	if !srv.Timestamp.IsZero() {
		m.Timestamp = srv.Timestamp
	}
	m.Pending = false
	v.syncPendingGauge()
	return true
}

func (v *View) indexOfClient(clientID string) int {
	if clientID == "" {
		return -1
	}
	for i := range v.messages {
		if v.messages[i].ClientID == clientID {
			return i
		}
	}
	return -1
}

func (v *View) indexOfPending(clientID string) int {
	i := v.indexOfClient(clientID)
	if i >= 0 && v.messages[i].Pending {
		return i
	}
	return -1
}

// receive applies an inbound message. Caller holds v.mu.
func (v *View) receive(m models.Message) {
	if m.ConversationID != v.active {
		if i := v.indexOfConv(m.ConversationID); i >= 0 {
			v.convs[i].UnreadCount++
			v.convs[i].LastMessage = preview(m)
			v.convs[i].LastActivity = m.Timestamp
		} else {
			v.log.Debugf("message %s for unknown conversation %s", m.ID, m.ConversationID)
		}
		return
	}
	v.touchConversation(m)
	if v.confirm(m.ClientID, m) {
		return
	}
	if v.indexOfMessage(m.ID) >= 0 || v.indexOfClient(m.ClientID) >= 0 {
		return
	}
	if m.ClientID == "" && v.adoptPending(m) {
		return
	}
	v.messages = append(v.messages, m)
}

// adoptPending confirms the oldest pending entry with the same sender and
// content as an echo that lost its client id. The later REST response
// then finds the entry already confirmed. Caller holds v.mu.
func (v *View) adoptPending(m models.Message) bool {
	if m.SenderID != v.self.ID {
		return false
	}
	for i := range v.messages {
		p := &v.messages[i]
		if !p.Pending || p.Content != m.Content {
			continue
		}
		p.ID = m.ID
		if !m.Timestamp.IsZero() {
			p.Timestamp = m.Timestamp
		}
		p.Pending = false
		v.syncPendingGauge()
		return true
	}
	return false
}

func (v *View) touchConversation(m models.Message) {
	if i := v.indexOfConv(m.ConversationID); i >= 0 {
		v.convs[i].LastMessage = preview(m)
		if !m.Timestamp.IsZero() {
			v.convs[i].LastActivity = m.Timestamp
		}
	}
}

// AddReaction posts the reaction. The list changes only when the
// reaction-added push comes back.
func (v *View) AddReaction(ctx context.Context, messageID, emoji string) error {
	ctx, cancel := v.scoped(ctx)
	defer cancel()
	if err := v.api.AddReaction(ctx, messageID, emoji); err != nil {
		return v.fail("Failed to add reaction", err)
	}
	return nil
}

// DeleteMessage asks the server to delete. Removal waits for the
// message-deleted echo like every other participant.
func (v *View) DeleteMessage(ctx context.Context, messageID string) error {
	ctx, cancel := v.scoped(ctx)
	defer cancel()
	if err := v.api.DeleteMessage(ctx, messageID); err != nil {
		return v.fail("Failed to delete message", err)
	}
	return nil
}

func (v *View) removeMessage(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := v.indexOfMessage(id); i >= 0 {
		v.messages = append(v.messages[:i:i], v.messages[i+1:]...)
		v.syncPendingGauge()
	}
}

func (v *View) addReaction(messageID string, r models.Reaction) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := v.indexOfMessage(messageID); i >= 0 {
		v.messages[i].Reactions = append(v.messages[i].Reactions, r)
	}
}

// markRead flips Read on own messages of the open conversation. An empty
// ids set means all of them.
func (v *View) markRead(conversationID string, ids []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if conversationID != "" && conversationID != v.active {
		return
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range v.messages {
		m := &v.messages[i]
		if m.SenderID != v.self.ID {
			continue
		}
		if _, ok := want[m.ID]; len(want) == 0 || ok {
			m.Read = true
		}
	}
}

func messageType(files []api.File) models.MessageType {
	if len(files) == 0 {
		return models.MessageText
	}
	for _, f := range files {
		if !strings.HasPrefix(f.MimeType, "image/") {
			return models.MessageFile
		}
	}
	return models.MessageImage
}

func attachments(files []api.File) []models.Attachment {
	if len(files) == 0 {
		return nil
	}
	out := make([]models.Attachment, len(files))
	for i, f := range files {
		out[i] = models.Attachment{Name: f.Name, MimeType: f.MimeType, Size: int64(len(f.Data))}
	}
	return out
}
