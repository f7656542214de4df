package messaging

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/realtime-client/internal/api"
	"github.com/fathima-sithara/realtime-client/internal/events"
	"github.com/fathima-sithara/realtime-client/internal/models"
)

// LoadConversations replaces the list from the API. Unread counts come from
// one extra call per conversation; online flags come from the local
// presence set.
func (v *View) LoadConversations(ctx context.Context) error {
	ctx, cancel := v.scoped(ctx)
	defer cancel()

	convs, err := v.api.ListConversations(ctx)
	if err != nil {
		return v.fail("Failed to load conversations", err)
	}
	for i := range convs {
		n, err := v.api.UnreadCount(ctx, convs[i].ID)
		if err != nil {
			if ctx.Err() != nil {
				return v.fail("Failed to load conversations", ctx.Err())
			}
			v.log.Warnf("unread count for %s: %v", convs[i].ID, err)
			continue
		}
		convs[i].UnreadCount = n
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range convs {
		convs[i] = v.decorate(convs[i])
		if convs[i].ID == v.active {
			convs[i].UnreadCount = 0
		}
	}
	v.convs = convs
	v.reindex()
	return nil
}

func (v *View) LoadUsers(ctx context.Context) error {
	ctx, cancel := v.scoped(ctx)
	defer cancel()

	users, err := v.api.ListUsers(ctx)
	if err != nil {
		return v.fail("Failed to load users", err)
	}
	v.mu.Lock()
	v.users = users
	v.mu.Unlock()
	return nil
}

// Select opens a conversation. The unread badge is cleared before any
// request is made, and the server read marker is moved whether or not
// history and detail load. Work still in flight for the previous selection is
// cancelled, and its late results are discarded.
func (v *View) Select(ctx context.Context, id string) error {
	v.StopTyping()

	ctx, cancel := v.scoped(ctx)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		cancel()
		return ErrClosed
	}
	if v.selCancel != nil {
		v.selCancel()
	}
	v.selGen++
	gen := v.selGen
	v.selCancel = cancel
	v.active = id
	v.messages = nil
	v.typing = nil
	v.composer = Composer{}
	if i := v.indexOfConv(id); i >= 0 {
		v.convs[i].UnreadCount = 0
	}
	v.syncPendingGauge()
	v.mu.Unlock()

	if err := v.t.Emit(events.JoinConversation, events.JoinPayload{ConversationID: id}); err != nil {
		v.log.Debugf("join %s without realtime: %v", id, err)
	}
	if err := v.api.MarkConversationRead(ctx, id); err != nil {
		v.log.Warnf("mark %s read: %v", id, err)
	}

	msgs, err := v.api.ListMessages(ctx, id)
	if err == nil && !v.current(gen) {
		err = ErrStaleSelection
	}
	if err != nil {
		return v.fail("Failed to load messages", err)
	}
	v.mu.Lock()
	if v.selGen != gen {
		v.mu.Unlock()
		return ErrStaleSelection
	}
	v.messages = mergeHistory(msgs, v.messages)
	v.syncPendingGauge()
	v.mu.Unlock()

	detail, err := v.api.GetConversation(ctx, id)
	if err != nil {
		return v.fail("Failed to load conversation", err)
	}
	v.mu.Lock()
	if v.selGen != gen {
		v.mu.Unlock()
		return ErrStaleSelection
	}
	v.applyDetail(detail)
	v.mu.Unlock()
	return nil
}

func (v *View) current(gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selGen == gen
}

// mergeHistory puts fetched history first and keeps anything that arrived
// by push or local send while the fetch was running.
func mergeHistory(history, live []models.Message) []models.Message {
	seen := make(map[string]struct{}, len(history))
	out := make([]models.Message, 0, len(history)+len(live))
	for _, m := range history {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	for _, m := range live {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}

func (v *View) applyDetail(detail models.Conversation) {
	i := v.indexOfConv(detail.ID)
	d := v.decorate(detail)
	d.UnreadCount = 0
	if i < 0 {
		v.convs = append([]models.Conversation{d}, v.convs...)
	} else {
		prev := v.convs[i]
		if d.LastMessage == "" {
			d.LastMessage = prev.LastMessage
		}
		if d.LastActivity.IsZero() {
			d.LastActivity = prev.LastActivity
		}
		v.convs[i] = d
	}
	v.reindex()
}

func (v *View) CreateConversation(ctx context.Context, in api.CreateConversationInput) (models.Conversation, error) {
	ctx, cancel := v.scoped(ctx)
	defer cancel()

	c, err := v.api.CreateConversation(ctx, in)
	if err != nil {
		return models.Conversation{}, v.fail("Failed to create conversation", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	c = v.decorate(c)
	if i := v.indexOfConv(c.ID); i >= 0 {
		v.convs = append(v.convs[:i:i], v.convs[i+1:]...)
	}
	v.convs = append([]models.Conversation{c}, v.convs...)
	v.reindex()
	return c, nil
}

// DeleteConversation removes the conversation on the server, then locally.
func (v *View) DeleteConversation(ctx context.Context, id string) error {
	ctx, cancel := v.scoped(ctx)
	defer cancel()

	if err := v.api.DeleteConversation(ctx, id); err != nil {
		return v.fail("Failed to delete conversation", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := v.indexOfConv(id); i >= 0 {
		v.convs = append(v.convs[:i:i], v.convs[i+1:]...)
	}
	if v.active == id {
		if v.selCancel != nil {
			v.selCancel()
			v.selCancel = nil
		}
		v.selGen++
		v.active = ""
		v.messages = nil
		v.typing = nil
		v.composer = Composer{}
		v.syncPendingGauge()
	}
	v.reindex()
	return nil
}

// decorate fills the derived display fields. Caller holds v.mu.
func (v *View) decorate(c models.Conversation) models.Conversation {
	explicit := c.Name
	c.Name = models.DisplayName(explicit, c.Participants, v.self.ID)
	if c.Avatar == "" {
		c.Avatar = models.AvatarInitials(explicit, c.Participants, v.self.ID)
	}
	c.Online = v.directOnline(c)
	return c
}

func (v *View) directOnline(c models.Conversation) bool {
	if c.Type != models.ConversationDirect {
		return false
	}
	for _, p := range c.OtherParticipants(v.self.ID) {
		if _, ok := v.online[p.ID]; ok {
			return true
		}
	}
	return false
}

// reindex rebuilds the participant to conversation index. The current
// user is left out so their own presence never flips a conversation.
func (v *View) reindex() {
	idx := make(map[string]map[string]struct{}, len(v.convs))
	for _, c := range v.convs {
		for _, p := range c.OtherParticipants(v.self.ID) {
			set, ok := idx[p.ID]
			if !ok {
				set = map[string]struct{}{}
				idx[p.ID] = set
			}
			set[c.ID] = struct{}{}
		}
	}
	v.byParticipant = idx
}

// setPresence updates the online set and only the conversations userID
// takes part in.
func (v *View) setPresence(userID string, online bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if online {
		v.online[userID] = struct{}{}
	} else {
		delete(v.online, userID)
	}
	for convID := range v.byParticipant[userID] {
		if i := v.indexOfConv(convID); i >= 0 {
			v.convs[i].Online = v.directOnline(v.convs[i])
		}
	}
}

func preview(m models.Message) string {
	if m.Content != "" {
		return m.Content
	}
	if n := len(m.Attachments); n > 0 {
		if n == 1 {
			return m.Attachments[0].Name
		}
		return fmt.Sprintf("%d attachments", n)
	}
	return ""
}
