package messaging

import (
	"github.com/fathima-sithara/realtime-client/internal/events"
)

// subscribe registers the view's transport handlers. Caller holds v.mu.
func (v *View) subscribe() {
	v.subs = append(v.subs,
		v.t.On(events.NewMessage, v.onNewMessage),
		v.t.On(events.MessageDeleted, v.onMessageDeleted),
		v.t.On(events.Typing, v.onTyping),
		v.t.On(events.ReactionAdded, v.onReactionAdded),
		v.t.On(events.MessageRead, v.onMessageRead),
		v.t.On(events.MessagesRead, v.onMessagesRead),
		v.t.On(events.UserOnline, v.onPresence),
		v.t.On(events.UserOffline, v.onPresence),
	)
}

func (v *View) onNewMessage(ev events.Event) {
	e, ok := ev.(events.NewMessageEvent)
	if !ok {
		return
	}
	m := e.Model()
	m.Read = m.Read || m.SenderID == v.self.ID
	v.mu.Lock()
	v.receive(m)
	v.mu.Unlock()
}

func (v *View) onMessageDeleted(ev events.Event) {
	if e, ok := ev.(events.MessageDeletedEvent); ok {
		v.removeMessage(e.MessageID)
	}
}

func (v *View) onTyping(ev events.Event) {
	e, ok := ev.(events.TypingEvent)
	if !ok || e.UserID == v.self.ID {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if e.ConversationID != v.active {
		return
	}
	at := -1
	for i, t := range v.typing {
		if t.userID == e.UserID {
			at = i
			break
		}
	}
	switch {
	case e.IsTyping && at < 0:
		name := e.UserName
		if name == "" {
			name = e.UserID
		}
		v.typing = append(v.typing, typist{userID: e.UserID, name: name})
	case !e.IsTyping && at >= 0:
		v.typing = append(v.typing[:at:at], v.typing[at+1:]...)
	}
}

func (v *View) onReactionAdded(ev events.Event) {
	if e, ok := ev.(events.ReactionAddedEvent); ok {
		v.addReaction(e.MessageID, e.Reaction)
	}
}

func (v *View) onMessageRead(ev events.Event) {
	if e, ok := ev.(events.MessageReadEvent); ok {
		v.markRead(e.ConversationID, []string{e.MessageID})
	}
}

func (v *View) onMessagesRead(ev events.Event) {
	if e, ok := ev.(events.MessagesReadEvent); ok {
		v.markRead(e.ConversationID, e.MessageIDs)
	}
}

func (v *View) onPresence(ev events.Event) {
	if e, ok := ev.(events.PresenceEvent); ok {
		v.setPresence(e.UserID, e.Online())
	}
}
