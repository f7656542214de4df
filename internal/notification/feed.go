package notification

import (
	"sync"

	"github.com/fathima-sithara/realtime-client/internal/events"
	"github.com/fathima-sithara/realtime-client/internal/models"
	"github.com/fathima-sithara/realtime-client/internal/ws"
)

// Feed turns transport pushes into store entries.
type Feed struct {
	store  *Store
	selfID string

	mu   sync.Mutex
	t    ws.Transport
	subs []ws.Subscription
}

// NewFeed builds a feed for store. Pushes addressed to a user other than
// selfID are ignored; an empty selfID accepts everything.
func NewFeed(store *Store, selfID string) *Feed {
	return &Feed{store: store, selfID: selfID}
}

// Attach subscribes to the notification and task channels. Attaching again
// first detaches from the previous transport.
func (f *Feed) Attach(t ws.Transport) {
	f.Detach()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t
	f.subs = []ws.Subscription{
		t.On(events.Notification, f.onNotification),
		t.On(events.TaskUpdated, f.onTask),
		t.On(events.TaskCreated, f.onTask),
	}
}

// Detach removes exactly the handlers Attach registered.
func (f *Feed) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.t == nil {
		return
	}
	for _, s := range f.subs {
		f.t.Off(s)
	}
	f.subs = nil
	f.t = nil
}

func (f *Feed) forMe(userID string) bool {
	return userID == "" || f.selfID == "" || userID == f.selfID
}

func (f *Feed) onNotification(ev events.Event) {
	n, ok := ev.(events.NotificationEvent)
	if !ok || !f.forMe(n.UserID) {
		return
	}
	sev := models.Severity(n.Type)
	if sev == "" {
		sev = models.SeverityInfo
	}
	f.store.Add(Input{Title: n.Title, Message: n.Message, Severity: sev, ActionURL: n.ActionURL, UserID: n.UserID})
}

func (f *Feed) onTask(ev events.Event) {
	te, ok := ev.(events.TaskEvent)
	if !ok || !f.forMe(te.UserID) {
		return
	}
	title := "Task updated"
	if te.EventName() == events.TaskCreated {
		title = "Task created"
	}
	f.store.Add(Input{
		Title:     title,
		Message:   te.Title,
		Severity:  models.SeverityInfo,
		ActionURL: "/tasks/" + te.TaskID,
		UserID:    te.UserID,
	})
}
