// Package notification holds the in-app notification list. Entries are kept
// most-recent-first in arrival order and never re-sorted.
package notification

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	metrics "github.com/fathima-sithara/realtime-client/internal/metric"
	"github.com/fathima-sithara/realtime-client/internal/models"
)

const DefaultTTL = 10 * time.Second

type Input struct {
	Title     string
	Message   string
	Severity  models.Severity
	ActionURL string
	UserID    string
}

type ChangeKind int

const (
	Added ChangeKind = iota
	Read
	Removed
	Expired
	Cleared
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Read:
		return "read"
	case Removed:
		return "removed"
	case Expired:
		return "expired"
	case Cleared:
		return "cleared"
	}
	return "unknown"
}

// Change is delivered to subscribers after every mutation. Notification is
// zero for Cleared.
type Change struct {
	Kind         ChangeKind
	Notification models.Notification
}

type listener struct {
	id uint64
	fn func(Change)
}

type Store struct {
	mu        sync.Mutex
	items     []models.Notification
	timers    map[string]*time.Timer
	ttl       time.Duration
	now       func() time.Time
	log       *zap.SugaredLogger
	nextSub   uint64
	listeners []listener
}

// NewStore creates an empty store. ttl bounds the lifetime of info and
// success entries; zero means DefaultTTL.
func NewStore(ttl time.Duration, log *zap.SugaredLogger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{timers: map[string]*time.Timer{}, ttl: ttl, now: time.Now, log: log}
}

func newID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

// Add prepends a new unread notification and returns it.
func (s *Store) Add(in Input) models.Notification {
	sev := in.Severity
	if !sev.Valid() {
		sev = models.SeverityInfo
	}
	s.mu.Lock()
	now := s.now()
	n := models.Notification{
		ID:        newID(now),
		Title:     in.Title,
		Message:   in.Message,
		Severity:  sev,
		Timestamp: now,
		ActionURL: in.ActionURL,
		UserID:    in.UserID,
	}
	s.items = append([]models.Notification{n}, s.items...)
	if sev.Transient() {
		id := n.ID
		s.timers[id] = time.AfterFunc(s.ttl, func() { s.expire(id) })
	}
	s.mu.Unlock()

	s.publish(Change{Kind: Added, Notification: n})
	return n
}

func (s *Store) Success(title, message string) models.Notification {
	return s.Add(Input{Title: title, Message: message, Severity: models.SeveritySuccess})
}

func (s *Store) Error(title, message string) models.Notification {
	return s.Add(Input{Title: title, Message: message, Severity: models.SeverityError})
}

func (s *Store) Warning(title, message string) models.Notification {
	return s.Add(Input{Title: title, Message: message, Severity: models.SeverityWarning})
}

func (s *Store) Info(title, message string) models.Notification {
	return s.Add(Input{Title: title, Message: message, Severity: models.SeverityInfo})
}

// MarkAsRead flips one entry to read. Returns false if id is unknown or
// already read, in which case nothing changes.
func (s *Store) MarkAsRead(id string) bool {
	s.mu.Lock()
	var changed *models.Notification
	for i := range s.items {
		if s.items[i].ID == id && !s.items[i].Read {
			s.items[i].Read = true
			n := s.items[i]
			changed = &n
			break
		}
	}
	s.mu.Unlock()
	if changed == nil {
		return false
	}
	s.publish(Change{Kind: Read, Notification: *changed})
	return true
}

// MarkAllAsRead returns how many entries changed.
func (s *Store) MarkAllAsRead() int {
	s.mu.Lock()
	var changed []models.Notification
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			changed = append(changed, s.items[i])
		}
	}
	s.mu.Unlock()
	for _, n := range changed {
		s.publish(Change{Kind: Read, Notification: n})
	}
	return len(changed)
}

func (s *Store) Remove(id string) bool {
	n, ok := s.take(id)
	if ok {
		s.publish(Change{Kind: Removed, Notification: n})
	}
	return ok
}

func (s *Store) expire(id string) {
	if n, ok := s.take(id); ok {
		s.publish(Change{Kind: Expired, Notification: n})
	}
}

func (s *Store) take(id string) (models.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	for i, n := range s.items {
		if n.ID == id {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return n, true
		}
	}
	return models.Notification{}, false
}

func (s *Store) ClearAll() {
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.items = nil
	s.mu.Unlock()
	s.publish(Change{Kind: Cleared})
}

func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// List returns a copy, most recent first.
func (s *Store) List() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.items...)
}

// Subscribe registers fn for every change and returns its cancel func.
// fn runs on the mutating goroutine, or a timer goroutine for expiry.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) publish(c Change) {
	s.mu.Lock()
	ls := append([]listener(nil), s.listeners...)
	unread := 0
	for _, it := range s.items {
		if !it.Read {
			unread++
		}
	}
	s.mu.Unlock()

	metrics.UnreadNotifications.Set(float64(unread))
	s.log.Debugw("notification change", "kind", c.Kind.String(), "id", c.Notification.ID)
	for _, l := range ls {
		l.fn(c)
	}
}
