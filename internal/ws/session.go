package ws

import (
	"context"
	"sync"
)

// Session shares one Transport between independent holders. The first
// Acquire connects it and the last Release disconnects it.
type Session struct {
	t     Transport
	mu    sync.Mutex
	refs  int
	token string
}

func NewSession(t Transport) *Session {
	return &Session{t: t}
}

// Acquire registers a holder. A failed connect still counts the holder so
// the matching Release stays balanced.
func (s *Session) Acquire(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs++
	if s.t.Connected() && token == s.token {
		return nil
	}
	if s.t.Connected() {
		_ = s.t.Disconnect()
	}
	s.token = token
	return s.t.Connect(ctx, token)
}

func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs == 0 {
		_ = s.t.Disconnect()
		s.token = ""
	}
}

func (s *Session) Holders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

func (s *Session) Transport() Transport { return s.t }
