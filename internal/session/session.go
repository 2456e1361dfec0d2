// Package session holds the per-connection conversation state: the session
// identity, its history, and history compaction.
package session

import (
	"errors"
	"sync"

	"github.com/flitsinc/chatwire/internal/auth"
)

// ErrRunActive is returned when a run is started while another one is
// still in flight on the same session.
var ErrRunActive = errors.New("a run is already active for this session")

// Session is the server-side state of one transport connection. It is
// created on accept and destroyed on close; history is never persisted.
type Session struct {
	ID      string
	Context *Manager

	mu        sync.Mutex
	identity  *auth.Identity
	activeRun bool
}

func New() *Session {
	return &Session{Context: NewManager()}
}

// BeginRun marks the session as running. At most one run may be active.
func (s *Session) BeginRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeRun {
		return ErrRunActive
	}
	s.activeRun = true
	return nil
}

func (s *Session) EndRun() {
	s.mu.Lock()
	s.activeRun = false
	s.mu.Unlock()
}

// Identity returns the verified identity attached to this session, or nil
// before authentication.
func (s *Session) Identity() *auth.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetIdentity caches a verified identity for the connection's lifetime so
// the verifier is consulted once per connection.
func (s *Session) SetIdentity(id *auth.Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
}

// Close discards all session state.
func (s *Session) Close() {
	s.Context.Flush()
	s.mu.Lock()
	s.identity = nil
	s.activeRun = false
	s.mu.Unlock()
}
