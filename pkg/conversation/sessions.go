package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session is one visitor's state: its transcripts and a lock that serializes its chat
// submissions.
type Session struct {
	ID    string
	Store Store

	mu       sync.Mutex
	lastSeen time.Time
}

// Do runs fn with the session lock held.
func (s *Session) Do(fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.Store)
}

// Sessions is the registry of live sessions. Sessions never share stores.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
	newStore func() Store
	now      func() time.Time
}

type SessionsOption func(*Sessions)

func WithStoreFactory(f func() Store) SessionsOption {
	return func(s *Sessions) {
		s.newStore = f
	}
}

func WithSessionClock(now func() time.Time) SessionsOption {
	return func(s *Sessions) {
		s.now = now
	}
}

func NewSessions(options ...SessionsOption) *Sessions {
	ret := &Sessions{
		sessions: map[string]*Session{},
		newStore: func() Store { return NewMemoryStore() },
		now:      time.Now,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Open returns the session with the given id, creating it when absent. An empty id
// always creates a new session with a fresh id.
func (s *Sessions) Open(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			sess.lastSeen = s.now()
			return sess
		}
	} else {
		id = uuid.NewString()
	}
	sess := &Session{ID: id, Store: s.newStore(), lastSeen: s.now()}
	s.sessions[id] = sess
	log.Debug().Str("session", id).Msg("opened session")
	return sess
}

func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Close discards the session and its transcripts.
func (s *Sessions) Close(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		log.Debug().Str("session", id).Msg("closed session")
	}
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Expire closes the sessions not opened within maxIdle and returns how many were closed.
func (s *Sessions) Expire(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-maxIdle)
	n := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	if n > 0 {
		log.Debug().Int("expired", n).Msg("expired idle sessions")
	}
	return n
}
