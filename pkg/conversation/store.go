package conversation

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Store holds the transcripts of one session, one per page key. Transcripts are created
// empty on first append and only ever grow.
type Store interface {
	Append(page string, turn *Turn) error
	// Get returns a copy of the full transcript, empty when the page has none.
	Get(page string) Conversation
	// Reset drops every transcript of the session.
	Reset()
}

type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string]Conversation
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: map[string]Conversation{}}
}

func (s *MemoryStore) Append(page string, turn *Turn) error {
	if turn == nil {
		return errors.New("turn is nil")
	}
	if err := turn.Validate(); err != nil {
		return errors.Wrapf(err, "appending to %s", page)
	}
	stored := turn.Clone()

	s.mu.Lock()
	s.logs[page] = append(s.logs[page], stored)
	n := len(s.logs[page])
	s.mu.Unlock()

	log.Debug().
		Str("page", page).
		Str("turn_id", stored.ID.String()).
		Str("role", string(stored.Role)).
		Int("length", n).
		Msg("appended turn")
	return nil
}

func (s *MemoryStore) Get(page string) Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.logs[page]
	ret := make(Conversation, len(turns))
	for i, t := range turns {
		ret[i] = t.Clone()
	}
	return ret
}

func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = map[string]Conversation{}
}

// Pages returns the page keys that have a transcript, sorted.
func (s *MemoryStore) Pages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]string, 0, len(s.logs))
	for k := range s.logs {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
