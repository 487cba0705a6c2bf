package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/triage/internal/model"
)

// SessionStore keeps one conversation per session id. Updates to the same
// session run one at a time; different sessions proceed independently.
type SessionStore struct {
	cache Cache
	ttl   time.Duration

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionStore creates a store over c. Idle conversations expire after ttl.
func NewSessionStore(c Cache, ttl time.Duration) *SessionStore {
	return &SessionStore{
		cache: c,
		ttl:   ttl,
		locks: make(map[string]*sessionLock),
	}
}

// Get returns the stored conversation, or an empty one and false
func (s *SessionStore) Get(sessionID string) (model.Conversation, bool) {
	data, ok := s.cache.Get(SessionKey(sessionID))
	if !ok {
		return model.NewConversation(sessionID), false
	}
	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return model.NewConversation(sessionID), false
	}
	return conv, true
}

// Update runs fn on the session's conversation and stores the result. Calls
// for the same session are serialized, so fn may block (for generation)
// without another turn interleaving. When fn fails nothing is stored.
func (s *SessionStore) Update(sessionID string, fn func(model.Conversation) (model.Conversation, error)) (model.Conversation, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	conv, _ := s.Get(sessionID)
	next, err := fn(conv)
	if err != nil {
		return conv, err
	}
	next.ID = sessionID
	if err := s.put(next); err != nil {
		return conv, err
	}
	return next, nil
}

// Reset replaces the session's conversation with an empty one
func (s *SessionStore) Reset(sessionID string) (model.Conversation, error) {
	return s.Update(sessionID, func(conv model.Conversation) (model.Conversation, error) {
		return conv.Reset(), nil
	})
}

// Delete forgets the session
func (s *SessionStore) Delete(sessionID string) error {
	unlock := s.lock(sessionID)
	defer unlock()
	return s.cache.Delete(SessionKey(sessionID))
}

func (s *SessionStore) put(conv model.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	return s.cache.Set(SessionKey(conv.ID), data, s.ttl)
}

// lock acquires the per-session mutex and returns its release function
func (s *SessionStore) lock(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}
