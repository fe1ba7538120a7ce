package store

import (
	"sync"

	"github.com/ashureev/vitabot/internal/domain"
)

// MemoryStore is a process-local SessionStore. Sessions live for the process
// lifetime. The dispatcher is the only writer; the lock lets metrics read
// the size concurrently. Sessions are cloned on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]domain.Session
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]domain.Session)}
}

// Get returns a copy of the stored session.
func (s *MemoryStore) Get(conversationID int64) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[conversationID]
	if !ok {
		return domain.Session{}, false
	}
	return sess.Clone(), true
}

// GetOrCreate returns the stored session or stores the one built by create.
func (s *MemoryStore) GetOrCreate(conversationID int64, create func() domain.Session) domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[conversationID]; ok {
		return sess.Clone()
	}
	sess := create()
	sess.ConversationID = conversationID
	s.sessions[conversationID] = sess.Clone()
	return sess
}

// Put stores a copy of session, replacing any previous one.
func (s *MemoryStore) Put(session domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ConversationID] = session.Clone()
}

// Len returns the number of sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
