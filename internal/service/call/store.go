package call

import (
	"sort"
	"sync"

	"rtc-coordinator/internal/domain"
	"rtc-coordinator/pkg/metrics"
)

// SessionStore holds live sessions keyed by room id.
// Returned sessions are the stored pointers; callers mutate them only
// while holding the Service lock.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.CallSession
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.CallSession)}
}

// Put inserts or replaces a session
func (s *SessionStore) Put(session *domain.CallSession) {
	s.mu.Lock()
	s.sessions[session.RoomID] = session
	n := len(s.sessions)
	s.mu.Unlock()
	metrics.CallSessionsActive.Set(float64(n))
}

// Get returns the session for roomID
func (s *SessionStore) Get(roomID string) (*domain.CallSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[roomID]
	return session, ok
}

// Delete removes roomID and reports whether it was present
func (s *SessionStore) Delete(roomID string) bool {
	s.mu.Lock()
	_, ok := s.sessions[roomID]
	delete(s.sessions, roomID)
	n := len(s.sessions)
	s.mu.Unlock()
	metrics.CallSessionsActive.Set(float64(n))
	return ok
}

// List returns all sessions ordered by creation time
func (s *SessionStore) List() []*domain.CallSession {
	s.mu.RLock()
	list := make([]*domain.CallSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		list = append(list, session)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].RoomID < list[j].RoomID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// Len returns the number of live sessions
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
