package session

import (
	"sync"
	"time"

	"counterserve/internal/domain"
)

// Store holds CustomerSessions keyed by session id. Implementations own the
// TTL bookkeeping; an expired session behaves exactly like a missing one.
// All mutation happens inside Update under the store's lock, and reads come
// back as snapshots, so concurrent requests sharing a cookie serialize
// instead of racing on the live record.
type Store interface {
	// GetOrCreate returns a snapshot of the session, creating it via fresh
	// when absent or expired. Get-and-create is a single atomic step.
	GetOrCreate(sessionID string, fresh func() *domain.CustomerSession) *domain.CustomerSession

	// Update runs fn against the live session under the store lock. It
	// reports false, without calling fn, if the session is absent or expired.
	Update(sessionID string, fn func(*domain.CustomerSession)) bool

	Remove(sessionID string)
}

// MemoryStore is an in-process Store with lazy expiry. The clock is injected
// so TTL behavior is testable without sleeping.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.CustomerSession
	now      func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		sessions: make(map[string]*domain.CustomerSession),
		now:      now,
	}
}

func (s *MemoryStore) GetOrCreate(sessionID string, fresh func() *domain.CustomerSession) *domain.CustomerSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.Expired(s.now()) {
		sess = fresh()
		s.sessions[sessionID] = sess
	}
	return sess.Clone()
}

func (s *MemoryStore) Update(sessionID string, fn func(*domain.CustomerSession)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, sessionID)
		return false
	}

	fn(sess)
	return true
}

func (s *MemoryStore) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
