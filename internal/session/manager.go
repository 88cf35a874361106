package session

import (
	"time"

	"counterserve/internal/domain"
)

const DefaultTTL = 300 * time.Second

// Manager owns creation, renewal and removal of CustomerSessions. Every
// mutating call slides the expiry forward, so a session stays alive as long
// as the customer keeps touching their cart. Returned sessions and orders
// are snapshots; the live records only change inside the store's lock.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store Store, ttl time.Duration, now func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, ttl: ttl, now: now}
}

// Get returns a snapshot of the session for sessionID, creating a fresh one
// atomically if absent or expired. It never fails.
func (m *Manager) Get(sessionID string) *domain.CustomerSession {
	return m.store.GetOrCreate(sessionID, func() *domain.CustomerSession {
		now := m.now()
		return &domain.CustomerSession{
			CreatedAt: now,
			ExpiresAt: now.Add(m.ttl),
		}
	})
}

// Renew extends the session's expiry from now and returns a snapshot. It
// returns nil if the session does not exist (expired or never created);
// callers surface that as a not-found condition.
func (m *Manager) Renew(sessionID string) *domain.CustomerSession {
	var snapshot *domain.CustomerSession
	ok := m.store.Update(sessionID, func(sess *domain.CustomerSession) {
		sess.ExpiresAt = m.now().Add(m.ttl)
		snapshot = sess.Clone()
	})
	if !ok {
		return nil
	}
	return snapshot
}

// Remove deletes the session. Removing an absent session is a no-op.
func (m *Manager) Remove(sessionID string) {
	m.store.Remove(sessionID)
}

// StoreOrder attaches or replaces the draft order in the session, renewing
// the expiry. It reports false if the session does not exist.
func (m *Manager) StoreOrder(sessionID string, order *domain.Order) bool {
	return m.store.Update(sessionID, func(sess *domain.CustomerSession) {
		sess.Order = order.Clone()
		sess.ExpiresAt = m.now().Add(m.ttl)
	})
}

// UpdateOrder mutates the session's draft order under the store lock,
// creating an empty draft first if the session has none, and renews the
// expiry. It returns a snapshot of the resulting order, or false if the
// session does not exist.
func (m *Manager) UpdateOrder(sessionID string, fn func(*domain.Order)) (*domain.Order, bool) {
	var snapshot *domain.Order
	ok := m.store.Update(sessionID, func(sess *domain.CustomerSession) {
		if sess.Order == nil {
			sess.Order = &domain.Order{}
		}
		fn(sess.Order)
		sess.ExpiresAt = m.now().Add(m.ttl)
		snapshot = sess.Order.Clone()
	})
	if !ok {
		return nil, false
	}
	return snapshot, true
}
