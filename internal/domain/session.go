package domain

import "time"

// CustomerSession is the ephemeral per-browser wrapper around a draft cart.
// It slides forward on every order-affecting operation and is never shared
// across browsers.
type CustomerSession struct {
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Order     *Order    `json:"order,omitempty"`
}

func (s *CustomerSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy, so callers can hand out a snapshot without
// sharing the live record.
func (s *CustomerSession) Clone() *CustomerSession {
	out := *s
	out.Order = s.Order.Clone()
	return &out
}
