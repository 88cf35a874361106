package session

import (
	"sync"
	"testing"
	"time"

	"counterserve/internal/domain"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestManager(ttl time.Duration) (*Manager, *fakeClock) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock.Now)
	return NewManager(store, ttl, clock.Now), clock
}

func TestManager_Get(t *testing.T) {
	t.Run("creates session when absent", func(t *testing.T) {
		mgr, clock := newTestManager(300 * time.Second)

		sess := mgr.Get("sess-1")
		if sess == nil {
			t.Fatal("expected session to be created")
		}
		if !sess.CreatedAt.Equal(clock.Now()) {
			t.Errorf("expected created_at %v, got %v", clock.Now(), sess.CreatedAt)
		}
		if !sess.ExpiresAt.After(sess.CreatedAt) {
			t.Error("expected expires_at after created_at")
		}
	})

	t.Run("returns existing session", func(t *testing.T) {
		mgr, _ := newTestManager(300 * time.Second)

		mgr.Get("sess-1")
		mgr.StoreOrder("sess-1", &domain.Order{Status: domain.OrderStatusPending})

		second := mgr.Get("sess-1")
		if second.Order == nil {
			t.Error("expected same session with draft order")
		}
	})

	t.Run("replaces expired session", func(t *testing.T) {
		mgr, clock := newTestManager(300 * time.Second)

		mgr.Get("sess-1")
		mgr.StoreOrder("sess-1", &domain.Order{Status: domain.OrderStatusPending})

		clock.Advance(301 * time.Second)

		second := mgr.Get("sess-1")
		if second.Order != nil {
			t.Error("expected a fresh session after expiry")
		}
	})

	t.Run("returns a snapshot, not the live record", func(t *testing.T) {
		mgr, _ := newTestManager(300 * time.Second)

		first := mgr.Get("sess-1")
		first.Order = &domain.Order{Status: domain.OrderStatusCheckout}

		second := mgr.Get("sess-1")
		if second.Order != nil {
			t.Error("expected mutations on a snapshot to stay invisible")
		}
	})
}

func TestManager_Renew(t *testing.T) {
	t.Run("strictly extends expiry", func(t *testing.T) {
		mgr, clock := newTestManager(300 * time.Second)

		sess := mgr.Get("sess-1")
		before := sess.ExpiresAt

		clock.Advance(100 * time.Second)

		renewed := mgr.Renew("sess-1")
		if renewed == nil {
			t.Fatal("expected renewal to succeed")
		}
		if !renewed.ExpiresAt.After(before) {
			t.Errorf("expected expiry after %v, got %v", before, renewed.ExpiresAt)
		}
	})

	t.Run("returns nil for absent session", func(t *testing.T) {
		mgr, _ := newTestManager(300 * time.Second)

		if sess := mgr.Renew("missing"); sess != nil {
			t.Errorf("expected nil, got %+v", sess)
		}
	})

	t.Run("returns nil for expired session", func(t *testing.T) {
		mgr, clock := newTestManager(300 * time.Second)

		mgr.Get("sess-1")
		clock.Advance(301 * time.Second)

		if sess := mgr.Renew("sess-1"); sess != nil {
			t.Errorf("expected nil after expiry, got %+v", sess)
		}
	})
}

func TestManager_Remove(t *testing.T) {
	mgr, _ := newTestManager(300 * time.Second)

	mgr.Get("sess-1")
	mgr.Remove("sess-1")

	if mgr.Renew("sess-1") != nil {
		t.Error("expected session to be gone after remove")
	}

	// removing again is a no-op
	mgr.Remove("sess-1")
}

func TestManager_StoreOrder(t *testing.T) {
	t.Run("attaches order and renews expiry", func(t *testing.T) {
		mgr, clock := newTestManager(300 * time.Second)

		sess := mgr.Get("sess-1")
		before := sess.ExpiresAt

		clock.Advance(50 * time.Second)

		order := &domain.Order{Status: domain.OrderStatusCheckout}
		if !mgr.StoreOrder("sess-1", order) {
			t.Fatal("expected store to succeed")
		}

		stored := mgr.Get("sess-1")
		if stored.Order == nil || stored.Order.Status != domain.OrderStatusCheckout {
			t.Error("expected stored order in session")
		}
		if !stored.ExpiresAt.After(before) {
			t.Error("expected expiry to slide forward")
		}
	})

	t.Run("reports false for absent session", func(t *testing.T) {
		mgr, _ := newTestManager(300 * time.Second)

		if mgr.StoreOrder("missing", &domain.Order{}) {
			t.Error("expected store to fail for absent session")
		}
	})
}

func TestManager_UpdateOrder(t *testing.T) {
	t.Run("creates the draft on first mutation", func(t *testing.T) {
		mgr, _ := newTestManager(300 * time.Second)
		mgr.Get("sess-1")

		order, ok := mgr.UpdateOrder("sess-1", func(order *domain.Order) {
			order.Status = domain.OrderStatusPending
			order.Items = append(order.Items, domain.OrderItem{ItemRef: "cola", Quantity: 1, UnitPrice: 250})
		})
		if !ok {
			t.Fatal("expected update to succeed")
		}
		if len(order.Items) != 1 || order.Status != domain.OrderStatusPending {
			t.Errorf("unexpected draft %+v", order)
		}
	})

	t.Run("reports false for absent session", func(t *testing.T) {
		mgr, _ := newTestManager(300 * time.Second)

		if _, ok := mgr.UpdateOrder("missing", func(*domain.Order) {}); ok {
			t.Error("expected update to fail for absent session")
		}
	})
}

// Concurrent requests sharing a cookie must serialize on the store instead
// of racing on the live session record.
func TestManager_ConcurrentSameSession(t *testing.T) {
	mgr := NewManager(NewMemoryStore(nil), DefaultTTL, nil)
	mgr.Get("sess-1")

	const workers = 8
	const rounds = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				mgr.Get("sess-1")
				mgr.Renew("sess-1")
				mgr.UpdateOrder("sess-1", func(order *domain.Order) {
					order.Items = append(order.Items, domain.OrderItem{ItemRef: "cola", Quantity: 1, UnitPrice: 250})
				})
			}
		}()
	}
	wg.Wait()

	sess := mgr.Get("sess-1")
	if sess.Order == nil || len(sess.Order.Items) != workers*rounds {
		got := 0
		if sess.Order != nil {
			got = len(sess.Order.Items)
		}
		t.Errorf("expected %d items after concurrent updates, got %d", workers*rounds, got)
	}
}
