package orders

import (
	"context"
	"log/slog"
	"time"
)

// FirstOrderNumber is the floor for daily order numbers; numbers below 100
// are kept free for display reasons.
const FirstOrderNumber = 101

// NumberSource is the slice of the order repository the sequencer needs.
type NumberSource interface {
	TopOrderNumberSince(ctx context.Context, since time.Time) (int, error)
}

// Sequencer hands out display order numbers scoped to a rolling 24h window.
// Numbering is a soft guarantee: two concurrent placements may observe the
// same top number, and a failing store degrades to the floor instead of
// blocking placement. The order id stays the authoritative key throughout.
type Sequencer struct {
	source NumberSource
	now    func() time.Time
	logger *slog.Logger
}

func NewSequencer(source NumberSource, now func() time.Time, logger *slog.Logger) *Sequencer {
	if now == nil {
		now = time.Now
	}
	return &Sequencer{source: source, now: now, logger: logger}
}

func (s *Sequencer) Next(ctx context.Context) int {
	since := s.now().Add(-24 * time.Hour)

	top, err := s.source.TopOrderNumberSince(ctx, since)
	if err != nil {
		s.logger.Warn("order number lookup failed, falling back to floor", "error", err)
		return FirstOrderNumber
	}

	if top < FirstOrderNumber {
		return FirstOrderNumber
	}
	return top + 1
}
