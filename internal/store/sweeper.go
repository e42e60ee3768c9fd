package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const sweepInterval = 100 * time.Millisecond

// RunSweeper moves due entries from the delayed sorted set back onto the
// FIFO queue. Every instance runs its own sweeper, with no election unlike
// the health probe. Two sweepers that read the same due member in the same
// tick both push it, so that entry is dispatched twice; the idempotency set
// keeps its accounting to one record.
func RunSweeper(ctx context.Context, s *Store, log zerolog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := s.SweepDelayed(ctx, time.Now()); err != nil {
			log.Warn().Err(err).Msg("store: sweep delayed queue failed")
		}
	}
}
