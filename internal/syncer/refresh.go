package syncer

import (
	"context"

	"go.uber.org/zap"

	"poolsync/internal/dex"
	"poolsync/internal/pool"
	"poolsync/internal/syncerr"
	"poolsync/internal/throttle"
)

// refreshExchangePools refreshes each pool's on-chain state in place,
// sequentially. This stage is throttle-bound rather than parallelism-bound:
// one refresh issues several requests, costed as a single weighted
// reservation. Fault handling is asymmetric: an infrastructure failure
// aborts the pass with no partial list, while a pool whose state cannot be
// read (revert, short data) is dropped and the rest continue.
func (s *Syncer) refreshExchangePools(ctx context.Context, ex dex.Exchange, pools []*pool.Pool, thr *throttle.RequestThrottle) ([]*pool.Pool, error) {
	s.obs.RefreshStarted(ex, len(pools))

	kept := make([]*pool.Pool, 0, len(pools))
	for _, p := range pools {
		if err := thr.Reserve(ctx, refreshWeight); err != nil {
			return nil, err
		}

		if err := p.RefreshState(ctx, s.client); err != nil {
			if syncerr.IsItem(err) {
				s.obs.PoolSkipped(ex, p, err)
				s.logger.Warn("dropping unrefreshable pool",
					zap.String("exchange", ex.Name),
					zap.String("pool", p.Address.Hex()),
					zap.Error(err),
				)
				continue
			}
			return nil, err
		}
		kept = append(kept, p)
	}

	s.obs.RefreshDone(ex, len(kept))
	return kept, nil
}
