// Package syncer discovers AMM pools from DEX factory creation events and
// refreshes their on-chain state under a shared request throttle.
package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolsync/internal/chain"
	"poolsync/internal/checkpoint"
	"poolsync/internal/dex"
	"poolsync/internal/observer"
	"poolsync/internal/pool"
	"poolsync/internal/syncerr"
	"poolsync/internal/throttle"
)

// DefaultWindowSize is how many blocks one log query spans.
const DefaultWindowSize uint64 = 100_000

// refreshWeight is the throttle cost of one pool state refresh; a refresh
// issues several eth_calls behind a single reservation.
const refreshWeight = 4

// Config holds runtime settings for the sync engine.
type Config struct {
	// RateLimit caps weighted outbound requests per second across all
	// workers of one run. 0 means unthrottled.
	RateLimit int
	// Persist enables checkpoint writing after a successful SyncPools run.
	Persist bool
	// CheckpointName overrides the snapshot destination name.
	CheckpointName string
	// WindowSize overrides the log-query window size.
	WindowSize uint64
}

// Syncer coordinates pool discovery and state refresh across exchanges.
type Syncer struct {
	cfg    Config
	client chain.Client
	sink   checkpoint.Sink
	obs    observer.Observer
	logger *zap.Logger
}

// New builds a Syncer. The sink may be nil when persistence is disabled;
// nil logger and observer degrade to no-ops.
func New(cfg Config, client chain.Client, sink checkpoint.Sink, obs observer.Observer, logger *zap.Logger) *Syncer {
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.CheckpointName == "" {
		cfg.CheckpointName = checkpoint.DefaultDestination
	}
	if obs == nil {
		obs = observer.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		cfg:    cfg,
		client: client,
		sink:   sink,
		obs:    obs,
		logger: logger,
	}
}

// DiscoverPools crawls every exchange's creation events concurrently and
// returns the union of decoded pool skeletons without refreshing state.
// The chain head is queried exactly once and reused as the upper pagination
// bound for every exchange, so no exchange sees a different head.
func (s *Syncer) DiscoverPools(ctx context.Context, exchanges []dex.Exchange) ([]*pool.Pool, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, syncerr.Infrastructure(fmt.Errorf("query chain head: %w", err))
	}

	thr := throttle.New(s.cfg.RateLimit)

	g, gctx := errgroup.WithContext(ctx)
	results := make([][]*pool.Pool, len(exchanges))
	for i, ex := range exchanges {
		i, ex := i, ex
		g.Go(func() (err error) {
			defer syncerr.RecoverFault(&err)
			pools, err := s.CrawlExchange(gctx, ex, head, thr)
			if err != nil {
				return err
			}
			results[i] = pools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return flatten(results), nil
}

// SyncPools discovers pools and refreshes each one's on-chain state, then
// writes a checkpoint when persistence is enabled. Each exchange's full
// crawl-then-refresh pipeline runs concurrently with the others'; the
// refresh stage within one exchange is sequential to bound request
// pressure. Any error or worker fault aborts the whole call, and sibling
// pipelines are cancelled on first failure.
func (s *Syncer) SyncPools(ctx context.Context, exchanges []dex.Exchange) ([]*pool.Pool, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, syncerr.Infrastructure(fmt.Errorf("query chain head: %w", err))
	}

	thr := throttle.New(s.cfg.RateLimit)

	g, gctx := errgroup.WithContext(ctx)
	results := make([][]*pool.Pool, len(exchanges))
	for i, ex := range exchanges {
		i, ex := i, ex
		g.Go(func() (err error) {
			defer syncerr.RecoverFault(&err)
			pools, err := s.CrawlExchange(gctx, ex, head, thr)
			if err != nil {
				return err
			}
			pools, err = s.refreshExchangePools(gctx, ex, pools, thr)
			if err != nil {
				return err
			}
			results[i] = pools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	aggregated := flatten(results)

	if s.cfg.Persist {
		if err := s.writeCheckpoint(ctx, exchanges, aggregated); err != nil {
			return nil, err
		}
	}

	return aggregated, nil
}

func (s *Syncer) writeCheckpoint(ctx context.Context, exchanges []dex.Exchange, pools []*pool.Pool) error {
	if s.sink == nil {
		return fmt.Errorf("checkpoint persistence enabled but no sink configured")
	}

	closing, err := s.client.BlockNumber(ctx)
	if err != nil {
		return syncerr.Infrastructure(fmt.Errorf("query closing height: %w", err))
	}

	snapshot := checkpoint.NewSnapshot(exchanges, pools, closing)
	if err := s.sink.Write(snapshot, s.cfg.CheckpointName); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}

	s.logger.Info("checkpoint written",
		zap.String("destination", s.cfg.CheckpointName),
		zap.Uint64("height", closing),
		zap.Int("pools", len(pools)),
	)
	return nil
}

func flatten(results [][]*pool.Pool) []*pool.Pool {
	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]*pool.Pool, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}
