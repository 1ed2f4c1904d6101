package syncer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"poolsync/internal/dex"
	"poolsync/internal/pool"
	"poolsync/internal/syncerr"
	"poolsync/internal/throttle"
)

// blockRange is an inclusive block window bounding one log query.
type blockRange struct {
	From uint64
	To   uint64
}

// blockWindows partitions [from, upperBound] into fixed-size windows. The
// final window's upper edge may exceed upperBound; the endpoint clamps the
// query to the available range. from == upperBound still yields one window.
func blockWindows(from, upperBound, size uint64) []blockRange {
	hint := uint64(1)
	if upperBound > from {
		hint = (upperBound-from)/size + 1
	}
	windows := make([]blockRange, 0, hint)
	start := from
	for {
		windows = append(windows, blockRange{From: start, To: start + size - 1})
		if start+size > upperBound {
			break
		}
		start += size
	}
	return windows
}

// CrawlExchange queries one exchange's pool-creation events over
// [ex.CreationBlock, upperBound], one concurrent worker per block window,
// and decodes each log into an empty pool skeleton. Every worker reserves
// one throttle unit before its log query. A failed log query is
// infrastructure-class; a single undecodable log fails its window
// item-class. Either aborts the whole crawl, and a worker panic surfaces
// as a typed fault instead of a decode report. Result order across windows
// follows completion order and is unspecified.
func (s *Syncer) CrawlExchange(ctx context.Context, ex dex.Exchange, upperBound uint64, thr *throttle.RequestThrottle) ([]*pool.Pool, error) {
	windows := blockWindows(ex.CreationBlock, upperBound, s.cfg.WindowSize)
	s.obs.CrawlStarted(ex, ex.CreationBlock, upperBound)

	g, gctx := errgroup.WithContext(ctx)
	results := make([][]*pool.Pool, len(windows))
	for i, window := range windows {
		i, window := i, window
		g.Go(func() (err error) {
			defer syncerr.RecoverFault(&err)

			if err := thr.Reserve(gctx, 1); err != nil {
				return err
			}

			logs, err := s.client.FilterLogs(gctx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(window.From),
				ToBlock:   new(big.Int).SetUint64(window.To),
				Addresses: []common.Address{ex.Factory},
				Topics:    [][]common.Hash{{ex.PoolCreatedTopic()}},
			})
			if err != nil {
				return syncerr.Infrastructure(fmt.Errorf("filter logs [%d, %d] for %s: %w", window.From, window.To, ex.Name, err))
			}

			pools := make([]*pool.Pool, 0, len(logs))
			for _, lg := range logs {
				p, err := ex.DecodePool(lg)
				if err != nil {
					return fmt.Errorf("decode pool creation in [%d, %d] for %s: %w", window.From, window.To, ex.Name, err)
				}
				pools = append(pools, p)
			}

			results[i] = pools
			s.obs.WindowDone(ex, window.From, window.To, len(pools))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return flatten(results), nil
}
