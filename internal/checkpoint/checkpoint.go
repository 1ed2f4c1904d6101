// Package checkpoint persists sync snapshots so a later run can resume
// without recrawling from each factory's creation block.
package checkpoint

import (
	"time"

	"poolsync/internal/dex"
	"poolsync/internal/pool"
)

// DefaultDestination is the well-known snapshot name used by the sync
// engine when persistence is requested.
const DefaultDestination = "pool_sync_checkpoint.json"

// Snapshot is the persisted closing state of a successful run. It is
// constructed once and never mutated afterwards.
type Snapshot struct {
	Exchanges   []dex.Exchange `json:"exchanges"`
	Pools       []*pool.Pool   `json:"pools"`
	BlockHeight uint64         `json:"block_height"`
	CreatedAt   string         `json:"created_at"`
}

// NewSnapshot builds a snapshot stamped with the current time.
func NewSnapshot(exchanges []dex.Exchange, pools []*pool.Pool, blockHeight uint64) Snapshot {
	return Snapshot{
		Exchanges:   exchanges,
		Pools:       pools,
		BlockHeight: blockHeight,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Sink receives the closing snapshot of a successful run.
type Sink interface {
	Write(snapshot Snapshot, destination string) error
}
