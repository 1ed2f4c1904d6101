// Package observer reports sync progress to an injectable callback so the
// engine stays free of UI concerns.
package observer

import (
	"go.uber.org/zap"

	"poolsync/internal/dex"
	"poolsync/internal/pool"
)

// Observer receives progress callbacks from the sync engine. Callbacks may
// fire concurrently from different exchanges' workers.
type Observer interface {
	CrawlStarted(ex dex.Exchange, fromBlock, toBlock uint64)
	WindowDone(ex dex.Exchange, fromBlock, toBlock uint64, discovered int)
	RefreshStarted(ex dex.Exchange, pools int)
	PoolSkipped(ex dex.Exchange, p *pool.Pool, err error)
	RefreshDone(ex dex.Exchange, kept int)
}

// Nop discards all progress callbacks.
type Nop struct{}

func (Nop) CrawlStarted(dex.Exchange, uint64, uint64)    {}
func (Nop) WindowDone(dex.Exchange, uint64, uint64, int) {}
func (Nop) RefreshStarted(dex.Exchange, int)             {}
func (Nop) PoolSkipped(dex.Exchange, *pool.Pool, error)  {}
func (Nop) RefreshDone(dex.Exchange, int)                {}

// Logging reports progress through a zap logger.
type Logging struct {
	logger *zap.Logger
}

// NewLogging builds a logging observer. A nil logger degrades to no-op.
func NewLogging(logger *zap.Logger) *Logging {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logging{logger: logger}
}

func (o *Logging) CrawlStarted(ex dex.Exchange, fromBlock, toBlock uint64) {
	o.logger.Info("crawl start",
		zap.String("exchange", ex.Name),
		zap.String("factory", ex.Factory.Hex()),
		zap.Uint64("from", fromBlock),
		zap.Uint64("to", toBlock),
	)
}

func (o *Logging) WindowDone(ex dex.Exchange, fromBlock, toBlock uint64, discovered int) {
	o.logger.Debug("window complete",
		zap.String("exchange", ex.Name),
		zap.Uint64("from", fromBlock),
		zap.Uint64("to", toBlock),
		zap.Int("pools", discovered),
	)
}

func (o *Logging) RefreshStarted(ex dex.Exchange, pools int) {
	o.logger.Info("refresh start",
		zap.String("exchange", ex.Name),
		zap.Int("pools", pools),
	)
}

func (o *Logging) PoolSkipped(ex dex.Exchange, p *pool.Pool, err error) {
	o.logger.Warn("pool skipped",
		zap.String("exchange", ex.Name),
		zap.String("pool", p.Address.Hex()),
		zap.Error(err),
	)
}

func (o *Logging) RefreshDone(ex dex.Exchange, kept int) {
	o.logger.Info("refresh complete",
		zap.String("exchange", ex.Name),
		zap.Int("pools", kept),
	)
}
