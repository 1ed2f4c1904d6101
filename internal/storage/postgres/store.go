// Package postgres persists discovered pools and sync heights for
// consumers that want the registry queryable outside checkpoint files.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolsync/internal/pool"
)

// DefaultSyncName keys the sync_state row written after a full run.
const DefaultSyncName = "poolsync"

// Store provides Postgres persistence for the pool registry.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pgPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pgPool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPools inserts or updates the discovered pools in one batch.
func (s *Store) UpsertPools(ctx context.Context, pools []*pool.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_address, factory, token0, token1, variant, created_block,
				reserve0, reserve1, fee, tick_spacing, liquidity, sqrt_price_x96, tick,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				liquidity = EXCLUDED.liquidity,
				sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
				tick = EXCLUDED.tick,
				updated_at = now()
		`,
			p.Address.Hex(),
			p.Factory.Hex(),
			p.Token0.Hex(),
			p.Token1.Hex(),
			p.Variant.String(),
			int64(p.CreatedBlock),
			bigIntString(p.Reserve0),
			bigIntString(p.Reserve1),
			int64(p.Fee),
			p.TickSpacing,
			bigIntString(p.Liquidity),
			bigIntString(p.SqrtPriceX96),
			p.Tick,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadHeight returns the stored closing height for a sync name.
func (s *Store) LoadHeight(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("sync name required")
	}
	var height uint64
	row := s.pool.QueryRow(ctx, `SELECT closing_height FROM sync_state WHERE name=$1`, name)
	if err := row.Scan(&height); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return height, true, nil
}

// SaveHeight upserts the closing height for a sync name.
func (s *Store) SaveHeight(ctx context.Context, name string, height uint64) error {
	if name == "" {
		return fmt.Errorf("sync name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_state (name, closing_height, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name)
		DO UPDATE SET closing_height = EXCLUDED.closing_height, updated_at = now()
	`, name, int64(height))
	return err
}

// bigIntString renders an optional big value as NULL or its decimal form.
func bigIntString(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
