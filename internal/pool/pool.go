package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poolsync/internal/chain"
	"poolsync/internal/syncerr"
)

// Variant is the closed set of supported AMM protocol shapes.
type Variant uint8

const (
	// ConstantProduct covers Uniswap V2 style pairs with two reserves.
	ConstantProduct Variant = iota + 1
	// ConcentratedLiquidity covers Uniswap V3 style pools with
	// liquidity/tick state.
	ConcentratedLiquidity
)

// String returns the config-facing variant name.
func (v Variant) String() string {
	switch v {
	case ConstantProduct:
		return "constant-product"
	case ConcentratedLiquidity:
		return "concentrated-liquidity"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// ParseVariant parses a config-facing variant name.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "constant-product", "v2":
		return ConstantProduct, nil
	case "concentrated-liquidity", "v3":
		return ConcentratedLiquidity, nil
	default:
		return 0, fmt.Errorf("unknown protocol variant: %q", s)
	}
}

// Pool is a tracked liquidity-pair contract. It is created empty from a
// decoded creation event and mutated in place by RefreshState. Which state
// fields are populated depends on the variant.
type Pool struct {
	Address      common.Address `json:"address"`
	Token0       common.Address `json:"token0"`
	Token1       common.Address `json:"token1"`
	Factory      common.Address `json:"factory"`
	Variant      Variant        `json:"variant"`
	CreatedBlock uint64         `json:"created_block"`

	// Constant-product state.
	Reserve0 *big.Int `json:"reserve0,omitempty"`
	Reserve1 *big.Int `json:"reserve1,omitempty"`

	// Concentrated-liquidity state.
	Fee          uint32   `json:"fee,omitempty"`
	TickSpacing  int32    `json:"tick_spacing,omitempty"`
	Liquidity    *big.Int `json:"liquidity,omitempty"`
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96,omitempty"`
	Tick         int32    `json:"tick,omitempty"`
}

// RefreshState pulls the pool's current on-chain state and mutates the pool
// in place. Transport failures come back infrastructure-class; a reverting
// or short contract response comes back item-class so the caller can drop
// just this pool.
func (p *Pool) RefreshState(ctx context.Context, client chain.Client) error {
	switch p.Variant {
	case ConstantProduct:
		return p.refreshReserves(ctx, client)
	case ConcentratedLiquidity:
		return p.refreshLiquidity(ctx, client)
	default:
		return syncerr.Item(fmt.Errorf("pool %s: unknown variant %d", p.Address.Hex(), p.Variant))
	}
}

func (p *Pool) refreshReserves(ctx context.Context, client chain.Client) error {
	values, err := callMethod(ctx, client, p.Address, pairABI(), "getReserves")
	if err != nil {
		return err
	}
	if len(values) != 3 {
		return syncerr.Item(fmt.Errorf("pool %s: unexpected getReserves values: %d", p.Address.Hex(), len(values)))
	}

	reserve0, err := asBigInt(values[0])
	if err != nil {
		return syncerr.Item(fmt.Errorf("pool %s: reserve0: %w", p.Address.Hex(), err))
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return syncerr.Item(fmt.Errorf("pool %s: reserve1: %w", p.Address.Hex(), err))
	}

	p.Reserve0 = reserve0
	p.Reserve1 = reserve1
	return nil
}

func (p *Pool) refreshLiquidity(ctx context.Context, client chain.Client) error {
	values, err := callMethod(ctx, client, p.Address, v3PoolABI(), "liquidity")
	if err != nil {
		return err
	}
	liquidity, err := asBigInt(values[0])
	if err != nil {
		return syncerr.Item(fmt.Errorf("pool %s: liquidity: %w", p.Address.Hex(), err))
	}

	values, err = callMethod(ctx, client, p.Address, v3PoolABI(), "slot0")
	if err != nil {
		return err
	}
	if len(values) < 2 {
		return syncerr.Item(fmt.Errorf("pool %s: unexpected slot0 values: %d", p.Address.Hex(), len(values)))
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return syncerr.Item(fmt.Errorf("pool %s: sqrtPriceX96: %w", p.Address.Hex(), err))
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return syncerr.Item(fmt.Errorf("pool %s: tick: %w", p.Address.Hex(), err))
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return syncerr.Item(fmt.Errorf("pool %s: tick: %w", p.Address.Hex(), err))
	}

	p.Liquidity = liquidity
	p.SqrtPriceX96 = sqrtPrice
	p.Tick = tick
	return nil
}
