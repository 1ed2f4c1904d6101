package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"poolsync/internal/pool"
	"poolsync/internal/syncerr"
)

// Exchange is one DEX factory contract plus the metadata needed to crawl
// its pool-creation events. Immutable once constructed; many exchanges are
// processed concurrently and independently.
type Exchange struct {
	Name          string         `json:"name"`
	Factory       common.Address `json:"factory"`
	CreationBlock uint64         `json:"creation_block"`
	Variant       pool.Variant   `json:"variant"`
}

// New validates and builds an Exchange.
func New(name string, factory common.Address, creationBlock uint64, variant pool.Variant) (Exchange, error) {
	switch variant {
	case pool.ConstantProduct, pool.ConcentratedLiquidity:
	default:
		return Exchange{}, fmt.Errorf("exchange %s: unknown protocol variant %d", name, variant)
	}
	if factory == (common.Address{}) {
		return Exchange{}, fmt.Errorf("exchange %s: factory address is required", name)
	}
	return Exchange{
		Name:          name,
		Factory:       factory,
		CreationBlock: creationBlock,
		Variant:       variant,
	}, nil
}

// PoolCreatedTopic returns the topic0 of the factory's pool-creation event.
func (ex Exchange) PoolCreatedTopic() common.Hash {
	switch ex.Variant {
	case pool.ConcentratedLiquidity:
		return v3FactoryABI().Events["PoolCreated"].ID
	default:
		return v2FactoryABI().Events["PairCreated"].ID
	}
}

// DecodePool decodes a pool-creation log into an empty pool skeleton.
// Failures are item-class: the log is unusable, the endpoint is fine.
func (ex Exchange) DecodePool(lg types.Log) (*pool.Pool, error) {
	switch ex.Variant {
	case pool.ConstantProduct:
		return ex.decodePairCreated(lg)
	case pool.ConcentratedLiquidity:
		return ex.decodePoolCreated(lg)
	default:
		return nil, syncerr.Item(fmt.Errorf("exchange %s: unknown protocol variant %d", ex.Name, ex.Variant))
	}
}

func (ex Exchange) decodePairCreated(lg types.Log) (*pool.Pool, error) {
	event := v2FactoryABI().Events["PairCreated"]
	if err := checkTopics(event, lg); err != nil {
		return nil, syncerr.Item(err)
	}

	var indexed struct {
		Token0 common.Address
		Token1 common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), lg.Topics[1:]); err != nil {
		return nil, syncerr.Item(fmt.Errorf("parse PairCreated topics: %w", err))
	}

	values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, syncerr.Item(fmt.Errorf("unpack PairCreated data: %w", err))
	}
	if len(values) != 2 {
		return nil, syncerr.Item(fmt.Errorf("unexpected PairCreated values: %d", len(values)))
	}
	pair, ok := values[0].(common.Address)
	if !ok {
		return nil, syncerr.Item(fmt.Errorf("unexpected pair address type %T", values[0]))
	}

	return &pool.Pool{
		Address:      pair,
		Token0:       indexed.Token0,
		Token1:       indexed.Token1,
		Factory:      ex.Factory,
		Variant:      pool.ConstantProduct,
		CreatedBlock: lg.BlockNumber,
	}, nil
}

func (ex Exchange) decodePoolCreated(lg types.Log) (*pool.Pool, error) {
	event := v3FactoryABI().Events["PoolCreated"]
	if err := checkTopics(event, lg); err != nil {
		return nil, syncerr.Item(err)
	}

	var indexed struct {
		Token0 common.Address
		Token1 common.Address
		Fee    *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), lg.Topics[1:]); err != nil {
		return nil, syncerr.Item(fmt.Errorf("parse PoolCreated topics: %w", err))
	}

	values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, syncerr.Item(fmt.Errorf("unpack PoolCreated data: %w", err))
	}
	if len(values) != 2 {
		return nil, syncerr.Item(fmt.Errorf("unexpected PoolCreated values: %d", len(values)))
	}
	tickSpacing, ok := values[0].(*big.Int)
	if !ok {
		return nil, syncerr.Item(fmt.Errorf("unexpected tickSpacing type %T", values[0]))
	}
	poolAddr, ok := values[1].(common.Address)
	if !ok {
		return nil, syncerr.Item(fmt.Errorf("unexpected pool address type %T", values[1]))
	}

	return &pool.Pool{
		Address:      poolAddr,
		Token0:       indexed.Token0,
		Token1:       indexed.Token1,
		Factory:      ex.Factory,
		Variant:      pool.ConcentratedLiquidity,
		CreatedBlock: lg.BlockNumber,
		Fee:          uint32(indexed.Fee.Uint64()),
		TickSpacing:  int32(tickSpacing.Int64()),
	}, nil
}

func checkTopics(event abi.Event, lg types.Log) error {
	want := len(indexedArguments(event.Inputs)) + 1
	if len(lg.Topics) != want {
		return fmt.Errorf("%s: expected %d topics, got %d", event.Name, want, len(lg.Topics))
	}
	return nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
