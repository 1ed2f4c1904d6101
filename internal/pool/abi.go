package pool

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"poolsync/internal/chain"
	"poolsync/internal/syncerr"
)

const pairABIJSON = `[
  {
    "inputs": [],
    "name": "getReserves",
    "outputs": [
      {"internalType": "uint112", "name": "_reserve0", "type": "uint112"},
      {"internalType": "uint112", "name": "_reserve1", "type": "uint112"},
      {"internalType": "uint32", "name": "_blockTimestampLast", "type": "uint32"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const v3PoolABIJSON = `[
  {
    "inputs": [],
    "name": "liquidity",
    "outputs": [
      {"internalType": "uint128", "name": "", "type": "uint128"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "slot0",
    "outputs": [
      {"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
      {"internalType": "int24", "name": "tick", "type": "int24"},
      {"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
      {"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
      {"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
      {"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
      {"internalType": "bool", "name": "unlocked", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	pairABIOnce sync.Once
	pairABIVal  abi.ABI

	v3PoolABIOnce sync.Once
	v3PoolABIVal  abi.ABI
)

func pairABI() abi.ABI {
	pairABIOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(pairABIJSON))
		if err != nil {
			panic(fmt.Sprintf("parse pair abi: %v", err))
		}
		pairABIVal = parsed
	})
	return pairABIVal
}

func v3PoolABI() abi.ABI {
	v3PoolABIOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(v3PoolABIJSON))
		if err != nil {
			panic(fmt.Sprintf("parse v3 pool abi: %v", err))
		}
		v3PoolABIVal = parsed
	})
	return v3PoolABIVal
}

// callMethod issues an eth_call for a no-argument view method and unpacks
// the outputs. A transport error is infrastructure-class; empty return data
// (nonexistent contract or revert) and unpack failures are item-class.
func callMethod(ctx context.Context, client chain.Client, target common.Address, contractABI abi.ABI, method string) ([]interface{}, error) {
	input, err := contractABI.Pack(method)
	if err != nil {
		return nil, syncerr.Item(fmt.Errorf("pack %s: %w", method, err))
	}

	data, err := client.CallContract(ctx, ethereum.CallMsg{To: &target, Data: input}, nil)
	if err != nil {
		return nil, syncerr.Infrastructure(fmt.Errorf("call %s on %s: %w", method, target.Hex(), err))
	}
	if len(data) == 0 {
		return nil, syncerr.Item(fmt.Errorf("call %s on %s: empty return data", method, target.Hex()))
	}

	values, err := contractABI.Unpack(method, data)
	if err != nil {
		return nil, syncerr.Item(fmt.Errorf("unpack %s on %s: %w", method, target.Hex(), err))
	}
	return values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch typed := value.(type) {
	case *big.Int:
		return typed, nil
	case uint32:
		return new(big.Int).SetUint64(uint64(typed)), nil
	case uint64:
		return new(big.Int).SetUint64(typed), nil
	default:
		return nil, fmt.Errorf("unexpected numeric type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	if value == nil {
		return 0, fmt.Errorf("nil int24 value")
	}
	if !value.IsInt64() {
		return 0, fmt.Errorf("int24 out of range: %s", value)
	}
	v := value.Int64()
	if v < -(1<<23) || v >= (1<<23) {
		return 0, fmt.Errorf("int24 out of range: %d", v)
	}
	return int32(v), nil
}
