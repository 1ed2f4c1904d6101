package dex

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const v2FactoryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "token0", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "token1", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "pair", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "", "type": "uint256"}
    ],
    "name": "PairCreated",
    "type": "event"
  }
]`

const v3FactoryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "token0", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "token1", "type": "address"},
      {"indexed": true, "internalType": "uint24", "name": "fee", "type": "uint24"},
      {"indexed": false, "internalType": "int24", "name": "tickSpacing", "type": "int24"},
      {"indexed": false, "internalType": "address", "name": "pool", "type": "address"}
    ],
    "name": "PoolCreated",
    "type": "event"
  }
]`

var (
	v2FactoryABIOnce sync.Once
	v2FactoryABIVal  abi.ABI

	v3FactoryABIOnce sync.Once
	v3FactoryABIVal  abi.ABI
)

func v2FactoryABI() abi.ABI {
	v2FactoryABIOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(v2FactoryABIJSON))
		if err != nil {
			panic(fmt.Sprintf("parse v2 factory abi: %v", err))
		}
		v2FactoryABIVal = parsed
	})
	return v2FactoryABIVal
}

func v3FactoryABI() abi.ABI {
	v3FactoryABIOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(v3FactoryABIJSON))
		if err != nil {
			panic(fmt.Sprintf("parse v3 factory abi: %v", err))
		}
		v3FactoryABIVal = parsed
	})
	return v3FactoryABIVal
}
