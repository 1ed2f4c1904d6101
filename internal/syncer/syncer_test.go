package syncer

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"poolsync/internal/checkpoint"
	"poolsync/internal/dex"
	"poolsync/internal/pool"
	"poolsync/internal/syncerr"
	"poolsync/internal/throttle"
)

// fakeChain serves canned creation logs and contract responses.
type fakeChain struct {
	mu          sync.Mutex
	head        uint64
	headAdvance uint64
	headErr     error
	headCalls   int
	logs        []types.Log
	panicFrom   *uint64
	callFn      func(msg ethereum.CallMsg) ([]byte, error)
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headCalls++
	if f.headErr != nil {
		return 0, f.headErr
	}
	head := f.head
	f.head += f.headAdvance
	return head, nil
}

func (f *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	from := q.FromBlock.Uint64()
	to := q.ToBlock.Uint64()

	f.mu.Lock()
	panicFrom := f.panicFrom
	logs := f.logs
	f.mu.Unlock()

	if panicFrom != nil && from <= *panicFrom && *panicFrom <= to {
		panic("fake endpoint fault")
	}

	var out []types.Log
	for _, lg := range logs {
		if lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if len(q.Addresses) > 0 && lg.Address != q.Addresses[0] {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && lg.Topics[0] != q.Topics[0][0] {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callFn != nil {
		return f.callFn(msg)
	}
	return packReserves(1000, 2000), nil
}

func mustExchange(t *testing.T, name string, factory common.Address, creationBlock uint64) dex.Exchange {
	t.Helper()
	ex, err := dex.New(name, factory, creationBlock, pool.ConstantProduct)
	require.NoError(t, err)
	return ex
}

func pairCreatedLog(t *testing.T, ex dex.Exchange, token0, token1, pair common.Address, block uint64) types.Log {
	t.Helper()
	addrType, err := abi.NewType("address", "", nil)
	require.NoError(t, err)
	uintType, err := abi.NewType("uint256", "", nil)
	require.NoError(t, err)

	args := abi.Arguments{{Type: addrType}, {Type: uintType}}
	data, err := args.Pack(pair, big.NewInt(1))
	require.NoError(t, err)

	return types.Log{
		Address: ex.Factory,
		Topics: []common.Hash{
			ex.PoolCreatedTopic(),
			common.BytesToHash(token0.Bytes()),
			common.BytesToHash(token1.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
	}
}

func packReserves(reserve0, reserve1 int64) []byte {
	u112, _ := abi.NewType("uint112", "", nil)
	u32, _ := abi.NewType("uint32", "", nil)
	args := abi.Arguments{{Type: u112}, {Type: u112}, {Type: u32}}
	data, err := args.Pack(big.NewInt(reserve0), big.NewInt(reserve1), uint32(0))
	if err != nil {
		panic(err)
	}
	return data
}

func addrFromByte(b byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func poolAddresses(pools []*pool.Pool) []string {
	out := make([]string, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Address.Hex())
	}
	sort.Strings(out)
	return out
}

// memorySink records written snapshots.
type memorySink struct {
	mu           sync.Mutex
	snapshots    []checkpoint.Snapshot
	destinations []string
}

func (m *memorySink) Write(snapshot checkpoint.Snapshot, destination string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snapshot)
	m.destinations = append(m.destinations, destination)
	return nil
}

func TestDiscoverPoolsAcrossExchangesAndWindows(t *testing.T) {
	exA := mustExchange(t, "dex-a", addrFromByte(0xA1), 0)
	exB := mustExchange(t, "dex-b", addrFromByte(0xB1), 50_000)

	client := &fakeChain{
		head: 250_000,
		logs: []types.Log{
			pairCreatedLog(t, exA, addrFromByte(1), addrFromByte(2), addrFromByte(0x01), 5),
			pairCreatedLog(t, exA, addrFromByte(3), addrFromByte(4), addrFromByte(0x02), 100_005),
			pairCreatedLog(t, exA, addrFromByte(5), addrFromByte(6), addrFromByte(0x03), 249_999),
			pairCreatedLog(t, exB, addrFromByte(7), addrFromByte(8), addrFromByte(0x04), 120_000),
		},
	}

	s := New(Config{}, client, nil, nil, nil)
	pools, err := s.DiscoverPools(context.Background(), []dex.Exchange{exA, exB})
	require.NoError(t, err)
	require.Len(t, pools, 4)

	// The chain head is queried exactly once for the whole run.
	require.Equal(t, 1, client.headCalls)
}

func TestDiscoverPoolsPartitionEquivalence(t *testing.T) {
	ex := mustExchange(t, "dex-a", addrFromByte(0xA1), 0)

	client := &fakeChain{
		head: 250_000,
		logs: []types.Log{
			pairCreatedLog(t, ex, addrFromByte(1), addrFromByte(2), addrFromByte(0x01), 0),
			pairCreatedLog(t, ex, addrFromByte(3), addrFromByte(4), addrFromByte(0x02), 99_999),
			pairCreatedLog(t, ex, addrFromByte(5), addrFromByte(6), addrFromByte(0x03), 100_000),
			pairCreatedLog(t, ex, addrFromByte(7), addrFromByte(8), addrFromByte(0x04), 250_000),
		},
	}

	windowed := New(Config{WindowSize: 100_000}, client, nil, nil, nil)
	single := New(Config{WindowSize: 1 << 40}, client, nil, nil, nil)

	exchanges := []dex.Exchange{ex}

	windowedPools, err := windowed.DiscoverPools(context.Background(), exchanges)
	require.NoError(t, err)

	singlePools, err := single.DiscoverPools(context.Background(), exchanges)
	require.NoError(t, err)

	require.Equal(t, poolAddresses(singlePools), poolAddresses(windowedPools))
	require.Len(t, windowedPools, 4)
}

func TestDiscoverPoolsIdempotent(t *testing.T) {
	ex := mustExchange(t, "dex-a", addrFromByte(0xA1), 0)
	client := &fakeChain{
		head: 150_000,
		logs: []types.Log{
			pairCreatedLog(t, ex, addrFromByte(1), addrFromByte(2), addrFromByte(0x01), 10),
			pairCreatedLog(t, ex, addrFromByte(3), addrFromByte(4), addrFromByte(0x02), 140_000),
		},
	}

	s := New(Config{}, client, nil, nil, nil)

	first, err := s.DiscoverPools(context.Background(), []dex.Exchange{ex})
	require.NoError(t, err)
	second, err := s.DiscoverPools(context.Background(), []dex.Exchange{ex})
	require.NoError(t, err)

	require.Equal(t, poolAddresses(first), poolAddresses(second))
}

func TestDiscoverPoolsDecodeFailureReturnsNoPartialResult(t *testing.T) {
	ex := mustExchange(t, "dex-a", addrFromByte(0xA1), 0)

	badLog := types.Log{
		Address:     ex.Factory,
		Topics:      []common.Hash{ex.PoolCreatedTopic()},
		BlockNumber: 120_000,
	}

	client := &fakeChain{
		head: 250_000,
		logs: []types.Log{
			pairCreatedLog(t, ex, addrFromByte(1), addrFromByte(2), addrFromByte(0x01), 10),
			badLog,
			pairCreatedLog(t, ex, addrFromByte(3), addrFromByte(4), addrFromByte(0x02), 240_000),
		},
	}

	s := New(Config{}, client, nil, nil, nil)
	pools, err := s.DiscoverPools(context.Background(), []dex.Exchange{ex})
	require.Error(t, err)
	require.True(t, syncerr.IsItem(err))
	require.Nil(t, pools)
}

func TestDiscoverPoolsWorkerPanicSurfacesAsFault(t *testing.T) {
	ex := mustExchange(t, "dex-a", addrFromByte(0xA1), 0)
	panicFrom := uint64(100_000)

	client := &fakeChain{
		head:      250_000,
		panicFrom: &panicFrom,
		logs: []types.Log{
			pairCreatedLog(t, ex, addrFromByte(1), addrFromByte(2), addrFromByte(0x01), 10),
		},
	}

	s := New(Config{}, client, nil, nil, nil)
	pools, err := s.DiscoverPools(context.Background(), []dex.Exchange{ex})
	require.Error(t, err)
	require.True(t, syncerr.IsFault(err))
	require.False(t, syncerr.IsItem(err))
	require.Nil(t, pools)
}

func TestDiscoverPoolsHeadQueryFailureIsInfrastructure(t *testing.T) {
	client := &fakeChain{headErr: errors.New("endpoint unreachable")}
	ex := mustExchange(t, "dex-a", addrFromByte(0xA1), 0)

	s := New(Config{}, client, nil, nil, nil)
	_, err := s.DiscoverPools(context.Background(), []dex.Exchange{ex})
	require.Error(t, err)
	require.True(t, syncerr.IsInfrastructure(err))
}

func TestSyncPoolsDropsUnrefreshablePool(t *testing.T) {
	ex := mustExchange(t, "dex-a", addrFromByte(0xA1), 0)
	revertingPool := addrFromByte(0x02)

	client := &fakeChain{
		head: 150_000,
		logs: []types.Log{
			pairCreatedLog(t, ex, addrFromByte(1), addrFromByte(2), addrFromByte(0x01), 10),
			pairCreatedLog(t, ex, addrFromByte(3), addrFromByte(4), revertingPool, 20),
			pairCreatedLog(t, ex, addrFromByte(5), addrFromByte(6), addrFromByte(0x03), 30),
		},
	}
	client.callFn = func(msg ethereum.CallMsg) ([]byte, error) {
		if msg.To != nil && *msg.To == revertingPool {
			return nil, nil // revert: empty return data
		}
		return packReserves(1000, 2000), nil
	}

	s := New(Config{}, client, nil, nil, nil)
	pools, err := s.SyncPools(context.Background(), []dex.Exchange{ex})
	require.NoError(t, err)
	require.Len(t, pools, 2)
	require.NotContains(t, poolAddresses(pools), revertingPool.Hex())

	for _, p := range pools {
		require.NotNil(t, p.Reserve0)
		require.NotNil(t, p.Reserve1)
	}
}

func TestSyncPoolsInfrastructureFailureAbortsRefresh(t *testing.T) {
	ex := mustExchange(t, "dex-a", addrFromByte(0xA1), 0)

	client := &fakeChain{
		head: 150_000,
		logs: []types.Log{
			pairCreatedLog(t, ex, addrFromByte(1), addrFromByte(2), addrFromByte(0x01), 10),
			pairCreatedLog(t, ex, addrFromByte(3), addrFromByte(4), addrFromByte(0x02), 20),
		},
	}
	client.callFn = func(msg ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("connection reset")
	}

	s := New(Config{}, client, nil, nil, nil)
	pools, err := s.SyncPools(context.Background(), []dex.Exchange{ex})
	require.Error(t, err)
	require.True(t, syncerr.IsInfrastructure(err))
	require.Nil(t, pools)
}

func TestSyncPoolsWritesCheckpoint(t *testing.T) {
	ex := mustExchange(t, "dex-a", addrFromByte(0xA1), 0)
	startHead := uint64(150_000)

	client := &fakeChain{
		head:        startHead,
		headAdvance: 7, // chain advances between the opening and closing height queries
		logs: []types.Log{
			pairCreatedLog(t, ex, addrFromByte(1), addrFromByte(2), addrFromByte(0x01), 10),
			pairCreatedLog(t, ex, addrFromByte(3), addrFromByte(4), addrFromByte(0x02), 20),
		},
	}

	sink := &memorySink{}
	s := New(Config{Persist: true}, client, sink, nil, nil)

	pools, err := s.SyncPools(context.Background(), []dex.Exchange{ex})
	require.NoError(t, err)
	require.Len(t, pools, 2)

	require.Len(t, sink.snapshots, 1)
	snapshot := sink.snapshots[0]
	require.Equal(t, checkpoint.DefaultDestination, sink.destinations[0])
	require.Equal(t, poolAddresses(pools), poolAddresses(snapshot.Pools))
	require.Equal(t, []dex.Exchange{ex}, snapshot.Exchanges)
	require.GreaterOrEqual(t, snapshot.BlockHeight, startHead)
}

func TestSyncPoolsPersistWithoutSinkFails(t *testing.T) {
	ex := mustExchange(t, "dex-a", addrFromByte(0xA1), 0)
	client := &fakeChain{
		head: 1000,
		logs: []types.Log{
			pairCreatedLog(t, ex, addrFromByte(1), addrFromByte(2), addrFromByte(0x01), 10),
		},
	}

	s := New(Config{Persist: true}, client, nil, nil, nil)
	_, err := s.SyncPools(context.Background(), []dex.Exchange{ex})
	require.Error(t, err)
}

func TestCrawlExchangeEmptyRangeStillQueries(t *testing.T) {
	ex := mustExchange(t, "dex-a", addrFromByte(0xA1), 42)
	client := &fakeChain{
		head: 42,
		logs: []types.Log{
			pairCreatedLog(t, ex, addrFromByte(1), addrFromByte(2), addrFromByte(0x01), 42),
		},
	}

	s := New(Config{}, client, nil, nil, nil)
	pools, err := s.CrawlExchange(context.Background(), ex, 42, throttle.New(0))
	require.NoError(t, err)
	require.Len(t, pools, 1)
}
