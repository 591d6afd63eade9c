// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package mempoolio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/stretchr/testify/require"

	"github.com/ZKAmoeba-Micro/micro-sub000/mempool"
	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper/updates"
	"github.com/ZKAmoeba-Micro/micro-sub000/storage"
	"github.com/ZKAmoeba-Micro/micro-sub000/util/testhelpers"
)

// testClock moves one second forward every time it is read.
type testClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Add(-time.Hour).Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type testIO struct {
	io      *MempoolIO
	mempool *mempool.Mempool
	store   *storage.Store
}

func newTestIO(t *testing.T, db ethdb.Database, clock *testClock) *testIO {
	t.Helper()
	store, err := storage.NewStore(db)
	require.NoError(t, err)
	poolConfig := mempool.TestConfig
	pool := mempool.NewMempool(func() *mempool.Config { return &poolConfig })
	config := TestConfig
	fetcher := func() *Config { return &config }
	io, err := NewMempoolIO(fetcher, pool, store, NewFixedL1GasPriceProvider(fetcher), rolluptypes.BaseSystemContractsHashes{})
	require.NoError(t, err)
	if clock != nil {
		io.now = clock.Now
	}
	return &testIO{io: io, mempool: pool, store: store}
}

func testL2Tx(source *testhelpers.PseudoRandomDataSource, maxFeePerGas uint64) *rolluptypes.Transaction {
	return rolluptypes.NewTransaction(rolluptypes.Transaction{
		Initiator:    source.GetAddress(),
		GasLimit:     1_000_000,
		MaxFeePerGas: maxFeePerGas,
		Data:         source.GetStorageWrites(1),
	})
}

func executedResult() *rolluptypes.VmTxExecutionResult {
	return &rolluptypes.VmTxExecutionResult{
		Status:  rolluptypes.TxStatusSuccess,
		GasUsed: 50_000,
		Metrics: rolluptypes.ExecutionMetrics{GasUsed: 50_000},
	}
}

func TestWaitForTimestamp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	test := newTestIO(t, rawdb.NewMemoryDatabase(), nil)
	frozen := time.Unix(1_000, 0)
	test.io.now = func() time.Time { return frozen }
	test.io.prevMiniblockTimestamp = 1_000

	start := time.Now()
	_, ok := test.io.WaitForNewMiniblockParams(ctx, 30*time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	frozen = time.Unix(1_001, 0)
	timestamp, ok := test.io.WaitForNewMiniblockParams(ctx, 30*time.Millisecond)
	require.True(t, ok)
	require.Equal(t, uint64(1_001), timestamp)
	require.Equal(t, uint64(1_001), test.io.prevMiniblockTimestamp)

	cancel()
	_, ok = test.io.WaitForNewMiniblockParams(ctx, time.Minute)
	require.False(t, ok)
}

func TestWaitForNewBatchParams(t *testing.T) {
	ctx := context.Background()
	test := newTestIO(t, rawdb.NewMemoryDatabase(), newTestClock())
	params, err := test.io.WaitForNewBatchParams(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, params)
	require.Equal(t, rolluptypes.L1BatchNumber(0), params.Context.BlockNumber)
	require.Equal(t, TestConfig.L1GasPrice, params.Context.L1GasPrice)
	require.Equal(t, TestConfig.FairL2GasPrice, params.Context.FairL2GasPrice)
	require.Equal(t, TestConfig.ChainID, params.Context.ChainID)
	require.Equal(t, TestConfig.FeeAccountAddress(), params.Context.OperatorAddress)
	require.Equal(t, params.DerivedContext().BaseFee, test.io.baseFee)

	timestamp, ok := test.io.WaitForNewMiniblockParams(ctx, time.Second)
	require.True(t, ok)
	require.Greater(t, timestamp, params.Context.BlockTimestamp)
}

func TestWaitForNextTxRejectsUnderpriced(t *testing.T) {
	ctx := context.Background()
	test := newTestIO(t, rawdb.NewMemoryDatabase(), newTestClock())
	_, err := test.io.WaitForNewBatchParams(ctx, time.Second)
	require.NoError(t, err)
	source := testhelpers.NewPseudoRandomDataSource(t, 1)

	underpriced := testL2Tx(source, test.io.baseFee-1)
	priced := testL2Tx(source, test.io.baseFee)
	require.NoError(t, test.mempool.Insert(underpriced))
	require.NoError(t, test.mempool.Insert(priced))

	tx := test.io.WaitForNextTx(ctx, time.Second)
	require.NotNil(t, tx)
	require.Equal(t, priced.Hash, tx.Hash)
	_, found, err := test.store.RejectionReason(underpriced.Hash)
	require.NoError(t, err)
	require.True(t, found)
	_, found = test.mempool.RejectionReason(underpriced.Hash)
	require.True(t, found)

	require.Nil(t, test.io.WaitForNextTx(ctx, 20*time.Millisecond))
	test.io.Rollback(tx)
	require.Equal(t, priced.Hash, test.io.WaitForNextTx(ctx, time.Second).Hash)
}

func TestRejectL1Transaction(t *testing.T) {
	test := newTestIO(t, rawdb.NewMemoryDatabase(), nil)
	tx := rolluptypes.NewTransaction(rolluptypes.Transaction{IsL1: true, PriorityOpID: 7, GasLimit: 100_000})
	require.ErrorIs(t, test.io.Reject(tx, "halted"), ErrL1TxRejected)
	_, found, err := test.store.RejectionReason(tx.Hash)
	require.NoError(t, err)
	require.False(t, found)
}

func TestSealAndLoadPendingBatch(t *testing.T) {
	ctx := context.Background()
	db := rawdb.NewMemoryDatabase()
	clock := newTestClock()
	test := newTestIO(t, db, clock)
	pending, err := test.io.LoadPendingBatch()
	require.NoError(t, err)
	require.Nil(t, pending)

	params, err := test.io.WaitForNewBatchParams(ctx, time.Second)
	require.NoError(t, err)
	source := testhelpers.NewPseudoRandomDataSource(t, 2)
	manager := updates.NewUpdatesManager(params.DerivedContext(), params.BaseSystemContracts)
	first := testL2Tx(source, 1_000)
	second := testL2Tx(source, 1_000)
	manager.ExtendFromExecutedTransaction(first, executedResult(), nil, rolluptypes.BlockGasCount{}, rolluptypes.ExecutionMetrics{GasUsed: 50_000})
	require.NoError(t, test.io.SealMiniblock(manager))
	timestamp, ok := test.io.WaitForNewMiniblockParams(ctx, time.Second)
	require.True(t, ok)
	manager.SealMiniblock(timestamp)
	manager.ExtendFromExecutedTransaction(second, executedResult(), nil, rolluptypes.BlockGasCount{}, rolluptypes.ExecutionMetrics{GasUsed: 50_000})
	require.NoError(t, test.io.SealMiniblock(manager))
	require.Equal(t, rolluptypes.MiniblockNumber(2), test.io.CurrentMiniblockNumber())

	miniblock, err := test.store.GetMiniblock(1)
	require.NoError(t, err)
	require.Equal(t, timestamp, miniblock.Header.Timestamp)
	require.Equal(t, uint64(1), miniblock.Header.L2TxCount)
	require.Equal(t, uint64(50_000), miniblock.Header.GasUsed)

	restarted := newTestIO(t, db, clock)
	require.Equal(t, rolluptypes.MiniblockNumber(2), restarted.io.CurrentMiniblockNumber())
	require.Equal(t, rolluptypes.L1BatchNumber(0), restarted.io.CurrentL1BatchNumber())
	pending, err = restarted.io.LoadPendingBatch()
	require.NoError(t, err)
	require.NotNil(t, pending)
	require.Equal(t, params, pending.Params)
	require.Len(t, pending.Txs, 2)
	require.Equal(t, rolluptypes.MiniblockNumber(0), pending.Txs[0].Number)
	require.Equal(t, first.Hash, pending.Txs[0].Txs[0].Hash)
	require.Equal(t, second.Hash, pending.Txs[1].Txs[0].Hash)
	require.Equal(t, test.io.baseFee, restarted.io.baseFee)

	// replay leaves the open miniblock empty; it becomes the fictive one
	timestamp, ok = restarted.io.WaitForNewMiniblockParams(ctx, time.Second)
	require.True(t, ok)
	manager.SealMiniblock(timestamp)
	blockResult := &rolluptypes.VmBlockResult{
		GasUsed: 200_000,
		StorageLogs: []rolluptypes.StorageLog{
			{Key: source.GetHash(), WrittenValue: source.GetHash(), IsWrite: true, IsInitial: true},
			{Key: source.GetHash()},
		},
	}
	require.NoError(t, restarted.io.SealL1Batch(blockResult, manager, params.DerivedContext()))
	require.Equal(t, rolluptypes.L1BatchNumber(1), restarted.io.CurrentL1BatchNumber())
	require.Equal(t, rolluptypes.MiniblockNumber(3), restarted.io.CurrentMiniblockNumber())

	header, err := restarted.store.GetL1BatchHeader(0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), header.FirstMiniblock)
	require.Equal(t, uint64(2), header.LastMiniblock)
	require.Equal(t, uint64(2), header.L2TxCount)
	require.Equal(t, uint64(200_000), header.GasUsed)
	require.Equal(t, params.Context.BlockTimestamp, header.Timestamp)
	require.NotZero(t, header.CommitGas)
	body, err := restarted.store.GetL1BatchBody(0)
	require.NoError(t, err)
	require.Len(t, body.StorageWrites, 1)
	require.Equal(t, blockResult.StorageLogs[0].Key, body.StorageWrites[0].Key)
	require.Len(t, body.TxHashes, 2)

	value, found := restarted.store.ReadValue(blockResult.StorageLogs[0].Key)
	require.True(t, found)
	require.Equal(t, blockResult.StorageLogs[0].WrittenValue, value)
	pending, err = restarted.io.LoadPendingBatch()
	require.NoError(t, err)
	require.Nil(t, pending)

	require.Error(t, restarted.io.SealL1Batch(blockResult, manager, params.DerivedContext()))
}

func TestConfigValidate(t *testing.T) {
	config := DefaultConfig
	require.NoError(t, config.Validate())
	config.FeeAccount = "0x1234"
	require.Error(t, config.Validate())
	config = TestConfig
	config.FairL2GasPrice = 0
	require.Error(t, config.Validate())
}
