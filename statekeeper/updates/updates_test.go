// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package updates

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ZKAmoeba-Micro/micro-sub000/gastracker"
	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
)

func newTestManager() *UpdatesManager {
	return NewUpdatesManager(
		rolluptypes.DerivedBlockContext{
			Context: rolluptypes.BlockContext{BlockNumber: 3, BlockTimestamp: 1000},
			BaseFee: 1,
		},
		rolluptypes.BaseSystemContractsHashes{},
	)
}

func executedTx(nonce uint64) (*rolluptypes.Transaction, *rolluptypes.VmTxExecutionResult) {
	tx := rolluptypes.NewTransaction(rolluptypes.Transaction{
		Initiator:   common.Address{7},
		Nonce:       nonce,
		GasLimit:    100_000,
		FactoryDeps: [][]byte{{1, 2, 3}},
	})
	result := &rolluptypes.VmTxExecutionResult{
		Status: rolluptypes.TxStatusSuccess,
		Logs: rolluptypes.ExecutionLogs{
			StorageLogs: []rolluptypes.StorageLog{{
				Key:          common.Hash{byte(nonce)},
				WrittenValue: common.Hash{1},
				IsWrite:      true,
				IsInitial:    true,
			}},
			Events: []rolluptypes.VmEvent{{Address: common.Address{7}}},
		},
	}
	return tx, result
}

func TestExtendFromExecutedTransaction(t *testing.T) {
	u := newTestManager()
	require.Equal(t, 0, u.PendingExecutedTransactionsLen())
	require.Equal(t, gastracker.NewBlockGasCount(), u.PendingL1GasCount())

	tx, result := executedTx(0)
	l1Gas := rolluptypes.BlockGasCount{Commit: 10, Prove: 1, Execute: 2}
	metrics := rolluptypes.ExecutionMetrics{GasUsed: 50_000, VmEvents: 1}
	u.ExtendFromExecutedTransaction(tx, result, nil, l1Gas, metrics)

	require.Equal(t, 1, u.PendingExecutedTransactionsLen())
	require.Len(t, u.Miniblock().ExecutedTransactions, 1)
	require.Len(t, u.Miniblock().Events, 1)
	require.Len(t, u.Miniblock().NewFactoryDeps, 1)
	require.Equal(t, gastracker.NewBlockGasCount().Add(l1Gas), u.PendingL1GasCount())
	require.Equal(t, metrics, u.PendingExecutionMetrics())
	require.Equal(t, tx.EncodingLen(), u.PendingTxsEncodingSize())
	require.Equal(t, 1, u.StorageWritesDeduplicator().Metrics().InitialStorageWrites)
}

func TestSealMiniblockKeepsBatchTotals(t *testing.T) {
	u := newTestManager()
	require.Equal(t, uint64(1000), u.Miniblock().Timestamp)

	tx, result := executedTx(0)
	u.ExtendFromExecutedTransaction(tx, result, nil, rolluptypes.BlockGasCount{Commit: 1}, rolluptypes.ExecutionMetrics{})
	u.SealMiniblock(1001)

	require.Len(t, u.SealedMiniblocks(), 1)
	require.Len(t, u.SealedMiniblocks()[0].ExecutedTransactions, 1)
	require.Empty(t, u.Miniblock().ExecutedTransactions)
	require.Equal(t, uint64(1001), u.Miniblock().Timestamp)
	require.Equal(t, 1, u.PendingExecutedTransactionsLen())

	tx, result = executedTx(1)
	u.ExtendFromExecutedTransaction(tx, result, nil, rolluptypes.BlockGasCount{Commit: 1}, rolluptypes.ExecutionMetrics{})
	require.Equal(t, 2, u.PendingExecutedTransactionsLen())
	require.Equal(t, gastracker.NewBlockGasCount().Commit+2, u.PendingL1GasCount().Commit)
	require.Len(t, u.Miniblock().ExecutedTransactions, 1)
	require.Equal(t, uint64(1000), u.BatchTimestamp())
	require.Equal(t, rolluptypes.L1BatchNumber(3), u.L1BatchNumber())
}
