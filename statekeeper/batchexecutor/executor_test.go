// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package batchexecutor

import (
	"bytes"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/ZKAmoeba-Micro/micro-sub000/compress"
	"github.com/ZKAmoeba-Micro/micro-sub000/devvm"
	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper"
	"github.com/ZKAmoeba-Micro/micro-sub000/util/testhelpers"
)

func testParams() *statekeeper.L1BatchParams {
	return &statekeeper.L1BatchParams{
		Context: rolluptypes.BlockContext{
			BlockNumber:     3,
			BlockTimestamp:  100,
			L1GasPrice:      1_000,
			FairL2GasPrice:  250,
			OperatorAddress: common.Address{0xaa},
		},
	}
}

func startBuilder(t *testing.T, vmConfig *devvm.Config) (*MainBatchExecutorBuilder, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	config := TestConfig
	builder := NewMainBatchExecutorBuilder(func() *Config { return &config }, func(params *statekeeper.L1BatchParams) (VM, error) {
		return devvm.NewVM(vmConfig, devvm.MemoryStorage{}, params.DerivedContext()), nil
	})
	builder.Start(ctx)
	t.Cleanup(func() {
		cancel()
		builder.StopAndWait()
	})
	return builder, cancel
}

func l2Tx(initiator common.Address, nonce uint64, gasLimit uint64, data []byte) *rolluptypes.Transaction {
	return rolluptypes.NewTransaction(rolluptypes.Transaction{
		Initiator:    initiator,
		Nonce:        nonce,
		GasLimit:     gasLimit,
		MaxFeePerGas: 1_000_000,
		Data:         data,
	})
}

func TestExecuteTxSuccess(t *testing.T) {
	builder, _ := startBuilder(t, &devvm.DefaultConfig)
	executor, err := builder.InitBatch(testParams())
	require.NoError(t, err)

	source := testhelpers.NewPseudoRandomDataSource(t, 1)
	tx := l2Tx(source.GetAddress(), 0, 1_000_000, source.GetStorageWrites(2))
	result, err := executor.ExecuteTx(tx)
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxSuccess, result.Kind)
	require.Equal(t, rolluptypes.TxStatusSuccess, result.TxResult.Status)
	require.NotZero(t, result.TxMetrics.L1Gas.Commit)
	require.Equal(t, result.TxResult.Metrics, result.TxMetrics.ExecutionMetrics)
	require.NotNil(t, result.BootloaderDryRunResult)
	require.Equal(t, devvm.DefaultConfig.BlockTipGas, result.BootloaderDryRunMetrics.ExecutionMetrics.GasUsed)
	require.Equal(t, devvm.BatchNumberKey, result.BootloaderDryRunResult.Logs.StorageLogs[0].Key)

	block, err := executor.FinishBatch()
	require.NoError(t, err)
	require.Len(t, block.L2ToL1Logs, 1)
	require.Equal(t, result.TxResult.GasUsed+devvm.DefaultConfig.BlockTipGas, block.GasUsed)

	_, err = executor.ExecuteTx(tx)
	require.ErrorIs(t, err, statekeeper.ErrBatchFinished)
}

func TestRollbackLastTx(t *testing.T) {
	builder, _ := startBuilder(t, &devvm.DefaultConfig)
	executor, err := builder.InitBatch(testParams())
	require.NoError(t, err)

	require.ErrorIs(t, executor.RollbackLastTx(), statekeeper.ErrNothingToRollback)

	sender := common.Address{1}
	first := l2Tx(sender, 0, 100_000, nil)
	result, err := executor.ExecuteTx(first)
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxSuccess, result.Kind)

	second := l2Tx(sender, 1, 100_000, nil)
	result, err = executor.ExecuteTx(second)
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxSuccess, result.Kind)
	require.NoError(t, executor.RollbackLastTx())
	require.ErrorIs(t, executor.RollbackLastTx(), statekeeper.ErrNothingToRollback)

	// the first transaction survived the rollback, so the nonce is still 1
	result, err = executor.ExecuteTx(l2Tx(sender, 0, 100_000, nil))
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxRejectedByVm, result.Kind)
	require.Equal(t, rolluptypes.RevertNonceMismatch, result.RejectionReason.Kind)
	require.NoError(t, executor.RollbackLastTx())

	result, err = executor.ExecuteTx(second)
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxSuccess, result.Kind)

	block, err := executor.FinishBatch()
	require.NoError(t, err)
	require.Equal(t, 2*devvm.IntrinsicGas(first)+devvm.DefaultConfig.BlockTipGas, block.GasUsed)
}

func TestRejectedTransactions(t *testing.T) {
	builder, _ := startBuilder(t, &devvm.DefaultConfig)
	executor, err := builder.InitBatch(testParams())
	require.NoError(t, err)

	result, err := executor.ExecuteTx(l2Tx(common.Address{1}, 0, TestConfig.MaxAllowedL2TxGasLimit+1, nil))
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxRejectedByVm, result.Kind)
	require.Equal(t, rolluptypes.RevertTooBigGasLimit, result.RejectionReason.Kind)
	require.NoError(t, executor.RollbackLastTx())

	// the limit does not apply to priority operations
	l1Tx := rolluptypes.NewTransaction(rolluptypes.Transaction{
		Initiator: common.Address{2},
		GasLimit:  TestConfig.MaxAllowedL2TxGasLimit + 1,
		IsL1:      true,
	})
	result, err = executor.ExecuteTx(l1Tx)
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxSuccess, result.Kind)

	result, err = executor.ExecuteTx(l2Tx(common.Address{1}, 0, 1_000, nil))
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxRejectedByVm, result.Kind)
	require.Equal(t, rolluptypes.RevertValidationFailed, result.RejectionReason.Kind)
}

func TestBootloaderOutOfGas(t *testing.T) {
	vmConfig := devvm.DefaultConfig
	vmConfig.BatchGasLimit = 200_000
	vmConfig.BlockTipGas = 50_000
	builder, _ := startBuilder(t, &vmConfig)
	executor, err := builder.InitBatch(testParams())
	require.NoError(t, err)

	source := testhelpers.NewPseudoRandomDataSource(t, 2)
	sender := common.Address{1}
	first := l2Tx(sender, 0, 150_000, source.GetStorageWrites(3))
	result, err := executor.ExecuteTx(first)
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxSuccess, result.Kind)
	firstGas := result.TxResult.GasUsed

	result, err = executor.ExecuteTx(l2Tx(sender, 1, 150_000, nil))
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxBootloaderOutOfGasForTx, result.Kind)
	require.NoError(t, executor.RollbackLastTx())

	// the transaction itself fits, the block tip after it does not
	result, err = executor.ExecuteTx(l2Tx(sender, 1, 115_000, source.GetStorageWrites(4)))
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxBootloaderOutOfGasForBlockTip, result.Kind)
	require.NoError(t, executor.RollbackLastTx())

	block, err := executor.FinishBatch()
	require.NoError(t, err)
	require.Equal(t, firstGas+vmConfig.BlockTipGas, block.GasUsed)
}

// outOfGasVM reports bootloader out of gas for every transaction above gasLimit.
type outOfGasVM struct {
	*devvm.VM
	gasLimit uint64
}

func (vm outOfGasVM) ExecuteNextTx(tx *rolluptypes.Transaction) (*rolluptypes.VmTxExecutionResult, *rolluptypes.TxRevertReason) {
	if tx.GasLimit > vm.gasLimit {
		return nil, &rolluptypes.TxRevertReason{Kind: rolluptypes.RevertBootloaderOutOfGas}
	}
	return vm.VM.ExecuteNextTx(tx)
}

func TestOutOfGasInEmptyBatchIsRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	config := TestConfig
	builder := NewMainBatchExecutorBuilder(func() *Config { return &config }, func(params *statekeeper.L1BatchParams) (VM, error) {
		vm := devvm.NewVM(&devvm.DefaultConfig, devvm.MemoryStorage{}, params.DerivedContext())
		return outOfGasVM{VM: vm, gasLimit: 200_000}, nil
	})
	builder.Start(ctx)
	defer builder.StopAndWait()

	sender := common.Address{1}
	small := l2Tx(sender, 0, 100_000, nil)
	big := l2Tx(sender, 0, 500_000, nil)

	executor, err := builder.InitBatch(testParams())
	require.NoError(t, err)
	result, err := executor.ExecuteTx(big)
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxRejectedByVm, result.Kind)
	require.Equal(t, rolluptypes.RevertTooBigGasLimit, result.RejectionReason.Kind)
	require.NoError(t, executor.RollbackLastTx())

	// a batch holding a transaction may still be sealed to make room
	result, err = executor.ExecuteTx(small)
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxSuccess, result.Kind)
	result, err = executor.ExecuteTx(l2Tx(sender, 1, 500_000, nil))
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxBootloaderOutOfGasForTx, result.Kind)
	require.NoError(t, executor.RollbackLastTx())
	_, err = executor.FinishBatch()
	require.NoError(t, err)

	// excluding the only transaction leaves the batch empty again
	executor, err = builder.InitBatch(testParams())
	require.NoError(t, err)
	result, err = executor.ExecuteTx(small)
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxSuccess, result.Kind)
	require.NoError(t, executor.RollbackLastTx())
	result, err = executor.ExecuteTx(big)
	require.NoError(t, err)
	require.Equal(t, statekeeper.TxRejectedByVm, result.Kind)
	require.NoError(t, executor.RollbackLastTx())
	_, err = executor.FinishBatch()
	require.NoError(t, err)
}

func TestCompressedBytecodes(t *testing.T) {
	repetitive := bytes.Repeat([]byte{0x60, 0x80}, 512)
	source := testhelpers.NewPseudoRandomDataSource(t, 3)
	random := source.GetHash().Bytes()
	tx := rolluptypes.NewTransaction(rolluptypes.Transaction{FactoryDeps: [][]byte{repetitive, random}})

	compressed := compressBytecodes(tx)
	require.Len(t, compressed, 1)
	require.Equal(t, crypto.Keccak256Hash(repetitive), compressed[0].Original)
	original, err := compress.Decompress(compressed[0].Compressed, len(repetitive))
	require.NoError(t, err)
	require.Equal(t, repetitive, original)
}

func TestStoppedBuilder(t *testing.T) {
	builder, cancel := startBuilder(t, &devvm.DefaultConfig)
	executor, err := builder.InitBatch(testParams())
	require.NoError(t, err)
	cancel()
	<-executor.(*BatchExecutorHandle).done
	_, err = executor.ExecuteTx(l2Tx(common.Address{1}, 0, 100_000, nil))
	require.Error(t, err)
}
