// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package devvm

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
	"github.com/ZKAmoeba-Micro/micro-sub000/util/testhelpers"
)

func testContext(operator common.Address) rolluptypes.DerivedBlockContext {
	return rolluptypes.DerivedBlockContext{
		Context: rolluptypes.BlockContext{
			BlockNumber:     7,
			BlockTimestamp:  1000,
			OperatorAddress: operator,
		},
		BaseFee: 2,
	}
}

func writeTx(initiator common.Address, nonce uint64, gasLimit uint64, data []byte) *rolluptypes.Transaction {
	return rolluptypes.NewTransaction(rolluptypes.Transaction{
		Initiator: initiator,
		Nonce:     nonce,
		GasLimit:  gasLimit,
		Data:      data,
	})
}

func TestExecuteWritesAndChargesFee(t *testing.T) {
	source := testhelpers.NewPseudoRandomDataSource(t, 1)
	operator := source.GetAddress()
	sender := source.GetAddress()
	data := source.GetStorageWrites(2)
	vm := NewVM(&DefaultConfig, MemoryStorage{}, testContext(operator))

	tx := writeTx(sender, 0, 1_000_000, data)
	result, revert := vm.ExecuteNextTx(tx)
	require.Nil(t, revert)
	require.Equal(t, rolluptypes.TxStatusSuccess, result.Status)
	expectedGas := IntrinsicGas(tx) + 2*DefaultConfig.StorageWriteGas
	require.Equal(t, expectedGas, result.GasUsed)
	require.Equal(t, tx.GasLimit-expectedGas, result.GasRefunded)
	// two records, the nonce and the operator balance
	require.Len(t, result.Logs.StorageLogs, 4)
	for _, log := range result.Logs.StorageLogs {
		require.True(t, log.IsInitial)
	}
	require.Len(t, result.Logs.Events, 1)
	require.Empty(t, result.Logs.L2ToL1Logs)

	balance := vm.readUint(BalanceKey(operator))
	require.Equal(t, expectedGas*2, balance.Uint64())
	require.Equal(t, uint64(1), vm.readUint(NonceKey(sender)).Uint64())
	require.Equal(t, common.BytesToHash(data[32:64]), vm.read(AccountSlotKey(sender, common.BytesToHash(data[:32]))))
}

func TestRefusedTransactions(t *testing.T) {
	source := testhelpers.NewPseudoRandomDataSource(t, 2)
	sender := source.GetAddress()
	vm := NewVM(&DefaultConfig, MemoryStorage{}, testContext(source.GetAddress()))

	_, revert := vm.ExecuteNextTx(writeTx(sender, 0, 100, nil))
	require.NotNil(t, revert)
	require.Equal(t, rolluptypes.RevertValidationFailed, revert.Kind)
	require.Equal(t, "validation failed: gas limit 100 is below intrinsic gas 21000", revert.String())

	_, revert = vm.ExecuteNextTx(writeTx(sender, 5, 100_000, nil))
	require.NotNil(t, revert)
	require.Equal(t, rolluptypes.RevertNonceMismatch, revert.Kind)

	_, revert = vm.ExecuteNextTx(writeTx(sender, 0, 100_000, []byte{1, 2, 3}))
	require.NotNil(t, revert)
	require.Equal(t, rolluptypes.RevertValidationFailed, revert.Kind)

	// the block tip must still fit after the transaction
	for _, gasLimit := range []uint64{DefaultConfig.BatchGasLimit + 1, vm.MaxTxGasLimit() + 1} {
		_, revert = vm.ExecuteNextTx(writeTx(sender, 0, gasLimit, nil))
		require.NotNil(t, revert)
		require.Equal(t, rolluptypes.RevertTooBigGasLimit, revert.Kind)
	}
	hugeL1Tx := rolluptypes.NewTransaction(rolluptypes.Transaction{
		Initiator: sender,
		GasLimit:  math.MaxUint64,
		IsL1:      true,
	})
	_, revert = vm.ExecuteNextTx(hugeL1Tx)
	require.NotNil(t, revert)
	require.Equal(t, rolluptypes.RevertTooBigGasLimit, revert.Kind)

	require.Empty(t, vm.journal)
	require.Zero(t, vm.txCount)
}

func TestBootloaderOutOfGas(t *testing.T) {
	source := testhelpers.NewPseudoRandomDataSource(t, 5)
	sender := source.GetAddress()
	config := DefaultConfig
	config.BatchGasLimit = 300_000
	config.BlockTipGas = 50_000
	vm := NewVM(&config, MemoryStorage{}, testContext(source.GetAddress()))

	first := writeTx(sender, 0, vm.MaxTxGasLimit(), source.GetStorageWrites(5))
	result, revert := vm.ExecuteNextTx(first)
	require.Nil(t, revert)
	require.True(t, vm.HasEnoughGasForBlockTip())

	// fits into an empty batch but not into what is left of this one
	_, revert = vm.ExecuteNextTx(writeTx(sender, 1, vm.MaxTxGasLimit(), nil))
	require.NotNil(t, revert)
	require.Equal(t, rolluptypes.RevertBootloaderOutOfGas, revert.Kind)

	_, revert = vm.ExecuteNextTx(writeTx(sender, 1, config.BatchGasLimit-result.GasUsed, nil))
	require.Nil(t, revert)
}

func TestOutOfGasTransactionFails(t *testing.T) {
	source := testhelpers.NewPseudoRandomDataSource(t, 3)
	sender := source.GetAddress()
	data := source.GetStorageWrites(3)
	vm := NewVM(&DefaultConfig, MemoryStorage{}, testContext(source.GetAddress()))

	tx := writeTx(sender, 0, IntrinsicGas(&rolluptypes.Transaction{Data: data})+DefaultConfig.StorageWriteGas, data)
	result, revert := vm.ExecuteNextTx(tx)
	require.Nil(t, revert)
	require.Equal(t, rolluptypes.TxStatusFailure, result.Status)
	require.Equal(t, tx.GasLimit, result.GasUsed)
	require.Zero(t, result.GasRefunded)
	// only the nonce and the fee
	require.Len(t, result.Logs.StorageLogs, 2)
	require.Equal(t, uint64(1), vm.readUint(NonceKey(sender)).Uint64())
}

func TestL1TransactionEmitsLog(t *testing.T) {
	source := testhelpers.NewPseudoRandomDataSource(t, 4)
	vm := NewVM(&DefaultConfig, MemoryStorage{}, testContext(source.GetAddress()))
	tx := rolluptypes.NewTransaction(rolluptypes.Transaction{
		Initiator:    source.GetAddress(),
		Nonce:        42,
		GasLimit:     100_000,
		IsL1:         true,
		PriorityOpID: 3,
	})
	result, revert := vm.ExecuteNextTx(tx)
	require.Nil(t, revert)
	require.Len(t, result.Logs.L2ToL1Logs, 1)
	require.True(t, result.Logs.L2ToL1Logs[0].IsL1Tx)
	require.Equal(t, tx.Hash, result.Logs.L2ToL1Logs[0].Key)
	require.Equal(t, byte(1), result.Logs.L2ToL1Logs[0].Value[31])
	require.Equal(t, 1, result.Metrics.L2L1Logs)
}

func TestSnapshotRollback(t *testing.T) {
	source := testhelpers.NewPseudoRandomDataSource(t, 5)
	sender := source.GetAddress()
	base := MemoryStorage{}
	existingKey := AccountSlotKey(sender, common.Hash{1})
	base[existingKey] = common.Hash{9}
	vm := NewVM(&DefaultConfig, base, testContext(source.GetAddress()))

	data := append(common.Hash{1}.Bytes(), common.Hash{2}.Bytes()...)
	vm.MakeSnapshot()
	result, revert := vm.ExecuteNextTx(writeTx(sender, 0, 1_000_000, data))
	require.Nil(t, revert)
	require.False(t, result.Logs.StorageLogs[0].IsInitial)
	require.Equal(t, common.Hash{9}, result.Logs.StorageLogs[0].ReadValue)
	vm.RollbackToLatestSnapshot()

	require.Equal(t, common.Hash{9}, vm.read(existingKey))
	require.Zero(t, vm.readUint(NonceKey(sender)).Uint64())
	require.Empty(t, vm.writtenKeys)
	require.Empty(t, vm.events)
	require.Zero(t, vm.gasUsed)
	require.Zero(t, vm.SnapshotsLen())

	vm.MakeSnapshot()
	_, revert = vm.ExecuteNextTx(writeTx(sender, 0, 1_000_000, data))
	require.Nil(t, revert)
	vm.PopSnapshotNoRollback()
	require.Equal(t, common.Hash{2}, vm.read(existingKey))
}

func TestBlockTipAndFinish(t *testing.T) {
	source := testhelpers.NewPseudoRandomDataSource(t, 6)
	sender := source.GetAddress()
	config := DefaultConfig
	config.BatchGasLimit = 200_000
	config.BlockTipGas = 50_000
	vm := NewVM(&config, MemoryStorage{}, testContext(source.GetAddress()))
	require.True(t, vm.HasEnoughGasForBlockTip())

	_, revert := vm.ExecuteNextTx(writeTx(sender, 0, 170_000, source.GetStorageWrites(7)))
	require.Nil(t, revert)
	require.False(t, vm.HasEnoughGasForBlockTip())

	data := append(common.Hash{1}.Bytes(), common.Hash{2}.Bytes()...)
	vm = NewVM(&config, MemoryStorage{}, testContext(source.GetAddress()))
	_, revert = vm.ExecuteNextTx(writeTx(sender, 0, 100_000, data))
	require.Nil(t, revert)
	// same slot again, the final result keeps one entry per slot
	data = append(common.Hash{1}.Bytes(), common.Hash{3}.Bytes()...)
	_, revert = vm.ExecuteNextTx(writeTx(sender, 1, 100_000, data))
	require.Nil(t, revert)
	require.True(t, vm.HasEnoughGasForBlockTip())
	tip := vm.ExecuteBlockTip()
	require.Equal(t, config.BlockTipGas, tip.GasUsed)
	require.Len(t, tip.Logs.StorageLogs, 1)
	require.Equal(t, BatchNumberKey, tip.Logs.StorageLogs[0].Key)

	block := vm.Finish()
	finals := make(map[common.Hash]common.Hash)
	for _, log := range block.StorageLogs {
		_, duplicate := finals[log.Key]
		require.False(t, duplicate)
		finals[log.Key] = log.WrittenValue
	}
	require.Equal(t, common.Hash{3}, finals[AccountSlotKey(sender, common.Hash{1})])
	require.Equal(t, common.Hash(uint256.NewInt(7).Bytes32()), finals[BatchNumberKey])
	require.Equal(t, vm.gasUsed, block.GasUsed)
	require.Len(t, block.L2ToL1Logs, 1)
}

func TestFinishSkipsUnchangedSlots(t *testing.T) {
	sender := common.Address{1}
	key := AccountSlotKey(sender, common.Hash{1})
	base := MemoryStorage{key: common.Hash{5}}
	context := testContext(common.Address{2})
	context.BaseFee = 0
	vm := NewVM(&DefaultConfig, base, context)
	data := append(common.Hash{1}.Bytes(), common.Hash{5}.Bytes()...)
	_, revert := vm.ExecuteNextTx(writeTx(sender, 0, 100_000, data))
	require.Nil(t, revert)
	block := vm.Finish()
	for _, log := range block.StorageLogs {
		require.NotEqual(t, key, log.Key)
	}
	require.Len(t, block.StorageLogs, 1)
	require.Equal(t, NonceKey(sender), block.StorageLogs[0].Key)
}
