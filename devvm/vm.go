// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package devvm is a small deterministic VM for development chains and tests.
//
// A transaction's data is a list of 64-byte (key, value) records, each stored in a slot owned by
// the initiator. L2 transactions must carry the initiator's next nonce. Every transaction pays
// gasUsed*baseFee to the operator.
package devvm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
)

const (
	TxBaseGas        uint64 = 21_000
	TxDataGasPerByte uint64 = 16
	recordSize              = 2 * common.HashLength
)

// StorageView is the committed state a batch starts from.
type StorageView interface {
	// ReadValue returns the slot value and whether the slot was ever written.
	ReadValue(key common.Hash) (common.Hash, bool)
}

type MemoryStorage map[common.Hash]common.Hash

func (m MemoryStorage) ReadValue(key common.Hash) (common.Hash, bool) {
	value, ok := m[key]
	return value, ok
}

func NonceKey(account common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte("nonce"), account.Bytes())
}

func BalanceKey(account common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte("balance"), account.Bytes())
}

func AccountSlotKey(account common.Address, key common.Hash) common.Hash {
	return crypto.Keccak256Hash(account.Bytes(), key.Bytes())
}

var BatchNumberKey = crypto.Keccak256Hash([]byte("batch-number"))

func IntrinsicGas(tx *rolluptypes.Transaction) uint64 {
	return TxBaseGas + TxDataGasPerByte*uint64(len(tx.Data))
}

type journalEntry struct {
	key     common.Hash
	prev    common.Hash
	hadPrev bool
}

type snapshot struct {
	journalLen        int
	writtenKeysLen    int
	eventsLen         int
	l2ToL1LogsLen     int
	bootloaderGasUsed uint64
	gasUsed           uint64
	txCount           uint64
}

type VM struct {
	config  *Config
	base    StorageView
	context rolluptypes.DerivedBlockContext

	storage           map[common.Hash]common.Hash
	journal           []journalEntry
	writtenKeys       []common.Hash
	events            []rolluptypes.VmEvent
	l2ToL1Logs        []rolluptypes.L2ToL1Log
	bootloaderGasUsed uint64
	gasUsed           uint64
	txCount           uint64

	snapshots []snapshot
}

func NewVM(config *Config, base StorageView, context rolluptypes.DerivedBlockContext) *VM {
	return &VM{
		config:  config,
		base:    base,
		context: context,
		storage: make(map[common.Hash]common.Hash),
	}
}

func (vm *VM) read(key common.Hash) common.Hash {
	if value, ok := vm.storage[key]; ok {
		return value
	}
	value, _ := vm.base.ReadValue(key)
	return value
}

func (vm *VM) write(key, value common.Hash) rolluptypes.StorageLog {
	prev, hadPrev := vm.storage[key]
	if !hadPrev {
		prev, _ = vm.base.ReadValue(key)
		vm.writtenKeys = append(vm.writtenKeys, key)
	}
	vm.journal = append(vm.journal, journalEntry{key: key, prev: prev, hadPrev: hadPrev})
	vm.storage[key] = value
	_, existed := vm.base.ReadValue(key)
	return rolluptypes.StorageLog{
		Key:          key,
		ReadValue:    prev,
		WrittenValue: value,
		IsWrite:      true,
		IsInitial:    !existed,
	}
}

func (vm *VM) readUint(key common.Hash) *uint256.Int {
	value := vm.read(key)
	return new(uint256.Int).SetBytes32(value[:])
}

func (vm *VM) writeUint(key common.Hash, value *uint256.Int) rolluptypes.StorageLog {
	return vm.write(key, common.Hash(value.Bytes32()))
}

func (vm *VM) MakeSnapshot() {
	vm.snapshots = append(vm.snapshots, snapshot{
		journalLen:        len(vm.journal),
		writtenKeysLen:    len(vm.writtenKeys),
		eventsLen:         len(vm.events),
		l2ToL1LogsLen:     len(vm.l2ToL1Logs),
		bootloaderGasUsed: vm.bootloaderGasUsed,
		gasUsed:           vm.gasUsed,
		txCount:           vm.txCount,
	})
}

func (vm *VM) popSnapshot() snapshot {
	if len(vm.snapshots) == 0 {
		panic("devvm: no snapshot to pop")
	}
	last := vm.snapshots[len(vm.snapshots)-1]
	vm.snapshots = vm.snapshots[:len(vm.snapshots)-1]
	return last
}

func (vm *VM) RollbackToLatestSnapshot() {
	s := vm.popSnapshot()
	for i := len(vm.journal) - 1; i >= s.journalLen; i-- {
		entry := vm.journal[i]
		if entry.hadPrev {
			vm.storage[entry.key] = entry.prev
		} else {
			delete(vm.storage, entry.key)
		}
	}
	vm.journal = vm.journal[:s.journalLen]
	vm.writtenKeys = vm.writtenKeys[:s.writtenKeysLen]
	vm.events = vm.events[:s.eventsLen]
	vm.l2ToL1Logs = vm.l2ToL1Logs[:s.l2ToL1LogsLen]
	vm.bootloaderGasUsed = s.bootloaderGasUsed
	vm.gasUsed = s.gasUsed
	vm.txCount = s.txCount
}

func (vm *VM) PopSnapshotNoRollback() {
	vm.popSnapshot()
}

func (vm *VM) SnapshotsLen() int {
	return len(vm.snapshots)
}

// MaxTxGasLimit is the highest gas limit that still fits into an empty batch together with
// the block tip.
func (vm *VM) MaxTxGasLimit() uint64 {
	return vm.config.BatchGasLimit - vm.config.BlockTipGas
}

// ExecuteNextTx runs tx on top of the batch state. A non-nil revert reason means the
// transaction was refused and left no trace. Only RevertBootloaderOutOfGas depends on the
// state of the batch; every other reason holds for any batch.
func (vm *VM) ExecuteNextTx(tx *rolluptypes.Transaction) (*rolluptypes.VmTxExecutionResult, *rolluptypes.TxRevertReason) {
	intrinsic := IntrinsicGas(tx)
	if tx.GasLimit < intrinsic {
		return nil, &rolluptypes.TxRevertReason{
			Kind:    rolluptypes.RevertValidationFailed,
			Message: fmt.Sprintf("gas limit %d is below intrinsic gas %d", tx.GasLimit, intrinsic),
		}
	}
	if tx.GasLimit > vm.MaxTxGasLimit() {
		return nil, &rolluptypes.TxRevertReason{
			Kind:    rolluptypes.RevertTooBigGasLimit,
			Message: fmt.Sprintf("gas limit %d, at most %d fits into a batch", tx.GasLimit, vm.MaxTxGasLimit()),
		}
	}
	// bootloaderGasUsed never exceeds BatchGasLimit
	if tx.GasLimit > vm.config.BatchGasLimit-vm.bootloaderGasUsed {
		return nil, &rolluptypes.TxRevertReason{Kind: rolluptypes.RevertBootloaderOutOfGas}
	}
	if len(tx.Data)%recordSize != 0 {
		return nil, &rolluptypes.TxRevertReason{
			Kind:    rolluptypes.RevertValidationFailed,
			Message: fmt.Sprintf("data length %d is not a multiple of %d", len(tx.Data), recordSize),
		}
	}
	nonceKey := NonceKey(tx.Initiator)
	nonce := vm.readUint(nonceKey)
	if !tx.IsL1 && !nonce.Eq(uint256.NewInt(tx.Nonce)) {
		return nil, &rolluptypes.TxRevertReason{
			Kind:    rolluptypes.RevertNonceMismatch,
			Message: fmt.Sprintf("expected %d, got %d", nonce.Uint64(), tx.Nonce),
		}
	}

	var logs []rolluptypes.StorageLog
	records := len(tx.Data) / recordSize
	gasUsed := intrinsic + uint64(records)*vm.config.StorageWriteGas
	status := rolluptypes.TxStatusSuccess
	revertMessage := ""
	if gasUsed > tx.GasLimit {
		status = rolluptypes.TxStatusFailure
		revertMessage = "out of gas"
		gasUsed = tx.GasLimit
	} else {
		for i := 0; i < records; i++ {
			record := tx.Data[i*recordSize : (i+1)*recordSize]
			key := AccountSlotKey(tx.Initiator, common.BytesToHash(record[:common.HashLength]))
			logs = append(logs, vm.write(key, common.BytesToHash(record[common.HashLength:])))
		}
	}
	if !tx.IsL1 {
		logs = append(logs, vm.writeUint(nonceKey, new(uint256.Int).AddUint64(nonce, 1)))
	}
	fee := new(uint256.Int).Mul(uint256.NewInt(gasUsed), uint256.NewInt(vm.context.BaseFee))
	if !fee.IsZero() {
		operatorKey := BalanceKey(vm.context.Context.OperatorAddress)
		logs = append(logs, vm.writeUint(operatorKey, new(uint256.Int).Add(vm.readUint(operatorKey), fee)))
	}

	events := []rolluptypes.VmEvent{{Address: tx.Initiator, Topics: []common.Hash{tx.Hash}}}
	var l2ToL1Logs []rolluptypes.L2ToL1Log
	if tx.IsL1 {
		var value common.Hash
		if status == rolluptypes.TxStatusSuccess {
			value[common.HashLength-1] = 1
		}
		l2ToL1Logs = append(l2ToL1Logs, rolluptypes.L2ToL1Log{
			Sender:  tx.Initiator,
			Key:     tx.Hash,
			Value:   value,
			IsL1Tx:  true,
			TxIndex: vm.txCount,
		})
	}
	vm.events = append(vm.events, events...)
	vm.l2ToL1Logs = append(vm.l2ToL1Logs, l2ToL1Logs...)
	vm.bootloaderGasUsed += gasUsed
	vm.gasUsed += gasUsed
	vm.txCount++

	return &rolluptypes.VmTxExecutionResult{
		Status:        status,
		GasUsed:       gasUsed,
		GasRefunded:   tx.GasLimit - gasUsed,
		RevertMessage: revertMessage,
		Logs: rolluptypes.ExecutionLogs{
			StorageLogs: logs,
			Events:      events,
			L2ToL1Logs:  l2ToL1Logs,
		},
		Metrics: rolluptypes.ExecutionMetrics{
			GasUsed:                gasUsed,
			PublishedBytecodeBytes: tx.FactoryDepsLen(),
			L2L1Logs:               len(l2ToL1Logs),
			ContractsDeployed:      len(tx.FactoryDeps),
			VmEvents:               len(events),
			StorageLogs:            len(logs),
			TotalLogQueries:        len(logs) + 1,
			ComputationalGasUsed:   gasUsed,
		},
	}, nil
}

func (vm *VM) HasEnoughGasForBlockTip() bool {
	return vm.config.BatchGasLimit-vm.bootloaderGasUsed >= vm.config.BlockTipGas
}

// ExecuteBlockTip closes the batch by recording its number in a system slot.
func (vm *VM) ExecuteBlockTip() *rolluptypes.VmTxExecutionResult {
	number := uint256.NewInt(uint64(vm.context.Context.BlockNumber))
	log := vm.writeUint(BatchNumberKey, number)
	l2ToL1Log := rolluptypes.L2ToL1Log{Key: BatchNumberKey, Value: common.Hash(number.Bytes32())}
	vm.l2ToL1Logs = append(vm.l2ToL1Logs, l2ToL1Log)
	vm.bootloaderGasUsed += vm.config.BlockTipGas
	vm.gasUsed += vm.config.BlockTipGas
	return &rolluptypes.VmTxExecutionResult{
		Status:  rolluptypes.TxStatusSuccess,
		GasUsed: vm.config.BlockTipGas,
		Logs: rolluptypes.ExecutionLogs{
			StorageLogs: []rolluptypes.StorageLog{log},
			L2ToL1Logs:  []rolluptypes.L2ToL1Log{l2ToL1Log},
		},
		Metrics: rolluptypes.ExecutionMetrics{
			GasUsed:              vm.config.BlockTipGas,
			L2L1Logs:             1,
			StorageLogs:          1,
			TotalLogQueries:      1,
			ComputationalGasUsed: vm.config.BlockTipGas,
		},
	}
}

// Finish returns the final value of every slot the batch changed, in order of first write.
func (vm *VM) Finish() *rolluptypes.VmBlockResult {
	result := &rolluptypes.VmBlockResult{
		GasUsed:    vm.gasUsed,
		Events:     vm.events,
		L2ToL1Logs: vm.l2ToL1Logs,
	}
	for _, key := range vm.writtenKeys {
		initial, existed := vm.base.ReadValue(key)
		final := vm.storage[key]
		if existed && final == initial {
			continue
		}
		result.StorageLogs = append(result.StorageLogs, rolluptypes.StorageLog{
			Key:          key,
			ReadValue:    initial,
			WrittenValue: final,
			IsWrite:      true,
			IsInitial:    !existed,
		})
	}
	return result
}
