// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package updates accumulates the effects of executed transactions for the open batch
// and its open miniblock until they are sealed.
package updates

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ZKAmoeba-Micro/micro-sub000/gastracker"
	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
)

type TransactionExecutionResult struct {
	Transaction             *rolluptypes.Transaction
	ExecutionInfo           rolluptypes.ExecutionMetrics
	ExecutionStatus         rolluptypes.TxExecutionStatus
	RefundedGas             uint64
	OperatorSuggestedRefund uint64
	RevertMessage           string
	CompressedBytecodes     []rolluptypes.CompressedBytecode
	L1Gas                   rolluptypes.BlockGasCount
}

type MiniblockUpdates struct {
	ExecutedTransactions  []TransactionExecutionResult
	Events                []rolluptypes.VmEvent
	StorageLogs           []rolluptypes.StorageLog
	L2ToL1Logs            []rolluptypes.L2ToL1Log
	NewFactoryDeps        map[common.Hash][]byte
	L1GasCount            rolluptypes.BlockGasCount
	BlockExecutionMetrics rolluptypes.ExecutionMetrics
	TxsEncodingSize       int
	Timestamp             uint64
}

func newMiniblockUpdates(timestamp uint64) *MiniblockUpdates {
	return &MiniblockUpdates{
		NewFactoryDeps: make(map[common.Hash][]byte),
		Timestamp:      timestamp,
	}
}

func (m *MiniblockUpdates) extend(result TransactionExecutionResult, logs *rolluptypes.ExecutionLogs, encodingSize int) {
	for _, dep := range result.Transaction.FactoryDeps {
		m.NewFactoryDeps[crypto.Keccak256Hash(dep)] = dep
	}
	m.Events = append(m.Events, logs.Events...)
	m.StorageLogs = append(m.StorageLogs, logs.StorageLogs...)
	m.L2ToL1Logs = append(m.L2ToL1Logs, logs.L2ToL1Logs...)
	m.L1GasCount = m.L1GasCount.Add(result.L1Gas)
	m.BlockExecutionMetrics = m.BlockExecutionMetrics.Add(result.ExecutionInfo)
	m.TxsEncodingSize += encodingSize
	m.ExecutedTransactions = append(m.ExecutedTransactions, result)
}

// L1BatchUpdates holds the running totals of the open batch, including its open miniblock.
type L1BatchUpdates struct {
	Miniblocks            []*MiniblockUpdates
	ExecutedTransactions  []TransactionExecutionResult
	L1GasCount            rolluptypes.BlockGasCount
	BlockExecutionMetrics rolluptypes.ExecutionMetrics
	TxsEncodingSize       int
}

type UpdatesManager struct {
	context             rolluptypes.DerivedBlockContext
	baseSystemContracts rolluptypes.BaseSystemContractsHashes
	l1Batch             *L1BatchUpdates
	miniblock           *MiniblockUpdates
	writesDeduplicator  *rolluptypes.StorageWritesDeduplicator
}

// NewUpdatesManager opens a batch whose first miniblock carries the batch timestamp.
func NewUpdatesManager(context rolluptypes.DerivedBlockContext, contracts rolluptypes.BaseSystemContractsHashes) *UpdatesManager {
	return &UpdatesManager{
		context:             context,
		baseSystemContracts: contracts,
		l1Batch: &L1BatchUpdates{
			L1GasCount: gastracker.NewBlockGasCount(),
		},
		miniblock:          newMiniblockUpdates(context.Context.BlockTimestamp),
		writesDeduplicator: rolluptypes.NewStorageWritesDeduplicator(),
	}
}

func (u *UpdatesManager) ExtendFromExecutedTransaction(
	tx *rolluptypes.Transaction,
	txResult *rolluptypes.VmTxExecutionResult,
	compressedBytecodes []rolluptypes.CompressedBytecode,
	l1Gas rolluptypes.BlockGasCount,
	executionMetrics rolluptypes.ExecutionMetrics,
) {
	result := TransactionExecutionResult{
		Transaction:             tx,
		ExecutionInfo:           executionMetrics,
		ExecutionStatus:         txResult.Status,
		RefundedGas:             txResult.GasRefunded,
		OperatorSuggestedRefund: txResult.OperatorSuggestedRefund,
		RevertMessage:           txResult.RevertMessage,
		CompressedBytecodes:     compressedBytecodes,
		L1Gas:                   l1Gas,
	}
	encodingSize := tx.EncodingLen()
	u.writesDeduplicator.Apply(txResult.Logs.StorageLogs)
	u.miniblock.extend(result, &txResult.Logs, encodingSize)

	u.l1Batch.ExecutedTransactions = append(u.l1Batch.ExecutedTransactions, result)
	u.l1Batch.L1GasCount = u.l1Batch.L1GasCount.Add(l1Gas)
	u.l1Batch.BlockExecutionMetrics = u.l1Batch.BlockExecutionMetrics.Add(executionMetrics)
	u.l1Batch.TxsEncodingSize += encodingSize
}

// SealMiniblock closes the open miniblock and opens an empty one stamped with newTimestamp.
func (u *UpdatesManager) SealMiniblock(newTimestamp uint64) {
	u.l1Batch.Miniblocks = append(u.l1Batch.Miniblocks, u.miniblock)
	u.miniblock = newMiniblockUpdates(newTimestamp)
}

func (u *UpdatesManager) L1BatchNumber() rolluptypes.L1BatchNumber {
	return u.context.Context.BlockNumber
}

func (u *UpdatesManager) BatchTimestamp() uint64 {
	return u.context.Context.BlockTimestamp
}

func (u *UpdatesManager) BaseFeePerGas() uint64 {
	return u.context.BaseFee
}

func (u *UpdatesManager) Context() rolluptypes.DerivedBlockContext {
	return u.context
}

func (u *UpdatesManager) BaseSystemContracts() rolluptypes.BaseSystemContractsHashes {
	return u.baseSystemContracts
}

func (u *UpdatesManager) Miniblock() *MiniblockUpdates {
	return u.miniblock
}

func (u *UpdatesManager) SealedMiniblocks() []*MiniblockUpdates {
	return u.l1Batch.Miniblocks
}

func (u *UpdatesManager) ExecutedTransactions() []TransactionExecutionResult {
	return u.l1Batch.ExecutedTransactions
}

func (u *UpdatesManager) StorageWritesDeduplicator() *rolluptypes.StorageWritesDeduplicator {
	return u.writesDeduplicator
}

func (u *UpdatesManager) PendingExecutedTransactionsLen() int {
	return len(u.l1Batch.ExecutedTransactions)
}

func (u *UpdatesManager) PendingL1GasCount() rolluptypes.BlockGasCount {
	return u.l1Batch.L1GasCount
}

func (u *UpdatesManager) PendingExecutionMetrics() rolluptypes.ExecutionMetrics {
	return u.l1Batch.BlockExecutionMetrics
}

func (u *UpdatesManager) PendingTxsEncodingSize() int {
	return u.l1Batch.TxsEncodingSize
}
