// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package statekeeper

import (
	"errors"

	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
)

var (
	ErrNothingToRollback = errors.New("no executed transaction to roll back")
	ErrBatchFinished     = errors.New("batch executor already finished the batch")
)

type TxExecutionResultKind uint8

const (
	TxSuccess TxExecutionResultKind = iota
	TxBootloaderOutOfGasForTx
	TxBootloaderOutOfGasForBlockTip
	TxRejectedByVm
)

func (k TxExecutionResultKind) String() string {
	switch k {
	case TxSuccess:
		return "success"
	case TxBootloaderOutOfGasForTx:
		return "bootloader_tx_out_of_gas"
	case TxBootloaderOutOfGasForBlockTip:
		return "bootloader_block_tip_failed"
	default:
		return "rejected_by_vm"
	}
}

// TxExecutionResult is the outcome of BatchExecutor.ExecuteTx. Only the fields of its Kind are set:
// Success fills the result, metrics and dry-run fields; RejectedByVm fills RejectionReason.
type TxExecutionResult struct {
	Kind TxExecutionResultKind

	TxResult            *rolluptypes.VmTxExecutionResult
	TxMetrics           rolluptypes.ExecutionMetricsForCriteria
	CompressedBytecodes []rolluptypes.CompressedBytecode
	// The block tip is executed speculatively after every transaction and rolled back, so that
	// the batch can always be closed. Its cost is counted against the transaction.
	BootloaderDryRunMetrics rolluptypes.ExecutionMetricsForCriteria
	BootloaderDryRunResult  *rolluptypes.VmTxExecutionResult

	RejectionReason rolluptypes.TxRevertReason
}

// L1BatchExecutorBuilder opens a new executor for every batch.
type L1BatchExecutorBuilder interface {
	InitBatch(params *L1BatchParams) (BatchExecutor, error)
}

// BatchExecutor runs transactions of a single batch in order. Calls are never concurrent.
type BatchExecutor interface {
	ExecuteTx(tx *rolluptypes.Transaction) (*TxExecutionResult, error)
	// RollbackLastTx undoes the most recent ExecuteTx. Calling it twice in a row is an error.
	RollbackLastTx() error
	// FinishBatch executes the block tip and releases the executor.
	FinishBatch() (*rolluptypes.VmBlockResult, error)
}
