// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package rolluptypes

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type RevertKind uint8

const (
	RevertHalt RevertKind = iota
	RevertNotEnoughGasProvided
	RevertBootloaderOutOfGas
	RevertTooBigGasLimit
	RevertNonceMismatch
	RevertValidationFailed
)

// TxRevertReason explains why the VM refused a transaction.
type TxRevertReason struct {
	Kind    RevertKind
	Message string
}

func (r TxRevertReason) String() string {
	switch r.Kind {
	case RevertNotEnoughGasProvided:
		return "not enough gas provided to start tx"
	case RevertBootloaderOutOfGas:
		return "bootloader out of gas"
	case RevertTooBigGasLimit:
		if r.Message == "" {
			return "transaction gas limit is too big"
		}
		return "transaction gas limit is too big: " + r.Message
	case RevertNonceMismatch:
		return "nonce mismatch: " + r.Message
	case RevertValidationFailed:
		return "validation failed: " + r.Message
	default:
		if r.Message == "" {
			return "halted"
		}
		return "halted: " + r.Message
	}
}

func (r TxRevertReason) Error() string {
	return r.String()
}

type TxExecutionStatus uint8

const (
	TxStatusSuccess TxExecutionStatus = iota
	TxStatusFailure
)

func (s TxExecutionStatus) String() string {
	if s == TxStatusSuccess {
		return "success"
	}
	return "failure"
}

type ExecutionLogs struct {
	StorageLogs []StorageLog
	Events      []VmEvent
	L2ToL1Logs  []L2ToL1Log
}

// VmTxExecutionResult is what the VM reports for a transaction it accepted.
// A Failure status means the transaction reverted but is still part of the batch.
type VmTxExecutionResult struct {
	Status                  TxExecutionStatus
	GasUsed                 uint64
	GasRefunded             uint64
	OperatorSuggestedRefund uint64
	RevertMessage           string
	Logs                    ExecutionLogs
	Metrics                 ExecutionMetrics
}

type CompressedBytecode struct {
	Original   common.Hash
	Compressed []byte
}

// VmBlockResult is the outcome of finishing a batch: the final deduplicated
// storage writes plus everything emitted along the way.
type VmBlockResult struct {
	GasUsed     uint64
	StorageLogs []StorageLog
	Events      []VmEvent
	L2ToL1Logs  []L2ToL1Log
}

type BaseSystemContractsHashes struct {
	Bootloader common.Hash
	DefaultAA  common.Hash
}

func (h BaseSystemContractsHashes) String() string {
	return fmt.Sprintf("bootloader=%v default_aa=%v", h.Bootloader, h.DefaultAA)
}

type BlockContext struct {
	BlockNumber     L1BatchNumber
	BlockTimestamp  uint64
	L1GasPrice      uint64
	FairL2GasPrice  uint64
	OperatorAddress common.Address
	ChainID         uint64
}

type DerivedBlockContext struct {
	Context BlockContext
	BaseFee uint64
}
