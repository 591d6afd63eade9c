// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package gastracker predicts the L1 gas cost of committing, proving and executing batches.
package gastracker

import (
	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
)

const (
	L1BatchCommitBaseCost  uint64 = 31_000
	L1BatchProveBaseCost   uint64 = 7_000
	L1BatchExecuteBaseCost uint64 = 30_000

	ExecuteCommitCost  uint64 = 0
	ExecuteExecuteCost uint64 = 0

	L1OperationExecuteCost uint64 = 12_500

	GasPerByte uint64 = 18
)

type AggregatedActionType uint8

const (
	ActionCommit AggregatedActionType = iota
	ActionPublishProofOnchain
	ActionExecute
)

func (a AggregatedActionType) String() string {
	switch a {
	case ActionCommit:
		return "commit"
	case ActionPublishProofOnchain:
		return "publish_proof"
	case ActionExecute:
		return "execute"
	default:
		return "unknown"
	}
}

func L1BatchBaseCost(op AggregatedActionType) uint64 {
	switch op {
	case ActionCommit:
		return L1BatchCommitBaseCost
	case ActionPublishProofOnchain:
		return L1BatchProveBaseCost
	default:
		return L1BatchExecuteBaseCost
	}
}

func baseTxCost(tx *rolluptypes.Transaction, op AggregatedActionType) uint64 {
	switch op {
	case ActionCommit:
		return ExecuteCommitCost
	case ActionPublishProofOnchain:
		return 0
	default:
		if tx.IsL1 {
			return L1OperationExecuteCost
		}
		return ExecuteExecuteCost
	}
}

func additionalPubdataCommitCost(metrics *rolluptypes.ExecutionMetrics) uint64 {
	return uint64(metrics.Size()) * GasPerByte
}

func additionalWritesCommitCost(writes *rolluptypes.DeduplicatedWritesMetrics) uint64 {
	return uint64(writes.Size()) * GasPerByte
}

// NewBlockGasCount is the gas an empty batch costs.
func NewBlockGasCount() rolluptypes.BlockGasCount {
	return rolluptypes.BlockGasCount{
		Commit:  L1BatchBaseCost(ActionCommit),
		Prove:   L1BatchBaseCost(ActionPublishProofOnchain),
		Execute: L1BatchBaseCost(ActionExecute),
	}
}

func GasCountFromTxAndMetrics(tx *rolluptypes.Transaction, metrics *rolluptypes.ExecutionMetrics) rolluptypes.BlockGasCount {
	return rolluptypes.BlockGasCount{
		Commit:  baseTxCost(tx, ActionCommit) + additionalPubdataCommitCost(metrics),
		Prove:   baseTxCost(tx, ActionPublishProofOnchain),
		Execute: baseTxCost(tx, ActionExecute),
	}
}

func GasCountFromMetrics(metrics *rolluptypes.ExecutionMetrics) rolluptypes.BlockGasCount {
	return rolluptypes.BlockGasCount{
		Commit: additionalPubdataCommitCost(metrics),
	}
}

func GasCountFromWrites(writes *rolluptypes.DeduplicatedWritesMetrics) rolluptypes.BlockGasCount {
	return rolluptypes.BlockGasCount{
		Commit: additionalWritesCommitCost(writes),
	}
}

// MetricsForCriteria prices execution metrics in L1 gas. A nil tx prices the block tip.
func MetricsForCriteria(tx *rolluptypes.Transaction, metrics rolluptypes.ExecutionMetrics) rolluptypes.ExecutionMetricsForCriteria {
	var l1Gas rolluptypes.BlockGasCount
	if tx != nil {
		l1Gas = GasCountFromTxAndMetrics(tx, &metrics)
	} else {
		l1Gas = GasCountFromMetrics(&metrics)
	}
	return rolluptypes.ExecutionMetricsForCriteria{
		L1Gas:            l1Gas,
		ExecutionMetrics: metrics,
	}
}

// CommitGasForL1Batch estimates the commit cost of a sealed batch from the data it publishes.
func CommitGasForL1Batch(l2ToL1MessagesLen, factoryDepsLen int, writes rolluptypes.DeduplicatedWritesMetrics) uint64 {
	calldata := uint64(l2ToL1MessagesLen) + uint64(factoryDepsLen) + uint64(writes.Size())
	return L1BatchBaseCost(ActionCommit) + calldata*GasPerByte
}
