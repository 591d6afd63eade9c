// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package sealcriteria

import (
	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
)

// SealData describes either the whole batch with the candidate transaction included,
// or the candidate transaction on its own.
type SealData struct {
	ExecutionMetrics rolluptypes.ExecutionMetrics
	GasCount         rolluptypes.BlockGasCount
	CumulativeSize   int
	WritesMetrics    rolluptypes.DeduplicatedWritesMetrics
}

// SealCriterion is a pure check of one resource limit. Implementations must not keep state.
type SealCriterion interface {
	ShouldSeal(config *Config, blockOpenTimestampMs uint64, txCount int, block, tx *SealData) SealResolution
	Name() string
}

func percentOf(limit uint64, percentage float64) uint64 {
	return uint64(float64(limit) * percentage)
}

// thresholdResolution applies the common three-tier rule: a transaction that alone exceeds
// its share of the limit can never be included; a batch over the limit drops the transaction;
// a batch over the close threshold keeps it and seals.
func thresholdResolution(txValue, blockValue, limit uint64, rejectPercentage, closePercentage float64, rejectReason string) SealResolution {
	if txValue > percentOf(limit, rejectPercentage) {
		return Unexecutable(rejectReason)
	}
	if blockValue > limit {
		return ExcludeAndSeal
	}
	if blockValue > percentOf(limit, closePercentage) {
		return IncludeAndSeal
	}
	return NoSeal
}

type SlotsCriterion struct{}

func (SlotsCriterion) ShouldSeal(config *Config, _ uint64, txCount int, _, _ *SealData) SealResolution {
	if txCount >= config.TransactionSlots {
		return IncludeAndSeal
	}
	return NoSeal
}

func (SlotsCriterion) Name() string {
	return "slots"
}

// GasCriterion limits the L1 gas needed to commit, prove and execute the batch.
type GasCriterion struct{}

func (GasCriterion) ShouldSeal(config *Config, _ uint64, _ int, block, tx *SealData) SealResolution {
	txBound := percentOf(config.MaxSingleTxGas, config.RejectTxAtGasPercentage)
	blockBound := percentOf(config.MaxSingleTxGas, config.CloseBlockAtGasPercentage)
	switch {
	case tx.GasCount.AnyFieldGreaterThan(txBound):
		return Unexecutable("Transaction requires too much gas")
	case block.GasCount.AnyFieldGreaterThan(config.MaxSingleTxGas):
		return ExcludeAndSeal
	case block.GasCount.AnyFieldGreaterThan(blockBound):
		return IncludeAndSeal
	default:
		return NoSeal
	}
}

func (GasCriterion) Name() string {
	return "gas"
}

type PubDataBytesCriterion struct{}

func (PubDataBytesCriterion) ShouldSeal(config *Config, _ uint64, _ int, block, tx *SealData) SealResolution {
	txSize := uint64(tx.ExecutionMetrics.Size() + tx.WritesMetrics.Size())
	blockSize := uint64(block.ExecutionMetrics.Size() + block.WritesMetrics.Size())
	return thresholdResolution(
		txSize, blockSize, config.MaxPubdataPerBatch,
		config.RejectTxAtEthParamsPercentage, config.CloseBlockAtEthParamsPercentage,
		"Transaction cannot be sent to L1 due to pubdata limits",
	)
}

func (PubDataBytesCriterion) Name() string {
	return "pub_data_size"
}

type InitialWritesCriterion struct{}

func (InitialWritesCriterion) ShouldSeal(config *Config, _ uint64, _ int, block, tx *SealData) SealResolution {
	return thresholdResolution(
		uint64(tx.WritesMetrics.InitialStorageWrites), uint64(block.WritesMetrics.InitialStorageWrites),
		config.MaxInitialWritesPerBatch,
		config.RejectTxAtGeometryPercentage, config.CloseBlockAtGeometryPercentage,
		"Transaction cannot be sent to L1 due to too many initial storage writes",
	)
}

func (InitialWritesCriterion) Name() string {
	return "initial_writes"
}

type RepeatedWritesCriterion struct{}

func (RepeatedWritesCriterion) ShouldSeal(config *Config, _ uint64, _ int, block, tx *SealData) SealResolution {
	return thresholdResolution(
		uint64(tx.WritesMetrics.RepeatedStorageWrites), uint64(block.WritesMetrics.RepeatedStorageWrites),
		config.MaxRepeatedWritesPerBatch,
		config.RejectTxAtGeometryPercentage, config.CloseBlockAtGeometryPercentage,
		"Transaction cannot be sent to L1 due to too many repeated storage writes",
	)
}

func (RepeatedWritesCriterion) Name() string {
	return "repeated_writes"
}

// TxEncodingSizeCriterion limits the bootloader memory taken by transaction encodings.
type TxEncodingSizeCriterion struct{}

func (TxEncodingSizeCriterion) ShouldSeal(config *Config, _ uint64, _ int, block, tx *SealData) SealResolution {
	return thresholdResolution(
		uint64(tx.CumulativeSize), uint64(block.CumulativeSize),
		config.BootloaderTxEncodingSpace,
		config.RejectTxAtGeometryPercentage, config.CloseBlockAtGeometryPercentage,
		"Transaction cannot be included due to large encoding size",
	)
}

func (TxEncodingSizeCriterion) Name() string {
	return "tx_encoding_size"
}
