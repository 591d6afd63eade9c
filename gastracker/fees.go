// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package gastracker

import "github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"

const (
	MaxGasPerPubdataByte uint64 = 50_000
	L1GasPerPubdataByte  uint64 = 17
)

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// DeriveBaseFeeAndGasPerPubdata returns the L2 base fee and the gas charged per pubdata byte
// for the given L1 and fair L2 gas prices.
func DeriveBaseFeeAndGasPerPubdata(l1GasPrice, fairL2GasPrice uint64) (uint64, uint64) {
	ethPricePerPubdataByte := L1GasPerPubdataByte * l1GasPrice
	baseFee := fairL2GasPrice
	if minFee := ceilDiv(ethPricePerPubdataByte, MaxGasPerPubdataByte); minFee > baseFee {
		baseFee = minFee
	}
	return baseFee, ceilDiv(ethPricePerPubdataByte, baseFee)
}

func DeriveBlockContext(ctx rolluptypes.BlockContext) rolluptypes.DerivedBlockContext {
	baseFee, _ := DeriveBaseFeeAndGasPerPubdata(ctx.L1GasPrice, ctx.FairL2GasPrice)
	return rolluptypes.DerivedBlockContext{
		Context: ctx,
		BaseFee: baseFee,
	}
}
