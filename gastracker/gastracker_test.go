// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package gastracker

import (
	"testing"

	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
	"github.com/stretchr/testify/require"
)

func TestNewBlockGasCount(t *testing.T) {
	require.Equal(t, rolluptypes.BlockGasCount{Commit: 31_000, Prove: 7_000, Execute: 30_000}, NewBlockGasCount())
}

func TestGasCountFromTx(t *testing.T) {
	metrics := rolluptypes.ExecutionMetrics{L2L1Logs: 1, PublishedBytecodeBytes: 12}
	l1Tx := &rolluptypes.Transaction{IsL1: true}
	l2Tx := &rolluptypes.Transaction{}

	l1Gas := GasCountFromTxAndMetrics(l1Tx, &metrics)
	require.Equal(t, uint64(100*18), l1Gas.Commit)
	require.Equal(t, uint64(0), l1Gas.Prove)
	require.Equal(t, L1OperationExecuteCost, l1Gas.Execute)

	l2Gas := GasCountFromTxAndMetrics(l2Tx, &metrics)
	require.Equal(t, uint64(0), l2Gas.Execute)

	require.Equal(t, rolluptypes.BlockGasCount{Commit: 100 * 18}, GasCountFromMetrics(&metrics))
	require.Equal(t, l1Gas, MetricsForCriteria(l1Tx, metrics).L1Gas)
	require.Equal(t, GasCountFromMetrics(&metrics), MetricsForCriteria(nil, metrics).L1Gas)
}

func TestGasCountFromWrites(t *testing.T) {
	writes := rolluptypes.DeduplicatedWritesMetrics{InitialStorageWrites: 2, RepeatedStorageWrites: 1}
	require.Equal(t, rolluptypes.BlockGasCount{Commit: (2*64 + 40) * 18}, GasCountFromWrites(&writes))
}

func TestDeriveBaseFee(t *testing.T) {
	baseFee, perPubdata := DeriveBaseFeeAndGasPerPubdata(1_000_000_000, 250_000_000)
	require.Equal(t, uint64(340_000), ceilDiv(17*1_000_000_000, 50_000))
	require.Equal(t, uint64(250_000_000), baseFee)
	require.Equal(t, uint64(68), perPubdata)

	// expensive L1 pushes the base fee up so that pubdata stays under the cap
	baseFee, perPubdata = DeriveBaseFeeAndGasPerPubdata(1_000_000_000_000, 1)
	require.Equal(t, uint64(340_000_000), baseFee)
	require.Equal(t, MaxGasPerPubdataByte, perPubdata)
}
