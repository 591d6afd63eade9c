// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package storage

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
)

type MiniblockHeader struct {
	Number         uint64
	L1BatchNumber  uint64
	Timestamp      uint64
	Hash           common.Hash
	PrevHash       common.Hash
	BaseFeePerGas  uint64
	L1GasPrice     uint64
	FairL2GasPrice uint64
	L1TxCount      uint64
	L2TxCount      uint64
	GasUsed        uint64
}

type ExecutedTx struct {
	Tx            *rolluptypes.Transaction
	Status        rolluptypes.TxExecutionStatus
	GasUsed       uint64
	GasRefunded   uint64
	RevertMessage string
}

type MiniblockRecord struct {
	Header MiniblockHeader
	Txs    []ExecutedTx
}

// BatchParams is what a batch was opened with. It is kept until the batch is sealed so that
// the batch can be re-executed with identical inputs after a restart.
type BatchParams struct {
	Number          uint64
	Timestamp       uint64
	L1GasPrice      uint64
	FairL2GasPrice  uint64
	OperatorAddress common.Address
	ChainID         uint64
	PrevBatchHash   common.Hash
	Bootloader      common.Hash
	DefaultAA       common.Hash
}

type L1BatchHeader struct {
	Number                uint64
	Timestamp             uint64
	Hash                  common.Hash
	PrevHash              common.Hash
	FirstMiniblock        uint64
	LastMiniblock         uint64
	L1TxCount             uint64
	L2TxCount             uint64
	GasUsed               uint64
	BaseFeePerGas         uint64
	L1GasPrice            uint64
	FairL2GasPrice        uint64
	Bootloader            common.Hash
	DefaultAA             common.Hash
	InitialStorageWrites  uint64
	RepeatedStorageWrites uint64
	CommitGas             uint64
	BodyHash              common.Hash
}

type StorageWrite struct {
	Key   common.Hash
	Value common.Hash
}

type L1BatchBody struct {
	TxHashes      []common.Hash
	StorageWrites []StorageWrite
	L2ToL1Logs    []rolluptypes.L2ToL1Log
	Events        []rolluptypes.VmEvent
}
