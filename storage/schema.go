// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package storage

import "encoding/binary"

var (
	microPrefix string = "\x10" // the prefix for all sequencer specific keys

	miniblockHeaderPrefix []byte = []byte("h") // maps a miniblock number to its header
	miniblockTxsPrefix    []byte = []byte("t") // maps a miniblock number to its executed transactions
	l1BatchHeaderPrefix   []byte = []byte("b") // maps a batch number to its header
	l1BatchBodyPrefix     []byte = []byte("c") // maps a batch number to its brotli compressed body
	storageSlotPrefix     []byte = []byte("s") // maps a storage key to its committed value
	rejectedTxPrefix      []byte = []byte("r") // maps a transaction hash to the reason it was rejected

	miniblockCountKey     []byte = []byte("_miniblockCount")     // contains the number of persisted miniblocks
	l1BatchCountKey       []byte = []byte("_l1BatchCount")       // contains the number of sealed batches
	pendingBatchParamsKey []byte = []byte("_pendingBatchParams") // contains the params of the open batch, if any
)

func uint64ToBytes(x uint64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, x)
	return data
}

func dbKey(prefix []byte, pos uint64) []byte {
	var key []byte
	key = append(key, prefix...)
	key = append(key, uint64ToBytes(pos)...)
	return key
}

func hashKey(prefix []byte, hash []byte) []byte {
	var key []byte
	key = append(key, prefix...)
	key = append(key, hash...)
	return key
}
