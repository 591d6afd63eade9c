// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package batchexecutor

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ZKAmoeba-Micro/micro-sub000/compress"
	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
)

// compressBytecodes returns the factory deps of tx that get smaller when compressed.
// The others are published as is.
func compressBytecodes(tx *rolluptypes.Transaction) []rolluptypes.CompressedBytecode {
	var compressed []rolluptypes.CompressedBytecode
	for _, dep := range tx.FactoryDeps {
		data, err := compress.CompressLevel(dep, compress.LEVEL_FAST)
		if err != nil {
			log.Warn("failed to compress factory dependency", "tx", tx, "err", err)
			continue
		}
		if len(data) >= len(dep) {
			continue
		}
		compressed = append(compressed, rolluptypes.CompressedBytecode{
			Original:   crypto.Keccak256Hash(dep),
			Compressed: data,
		})
	}
	return compressed
}
