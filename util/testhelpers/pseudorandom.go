// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package testhelpers

import (
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PseudoRandomDataSource yields the same sequence on every run for a given salt.
// The testing.T parameter keeps it out of production code.
type PseudoRandomDataSource struct {
	salt  common.Hash
	index uint64
}

func NewPseudoRandomDataSource(_ *testing.T, salt uint64) *PseudoRandomDataSource {
	return &PseudoRandomDataSource{
		salt: crypto.Keccak256Hash([]byte{'s'}, binary.BigEndian.AppendUint64(nil, salt)),
	}
}

func (r *PseudoRandomDataSource) GetHash() common.Hash {
	r.index++
	return crypto.Keccak256Hash(r.salt[:], binary.BigEndian.AppendUint64(nil, r.index))
}

func (r *PseudoRandomDataSource) GetAddress() common.Address {
	return common.BytesToAddress(r.GetHash().Bytes()[:common.AddressLength])
}

// GetStorageWrites returns count (key, value) records of 64 bytes each.
func (r *PseudoRandomDataSource) GetStorageWrites(count int) []byte {
	data := make([]byte, 0, count*2*common.HashLength)
	for i := 0; i < count; i++ {
		data = append(data, r.GetHash().Bytes()...)
		data = append(data, r.GetHash().Bytes()...)
	}
	return data
}
