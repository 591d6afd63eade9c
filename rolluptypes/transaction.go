// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package rolluptypes

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// EncodingWordSize is the width of a bootloader memory slot.
const EncodingWordSize = 32

// Transaction is an immutable unit of work accepted by the sequencer.
// Fields must not be modified after NewTransaction has computed the hash.
type Transaction struct {
	Hash         common.Hash
	Initiator    common.Address
	Nonce        uint64
	GasLimit     uint64
	MaxFeePerGas uint64
	IsL1         bool
	PriorityOpID uint64
	Data         []byte
	FactoryDeps  [][]byte
}

type txBody struct {
	Initiator    common.Address
	Nonce        uint64
	GasLimit     uint64
	MaxFeePerGas uint64
	IsL1         bool
	PriorityOpID uint64
	Data         []byte
	FactoryDeps  [][]byte
}

func (tx *Transaction) body() *txBody {
	return &txBody{
		Initiator:    tx.Initiator,
		Nonce:        tx.Nonce,
		GasLimit:     tx.GasLimit,
		MaxFeePerGas: tx.MaxFeePerGas,
		IsL1:         tx.IsL1,
		PriorityOpID: tx.PriorityOpID,
		Data:         tx.Data,
		FactoryDeps:  tx.FactoryDeps,
	}
}

// NewTransaction fills in the hash of the given transaction and returns it.
func NewTransaction(tx Transaction) *Transaction {
	encoded, err := rlp.EncodeToBytes(tx.body())
	if err != nil {
		// all fields are rlp-encodable
		panic(err)
	}
	tx.Hash = crypto.Keccak256Hash(encoded)
	return &tx
}

// EncodeBody returns the canonical encoding the hash is computed from.
func (tx *Transaction) EncodeBody() ([]byte, error) {
	return rlp.EncodeToBytes(tx.body())
}

// DecodeTransactionBody parses data produced by EncodeBody and recomputes the hash.
func DecodeTransactionBody(data []byte) (*Transaction, error) {
	var body txBody
	if err := rlp.DecodeBytes(data, &body); err != nil {
		return nil, err
	}
	return NewTransaction(Transaction{
		Initiator:    body.Initiator,
		Nonce:        body.Nonce,
		GasLimit:     body.GasLimit,
		MaxFeePerGas: body.MaxFeePerGas,
		IsL1:         body.IsL1,
		PriorityOpID: body.PriorityOpID,
		Data:         body.Data,
		FactoryDeps:  body.FactoryDeps,
	}), nil
}

// EncodingLen returns the number of bootloader words the transaction occupies.
func (tx *Transaction) EncodingLen() int {
	encoded, err := rlp.EncodeToBytes(tx.body())
	if err != nil {
		panic(err)
	}
	return (len(encoded) + EncodingWordSize - 1) / EncodingWordSize
}

func (tx *Transaction) FactoryDepsLen() int {
	total := 0
	for _, dep := range tx.FactoryDeps {
		total += len(dep)
	}
	return total
}

func (tx *Transaction) String() string {
	if tx.IsL1 {
		return "L1:" + tx.Hash.Hex()
	}
	return "L2:" + tx.Hash.Hex()
}
