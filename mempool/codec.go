// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package mempool

import (
	"fmt"

	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
)

// EncodeTransaction is the format producers push to the redis list.
func EncodeTransaction(tx *rolluptypes.Transaction) ([]byte, error) {
	return tx.EncodeBody()
}

func DecodeTransaction(data []byte, maxSize int) (*rolluptypes.Transaction, error) {
	if len(data) > maxSize {
		return nil, fmt.Errorf("encoded transaction of %d bytes exceeds the limit of %d", len(data), maxSize)
	}
	return rolluptypes.DecodeTransactionBody(data)
}
