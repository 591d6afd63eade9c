// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package rolluptypes holds the value types shared by the sequencer components.
package rolluptypes

import "strconv"

type L1BatchNumber uint64

func (n L1BatchNumber) String() string {
	return "#" + strconv.FormatUint(uint64(n), 10)
}

func (n L1BatchNumber) Next() L1BatchNumber {
	return n + 1
}

type MiniblockNumber uint64

func (n MiniblockNumber) String() string {
	return "#" + strconv.FormatUint(uint64(n), 10)
}

func (n MiniblockNumber) Next() MiniblockNumber {
	return n + 1
}
