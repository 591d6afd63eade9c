// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package devvm

import (
	"errors"

	flag "github.com/spf13/pflag"
)

type Config struct {
	BatchGasLimit   uint64 `koanf:"batch-gas-limit"`
	BlockTipGas     uint64 `koanf:"block-tip-gas"`
	StorageWriteGas uint64 `koanf:"storage-write-gas"`
}

var DefaultConfig = Config{
	BatchGasLimit:   80_000_000,
	BlockTipGas:     100_000,
	StorageWriteGas: 20_000,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Uint64(prefix+".batch-gas-limit", DefaultConfig.BatchGasLimit, "total gas the bootloader may spend on a batch")
	f.Uint64(prefix+".block-tip-gas", DefaultConfig.BlockTipGas, "gas reserved for closing a batch")
	f.Uint64(prefix+".storage-write-gas", DefaultConfig.StorageWriteGas, "gas charged per storage write")
}

func (c *Config) Validate() error {
	if c.BlockTipGas >= c.BatchGasLimit {
		return errors.New("dev vm block-tip-gas must be lower than batch-gas-limit")
	}
	return nil
}
