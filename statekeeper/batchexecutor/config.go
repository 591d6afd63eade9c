// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package batchexecutor

import (
	"errors"

	flag "github.com/spf13/pflag"
)

type Config struct {
	MaxAllowedL2TxGasLimit uint64 `koanf:"max-allowed-l2-tx-gas-limit" reload:"hot"`
	SaveCallTraces         bool   `koanf:"save-call-traces"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	MaxAllowedL2TxGasLimit: 4_000_000_000,
	SaveCallTraces:         false,
}

var TestConfig = Config{
	MaxAllowedL2TxGasLimit: 10_000_000,
	SaveCallTraces:         true,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Uint64(prefix+".max-allowed-l2-tx-gas-limit", DefaultConfig.MaxAllowedL2TxGasLimit, "L2 transactions with a higher gas limit are rejected")
	f.Bool(prefix+".save-call-traces", DefaultConfig.SaveCallTraces, "log the execution details of every transaction at trace level")
}

func (c *Config) Validate() error {
	if c.MaxAllowedL2TxGasLimit == 0 {
		return errors.New("max-allowed-l2-tx-gas-limit must be positive")
	}
	return nil
}
