// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package mempoolio

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
)

type Config struct {
	FeeAccount     string `koanf:"fee-account"`
	ChainID        uint64 `koanf:"chain-id"`
	FairL2GasPrice uint64 `koanf:"fair-l2-gas-price" reload:"hot"`
	L1GasPrice     uint64 `koanf:"l1-gas-price" reload:"hot"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	FeeAccount:     "0x0000000000000000000000000000000000000000",
	ChainID:        270,
	FairL2GasPrice: 250_000_000,
	L1GasPrice:     1_000_000_000,
}

var TestConfig = Config{
	FeeAccount:     "0x00000000000000000000000000000000000000fe",
	ChainID:        270,
	FairL2GasPrice: 250,
	L1GasPrice:     1_000,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".fee-account", DefaultConfig.FeeAccount, "account credited with transaction fees")
	f.Uint64(prefix+".chain-id", DefaultConfig.ChainID, "L2 chain id")
	f.Uint64(prefix+".fair-l2-gas-price", DefaultConfig.FairL2GasPrice, "price of L2 computation in wei per gas")
	f.Uint64(prefix+".l1-gas-price", DefaultConfig.L1GasPrice, "L1 gas price used for new batches, in wei")
}

func (c *Config) Validate() error {
	if !common.IsHexAddress(c.FeeAccount) {
		return fmt.Errorf("invalid fee-account %q", c.FeeAccount)
	}
	if c.FairL2GasPrice == 0 {
		return errors.New("fair-l2-gas-price must be positive")
	}
	return nil
}

func (c *Config) FeeAccountAddress() common.Address {
	return common.HexToAddress(c.FeeAccount)
}
