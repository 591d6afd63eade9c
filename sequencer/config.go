// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package sequencer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"

	"github.com/ZKAmoeba-Micro/micro-sub000/devvm"
	"github.com/ZKAmoeba-Micro/micro-sub000/mempool"
	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper/batchexecutor"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper/mempoolio"
	"github.com/ZKAmoeba-Micro/micro-sub000/storage"
)

// ContractsConfig names the system contracts new batches are opened with.
type ContractsConfig struct {
	BootloaderHash string `koanf:"bootloader-hash"`
	DefaultAAHash  string `koanf:"default-aa-hash"`
}

var DefaultContractsConfig = ContractsConfig{
	BootloaderHash: "0x0100038581be3d0e201b3cc45d151ef5cc59eb3a0f146ad44f0f72abf00b594c",
	DefaultAAHash:  "0x0100038dc66b69be75ec31653c64cb931678299b9b659472772b2550b703f41c",
}

func ContractsConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".bootloader-hash", DefaultContractsConfig.BootloaderHash, "code hash of the bootloader new batches run")
	f.String(prefix+".default-aa-hash", DefaultContractsConfig.DefaultAAHash, "code hash of the default account new batches run")
}

func (c *ContractsConfig) Validate() error {
	for name, hash := range map[string]string{"bootloader-hash": c.BootloaderHash, "default-aa-hash": c.DefaultAAHash} {
		if len(common.FromHex(hash)) != common.HashLength {
			return fmt.Errorf("contracts %s \"%v\" is not a valid hash", name, hash)
		}
	}
	return nil
}

func (c *ContractsConfig) Hashes() rolluptypes.BaseSystemContractsHashes {
	return rolluptypes.BaseSystemContractsHashes{
		Bootloader: common.HexToHash(c.BootloaderHash),
		DefaultAA:  common.HexToHash(c.DefaultAAHash),
	}
}

type Config struct {
	DB          storage.DBConfig     `koanf:"db"`
	Mempool     mempool.Config       `koanf:"mempool"`
	StateKeeper statekeeper.Config   `koanf:"state-keeper" reload:"hot"`
	Executor    batchexecutor.Config `koanf:"executor"`
	IO          mempoolio.Config     `koanf:"io"`
	DevVM       devvm.Config         `koanf:"dev-vm"`
	Contracts   ContractsConfig      `koanf:"contracts"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	DB:          storage.DBConfigDefault,
	Mempool:     mempool.DefaultConfig,
	StateKeeper: statekeeper.DefaultConfig,
	Executor:    batchexecutor.DefaultConfig,
	IO:          mempoolio.DefaultConfig,
	DevVM:       devvm.DefaultConfig,
	Contracts:   DefaultContractsConfig,
}

func ConfigDefaultTest() *Config {
	config := DefaultConfig
	config.Mempool = mempool.TestConfig
	config.StateKeeper = statekeeper.TestConfig
	config.Executor = batchexecutor.TestConfig
	config.IO = mempoolio.TestConfig
	return &config
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	storage.DBConfigAddOptions(prefix+".db", f)
	mempool.ConfigAddOptions(prefix+".mempool", f)
	statekeeper.ConfigAddOptions(prefix+".state-keeper", f)
	batchexecutor.ConfigAddOptions(prefix+".executor", f)
	mempoolio.ConfigAddOptions(prefix+".io", f)
	devvm.ConfigAddOptions(prefix+".dev-vm", f)
	ContractsConfigAddOptions(prefix+".contracts", f)
}

func (c *Config) Validate() error {
	if err := c.DB.Validate(); err != nil {
		return err
	}
	if err := c.Mempool.Validate(); err != nil {
		return err
	}
	if err := c.StateKeeper.Validate(); err != nil {
		return err
	}
	if err := c.Executor.Validate(); err != nil {
		return err
	}
	if err := c.IO.Validate(); err != nil {
		return err
	}
	if err := c.DevVM.Validate(); err != nil {
		return err
	}
	if err := c.Contracts.Validate(); err != nil {
		return err
	}
	// new batches would be sealed right after opening
	hashes := c.Contracts.Hashes()
	bootloader, defaultAA := c.StateKeeper.Seal.ExpectedContracts()
	if (bootloader != common.Hash{} && bootloader != hashes.Bootloader) || (defaultAA != common.Hash{} && defaultAA != hashes.DefaultAA) {
		return fmt.Errorf("expected system contracts of state-keeper.seal differ from the contracts new batches are opened with (%v)", hashes)
	}
	return nil
}
