// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package sealcriteria

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
)

// Config holds the limits the seal criteria enforce on batches and miniblocks.
type Config struct {
	TransactionSlots         int           `koanf:"transaction-slots"`
	BlockCommitDeadline      time.Duration `koanf:"block-commit-deadline"`
	MiniblockCommitDeadline  time.Duration `koanf:"miniblock-commit-deadline"`
	MiniblockMaxTransactions int           `koanf:"miniblock-max-transactions"`

	MaxSingleTxGas            uint64 `koanf:"max-single-tx-gas"`
	MaxPubdataPerBatch        uint64 `koanf:"max-pubdata-per-batch"`
	MaxInitialWritesPerBatch  uint64 `koanf:"max-initial-writes-per-batch"`
	MaxRepeatedWritesPerBatch uint64 `koanf:"max-repeated-writes-per-batch"`
	BootloaderTxEncodingSpace uint64 `koanf:"bootloader-tx-encoding-space"`

	RejectTxAtGeometryPercentage    float64 `koanf:"reject-tx-at-geometry-percentage"`
	RejectTxAtEthParamsPercentage   float64 `koanf:"reject-tx-at-eth-params-percentage"`
	RejectTxAtGasPercentage         float64 `koanf:"reject-tx-at-gas-percentage"`
	CloseBlockAtGeometryPercentage  float64 `koanf:"close-block-at-geometry-percentage"`
	CloseBlockAtEthParamsPercentage float64 `koanf:"close-block-at-eth-params-percentage"`
	CloseBlockAtGasPercentage       float64 `koanf:"close-block-at-gas-percentage"`

	BootloaderHash string `koanf:"bootloader-hash"`
	DefaultAAHash  string `koanf:"default-aa-hash"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	TransactionSlots:         250,
	BlockCommitDeadline:      time.Millisecond * 2500,
	MiniblockCommitDeadline:  time.Second,
	MiniblockMaxTransactions: 0,

	MaxSingleTxGas:            6_000_000,
	MaxPubdataPerBatch:        120_000,
	MaxInitialWritesPerBatch:  4765,
	MaxRepeatedWritesPerBatch: 7564,
	BootloaderTxEncodingSpace: 485_225,

	RejectTxAtGeometryPercentage:    0.95,
	RejectTxAtEthParamsPercentage:   0.95,
	RejectTxAtGasPercentage:         0.95,
	CloseBlockAtGeometryPercentage:  0.95,
	CloseBlockAtEthParamsPercentage: 0.95,
	CloseBlockAtGasPercentage:       0.95,
}

var TestConfig = Config{
	TransactionSlots:         50,
	BlockCommitDeadline:      time.Second * 5,
	MiniblockCommitDeadline:  time.Millisecond * 200,
	MiniblockMaxTransactions: 0,

	MaxSingleTxGas:            6_000_000,
	MaxPubdataPerBatch:        120_000,
	MaxInitialWritesPerBatch:  4765,
	MaxRepeatedWritesPerBatch: 7564,
	BootloaderTxEncodingSpace: 485_225,

	RejectTxAtGeometryPercentage:    0.95,
	RejectTxAtEthParamsPercentage:   0.95,
	RejectTxAtGasPercentage:         0.95,
	CloseBlockAtGeometryPercentage:  0.95,
	CloseBlockAtEthParamsPercentage: 0.95,
	CloseBlockAtGasPercentage:       0.95,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Int(prefix+".transaction-slots", DefaultConfig.TransactionSlots, "maximum number of transactions in a batch")
	f.Duration(prefix+".block-commit-deadline", DefaultConfig.BlockCommitDeadline, "maximum age of a non-empty batch before it is sealed")
	f.Duration(prefix+".miniblock-commit-deadline", DefaultConfig.MiniblockCommitDeadline, "maximum age of a non-empty miniblock before it is sealed")
	f.Int(prefix+".miniblock-max-transactions", DefaultConfig.MiniblockMaxTransactions, "maximum number of transactions in a miniblock (0 = unlimited)")
	f.Uint64(prefix+".max-single-tx-gas", DefaultConfig.MaxSingleTxGas, "L1 gas limit for committing, proving or executing a batch")
	f.Uint64(prefix+".max-pubdata-per-batch", DefaultConfig.MaxPubdataPerBatch, "maximum number of pubdata bytes a batch may publish")
	f.Uint64(prefix+".max-initial-writes-per-batch", DefaultConfig.MaxInitialWritesPerBatch, "maximum number of initial storage writes in a batch")
	f.Uint64(prefix+".max-repeated-writes-per-batch", DefaultConfig.MaxRepeatedWritesPerBatch, "maximum number of repeated storage writes in a batch")
	f.Uint64(prefix+".bootloader-tx-encoding-space", DefaultConfig.BootloaderTxEncodingSpace, "number of bootloader memory words available for transaction encodings")
	f.Float64(prefix+".reject-tx-at-geometry-percentage", DefaultConfig.RejectTxAtGeometryPercentage, "fraction of a geometry limit a single transaction may use before it is rejected")
	f.Float64(prefix+".reject-tx-at-eth-params-percentage", DefaultConfig.RejectTxAtEthParamsPercentage, "fraction of the pubdata limit a single transaction may use before it is rejected")
	f.Float64(prefix+".reject-tx-at-gas-percentage", DefaultConfig.RejectTxAtGasPercentage, "fraction of the L1 gas limit a single transaction may use before it is rejected")
	f.Float64(prefix+".close-block-at-geometry-percentage", DefaultConfig.CloseBlockAtGeometryPercentage, "fraction of a geometry limit at which the batch is sealed")
	f.Float64(prefix+".close-block-at-eth-params-percentage", DefaultConfig.CloseBlockAtEthParamsPercentage, "fraction of the pubdata limit at which the batch is sealed")
	f.Float64(prefix+".close-block-at-gas-percentage", DefaultConfig.CloseBlockAtGasPercentage, "fraction of the L1 gas limit at which the batch is sealed")
	f.String(prefix+".bootloader-hash", DefaultConfig.BootloaderHash, "expected bootloader code hash; a batch opened with another hash is sealed (empty = don't check)")
	f.String(prefix+".default-aa-hash", DefaultConfig.DefaultAAHash, "expected default account code hash; a batch opened with another hash is sealed (empty = don't check)")
}

func (c *Config) Validate() error {
	if c.TransactionSlots <= 0 {
		return fmt.Errorf("transaction-slots must be positive, got %d", c.TransactionSlots)
	}
	if c.MiniblockMaxTransactions < 0 {
		return fmt.Errorf("miniblock-max-transactions must not be negative, got %d", c.MiniblockMaxTransactions)
	}
	percentages := map[string]float64{
		"reject-tx-at-geometry-percentage":     c.RejectTxAtGeometryPercentage,
		"reject-tx-at-eth-params-percentage":   c.RejectTxAtEthParamsPercentage,
		"reject-tx-at-gas-percentage":          c.RejectTxAtGasPercentage,
		"close-block-at-geometry-percentage":   c.CloseBlockAtGeometryPercentage,
		"close-block-at-eth-params-percentage": c.CloseBlockAtEthParamsPercentage,
		"close-block-at-gas-percentage":        c.CloseBlockAtGasPercentage,
	}
	for name, value := range percentages {
		if value <= 0 || value > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, value)
		}
	}
	for name, hash := range map[string]string{"bootloader-hash": c.BootloaderHash, "default-aa-hash": c.DefaultAAHash} {
		if hash != "" && len(common.FromHex(hash)) != common.HashLength {
			return fmt.Errorf("%s \"%v\" is not a valid hash", name, hash)
		}
	}
	return nil
}

// ExpectedContracts returns the configured system contract hashes; a zero hash means unchecked.
func (c *Config) ExpectedContracts() (common.Hash, common.Hash) {
	var bootloader, defaultAA common.Hash
	if c.BootloaderHash != "" {
		bootloader = common.HexToHash(c.BootloaderHash)
	}
	if c.DefaultAAHash != "" {
		defaultAA = common.HexToHash(c.DefaultAAHash)
	}
	return bootloader, defaultAA
}
