// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZKAmoeba-Micro/micro-sub000/util/testhelpers"
)

func TestParseDefaults(t *testing.T) {
	config, err := ParseSequencer(context.Background(), nil)
	testhelpers.RequireImpl(t, err)
	require.Equal(t, SequencerConfigDefault.Node.StateKeeper, config.Node.StateKeeper)
	require.Equal(t, SequencerConfigDefault.Node.Contracts, config.Node.Contracts)
	require.Equal(t, "plaintext", config.LogType)
}

func TestParseArgs(t *testing.T) {
	args := strings.Split("--log-level DEBUG --node.state-keeper.seal.transaction-slots 10 --node.io.chain-id 9 --node.db.data seqdata", " ")
	config, err := ParseSequencer(context.Background(), args)
	testhelpers.RequireImpl(t, err)
	require.Equal(t, "DEBUG", config.LogLevel)
	require.Equal(t, 10, config.Node.StateKeeper.Seal.TransactionSlots)
	require.Equal(t, uint64(9), config.Node.IO.ChainID)
	require.Equal(t, "seqdata", config.Node.DB.Data)
}

func TestParseConfigFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.json")
	contents := `{"node":{"state-keeper":{"seal":{"transaction-slots":7,"block-commit-deadline":"3s"}},"io":{"l1-gas-price":5}}}`
	testhelpers.RequireImpl(t, os.WriteFile(configFile, []byte(contents), 0600))

	args := []string{"--conf.file", configFile, "--node.io.l1-gas-price", "6"}
	config, err := ParseSequencer(context.Background(), args)
	testhelpers.RequireImpl(t, err)
	require.Equal(t, 7, config.Node.StateKeeper.Seal.TransactionSlots)
	require.Equal(t, 3*time.Second, config.Node.StateKeeper.Seal.BlockCommitDeadline)
	// command line wins over the file
	require.Equal(t, uint64(6), config.Node.IO.L1GasPrice)
}

func TestParseEnvironment(t *testing.T) {
	t.Setenv("MICROSEQ_NODE_DEV__VM_BLOCK__TIP__GAS", "12345")
	t.Setenv("MICROSEQ_NODE_IO_CHAIN__ID", "42")
	args := []string{"--conf.env-prefix", "MICROSEQ", "--node.io.chain-id", "43"}
	config, err := ParseSequencer(context.Background(), args)
	testhelpers.RequireImpl(t, err)
	require.Equal(t, uint64(12345), config.Node.DevVM.BlockTipGas)
	require.Equal(t, uint64(43), config.Node.IO.ChainID)
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	_, err := ParseSequencer(context.Background(), []string{"--node.state-keeper.seal.transaction-slots", "0"})
	require.Error(t, err)
	_, err = ParseSequencer(context.Background(), []string{"--log-type", "xml"})
	require.Error(t, err)
	_, err = ParseSequencer(context.Background(), []string{"--conf.string", `{"node":{"unknown-option":1}}`})
	require.Error(t, err)
	_, err = ParseSequencer(context.Background(), []string{"stray"})
	require.Error(t, err)
}

func TestCanReload(t *testing.T) {
	config, err := ParseSequencer(context.Background(), nil)
	testhelpers.RequireImpl(t, err)

	hot, err := ParseSequencer(context.Background(), []string{
		"--log-level", "WARN",
		"--node.io.l1-gas-price", "77",
		"--node.state-keeper.seal.transaction-slots", "3",
		"--node.executor.max-allowed-l2-tx-gas-limit", "1000",
	})
	testhelpers.RequireImpl(t, err)
	require.NoError(t, config.CanReload(hot))

	cold, err := ParseSequencer(context.Background(), []string{"--node.io.chain-id", "1"})
	testhelpers.RequireImpl(t, err)
	require.Error(t, config.CanReload(cold))

	cold, err = ParseSequencer(context.Background(), []string{"--node.db.cache", "1"})
	testhelpers.RequireImpl(t, err)
	require.Error(t, config.CanReload(cold))
}
