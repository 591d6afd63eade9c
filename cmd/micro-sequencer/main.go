// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"

	"github.com/ZKAmoeba-Micro/micro-sub000/cmd/genericconf"
	"github.com/ZKAmoeba-Micro/micro-sub000/cmd/util/confighelpers"
	"github.com/ZKAmoeba-Micro/micro-sub000/sequencer"
	"github.com/ZKAmoeba-Micro/micro-sub000/storage"
)

func printSampleUsage(name string) {
	fmt.Printf("Sample usage: %s --node.db.data <dir> --node.mempool.redis-feeder.enable --node.mempool.redis-feeder.url redis://127.0.0.1:6379\n", name)
}

func main() {
	os.Exit(mainImpl())
}

// Checks metrics and PProf flag, runs them if enabled.
func startMetrics(config *SequencerConfig) error {
	mAddr := fmt.Sprintf("%v:%v", config.MetricsServer.Addr, config.MetricsServer.Port)
	pAddr := fmt.Sprintf("%v:%v", config.PprofCfg.Addr, config.PprofCfg.Port)
	if config.Metrics && !metrics.Enabled {
		return fmt.Errorf("metrics must be enabled via command line by adding --metrics, json config has no effect")
	}
	if config.Metrics {
		go metrics.CollectProcessMetrics(config.MetricsServer.UpdateInterval)
		exp.Setup(mAddr)
	}
	if config.PProf {
		genericconf.StartPprof(pAddr)
	}
	return nil
}

// Returns the exit code
func mainImpl() int {
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	args := os.Args[1:]
	config, err := ParseSequencer(ctx, args)
	if err != nil {
		if errors.Is(err, confighelpers.ErrVersion) {
			fmt.Println("micro-sequencer")
			return 0
		}
		confighelpers.PrintErrorAndExit(err, printSampleUsage)
	}
	pathResolver := genericconf.DefaultPathResolver("")
	if err := genericconf.InitLog(config.LogType, config.LogLevel, &config.FileLogging, pathResolver); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		return 1
	}
	defer func() {
		if err := genericconf.CloseFileLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing log file: %v\n", err)
		}
	}()

	liveConfig := genericconf.NewLiveConfig[*SequencerConfig](args, config, ParseSequencer)
	liveConfig.SetOnReloadHook(func(oldCfg *SequencerConfig, newCfg *SequencerConfig) error {
		if oldCfg.LogType == newCfg.LogType && oldCfg.LogLevel == newCfg.LogLevel && oldCfg.FileLogging == newCfg.FileLogging {
			return nil
		}
		return genericconf.InitLog(newCfg.LogType, newCfg.LogLevel, &newCfg.FileLogging, pathResolver)
	})

	if err := startMetrics(config); err != nil {
		log.Error("Error starting metrics", "err", err)
		return 1
	}

	dbConfig := config.Node.DB
	if dbConfig.Data != "" {
		dbConfig.Data = pathResolver(dbConfig.Data)
	}
	db, err := storage.OpenDatabase(&dbConfig, false)
	if err != nil {
		log.Error("Error opening database", "err", err, "dir", dbConfig.Data)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", "err", err)
		}
	}()
	if dbConfig.Data == "" {
		log.Warn("no data directory configured, sequencer state is kept in memory")
	}

	fatalErrChan := make(chan error, 10)
	node, err := sequencer.CreateNode(func() *sequencer.Config { return &liveConfig.Get().Node }, db, fatalErrChan)
	if err != nil {
		log.Error("Error creating sequencer", "err", err)
		return 1
	}
	liveConfig.Start(ctx)
	defer liveConfig.StopAndWait()
	if err := node.Start(ctx); err != nil {
		log.Error("Error starting sequencer", "err", err)
		return 1
	}

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-fatalErrChan:
		log.Error("shutting down due to fatal error", "err", err)
		exitCode = 1
	case <-sigint:
		log.Info("shutting down because of sigint")
	}

	// cause future ctrl+c's to panic
	close(sigint)

	node.StopAndWait()
	return exitCode
}
