// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package sequencer

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ZKAmoeba-Micro/micro-sub000/devvm"
	"github.com/ZKAmoeba-Micro/micro-sub000/mempool"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper/batchexecutor"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper/mempoolio"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper/sealcriteria"
	"github.com/ZKAmoeba-Micro/micro-sub000/storage"
)

// Node owns every component of a running sequencer. The database is owned by the caller.
type Node struct {
	config          ConfigFetcher
	Store           *storage.Store
	Mempool         *mempool.Mempool
	RedisFeeder     *mempool.RedisFeeder
	IO              *mempoolio.MempoolIO
	ExecutorBuilder *batchexecutor.MainBatchExecutorBuilder
	SealManager     *sealcriteria.SealManager
	StateKeeper     *statekeeper.StateKeeper
	started         bool
}

func CreateNode(config ConfigFetcher, db ethdb.Database, fatalErrChan chan error) (*Node, error) {
	if err := config().Validate(); err != nil {
		return nil, err
	}
	store, err := storage.NewStore(db)
	if err != nil {
		return nil, err
	}
	pool := mempool.NewMempool(func() *mempool.Config { return &config().Mempool })

	var feeder *mempool.RedisFeeder
	if config().Mempool.RedisFeeder.Enable {
		feeder, err = mempool.NewRedisFeeder(
			func() *mempool.RedisFeederConfig { return &config().Mempool.RedisFeeder },
			config().Mempool.MaxTxSize,
			pool,
		)
		if err != nil {
			return nil, err
		}
	}

	ioConfig := func() *mempoolio.Config { return &config().IO }
	io, err := mempoolio.NewMempoolIO(
		ioConfig,
		pool,
		store,
		mempoolio.NewFixedL1GasPriceProvider(ioConfig),
		config().Contracts.Hashes(),
	)
	if err != nil {
		return nil, err
	}

	builder := batchexecutor.NewMainBatchExecutorBuilder(
		func() *batchexecutor.Config { return &config().Executor },
		func(params *statekeeper.L1BatchParams) (batchexecutor.VM, error) {
			return devvm.NewVM(&config().DevVM, store, params.DerivedContext()), nil
		},
	)
	sealer := sealcriteria.NewSealManager(func() *sealcriteria.Config { return &config().StateKeeper.Seal })
	keeper := statekeeper.NewStateKeeper(
		io,
		builder,
		sealer,
		func() *statekeeper.Config { return &config().StateKeeper },
		fatalErrChan,
	)

	return &Node{
		config:          config,
		Store:           store,
		Mempool:         pool,
		RedisFeeder:     feeder,
		IO:              io,
		ExecutorBuilder: builder,
		SealManager:     sealer,
		StateKeeper:     keeper,
	}, nil
}

func (n *Node) Start(ctx context.Context) error {
	if n.started {
		return errors.New("sequencer node already started")
	}
	n.started = true
	n.ExecutorBuilder.Start(ctx)
	if n.RedisFeeder != nil {
		n.RedisFeeder.Start(ctx)
	}
	if n.config().StateKeeper.Enable {
		n.StateKeeper.Start(ctx)
	} else {
		log.Warn("state keeper disabled, transactions are only collected")
	}
	log.Info("sequencer started",
		"l1Batch", n.IO.CurrentL1BatchNumber(),
		"miniblock", n.IO.CurrentMiniblockNumber(),
		"contracts", n.config().Contracts.Hashes(),
	)
	return nil
}

func (n *Node) StopAndWait() {
	if !n.started {
		return
	}
	n.StateKeeper.StopAndWait()
	if n.RedisFeeder != nil {
		n.RedisFeeder.StopAndWait()
	}
	n.ExecutorBuilder.StopAndWait()
}
