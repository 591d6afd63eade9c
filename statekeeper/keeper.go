// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package statekeeper drives transaction execution for the sequencer: it pulls transactions,
// executes them in the open batch, and decides when miniblocks and batches get sealed.
package statekeeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/ZKAmoeba-Micro/micro-sub000/gastracker"
	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper/sealcriteria"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper/updates"
	"github.com/ZKAmoeba-Micro/micro-sub000/util/stopwaiter"
)

var (
	waitingForTxTimer        = metrics.NewRegisteredTimer("micro/statekeeper/waiting_for_tx", nil)
	txExecutionTimer         = metrics.NewRegisteredTimer("micro/statekeeper/tx/execution", nil)
	txIncludedCounter        = metrics.NewRegisteredCounter("micro/statekeeper/tx/included", nil)
	txRolledBackCounter      = metrics.NewRegisteredCounter("micro/statekeeper/tx/rolledback", nil)
	txRejectedCounter        = metrics.NewRegisteredCounter("micro/statekeeper/tx/rejected", nil)
	txReexecutedCounter      = metrics.NewRegisteredCounter("micro/statekeeper/tx/reexecuted", nil)
	miniblockSealedCounter   = metrics.NewRegisteredCounter("micro/statekeeper/miniblock/sealed", nil)
	l1BatchSealedCounter     = metrics.NewRegisteredCounter("micro/statekeeper/l1_batch/sealed", nil)
	l1BatchSealTimer         = metrics.NewRegisteredTimer("micro/statekeeper/l1_batch/seal", nil)
	l1BatchTxCountGauge      = metrics.NewRegisteredGauge("micro/statekeeper/l1_batch/txs", nil)
	pendingMiniblocksCounter = metrics.NewRegisteredCounter("micro/statekeeper/recovery/miniblocks", nil)
)

// ErrReexecutionMismatch means a transaction that was already persisted as part of the pending
// batch did not execute successfully again. Continuing would diverge from committed state.
var ErrReexecutionMismatch = errors.New("re-executed transaction of the pending batch did not succeed")

// errCanceled unwinds the state keeper once its context is done.
var errCanceled = errors.New("state keeper canceled")

type StateKeeper struct {
	stopwaiter.StopWaiter

	config          ConfigFetcher
	io              StateKeeperIO
	executorBuilder L1BatchExecutorBuilder
	sealer          *sealcriteria.SealManager
	fatalErrChan    chan<- error
}

func NewStateKeeper(
	io StateKeeperIO,
	executorBuilder L1BatchExecutorBuilder,
	sealer *sealcriteria.SealManager,
	config ConfigFetcher,
	fatalErrChan chan<- error,
) *StateKeeper {
	return &StateKeeper{
		config:          config,
		io:              io,
		executorBuilder: executorBuilder,
		sealer:          sealer,
		fatalErrChan:    fatalErrChan,
	}
}

func (k *StateKeeper) Start(ctxIn context.Context) {
	k.StopWaiter.Start(ctxIn, k)
	k.LaunchThread(func(ctx context.Context) {
		err := k.Run(ctx)
		if err == nil {
			return
		}
		log.Error("state keeper failed", "err", err)
		select {
		case k.fatalErrChan <- fmt.Errorf("state keeper: %w", err):
		default:
		}
	})
}

// Run blocks until ctx is done, in which case it returns nil, or until a fatal error occurs.
func (k *StateKeeper) Run(ctx context.Context) error {
	err := k.run(ctx)
	if errors.Is(err, errCanceled) || (ctx.Err() != nil && errors.Is(err, context.Canceled)) {
		log.Info("stop signal received, state keeper is shutting down")
		return nil
	}
	return err
}

func (k *StateKeeper) pollWaitDuration() time.Duration {
	return k.config().PollWaitDuration
}

func (k *StateKeeper) run(ctx context.Context) error {
	log.Info(
		"starting state keeper",
		"nextL1Batch", k.io.CurrentL1BatchNumber(),
		"nextMiniblock", k.io.CurrentMiniblockNumber(),
	)

	pending, err := k.io.LoadPendingBatch()
	if err != nil {
		return fmt.Errorf("loading pending batch: %w", err)
	}
	var params *L1BatchParams
	var txsToReexecute []MiniblockTxs
	if pending != nil {
		params = pending.Params
		txsToReexecute = pending.Txs
		var firstMiniblock rolluptypes.MiniblockNumber
		if len(txsToReexecute) > 0 {
			firstMiniblock = txsToReexecute[0].Number
		}
		log.Info(
			"there exists a pending batch",
			"l1Batch", params.Context.BlockNumber,
			"miniblocks", len(txsToReexecute),
			"firstMiniblock", firstMiniblock,
		)
	} else {
		log.Info("there is no open pending batch, starting a new empty batch")
		params, err = k.waitForNewBatchParams(ctx)
		if err != nil {
			return err
		}
	}

	updatesManager := updates.NewUpdatesManager(params.DerivedContext(), params.BaseSystemContracts)
	executor, err := k.executorBuilder.InitBatch(params)
	if err != nil {
		return fmt.Errorf("initializing batch executor: %w", err)
	}
	if err := k.restoreState(ctx, executor, updatesManager, txsToReexecute); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return errCanceled
		}
		if err := k.processL1Batch(ctx, executor, updatesManager); err != nil {
			return err
		}

		sealStart := time.Now()
		if len(updatesManager.Miniblock().ExecutedTransactions) > 0 {
			if err := k.sealMiniblock(ctx, updatesManager); err != nil {
				return err
			}
		}
		blockResult, err := executor.FinishBatch()
		if err != nil {
			return fmt.Errorf("finishing batch %v: %w", params.Context.BlockNumber, err)
		}
		if err := k.io.SealL1Batch(blockResult, updatesManager, params.DerivedContext()); err != nil {
			return fmt.Errorf("sealing batch %v: %w", params.Context.BlockNumber, err)
		}
		l1BatchSealTimer.UpdateSince(sealStart)
		l1BatchSealedCounter.Inc(1)
		l1BatchTxCountGauge.Update(int64(updatesManager.PendingExecutedTransactionsLen()))
		log.Info(
			"sealed l1 batch",
			"l1Batch", params.Context.BlockNumber,
			"txs", updatesManager.PendingExecutedTransactionsLen(),
			"miniblocks", len(updatesManager.SealedMiniblocks())+1,
			"l1Gas", updatesManager.PendingL1GasCount(),
		)

		params, err = k.waitForNewBatchParams(ctx)
		if err != nil {
			return err
		}
		updatesManager = updates.NewUpdatesManager(params.DerivedContext(), params.BaseSystemContracts)
		executor, err = k.executorBuilder.InitBatch(params)
		if err != nil {
			return fmt.Errorf("initializing batch executor: %w", err)
		}
	}
}

func (k *StateKeeper) waitForNewBatchParams(ctx context.Context) (*L1BatchParams, error) {
	for {
		params, err := k.io.WaitForNewBatchParams(ctx, k.pollWaitDuration())
		if err != nil {
			return nil, fmt.Errorf("waiting for new batch params: %w", err)
		}
		if params != nil {
			return params, nil
		}
		if ctx.Err() != nil {
			return nil, errCanceled
		}
	}
}

func (k *StateKeeper) waitForNewMiniblockParams(ctx context.Context) (uint64, error) {
	for {
		timestamp, ok := k.io.WaitForNewMiniblockParams(ctx, k.pollWaitDuration())
		if ok {
			return timestamp, nil
		}
		if ctx.Err() != nil {
			return 0, errCanceled
		}
	}
}

func (k *StateKeeper) sealMiniblock(ctx context.Context, updatesManager *updates.UpdatesManager) error {
	if err := k.io.SealMiniblock(updatesManager); err != nil {
		return fmt.Errorf("sealing miniblock: %w", err)
	}
	miniblockSealedCounter.Inc(1)
	timestamp, err := k.waitForNewMiniblockParams(ctx)
	if err != nil {
		return err
	}
	updatesManager.SealMiniblock(timestamp)
	return nil
}

// restoreState re-executes the miniblocks of the pending batch. Every one of them was executed
// successfully before the restart, so anything but success is fatal.
func (k *StateKeeper) restoreState(
	ctx context.Context,
	executor BatchExecutor,
	updatesManager *updates.UpdatesManager,
	txsToReexecute []MiniblockTxs,
) error {
	for idx, miniblock := range txsToReexecute {
		log.Info("re-executing transactions from sealed miniblock", "miniblock", miniblock.Number, "txs", len(miniblock.Txs))
		for _, tx := range miniblock.Txs {
			result, err := executor.ExecuteTx(tx)
			if err != nil {
				return fmt.Errorf("re-executing tx %v: %w", tx.Hash, err)
			}
			if result.Kind != TxSuccess {
				return fmt.Errorf("%w: tx %v in miniblock %v: %v %v", ErrReexecutionMismatch, tx.Hash, miniblock.Number, result.Kind, result.RejectionReason)
			}
			updatesManager.ExtendFromExecutedTransaction(
				tx,
				result.TxResult,
				result.CompressedBytecodes,
				result.TxMetrics.L1Gas,
				result.TxMetrics.ExecutionMetrics,
			)
			txReexecutedCounter.Inc(1)
			log.Debug(
				"finished re-executing tx",
				"hash", tx.Hash,
				"initiator", tx.Initiator,
				"isL1", tx.IsL1,
				"indexInBatch", updatesManager.PendingExecutedTransactionsLen(),
				"l1Batch", k.io.CurrentL1BatchNumber(),
				"indexInMiniblock", len(updatesManager.Miniblock().ExecutedTransactions),
				"miniblock", miniblock.Number,
				"status", result.TxResult.Status,
				"l1Gas", result.TxMetrics.L1Gas,
				"l1BatchGas", updatesManager.PendingL1GasCount(),
			)
		}
		pendingMiniblocksCounter.Inc(1)

		if idx == len(txsToReexecute)-1 {
			// the miniblock opened now is a real one and needs a real timestamp
			timestamp, err := k.waitForNewMiniblockParams(ctx)
			if err != nil {
				return err
			}
			updatesManager.SealMiniblock(timestamp)
		} else {
			// already persisted; an obviously wrong timestamp makes accidental use easy to spot
			updatesManager.SealMiniblock(0)
		}
	}
	return nil
}

func (k *StateKeeper) processL1Batch(ctx context.Context, executor BatchExecutor, updatesManager *updates.UpdatesManager) error {
	for {
		if ctx.Err() != nil {
			return errCanceled
		}
		if k.sealer.ShouldSealL1BatchUnconditionally(updatesManager) {
			log.Debug("l1 batch should be sealed unconditionally", "l1Batch", updatesManager.L1BatchNumber())
			return nil
		}
		if k.sealer.ShouldSealMiniblock(updatesManager) {
			if err := k.sealMiniblock(ctx, updatesManager); err != nil {
				return err
			}
		}

		waitStart := time.Now()
		tx := k.io.WaitForNextTx(ctx, k.pollWaitDuration())
		waitingForTxTimer.UpdateSince(waitStart)
		if tx == nil {
			log.Trace("no new transactions, waiting")
			continue
		}

		resolution, result, err := k.processOneTx(executor, updatesManager, tx)
		if err != nil {
			return err
		}
		switch resolution.Kind {
		case sealcriteria.KindNoSeal, sealcriteria.KindIncludeAndSeal:
			if result.Kind != TxSuccess {
				return fmt.Errorf("tx %v included with non-successful execution result %v", tx.Hash, result.Kind)
			}
			updatesManager.ExtendFromExecutedTransaction(
				tx,
				result.TxResult,
				result.CompressedBytecodes,
				result.TxMetrics.L1Gas,
				result.TxMetrics.ExecutionMetrics,
			)
			txIncludedCounter.Inc(1)
		case sealcriteria.KindExcludeAndSeal:
			if err := executor.RollbackLastTx(); err != nil {
				return fmt.Errorf("rolling back tx %v: %w", tx.Hash, err)
			}
			k.io.Rollback(tx)
			txRolledBackCounter.Inc(1)
		case sealcriteria.KindUnexecutable:
			if err := executor.RollbackLastTx(); err != nil {
				return fmt.Errorf("rolling back tx %v: %w", tx.Hash, err)
			}
			if err := k.io.Reject(tx, resolution.Reason); err != nil {
				return fmt.Errorf("rejecting tx %v: %w", tx.Hash, err)
			}
			txRejectedCounter.Inc(1)
			log.Info("rejected unexecutable transaction", "hash", tx.Hash, "reason", resolution.Reason)
		}

		if resolution.ShouldSeal() {
			return nil
		}
	}
}

// processOneTx executes tx and decides whether the batch has to be sealed. It leaves
// updatesManager untouched; the caller applies the resolution.
func (k *StateKeeper) processOneTx(
	executor BatchExecutor,
	updatesManager *updates.UpdatesManager,
	tx *rolluptypes.Transaction,
) (sealcriteria.SealResolution, *TxExecutionResult, error) {
	executionStart := time.Now()
	result, err := executor.ExecuteTx(tx)
	txExecutionTimer.UpdateSince(executionStart)
	if err != nil {
		return sealcriteria.SealResolution{}, nil, fmt.Errorf("executing tx %v: %w", tx.Hash, err)
	}

	switch result.Kind {
	case TxBootloaderOutOfGasForTx, TxBootloaderOutOfGasForBlockTip:
		recordExclusion(result.Kind.String())
		return sealcriteria.ExcludeAndSeal, result, nil
	case TxRejectedByVm:
		if result.RejectionReason.Kind == rolluptypes.RevertNotEnoughGasProvided {
			recordExclusion("not_enough_gas_provided_to_start_tx")
			return sealcriteria.ExcludeAndSeal, result, nil
		}
		return sealcriteria.Unexecutable(result.RejectionReason.String()), result, nil
	}

	txL1Gas := result.TxMetrics.L1Gas
	txExecutionMetrics := result.TxMetrics.ExecutionMetrics
	finishBlockL1Gas := result.BootloaderDryRunMetrics.L1Gas
	finishBlockExecutionMetrics := result.BootloaderDryRunMetrics.ExecutionMetrics

	log.Trace(
		"finished tx",
		"hash", tx.Hash,
		"initiator", tx.Initiator,
		"isL1", tx.IsL1,
		"indexInBatch", updatesManager.PendingExecutedTransactionsLen()+1,
		"l1Batch", k.io.CurrentL1BatchNumber(),
		"indexInMiniblock", len(updatesManager.Miniblock().ExecutedTransactions)+1,
		"miniblock", k.io.CurrentMiniblockNumber(),
		"status", result.TxResult.Status,
		"l1Gas", txL1Gas,
		"l1BatchGas", updatesManager.PendingL1GasCount().Add(txL1Gas),
	)

	logsToApply := make([]rolluptypes.StorageLog, 0, len(result.TxResult.Logs.StorageLogs))
	logsToApply = append(logsToApply, result.TxResult.Logs.StorageLogs...)
	if result.BootloaderDryRunResult != nil {
		logsToApply = append(logsToApply, result.BootloaderDryRunResult.Logs.StorageLogs...)
	}
	blockWritesMetrics := updatesManager.StorageWritesDeduplicator().ApplyAndRollback(logsToApply)
	blockWritesL1Gas := gastracker.GasCountFromWrites(&blockWritesMetrics)
	txWritesMetrics := rolluptypes.ApplyOnEmptyState(logsToApply)
	txWritesL1Gas := gastracker.GasCountFromWrites(&txWritesMetrics)

	encodingLen := tx.EncodingLen()
	block := &sealcriteria.SealData{
		ExecutionMetrics: updatesManager.PendingExecutionMetrics().Add(txExecutionMetrics).Add(finishBlockExecutionMetrics),
		GasCount:         updatesManager.PendingL1GasCount().Add(txL1Gas).Add(finishBlockL1Gas).Add(blockWritesL1Gas),
		CumulativeSize:   updatesManager.PendingTxsEncodingSize() + encodingLen,
		WritesMetrics:    blockWritesMetrics,
	}
	txData := &sealcriteria.SealData{
		ExecutionMetrics: txExecutionMetrics.Add(finishBlockExecutionMetrics),
		GasCount:         txL1Gas.Add(finishBlockL1Gas).Add(txWritesL1Gas),
		CumulativeSize:   encodingLen,
		WritesMetrics:    txWritesMetrics,
	}
	resolution := k.sealer.ShouldSealL1Batch(
		k.io.CurrentL1BatchNumber(),
		updatesManager.BatchTimestamp()*1000,
		updatesManager.PendingExecutedTransactionsLen()+1,
		block,
		txData,
	)
	return resolution, result, nil
}

func recordExclusion(criterion string) {
	metrics.GetOrRegisterCounter("micro/statekeeper/tx_aggregation/"+criterion+"/"+sealcriteria.ExcludeAndSeal.Name(), nil).Inc(1)
}
