// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package batchexecutor runs the VM of each batch on its own goroutine and lets the
// state keeper drive it through a handle.
package batchexecutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/ZKAmoeba-Micro/micro-sub000/gastracker"
	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper"
	"github.com/ZKAmoeba-Micro/micro-sub000/util/stopwaiter"
)

var (
	batchesStartedCounter = metrics.NewRegisteredCounter("micro/batchexecutor/batches/started", nil)
	executeTxTimer        = metrics.NewRegisteredTimer("micro/batchexecutor/execute_tx", nil)
	dryRunTimer           = metrics.NewRegisteredTimer("micro/batchexecutor/dry_run_block_tip", nil)
	finishBatchTimer      = metrics.NewRegisteredTimer("micro/batchexecutor/finish_batch", nil)
)

// VM executes the transactions of a single batch. It is used from one goroutine only.
type VM interface {
	ExecuteNextTx(tx *rolluptypes.Transaction) (*rolluptypes.VmTxExecutionResult, *rolluptypes.TxRevertReason)
	HasEnoughGasForBlockTip() bool
	ExecuteBlockTip() *rolluptypes.VmTxExecutionResult
	MakeSnapshot()
	RollbackToLatestSnapshot()
	PopSnapshotNoRollback()
	Finish() *rolluptypes.VmBlockResult
}

// VMFactory opens the VM for a new batch on top of the latest committed state.
type VMFactory func(params *statekeeper.L1BatchParams) (VM, error)

type MainBatchExecutorBuilder struct {
	stopwaiter.StopWaiter

	config    ConfigFetcher
	vmFactory VMFactory
}

func NewMainBatchExecutorBuilder(config ConfigFetcher, vmFactory VMFactory) *MainBatchExecutorBuilder {
	return &MainBatchExecutorBuilder{
		config:    config,
		vmFactory: vmFactory,
	}
}

func (b *MainBatchExecutorBuilder) Start(ctxIn context.Context) {
	b.StopWaiter.Start(ctxIn, b)
}

// InitBatch starts the executor goroutine of a batch. It lives until FinishBatch
// or until the builder is stopped.
func (b *MainBatchExecutorBuilder) InitBatch(params *statekeeper.L1BatchParams) (statekeeper.BatchExecutor, error) {
	vm, err := b.vmFactory(params)
	if err != nil {
		return nil, fmt.Errorf("opening vm for l1 batch %v: %w", params.Context.BlockNumber, err)
	}
	executor := &batchExecutor{
		config:  b.config(),
		vm:      vm,
		l1Batch: params.Context.BlockNumber,
	}
	handle := &BatchExecutorHandle{
		ctx:      b.GetContext(),
		commands: make(chan command),
		done:     make(chan struct{}),
	}
	b.LaunchThread(func(ctx context.Context) {
		defer close(handle.done)
		executor.run(ctx, handle.commands)
	})
	batchesStartedCounter.Inc(1)
	log.Info("initialized batch executor", "l1Batch", params.Context.BlockNumber)
	return handle, nil
}

type commandKind uint8

const (
	commandExecuteTx commandKind = iota
	commandRollbackLastTx
	commandFinishBatch
)

type response struct {
	txResult    *statekeeper.TxExecutionResult
	blockResult *rolluptypes.VmBlockResult
	err         error
}

type command struct {
	kind     commandKind
	tx       *rolluptypes.Transaction
	response chan response
}

// BatchExecutorHandle sends commands to the executor goroutine of one batch.
type BatchExecutorHandle struct {
	ctx      context.Context
	commands chan command
	done     chan struct{}
	finished bool
}

func (h *BatchExecutorHandle) send(kind commandKind, tx *rolluptypes.Transaction) (response, error) {
	if h.finished {
		return response{}, statekeeper.ErrBatchFinished
	}
	cmd := command{kind: kind, tx: tx, response: make(chan response, 1)}
	select {
	case h.commands <- cmd:
	case <-h.done:
		return response{}, statekeeper.ErrBatchFinished
	case <-h.ctx.Done():
		return response{}, h.ctx.Err()
	}
	select {
	case resp := <-cmd.response:
		return resp, resp.err
	case <-h.done:
		return response{}, statekeeper.ErrBatchFinished
	}
}

func (h *BatchExecutorHandle) ExecuteTx(tx *rolluptypes.Transaction) (*statekeeper.TxExecutionResult, error) {
	resp, err := h.send(commandExecuteTx, tx)
	if err != nil {
		return nil, err
	}
	return resp.txResult, nil
}

func (h *BatchExecutorHandle) RollbackLastTx() error {
	_, err := h.send(commandRollbackLastTx, nil)
	return err
}

func (h *BatchExecutorHandle) FinishBatch() (*rolluptypes.VmBlockResult, error) {
	resp, err := h.send(commandFinishBatch, nil)
	if err != nil {
		return nil, err
	}
	h.finished = true
	<-h.done
	return resp.blockResult, nil
}

type batchExecutor struct {
	config  *Config
	vm      VM
	l1Batch rolluptypes.L1BatchNumber
	// set while the snapshot taken before the last executed transaction is still on the stack
	hasTxSnapshot bool
	// transactions kept in the batch, counting the last one until it is rolled back
	executedTxs    int
	lastTxExecuted bool
}

func (e *batchExecutor) run(ctx context.Context, commands <-chan command) {
	for {
		var cmd command
		select {
		case cmd = <-commands:
		case <-ctx.Done():
			log.Info("batch executor stopped before the batch was finished", "l1Batch", e.l1Batch)
			return
		}
		switch cmd.kind {
		case commandExecuteTx:
			cmd.response <- response{txResult: e.executeTx(cmd.tx)}
		case commandRollbackLastTx:
			cmd.response <- response{err: e.rollbackLastTx()}
		case commandFinishBatch:
			cmd.response <- response{blockResult: e.finishBatch()}
			return
		default:
			cmd.response <- response{err: errors.New("unknown batch executor command")}
		}
	}
}

func (e *batchExecutor) executeTx(tx *rolluptypes.Transaction) *statekeeper.TxExecutionResult {
	defer executeTxTimer.UpdateSince(time.Now())
	if e.hasTxSnapshot {
		e.vm.PopSnapshotNoRollback()
	}
	// taken before every transaction so that RollbackLastTx can undo it whatever the outcome
	e.vm.MakeSnapshot()
	e.hasTxSnapshot = true
	e.lastTxExecuted = false

	if !tx.IsL1 && tx.GasLimit > e.config.MaxAllowedL2TxGasLimit {
		return &statekeeper.TxExecutionResult{
			Kind:            statekeeper.TxRejectedByVm,
			RejectionReason: rolluptypes.TxRevertReason{Kind: rolluptypes.RevertTooBigGasLimit},
		}
	}

	txResult, revert := e.vm.ExecuteNextTx(tx)
	if revert != nil {
		if revert.Kind == rolluptypes.RevertBootloaderOutOfGas {
			return e.outOfGas(tx, statekeeper.TxBootloaderOutOfGasForTx)
		}
		return &statekeeper.TxExecutionResult{
			Kind:            statekeeper.TxRejectedByVm,
			RejectionReason: *revert,
		}
	}
	if !e.vm.HasEnoughGasForBlockTip() {
		return e.outOfGas(tx, statekeeper.TxBootloaderOutOfGasForBlockTip)
	}
	dryRunResult := e.dryRunBlockTip()
	e.executedTxs++
	e.lastTxExecuted = true

	if e.config.SaveCallTraces {
		log.Trace(
			"executed transaction",
			"l1Batch", e.l1Batch,
			"tx", tx,
			"status", txResult.Status,
			"gasUsed", txResult.GasUsed,
			"gasRefunded", txResult.GasRefunded,
			"revert", txResult.RevertMessage,
			"storageLogs", len(txResult.Logs.StorageLogs),
			"events", len(txResult.Logs.Events),
		)
	}

	return &statekeeper.TxExecutionResult{
		Kind:                    statekeeper.TxSuccess,
		TxResult:                txResult,
		TxMetrics:               gastracker.MetricsForCriteria(tx, txResult.Metrics),
		CompressedBytecodes:     compressBytecodes(tx),
		BootloaderDryRunMetrics: gastracker.MetricsForCriteria(nil, dryRunResult.Metrics),
		BootloaderDryRunResult:  dryRunResult,
	}
}

// dryRunBlockTip executes the block tip on top of the current state and rolls it back.
func (e *batchExecutor) dryRunBlockTip() *rolluptypes.VmTxExecutionResult {
	defer dryRunTimer.UpdateSince(time.Now())
	e.vm.MakeSnapshot()
	result := e.vm.ExecuteBlockTip()
	e.vm.RollbackToLatestSnapshot()
	return result
}

// outOfGas reports a transaction the bootloader could not fit. The next batch can only take
// it if this one already holds other transactions.
func (e *batchExecutor) outOfGas(tx *rolluptypes.Transaction, kind statekeeper.TxExecutionResultKind) *statekeeper.TxExecutionResult {
	if e.executedTxs > 0 {
		return &statekeeper.TxExecutionResult{Kind: kind}
	}
	log.Warn("transaction does not fit into an empty batch", "l1Batch", e.l1Batch, "tx", tx, "result", kind)
	return &statekeeper.TxExecutionResult{
		Kind: statekeeper.TxRejectedByVm,
		RejectionReason: rolluptypes.TxRevertReason{
			Kind:    rolluptypes.RevertTooBigGasLimit,
			Message: "does not fit into an empty batch",
		},
	}
}

func (e *batchExecutor) rollbackLastTx() error {
	if !e.hasTxSnapshot {
		return statekeeper.ErrNothingToRollback
	}
	e.vm.RollbackToLatestSnapshot()
	e.hasTxSnapshot = false
	if e.lastTxExecuted {
		e.executedTxs--
		e.lastTxExecuted = false
	}
	return nil
}

func (e *batchExecutor) finishBatch() *rolluptypes.VmBlockResult {
	defer finishBatchTimer.UpdateSince(time.Now())
	if e.hasTxSnapshot {
		e.vm.PopSnapshotNoRollback()
		e.hasTxSnapshot = false
	}
	tip := e.vm.ExecuteBlockTip()
	if tip.Status != rolluptypes.TxStatusSuccess {
		// the dry run after the last transaction succeeded on the same state
		log.Error("block tip failed", "l1Batch", e.l1Batch, "revert", tip.RevertMessage)
	}
	result := e.vm.Finish()
	log.Info(
		"finished batch execution",
		"l1Batch", e.l1Batch,
		"gasUsed", result.GasUsed,
		"storageLogs", len(result.StorageLogs),
		"l2ToL1Logs", len(result.L2ToL1Logs),
	)
	return result
}
