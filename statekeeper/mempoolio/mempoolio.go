// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package mempoolio connects the state keeper to the mempool and to persistent storage.
package mempoolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/ZKAmoeba-Micro/micro-sub000/gastracker"
	"github.com/ZKAmoeba-Micro/micro-sub000/mempool"
	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper/updates"
	"github.com/ZKAmoeba-Micro/micro-sub000/storage"
)

var (
	underpricedCounter  = metrics.NewRegisteredCounter("micro/mempoolio/tx/underpriced", nil)
	miniblockSealTimer  = metrics.NewRegisteredTimer("micro/mempoolio/miniblock/seal", nil)
	l1BatchSealTimer    = metrics.NewRegisteredTimer("micro/mempoolio/l1_batch/seal", nil)
	l1BatchCommitGauge  = metrics.NewRegisteredGauge("micro/mempoolio/l1_batch/commit_gas", nil)
	timestampWaitPeriod = 10 * time.Millisecond
)

var ErrL1TxRejected = errors.New("l1 transactions must never be rejected")

// L1GasPriceProvider supplies the L1 gas price for new batches.
type L1GasPriceProvider interface {
	EstimateEffectiveGasPrice() uint64
}

// FixedL1GasPriceProvider always returns the configured price.
type FixedL1GasPriceProvider struct {
	config ConfigFetcher
}

func NewFixedL1GasPriceProvider(config ConfigFetcher) *FixedL1GasPriceProvider {
	return &FixedL1GasPriceProvider{config: config}
}

func (p *FixedL1GasPriceProvider) EstimateEffectiveGasPrice() uint64 {
	return p.config().L1GasPrice
}

// MempoolIO is the StateKeeperIO of the main node. It is only used from the state keeper's goroutine.
type MempoolIO struct {
	config    ConfigFetcher
	mempool   *mempool.Mempool
	store     *storage.Store
	gasPrice  L1GasPriceProvider
	contracts rolluptypes.BaseSystemContractsHashes
	now       func() time.Time

	currentL1Batch         rolluptypes.L1BatchNumber
	currentMiniblock       rolluptypes.MiniblockNumber
	prevMiniblockTimestamp uint64
	// params of the open batch, kept to be persisted with its first miniblock
	openBatch *statekeeper.L1BatchParams
	baseFee   uint64
}

func NewMempoolIO(
	config ConfigFetcher,
	pool *mempool.Mempool,
	store *storage.Store,
	gasPrice L1GasPriceProvider,
	contracts rolluptypes.BaseSystemContractsHashes,
) (*MempoolIO, error) {
	batchCount, err := store.L1BatchCount()
	if err != nil {
		return nil, err
	}
	miniblockCount, err := store.MiniblockCount()
	if err != nil {
		return nil, err
	}
	lastMiniblock, err := store.LastMiniblockHeader()
	if err != nil {
		return nil, err
	}
	var prevTimestamp uint64
	if lastMiniblock != nil {
		prevTimestamp = lastMiniblock.Timestamp
	}
	return &MempoolIO{
		config:                 config,
		mempool:                pool,
		store:                  store,
		gasPrice:               gasPrice,
		contracts:              contracts,
		now:                    time.Now,
		currentL1Batch:         rolluptypes.L1BatchNumber(batchCount),
		currentMiniblock:       rolluptypes.MiniblockNumber(miniblockCount),
		prevMiniblockTimestamp: prevTimestamp,
	}, nil
}

func (m *MempoolIO) CurrentL1BatchNumber() rolluptypes.L1BatchNumber {
	return m.currentL1Batch
}

func (m *MempoolIO) CurrentMiniblockNumber() rolluptypes.MiniblockNumber {
	return m.currentMiniblock
}

func batchParamsFromRecord(record *storage.BatchParams) *statekeeper.L1BatchParams {
	return &statekeeper.L1BatchParams{
		Context: rolluptypes.BlockContext{
			BlockNumber:     rolluptypes.L1BatchNumber(record.Number),
			BlockTimestamp:  record.Timestamp,
			L1GasPrice:      record.L1GasPrice,
			FairL2GasPrice:  record.FairL2GasPrice,
			OperatorAddress: record.OperatorAddress,
			ChainID:         record.ChainID,
		},
		PrevBatchHash: record.PrevBatchHash,
		BaseSystemContracts: rolluptypes.BaseSystemContractsHashes{
			Bootloader: record.Bootloader,
			DefaultAA:  record.DefaultAA,
		},
	}
}

func batchParamsToRecord(params *statekeeper.L1BatchParams) *storage.BatchParams {
	return &storage.BatchParams{
		Number:          uint64(params.Context.BlockNumber),
		Timestamp:       params.Context.BlockTimestamp,
		L1GasPrice:      params.Context.L1GasPrice,
		FairL2GasPrice:  params.Context.FairL2GasPrice,
		OperatorAddress: params.Context.OperatorAddress,
		ChainID:         params.Context.ChainID,
		PrevBatchHash:   params.PrevBatchHash,
		Bootloader:      params.BaseSystemContracts.Bootloader,
		DefaultAA:       params.BaseSystemContracts.DefaultAA,
	}
}

func (m *MempoolIO) openL1Batch(params *statekeeper.L1BatchParams) {
	m.openBatch = params
	m.baseFee = params.DerivedContext().BaseFee
}

func (m *MempoolIO) LoadPendingBatch() (*statekeeper.PendingBatchData, error) {
	record, err := m.store.PendingBatchParams()
	if err != nil {
		return nil, fmt.Errorf("reading pending batch params: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	if rolluptypes.L1BatchNumber(record.Number) != m.currentL1Batch {
		return nil, fmt.Errorf("pending batch %d does not match the open batch %v", record.Number, m.currentL1Batch)
	}
	miniblocks, err := m.store.PendingMiniblocks()
	if err != nil {
		return nil, fmt.Errorf("reading pending miniblocks: %w", err)
	}
	params := batchParamsFromRecord(record)
	pending := &statekeeper.PendingBatchData{Params: params}
	for _, miniblock := range miniblocks {
		txs := make([]*rolluptypes.Transaction, 0, len(miniblock.Txs))
		for _, executed := range miniblock.Txs {
			txs = append(txs, executed.Tx)
		}
		pending.Txs = append(pending.Txs, statekeeper.MiniblockTxs{
			Number: rolluptypes.MiniblockNumber(miniblock.Header.Number),
			Txs:    txs,
		})
	}
	m.openL1Batch(params)
	return pending, nil
}

// waitForTimestamp returns a wall clock timestamp in seconds greater than the one of the
// previous miniblock.
func (m *MempoolIO) waitForTimestamp(ctx context.Context, maxWait time.Duration) (uint64, bool) {
	deadline := time.Now().Add(maxWait)
	for {
		timestamp := uint64(m.now().Unix())
		if timestamp > m.prevMiniblockTimestamp {
			return timestamp, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, false
		}
		wait := timestampWaitPeriod
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, false
		case <-timer.C:
		}
	}
}

func (m *MempoolIO) WaitForNewBatchParams(ctx context.Context, maxWait time.Duration) (*statekeeper.L1BatchParams, error) {
	timestamp, ok := m.waitForTimestamp(ctx, maxWait)
	if !ok {
		return nil, nil
	}
	prevBatchHash, err := m.store.LastL1BatchHash()
	if err != nil {
		return nil, err
	}
	config := m.config()
	params := &statekeeper.L1BatchParams{
		Context: rolluptypes.BlockContext{
			BlockNumber:     m.currentL1Batch,
			BlockTimestamp:  timestamp,
			L1GasPrice:      m.gasPrice.EstimateEffectiveGasPrice(),
			FairL2GasPrice:  config.FairL2GasPrice,
			OperatorAddress: config.FeeAccountAddress(),
			ChainID:         config.ChainID,
		},
		PrevBatchHash:       prevBatchHash,
		BaseSystemContracts: m.contracts,
	}
	m.prevMiniblockTimestamp = timestamp
	m.openL1Batch(params)
	log.Info(
		"opened l1 batch",
		"l1Batch", m.currentL1Batch,
		"timestamp", timestamp,
		"l1GasPrice", params.Context.L1GasPrice,
		"baseFee", m.baseFee,
	)
	return params, nil
}

func (m *MempoolIO) WaitForNewMiniblockParams(ctx context.Context, maxWait time.Duration) (uint64, bool) {
	timestamp, ok := m.waitForTimestamp(ctx, maxWait)
	if ok {
		m.prevMiniblockTimestamp = timestamp
	}
	return timestamp, ok
}

// WaitForNextTx hands out transactions from the mempool. L2 transactions that can not pay the
// base fee of the open batch are rejected here and never reach the state keeper.
func (m *MempoolIO) WaitForNextTx(ctx context.Context, maxWait time.Duration) *rolluptypes.Transaction {
	deadline := time.Now().Add(maxWait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		tx := m.mempool.WaitForNext(ctx, remaining)
		if tx == nil {
			return nil
		}
		if !tx.IsL1 && tx.MaxFeePerGas < m.baseFee {
			underpricedCounter.Inc(1)
			reason := fmt.Sprintf("max fee per gas %d is below the base fee %d", tx.MaxFeePerGas, m.baseFee)
			if err := m.Reject(tx, reason); err != nil {
				log.Error("failed to reject underpriced transaction", "tx", tx, "err", err)
			}
			continue
		}
		return tx
	}
}

func (m *MempoolIO) Rollback(tx *rolluptypes.Transaction) {
	m.mempool.Rollback(tx)
}

func (m *MempoolIO) Reject(tx *rolluptypes.Transaction, reason string) error {
	if tx.IsL1 {
		return fmt.Errorf("%w: %v: %s", ErrL1TxRejected, tx, reason)
	}
	m.mempool.MarkRejected(tx.Hash, reason)
	if err := m.store.MarkRejected(tx.Hash, reason); err != nil {
		return err
	}
	log.Info("transaction rejected", "tx", tx, "reason", reason)
	return nil
}

func (m *MempoolIO) miniblockRecord(u *updates.UpdatesManager, miniblock *updates.MiniblockUpdates) *storage.MiniblockRecord {
	blockContext := u.Context()
	record := &storage.MiniblockRecord{
		Header: storage.MiniblockHeader{
			Number:         uint64(m.currentMiniblock),
			L1BatchNumber:  uint64(m.currentL1Batch),
			Timestamp:      miniblock.Timestamp,
			BaseFeePerGas:  blockContext.BaseFee,
			L1GasPrice:     blockContext.Context.L1GasPrice,
			FairL2GasPrice: blockContext.Context.FairL2GasPrice,
		},
	}
	for _, executed := range miniblock.ExecutedTransactions {
		if executed.Transaction.IsL1 {
			record.Header.L1TxCount++
		} else {
			record.Header.L2TxCount++
		}
		record.Header.GasUsed += executed.ExecutionInfo.GasUsed
		record.Txs = append(record.Txs, storage.ExecutedTx{
			Tx:            executed.Transaction,
			Status:        executed.ExecutionStatus,
			GasUsed:       executed.ExecutionInfo.GasUsed,
			GasRefunded:   executed.RefundedGas,
			RevertMessage: executed.RevertMessage,
		})
	}
	return record
}

func (m *MempoolIO) SealMiniblock(u *updates.UpdatesManager) error {
	start := time.Now()
	record := m.miniblockRecord(u, u.Miniblock())
	var pendingParams *storage.BatchParams
	if len(u.SealedMiniblocks()) == 0 {
		if m.openBatch == nil {
			return errors.New("sealing a miniblock without an open batch")
		}
		pendingParams = batchParamsToRecord(m.openBatch)
	}
	if err := m.store.SealMiniblock(record, pendingParams); err != nil {
		return err
	}
	miniblockSealTimer.UpdateSince(start)
	log.Debug(
		"sealed miniblock",
		"miniblock", m.currentMiniblock,
		"l1Batch", m.currentL1Batch,
		"txs", len(record.Txs),
		"timestamp", record.Header.Timestamp,
		"hash", record.Header.Hash,
	)
	m.currentMiniblock++
	return nil
}

func (m *MempoolIO) SealL1Batch(blockResult *rolluptypes.VmBlockResult, u *updates.UpdatesManager, blockContext rolluptypes.DerivedBlockContext) error {
	start := time.Now()
	if blockContext.Context.BlockNumber != m.currentL1Batch {
		return fmt.Errorf("sealing l1 batch %v while %v is open", blockContext.Context.BlockNumber, m.currentL1Batch)
	}
	fictive := m.miniblockRecord(u, u.Miniblock())
	sealed := u.SealedMiniblocks()
	writes := u.StorageWritesDeduplicator().Metrics()

	header := &storage.L1BatchHeader{
		Number:                uint64(m.currentL1Batch),
		Timestamp:             u.BatchTimestamp(),
		FirstMiniblock:        uint64(m.currentMiniblock) - uint64(len(sealed)),
		LastMiniblock:         uint64(m.currentMiniblock),
		GasUsed:               blockResult.GasUsed,
		BaseFeePerGas:         blockContext.BaseFee,
		L1GasPrice:            blockContext.Context.L1GasPrice,
		FairL2GasPrice:        blockContext.Context.FairL2GasPrice,
		Bootloader:            u.BaseSystemContracts().Bootloader,
		DefaultAA:             u.BaseSystemContracts().DefaultAA,
		InitialStorageWrites:  uint64(writes.InitialStorageWrites),
		RepeatedStorageWrites: uint64(writes.RepeatedStorageWrites),
	}
	body := &storage.L1BatchBody{
		L2ToL1Logs: blockResult.L2ToL1Logs,
		Events:     blockResult.Events,
	}
	factoryDepsLen := 0
	for _, executed := range u.ExecutedTransactions() {
		if executed.Transaction.IsL1 {
			header.L1TxCount++
		} else {
			header.L2TxCount++
		}
		factoryDepsLen += executed.Transaction.FactoryDepsLen()
		body.TxHashes = append(body.TxHashes, executed.Transaction.Hash)
	}
	for _, storageLog := range blockResult.StorageLogs {
		if !storageLog.IsWrite {
			continue
		}
		body.StorageWrites = append(body.StorageWrites, storage.StorageWrite{
			Key:   storageLog.Key,
			Value: storageLog.WrittenValue,
		})
	}
	header.CommitGas = gastracker.CommitGasForL1Batch(len(blockResult.L2ToL1Logs), factoryDepsLen, writes)

	hash, err := m.store.SealL1Batch(fictive, header, body)
	if err != nil {
		return err
	}
	l1BatchSealTimer.UpdateSince(start)
	l1BatchCommitGauge.Update(int64(header.CommitGas))
	log.Info(
		"sealed l1 batch in storage",
		"l1Batch", m.currentL1Batch,
		"hash", hash,
		"firstMiniblock", header.FirstMiniblock,
		"lastMiniblock", header.LastMiniblock,
		"l1Txs", header.L1TxCount,
		"l2Txs", header.L2TxCount,
		"commitGas", header.CommitGas,
	)
	m.currentMiniblock++
	m.currentL1Batch++
	m.openBatch = nil
	return nil
}

var _ statekeeper.StateKeeperIO = (*MempoolIO)(nil)
