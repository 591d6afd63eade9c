// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package statekeeper

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ZKAmoeba-Micro/micro-sub000/gastracker"
	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper/updates"
)

// L1BatchParams is everything needed to open a batch. It is created once per batch.
type L1BatchParams struct {
	Context             rolluptypes.BlockContext
	PrevBatchHash       common.Hash
	BaseSystemContracts rolluptypes.BaseSystemContractsHashes
}

func (p *L1BatchParams) DerivedContext() rolluptypes.DerivedBlockContext {
	return gastracker.DeriveBlockContext(p.Context)
}

type MiniblockTxs struct {
	Number rolluptypes.MiniblockNumber
	Txs    []*rolluptypes.Transaction
}

// PendingBatchData describes a batch whose miniblocks were persisted before a restart
// but which was never sealed. Params must be the ones the batch was originally opened with.
type PendingBatchData struct {
	Params *L1BatchParams
	Txs    []MiniblockTxs
}

// StateKeeperIO is the state keeper's only window to the outside world.
// The waiting methods give up after maxWait, or earlier once ctx is done,
// and return a zero value in that case.
type StateKeeperIO interface {
	CurrentL1BatchNumber() rolluptypes.L1BatchNumber
	CurrentMiniblockNumber() rolluptypes.MiniblockNumber

	LoadPendingBatch() (*PendingBatchData, error)
	WaitForNewBatchParams(ctx context.Context, maxWait time.Duration) (*L1BatchParams, error)
	WaitForNewMiniblockParams(ctx context.Context, maxWait time.Duration) (uint64, bool)
	WaitForNextTx(ctx context.Context, maxWait time.Duration) *rolluptypes.Transaction

	// Rollback returns tx to the mempool so that it is offered again later.
	Rollback(tx *rolluptypes.Transaction)
	// Reject drops tx for good.
	Reject(tx *rolluptypes.Transaction, reason string) error

	SealMiniblock(updates *updates.UpdatesManager) error
	SealL1Batch(blockResult *rolluptypes.VmBlockResult, updates *updates.UpdatesManager, blockContext rolluptypes.DerivedBlockContext) error
}
