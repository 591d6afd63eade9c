// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package mempool holds transactions waiting to be sequenced. Priority operations from L1 are
// always offered before L2 transactions.
package mempool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
	"github.com/ZKAmoeba-Micro/micro-sub000/util/containers"
)

var (
	l1QueueGauge          = metrics.NewRegisteredGauge("micro/mempool/l1_queue", nil)
	l2QueueGauge          = metrics.NewRegisteredGauge("micro/mempool/l2_queue", nil)
	insertedCounter       = metrics.NewRegisteredCounter("micro/mempool/inserted", nil)
	refusedCounter        = metrics.NewRegisteredCounter("micro/mempool/refused", nil)
	rolledBackCounter     = metrics.NewRegisteredCounter("micro/mempool/rolledback", nil)
	markedRejectedCounter = metrics.NewRegisteredCounter("micro/mempool/rejected", nil)
)

var (
	ErrTxRejected   = errors.New("transaction was rejected before")
	ErrAlreadyKnown = errors.New("transaction already in mempool")
	ErrMempoolFull  = errors.New("mempool is full")
)

type Mempool struct {
	config ConfigFetcher

	mutex    sync.Mutex
	l1Queue  []*rolluptypes.Transaction // ordered by priority op id
	l2Queue  []*rolluptypes.Transaction
	known    map[common.Hash]struct{}
	rejected *containers.LruCache[common.Hash, string]

	newTxNotifier chan struct{}
}

func NewMempool(config ConfigFetcher) *Mempool {
	return &Mempool{
		config:        config,
		known:         make(map[common.Hash]struct{}),
		rejected:      containers.NewLruCache[common.Hash, string](config().RejectedCacheSize),
		newTxNotifier: make(chan struct{}, 1),
	}
}

func (m *Mempool) updateGauges() {
	l1QueueGauge.Update(int64(len(m.l1Queue)))
	l2QueueGauge.Update(int64(len(m.l2Queue)))
}

func (m *Mempool) notify() {
	select {
	case m.newTxNotifier <- struct{}{}:
	default:
	}
}

// insertL1 keeps the L1 queue ordered by priority op id. The mutex must be held.
func (m *Mempool) insertL1(tx *rolluptypes.Transaction) {
	idx := sort.Search(len(m.l1Queue), func(i int) bool {
		return m.l1Queue[i].PriorityOpID > tx.PriorityOpID
	})
	m.l1Queue = append(m.l1Queue, nil)
	copy(m.l1Queue[idx+1:], m.l1Queue[idx:])
	m.l1Queue[idx] = tx
}

func (m *Mempool) Insert(tx *rolluptypes.Transaction) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if reason, rejected := m.rejected.Get(tx.Hash); rejected {
		refusedCounter.Inc(1)
		return fmt.Errorf("%w: %s", ErrTxRejected, reason)
	}
	if _, ok := m.known[tx.Hash]; ok {
		refusedCounter.Inc(1)
		return ErrAlreadyKnown
	}
	if len(m.known) >= m.config().MaxTxs {
		refusedCounter.Inc(1)
		return ErrMempoolFull
	}
	m.known[tx.Hash] = struct{}{}
	if tx.IsL1 {
		m.insertL1(tx)
	} else {
		m.l2Queue = append(m.l2Queue, tx)
	}
	insertedCounter.Inc(1)
	m.updateGauges()
	m.notify()
	return nil
}

// Next pops the next transaction, or returns nil if the mempool is empty.
func (m *Mempool) Next() *rolluptypes.Transaction {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var tx *rolluptypes.Transaction
	if len(m.l1Queue) > 0 {
		tx = m.l1Queue[0]
		m.l1Queue = m.l1Queue[1:]
	} else if len(m.l2Queue) > 0 {
		tx = m.l2Queue[0]
		m.l2Queue = m.l2Queue[1:]
	} else {
		return nil
	}
	delete(m.known, tx.Hash)
	m.updateGauges()
	return tx
}

// WaitForNext waits up to maxWait for a transaction. It returns nil on timeout or once ctx is done.
func (m *Mempool) WaitForNext(ctx context.Context, maxWait time.Duration) *rolluptypes.Transaction {
	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	for {
		if tx := m.Next(); tx != nil {
			return tx
		}
		select {
		case <-m.newTxNotifier:
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Rollback puts tx back at the front of its queue, so that it is the next one offered.
func (m *Mempool) Rollback(tx *rolluptypes.Transaction) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.known[tx.Hash]; ok {
		log.Warn("rolled back transaction is already in the mempool", "tx", tx)
		return
	}
	m.known[tx.Hash] = struct{}{}
	if tx.IsL1 {
		m.insertL1(tx)
	} else {
		m.l2Queue = append([]*rolluptypes.Transaction{tx}, m.l2Queue...)
	}
	rolledBackCounter.Inc(1)
	m.updateGauges()
	m.notify()
}

// MarkRejected remembers that tx can never be executed, so that resubmissions are refused.
func (m *Mempool) MarkRejected(txHash common.Hash, reason string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejected.Add(txHash, reason)
	markedRejectedCounter.Inc(1)
}

func (m *Mempool) RejectionReason(txHash common.Hash) (string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.rejected.Get(txHash)
}

func (m *Mempool) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.l1Queue) + len(m.l2Queue)
}
