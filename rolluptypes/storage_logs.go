// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package rolluptypes

import (
	"github.com/ethereum/go-ethereum/common"
)

// StorageLog is a single storage access recorded by the VM.
// IsInitial is set for writes to slots that have never been written before.
type StorageLog struct {
	Key          common.Hash
	ReadValue    common.Hash
	WrittenValue common.Hash
	IsWrite      bool
	IsInitial    bool
}

type VmEvent struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

type L2ToL1Log struct {
	Sender  common.Address
	Key     common.Hash
	Value   common.Hash
	IsL1Tx  bool
	TxIndex uint64
}

// StorageWritesDeduplicator tracks which slots a batch has modified so that
// repeated writes to the same slot are only paid for once.
type StorageWritesDeduplicator struct {
	initialValues map[common.Hash]common.Hash
	modified      map[common.Hash]bool
	metrics       DeduplicatedWritesMetrics
}

func NewStorageWritesDeduplicator() *StorageWritesDeduplicator {
	return &StorageWritesDeduplicator{
		initialValues: make(map[common.Hash]common.Hash),
		modified:      make(map[common.Hash]bool),
	}
}

func (d *StorageWritesDeduplicator) Metrics() DeduplicatedWritesMetrics {
	return d.metrics
}

// Apply records the writes among logs and updates the metrics.
func (d *StorageWritesDeduplicator) Apply(logs []StorageLog) {
	o := d.overlay()
	o.process(logs)
	for key, value := range o.initialValues {
		d.initialValues[key] = value
	}
	for key, modified := range o.modified {
		if modified {
			d.modified[key] = true
		} else {
			delete(d.modified, key)
		}
	}
	d.metrics = o.metrics
}

// ApplyAndRollback returns the metrics the batch would have after applying logs,
// leaving the deduplicator unchanged.
func (d *StorageWritesDeduplicator) ApplyAndRollback(logs []StorageLog) DeduplicatedWritesMetrics {
	o := d.overlay()
	o.process(logs)
	return o.metrics
}

// ApplyOnEmptyState returns the metrics of logs as if nothing had been written before.
func ApplyOnEmptyState(logs []StorageLog) DeduplicatedWritesMetrics {
	return NewStorageWritesDeduplicator().ApplyAndRollback(logs)
}

type dedupOverlay struct {
	base          *StorageWritesDeduplicator
	initialValues map[common.Hash]common.Hash
	modified      map[common.Hash]bool
	metrics       DeduplicatedWritesMetrics
}

func (d *StorageWritesDeduplicator) overlay() *dedupOverlay {
	return &dedupOverlay{
		base:          d,
		initialValues: make(map[common.Hash]common.Hash),
		modified:      make(map[common.Hash]bool),
		metrics:       d.metrics,
	}
}

func (o *dedupOverlay) initialValue(key common.Hash, readValue common.Hash) common.Hash {
	if value, ok := o.initialValues[key]; ok {
		return value
	}
	if value, ok := o.base.initialValues[key]; ok {
		return value
	}
	o.initialValues[key] = readValue
	return readValue
}

func (o *dedupOverlay) isModified(key common.Hash) bool {
	if modified, ok := o.modified[key]; ok {
		return modified
	}
	return o.base.modified[key]
}

func (o *dedupOverlay) process(logs []StorageLog) {
	for i := range logs {
		log := &logs[i]
		if !log.IsWrite {
			continue
		}
		initial := o.initialValue(log.Key, log.ReadValue)
		wasModified := o.isModified(log.Key)
		counter := &o.metrics.RepeatedStorageWrites
		if log.IsInitial {
			counter = &o.metrics.InitialStorageWrites
		}
		if log.WrittenValue != initial {
			if !wasModified {
				o.modified[log.Key] = true
				*counter++
			}
		} else if wasModified {
			o.modified[log.Key] = false
			*counter--
		}
	}
}
