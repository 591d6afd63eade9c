// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package storage persists miniblocks, sealed batches and the committed state of the sequencer.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ZKAmoeba-Micro/micro-sub000/compress"
)

var (
	ErrMiniblockGap      = errors.New("miniblock number is ahead of the persisted miniblocks")
	ErrMiniblockConflict = errors.New("miniblock was already persisted with different content")
	ErrL1BatchGap        = errors.New("l1 batch number does not follow the sealed batches")
)

const maxBatchBodySize = 256 * 1024 * 1024

type Store struct {
	db ethdb.Database

	// held while writing, so that counters and records move together
	insertionMutex sync.Mutex
}

func NewStore(raw ethdb.Database) (*Store, error) {
	s := &Store{
		db: rawdb.NewTable(raw, microPrefix),
	}
	for _, key := range [][]byte{miniblockCountKey, l1BatchCountKey} {
		has, err := s.db.Has(key)
		if err != nil {
			return nil, err
		}
		if has {
			continue
		}
		value, err := rlp.EncodeToBytes(uint64(0))
		if err != nil {
			return nil, err
		}
		if err := s.db.Put(key, value); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) getCount(key []byte) (uint64, error) {
	data, err := s.db.Get(key)
	if err != nil {
		return 0, err
	}
	var count uint64
	err = rlp.DecodeBytes(data, &count)
	return count, err
}

func putRlp(batch ethdb.KeyValueWriter, key []byte, value any) error {
	data, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return batch.Put(key, data)
}

func (s *Store) getRlp(key []byte, value any) error {
	data, err := s.db.Get(key)
	if err != nil {
		return err
	}
	return rlp.DecodeBytes(data, value)
}

// MiniblockCount is the number of persisted miniblocks, which is also the next miniblock number.
func (s *Store) MiniblockCount() (uint64, error) {
	return s.getCount(miniblockCountKey)
}

// L1BatchCount is the number of sealed batches, which is also the number of the open batch.
func (s *Store) L1BatchCount() (uint64, error) {
	return s.getCount(l1BatchCountKey)
}

func (s *Store) GetMiniblock(number uint64) (*MiniblockRecord, error) {
	var header MiniblockHeader
	if err := s.getRlp(dbKey(miniblockHeaderPrefix, number), &header); err != nil {
		return nil, fmt.Errorf("reading miniblock %d header: %w", number, err)
	}
	var txs []ExecutedTx
	if err := s.getRlp(dbKey(miniblockTxsPrefix, number), &txs); err != nil {
		return nil, fmt.Errorf("reading miniblock %d txs: %w", number, err)
	}
	return &MiniblockRecord{Header: header, Txs: txs}, nil
}

// LastMiniblockHeader returns nil if nothing was persisted yet.
func (s *Store) LastMiniblockHeader() (*MiniblockHeader, error) {
	count, err := s.MiniblockCount()
	if err != nil || count == 0 {
		return nil, err
	}
	var header MiniblockHeader
	if err := s.getRlp(dbKey(miniblockHeaderPrefix, count-1), &header); err != nil {
		return nil, err
	}
	return &header, nil
}

func (s *Store) GetL1BatchHeader(number uint64) (*L1BatchHeader, error) {
	var header L1BatchHeader
	if err := s.getRlp(dbKey(l1BatchHeaderPrefix, number), &header); err != nil {
		return nil, fmt.Errorf("reading l1 batch %d header: %w", number, err)
	}
	return &header, nil
}

func (s *Store) GetL1BatchBody(number uint64) (*L1BatchBody, error) {
	compressed, err := s.db.Get(dbKey(l1BatchBodyPrefix, number))
	if err != nil {
		return nil, fmt.Errorf("reading l1 batch %d body: %w", number, err)
	}
	data, err := compress.Decompress(compressed, maxBatchBodySize)
	if err != nil {
		return nil, err
	}
	var body L1BatchBody
	if err := rlp.DecodeBytes(data, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// LastL1BatchHash is the hash of the latest sealed batch, or the zero hash before the first one.
func (s *Store) LastL1BatchHash() (common.Hash, error) {
	count, err := s.L1BatchCount()
	if err != nil || count == 0 {
		return common.Hash{}, err
	}
	header, err := s.GetL1BatchHeader(count - 1)
	if err != nil {
		return common.Hash{}, err
	}
	return header.Hash, nil
}

// PendingBatchParams returns the params of the open batch, or nil if its first miniblock was
// not persisted yet.
func (s *Store) PendingBatchParams() (*BatchParams, error) {
	has, err := s.db.Has(pendingBatchParamsKey)
	if err != nil || !has {
		return nil, err
	}
	var params BatchParams
	if err := s.getRlp(pendingBatchParamsKey, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

// PendingMiniblocks returns every persisted miniblock of the open batch, in order.
func (s *Store) PendingMiniblocks() ([]*MiniblockRecord, error) {
	batchCount, err := s.L1BatchCount()
	if err != nil {
		return nil, err
	}
	var first uint64
	if batchCount > 0 {
		last, err := s.GetL1BatchHeader(batchCount - 1)
		if err != nil {
			return nil, err
		}
		first = last.LastMiniblock + 1
	}
	count, err := s.MiniblockCount()
	if err != nil {
		return nil, err
	}
	var records []*MiniblockRecord
	for number := first; number < count; number++ {
		record, err := s.GetMiniblock(number)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// ReadValue returns the committed value of a storage slot. Only sealed batches are visible.
func (s *Store) ReadValue(key common.Hash) (common.Hash, bool) {
	data, err := s.db.Get(hashKey(storageSlotPrefix, key.Bytes()))
	if err != nil {
		if has, hasErr := s.db.Has(hashKey(storageSlotPrefix, key.Bytes())); hasErr != nil || has {
			log.Error("failed reading storage slot", "key", key, "err", err, "hasErr", hasErr)
		}
		return common.Hash{}, false
	}
	return common.BytesToHash(data), true
}

func (s *Store) MarkRejected(txHash common.Hash, reason string) error {
	return putRlp(s.db, hashKey(rejectedTxPrefix, txHash.Bytes()), reason)
}

func (s *Store) RejectionReason(txHash common.Hash) (string, bool, error) {
	key := hashKey(rejectedTxPrefix, txHash.Bytes())
	has, err := s.db.Has(key)
	if err != nil || !has {
		return "", false, err
	}
	var reason string
	err = s.getRlp(key, &reason)
	return reason, err == nil, err
}

func miniblockHash(header *MiniblockHeader, txs []ExecutedTx) common.Hash {
	data := make([][]byte, 0, len(txs)+3)
	data = append(data, uint64ToBytes(header.Number), uint64ToBytes(header.Timestamp), header.PrevHash.Bytes())
	for _, tx := range txs {
		data = append(data, tx.Tx.Hash.Bytes())
	}
	return crypto.Keccak256Hash(data...)
}

// addMiniblock writes record into batch unless the same miniblock is already persisted.
// It returns whether anything was written.
func (s *Store) addMiniblock(batch ethdb.Batch, record *MiniblockRecord) (bool, error) {
	count, err := s.MiniblockCount()
	if err != nil {
		return false, err
	}
	number := record.Header.Number
	if number > count {
		return false, fmt.Errorf("%w: got %d, next is %d", ErrMiniblockGap, number, count)
	}
	if number > 0 {
		var prev MiniblockHeader
		if err := s.getRlp(dbKey(miniblockHeaderPrefix, number-1), &prev); err != nil {
			return false, fmt.Errorf("reading miniblock %d header: %w", number-1, err)
		}
		record.Header.PrevHash = prev.Hash
	}
	record.Header.Hash = miniblockHash(&record.Header, record.Txs)
	headerBytes, err := rlp.EncodeToBytes(&record.Header)
	if err != nil {
		return false, err
	}
	txsBytes, err := rlp.EncodeToBytes(record.Txs)
	if err != nil {
		return false, err
	}

	if number < count {
		haveHeader, err := s.db.Get(dbKey(miniblockHeaderPrefix, number))
		if err != nil {
			return false, err
		}
		haveTxs, err := s.db.Get(dbKey(miniblockTxsPrefix, number))
		if err != nil {
			return false, err
		}
		if !bytes.Equal(haveHeader, headerBytes) || !bytes.Equal(haveTxs, txsBytes) {
			return false, fmt.Errorf("%w: miniblock %d", ErrMiniblockConflict, number)
		}
		log.Warn("miniblock already persisted, skipping", "miniblock", number)
		return false, nil
	}

	if err := batch.Put(dbKey(miniblockHeaderPrefix, number), headerBytes); err != nil {
		return false, err
	}
	if err := batch.Put(dbKey(miniblockTxsPrefix, number), txsBytes); err != nil {
		return false, err
	}
	if err := putRlp(batch, miniblockCountKey, number+1); err != nil {
		return false, err
	}
	return true, nil
}

// SealMiniblock persists a miniblock. pendingParams is stored along with the first miniblock of
// a batch and must be nil otherwise. Persisting the same miniblock twice is a no-op.
func (s *Store) SealMiniblock(record *MiniblockRecord, pendingParams *BatchParams) error {
	s.insertionMutex.Lock()
	defer s.insertionMutex.Unlock()

	batch := s.db.NewBatch()
	written, err := s.addMiniblock(batch, record)
	if err != nil || !written {
		return err
	}
	if pendingParams != nil {
		if err := putRlp(batch, pendingBatchParamsKey, pendingParams); err != nil {
			return err
		}
	}
	return batch.Write()
}

func l1BatchHash(header *L1BatchHeader) (common.Hash, error) {
	withoutHash := *header
	withoutHash.Hash = common.Hash{}
	data, err := rlp.EncodeToBytes(&withoutHash)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(data), nil
}

// SealL1Batch persists the fictive miniblock, the batch header and body and the batch's final
// storage writes in one atomic write, and closes the open batch. A batch without transactions
// never had its params stored, the fictive miniblock is then its only miniblock. It fills in the header's
// hashes and returns the batch hash.
func (s *Store) SealL1Batch(fictive *MiniblockRecord, header *L1BatchHeader, body *L1BatchBody) (common.Hash, error) {
	s.insertionMutex.Lock()
	defer s.insertionMutex.Unlock()

	batchCount, err := s.L1BatchCount()
	if err != nil {
		return common.Hash{}, err
	}
	if header.Number != batchCount {
		return common.Hash{}, fmt.Errorf("%w: got %d, next is %d", ErrL1BatchGap, header.Number, batchCount)
	}
	batch := s.db.NewBatch()
	if _, err := s.addMiniblock(batch, fictive); err != nil {
		return common.Hash{}, err
	}
	for _, write := range body.StorageWrites {
		if err := batch.Put(hashKey(storageSlotPrefix, write.Key.Bytes()), write.Value.Bytes()); err != nil {
			return common.Hash{}, err
		}
	}

	bodyBytes, err := rlp.EncodeToBytes(body)
	if err != nil {
		return common.Hash{}, err
	}
	compressed, err := compress.CompressWell(bodyBytes)
	if err != nil {
		return common.Hash{}, err
	}
	header.PrevHash, err = s.LastL1BatchHash()
	if err != nil {
		return common.Hash{}, err
	}
	header.BodyHash = crypto.Keccak256Hash(bodyBytes)
	header.Hash, err = l1BatchHash(header)
	if err != nil {
		return common.Hash{}, err
	}
	if err := batch.Put(dbKey(l1BatchBodyPrefix, header.Number), compressed); err != nil {
		return common.Hash{}, err
	}
	if err := putRlp(batch, dbKey(l1BatchHeaderPrefix, header.Number), header); err != nil {
		return common.Hash{}, err
	}
	if err := putRlp(batch, l1BatchCountKey, header.Number+1); err != nil {
		return common.Hash{}, err
	}
	if err := batch.Delete(pendingBatchParamsKey); err != nil {
		return common.Hash{}, err
	}
	if err := batch.Write(); err != nil {
		return common.Hash{}, err
	}
	log.Info(
		"persisted l1 batch",
		"l1Batch", header.Number,
		"hash", header.Hash,
		"miniblocks", header.LastMiniblock-header.FirstMiniblock+1,
		"storageWrites", len(body.StorageWrites),
		"bodySize", len(bodyBytes),
		"compressedSize", len(compressed),
	)
	return header.Hash, nil
}
