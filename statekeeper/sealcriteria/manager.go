// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package sealcriteria

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper/updates"
)

var (
	unconditionalSealCounter = metrics.NewRegisteredCounter("micro/statekeeper/seal/unconditional", nil)
	miniblockSealCounter     = metrics.NewRegisteredCounter("micro/statekeeper/seal/miniblock", nil)
)

func recordAggregationReason(criterion string, resolution SealResolution) {
	metrics.GetOrRegisterCounter("micro/statekeeper/tx_aggregation/"+criterion+"/"+resolution.Name(), nil).Inc(1)
}

// UnconditionalSealer decides from the batch state alone whether it must be sealed before
// another transaction is executed.
type UnconditionalSealer func(config *Config, updates *updates.UpdatesManager) bool

// MiniblockSealer decides whether the open miniblock must be sealed.
type MiniblockSealer func(config *Config, updates *updates.UpdatesManager) bool

type SealManager struct {
	config               ConfigFetcher
	criteria             []SealCriterion
	unconditionalSealers []UnconditionalSealer
	miniblockSealers     []MiniblockSealer
}

func DefaultCriteria() []SealCriterion {
	return []SealCriterion{
		SlotsCriterion{},
		GasCriterion{},
		PubDataBytesCriterion{},
		InitialWritesCriterion{},
		RepeatedWritesCriterion{},
		TxEncodingSizeCriterion{},
	}
}

func NewSealManager(config ConfigFetcher) *SealManager {
	return NewSealManagerWithCriteria(
		config,
		DefaultCriteria(),
		[]UnconditionalSealer{TimeoutAndCodeHashSealer(TimeoutCriterion{})},
		[]MiniblockSealer{TimeoutMiniblockSealer(time.Now), MaxTransactionsMiniblockSealer},
	)
}

func NewSealManagerWithCriteria(
	config ConfigFetcher,
	criteria []SealCriterion,
	unconditionalSealers []UnconditionalSealer,
	miniblockSealers []MiniblockSealer,
) *SealManager {
	return &SealManager{
		config:               config,
		criteria:             criteria,
		unconditionalSealers: unconditionalSealers,
		miniblockSealers:     miniblockSealers,
	}
}

// ShouldSealL1Batch evaluates every criterion and returns the most severe resolution.
func (m *SealManager) ShouldSealL1Batch(
	l1BatchNumber rolluptypes.L1BatchNumber,
	blockOpenTimestampMs uint64,
	txCount int,
	block, tx *SealData,
) SealResolution {
	config := m.config()
	final := NoSeal
	for _, criterion := range m.criteria {
		resolution := criterion.ShouldSeal(config, blockOpenTimestampMs, txCount, block, tx)
		if resolution.ShouldSeal() {
			log.Debug(
				"seal criterion triggered",
				"l1Batch", l1BatchNumber,
				"criterion", criterion.Name(),
				"resolution", resolution,
			)
			recordAggregationReason(criterion.Name(), resolution)
		}
		final = final.Stricter(resolution)
	}
	return final
}

func (m *SealManager) ShouldSealL1BatchUnconditionally(u *updates.UpdatesManager) bool {
	config := m.config()
	for _, sealer := range m.unconditionalSealers {
		if sealer(config, u) {
			unconditionalSealCounter.Inc(1)
			return true
		}
	}
	return false
}

func (m *SealManager) ShouldSealMiniblock(u *updates.UpdatesManager) bool {
	config := m.config()
	for _, sealer := range m.miniblockSealers {
		if sealer(config, u) {
			miniblockSealCounter.Inc(1)
			return true
		}
	}
	return false
}

// TimeoutAndCodeHashSealer seals a batch that timed out, or one that was opened with system
// contracts other than the configured ones.
func TimeoutAndCodeHashSealer(timeout TimeoutCriterion) UnconditionalSealer {
	return func(config *Config, u *updates.UpdatesManager) bool {
		bootloader, defaultAA := config.ExpectedContracts()
		current := u.BaseSystemContracts()
		if codeHashChanged(bootloader, current.Bootloader) || codeHashChanged(defaultAA, current.DefaultAA) {
			log.Info(
				"base system contracts changed, sealing batch",
				"l1Batch", u.L1BatchNumber(),
				"current", current,
			)
			return true
		}
		resolution := timeout.ShouldSeal(
			config,
			u.BatchTimestamp()*1000,
			u.PendingExecutedTransactionsLen(),
			&SealData{},
			&SealData{},
		)
		if resolution.ShouldSeal() {
			recordAggregationReason(timeout.Name(), resolution)
			return true
		}
		return false
	}
}

func codeHashChanged(expected, current common.Hash) bool {
	return expected != (common.Hash{}) && expected != current
}

// TimeoutMiniblockSealer seals a non-empty miniblock older than the miniblock commit deadline.
func TimeoutMiniblockSealer(now func() time.Time) MiniblockSealer {
	return func(config *Config, u *updates.UpdatesManager) bool {
		miniblock := u.Miniblock()
		if len(miniblock.ExecutedTransactions) == 0 {
			return false
		}
		openedAtMs := miniblock.Timestamp * 1000
		nowMs := uint64(now().UnixMilli())
		return nowMs > openedAtMs && nowMs-openedAtMs > uint64(config.MiniblockCommitDeadline.Milliseconds())
	}
}

func MaxTransactionsMiniblockSealer(config *Config, u *updates.UpdatesManager) bool {
	if config.MiniblockMaxTransactions == 0 {
		return false
	}
	return len(u.Miniblock().ExecutedTransactions) >= config.MiniblockMaxTransactions
}
