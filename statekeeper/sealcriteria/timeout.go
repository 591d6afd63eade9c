// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package sealcriteria

import (
	"fmt"
	"time"
)

// TimeoutCriterion seals a non-empty batch once it has been open longer than the commit deadline.
type TimeoutCriterion struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c TimeoutCriterion) nowMs() uint64 {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return uint64(now().UnixMilli())
}

func (c TimeoutCriterion) ShouldSeal(config *Config, blockOpenTimestampMs uint64, txCount int, _, _ *SealData) SealResolution {
	if txCount == 0 {
		return NoSeal
	}
	nowMs := c.nowMs()
	if nowMs < blockOpenTimestampMs {
		panic(fmt.Sprintf("clock went backwards: now %dms, batch opened at %dms", nowMs, blockOpenTimestampMs))
	}
	if nowMs-blockOpenTimestampMs > uint64(config.BlockCommitDeadline.Milliseconds()) {
		return IncludeAndSeal
	}
	return NoSeal
}

func (TimeoutCriterion) Name() string {
	return "seal_criteria_timeout"
}
