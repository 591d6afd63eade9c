// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package sealcriteria decides when the open batch or miniblock has to be sealed.
package sealcriteria

type ResolutionKind uint8

// Ordered by increasing severity.
const (
	KindNoSeal ResolutionKind = iota
	KindIncludeAndSeal
	KindExcludeAndSeal
	KindUnexecutable
)

// SealResolution is the verdict on a transaction that has just been executed.
//
// IncludeAndSeal keeps the transaction and seals the batch after it.
// ExcludeAndSeal rolls the transaction back, seals the batch and retries it in the next one.
// Unexecutable rejects the transaction for good; Reason explains why.
type SealResolution struct {
	Kind   ResolutionKind
	Reason string
}

var (
	NoSeal         = SealResolution{Kind: KindNoSeal}
	IncludeAndSeal = SealResolution{Kind: KindIncludeAndSeal}
	ExcludeAndSeal = SealResolution{Kind: KindExcludeAndSeal}
)

func Unexecutable(reason string) SealResolution {
	return SealResolution{Kind: KindUnexecutable, Reason: reason}
}

// Stricter returns whichever resolution is more severe, preferring r on ties.
func (r SealResolution) Stricter(other SealResolution) SealResolution {
	if other.Kind > r.Kind {
		return other
	}
	return r
}

func (r SealResolution) ShouldSeal() bool {
	return r.Kind != KindNoSeal
}

// Name is used as a metrics label.
func (r SealResolution) Name() string {
	switch r.Kind {
	case KindNoSeal:
		return "no_seal"
	case KindIncludeAndSeal:
		return "include_and_seal"
	case KindExcludeAndSeal:
		return "exclude_and_seal"
	default:
		return "unexecutable"
	}
}

func (r SealResolution) String() string {
	if r.Kind == KindUnexecutable {
		return "unexecutable: " + r.Reason
	}
	return r.Name()
}
