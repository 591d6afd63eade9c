// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package containers

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Not thread safe!
// A zero or negative size means it has no capacity instead of unlimited.
type LruCache[K comparable, V any] struct {
	inner *simplelru.LRU[K, V]
}

func NewLruCache[K comparable, V any](size int) *LruCache[K, V] {
	cache := &LruCache[K, V]{}
	if size > 0 {
		// can't fail with a positive size
		cache.inner, _ = simplelru.NewLRU[K, V](size, nil)
	}
	return cache
}

func (c *LruCache[K, V]) Add(key K, value V) bool {
	if c.inner == nil {
		return false
	}
	return c.inner.Add(key, value)
}

func (c *LruCache[K, V]) Get(key K) (V, bool) {
	if c.inner == nil {
		var empty V
		return empty, false
	}
	return c.inner.Get(key)
}
