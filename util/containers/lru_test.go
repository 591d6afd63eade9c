// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package containers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLruCacheEviction(t *testing.T) {
	cache := NewLruCache[int, string](2)
	require.False(t, cache.Add(1, "a"))
	require.False(t, cache.Add(2, "b"))
	_, ok := cache.Get(1)
	require.True(t, ok)
	// 2 is now the least recently used entry
	require.True(t, cache.Add(3, "c"))
	_, ok = cache.Get(2)
	require.False(t, ok)
	value, ok := cache.Get(1)
	require.True(t, ok)
	require.Equal(t, "a", value)
	value, ok = cache.Get(3)
	require.True(t, ok)
	require.Equal(t, "c", value)
}

func TestZeroSizeLruCache(t *testing.T) {
	cache := NewLruCache[string, int](0)
	require.False(t, cache.Add("x", 1))
	_, ok := cache.Get("x")
	require.False(t, ok)
}
