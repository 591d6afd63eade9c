// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package redisutil

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRedisClientFromURL(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := RedisClientFromURL("")
	require.NoError(t, err)
	require.Nil(t, client)

	client, err = RedisClientFromURL(CreateTestRedis(ctx, t))
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Set(ctx, "key", "value", 0).Err())
	value, err := client.Get(ctx, "key").Result()
	require.NoError(t, err)
	require.Equal(t, "value", value)
}

func TestParseFailoverRedisUrl(t *testing.T) {
	u, err := url.Parse("redis+sentinel://:secret@host1:1234,host2/mymaster/3?dial_timeout=3s")
	require.NoError(t, err)
	options, err := parseFailoverRedisUrl(u)
	require.NoError(t, err)
	require.Equal(t, "mymaster", options.MasterName)
	require.Equal(t, 3, options.DB)
	require.Equal(t, []string{"host1:1234", "host2:26379"}, options.SentinelAddrs)
	require.Equal(t, "secret", options.SentinelPassword)
	require.Equal(t, 3*time.Second, options.DialTimeout)

	u, err = url.Parse("redis+sentinel://host1")
	require.NoError(t, err)
	_, err = parseFailoverRedisUrl(u)
	require.Error(t, err)
}
