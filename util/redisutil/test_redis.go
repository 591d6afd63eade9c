// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package redisutil

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/ZKAmoeba-Micro/micro-sub000/util/testhelpers"
)

// CreateTestRedis returns the url in TEST_REDIS if set, otherwise starts a miniredis
// that lives until ctx is done.
func CreateTestRedis(ctx context.Context, t *testing.T) string {
	redisUrl := os.Getenv("TEST_REDIS")
	if redisUrl != "" {
		return redisUrl
	}
	redisServer, err := miniredis.Run()
	testhelpers.RequireImpl(t, err)
	go func() {
		<-ctx.Done()
		redisServer.Close()
	}()
	return fmt.Sprintf("redis://%s/0", redisServer.Addr())
}
