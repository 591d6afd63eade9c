// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package mempool

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/go-redis/redis/v8"

	"github.com/ZKAmoeba-Micro/micro-sub000/rolluptypes"
	"github.com/ZKAmoeba-Micro/micro-sub000/util/redisutil"
	"github.com/ZKAmoeba-Micro/micro-sub000/util/stopwaiter"
)

var (
	feederReceivedCounter  = metrics.NewRegisteredCounter("micro/mempool/redis_feeder/received", nil)
	feederMalformedCounter = metrics.NewRegisteredCounter("micro/mempool/redis_feeder/malformed", nil)
)

// RedisFeeder moves encoded transactions from a redis list into the mempool.
type RedisFeeder struct {
	stopwaiter.StopWaiter

	config    RedisFeederConfigFetcher
	maxTxSize int
	client    redis.UniversalClient
	mempool   *Mempool
}

func NewRedisFeeder(config RedisFeederConfigFetcher, maxTxSize int, mempool *Mempool) (*RedisFeeder, error) {
	client, err := redisutil.RedisClientFromURL(config().URL)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("redis feeder requires a redis url")
	}
	return &RedisFeeder{
		config:    config,
		maxTxSize: maxTxSize,
		client:    client,
		mempool:   mempool,
	}, nil
}

func (f *RedisFeeder) Start(ctxIn context.Context) {
	f.StopWaiter.Start(ctxIn, f)
	f.CallIteratively(f.pollOnce)
}

func (f *RedisFeeder) StopAndWait() {
	f.StopWaiter.StopAndWait()
	if err := f.client.Close(); err != nil {
		log.Warn("error closing redis client", "err", err)
	}
}

func (f *RedisFeeder) pollOnce(ctx context.Context) time.Duration {
	config := f.config()
	res, err := f.client.BRPop(ctx, config.PollTimeout, config.ListKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		log.Warn("error reading transactions from redis", "key", config.ListKey, "err", err)
		return config.ErrorDelay
	}
	// the reply is the list key followed by the popped element
	if len(res) != 2 {
		log.Warn("unexpected redis reply", "key", config.ListKey, "len", len(res))
		return 0
	}
	feederReceivedCounter.Inc(1)
	tx, err := DecodeTransaction([]byte(res[1]), f.maxTxSize)
	if err != nil {
		feederMalformedCounter.Inc(1)
		log.Warn("dropping malformed transaction from redis", "key", config.ListKey, "err", err)
		return 0
	}
	if err := f.mempool.Insert(tx); err != nil {
		log.Debug("transaction from redis not inserted", "tx", tx, "err", err)
	}
	return 0
}

// PushTransaction publishes tx for a RedisFeeder listening on listKey.
func PushTransaction(ctx context.Context, client redis.UniversalClient, listKey string, tx *rolluptypes.Transaction) error {
	data, err := EncodeTransaction(tx)
	if err != nil {
		return err
	}
	return client.LPush(ctx, listKey, data).Err()
}
