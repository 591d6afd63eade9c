// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package mempool

import (
	"errors"
	"time"

	flag "github.com/spf13/pflag"
)

type Config struct {
	MaxTxs            int               `koanf:"max-txs"`
	MaxTxSize         int               `koanf:"max-tx-size"`
	RejectedCacheSize int               `koanf:"rejected-cache-size"`
	RedisFeeder       RedisFeederConfig `koanf:"redis-feeder"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	MaxTxs:            100_000,
	MaxTxSize:         128 * 1024,
	RejectedCacheSize: 10_000,
	RedisFeeder:       DefaultRedisFeederConfig,
}

var TestConfig = Config{
	MaxTxs:            1_000,
	MaxTxSize:         128 * 1024,
	RejectedCacheSize: 100,
	RedisFeeder:       TestRedisFeederConfig,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Int(prefix+".max-txs", DefaultConfig.MaxTxs, "maximum number of transactions waiting in the mempool")
	f.Int(prefix+".max-tx-size", DefaultConfig.MaxTxSize, "maximum size of an encoded transaction in bytes")
	f.Int(prefix+".rejected-cache-size", DefaultConfig.RejectedCacheSize, "number of rejected transaction hashes remembered to refuse resubmission")
	RedisFeederConfigAddOptions(prefix+".redis-feeder", f)
}

func (c *Config) Validate() error {
	if c.MaxTxs <= 0 {
		return errors.New("mempool max-txs must be positive")
	}
	if c.MaxTxSize <= 0 {
		return errors.New("mempool max-tx-size must be positive")
	}
	return c.RedisFeeder.Validate()
}

type RedisFeederConfig struct {
	Enable      bool          `koanf:"enable"`
	URL         string        `koanf:"url"`
	ListKey     string        `koanf:"list-key"`
	PollTimeout time.Duration `koanf:"poll-timeout"`
	ErrorDelay  time.Duration `koanf:"error-delay"`
}

type RedisFeederConfigFetcher func() *RedisFeederConfig

var DefaultRedisFeederConfig = RedisFeederConfig{
	Enable:      false,
	URL:         "",
	ListKey:     "micro.mempool.txs",
	PollTimeout: time.Second,
	ErrorDelay:  time.Second,
}

var TestRedisFeederConfig = RedisFeederConfig{
	Enable:      true,
	URL:         "",
	ListKey:     "micro.mempool.txs",
	PollTimeout: time.Millisecond * 100,
	ErrorDelay:  time.Millisecond * 10,
}

func RedisFeederConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultRedisFeederConfig.Enable, "read transactions from a redis list")
	f.String(prefix+".url", DefaultRedisFeederConfig.URL, "redis url, redis:// or redis+sentinel://")
	f.String(prefix+".list-key", DefaultRedisFeederConfig.ListKey, "redis list producers push encoded transactions to")
	f.Duration(prefix+".poll-timeout", DefaultRedisFeederConfig.PollTimeout, "how long a single blocking pop waits")
	f.Duration(prefix+".error-delay", DefaultRedisFeederConfig.ErrorDelay, "delay before retrying after a redis error")
}

func (c *RedisFeederConfig) Validate() error {
	if !c.Enable {
		return nil
	}
	if c.URL == "" {
		return errors.New("redis feeder enabled but no url set")
	}
	if c.ListKey == "" {
		return errors.New("redis feeder list-key must not be empty")
	}
	if c.PollTimeout <= 0 {
		return errors.New("redis feeder poll-timeout must be positive")
	}
	return nil
}
