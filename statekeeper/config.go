// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package statekeeper

import (
	"errors"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ZKAmoeba-Micro/micro-sub000/statekeeper/sealcriteria"
)

type Config struct {
	Enable           bool                `koanf:"enable"`
	PollWaitDuration time.Duration       `koanf:"poll-wait-duration"`
	Seal             sealcriteria.Config `koanf:"seal"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	Enable:           true,
	PollWaitDuration: time.Second,
	Seal:             sealcriteria.DefaultConfig,
}

var TestConfig = Config{
	Enable:           true,
	PollWaitDuration: time.Millisecond * 10,
	Seal:             sealcriteria.TestConfig,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultConfig.Enable, "run the state keeper")
	f.Duration(prefix+".poll-wait-duration", DefaultConfig.PollWaitDuration, "maximum time to block on a single wait for a transaction or new block parameters")
	sealcriteria.ConfigAddOptions(prefix+".seal", f)
}

func (c *Config) Validate() error {
	if c.PollWaitDuration <= 0 {
		return errors.New("state keeper poll-wait-duration must be positive")
	}
	return c.Seal.Validate()
}
