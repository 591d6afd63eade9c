// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ZKAmoeba-Micro/micro-sub000/cmd/genericconf"
	"github.com/ZKAmoeba-Micro/micro-sub000/cmd/util/confighelpers"
	"github.com/ZKAmoeba-Micro/micro-sub000/sequencer"
)

type SequencerConfig struct {
	Conf          genericconf.ConfConfig          `koanf:"conf" reload:"hot"`
	LogLevel      string                          `koanf:"log-level" reload:"hot"`
	LogType       string                          `koanf:"log-type" reload:"hot"`
	FileLogging   genericconf.FileLoggingConfig   `koanf:"file-logging" reload:"hot"`
	Metrics       bool                            `koanf:"metrics"`
	MetricsServer genericconf.MetricsServerConfig `koanf:"metrics-server"`
	PProf         bool                            `koanf:"pprof"`
	PprofCfg      genericconf.PProf               `koanf:"pprof-cfg"`
	Node          sequencer.Config                `koanf:"node"`
}

var SequencerConfigDefault = SequencerConfig{
	Conf:          genericconf.ConfConfigDefault,
	LogLevel:      "INFO",
	LogType:       "plaintext",
	FileLogging:   genericconf.DefaultFileLoggingConfig,
	Metrics:       false,
	MetricsServer: genericconf.MetricsServerConfigDefault,
	PProf:         false,
	PprofCfg:      genericconf.PProfDefault,
	Node:          sequencer.DefaultConfig,
}

func SequencerConfigAddOptions(f *flag.FlagSet) {
	genericconf.ConfConfigAddOptions("conf", f)
	f.String("log-level", SequencerConfigDefault.LogLevel, "log level, valid values are CRIT, ERROR, WARN, INFO, DEBUG, TRACE")
	f.String("log-type", SequencerConfigDefault.LogType, "log type (plaintext or json)")
	genericconf.FileLoggingConfigAddOptions("file-logging", f)
	f.Bool("metrics", SequencerConfigDefault.Metrics, "enable metrics")
	genericconf.MetricsServerAddOptions("metrics-server", f)
	f.Bool("pprof", SequencerConfigDefault.PProf, "enable pprof")
	genericconf.PProfAddOptions("pprof-cfg", f)
	sequencer.ConfigAddOptions("node", f)
}

func (c *SequencerConfig) Validate() error {
	if _, err := genericconf.ToSlogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogType != "plaintext" && c.LogType != "json" {
		return fmt.Errorf("invalid log-type %q", c.LogType)
	}
	if err := c.FileLogging.Validate(); err != nil {
		return err
	}
	if c.Metrics && c.PProf && c.MetricsServer.Addr == c.PprofCfg.Addr && c.MetricsServer.Port == c.PprofCfg.Port {
		return fmt.Errorf("metrics and pprof cannot be enabled on the same address:port: %s:%d", c.MetricsServer.Addr, c.MetricsServer.Port)
	}
	return c.Node.Validate()
}

func (c *SequencerConfig) CanReload(new *SequencerConfig) error {
	return genericconf.CheckHotReload(c, new)
}

func (c *SequencerConfig) GetReloadInterval() time.Duration {
	return c.Conf.ReloadInterval
}

// ParseSequencer builds the configuration from args. On conf.dump it prints the result and exits.
func ParseSequencer(_ context.Context, args []string) (*SequencerConfig, error) {
	f := flag.NewFlagSet("", flag.ContinueOnError)
	SequencerConfigAddOptions(f)

	k, err := confighelpers.BeginCommonParse(f, args)
	if err != nil {
		return nil, err
	}

	var config SequencerConfig
	if err := confighelpers.EndCommonParse(k, &config); err != nil {
		return nil, err
	}

	if config.Conf.Dump {
		if err := confighelpers.DumpConfig(k, map[string]interface{}{"node.mempool.redis-feeder.url": ""}); err != nil {
			return nil, err
		}
		os.Exit(0)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
