// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	flag "github.com/spf13/pflag"
)

type DBConfig struct {
	Data      string `koanf:"data"`
	DBEngine  string `koanf:"db-engine"`
	Handles   int    `koanf:"handles"`
	Cache     int    `koanf:"cache"`
	Namespace string `koanf:"namespace"`
}

var DBConfigDefault = DBConfig{
	Data:      "",
	DBEngine:  "pebble",
	Handles:   512,
	Cache:     128,
	Namespace: "micro/db/",
}

func DBConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".data", DBConfigDefault.Data, "directory of stored sequencer state, empty keeps everything in memory")
	f.String(prefix+".db-engine", DBConfigDefault.DBEngine, "backing database implementation to use ('leveldb' or 'pebble')")
	f.Int(prefix+".handles", DBConfigDefault.Handles, "number of file descriptor handles to use for the database")
	f.Int(prefix+".cache", DBConfigDefault.Cache, "the capacity(in megabytes) of the data caching")
	f.String(prefix+".namespace", DBConfigDefault.Namespace, "metrics namespace")
}

func (c *DBConfig) Validate() error {
	if c.DBEngine != "pebble" && c.DBEngine != "leveldb" {
		return fmt.Errorf("invalid db-engine %q, valid values are 'leveldb' and 'pebble'", c.DBEngine)
	}
	return nil
}

func OpenDatabase(config *DBConfig, readonly bool) (ethdb.Database, error) {
	if config.Data == "" {
		return rawdb.NewMemoryDatabase(), nil
	}
	return rawdb.Open(rawdb.OpenOptions{
		Type:              config.DBEngine,
		Directory:         config.Data,
		AncientsDirectory: "", // no freezer
		Namespace:         config.Namespace,
		Cache:             config.Cache,
		Handles:           config.Handles,
		ReadOnly:          readonly,
	})
}
