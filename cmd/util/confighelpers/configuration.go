// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package confighelpers

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
)

var ErrVersion = errors.New("version requested")

func loadEnvironmentVariables(k *koanf.Koanf) error {
	envPrefix := k.String("conf.env-prefix")
	if len(envPrefix) != 0 {
		return k.Load(env.Provider(envPrefix+"_", ".", func(s string) string {
			// FOO__BAR -> foo-bar to handle dash in config names
			s = strings.ReplaceAll(strings.ToLower(
				strings.TrimPrefix(s, envPrefix+"_")), "__", "-")
			return strings.ReplaceAll(s, "_", ".")
		}), nil)
	}
	return nil
}

func applyOverrides(f *flag.FlagSet, k *koanf.Koanf) error {
	if err := loadEnvironmentVariables(k); err != nil {
		return errors.Wrap(err, "error loading environment variables")
	}
	// Command line options take precedence over everything else
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return fmt.Errorf("error loading command line config: %w", err)
	}
	return nil
}

// BeginCommonParse loads flag defaults, then every config file, the JSON config string,
// environment variables and finally the command line flags, each one overriding the previous.
func BeginCommonParse(f *flag.FlagSet, args []string) (*koanf.Koanf, error) {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			return nil, ErrVersion
		}
	}
	if err := f.Parse(args); err != nil {
		return nil, err
	}
	if f.NArg() != 0 {
		return nil, fmt.Errorf("unexpected parameters: %v", f.Args())
	}

	var k = koanf.New(".")

	// Load defaults from command line defaults, which will be overridden by values from files
	if err := k.Load(posflag.Provider(f, ".", nil), nil); err != nil {
		return nil, errors.Wrap(err, "error loading defaults")
	}
	if err := applyOverrides(f, k); err != nil {
		return nil, err
	}

	for _, configFile := range k.Strings("conf.file") {
		if err := k.Load(file.Provider(configFile), json.Parser()); err != nil {
			return nil, errors.Wrapf(err, "error loading local config file %v", configFile)
		}
	}
	if configString := k.String("conf.string"); configString != "" {
		if err := k.Load(rawbytes.Provider([]byte(configString)), json.Parser()); err != nil {
			return nil, errors.Wrap(err, "error loading config string")
		}
	}

	// Files may not override the command line
	if err := applyOverrides(f, k); err != nil {
		return nil, err
	}
	return k, nil
}

// EndCommonParse decodes the merged configuration into config. Unknown keys are an error.
func EndCommonParse(k *koanf.Koanf, config interface{}) error {
	decoderConfig := mapstructure.DecoderConfig{
		ErrorUnused: true,

		// Default values
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		Metadata:         nil,
		Result:           config,
		WeaklyTypedInput: true,
	}
	return k.UnmarshalWithConf("", config, koanf.UnmarshalConf{DecoderConfig: &decoderConfig})
}

// DumpConfig prints the active configuration as JSON, leaving out the given keys.
func DumpConfig(k *koanf.Koanf, extraOverrideFields map[string]interface{}) error {
	overrides := map[string]interface{}{
		"conf.dump": false,
	}
	for key, value := range extraOverrideFields {
		overrides[key] = value
	}
	if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
		return errors.Wrap(err, "error removing extra parameters before dump")
	}
	c, err := k.Marshal(json.Parser())
	if err != nil {
		return errors.Wrap(err, "unable to marshal config file to JSON")
	}
	fmt.Fprintln(os.Stdout, string(c))
	return nil
}

func PrintErrorAndExit(err error, usage func(string)) {
	if err != nil && errors.Is(err, flag.ErrHelp) {
		usage(os.Args[0])
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "%s\n", err.Error())
	usage(os.Args[0])
	os.Exit(1)
}
