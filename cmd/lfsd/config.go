package main

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is read from a TOML file. Empty locations keep everything in
// memory, which is only useful for testing.
type Config struct {
	Port string

	// where items are kept. Must survive restarts for the store to be useful.
	StoreDir string
	// scratch space. May be lost on restart.
	ScratchDir string

	BucketCeiling int
	MaxAttempts   int

	CacheDir  string
	CacheSize int64 // in megabytes. 0 disables the blob cache

	MaxBlobSize int64 // in bytes
	TokenFile   string
	SentryDSN   string

	LogLevel  string
	LogFormat string // "text" or "json"
}

func defaultConfig() Config {
	return Config{
		Port:      "14100",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func loadConfig(fname string) (Config, error) {
	config := defaultConfig()
	if fname == "" {
		return config, nil
	}
	md, err := toml.DecodeFile(fname, &config)
	if err != nil {
		return config, errors.Wrapf(err, "reading config %s", fname)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return config, errors.Errorf("unknown config keys %v", undecoded)
	}
	return config, nil
}

func decodeConfig(data string) (Config, error) {
	config := defaultConfig()
	_, err := toml.Decode(data, &config)
	return config, err
}
