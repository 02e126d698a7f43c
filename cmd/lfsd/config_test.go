package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDecodeConfig(t *testing.T) {
	const data = `
Port = "9000"
StoreDir = "/data/lfs"
BucketCeiling = 50
CacheSize = 100
LogFormat = "json"
`
	config, err := decodeConfig(data)
	if err != nil {
		t.Fatal(err)
	}
	if config.Port != "9000" || config.StoreDir != "/data/lfs" || config.BucketCeiling != 50 {
		t.Errorf("Got %+v", config)
	}
	if config.CacheSize != 100 || config.LogFormat != "json" {
		t.Errorf("Got %+v", config)
	}
	// unset keys keep their defaults
	if config.LogLevel != "info" {
		t.Errorf("Got log level %q, expected info", config.LogLevel)
	}
}

func TestLoadConfig(t *testing.T) {
	config, err := loadConfig("")
	if err != nil || config.Port != "14100" {
		t.Errorf("Got %+v, %v", config, err)
	}

	fname := filepath.Join(t.TempDir(), "lfsd.toml")
	os.WriteFile(fname, []byte("Port = \"1\"\nBogus = 2\n"), 0644)
	if _, err := loadConfig(fname); err == nil {
		t.Errorf("Got no error for unknown key")
	}
	if _, err := loadConfig(fname + ".missing"); err == nil {
		t.Errorf("Got no error for missing file")
	}
}

func TestNewServer(t *testing.T) {
	dir := t.TempDir()
	config := defaultConfig()
	config.StoreDir = filepath.Join(dir, "store")
	config.ScratchDir = filepath.Join(dir, "scratch")
	config.CacheDir = filepath.Join(dir, "cache")
	config.CacheSize = 1
	s, closeVolumes, err := newServer(config)
	if err != nil {
		t.Fatal(err)
	}
	if s.Store == nil || s.Cache == nil {
		t.Errorf("Got %+v", s)
	}
	_, n := s.Store.Bucket()
	if n != 0 {
		t.Errorf("Got %d items in fresh bucket", n)
	}
	if err := closeVolumes(); err != nil {
		t.Errorf("Got %v closing", err)
	}

	// the attribute files are locked while open, so this only works if
	// they were closed
	start := time.Now()
	s, closeVolumes, err = newServer(config)
	if err != nil {
		t.Fatal(err)
	}
	defer closeVolumes()
	if time.Since(start) > 2*time.Second {
		t.Errorf("reopening took %v", time.Since(start))
	}
}

func TestNewServerClosesOnError(t *testing.T) {
	dir := t.TempDir()
	config := defaultConfig()
	config.StoreDir = filepath.Join(dir, "store")
	config.ScratchDir = filepath.Join(dir, "scratch")
	config.TokenFile = filepath.Join(dir, "missing-tokens")
	if _, _, err := newServer(config); err == nil {
		t.Fatal("Got no error for a missing token file")
	}
	config.TokenFile = ""
	s, closeVolumes, err := newServer(config)
	if err != nil {
		t.Fatal(err)
	}
	closeVolumes()
	if s.Store == nil {
		t.Errorf("Got %+v", s)
	}
}
