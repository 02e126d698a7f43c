// Command lfsd serves a Labelled Object Store over HTTP.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	raven "github.com/getsentry/raven-go"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/lfstore"
	"github.com/ndlib/lfstore/blobcache"
	"github.com/ndlib/lfstore/fsys"
	"github.com/ndlib/lfstore/server"
)

func main() {
	var configFile = flag.String("config", "", "path to the TOML config file")
	flag.Parse()

	config, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalln(err)
	}
	if err := setupLogging(config); err != nil {
		log.Fatalln(err)
	}
	if config.SentryDSN != "" {
		raven.SetDSN(config.SentryDSN)
	}

	s, closeVolumes, err := newServer(config)
	if err != nil {
		log.Fatalln(err)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("Received signal, stopping")
		s.Stop()
	}()

	err = s.Run()
	if cerr := closeVolumes(); cerr != nil {
		log.WithError(cerr).Errorln("closing volumes")
	}
	if err != nil {
		log.Fatalln(err)
	}
}

func setupLogging(config Config) error {
	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if config.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}

// newServer opens the volumes and store named by config. The returned
// function closes the volumes' attribute tables; call it once the server
// has stopped. On error everything opened so far is already closed.
func newServer(config Config) (_ *server.RESTServer, _ func() error, err error) {
	var closers []func() error
	closeAll := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		closers = nil
		return first
	}
	defer func() {
		if err != nil {
			closeAll()
		}
	}()
	open := func(location string, typ fsys.Type) (*fsys.Volume, error) {
		v, closer, err := openVolume(location, typ)
		if err != nil {
			return nil, err
		}
		closers = append(closers, closer)
		return v, nil
	}

	synced, err := open(config.StoreDir, fsys.Synced)
	if err != nil {
		return nil, nil, err
	}
	local, err := open(config.ScratchDir, fsys.Local)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Using store %q scratch %q", config.StoreDir, config.ScratchDir)

	opts := &lfstore.Options{
		BucketCeiling: config.BucketCeiling,
		MaxAttempts:   config.MaxAttempts,
	}
	var lru *blobcache.LRU
	if config.CacheSize > 0 {
		cachefs, err := open(config.CacheDir, fsys.Local)
		if err != nil {
			return nil, nil, err
		}
		lru = blobcache.NewLRU(cachefs, config.CacheSize*1000000)
		if err := lru.Scan(); err != nil {
			log.WithError(err).Warnln("reading cache contents")
		}
		opts.Cache = lru
		log.Printf("Using cache %q size %d MB", config.CacheDir, config.CacheSize)
	}
	store, err := lfstore.Open(synced, local, opts)
	if err != nil {
		return nil, nil, err
	}

	var validator server.TokenDecoder
	if config.TokenFile != "" {
		validator, err = server.NewListDecoderFile(config.TokenFile)
		if err != nil {
			return nil, nil, err
		}
	}
	return &server.RESTServer{
		PortNumber:  config.Port,
		Store:       store,
		Cache:       lru,
		Validator:   validator,
		MaxBlobSize: config.MaxBlobSize,
		Registry:    prometheus.NewRegistry(),
	}, closeAll, nil
}
