// Command rtspclient connects to one RTSP endpoint, negotiates the full
// OPTIONS→DESCRIBE→SETUP→PLAY lifecycle, and streams substream statistics
// until interrupted, grounded on cmd/relay/main.go's flag/signal/logging
// scaffolding.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethan/rtsp-engine/pkg/config"
	"github.com/ethan/rtsp-engine/pkg/element"
	"github.com/ethan/rtsp-engine/pkg/logger"
)

func main() {
	fs := flag.NewFlagSet("rtspclient", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	cfgFlags := config.RegisterFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -location rtsp://host/stream [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "RTSP client engine driver\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		logger.PrintUsageExamples()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logConfig, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logger: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.SetDefault(log)

	cfg, err := cfgFlags.ToConfig()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log.Info("configuration loaded", "location", cfg.Location, "retry_strategy", cfg.RetryStrategy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	maxReconnectTries := cfg.MaxReconnectionAttempts
	if maxReconnectTries < 0 {
		maxReconnectTries = 0 // unlimited, per element.Properties.MaxReconnectTries
	}

	el := element.New(element.Properties{
		Location:            cfg.Location,
		UserID:              cfg.UserID,
		UserPW:              cfg.UserPW,
		RetryStrategyName:   string(cfg.RetryStrategy),
		MaxReconnectTries:   maxReconnectTries,
		RacingStrategyName:  string(cfg.ConnectionRacing),
		AdaptiveEnabled:     cfg.AdaptiveLearning,
	}, log.Logger, nil)

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- el.Run(ctx)
	}()
	log.Info("streaming started, press Ctrl+C to stop")

	go func() {
		for sig := range el.Signals() {
			log.Debug("element signal", "kind", sig.Kind)
		}
	}()

	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-runErrCh:
			if err != nil && err != context.Canceled {
				log.Error("element stopped", "error", err)
				os.Exit(1)
			}
			log.Info("graceful shutdown complete")
			return
		case <-statsTicker.C:
			c := el.Counters()
			log.Info("telemetry",
				"connection_attempts", c.ConnectionAttempts,
				"connection_successes", c.ConnectionSuccesses,
				"packets_received", c.PacketsReceived,
				"bytes_received", c.BytesReceived)
		}
	}

	if err := el.Stop(); err != nil {
		log.Error("error during shutdown", "error", err)
		os.Exit(1)
	}
	<-runErrCh
	log.Info("graceful shutdown complete")
}
