// ABOUTME: Entry point for the VoiceDeck audio engine
// ABOUTME: Loads config, assembles the app, and runs until shutdown
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/VoiceDeck/voicedeck-go/internal/app"
	"github.com/VoiceDeck/voicedeck-go/internal/config"
	"github.com/VoiceDeck/voicedeck-go/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to YAML config file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed", "err", err)
	}

	logger := newLogger(cfg.Logging)
	logger.Info("starting", "product", version.Product, "version", version.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", "err", err)
	}
	a.Run(ctx)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if err := a.Close(); err != nil {
		logger.Error("shutdown error", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *log.Logger {
	opts := log.Options{ReportTimestamp: true}
	if cfg.Format == "json" {
		opts.Formatter = log.JSONFormatter
	}
	logger := log.NewWithOptions(os.Stderr, opts)
	if level, err := log.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}
