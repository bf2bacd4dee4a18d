package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dfilabs/pulse-data/internal/config"
	"github.com/dfilabs/pulse-data/internal/delist"
	"github.com/dfilabs/pulse-data/internal/live"
	"github.com/dfilabs/pulse-data/internal/metrics"
	"github.com/dfilabs/pulse-data/internal/model"
	"github.com/dfilabs/pulse-data/internal/reconcile"
	"github.com/dfilabs/pulse-data/internal/store"
	"github.com/dfilabs/pulse-data/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/collector.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting livefeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	symbols := cfg.Live.Symbols
	if len(symbols) == 0 {
		symbols = cfg.Collector.Symbols
	}
	if len(symbols) == 0 {
		logger.Error("no symbols configured for the live feed")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	local := store.NewLocal(cfg.Storage.Root)

	// Availability pass: log what is already persisted, no network.
	records, err := delist.ParseRecords(cfg.Delistings)
	if err != nil {
		logger.Error("bad delisting records", "error", err)
		os.Exit(1)
	}
	reconciler := reconcile.New(local,
		reconcile.WithDelistings(delist.NewPolicy(records)),
		reconcile.WithLogger(logger),
	)
	target := reconcile.DefaultTarget(time.Now())
	for _, symbol := range symbols {
		table, err := reconciler.Available(ctx, reconcile.FuturePrices(), symbol, target)
		switch {
		case errors.Is(err, model.ErrNoData):
			logger.Warn("no persisted history", "symbol", symbol)
		case err != nil:
			logger.Error("availability check failed", "symbol", symbol, "error", err)
		default:
			last, _ := table.Last()
			logger.Info("persisted history available", "symbol", symbol, "rows", table.Len(), "last", last)
		}
	}

	m := metrics.New("")
	feedCfg := live.DefaultFeedConfig(symbols)
	feedCfg.BufferSize = cfg.Live.BufferSize
	feed := live.NewFeed(feedCfg, logger, m)

	if err := feed.Start(ctx); err != nil {
		logger.Error("failed to start feed", "error", err)
		os.Exit(1)
	}

	recorder := live.NewRecorder(local, model.KindFuturePrice, cfg.Live.FlushInterval, logger)
	done := make(chan struct{})
	go func() {
		recorder.Run(ctx, feed.Candles())
		close(done)
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	feed.Stop(shutdownCtx)

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("recorder drain timeout")
	}

	logger.Info("livefeed stopped")
}
