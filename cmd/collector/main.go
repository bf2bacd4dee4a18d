package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dfilabs/pulse-data/internal/api"
	"github.com/dfilabs/pulse-data/internal/bulk"
	"github.com/dfilabs/pulse-data/internal/config"
	"github.com/dfilabs/pulse-data/internal/database"
	"github.com/dfilabs/pulse-data/internal/delist"
	"github.com/dfilabs/pulse-data/internal/metrics"
	"github.com/dfilabs/pulse-data/internal/model"
	"github.com/dfilabs/pulse-data/internal/reconcile"
	"github.com/dfilabs/pulse-data/internal/store"
	"github.com/dfilabs/pulse-data/internal/version"
)

func main() {
	os.Exit(run())
}

// run carries the exit code back to main so deferred cleanup still fires.
func run() int {
	configPath := flag.String("config", "configs/collector.local.yaml", "path to config file")
	datasets := flag.String("datasets", "futures,spot,enhanced,basis,funding,premium", "comma-separated dataset list (futures,spot,enhanced,basis,funding,premium,factors,metrics)")
	symbolList := flag.String("symbols", "", "comma-separated symbol override (default: config or discovery)")
	targetDate := flag.String("target", "", "collection target date YYYY-MM-DD (default: yesterday)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return 0
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	runID := uuid.New()
	logger.Info("starting collector",
		"version", version.Version,
		"commit", version.Commit,
		"run_id", runID,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}

	target, err := resolveTarget(*targetDate)
	if err != nil {
		logger.Error("bad target date", "error", err)
		return 1
	}
	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"storage_root", cfg.Storage.Root,
		"target", target,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics endpoint
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New("")
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	// Storage: local always, remote mirror when configured
	local := store.NewLocal(cfg.Storage.Root)
	var persist store.Store = local
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"database", cfg.Database.Postgres.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return 1
		}
		defer pool.Close()

		remote := store.NewRemote(pool, runID, logger)
		if err := remote.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			return 1
		}
		persist = store.NewDual(local, remote, logger)
		logger.Info("database connected")
	}

	// Delisting policy
	records, err := delist.ParseRecords(cfg.Delistings)
	if err != nil {
		logger.Error("bad delisting records", "error", err)
		return 1
	}
	policy := delist.NewPolicy(records)

	// Provider clients
	binance := api.NewBinanceClient(cfg.Binance.FuturesURL, cfg.Binance.SpotURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Binance.Timeout),
		api.WithRetries(cfg.Binance.MaxRetries, time.Second),
		api.WithMetrics(m),
	)
	glassnode := api.NewGlassnodeClient(cfg.Glassnode.URL, cfg.Glassnode.APIKey,
		api.WithLogger(logger), api.WithMetrics(m))
	unravel := api.NewUnravelClient(cfg.Unravel.URL, cfg.Unravel.APIKey,
		api.WithLogger(logger), api.WithMetrics(m))

	// Symbol universe: flag override, then config, then discovery
	symbols := cfg.Collector.Symbols
	if *symbolList != "" {
		symbols = strings.Split(*symbolList, ",")
	}
	if len(symbols) == 0 {
		symbols, err = binance.FutureSymbols(ctx, cfg.Collector.Quote)
		if err != nil {
			logger.Error("symbol discovery failed", "error", err)
			return 1
		}
		sort.Strings(symbols)
		logger.Info("discovered symbols", "quote", cfg.Collector.Quote, "count", len(symbols))
	}

	reconciler := reconcile.New(persist,
		reconcile.WithDelistings(policy),
		reconcile.WithLogger(logger),
		reconcile.WithMetrics(m),
	)
	runner := bulk.NewRunner(cfg.Collector.Concurrency,
		bulk.WithLogger(logger), bulk.WithMetrics(m))

	jobs := buildJobs(*datasets, binance, glassnode, unravel)
	if len(jobs) == 0 {
		logger.Error("no datasets selected", "datasets", *datasets)
		return 1
	}

	exitCode := 0
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			logger.Warn("collection interrupted", "dataset", job.name)
			exitCode = 1
		default:
		}
		if exitCode != 0 {
			break
		}

		logger.Info("collecting dataset", "dataset", job.name, "symbols", len(symbols))
		results := runner.Run(ctx, job.symbols(symbols), func(ctx context.Context, symbol string) (*model.Table, error) {
			return reconciler.Reconcile(ctx, job.dataset, symbol, job.fetcher, target)
		})
		if !report(logger, job.name, results) {
			exitCode = 1
		}
	}

	logger.Info("collector finished", "run_id", runID)
	return exitCode
}

// job binds a dataset to its fetcher and symbol universe.
type job struct {
	name    string
	dataset reconcile.Dataset
	fetcher reconcile.Fetcher
	symbols func(universe []string) []string
}

// buildJobs assembles the selected dataset jobs in collection order.
func buildJobs(selected string, binance *api.BinanceClient, glassnode *api.GlassnodeClient, unravel *api.UnravelClient) []job {
	futuresFetch := reconcile.FetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) (*model.Table, error) {
		return binance.KlineRange(ctx, api.MarketFutures, symbol, time.Minute, start, end)
	})
	spotFetch := reconcile.FetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) (*model.Table, error) {
		return binance.KlineRange(ctx, api.MarketSpot, symbol, time.Minute, start, end)
	})

	all := map[string]job{
		"futures": {
			name:    "futures",
			dataset: reconcile.FuturePrices(),
			fetcher: futuresFetch,
			symbols: identity,
		},
		"spot": {
			name:    "spot",
			dataset: reconcile.SpotPrices(),
			fetcher: spotFetch,
			symbols: identity,
		},
		"enhanced": {
			name:    "enhanced",
			dataset: reconcile.EnhancedPrices(),
			fetcher: reconcile.EnhancedFetcher(futuresFetch, spotFetch),
			symbols: identity,
		},
		"basis": {
			name:    "basis",
			dataset: reconcile.Basis(),
			fetcher: reconcile.BasisFetcher(futuresFetch, spotFetch),
			symbols: identity,
		},
		"funding": {
			name:    "funding",
			dataset: reconcile.FundingRates(),
			fetcher: reconcile.FetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) (*model.Table, error) {
				return binance.FundingRange(ctx, symbol, start, end)
			}),
			symbols: identity,
		},
		"premium": {
			name:    "premium",
			dataset: reconcile.PremiumIndex(),
			fetcher: reconcile.FetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) (*model.Table, error) {
				return binance.PremiumIndexRange(ctx, symbol, time.Minute, start, end)
			}),
			symbols: identity,
		},
		"factors": {
			name:    "factors",
			dataset: reconcile.Factors(),
			fetcher: reconcile.FetcherFunc(func(ctx context.Context, factorID string, start, end time.Time) (*model.Table, error) {
				return unravel.FactorRange(ctx, factorID, nil, start, end)
			}),
			// Factor datasets key on the factor model, not on symbols.
			symbols: func([]string) []string { return []string{"altair", "momentum", "carry"} },
		},
		"metrics": {
			name:    "metrics",
			dataset: reconcile.Metrics(),
			fetcher: reconcile.FetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) (*model.Table, error) {
				return glassnode.MetricRange(ctx, "market", "price_usd_close", symbol, 24*time.Hour, start, end)
			}),
			symbols: identity,
		},
	}

	var jobs []job
	for _, name := range strings.Split(selected, ",") {
		name = strings.TrimSpace(name)
		if j, ok := all[name]; ok {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

func identity(universe []string) []string { return universe }

// report logs per-dataset success/failure counts, naming the symbols with
// no data at all. Returns false when any symbol failed.
func report(logger *slog.Logger, dataset string, results map[string]bulk.Result) bool {
	var succeeded, failed int
	var noData []string
	for symbol, res := range results {
		if res.Err == nil {
			succeeded++
			continue
		}
		failed++
		if errors.Is(res.Err, model.ErrNoData) {
			noData = append(noData, symbol)
		}
	}
	sort.Strings(noData)

	logger.Info("dataset collected",
		"dataset", dataset,
		"succeeded", succeeded,
		"failed", failed,
	)
	if len(noData) > 0 {
		logger.Warn("symbols with no data", "dataset", dataset, "symbols", strings.Join(noData, ","))
	}
	return failed == 0
}

// resolveTarget parses -target, defaulting to yesterday 23:59:00 UTC.
func resolveTarget(date string) (time.Time, error) {
	if date == "" {
		return reconcile.DefaultTarget(time.Now()), nil
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 0, 0, time.UTC), nil
}
