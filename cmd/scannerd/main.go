// Package main provides the long-running scanner daemon. Scans run on
// a cron schedule and Prometheus metrics are served over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"nft-tracker/internal/config"
	"nft-tracker/internal/gitstore"
	"nft-tracker/internal/graph"
	"nft-tracker/internal/ingestion"
	"nft-tracker/internal/metadata"
	"nft-tracker/internal/metadata/ethcall"
	"nft-tracker/internal/observability"
	"nft-tracker/internal/pipeline"
	"nft-tracker/internal/rates"
	"nft-tracker/internal/scheduler"
	"nft-tracker/internal/storage"
	"nft-tracker/internal/storage/clickhouse"
	"nft-tracker/internal/storage/migrations"
	"nft-tracker/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	runOnStart := flag.Bool("run-on-start", false, "Run one scan immediately before scheduling")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared components. The rate cache is per-run, so the runner below
	// rebuilds the converter chain on every tick.
	graphClient := graph.NewClient(cfg.Graph.Endpoint)
	rateSource := rates.NewHTTPSource(cfg.Rates.Endpoint)
	chain := ethcall.NewClient(cfg.Metadata.RPCEndpoint)
	resolver := metadata.NewResolver(chain, cfg.Metadata.CounterfactualContract, cfg.Metadata.Gateway,
		metadata.WithLogger(logger))

	storeOpts := []gitstore.Option{}
	if cfg.Store.BaseURL != "" {
		storeOpts = append(storeOpts, gitstore.WithBaseURL(cfg.Store.BaseURL))
	}
	store := gitstore.NewClient(cfg.Store.Repo, cfg.Store.Branch, cfg.Store.Token, storeOpts...)

	metrics := observability.NewMetrics("")

	var runStore storage.RunStore
	if dsn := cfg.Database.PostgresDSN; dsn != "" {
		pool, err := postgres.NewPool(ctx, dsn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			fmt.Fprintf(os.Stderr, "Error migrating postgres: %v\n", err)
			os.Exit(1)
		}
		runStore = postgres.NewRunStore(pool)
	}

	var sink storage.TransactionSink
	if dsn := cfg.Database.ClickhouseDSN; dsn != "" {
		conn, err := clickhouse.NewConn(ctx, dsn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to clickhouse: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			fmt.Fprintf(os.Stderr, "Error migrating clickhouse: %v\n", err)
			os.Exit(1)
		}
		sink = clickhouse.NewTransactionSink(conn)
	}

	runner := scheduler.RunnerFunc(func(ctx context.Context) (*pipeline.Result, error) {
		converter := rates.NewConverter(rateSource, rates.NewCache(), logger)
		normalizer := ingestion.NewNormalizer(converter, cfg.Pipeline.PrimaryFeePercent)
		ingestor := ingestion.NewIngestor(graphClient, normalizer, cfg.Graph.PageSize, logger)

		scanner, err := pipeline.NewScanner(pipeline.Options{
			Store:             store,
			Ingestor:          ingestor,
			Resolver:          resolver,
			RunStore:          runStore,
			Sink:              sink,
			Metrics:           metrics,
			Logger:            logger,
			DailyRetention:    cfg.Pipeline.DailyRetentionMinutes,
			WeeklyRetention:   cfg.Pipeline.WeeklyRetentionMinutes,
			DailyGranularity:  cfg.Pipeline.DailyGranularityMinutes,
			WeeklyGranularity: cfg.Pipeline.WeeklyGranularityMinutes,
			TransactionsLimit: cfg.Pipeline.TransactionsLimit,
			PopularTradeCount: cfg.Pipeline.PopularTradeCount,
		})
		if err != nil {
			return nil, err
		}
		return scanner.Run(ctx)
	})

	sched := scheduler.New(ctx, runner, logger)
	if err := sched.Register(cfg.Schedule.ScanCron); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering schedule: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		logger.Printf("[INFO] metrics listening on %s", cfg.Metrics.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("[ERROR] metrics server: %v", err)
		}
	}()

	if *runOnStart {
		sched.RunNow()
	}
	sched.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Printf("[INFO] received signal %v, shutting down", sig)

	sched.Stop()
	srv.Shutdown(context.Background())
	cancel()
}
