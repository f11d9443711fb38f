// Package main provides the one-shot scanner entry point.
// Executes: ingest → resample → metadata → commit, then exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"nft-tracker/internal/config"
	"nft-tracker/internal/domain"
	"nft-tracker/internal/gitstore"
	"nft-tracker/internal/graph"
	"nft-tracker/internal/ingestion"
	"nft-tracker/internal/metadata"
	"nft-tracker/internal/metadata/ethcall"
	"nft-tracker/internal/pipeline"
	"nft-tracker/internal/rates"
	"nft-tracker/internal/storage"
	"nft-tracker/internal/storage/clickhouse"
	"nft-tracker/internal/storage/migrations"
	"nft-tracker/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
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

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling scan...\n", sig)
		cancel()
	}()

	scanner, cleanup, err := buildScanner(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building scanner: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	res, err := scanner.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Scan completed:\n")
	fmt.Printf("  Status: %s\n", res.Status)
	fmt.Printf("  Transactions: %d\n", res.TransactionsIngested)
	if res.Status == domain.RunStatusCompleted {
		fmt.Printf("  Checkpoint: %s\n", res.Checkpoint)
		fmt.Printf("  Assets tracked: %d\n", res.AssetsTracked)
		fmt.Printf("  Metadata resolved: %d (failed %d)\n", res.MetadataResolved, res.MetadataFailed)
		fmt.Printf("  24h volume: %.4f ETH over %d trades\n", res.Volume24h, res.TradeCount24h)
	}
}

// buildScanner wires the pipeline from config. The returned cleanup
// closes any database connections that were opened.
func buildScanner(ctx context.Context, cfg *config.Config, logger *log.Logger) (*pipeline.Scanner, func(), error) {
	graphClient := graph.NewClient(cfg.Graph.Endpoint)
	converter := rates.NewConverter(rates.NewHTTPSource(cfg.Rates.Endpoint), rates.NewCache(), logger)
	normalizer := ingestion.NewNormalizer(converter, cfg.Pipeline.PrimaryFeePercent)
	ingestor := ingestion.NewIngestor(graphClient, normalizer, cfg.Graph.PageSize, logger)

	chain := ethcall.NewClient(cfg.Metadata.RPCEndpoint)
	resolver := metadata.NewResolver(chain, cfg.Metadata.CounterfactualContract, cfg.Metadata.Gateway,
		metadata.WithLogger(logger))

	storeOpts := []gitstore.Option{}
	if cfg.Store.BaseURL != "" {
		storeOpts = append(storeOpts, gitstore.WithBaseURL(cfg.Store.BaseURL))
	}
	store := gitstore.NewClient(cfg.Store.Repo, cfg.Store.Branch, cfg.Store.Token, storeOpts...)

	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var runStore storage.RunStore
	if dsn := cfg.Database.PostgresDSN; dsn != "" {
		pool, err := postgres.NewPool(ctx, dsn)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, cleanup, fmt.Errorf("migrate postgres: %w", err)
		}
		runStore = postgres.NewRunStore(pool)
	}

	var sink storage.TransactionSink
	if dsn := cfg.Database.ClickhouseDSN; dsn != "" {
		conn, err := clickhouse.NewConn(ctx, dsn)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect clickhouse: %w", err)
		}
		cleanups = append(cleanups, func() { conn.Close() })
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			return nil, cleanup, fmt.Errorf("migrate clickhouse: %w", err)
		}
		sink = clickhouse.NewTransactionSink(conn)
	}

	scanner, err := pipeline.NewScanner(pipeline.Options{
		Store:             store,
		Ingestor:          ingestor,
		Resolver:          resolver,
		RunStore:          runStore,
		Sink:              sink,
		Logger:            logger,
		DailyRetention:    cfg.Pipeline.DailyRetentionMinutes,
		WeeklyRetention:   cfg.Pipeline.WeeklyRetentionMinutes,
		DailyGranularity:  cfg.Pipeline.DailyGranularityMinutes,
		WeeklyGranularity: cfg.Pipeline.WeeklyGranularityMinutes,
		TransactionsLimit: cfg.Pipeline.TransactionsLimit,
		PopularTradeCount: cfg.Pipeline.PopularTradeCount,
	})
	if err != nil {
		return nil, cleanup, err
	}
	return scanner, cleanup, nil
}
