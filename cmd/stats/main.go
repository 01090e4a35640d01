package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-stakepool-lab/internal/observability"
	"solana-stakepool-lab/internal/provider"
	"solana-stakepool-lab/internal/solana"
	"solana-stakepool-lab/internal/stats"
	filestore "solana-stakepool-lab/internal/storage/file"
	"solana-stakepool-lab/internal/storage/migrations"
	pgstore "solana-stakepool-lab/internal/storage/postgres"
)

func main() {
	checkpointDir := flag.String("checkpoint-dir", "checkpoints", "Directory with checkpoint files")
	outDir := flag.String("out-dir", "stats", "Directory for stats files")
	epoch := flag.Uint64("epoch", 0, "Epoch to compute statistics for (required)")
	rpcEndpoint := flag.String("rpc-endpoint", "", "RPC endpoint for the live price fallback (defaults to RPC_ENDPOINT env)")
	postgresDSN := flag.String("postgres-dsn", "", "Also persist the collection to PostgreSQL (optional)")
	flag.Parse()

	logger := log.New(os.Stderr, "[stats] ", log.LstdFlags)

	if *epoch == 0 {
		logger.Fatal("--epoch is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	checkpoints, err := filestore.NewCheckpointStore(*checkpointDir)
	if err != nil {
		logger.Fatalf("open checkpoint store: %v", err)
	}

	var fetcher provider.AccountFetcher
	endpoint := *rpcEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("RPC_ENDPOINT")
	}
	if endpoint != "" {
		fetcher = solana.NewSource(solana.NewHTTPClient(endpoint))
	} else {
		logger.Print("no RPC endpoint, live price fallback disabled")
	}

	started := time.Now()
	collection, err := stats.Generate(ctx, checkpoints, *epoch, stats.Options{LiveFetcher: fetcher})
	if err != nil {
		observability.DefaultMetrics.StatsRunsTotal.WithLabelValues("error").Inc()
		logger.Fatalf("compute stats: %v", err)
	}
	observability.DefaultMetrics.StatsRunsTotal.WithLabelValues("ok").Inc()
	observability.DefaultMetrics.StatsDuration.Observe(time.Since(started).Seconds())

	store, err := filestore.NewStatsStore(*outDir)
	if err != nil {
		logger.Fatalf("open stats store: %v", err)
	}
	if err := store.Insert(ctx, collection); err != nil {
		logger.Fatalf("store stats: %v", err)
	}
	logger.Printf("epoch %d stats: %d pools -> %s", collection.Epoch, len(collection.StakePools), store.Path(collection.Epoch))

	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("run postgres migrations: %v", err)
		}
		if err := pgstore.NewEpochStatsStore(pool).Insert(ctx, collection); err != nil {
			logger.Fatalf("store stats in postgres: %v", err)
		}
		logger.Printf("epoch %d stats persisted to postgres", collection.Epoch)
	}
}
