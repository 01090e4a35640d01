package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"solana-stakepool-lab/internal/observability"
	"solana-stakepool-lab/internal/storage"
	chstore "solana-stakepool-lab/internal/storage/clickhouse"
	filestore "solana-stakepool-lab/internal/storage/file"
	"solana-stakepool-lab/internal/storage/migrations"
)

func main() {
	statsDir := flag.String("stats-dir", "stats", "Directory with stats files")
	fromEpoch := flag.Uint64("from-epoch", 0, "First epoch to upload (required)")
	toEpoch := flag.Uint64("to-epoch", 0, "Last epoch to upload (defaults to --from-epoch)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (required)")
	flag.Parse()

	logger := log.New(os.Stderr, "[upload] ", log.LstdFlags)

	if *fromEpoch == 0 {
		logger.Fatal("--from-epoch is required")
	}
	if *toEpoch == 0 {
		*toEpoch = *fromEpoch
	}
	if *toEpoch < *fromEpoch {
		logger.Fatal("--to-epoch must not precede --from-epoch")
	}
	if *clickhouseDSN == "" {
		logger.Fatal("--clickhouse-dsn is required")
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

	statsFiles, err := filestore.NewStatsStore(*statsDir)
	if err != nil {
		logger.Fatalf("open stats store: %v", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
	if err != nil {
		logger.Fatalf("run clickhouse migrations: %v", err)
	}
	defer conn.Close()

	timeseries := chstore.NewPoolStatsStore(conn)

	var uploaded, skipped int
	for epoch := *fromEpoch; epoch <= *toEpoch; epoch++ {
		if ctx.Err() != nil {
			logger.Fatalf("interrupted at epoch %d", epoch)
		}

		collection, err := statsFiles.GetByEpoch(ctx, epoch)
		if errors.Is(err, storage.ErrNotFound) {
			logger.Printf("epoch %d: no stats file, skipping", epoch)
			skipped++
			continue
		}
		if err != nil {
			logger.Fatalf("epoch %d: read stats: %v", epoch, err)
		}

		err = timeseries.InsertBulk(ctx, epoch, collection.StakePools)
		if errors.Is(err, storage.ErrDuplicateKey) {
			logger.Printf("epoch %d: already uploaded, skipping", epoch)
			skipped++
			continue
		}
		if err != nil {
			observability.DefaultMetrics.StoreErrors.WithLabelValues("clickhouse").Inc()
			logger.Fatalf("epoch %d: upload: %v", epoch, err)
		}

		observability.DefaultMetrics.StoreWrites.WithLabelValues("clickhouse").Inc()
		logger.Printf("epoch %d: uploaded %d pool rows", epoch, len(collection.StakePools))
		uploaded++
	}

	manifest, err := statsFiles.WriteManifest(ctx)
	if err != nil {
		logger.Fatalf("write manifest: %v", err)
	}
	if manifest.Latest != nil {
		logger.Printf("manifest: %d epochs, latest %d", len(manifest.Epochs), *manifest.Latest)
	}

	logger.Printf("done: %d epochs uploaded, %d skipped", uploaded, skipped)
}
