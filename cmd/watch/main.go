package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-stakepool-lab/internal/checkpoint"
	"solana-stakepool-lab/internal/ledger"
	"solana-stakepool-lab/internal/observability"
	"solana-stakepool-lab/internal/solana"
	"solana-stakepool-lab/internal/stats"
	"solana-stakepool-lab/internal/storage"
	filestore "solana-stakepool-lab/internal/storage/file"
)

func main() {
	rpcEndpoint := flag.String("rpc-endpoint", "", "Solana RPC endpoint (defaults to RPC_ENDPOINT env)")
	wsEndpoint := flag.String("ws-endpoint", "", "Solana WebSocket endpoint (defaults to WS_ENDPOINT env)")
	checkpointDir := flag.String("checkpoint-dir", "checkpoints", "Directory for checkpoint files")
	statsDir := flag.String("stats-dir", "stats", "Directory for stats files")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	workers := flag.Int("workers", 4, "Concurrent pool builds")
	boundaryLag := flag.Uint64("boundary-lag-slots", 32, "Slots to wait into a new epoch before extracting")
	flag.Parse()

	logger := log.New(os.Stderr, "[watch] ", log.LstdFlags)

	rpcURL := *rpcEndpoint
	if rpcURL == "" {
		rpcURL = os.Getenv("RPC_ENDPOINT")
	}
	if rpcURL == "" {
		logger.Fatal("--rpc-endpoint (or RPC_ENDPOINT) is required")
	}
	wsURL := *wsEndpoint
	if wsURL == "" {
		wsURL = os.Getenv("WS_ENDPOINT")
	}
	if wsURL == "" {
		logger.Fatal("--ws-endpoint (or WS_ENDPOINT) is required")
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

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		logger.Printf("metrics on %s/metrics", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Printf("metrics server: %v", err)
		}
	}()

	source := solana.NewSource(solana.NewHTTPClient(rpcURL))

	schedule, err := source.EpochSchedule(ctx)
	if err != nil {
		logger.Fatalf("epoch schedule: %v", err)
	}

	ec, err := source.EpochContext(ctx)
	if err != nil {
		logger.Fatalf("epoch context: %v", err)
	}
	lastEpoch := ec.Epoch
	logger.Printf("watching from epoch %d (slot %d)", ec.Epoch, ec.Slot)

	ws, err := solana.NewWSClient(ctx, wsURL, nil)
	if err != nil {
		logger.Fatalf("websocket connect: %v", err)
	}
	defer ws.Close()

	slots, err := ws.SubscribeSlots(ctx)
	if err != nil {
		logger.Fatalf("subscribe slots: %v", err)
	}

	checkpoints, err := filestore.NewCheckpointStore(*checkpointDir)
	if err != nil {
		logger.Fatalf("open checkpoint store: %v", err)
	}
	statsFiles, err := filestore.NewStatsStore(*statsDir)
	if err != nil {
		logger.Fatalf("open stats store: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Print("stopped")
			return
		case notif, ok := <-slots:
			if !ok {
				logger.Fatal("slot subscription closed")
			}

			epoch := epochForSlot(schedule, notif.Slot)
			if epoch <= lastEpoch {
				continue
			}
			// Let the boundary settle so rewards and pool updates land.
			if notif.Slot < schedule.FirstSlot(epoch)+*boundaryLag {
				continue
			}

			logger.Printf("epoch boundary: %d -> %d at slot %d", lastEpoch, epoch, notif.Slot)
			if err := runPipeline(ctx, source, checkpoints, statsFiles, epoch, *workers, logger); err != nil {
				logger.Printf("epoch %d pipeline: %v", epoch, err)
				continue
			}
			lastEpoch = epoch
		}
	}
}

// epochForSlot maps a slot to its epoch under the cluster schedule.
func epochForSlot(s ledger.EpochSchedule, slot uint64) uint64 {
	if slot >= s.FirstNormalSlot {
		return s.FirstNormalEpoch + (slot-s.FirstNormalSlot)/s.SlotsPerEpoch
	}
	var epoch uint64
	for s.FirstSlot(epoch+1) <= slot {
		epoch++
	}
	return epoch
}

// runPipeline extracts the new epoch's checkpoint and recomputes the prior
// epoch's statistics, which now have a next-epoch neighbor.
func runPipeline(ctx context.Context, source *solana.Source, checkpoints *filestore.CheckpointStore, statsFiles *filestore.StatsStore, epoch uint64, workers int, logger *log.Logger) error {
	epochDuration, err := ledger.EpochDuration(ctx, source, epoch-1)
	if err != nil {
		logger.Printf("epoch %d duration unavailable: %v", epoch-1, err)
	}

	started := time.Now()
	result, err := checkpoint.Generate(ctx, source, source, nil, checkpoint.Options{
		Workers:       workers,
		EpochDuration: epochDuration,
	})
	if err != nil {
		return err
	}
	observability.RecordCheckpoint(result.Metas.Epoch, result.Metas.Slot, time.Since(started).Seconds())
	for i := range result.Metas.StakePools {
		if s, err := result.Metas.StakePools[i].Summary(); err == nil {
			observability.RecordPoolExtracted(s.Provider)
		}
	}
	for _, f := range result.Failures {
		observability.RecordPoolFailure(f.Provider)
	}
	observability.DefaultMetrics.TotalLiquid.Set(float64(result.Metas.TotalLiquidStake))
	observability.DefaultMetrics.TotalUndelegated.Set(float64(result.Metas.TotalUndelegatedLamports))

	err = checkpoints.Insert(ctx, result.Metas)
	if errors.Is(err, storage.ErrDuplicateKey) {
		logger.Printf("epoch %d checkpoint already stored", result.Metas.Epoch)
	} else if err != nil {
		return err
	} else {
		logger.Printf("epoch %d checkpoint: %d pools, %d failures",
			result.Metas.Epoch, len(result.Metas.StakePools), len(result.Failures))
	}

	// The previous epoch now has a next-epoch checkpoint, so its effective
	// rates no longer need the live fallback.
	prior := result.Metas.Epoch - 1
	statsStarted := time.Now()
	collection, err := stats.Generate(ctx, checkpoints, prior, stats.Options{LiveFetcher: source})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Printf("epoch %d has no checkpoint, skipping stats", prior)
			return nil
		}
		observability.DefaultMetrics.StatsRunsTotal.WithLabelValues("error").Inc()
		return err
	}
	observability.DefaultMetrics.StatsRunsTotal.WithLabelValues("ok").Inc()
	observability.DefaultMetrics.StatsDuration.Observe(time.Since(statsStarted).Seconds())

	err = statsFiles.Insert(ctx, collection)
	if errors.Is(err, storage.ErrDuplicateKey) {
		logger.Printf("epoch %d stats already stored", prior)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Printf("epoch %d stats: %d pools", prior, len(collection.StakePools))
	return nil
}
