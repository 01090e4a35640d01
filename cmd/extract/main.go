package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-stakepool-lab/internal/checkpoint"
	"solana-stakepool-lab/internal/jito"
	"solana-stakepool-lab/internal/ledger"
	"solana-stakepool-lab/internal/observability"
	"solana-stakepool-lab/internal/solana"
	filestore "solana-stakepool-lab/internal/storage/file"
)

func main() {
	snapshotPath := flag.String("snapshot", "", "Ledger snapshot JSON file (omit to read from a live RPC node)")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Solana RPC endpoint (defaults to RPC_ENDPOINT env)")
	jitoMetaPath := flag.String("jito-meta", "", "Jito stake meta collection JSON file (optional)")
	outDir := flag.String("out-dir", "checkpoints", "Directory for checkpoint files")
	workers := flag.Int("workers", 4, "Concurrent pool builds")
	flag.Parse()

	logger := log.New(os.Stderr, "[extract] ", log.LstdFlags)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	var accounts ledger.AccountSource
	var rewards ledger.RewardsSource
	var blockTimes ledger.BlockTimeSource

	if *snapshotPath != "" {
		snapshot, err := ledger.LoadSnapshot(*snapshotPath)
		if err != nil {
			logger.Fatalf("load snapshot: %v", err)
		}
		accounts, rewards, blockTimes = snapshot, snapshot, snapshot
	} else {
		endpoint := *rpcEndpoint
		if endpoint == "" {
			endpoint = os.Getenv("RPC_ENDPOINT")
		}
		if endpoint == "" {
			logger.Fatal("--snapshot or --rpc-endpoint (or RPC_ENDPOINT) is required")
		}
		src := solana.NewSource(solana.NewHTTPClient(endpoint))
		accounts, rewards, blockTimes = src, src, src
	}

	tips, err := loadTips(*jitoMetaPath)
	if err != nil {
		logger.Fatalf("load jito meta: %v", err)
	}

	ec, err := accounts.EpochContext(ctx)
	if err != nil {
		logger.Fatalf("epoch context: %v", err)
	}

	// The wall-clock length of the previous full epoch annualizes this
	// epoch's rates. Absence only zeroes the APR fields downstream.
	var epochDuration float64
	if ec.Epoch > 0 {
		epochDuration, err = ledger.EpochDuration(ctx, blockTimes, ec.Epoch-1)
		if err != nil {
			logger.Printf("epoch duration unavailable: %v", err)
		}
	}

	started := time.Now()
	result, err := checkpoint.Generate(ctx, accounts, rewards, tips, checkpoint.Options{
		Workers:       *workers,
		EpochDuration: epochDuration,
	})
	if err != nil {
		logger.Fatalf("generate checkpoint: %v", err)
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

	store, err := filestore.NewCheckpointStore(*outDir)
	if err != nil {
		logger.Fatalf("open checkpoint store: %v", err)
	}
	if err := store.Insert(ctx, result.Metas); err != nil {
		logger.Fatalf("store checkpoint: %v", err)
	}

	logger.Printf("epoch %d checkpoint: %d pools, %d failures -> %s",
		result.Metas.Epoch, len(result.Metas.StakePools), len(result.Failures), store.Path(result.Metas.Epoch))
}

// loadTips reads a Jito stake meta collection and resolves it to per-account
// tip rewards. An empty path disables tip attribution.
func loadTips(path string) (jito.RewardsLookup, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var collection jito.StakeMetaCollection
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, err
	}
	return jito.BuildRewardsLookup(&collection)
}
