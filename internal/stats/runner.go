package stats

import (
	"context"
	"errors"
	"fmt"
	"log"

	"solana-stakepool-lab/internal/domain"
	"solana-stakepool-lab/internal/observability"
	"solana-stakepool-lab/internal/provider"
	"solana-stakepool-lab/internal/storage"
)

// Options configures a statistics run.
type Options struct {
	// LiveFetcher re-prices pools against current chain state when the
	// next-epoch checkpoint does not exist yet. Nil disables the fallback.
	LiveFetcher provider.AccountFetcher
}

// Generate computes the statistics collection for one epoch from stored
// checkpoints. The target epoch's checkpoint is required; the previous and
// next epoch checkpoints are each independently optional and their absence
// only degrades the derived fields that need them.
func Generate(ctx context.Context, store storage.CheckpointStore, epoch uint64, opts Options) (*domain.EpochStatsCollection, error) {
	target, err := store.GetByEpoch(ctx, epoch)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for epoch %d: %w", epoch, err)
	}

	var prev, next *provider.Metas
	if epoch > 0 {
		prev = loadNeighbor(ctx, store, epoch-1, "previous")
	}
	next = loadNeighbor(ctx, store, epoch+1, "next")

	prevTotals := summarizeTotals(prev)
	nextPrices := summarizePrices(next)

	epochsPerYear := EpochsPerYear(target.EpochDuration)

	collection := &domain.EpochStatsCollection{
		Epoch:                    target.Epoch,
		TotalSolSupply:           target.TotalSolSupply,
		TotalNativeStake:         target.TotalNativeStake,
		TotalLiquidStake:         target.TotalLiquidStake,
		TotalUndelegatedLamports: target.TotalUndelegatedLamports,
	}

	for i := range target.StakePools {
		pool := &target.StakePools[i]
		summary, err := pool.Summary()
		if err != nil {
			log.Printf("[stats] skipping pool %d in epoch %d: %v", i, epoch, err)
			continue
		}

		prevTotal, hasPrev := prevTotals[summary.Address]
		nextPrice := resolveNextPrice(ctx, pool, summary, nextPrices, opts.LiveFetcher)

		collection.StakePools = append(collection.StakePools,
			BuildPoolStats(summary, hasPrev, prevTotal, nextPrice, epochsPerYear))
	}

	return collection, nil
}

// loadNeighbor fetches an optional neighboring checkpoint. Absence is
// expected for the newest and oldest epochs and only logged.
func loadNeighbor(ctx context.Context, store storage.CheckpointStore, epoch uint64, role string) *provider.Metas {
	metas, err := store.GetByEpoch(ctx, epoch)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			observability.RecordNeighborMiss(role)
			log.Printf("[stats] %s checkpoint for epoch %d unavailable", role, epoch)
		} else {
			log.Printf("[stats] load %s checkpoint for epoch %d: %v", role, epoch, err)
		}
		return nil
	}
	return metas
}

// summarizeTotals indexes a checkpoint's pools by address to their total
// controlled lamports.
func summarizeTotals(metas *provider.Metas) map[string]uint64 {
	if metas == nil {
		return nil
	}
	totals := make(map[string]uint64, len(metas.StakePools))
	for i := range metas.StakePools {
		if s, err := metas.StakePools[i].Summary(); err == nil {
			totals[s.Address] = s.TotalLamports()
		}
	}
	return totals
}

// summarizePrices indexes a checkpoint's pools by address to their token
// price.
func summarizePrices(metas *provider.Metas) map[string]float64 {
	if metas == nil {
		return nil
	}
	prices := make(map[string]float64, len(metas.StakePools))
	for i := range metas.StakePools {
		if s, err := metas.StakePools[i].Summary(); err == nil {
			prices[s.Address] = s.LstPrice
		}
	}
	return prices
}

// resolveNextPrice picks the pool's price one epoch later: the next-epoch
// checkpoint when it exists, otherwise a live re-price of the pool. When
// neither is available the target price is reused, making the effective
// rates zero rather than spurious.
func resolveNextPrice(ctx context.Context, pool *provider.StakePool, summary provider.PoolSummary, nextPrices map[string]float64, fetcher provider.AccountFetcher) float64 {
	if price, ok := nextPrices[summary.Address]; ok {
		return price
	}
	if fetcher != nil {
		price, err := pool.LiveLstPrice(ctx, fetcher)
		if err == nil {
			return price
		}
		log.Printf("[stats] live price for pool %s unavailable: %v", summary.Address, err)
	}
	return summary.LstPrice
}
