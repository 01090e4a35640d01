package storage

import (
	"context"

	"solana-stakepool-lab/internal/domain"
	"solana-stakepool-lab/internal/provider"
)

// CheckpointStore persists per-epoch stake pool checkpoints.
type CheckpointStore interface {
	// Insert adds the checkpoint for its epoch. Returns ErrDuplicateKey
	// if the epoch already has one.
	Insert(ctx context.Context, metas *provider.Metas) error

	// GetByEpoch retrieves the checkpoint for an epoch. Returns
	// ErrNotFound if not exists.
	GetByEpoch(ctx context.Context, epoch uint64) (*provider.Metas, error)
}

// EpochStatsStore persists per-epoch normalized statistics.
type EpochStatsStore interface {
	// Insert adds the stats collection for its epoch. Returns
	// ErrDuplicateKey if the epoch already has one.
	Insert(ctx context.Context, stats *domain.EpochStatsCollection) error

	// GetByEpoch retrieves the stats for an epoch. Returns ErrNotFound
	// if not exists.
	GetByEpoch(ctx context.Context, epoch uint64) (*domain.EpochStatsCollection, error)
}

// PoolStatsTimeseriesStore persists per-pool stats rows for analytical
// queries across epochs.
type PoolStatsTimeseriesStore interface {
	// InsertBulk adds the epoch's pool rows. Fails entire batch on
	// duplicate (epoch, address).
	InsertBulk(ctx context.Context, epoch uint64, stats []domain.EpochStakePoolStats) error

	// GetByAddress retrieves all rows for a pool, ordered by epoch ASC.
	GetByAddress(ctx context.Context, address string) ([]*domain.PoolStatsPoint, error)
}
