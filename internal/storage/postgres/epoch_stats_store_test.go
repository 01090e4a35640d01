package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"solana-stakepool-lab/internal/domain"
	"solana-stakepool-lab/internal/storage"
)

func testStatsCollection(epoch uint64) *domain.EpochStatsCollection {
	return &domain.EpochStatsCollection{
		Epoch:                    epoch,
		TotalSolSupply:           580_000_000_000_000_000,
		TotalNativeStake:         390_000_000_000_000_000,
		TotalLiquidStake:         25_000_000_000_000_000,
		TotalUndelegatedLamports: 1_200_000_000_000,
		StakePools: []domain.EpochStakePoolStats{
			{
				Address:              "pool-b",
				Manager:              "manager-b",
				ManagementFee:        0.06,
				Provider:             "Marinade",
				IsValid:              true,
				Mint:                 "mint-b",
				LstPrice:             1.125,
				LstSupply:            8_000_000_000,
				StakedValidatorCount: 2,
				ActiveLamports:       9_000_000_000,
				AprBaseline:          0.071,
				ApyBaseline:          0.0735,
				LiquidityDelta:       -50_000,
			},
			{
				Address:              "pool-a",
				Manager:              "manager-a",
				ManagementFee:        0.02,
				Provider:             "Spl",
				IsValid:              true,
				Mint:                 "mint-a",
				LstPrice:             1.111,
				LstSupply:            9_000_000_000,
				StakedValidatorCount: 1,
				UndelegatedLamports:  3_100_000_000,
				TotalLamportsLocked:  10_000_000_000,
				ActiveLamports:       5_500_000_000,
				ActivatingLamports:   300_000_000,
				InflationRewards:     4_000_000,
				JitoRewards:          1_500_000,
				AprBaseline:          0.068,
				ApyBaseline:          0.0702,
				AprEffective:         0.065,
				ApyEffective:         0.067,
				LiquidityDelta:       100_000,
			},
		},
	}
}

func TestEpochStatsStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEpochStatsStore(pool)
	ctx := context.Background()

	stats := testStatsCollection(500)
	require.NoError(t, store.Insert(ctx, stats))

	got, err := store.GetByEpoch(ctx, 500)
	require.NoError(t, err)
	require.Equal(t, stats.Epoch, got.Epoch)
	require.Equal(t, stats.TotalSolSupply, got.TotalSolSupply)
	require.Equal(t, stats.TotalLiquidStake, got.TotalLiquidStake)
	require.Len(t, got.StakePools, 2)

	// Rows come back ordered by address.
	require.Equal(t, "pool-a", got.StakePools[0].Address)
	require.Equal(t, "pool-b", got.StakePools[1].Address)
	require.Equal(t, stats.StakePools[1], got.StakePools[0])
	require.Equal(t, stats.StakePools[0], got.StakePools[1])
}

func TestEpochStatsStore_DuplicateEpoch(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEpochStatsStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testStatsCollection(500)))

	err := store.Insert(ctx, testStatsCollection(500))
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	// The failed insert must not leave partial rows behind.
	got, err := store.GetByEpoch(ctx, 500)
	require.NoError(t, err)
	require.Len(t, got.StakePools, 2)
}

func TestEpochStatsStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEpochStatsStore(pool)
	ctx := context.Background()

	_, err := store.GetByEpoch(ctx, 999)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEpochStatsStore_NilInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEpochStatsStore(pool)
	require.ErrorIs(t, store.Insert(context.Background(), nil), storage.ErrInvalidInput)
}

func TestEpochStatsStore_EmptyPools(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEpochStatsStore(pool)
	ctx := context.Background()

	stats := testStatsCollection(501)
	stats.StakePools = nil
	require.NoError(t, store.Insert(ctx, stats))

	got, err := store.GetByEpoch(ctx, 501)
	require.NoError(t, err)
	require.Empty(t, got.StakePools)
}
