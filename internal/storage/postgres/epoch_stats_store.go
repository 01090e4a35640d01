package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-stakepool-lab/internal/domain"
	"solana-stakepool-lab/internal/storage"
)

// EpochStatsStore implements storage.EpochStatsStore using PostgreSQL. The
// collection header and its per-pool rows are written in one transaction.
type EpochStatsStore struct {
	pool *Pool
}

// NewEpochStatsStore creates a new EpochStatsStore.
func NewEpochStatsStore(pool *Pool) *EpochStatsStore {
	return &EpochStatsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EpochStatsStore = (*EpochStatsStore)(nil)

// Insert adds the stats collection for its epoch. Returns ErrDuplicateKey
// if the epoch already has one.
func (s *EpochStatsStore) Insert(ctx context.Context, stats *domain.EpochStatsCollection) error {
	if stats == nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	headerQuery := `
		INSERT INTO epoch_stats (
			epoch, total_sol_supply, total_native_stake, total_liquid_stake, total_undelegated_lamports
		) VALUES ($1, $2, $3, $4, $5)
	`
	_, err = tx.Exec(ctx, headerQuery,
		stats.Epoch,
		stats.TotalSolSupply,
		stats.TotalNativeStake,
		stats.TotalLiquidStake,
		stats.TotalUndelegatedLamports,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert epoch stats header: %w", err)
	}

	rowQuery := `
		INSERT INTO epoch_pool_stats (
			epoch, address, manager, management_fee, provider, is_valid, mint,
			lst_price, lst_supply, staked_validator_count,
			undelegated_lamports, total_lamports_locked,
			active_lamports, activating_lamports, deactivating_lamports,
			inflation_rewards, jito_rewards,
			apr_baseline, apy_baseline, apr_effective, apy_effective,
			liquidity_delta
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)
	`
	for _, row := range stats.StakePools {
		_, err = tx.Exec(ctx, rowQuery,
			stats.Epoch,
			row.Address,
			row.Manager,
			row.ManagementFee,
			row.Provider,
			row.IsValid,
			row.Mint,
			row.LstPrice,
			row.LstSupply,
			row.StakedValidatorCount,
			row.UndelegatedLamports,
			row.TotalLamportsLocked,
			row.ActiveLamports,
			row.ActivatingLamports,
			row.DeactivatingLamports,
			row.InflationRewards,
			row.JitoRewards,
			row.AprBaseline,
			row.ApyBaseline,
			row.AprEffective,
			row.ApyEffective,
			row.LiquidityDelta,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert pool stats row %s: %w", row.Address, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit epoch stats: %w", err)
	}
	return nil
}

// GetByEpoch retrieves the stats for an epoch. Returns ErrNotFound if not
// exists.
func (s *EpochStatsStore) GetByEpoch(ctx context.Context, epoch uint64) (*domain.EpochStatsCollection, error) {
	headerQuery := `
		SELECT epoch, total_sol_supply, total_native_stake, total_liquid_stake, total_undelegated_lamports
		FROM epoch_stats
		WHERE epoch = $1
	`
	var stats domain.EpochStatsCollection
	err := s.pool.QueryRow(ctx, headerQuery, epoch).Scan(
		&stats.Epoch,
		&stats.TotalSolSupply,
		&stats.TotalNativeStake,
		&stats.TotalLiquidStake,
		&stats.TotalUndelegatedLamports,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get epoch stats header: %w", err)
	}

	rowQuery := `
		SELECT address, manager, management_fee, provider, is_valid, mint,
			lst_price, lst_supply, staked_validator_count,
			undelegated_lamports, total_lamports_locked,
			active_lamports, activating_lamports, deactivating_lamports,
			inflation_rewards, jito_rewards,
			apr_baseline, apy_baseline, apr_effective, apy_effective,
			liquidity_delta
		FROM epoch_pool_stats
		WHERE epoch = $1
		ORDER BY address ASC
	`
	rows, err := s.pool.Query(ctx, rowQuery, epoch)
	if err != nil {
		return nil, fmt.Errorf("get pool stats rows: %w", err)
	}
	defer rows.Close()

	pools, err := scanPoolStats(rows)
	if err != nil {
		return nil, err
	}
	stats.StakePools = pools
	return &stats, nil
}

// scanPoolStats scans multiple rows into pool stats records.
func scanPoolStats(rows pgx.Rows) ([]domain.EpochStakePoolStats, error) {
	var pools []domain.EpochStakePoolStats

	for rows.Next() {
		var row domain.EpochStakePoolStats
		err := rows.Scan(
			&row.Address,
			&row.Manager,
			&row.ManagementFee,
			&row.Provider,
			&row.IsValid,
			&row.Mint,
			&row.LstPrice,
			&row.LstSupply,
			&row.StakedValidatorCount,
			&row.UndelegatedLamports,
			&row.TotalLamportsLocked,
			&row.ActiveLamports,
			&row.ActivatingLamports,
			&row.DeactivatingLamports,
			&row.InflationRewards,
			&row.JitoRewards,
			&row.AprBaseline,
			&row.ApyBaseline,
			&row.AprEffective,
			&row.ApyEffective,
			&row.LiquidityDelta,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pool stats row: %w", err)
		}
		pools = append(pools, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool stats rows: %w", err)
	}

	return pools, nil
}
