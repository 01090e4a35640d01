package clickhouse

import (
	"context"
	"fmt"

	"solana-stakepool-lab/internal/domain"
	"solana-stakepool-lab/internal/storage"
)

// PoolStatsStore implements storage.PoolStatsTimeseriesStore using ClickHouse.
type PoolStatsStore struct {
	conn *Conn
}

// NewPoolStatsStore creates a new PoolStatsStore.
func NewPoolStatsStore(conn *Conn) *PoolStatsStore {
	return &PoolStatsStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PoolStatsTimeseriesStore = (*PoolStatsStore)(nil)

// InsertBulk adds one epoch's per-pool rows. Fails the entire batch on a
// duplicate (epoch, address), whether inside the batch or against stored rows.
func (s *PoolStatsStore) InsertBulk(ctx context.Context, epoch uint64, stats []domain.EpochStakePoolStats) error {
	if len(stats) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{})
	for _, row := range stats {
		if _, exists := seen[row.Address]; exists {
			return storage.ErrDuplicateKey
		}
		seen[row.Address] = struct{}{}
	}

	// Check for duplicates against existing DB rows. MergeTree does not
	// enforce uniqueness at insert time, so the check runs up front.
	for _, row := range stats {
		exists, err := s.exists(ctx, epoch, row.Address)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO pool_stats (
			epoch, address, manager, management_fee, provider, is_valid, mint,
			lst_price, lst_supply, staked_validator_count,
			undelegated_lamports, total_lamports_locked,
			active_lamports, activating_lamports, deactivating_lamports,
			inflation_rewards, jito_rewards,
			apr_baseline, apy_baseline, apr_effective, apy_effective,
			liquidity_delta
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, row := range stats {
		err = batch.Append(
			epoch, row.Address, row.Manager, row.ManagementFee,
			row.Provider, row.IsValid, row.Mint,
			row.LstPrice, row.LstSupply, row.StakedValidatorCount,
			row.UndelegatedLamports, row.TotalLamportsLocked,
			row.ActiveLamports, row.ActivatingLamports, row.DeactivatingLamports,
			row.InflationRewards, row.JitoRewards,
			row.AprBaseline, row.ApyBaseline, row.AprEffective, row.ApyEffective,
			row.LiquidityDelta,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAddress retrieves all rows for a pool, ordered by epoch ASC.
func (s *PoolStatsStore) GetByAddress(ctx context.Context, address string) ([]*domain.PoolStatsPoint, error) {
	query := `
		SELECT epoch, address, manager, management_fee, provider, is_valid, mint,
			lst_price, lst_supply, staked_validator_count,
			undelegated_lamports, total_lamports_locked,
			active_lamports, activating_lamports, deactivating_lamports,
			inflation_rewards, jito_rewards,
			apr_baseline, apy_baseline, apr_effective, apy_effective,
			liquidity_delta
		FROM pool_stats
		WHERE address = ?
		ORDER BY epoch ASC
	`

	rows, err := s.conn.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("query by address: %w", err)
	}
	defer rows.Close()

	return scanPoolStats(rows)
}

// exists checks if a row with the given key exists.
func (s *PoolStatsStore) exists(ctx context.Context, epoch uint64, address string) (bool, error) {
	query := `
		SELECT count(*) FROM pool_stats
		WHERE epoch = ? AND address = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, epoch, address).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanPoolStats scans multiple rows.
func scanPoolStats(rows chRows) ([]*domain.PoolStatsPoint, error) {
	var points []*domain.PoolStatsPoint

	for rows.Next() {
		var p domain.PoolStatsPoint

		err := rows.Scan(
			&p.Epoch, &p.Address, &p.Manager, &p.ManagementFee,
			&p.Provider, &p.IsValid, &p.Mint,
			&p.LstPrice, &p.LstSupply, &p.StakedValidatorCount,
			&p.UndelegatedLamports, &p.TotalLamportsLocked,
			&p.ActiveLamports, &p.ActivatingLamports, &p.DeactivatingLamports,
			&p.InflationRewards, &p.JitoRewards,
			&p.AprBaseline, &p.ApyBaseline, &p.AprEffective, &p.ApyEffective,
			&p.LiquidityDelta,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pool stats row: %w", err)
		}

		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool stats rows: %w", err)
	}

	return points, nil
}
