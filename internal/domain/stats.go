package domain

// EpochStakePoolStats is the normalized per-pool record for one epoch,
// derived from the pool's snapshot plus its previous/next epoch neighbors.
// Field names round-trip against the persisted stats files.
type EpochStakePoolStats struct {
	Address              string  `json:"address"`
	Manager              string  `json:"manager"`
	ManagementFee        float64 `json:"management_fee"`
	Provider             string  `json:"provider"`
	IsValid              bool    `json:"is_valid"`
	Mint                 string  `json:"mint"`
	LstPrice             float64 `json:"lst_price"`
	LstSupply            uint64  `json:"lst_supply"`
	StakedValidatorCount uint64  `json:"staked_validator_count"`
	UndelegatedLamports  uint64  `json:"undelegated_lamports"`
	TotalLamportsLocked  uint64  `json:"total_lamports_locked"`
	ActiveLamports       uint64  `json:"active_lamports"`
	ActivatingLamports   uint64  `json:"activating_lamports"`
	DeactivatingLamports uint64  `json:"deactivating_lamports"`
	InflationRewards     uint64  `json:"inflation_rewards"`
	JitoRewards          uint64  `json:"jito_rewards"`
	AprBaseline          float64 `json:"apr_baseline"`
	ApyBaseline          float64 `json:"apy_baseline"`
	AprEffective         float64 `json:"apr_effective"`
	ApyEffective         float64 `json:"apy_effective"`
	LiquidityDelta       int64   `json:"liquidity_delta"`
}

// PoolStatsPoint is one pool's stats row keyed by epoch, as stored in the
// analytical timeseries.
type PoolStatsPoint struct {
	Epoch uint64 `json:"epoch"`
	EpochStakePoolStats
}

// EpochStatsCollection is the persisted statistics output for one epoch:
// the per-pool records plus the checkpoint-wide totals copied from the
// target epoch's snapshot.
type EpochStatsCollection struct {
	Epoch                    uint64                `json:"epoch"`
	TotalSolSupply           uint64                `json:"total_sol_supply"`
	TotalNativeStake         uint64                `json:"total_native_stake"`
	TotalLiquidStake         uint64                `json:"total_liquid_stake"`
	TotalUndelegatedLamports uint64                `json:"total_undelegated_lamports"`
	StakePools               []EpochStakePoolStats `json:"stake_pools"`
}
