// Package stats derives per-epoch yield statistics from stored checkpoints.
// Each pool's record is a pure function of its target-epoch snapshot plus
// optional previous and next epoch neighbors.
package stats

import (
	"math"

	"solana-stakepool-lab/internal/domain"
	"solana-stakepool-lab/internal/provider"
)

const secondsPerDay = 86_400

// EpochsPerYear converts an epoch duration in seconds to the number of
// epochs in a year. Returns 0 for a non-positive duration.
func EpochsPerYear(epochDurationSeconds float64) float64 {
	if epochDurationSeconds <= 0 {
		return 0
	}
	return float64(secondsPerDay*365) / epochDurationSeconds
}

// BaselineApr estimates the annualized yield from one epoch's reward totals
// over the stake that was actually earning. Returns 0 when nothing yielded.
func BaselineApr(totalRewards, yieldingLamports uint64, epochsPerYear float64) float64 {
	if yieldingLamports == 0 {
		return 0
	}
	return sanitize(float64(totalRewards) / float64(yieldingLamports) * epochsPerYear)
}

// EffectiveApr annualizes the realized token price appreciation between the
// target epoch and the next. Requires a positive target price.
func EffectiveApr(targetPrice, nextPrice, epochsPerYear float64) float64 {
	if targetPrice <= 0 {
		return 0
	}
	return sanitize((nextPrice/targetPrice - 1) * epochsPerYear)
}

// AprToApy converts an APR to an APY under discrete per-epoch compounding.
func AprToApy(apr, epochsPerYear float64) float64 {
	if epochsPerYear <= 0 {
		return 0
	}
	return sanitize(math.Pow(1+apr/epochsPerYear, epochsPerYear) - 1)
}

// sanitize maps NaN and infinities to 0 so records stay JSON-encodable.
func sanitize(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// BuildPoolStats derives one pool's epoch record from its summary and its
// neighbor-epoch context. prevTotal is the pool's total lamports in the
// previous epoch; hasPrev is false when no previous snapshot matched, in
// which case the liquidity delta is 0. nextPrice is the pool's token price
// one epoch later, or the live price fallback for the newest epoch.
func BuildPoolStats(s provider.PoolSummary, hasPrev bool, prevTotal uint64, nextPrice, epochsPerYear float64) domain.EpochStakePoolStats {
	total := s.TotalLamports()

	var liquidityDelta int64
	if hasPrev {
		liquidityDelta = int64(total) - int64(prevTotal)
	}

	aprBaseline := BaselineApr(s.Rewards.Total(), s.YieldingLamports(), epochsPerYear)
	aprEffective := EffectiveApr(s.LstPrice, nextPrice, epochsPerYear)

	return domain.EpochStakePoolStats{
		Address:              s.Address,
		Manager:              s.Manager,
		ManagementFee:        s.ManagementFee,
		Provider:             s.Provider,
		IsValid:              s.IsValid,
		Mint:                 s.Mint,
		LstPrice:             s.LstPrice,
		LstSupply:            s.LstSupply,
		StakedValidatorCount: s.StakedValidatorCount,
		UndelegatedLamports:  s.Allocation.Undelegated,
		TotalLamportsLocked:  total,
		ActiveLamports:       s.Allocation.Active,
		ActivatingLamports:   s.Allocation.Activating,
		DeactivatingLamports: s.Allocation.Deactivating,
		InflationRewards:     s.Rewards.Inflation,
		JitoRewards:          s.Rewards.Jito,
		AprBaseline:          aprBaseline,
		ApyBaseline:          AprToApy(aprBaseline, epochsPerYear),
		AprEffective:         aprEffective,
		ApyEffective:         AprToApy(aprEffective, epochsPerYear),
		LiquidityDelta:       liquidityDelta,
	}
}
