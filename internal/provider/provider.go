// Package provider builds per-pool metric snapshots from decoded on-chain
// state. Each supported stake pool program has a builder that resolves the
// pool's accounts, classifies its lamports and attributes its rewards.
package provider

import (
	"context"
	"errors"
	"fmt"

	"solana-stakepool-lab/internal/domain"
)

// ErrRequiredAccountMissing is returned when an account a pool cannot be
// measured without is absent. The pool fails; optional per-validator stake
// accounts merely contribute zero.
var ErrRequiredAccountMissing = errors.New("required account missing")

// ErrDataConsistency is returned when on-chain state contradicts itself,
// such as a transient stake account that is both activating and
// deactivating. The affected pool is dropped from the checkpoint.
var ErrDataConsistency = errors.New("data consistency fault")

// Provider labels for the supported stake pool programs.
const (
	ProviderSpl      = "Spl"
	ProviderSocean   = "Socean"
	ProviderMarinade = "Marinade"
)

// AccountFetcher fetches current account data, used to re-price a pool's
// token against live state instead of the checkpoint snapshot.
type AccountFetcher interface {
	AccountData(ctx context.Context, address string) ([]byte, error)
}

// PoolSummary is the provider-independent view of a pool snapshot. All
// builders reduce their program-specific metadata to this shape.
type PoolSummary struct {
	Address              string
	Manager              string
	Mint                 string
	Provider             string
	IsValid              bool
	ManagementFee        float64
	LstPrice             float64
	LstSupply            uint64
	StakedValidatorCount uint64
	Allocation           domain.LamportsAllocation
	Rewards              domain.Rewards
}

// TotalLamports is everything the pool controls: delegated plus undelegated.
func (s PoolSummary) TotalLamports() uint64 {
	return s.Allocation.Total()
}

// YieldingLamports is the stake earning rewards this epoch.
func (s PoolSummary) YieldingLamports() uint64 {
	return s.Allocation.Yielding()
}

type poolMeta interface {
	Summary() PoolSummary
	LiveLstPrice(ctx context.Context, fetcher AccountFetcher) (float64, error)
}

// StakePool is the persisted envelope for one pool: exactly one provider
// field is set, and the field name tags the provider in JSON.
type StakePool struct {
	Spl      *SplStakePoolMeta      `json:"Spl,omitempty"`
	Socean   *SoceanStakePoolMeta   `json:"Socean,omitempty"`
	Marinade *MarinadeStakePoolMeta `json:"Marinade,omitempty"`
}

func (p StakePool) meta() (poolMeta, error) {
	switch {
	case p.Spl != nil:
		return p.Spl, nil
	case p.Socean != nil:
		return p.Socean, nil
	case p.Marinade != nil:
		return p.Marinade, nil
	}
	return nil, fmt.Errorf("%w: stake pool envelope has no provider", ErrDataConsistency)
}

// Summary reduces the envelope to the provider-independent view.
func (p StakePool) Summary() (PoolSummary, error) {
	m, err := p.meta()
	if err != nil {
		return PoolSummary{}, err
	}
	return m.Summary(), nil
}

// LiveLstPrice re-prices the pool's token from current account state.
func (p StakePool) LiveLstPrice(ctx context.Context, fetcher AccountFetcher) (float64, error) {
	m, err := p.meta()
	if err != nil {
		return 0, err
	}
	return m.LiveLstPrice(ctx, fetcher)
}

// Metas is the per-epoch checkpoint: every measured pool plus the
// snapshot-wide totals. Field names round-trip against persisted
// checkpoint files.
type Metas struct {
	StakePools               []StakePool `json:"stake_pools"`
	BankHash                 string      `json:"bank_hash"`
	TotalSolSupply           uint64      `json:"total_sol_supply"`
	TotalNativeStake         uint64      `json:"total_native_stake"`
	TotalLiquidStake         uint64      `json:"total_liquid_stake"`
	TotalUndelegatedLamports uint64      `json:"total_undelegated_lamports"`
	Epoch                    uint64      `json:"epoch"`
	EpochDuration            float64     `json:"epoch_duration"`
	Slot                     uint64      `json:"slot"`
}

// Pool returns the envelope for the pool address, nil when absent.
func (m *Metas) Pool(address string) *StakePool {
	for i := range m.StakePools {
		s, err := m.StakePools[i].Summary()
		if err == nil && s.Address == address {
			return &m.StakePools[i]
		}
	}
	return nil
}

// tokenPrice is lamports per pool token, 0 when no tokens are outstanding.
func tokenPrice(totalLamports, tokenSupply uint64) float64 {
	if tokenSupply == 0 {
		return 0
	}
	return float64(totalLamports) / float64(tokenSupply)
}
