package provider

import (
	"context"
	"fmt"

	"solana-stakepool-lab/internal/domain"
	"solana-stakepool-lab/internal/layout"
	"solana-stakepool-lab/internal/pda"
)

// SoceanStakePoolFees is the pool's configured fee schedule. The fork
// predates the split sol/stake withdrawal fees of upstream SPL.
type SoceanStakePoolFees struct {
	Epoch        layout.Fee `json:"epoch"`
	DepositSol   layout.Fee `json:"deposit_sol"`
	Withdrawal   layout.Fee `json:"withdrawal"`
	DepositStake layout.Fee `json:"deposit_stake"`
}

// SoceanStakePoolMeta is the measured snapshot of one Socean stake pool.
// Socean is an SPL fork, so validators share the SPL validator meta shape.
// IsValid is the raw initialization flag, combined with NeedsUpdate only in
// the summary view.
type SoceanStakePoolMeta struct {
	Address             string              `json:"address"`
	Manager             string              `json:"manager"`
	Mint                string              `json:"mint"`
	IsValid             bool                `json:"is_valid"`
	NeedsUpdate         bool                `json:"needs_update"`
	Fees                SoceanStakePoolFees `json:"fees"`
	TotalStakeLamports  uint64              `json:"total_stake_lamports"`
	PoolTokenSupply     uint64              `json:"pool_token_supply"`
	ReserveStakeAddress string              `json:"reserve_stake_address"`
	ReserveLamports     uint64              `json:"reserve_lamports"`
	Validators          []SplValidatorMeta  `json:"validators"`
}

// Summary implements the provider-independent view.
func (m *SoceanStakePoolMeta) Summary() PoolSummary {
	var alloc domain.LamportsAllocation
	var rewards domain.Rewards
	var staked uint64
	for _, v := range m.Validators {
		alloc.Active += v.ActiveStake
		alloc.Activating += v.ActivatingStake
		alloc.Deactivating += v.DeactivatingStake
		alloc.Undelegated += v.UndelegatedStake
		rewards.Inflation += v.InflationRewards
		rewards.Jito += v.JitoRewards
		if v.totalStake() > minStakedValidatorLamports && v.Status == layout.StakeStatusActive.String() {
			staked++
		}
	}
	alloc.Undelegated += m.ReserveLamports

	return PoolSummary{
		Address:              m.Address,
		Manager:              m.Manager,
		Mint:                 m.Mint,
		Provider:             ProviderSocean,
		IsValid:              m.IsValid && !m.NeedsUpdate,
		ManagementFee:        m.Fees.Epoch.Ratio(),
		LstPrice:             tokenPrice(m.TotalStakeLamports, m.PoolTokenSupply),
		LstSupply:            m.PoolTokenSupply,
		StakedValidatorCount: staked,
		Allocation:           alloc,
		Rewards:              rewards,
	}
}

// LiveLstPrice re-fetches the pool account and prices the token from its
// current balances.
func (m *SoceanStakePoolMeta) LiveLstPrice(ctx context.Context, fetcher AccountFetcher) (float64, error) {
	data, err := fetcher.AccountData(ctx, m.Address)
	if err != nil {
		return 0, fmt.Errorf("fetch pool %s: %w", m.Address, err)
	}
	pool, err := layout.DecodeSoceanStakePool(data)
	if err != nil {
		return 0, fmt.Errorf("decode pool %s: %w", m.Address, err)
	}
	return tokenPrice(pool.TotalStakeLamports, pool.PoolTokenSupply), nil
}

// BuildSoceanMeta measures one Socean stake pool at the snapshot epoch.
func BuildSoceanMeta(ctx context.Context, src BuildSources, address string, pool *layout.SoceanStakePool, epoch uint64) (*SoceanStakePoolMeta, error) {
	listAcc, err := requiredAccount(ctx, src.Accounts, pool.ValidatorList, "validator list")
	if err != nil {
		return nil, err
	}
	list, err := layout.DecodeSoceanValidatorList(listAcc.Data)
	if err != nil {
		return nil, fmt.Errorf("pool %s validator list: %w", address, err)
	}

	validators := make([]SplValidatorMeta, 0, len(list.Validators))
	var stakeAddrs []string
	for _, v := range list.Validators {
		active, err := pda.SoceanValidatorStakeAddress(layout.SoceanProgramID, v.VoteAccountAddress, address)
		if err != nil {
			return nil, fmt.Errorf("pool %s validator %s: %w", address, v.VoteAccountAddress, err)
		}
		transient, err := pda.SoceanTransientStakeAddress(layout.SoceanProgramID, v.VoteAccountAddress, address)
		if err != nil {
			return nil, fmt.Errorf("pool %s validator %s: %w", address, v.VoteAccountAddress, err)
		}
		validators = append(validators, SplValidatorMeta{
			VoteAccountAddress:           v.VoteAccountAddress,
			ActiveStakeAccountAddress:    active,
			TransientStakeAccountAddress: transient,
			Status:                       v.Status.String(),
		})
		stakeAddrs = append(stakeAddrs, active, transient)
	}

	if err := fillValidatorStakes(ctx, src, validators, stakeAddrs, address, epoch); err != nil {
		return nil, err
	}

	reserveLamports, err := reserveStakeLamports(ctx, src.Accounts, pool.ReserveStake, address)
	if err != nil {
		return nil, err
	}

	return &SoceanStakePoolMeta{
		Address:     address,
		Manager:     pool.Manager,
		Mint:        pool.PoolMint,
		IsValid:     pool.IsValid(),
		NeedsUpdate: pool.LastUpdateEpoch < epoch,
		Fees: SoceanStakePoolFees{
			Epoch:        pool.Fee,
			DepositSol:   pool.SolDepositFee,
			Withdrawal:   pool.WithdrawalFee,
			DepositStake: pool.StakeDepositFee,
		},
		TotalStakeLamports:  pool.TotalStakeLamports,
		PoolTokenSupply:     pool.PoolTokenSupply,
		ReserveStakeAddress: pool.ReserveStake,
		ReserveLamports:     reserveLamports,
		Validators:          validators,
	}, nil
}
