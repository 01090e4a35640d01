package provider

import (
	"context"
	"errors"
	"fmt"

	"solana-stakepool-lab/internal/domain"
	"solana-stakepool-lab/internal/jito"
	"solana-stakepool-lab/internal/layout"
	"solana-stakepool-lab/internal/ledger"
	"solana-stakepool-lab/internal/pda"
)

// minStakedValidatorLamports is the threshold below which a validator does
// not count as staked: 1 SOL.
const minStakedValidatorLamports = 1_000_000_000

// BuildSources bundles the ledger views a pool build reads from.
type BuildSources struct {
	Accounts ledger.AccountSource
	Rewards  ledger.RewardsSource
	Tips     jito.RewardsLookup
}

// SplValidatorMeta is one validator's slice of an SPL-family pool.
type SplValidatorMeta struct {
	VoteAccountAddress           string `json:"vote_account_address"`
	ActiveStakeAccountAddress    string `json:"active_stake_account_address"`
	TransientStakeAccountAddress string `json:"transient_stake_account_address"`
	Status                       string `json:"status"`
	ActiveStake                  uint64 `json:"active_stake"`
	ActivatingStake              uint64 `json:"activating_stake"`
	DeactivatingStake            uint64 `json:"deactivating_stake"`
	UndelegatedStake             uint64 `json:"undelegated_stake"`
	InflationRewards             uint64 `json:"inflation_rewards"`
	JitoRewards                  uint64 `json:"jito_rewards"`
}

func (v SplValidatorMeta) totalStake() uint64 {
	return v.ActiveStake + v.ActivatingStake + v.DeactivatingStake + v.UndelegatedStake
}

// SplStakePoolFees is the pool's configured fee schedule, kept
// field-for-field in the checkpoint.
type SplStakePoolFees struct {
	Epoch           layout.Fee `json:"epoch"`
	DepositSol      layout.Fee `json:"deposit_sol"`
	WithdrawalSol   layout.Fee `json:"withdrawal_sol"`
	DepositStake    layout.Fee `json:"deposit_stake"`
	WithdrawalStake layout.Fee `json:"withdrawal_stake"`
}

// SplStakePoolMeta is the measured snapshot of one SPL stake pool. IsValid
// is the raw initialization flag; staleness lives in NeedsUpdate and the two
// are only combined in the summary view.
type SplStakePoolMeta struct {
	Address                  string             `json:"address"`
	Manager                  string             `json:"manager"`
	Mint                     string             `json:"mint"`
	IsValid                  bool               `json:"is_valid"`
	NeedsUpdate              bool               `json:"needs_update"`
	Fees                     SplStakePoolFees   `json:"fees"`
	TotalLamports            uint64             `json:"total_lamports"`
	PoolTokenSupply          uint64             `json:"pool_token_supply"`
	LastEpochTotalLamports   uint64             `json:"last_epoch_total_lamports"`
	LastEpochPoolTokenSupply uint64             `json:"last_epoch_pool_token_supply"`
	ReserveStakeAddress      string             `json:"reserve_stake_address"`
	ReserveLamports          uint64             `json:"reserve_lamports"`
	Validators               []SplValidatorMeta `json:"validators"`
}

// Summary implements the provider-independent view.
func (m *SplStakePoolMeta) Summary() PoolSummary {
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
		Provider:             ProviderSpl,
		IsValid:              m.IsValid && !m.NeedsUpdate,
		ManagementFee:        m.Fees.Epoch.Ratio(),
		LstPrice:             tokenPrice(m.TotalLamports, m.PoolTokenSupply),
		LstSupply:            m.PoolTokenSupply,
		StakedValidatorCount: staked,
		Allocation:           alloc,
		Rewards:              rewards,
	}
}

// LiveLstPrice re-fetches the pool account and prices the token from its
// current balances.
func (m *SplStakePoolMeta) LiveLstPrice(ctx context.Context, fetcher AccountFetcher) (float64, error) {
	data, err := fetcher.AccountData(ctx, m.Address)
	if err != nil {
		return 0, fmt.Errorf("fetch pool %s: %w", m.Address, err)
	}
	pool, err := layout.DecodeSplStakePool(data)
	if err != nil {
		return 0, fmt.Errorf("decode pool %s: %w", m.Address, err)
	}
	return tokenPrice(pool.TotalLamports, pool.PoolTokenSupply), nil
}

// BuildSplMeta measures one SPL stake pool at the snapshot epoch. The
// validator list and reserve stake accounts are required; per-validator
// stake accounts that do not exist contribute nothing.
func BuildSplMeta(ctx context.Context, src BuildSources, address string, pool *layout.SplStakePool, epoch uint64) (*SplStakePoolMeta, error) {
	listAcc, err := requiredAccount(ctx, src.Accounts, pool.ValidatorList, "validator list")
	if err != nil {
		return nil, err
	}
	list, err := layout.DecodeSplValidatorList(listAcc.Data)
	if err != nil {
		return nil, fmt.Errorf("pool %s validator list: %w", address, err)
	}

	validators := make([]SplValidatorMeta, 0, len(list.Validators))
	var stakeAddrs []string
	for _, v := range list.Validators {
		active, err := pda.ValidatorStakeAddress(layout.StakePoolProgramID, v.VoteAccountAddress, address, v.ValidatorSeedSuffix)
		if err != nil {
			return nil, fmt.Errorf("pool %s validator %s: %w", address, v.VoteAccountAddress, err)
		}
		transient, err := pda.TransientStakeAddress(layout.StakePoolProgramID, v.VoteAccountAddress, address, v.TransientSeedSuffix)
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

	return &SplStakePoolMeta{
		Address:     address,
		Manager:     pool.Manager,
		Mint:        pool.PoolMint,
		IsValid:     pool.IsValid(),
		NeedsUpdate: pool.LastUpdateEpoch < epoch,
		Fees: SplStakePoolFees{
			Epoch:           pool.EpochFee,
			DepositSol:      pool.SolDepositFee,
			WithdrawalSol:   pool.SolWithdrawalFee,
			DepositStake:    pool.StakeDepositFee,
			WithdrawalStake: pool.StakeWithdrawalFee,
		},
		TotalLamports:            pool.TotalLamports,
		PoolTokenSupply:          pool.PoolTokenSupply,
		LastEpochTotalLamports:   pool.LastEpochTotalLamports,
		LastEpochPoolTokenSupply: pool.LastEpochPoolTokenSupply,
		ReserveStakeAddress:      pool.ReserveStake,
		ReserveLamports:          reserveLamports,
		Validators:               validators,
	}, nil
}

// fillValidatorStakes resolves the derived stake accounts in one batch and
// classifies each validator's lamports. validators[i] owns stakeAddrs[2i]
// (active) and stakeAddrs[2i+1] (transient).
func fillValidatorStakes(ctx context.Context, src BuildSources, validators []SplValidatorMeta, stakeAddrs []string, pool string, epoch uint64) error {
	accounts, err := src.Accounts.MultipleAccounts(ctx, stakeAddrs)
	if err != nil {
		return fmt.Errorf("pool %s stake accounts: %w", pool, err)
	}
	inflation, err := src.Rewards.InflationRewards(ctx, epoch, stakeAddrs)
	if err != nil {
		return fmt.Errorf("pool %s inflation rewards: %w", pool, err)
	}

	for i := range validators {
		v := &validators[i]
		if err := applyActiveStake(v, accounts[2*i], epoch); err != nil {
			return fmt.Errorf("pool %s validator %s: %w", pool, v.VoteAccountAddress, err)
		}
		if err := applyTransientStake(v, accounts[2*i+1], epoch); err != nil {
			return fmt.Errorf("pool %s validator %s: %w", pool, v.VoteAccountAddress, err)
		}
		v.InflationRewards = inflation[v.ActiveStakeAccountAddress] + inflation[v.TransientStakeAccountAddress]
		v.JitoRewards = src.Tips.Rewards(v.ActiveStakeAccountAddress) + src.Tips.Rewards(v.TransientStakeAccountAddress)
	}
	return nil
}

// applyActiveStake classifies a validator's main stake account through the
// activation ramp. A validator that is not Active is being wound down: its
// main account contributes nothing to the yielding totals.
func applyActiveStake(v *SplValidatorMeta, acc *ledger.Account, epoch uint64) error {
	if acc == nil {
		return nil
	}
	if v.Status != layout.StakeStatusActive.String() {
		return nil
	}
	stake, err := layout.DecodeStakeAccount(acc.Data)
	if err != nil {
		return fmt.Errorf("active stake account: %w", err)
	}
	if !stake.IsDelegated() {
		v.UndelegatedStake += saturatingSub(acc.Lamports, stake.MinimumReserve())
		return nil
	}

	split := ledger.SplitDelegation(*stake.Delegation, epoch)
	v.ActiveStake += split.Effective
	v.ActivatingStake += split.Activating
	v.DeactivatingStake += split.Deactivating
	delegated := split.Effective + split.Activating + split.Deactivating
	v.UndelegatedStake += saturatingSub(acc.Lamports, delegated+stake.MinimumReserve())
	return nil
}

// applyTransientStake classifies a transient stake account. A transient
// account is either ramping in or ramping out; a delegation that claims
// both or neither is a consistency fault and fails the pool.
func applyTransientStake(v *SplValidatorMeta, acc *ledger.Account, epoch uint64) error {
	if acc == nil {
		return nil
	}
	stake, err := layout.DecodeStakeAccount(acc.Data)
	if err != nil {
		return fmt.Errorf("transient stake account: %w", err)
	}
	if !stake.IsDelegated() {
		v.UndelegatedStake += saturatingSub(acc.Lamports, stake.MinimumReserve())
		return nil
	}

	d := stake.Delegation
	activating := epoch >= d.ActivationEpoch && !d.Deactivating()
	deactivating := d.Deactivating() && epoch >= d.DeactivationEpoch
	if activating == deactivating {
		return fmt.Errorf("%w: transient stake %s is neither activating nor deactivating",
			ErrDataConsistency, v.TransientStakeAccountAddress)
	}

	amount := stake.MinimumReserve() + d.Stake
	if activating {
		v.ActivatingStake += amount
	} else {
		v.DeactivatingStake += amount
	}
	v.UndelegatedStake += saturatingSub(acc.Lamports, amount)
	return nil
}

// reserveStakeLamports resolves a pool's reserve: the account is required,
// and only lamports above its rent reserve count as undelegated.
func reserveStakeLamports(ctx context.Context, accounts ledger.AccountSource, reserve, pool string) (uint64, error) {
	acc, err := requiredAccount(ctx, accounts, reserve, "reserve stake")
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", pool, err)
	}
	stake, err := layout.DecodeStakeAccount(acc.Data)
	if err != nil {
		return 0, fmt.Errorf("pool %s reserve stake: %w", pool, err)
	}
	return saturatingSub(acc.Lamports, stake.MinimumReserve()), nil
}

func requiredAccount(ctx context.Context, accounts ledger.AccountSource, address, what string) (*ledger.Account, error) {
	acc, err := accounts.Account(ctx, address)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrRequiredAccountMissing, what, address)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", what, address, err)
	}
	return acc, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
