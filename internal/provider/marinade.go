package provider

import (
	"context"
	"fmt"

	"solana-stakepool-lab/internal/domain"
	"solana-stakepool-lab/internal/layout"
	"solana-stakepool-lab/internal/ledger"
	"solana-stakepool-lab/internal/pda"
)

// MarinadeStakePoolMeta is the measured snapshot of the Marinade pool.
// Marinade manages thousands of stake accounts, so the checkpoint persists
// the folded allocation rather than per-account detail.
type MarinadeStakePoolMeta struct {
	Address                    string                    `json:"address"`
	Manager                    string                    `json:"manager"`
	Mint                       string                    `json:"mint"`
	IsValid                    bool                      `json:"is_valid"`
	ManagementFee              float64                   `json:"management_fee"`
	TotalVirtualStakedLamports uint64                    `json:"total_virtual_staked_lamports"`
	MsolSupply                 uint64                    `json:"msol_supply"`
	ReserveAddress             string                    `json:"reserve_address"`
	ReserveLamports            uint64                    `json:"reserve_lamports"`
	StakeAccountCount          uint64                    `json:"stake_account_count"`
	StakedValidatorCount       uint64                    `json:"staked_validator_count"`
	Allocation                 domain.LamportsAllocation `json:"allocation"`
	Rewards                    domain.Rewards            `json:"rewards"`
}

// Summary implements the provider-independent view.
func (m *MarinadeStakePoolMeta) Summary() PoolSummary {
	return PoolSummary{
		Address:              m.Address,
		Manager:              m.Manager,
		Mint:                 m.Mint,
		Provider:             ProviderMarinade,
		IsValid:              m.IsValid,
		ManagementFee:        m.ManagementFee,
		LstPrice:             tokenPrice(m.TotalVirtualStakedLamports, m.MsolSupply),
		LstSupply:            m.MsolSupply,
		StakedValidatorCount: m.StakedValidatorCount,
		Allocation:           m.Allocation,
		Rewards:              m.Rewards,
	}
}

// LiveLstPrice re-fetches the state account and prices mSOL from its
// current balances.
func (m *MarinadeStakePoolMeta) LiveLstPrice(ctx context.Context, fetcher AccountFetcher) (float64, error) {
	data, err := fetcher.AccountData(ctx, m.Address)
	if err != nil {
		return 0, fmt.Errorf("fetch state %s: %w", m.Address, err)
	}
	state, err := layout.DecodeMarinadeState(data)
	if err != nil {
		return 0, fmt.Errorf("decode state %s: %w", m.Address, err)
	}
	return tokenPrice(state.TotalVirtualStakedLamports(), state.MsolSupply), nil
}

// BuildMarinadeMeta measures the Marinade pool at the snapshot epoch. The
// stake list and reserve accounts are required; individual stake accounts
// already removed from the ledger contribute nothing.
func BuildMarinadeMeta(ctx context.Context, src BuildSources, stateAddress string, state *layout.MarinadeState, epoch uint64) (*MarinadeStakePoolMeta, error) {
	listAcc, err := requiredAccount(ctx, src.Accounts, state.StakeSystem.StakeList.Account, "stake list")
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", stateAddress, err)
	}
	records, err := layout.DecodeMarinadeStakeList(state.StakeSystem.StakeList, listAcc.Data)
	if err != nil {
		return nil, fmt.Errorf("pool %s stake list: %w", stateAddress, err)
	}

	stakeAddrs := make([]string, len(records))
	for i, rec := range records {
		stakeAddrs[i] = rec.StakeAccount
	}
	accounts, err := src.Accounts.MultipleAccounts(ctx, stakeAddrs)
	if err != nil {
		return nil, fmt.Errorf("pool %s stake accounts: %w", stateAddress, err)
	}
	inflation, err := src.Rewards.InflationRewards(ctx, epoch, stakeAddrs)
	if err != nil {
		return nil, fmt.Errorf("pool %s inflation rewards: %w", stateAddress, err)
	}

	var alloc domain.LamportsAllocation
	var rewards domain.Rewards
	delegatedByVote := make(map[string]uint64)
	for i, acc := range accounts {
		if acc == nil {
			continue
		}
		stake, err := layout.DecodeStakeAccount(acc.Data)
		if err != nil {
			return nil, fmt.Errorf("pool %s stake account %s: %w", stateAddress, stakeAddrs[i], err)
		}
		if stake.IsDelegated() {
			split := ledger.SplitDelegation(*stake.Delegation, epoch)
			alloc.Active += split.Effective
			alloc.Activating += split.Activating
			alloc.Deactivating += split.Deactivating
			delegated := split.Effective + split.Activating + split.Deactivating
			alloc.Undelegated += saturatingSub(acc.Lamports, delegated+stake.MinimumReserve())
			delegatedByVote[stake.Delegation.VoterPubkey] += delegated
		} else {
			alloc.Undelegated += saturatingSub(acc.Lamports, stake.MinimumReserve())
		}
		rewards.Inflation += inflation[stakeAddrs[i]]
		rewards.Jito += src.Tips.Rewards(stakeAddrs[i])
	}

	reserveAddress, err := pda.MarinadeReserveAddress(layout.MarinadeProgramID, stateAddress)
	if err != nil {
		return nil, fmt.Errorf("pool %s reserve: %w", stateAddress, err)
	}
	reserveAcc, err := requiredAccount(ctx, src.Accounts, reserveAddress, "reserve")
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", stateAddress, err)
	}
	// The reserve is a system account kept rent exempt at the token
	// account rate; only the excess is spendable.
	reserveLamports := saturatingSub(reserveAcc.Lamports, state.RentExemptForTokenAcc)
	alloc.Undelegated += reserveLamports

	var staked uint64
	for _, delegated := range delegatedByVote {
		if delegated >= minStakedValidatorLamports {
			staked++
		}
	}

	return &MarinadeStakePoolMeta{
		Address:                    stateAddress,
		Manager:                    state.AdminAuthority,
		Mint:                       state.MsolMint,
		IsValid:                    true,
		ManagementFee:              state.ManagementFee(),
		TotalVirtualStakedLamports: state.TotalVirtualStakedLamports(),
		MsolSupply:                 state.MsolSupply,
		ReserveAddress:             reserveAddress,
		ReserveLamports:            reserveLamports,
		StakeAccountCount:          uint64(len(records)),
		StakedValidatorCount:       staked,
		Allocation:                 alloc,
		Rewards:                    rewards,
	}, nil
}
