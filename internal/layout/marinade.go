package layout

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// Marinade liquid staking program constants.
const (
	// MarinadeProgramID is the mainnet Marinade liquid staking program.
	MarinadeProgramID = "MarBmsSgKXdrN1egZf5sqe1TMai9K1rChYNDJgjq7aD"

	// MarinadeStateAddress is the single state account of the program.
	MarinadeStateAddress = "8szGkuLTAux9XMgZ2vtY39jVSowEcpBfFfD8hXSEqdGC"

	// MarinadeReserveSeed derives the reserve PDA from the state address.
	MarinadeReserveSeed = "reserve"

	// marinadeFeeBasisPointsDenominator converts Marinade's basis-point
	// fees to ratios.
	marinadeFeeBasisPointsDenominator = 10_000
)

// anchorDiscriminatorLen is the size of the account discriminator anchor
// prepends to every account it serializes.
const anchorDiscriminatorLen = 8

// anchorAccountDiscriminator returns the 8-byte discriminator anchor derives
// from the account struct name.
func anchorAccountDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:anchorDiscriminatorLen]
}

// MarinadeList is an anchor-serialized account-backed list: item metadata
// here, items stored in a separate account.
type MarinadeList struct {
	Account     string
	ItemSize    uint32
	Count       uint32
	NewAccount  string
	CopiedCount uint32
}

// MarinadeStakeSystem tracks the program's managed stake accounts.
type MarinadeStakeSystem struct {
	StakeList                  MarinadeList
	DelayedUnstakeCoolingDown  uint64
	StakeDepositBumpSeed       uint8
	StakeWithdrawBumpSeed      uint8
	SlotsForStakeDelta         uint64
	LastStakeDeltaEpoch        uint64
	MinStake                   uint64
	ExtraStakeDeltaRuns        uint32
}

// MarinadeValidatorSystem tracks the program's validator set.
type MarinadeValidatorSystem struct {
	ValidatorList       MarinadeList
	ManagerAuthority    string
	TotalValidatorScore uint32
	TotalActiveBalance  uint64
	AutoAddValidator    uint8
}

// MarinadeLiqPool is the unstake liquidity pool configuration.
type MarinadeLiqPool struct {
	LpMint                 string
	LpMintAuthorityBump    uint8
	SolLegBumpSeed         uint8
	MsolLegAuthorityBump   uint8
	MsolLeg                string
	LpLiquidityTarget      uint64
	LpMaxFeeBps            uint32
	LpMinFeeBps            uint32
	TreasuryCutBps         uint32
	LpSupply               uint64
	LentFromSolLeg         uint64
	LiquiditySolCap        uint64
}

// MarinadeState is the decoded global state of the Marinade program.
type MarinadeState struct {
	MsolMint                  string
	AdminAuthority            string
	OperationalSolAccount     string
	TreasuryMsolAccount       string
	ReserveBumpSeed           uint8
	MsolMintAuthorityBumpSeed uint8
	RentExemptForTokenAcc     uint64
	RewardFeeBps              uint32
	StakeSystem               MarinadeStakeSystem
	ValidatorSystem           MarinadeValidatorSystem
	LiqPool                   MarinadeLiqPool
	AvailableReserveBalance   uint64
	MsolSupply                uint64
	MsolPrice                 uint64
	CirculatingTicketCount    uint64
	CirculatingTicketBalance  uint64
	LentFromReserve           uint64
	MinDeposit                uint64
	MinWithdraw               uint64
	StakingSolCap             uint64
	EmergencyCoolingDown      uint64
}

// ManagementFee returns the reward fee as a ratio.
func (s *MarinadeState) ManagementFee() float64 {
	return float64(s.RewardFeeBps) / marinadeFeeBasisPointsDenominator
}

// TotalCoolingDown is the stake in cooldown from both the delayed-unstake
// path and the emergency path.
func (s *MarinadeState) TotalCoolingDown() uint64 {
	return s.StakeSystem.DelayedUnstakeCoolingDown + s.EmergencyCoolingDown
}

// TotalLamportsUnderControl is all lamports the program manages: active
// stake, cooling down stake and the liquid reserve.
func (s *MarinadeState) TotalLamportsUnderControl() uint64 {
	return s.ValidatorSystem.TotalActiveBalance + s.TotalCoolingDown() + s.AvailableReserveBalance
}

// TotalVirtualStakedLamports is the lamports backing the outstanding mSOL
// supply: everything under control minus lamports already owed to pending
// unstake tickets. Saturates at zero.
func (s *MarinadeState) TotalVirtualStakedLamports() uint64 {
	total := s.TotalLamportsUnderControl()
	if s.CirculatingTicketBalance > total {
		return 0
	}
	return total - s.CirculatingTicketBalance
}

func (r *reader) marinadeList(what string) MarinadeList {
	return MarinadeList{
		Account:     r.pubkey(what + ".account"),
		ItemSize:    r.u32(what + ".item_size"),
		Count:       r.u32(what + ".count"),
		NewAccount:  r.pubkey(what + ".new_account"),
		CopiedCount: r.u32(what + ".copied_count"),
	}
}

// DecodeMarinadeState decodes the Marinade global state account. The buffer
// starts with the anchor discriminator for "State"; trailing bytes are
// reserved space and ignored.
func DecodeMarinadeState(data []byte) (*MarinadeState, error) {
	r := newReader(data)
	disc := r.take(anchorDiscriminatorLen, "discriminator")
	if r.err != nil {
		return nil, r.err
	}
	want := anchorAccountDiscriminator("State")
	if string(disc) != string(want) {
		return nil, fmt.Errorf("%w: account discriminator %s does not match Marinade State",
			ErrMalformedLayout, base58.Encode(disc))
	}

	s := &MarinadeState{}
	s.MsolMint = r.pubkey("msol_mint")
	s.AdminAuthority = r.pubkey("admin_authority")
	s.OperationalSolAccount = r.pubkey("operational_sol_account")
	s.TreasuryMsolAccount = r.pubkey("treasury_msol_account")
	s.ReserveBumpSeed = r.u8("reserve_bump_seed")
	s.MsolMintAuthorityBumpSeed = r.u8("msol_mint_authority_bump_seed")
	s.RentExemptForTokenAcc = r.u64("rent_exempt_for_token_acc")
	s.RewardFeeBps = r.u32("reward_fee.basis_points")

	s.StakeSystem = MarinadeStakeSystem{
		StakeList:                 r.marinadeList("stake_system.stake_list"),
		DelayedUnstakeCoolingDown: r.u64("stake_system.delayed_unstake_cooling_down"),
		StakeDepositBumpSeed:      r.u8("stake_system.stake_deposit_bump_seed"),
		StakeWithdrawBumpSeed:     r.u8("stake_system.stake_withdraw_bump_seed"),
		SlotsForStakeDelta:        r.u64("stake_system.slots_for_stake_delta"),
		LastStakeDeltaEpoch:       r.u64("stake_system.last_stake_delta_epoch"),
		MinStake:                  r.u64("stake_system.min_stake"),
		ExtraStakeDeltaRuns:       r.u32("stake_system.extra_stake_delta_runs"),
	}

	s.ValidatorSystem = MarinadeValidatorSystem{
		ValidatorList:       r.marinadeList("validator_system.validator_list"),
		ManagerAuthority:    r.pubkey("validator_system.manager_authority"),
		TotalValidatorScore: r.u32("validator_system.total_validator_score"),
		TotalActiveBalance:  r.u64("validator_system.total_active_balance"),
		AutoAddValidator:    r.u8("validator_system.auto_add_validator_enabled"),
	}

	s.LiqPool = MarinadeLiqPool{
		LpMint:               r.pubkey("liq_pool.lp_mint"),
		LpMintAuthorityBump:  r.u8("liq_pool.lp_mint_authority_bump_seed"),
		SolLegBumpSeed:       r.u8("liq_pool.sol_leg_bump_seed"),
		MsolLegAuthorityBump: r.u8("liq_pool.msol_leg_authority_bump_seed"),
		MsolLeg:              r.pubkey("liq_pool.msol_leg"),
		LpLiquidityTarget:    r.u64("liq_pool.lp_liquidity_target"),
		LpMaxFeeBps:          r.u32("liq_pool.lp_max_fee.basis_points"),
		LpMinFeeBps:          r.u32("liq_pool.lp_min_fee.basis_points"),
		TreasuryCutBps:       r.u32("liq_pool.treasury_cut.basis_points"),
		LpSupply:             r.u64("liq_pool.lp_supply"),
		LentFromSolLeg:       r.u64("liq_pool.lent_from_sol_leg"),
		LiquiditySolCap:      r.u64("liq_pool.liquidity_sol_cap"),
	}

	s.AvailableReserveBalance = r.u64("available_reserve_balance")
	s.MsolSupply = r.u64("msol_supply")
	s.MsolPrice = r.u64("msol_price")
	s.CirculatingTicketCount = r.u64("circulating_ticket_count")
	s.CirculatingTicketBalance = r.u64("circulating_ticket_balance")
	s.LentFromReserve = r.u64("lent_from_reserve")
	s.MinDeposit = r.u64("min_deposit")
	s.MinWithdraw = r.u64("min_withdraw")
	s.StakingSolCap = r.u64("staking_sol_cap")
	s.EmergencyCoolingDown = r.u64("emergency_cooling_down")

	if r.err != nil {
		return nil, r.err
	}
	return s, nil
}

// marinadeStakeRecordLen is the packed size of one stake list item.
const marinadeStakeRecordLen = 32 + 8 + 8 + 1

// MarinadeStakeRecord is one entry in Marinade's managed stake list.
type MarinadeStakeRecord struct {
	StakeAccount                string
	LastUpdateDelegatedLamports uint64
	LastUpdateEpoch             uint64
	IsEmergencyUnstaking        uint8
}

// DecodeMarinadeStakeList decodes the stake list account's items using the
// list metadata from the state. Items start after the anchor discriminator
// and are spaced ItemSize bytes apart.
func DecodeMarinadeStakeList(list MarinadeList, data []byte) ([]MarinadeStakeRecord, error) {
	if int(list.ItemSize) < marinadeStakeRecordLen {
		return nil, fmt.Errorf("%w: stake list item size %d is smaller than a stake record",
			ErrMalformedLayout, list.ItemSize)
	}
	records := make([]MarinadeStakeRecord, 0, list.Count)
	for i := uint32(0); i < list.Count; i++ {
		start := anchorDiscriminatorLen + int(i)*int(list.ItemSize)
		if start+marinadeStakeRecordLen > len(data) {
			return nil, fmt.Errorf("%w: stake list item %d of %d out of bounds (len %d)",
				ErrMalformedLayout, i, list.Count, len(data))
		}
		r := newReader(data[start : start+marinadeStakeRecordLen])
		rec := MarinadeStakeRecord{
			StakeAccount:                r.pubkey("stake_account"),
			LastUpdateDelegatedLamports: r.u64("last_update_delegated_lamports"),
			LastUpdateEpoch:             r.u64("last_update_epoch"),
			IsEmergencyUnstaking:        r.u8("is_emergency_unstaking"),
		}
		if r.err != nil {
			return nil, r.err
		}
		records = append(records, rec)
	}
	return records, nil
}
