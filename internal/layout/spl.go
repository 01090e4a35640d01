package layout

import "fmt"

// SPL stake pool program constants.
const (
	// StakePoolProgramID is the mainnet SPL stake pool program.
	StakePoolProgramID = "SPoo1Ku8WFXoNDMHPsrGSTSG1Y47rzgn41SLUNakuHy"

	// SplStakePoolLen is the allocated size of an SPL stake pool account.
	// Used as the program-scan length filter.
	SplStakePoolLen = 611

	// TransientStakeSeedPrefix prefixes transient stake account seeds.
	TransientStakeSeedPrefix = "transient"
)

// Account type discriminants shared by the pool and validator list accounts.
const (
	AccountTypeUninitialized uint8 = 0
	AccountTypeStakePool     uint8 = 1
	AccountTypeValidatorList uint8 = 2
)

// StakeStatus is a validator's lifecycle status within a pool.
type StakeStatus uint8

const (
	StakeStatusActive StakeStatus = iota
	StakeStatusDeactivatingTransient
	StakeStatusReadyForRemoval
	StakeStatusDeactivatingValidator
	StakeStatusDeactivatingAll
)

var stakeStatusNames = [...]string{
	"Active",
	"DeactivatingTransient",
	"ReadyForRemoval",
	"DeactivatingValidator",
	"DeactivatingAll",
}

func (s StakeStatus) String() string {
	if int(s) < len(stakeStatusNames) {
		return stakeStatusNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// ParseStakeStatus validates a raw status byte.
func ParseStakeStatus(b uint8) (StakeStatus, error) {
	if int(b) >= len(stakeStatusNames) {
		return 0, fmt.Errorf("%w: invalid stake status %d", ErrMalformedLayout, b)
	}
	return StakeStatus(b), nil
}

// SplStakePool is the decoded SPL stake pool header.
type SplStakePool struct {
	AccountType              uint8
	Manager                  string
	Staker                   string
	StakeDepositAuthority    string
	StakeWithdrawBumpSeed    uint8
	ValidatorList            string
	ReserveStake             string
	PoolMint                 string
	ManagerFeeAccount        string
	TokenProgramID           string
	TotalLamports            uint64
	PoolTokenSupply          uint64
	LastUpdateEpoch          uint64
	Lockup                   Lockup
	EpochFee                 Fee
	NextEpochFee             *Fee
	PreferredDepositVote     string
	PreferredWithdrawVote    string
	StakeDepositFee          Fee
	StakeWithdrawalFee       Fee
	NextStakeWithdrawal      *Fee
	StakeReferralFee         uint8
	SolDepositAuthority      string
	SolDepositFee            Fee
	SolReferralFee           uint8
	SolWithdrawAuthority     string
	SolWithdrawalFee         Fee
	NextSolWithdrawalFee     *Fee
	LastEpochPoolTokenSupply uint64
	LastEpochTotalLamports   uint64
}

// IsValid reports whether the account is initialized as a stake pool.
func (p *SplStakePool) IsValid() bool {
	return p.AccountType == AccountTypeStakePool
}

// DecodeSplStakePool decodes an SPL stake pool account. The buffer must be
// exactly SplStakePoolLen bytes; content past the serialized fields is
// allocation padding and ignored.
func DecodeSplStakePool(data []byte) (*SplStakePool, error) {
	if len(data) != SplStakePoolLen {
		return nil, fmt.Errorf("%w: spl stake pool account is %d bytes, want %d",
			ErrMalformedLayout, len(data), SplStakePoolLen)
	}

	r := newReader(data)
	p := &SplStakePool{}
	p.AccountType = r.u8("account_type")
	if r.err == nil && p.AccountType > AccountTypeValidatorList {
		return nil, fmt.Errorf("%w: unknown account type %d", ErrMalformedLayout, p.AccountType)
	}
	p.Manager = r.pubkey("manager")
	p.Staker = r.pubkey("staker")
	p.StakeDepositAuthority = r.pubkey("stake_deposit_authority")
	p.StakeWithdrawBumpSeed = r.u8("stake_withdraw_bump_seed")
	p.ValidatorList = r.pubkey("validator_list")
	p.ReserveStake = r.pubkey("reserve_stake")
	p.PoolMint = r.pubkey("pool_mint")
	p.ManagerFeeAccount = r.pubkey("manager_fee_account")
	p.TokenProgramID = r.pubkey("token_program_id")
	p.TotalLamports = r.u64("total_lamports")
	p.PoolTokenSupply = r.u64("pool_token_supply")
	p.LastUpdateEpoch = r.u64("last_update_epoch")
	p.Lockup = r.lockup("lockup")
	p.EpochFee = r.fee("epoch_fee")
	p.NextEpochFee = r.futureFee("next_epoch_fee")
	p.PreferredDepositVote = r.optionPubkey("preferred_deposit_validator")
	p.PreferredWithdrawVote = r.optionPubkey("preferred_withdraw_validator")
	p.StakeDepositFee = r.fee("stake_deposit_fee")
	p.StakeWithdrawalFee = r.fee("stake_withdrawal_fee")
	p.NextStakeWithdrawal = r.futureFee("next_stake_withdrawal_fee")
	p.StakeReferralFee = r.u8("stake_referral_fee")
	p.SolDepositAuthority = r.optionPubkey("sol_deposit_authority")
	p.SolDepositFee = r.fee("sol_deposit_fee")
	p.SolReferralFee = r.u8("sol_referral_fee")
	p.SolWithdrawAuthority = r.optionPubkey("sol_withdraw_authority")
	p.SolWithdrawalFee = r.fee("sol_withdrawal_fee")
	p.NextSolWithdrawalFee = r.futureFee("next_sol_withdrawal_fee")
	p.LastEpochPoolTokenSupply = r.u64("last_epoch_pool_token_supply")
	p.LastEpochTotalLamports = r.u64("last_epoch_total_lamports")

	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

// splValidatorEntryLen is the packed size of one validator list entry.
const splValidatorEntryLen = 8 + 8 + 8 + 8 + 4 + 4 + 1 + 32

// SplValidatorStakeInfo is one entry in the SPL validator list.
type SplValidatorStakeInfo struct {
	ActiveStakeLamports    uint64
	TransientStakeLamports uint64
	LastUpdateEpoch        uint64
	// TransientSeedSuffix derives the transient stake account address.
	TransientSeedSuffix uint64
	// ValidatorSeedSuffix derives the active stake account address.
	// Really Option<NonZeroU32>: 0 means no seed.
	ValidatorSeedSuffix uint32
	Status              StakeStatus
	VoteAccountAddress  string
}

// SplValidatorList is the decoded validator list account of an SPL pool.
type SplValidatorList struct {
	AccountType   uint8
	MaxValidators uint32
	Validators    []SplValidatorStakeInfo
}

// DecodeSplValidatorList decodes a validator list account: a header followed
// by a length-prefixed array of fixed-size validator entries.
func DecodeSplValidatorList(data []byte) (*SplValidatorList, error) {
	r := newReader(data)
	l := &SplValidatorList{}
	l.AccountType = r.u8("account_type")
	if r.err == nil && l.AccountType != AccountTypeValidatorList {
		return nil, fmt.Errorf("%w: account type %d is not a validator list",
			ErrMalformedLayout, l.AccountType)
	}
	l.MaxValidators = r.u32("max_validators")
	count := r.u32("validators.len")
	if r.err != nil {
		return nil, r.err
	}
	if int(count)*splValidatorEntryLen > len(data)-r.off {
		return nil, fmt.Errorf("%w: validator list declares %d entries, buffer holds %d bytes",
			ErrMalformedLayout, count, len(data)-r.off)
	}

	l.Validators = make([]SplValidatorStakeInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		v := SplValidatorStakeInfo{
			ActiveStakeLamports:    r.u64("active_stake_lamports"),
			TransientStakeLamports: r.u64("transient_stake_lamports"),
			LastUpdateEpoch:        r.u64("last_update_epoch"),
			TransientSeedSuffix:    r.u64("transient_seed_suffix"),
		}
		_ = r.u32("unused")
		v.ValidatorSeedSuffix = r.u32("validator_seed_suffix")
		status, err := ParseStakeStatus(r.u8("status"))
		if r.err != nil {
			return nil, r.err
		}
		if err != nil {
			return nil, err
		}
		v.Status = status
		v.VoteAccountAddress = r.pubkey("vote_account_address")
		if r.err != nil {
			return nil, r.err
		}
		l.Validators = append(l.Validators, v)
	}
	return l, nil
}
