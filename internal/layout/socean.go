package layout

import "fmt"

// Socean stake pool program constants. Socean is an early fork of the SPL
// stake pool program with a shorter account and no per-validator seed
// suffixes.
const (
	// SoceanProgramID is the mainnet Socean stake pool program.
	SoceanProgramID = "SP12tWFxD9oJsVWNavTTBZvMbA6gkAmxtVgxdqvyvhY"

	// SoceanStakePoolLen is the allocated size of a Socean pool account.
	SoceanStakePoolLen = 529
)

// SoceanStakePool is the decoded Socean stake pool header.
type SoceanStakePool struct {
	AccountType           uint8
	Manager               string
	Staker                string
	StakeDepositAuthority string
	StakeWithdrawBumpSeed uint8
	ValidatorList         string
	ReserveStake          string
	PoolMint              string
	ManagerFeeAccount     string
	TokenProgramID        string
	TotalStakeLamports    uint64
	PoolTokenSupply       uint64
	LastUpdateEpoch       uint64
	Lockup                Lockup
	Fee                   Fee
	WithdrawalFee         Fee
	SolDepositFee         Fee
	StakeDepositFee       Fee
}

// IsValid reports whether the account is initialized as a stake pool.
func (p *SoceanStakePool) IsValid() bool {
	return p.AccountType == AccountTypeStakePool
}

// DecodeSoceanStakePool decodes a Socean stake pool account. The buffer must
// be exactly SoceanStakePoolLen bytes; content past the serialized fields is
// allocation padding and ignored.
func DecodeSoceanStakePool(data []byte) (*SoceanStakePool, error) {
	if len(data) != SoceanStakePoolLen {
		return nil, fmt.Errorf("%w: socean stake pool account is %d bytes, want %d",
			ErrMalformedLayout, len(data), SoceanStakePoolLen)
	}

	r := newReader(data)
	p := &SoceanStakePool{}
	p.AccountType = r.u8("account_type")
	if r.err == nil && p.AccountType > AccountTypeValidatorList {
		return nil, fmt.Errorf("%w: unknown account type %d", ErrMalformedLayout, p.AccountType)
	}
	p.Manager = r.pubkey("manager")
	p.Staker = r.pubkey("staker")
	p.StakeDepositAuthority = r.pubkey("deposit_authority")
	p.StakeWithdrawBumpSeed = r.u8("withdraw_bump_seed")
	p.ValidatorList = r.pubkey("validator_list")
	p.ReserveStake = r.pubkey("reserve_stake")
	p.PoolMint = r.pubkey("pool_mint")
	p.ManagerFeeAccount = r.pubkey("manager_fee_account")
	p.TokenProgramID = r.pubkey("token_program_id")
	p.TotalStakeLamports = r.u64("total_stake_lamports")
	p.PoolTokenSupply = r.u64("pool_token_supply")
	p.LastUpdateEpoch = r.u64("last_update_epoch")
	p.Lockup = r.lockup("lockup")
	p.Fee = r.fee("fee")
	p.WithdrawalFee = r.fee("withdrawal_fee")
	p.SolDepositFee = r.fee("sol_deposit_fee")
	p.StakeDepositFee = r.fee("stake_deposit_fee")

	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

// soceanValidatorEntryLen is the packed size of one Socean validator entry.
const soceanValidatorEntryLen = 1 + 32 + 8 + 8 + 8

// SoceanValidatorStakeInfo is one entry in the Socean validator list.
// Unlike the upstream SPL layout there are no seed suffixes: stake account
// addresses derive from the vote account and pool alone.
type SoceanValidatorStakeInfo struct {
	Status                 StakeStatus
	VoteAccountAddress     string
	ActiveStakeLamports    uint64
	TransientStakeLamports uint64
	LastUpdateEpoch        uint64
}

// SoceanValidatorList is the decoded validator list account of a Socean pool.
type SoceanValidatorList struct {
	AccountType   uint8
	MaxValidators uint32
	Validators    []SoceanValidatorStakeInfo
}

// DecodeSoceanValidatorList decodes a Socean validator list account.
func DecodeSoceanValidatorList(data []byte) (*SoceanValidatorList, error) {
	r := newReader(data)
	l := &SoceanValidatorList{}
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
	if int(count)*soceanValidatorEntryLen > len(data)-r.off {
		return nil, fmt.Errorf("%w: validator list declares %d entries, buffer holds %d bytes",
			ErrMalformedLayout, count, len(data)-r.off)
	}

	l.Validators = make([]SoceanValidatorStakeInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		status, err := ParseStakeStatus(r.u8("status"))
		if r.err != nil {
			return nil, r.err
		}
		if err != nil {
			return nil, err
		}
		v := SoceanValidatorStakeInfo{
			Status:                 status,
			VoteAccountAddress:     r.pubkey("vote_account_address"),
			ActiveStakeLamports:    r.u64("active_stake_lamports"),
			TransientStakeLamports: r.u64("transient_stake_lamports"),
			LastUpdateEpoch:        r.u64("last_update_epoch"),
		}
		if r.err != nil {
			return nil, r.err
		}
		l.Validators = append(l.Validators, v)
	}
	return l, nil
}
