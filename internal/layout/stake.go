package layout

import (
	"fmt"
	"math"
)

// Native stake program constants.
const (
	// StakeProgramID is the native stake program.
	StakeProgramID = "Stake11111111111111111111111111111111111111"

	// StakeAccountLen is the allocated size of a native stake account.
	StakeAccountLen = 200

	// NoDeactivationEpoch marks a delegation with no deactivation scheduled.
	NoDeactivationEpoch = math.MaxUint64
)

// Stake state discriminants (bincode u32 enum tag).
const (
	StakeStateUninitialized uint32 = 0
	StakeStateInitialized   uint32 = 1
	StakeStateStake         uint32 = 2
	StakeStateRewardsPool   uint32 = 3
)

// StakeMeta holds the rent reserve and authorities of a stake account.
type StakeMeta struct {
	RentExemptReserve    uint64
	AuthorizedStaker     string
	AuthorizedWithdrawer string
	Lockup               Lockup
}

// Delegation describes a stake account's delegation to a vote account.
type Delegation struct {
	VoterPubkey        string
	Stake              uint64
	ActivationEpoch    uint64
	DeactivationEpoch  uint64
	WarmupCooldownRate float64
}

// Deactivating reports whether a deactivation epoch has been set.
func (d Delegation) Deactivating() bool {
	return d.DeactivationEpoch != NoDeactivationEpoch
}

// StakeAccount is the decoded state of a native stake account.
// Meta is set for Initialized and Stake states; Delegation only for Stake.
type StakeAccount struct {
	State           uint32
	Meta            *StakeMeta
	Delegation      *Delegation
	CreditsObserved uint64
}

// IsDelegated reports whether the account carries an active delegation.
func (a *StakeAccount) IsDelegated() bool {
	return a.State == StakeStateStake && a.Delegation != nil
}

// MinimumReserve returns the lamports that must stay in the account and are
// excluded from pool token conversions.
func (a *StakeAccount) MinimumReserve() uint64 {
	if a.Meta == nil {
		return 0
	}
	return a.Meta.RentExemptReserve
}

// DecodeStakeAccount decodes a native stake account (bincode layout:
// u32 enum tag, then Meta and optionally Stake).
func DecodeStakeAccount(data []byte) (*StakeAccount, error) {
	r := newReader(data)
	a := &StakeAccount{}
	a.State = r.u32("state")
	if r.err != nil {
		return nil, r.err
	}

	switch a.State {
	case StakeStateUninitialized, StakeStateRewardsPool:
		return a, nil
	case StakeStateInitialized, StakeStateStake:
	default:
		return nil, fmt.Errorf("%w: unknown stake state %d", ErrMalformedLayout, a.State)
	}

	meta := &StakeMeta{
		RentExemptReserve:    r.u64("meta.rent_exempt_reserve"),
		AuthorizedStaker:     r.pubkey("meta.authorized.staker"),
		AuthorizedWithdrawer: r.pubkey("meta.authorized.withdrawer"),
		Lockup:               r.lockup("meta.lockup"),
	}
	a.Meta = meta

	if a.State == StakeStateStake {
		d := &Delegation{
			VoterPubkey:       r.pubkey("delegation.voter_pubkey"),
			Stake:             r.u64("delegation.stake"),
			ActivationEpoch:   r.u64("delegation.activation_epoch"),
			DeactivationEpoch: r.u64("delegation.deactivation_epoch"),
		}
		d.WarmupCooldownRate = math.Float64frombits(r.u64("delegation.warmup_cooldown_rate"))
		a.Delegation = d
		a.CreditsObserved = r.u64("stake.credits_observed")
	}

	if r.err != nil {
		return nil, r.err
	}
	return a, nil
}
