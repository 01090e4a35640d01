// Package ledger abstracts read access to a ledger snapshot: accounts,
// epoch context and rewards. Implementations back it with a live RPC node
// or an in-memory snapshot for offline runs and tests.
package ledger

import (
	"context"
	"errors"

	"solana-stakepool-lab/internal/layout"
)

// ErrAccountNotFound is returned when an address has no account at the
// snapshot's slot.
var ErrAccountNotFound = errors.New("account not found")

// ErrBlockTimeUnavailable is returned for slots whose block time is skipped
// or outside the node's retention window.
var ErrBlockTimeUnavailable = errors.New("block time unavailable")

// Account is the balance, owner and raw data of one on-chain account.
type Account struct {
	Lamports uint64
	Owner    string
	Data     []byte
}

// KeyedAccount pairs an account with its address for program scans.
type KeyedAccount struct {
	Address string
	Account Account
}

// EpochContext is the snapshot-wide state every extraction run anchors to.
type EpochContext struct {
	Epoch    uint64
	Slot     uint64
	BankHash string
}

// AccountSource reads accounts and snapshot context from a ledger.
type AccountSource interface {
	// Account returns the account at address, ErrAccountNotFound if absent.
	Account(ctx context.Context, address string) (*Account, error)

	// MultipleAccounts returns accounts for the addresses in order, with
	// nil entries for addresses that do not exist.
	MultipleAccounts(ctx context.Context, addresses []string) ([]*Account, error)

	// ProgramAccounts returns all accounts owned by program whose data is
	// exactly dataLen bytes. dataLen 0 disables the length filter.
	ProgramAccounts(ctx context.Context, program string, dataLen int) ([]KeyedAccount, error)

	// EpochContext returns the epoch, slot and bank hash of the snapshot.
	EpochContext(ctx context.Context) (EpochContext, error)

	// CirculatingSupply returns the circulating SOL supply in lamports.
	CirculatingSupply(ctx context.Context) (uint64, error)

	// TotalEpochStake returns the total active stake of the epoch.
	TotalEpochStake(ctx context.Context) (uint64, error)
}

// RewardsSource resolves inflation rewards credited at an epoch boundary.
type RewardsSource interface {
	// InflationRewards returns the rewards paid to the addresses for the
	// epoch, keyed by address. Addresses that earned nothing are absent.
	InflationRewards(ctx context.Context, epoch uint64, addresses []string) (map[string]uint64, error)
}

// BlockTimeSource reads block times and the epoch schedule, used to measure
// wall-clock epoch duration.
type BlockTimeSource interface {
	// BlockTime returns the unix timestamp of the slot's block,
	// ErrBlockTimeUnavailable when the slot was skipped or pruned.
	BlockTime(ctx context.Context, slot uint64) (int64, error)

	// EpochSchedule returns the cluster's epoch schedule.
	EpochSchedule(ctx context.Context) (EpochSchedule, error)
}

// ActivationSplit breaks a delegation's stake down by lifecycle at an epoch.
// Effective + Activating + Deactivating + Inactive equals the delegated
// stake.
type ActivationSplit struct {
	Effective    uint64
	Activating   uint64
	Deactivating uint64
	Inactive     uint64
}

// SplitDelegation classifies delegated stake at the given epoch using a
// single-epoch ramp: stake delegated at epoch E is activating during E and
// effective from E+1; stake deactivated at epoch D still earns during D and
// is inactive from D+1. Bootstrap delegations (activation epoch of
// MaxUint64 without deactivation) are fully effective.
func SplitDelegation(d layout.Delegation, epoch uint64) ActivationSplit {
	stake := d.Stake

	if d.Deactivating() {
		switch {
		case epoch > d.DeactivationEpoch:
			return ActivationSplit{Inactive: stake}
		case epoch == d.DeactivationEpoch:
			// Deactivated in the epoch it was still activating: never earned.
			if d.ActivationEpoch == d.DeactivationEpoch {
				return ActivationSplit{Inactive: stake}
			}
			return ActivationSplit{Deactivating: stake}
		}
	}

	if d.ActivationEpoch == layout.NoDeactivationEpoch {
		// Bootstrap stake, effective since genesis.
		return ActivationSplit{Effective: stake}
	}
	switch {
	case epoch < d.ActivationEpoch:
		return ActivationSplit{Inactive: stake}
	case epoch == d.ActivationEpoch:
		return ActivationSplit{Activating: stake}
	default:
		return ActivationSplit{Effective: stake}
	}
}
