// Package solana provides JSON-RPC access to a Solana node: account reads,
// program scans, epoch context and block times, plus a WebSocket client for
// slot notifications. It is the live collaborator behind the ledger source
// interfaces.
package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the engine.
type RPCClient interface {
	// GetAccountInfo retrieves account info by public key. Returns nil if
	// the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetMultipleAccounts retrieves accounts for the pubkeys in order, with
	// nil entries for missing accounts.
	GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*AccountInfo, error)

	// GetProgramAccounts retrieves all accounts owned by a program,
	// optionally filtered to an exact data size. dataLen 0 disables the
	// filter.
	GetProgramAccounts(ctx context.Context, programID string, dataLen int) ([]KeyedAccountInfo, error)

	// GetInflationReward retrieves the inflation rewards credited to the
	// addresses for the epoch, aligned with the input order; nil entries
	// mean no reward.
	GetInflationReward(ctx context.Context, epoch uint64, addresses []string) ([]*InflationReward, error)

	// GetBlockTime retrieves the estimated production time of a block.
	// Returns nil for skipped or pruned slots.
	GetBlockTime(ctx context.Context, slot uint64) (*int64, error)

	// GetEpochInfo retrieves the current epoch and slot.
	GetEpochInfo(ctx context.Context) (*EpochInfo, error)

	// GetEpochSchedule retrieves the cluster's epoch schedule.
	GetEpochSchedule(ctx context.Context) (*EpochScheduleInfo, error)

	// GetSupply retrieves the cluster's SOL supply breakdown.
	GetSupply(ctx context.Context) (*SupplyInfo, error)

	// GetVoteAccounts retrieves the current and delinquent vote accounts.
	GetVoteAccounts(ctx context.Context) (*VoteAccountsInfo, error)

	// GetLatestBlockhash retrieves the most recent blockhash.
	GetLatestBlockhash(ctx context.Context) (string, error)
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte
	Executable bool
	RentEpoch  uint64
}

// KeyedAccountInfo pairs an account with its address, as returned by
// program scans.
type KeyedAccountInfo struct {
	Pubkey  string
	Account AccountInfo
}

// InflationReward is one address's reward for one epoch.
type InflationReward struct {
	Epoch         uint64 `json:"epoch"`
	EffectiveSlot uint64 `json:"effectiveSlot"`
	Amount        uint64 `json:"amount"`
	PostBalance   uint64 `json:"postBalance"`
}

// EpochInfo is the cluster's current epoch position.
type EpochInfo struct {
	Epoch        uint64 `json:"epoch"`
	AbsoluteSlot uint64 `json:"absoluteSlot"`
	SlotIndex    uint64 `json:"slotIndex"`
	SlotsInEpoch uint64 `json:"slotsInEpoch"`
	BlockHeight  uint64 `json:"blockHeight"`
}

// EpochScheduleInfo is the cluster's epoch schedule parameters.
type EpochScheduleInfo struct {
	SlotsPerEpoch            uint64 `json:"slotsPerEpoch"`
	LeaderScheduleSlotOffset uint64 `json:"leaderScheduleSlotOffset"`
	Warmup                   bool   `json:"warmup"`
	FirstNormalEpoch         uint64 `json:"firstNormalEpoch"`
	FirstNormalSlot          uint64 `json:"firstNormalSlot"`
}

// SupplyInfo is the cluster's SOL supply breakdown in lamports.
type SupplyInfo struct {
	Total          uint64 `json:"total"`
	Circulating    uint64 `json:"circulating"`
	NonCirculating uint64 `json:"nonCirculating"`
}

// VoteAccountInfo is one validator's vote account.
type VoteAccountInfo struct {
	VotePubkey     string `json:"votePubkey"`
	NodePubkey     string `json:"nodePubkey"`
	ActivatedStake uint64 `json:"activatedStake"`
	Commission     uint8  `json:"commission"`
	EpochVoteAcc   bool   `json:"epochVoteAccount"`
}

// VoteAccountsInfo splits vote accounts into current and delinquent sets.
type VoteAccountsInfo struct {
	Current    []VoteAccountInfo `json:"current"`
	Delinquent []VoteAccountInfo `json:"delinquent"`
}

// TotalActivatedStake sums activated stake over current and delinquent
// validators.
func (v *VoteAccountsInfo) TotalActivatedStake() uint64 {
	var total uint64
	for _, a := range v.Current {
		total += a.ActivatedStake
	}
	for _, a := range v.Delinquent {
		total += a.ActivatedStake
	}
	return total
}
