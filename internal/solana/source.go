package solana

import (
	"context"
	"errors"
	"fmt"

	"solana-stakepool-lab/internal/ledger"
)

// Slot-skipped and long-term-storage error codes returned by getBlockTime.
const (
	codeSlotSkipped         = -32007
	codeLongTermStorageSlot = -32009
	codeBlockNotAvailable   = -32004
	codeBlockCleanedUp      = -32001
)

func isSlotSkippedCode(code int) bool {
	switch code {
	case codeSlotSkipped, codeLongTermStorageSlot, codeBlockNotAvailable, codeBlockCleanedUp:
		return true
	}
	return false
}

// Source adapts an RPCClient to the ledger source interfaces, letting the
// extraction pipeline run against a live node instead of a stored snapshot.
type Source struct {
	client RPCClient
}

// NewSource creates a ledger source backed by the RPC client.
func NewSource(client RPCClient) *Source {
	return &Source{client: client}
}

// Compile-time interface checks.
var (
	_ ledger.AccountSource   = (*Source)(nil)
	_ ledger.RewardsSource   = (*Source)(nil)
	_ ledger.BlockTimeSource = (*Source)(nil)
)

// Account returns the account at address, ledger.ErrAccountNotFound if the
// address holds nothing.
func (s *Source) Account(ctx context.Context, address string) (*ledger.Account, error) {
	info, err := s.client.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, address)
	}
	return &ledger.Account{Lamports: info.Lamports, Owner: info.Owner, Data: info.Data}, nil
}

// AccountData returns the raw data of the account at address. Implements
// the live-price fallback fetcher.
func (s *Source) AccountData(ctx context.Context, address string) ([]byte, error) {
	acc, err := s.Account(ctx, address)
	if err != nil {
		return nil, err
	}
	return acc.Data, nil
}

// MultipleAccounts returns accounts for the addresses in order, nil for
// addresses that do not exist.
func (s *Source) MultipleAccounts(ctx context.Context, addresses []string) ([]*ledger.Account, error) {
	infos, err := s.client.GetMultipleAccounts(ctx, addresses)
	if err != nil {
		return nil, err
	}

	accounts := make([]*ledger.Account, len(infos))
	for i, info := range infos {
		if info == nil {
			continue
		}
		accounts[i] = &ledger.Account{Lamports: info.Lamports, Owner: info.Owner, Data: info.Data}
	}
	return accounts, nil
}

// ProgramAccounts returns all accounts owned by program with exactly
// dataLen bytes of data. dataLen 0 disables the length filter.
func (s *Source) ProgramAccounts(ctx context.Context, program string, dataLen int) ([]ledger.KeyedAccount, error) {
	infos, err := s.client.GetProgramAccounts(ctx, program, dataLen)
	if err != nil {
		return nil, err
	}

	accounts := make([]ledger.KeyedAccount, 0, len(infos))
	for _, info := range infos {
		accounts = append(accounts, ledger.KeyedAccount{
			Address: info.Pubkey,
			Account: ledger.Account{
				Lamports: info.Account.Lamports,
				Owner:    info.Account.Owner,
				Data:     info.Account.Data,
			},
		})
	}
	return accounts, nil
}

// EpochContext anchors a run to the node's current epoch and slot. The
// latest blockhash stands in for the bank hash as the state fingerprint.
func (s *Source) EpochContext(ctx context.Context) (ledger.EpochContext, error) {
	info, err := s.client.GetEpochInfo(ctx)
	if err != nil {
		return ledger.EpochContext{}, err
	}
	blockhash, err := s.client.GetLatestBlockhash(ctx)
	if err != nil {
		return ledger.EpochContext{}, err
	}
	return ledger.EpochContext{
		Epoch:    info.Epoch,
		Slot:     info.AbsoluteSlot,
		BankHash: blockhash,
	}, nil
}

// CirculatingSupply returns the circulating SOL supply in lamports.
func (s *Source) CirculatingSupply(ctx context.Context) (uint64, error) {
	supply, err := s.client.GetSupply(ctx)
	if err != nil {
		return 0, err
	}
	return supply.Circulating, nil
}

// TotalEpochStake sums activated stake across all vote accounts.
func (s *Source) TotalEpochStake(ctx context.Context) (uint64, error) {
	votes, err := s.client.GetVoteAccounts(ctx)
	if err != nil {
		return 0, err
	}
	return votes.TotalActivatedStake(), nil
}

// InflationRewards returns the epoch rewards keyed by address. Addresses
// that earned nothing are absent from the map.
func (s *Source) InflationRewards(ctx context.Context, epoch uint64, addresses []string) (map[string]uint64, error) {
	rewards, err := s.client.GetInflationReward(ctx, epoch, addresses)
	if err != nil {
		return nil, err
	}
	if len(rewards) != len(addresses) {
		return nil, fmt.Errorf("inflation rewards: got %d entries for %d addresses", len(rewards), len(addresses))
	}

	out := make(map[string]uint64)
	for i, r := range rewards {
		if r != nil && r.Amount > 0 {
			out[addresses[i]] = r.Amount
		}
	}
	return out, nil
}

// BlockTime returns the unix timestamp of the slot's block.
func (s *Source) BlockTime(ctx context.Context, slot uint64) (int64, error) {
	ts, err := s.client.GetBlockTime(ctx, slot)
	if err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) && isSlotSkippedCode(rpcErr.Code) {
			return 0, fmt.Errorf("%w: slot %d", ledger.ErrBlockTimeUnavailable, slot)
		}
		return 0, err
	}
	if ts == nil {
		return 0, fmt.Errorf("%w: slot %d", ledger.ErrBlockTimeUnavailable, slot)
	}
	return *ts, nil
}

// EpochSchedule returns the cluster's epoch schedule.
func (s *Source) EpochSchedule(ctx context.Context) (ledger.EpochSchedule, error) {
	info, err := s.client.GetEpochSchedule(ctx)
	if err != nil {
		return ledger.EpochSchedule{}, err
	}
	return ledger.EpochSchedule{
		SlotsPerEpoch:    info.SlotsPerEpoch,
		FirstNormalEpoch: info.FirstNormalEpoch,
		FirstNormalSlot:  info.FirstNormalSlot,
		Warmup:           info.Warmup,
	}, nil
}
