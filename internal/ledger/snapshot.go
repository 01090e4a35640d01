package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Snapshot is an in-memory ledger view loaded from a JSON file. It backs
// offline extraction runs and tests, implementing AccountSource,
// RewardsSource and BlockTimeSource against captured data.
type Snapshot struct {
	Context    EpochContext
	Supply     uint64
	EpochStake uint64
	Schedule   EpochSchedule
	Accounts   map[string]Account
	Rewards    map[uint64]map[string]uint64
	BlockTimes map[uint64]int64
}

type snapshotFile struct {
	Epoch             uint64                       `json:"epoch"`
	Slot              uint64                       `json:"slot"`
	BankHash          string                       `json:"bank_hash"`
	CirculatingSupply uint64                       `json:"circulating_supply"`
	TotalEpochStake   uint64                       `json:"total_epoch_stake"`
	EpochSchedule     EpochSchedule                `json:"epoch_schedule"`
	Accounts          map[string]snapshotAccount   `json:"accounts"`
	InflationRewards  map[uint64]map[string]uint64 `json:"inflation_rewards"`
	BlockTimes        map[uint64]int64             `json:"block_times"`
}

type snapshotAccount struct {
	Lamports uint64 `json:"lamports"`
	Owner    string `json:"owner"`
	Data     string `json:"data"` // base64
}

// LoadSnapshot reads a snapshot from a JSON file.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// ReadSnapshot decodes a snapshot from JSON.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var file snapshotFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	s := &Snapshot{
		Context:    EpochContext{Epoch: file.Epoch, Slot: file.Slot, BankHash: file.BankHash},
		Supply:     file.CirculatingSupply,
		EpochStake: file.TotalEpochStake,
		Schedule:   file.EpochSchedule,
		Accounts:   make(map[string]Account, len(file.Accounts)),
		Rewards:    file.InflationRewards,
		BlockTimes: file.BlockTimes,
	}
	for address, acc := range file.Accounts {
		data, err := base64.StdEncoding.DecodeString(acc.Data)
		if err != nil {
			return nil, fmt.Errorf("decode account %s data: %w", address, err)
		}
		s.Accounts[address] = Account{Lamports: acc.Lamports, Owner: acc.Owner, Data: data}
	}
	return s, nil
}

// Account implements AccountSource.
func (s *Snapshot) Account(_ context.Context, address string) (*Account, error) {
	acc, ok := s.Accounts[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	return &acc, nil
}

// MultipleAccounts implements AccountSource.
func (s *Snapshot) MultipleAccounts(_ context.Context, addresses []string) ([]*Account, error) {
	out := make([]*Account, len(addresses))
	for i, address := range addresses {
		if acc, ok := s.Accounts[address]; ok {
			a := acc
			out[i] = &a
		}
	}
	return out, nil
}

// ProgramAccounts implements AccountSource. Results are ordered by address
// so runs over the same snapshot are deterministic.
func (s *Snapshot) ProgramAccounts(_ context.Context, program string, dataLen int) ([]KeyedAccount, error) {
	var out []KeyedAccount
	for address, acc := range s.Accounts {
		if acc.Owner != program {
			continue
		}
		if dataLen != 0 && len(acc.Data) != dataLen {
			continue
		}
		out = append(out, KeyedAccount{Address: address, Account: acc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// EpochContext implements AccountSource.
func (s *Snapshot) EpochContext(context.Context) (EpochContext, error) {
	return s.Context, nil
}

// CirculatingSupply implements AccountSource.
func (s *Snapshot) CirculatingSupply(context.Context) (uint64, error) {
	return s.Supply, nil
}

// TotalEpochStake implements AccountSource.
func (s *Snapshot) TotalEpochStake(context.Context) (uint64, error) {
	return s.EpochStake, nil
}

// InflationRewards implements RewardsSource.
func (s *Snapshot) InflationRewards(_ context.Context, epoch uint64, addresses []string) (map[string]uint64, error) {
	epochRewards := s.Rewards[epoch]
	out := make(map[string]uint64)
	for _, address := range addresses {
		if amount, ok := epochRewards[address]; ok {
			out[address] = amount
		}
	}
	return out, nil
}

// BlockTime implements BlockTimeSource.
func (s *Snapshot) BlockTime(_ context.Context, slot uint64) (int64, error) {
	ts, ok := s.BlockTimes[slot]
	if !ok {
		return 0, fmt.Errorf("%w: slot %d", ErrBlockTimeUnavailable, slot)
	}
	return ts, nil
}

// EpochSchedule implements BlockTimeSource.
func (s *Snapshot) EpochSchedule(context.Context) (EpochSchedule, error) {
	return s.Schedule, nil
}
