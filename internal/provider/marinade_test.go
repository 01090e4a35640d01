package provider

import (
	"context"
	"errors"
	"testing"

	"solana-stakepool-lab/internal/jito"
	"solana-stakepool-lab/internal/layout"
	"solana-stakepool-lab/internal/ledger"
	"solana-stakepool-lab/internal/pda"
)

// encodeMarinadeStakeList packs stake records at the list's item size.
func encodeMarinadeStakeList(t *testing.T, itemSize uint32, records []layout.MarinadeStakeRecord) []byte {
	t.Helper()
	e := &encoder{}
	e.pad(8) // anchor discriminator
	for _, rec := range records {
		start := len(e.buf)
		e.pubkey(t, rec.StakeAccount)
		e.u64(rec.LastUpdateDelegatedLamports)
		e.u64(rec.LastUpdateEpoch)
		e.u8(rec.IsEmergencyUnstaking)
		e.pad(start + int(itemSize) - len(e.buf))
	}
	return e.buf
}

func marinadeFixture(t *testing.T) (*ledger.Snapshot, string, *layout.MarinadeState) {
	t.Helper()

	stateAddr := layout.MarinadeStateAddress
	listAddr := fixedKey(0x40)
	stake1 := fixedKey(0x41)
	stake2 := fixedKey(0x42)
	vote1 := fixedKey(0x43)
	vote2 := fixedKey(0x44)

	state := &layout.MarinadeState{
		MsolMint:              fixedKey(0x45),
		AdminAuthority:        fixedKey(0x46),
		RentExemptForTokenAcc: 2_039_280,
		RewardFeeBps:          600,
		MsolSupply:            8_000_000_000,
	}
	state.StakeSystem.StakeList = layout.MarinadeList{Account: listAddr, ItemSize: 64, Count: 2}
	state.ValidatorSystem.TotalActiveBalance = 9_000_000_000

	reserveAddr, err := pda.MarinadeReserveAddress(layout.MarinadeProgramID, stateAddr)
	if err != nil {
		t.Fatal(err)
	}

	const rent = 2_282_880
	snapshot := &ledger.Snapshot{
		Context: ledger.EpochContext{Epoch: testEpoch},
		Accounts: map[string]ledger.Account{
			listAddr: {Owner: layout.MarinadeProgramID, Data: encodeMarinadeStakeList(t, 64, []layout.MarinadeStakeRecord{
				{StakeAccount: stake1, LastUpdateDelegatedLamports: 6_000_000_000, LastUpdateEpoch: testEpoch},
				{StakeAccount: stake2, LastUpdateDelegatedLamports: 3_000_000_000, LastUpdateEpoch: testEpoch},
			})},
			// 6 SOL long active.
			stake1: {
				Lamports: 6_000_000_000 + rent,
				Owner:    layout.StakeProgramID,
				Data:     encodeDelegatedStake(t, rent, vote1, 6_000_000_000, 100, layout.NoDeactivationEpoch),
			},
			// 3 SOL deactivating this epoch.
			stake2: {
				Lamports: 3_000_000_000 + rent,
				Owner:    layout.StakeProgramID,
				Data:     encodeDelegatedStake(t, rent, vote2, 3_000_000_000, 100, testEpoch),
			},
			reserveAddr: {Lamports: 500_000_000 + state.RentExemptForTokenAcc, Owner: "11111111111111111111111111111111"},
		},
		Rewards: map[uint64]map[string]uint64{
			testEpoch: {stake1: 5_000_000, stake2: 2_000_000},
		},
	}
	return snapshot, stateAddr, state
}

func TestBuildMarinadeMeta(t *testing.T) {
	snapshot, stateAddr, state := marinadeFixture(t)
	src := BuildSources{Accounts: snapshot, Rewards: snapshot, Tips: jito.RewardsLookup{fixedKey(0x41): 700_000}}

	meta, err := BuildMarinadeMeta(context.Background(), src, stateAddr, state, testEpoch)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if meta.ManagementFee != 0.06 {
		t.Fatalf("management fee = %v", meta.ManagementFee)
	}
	if meta.StakeAccountCount != 2 {
		t.Fatalf("stake account count = %d", meta.StakeAccountCount)
	}
	if meta.ReserveLamports != 500_000_000 {
		t.Fatalf("reserve lamports = %d", meta.ReserveLamports)
	}
	// Both validators carry at least 1 SOL delegated.
	if meta.StakedValidatorCount != 2 {
		t.Fatalf("staked validators = %d", meta.StakedValidatorCount)
	}

	s := meta.Summary()
	if s.Provider != ProviderMarinade {
		t.Fatalf("provider = %q", s.Provider)
	}
	if s.Allocation.Active != 6_000_000_000 {
		t.Fatalf("active = %d", s.Allocation.Active)
	}
	if s.Allocation.Deactivating != 3_000_000_000 {
		t.Fatalf("deactivating = %d", s.Allocation.Deactivating)
	}
	if s.Allocation.Undelegated != 500_000_000 {
		t.Fatalf("undelegated = %d", s.Allocation.Undelegated)
	}
	if s.Rewards.Inflation != 7_000_000 || s.Rewards.Jito != 700_000 {
		t.Fatalf("rewards = %+v", s.Rewards)
	}
	// Virtual stake: 9 SOL active + 0 cooling + 0 reserve field.
	if want := float64(9_000_000_000) / float64(8_000_000_000); s.LstPrice != want {
		t.Fatalf("lst price = %v, want %v", s.LstPrice, want)
	}
}

func TestBuildMarinadeMetaMissingStakeList(t *testing.T) {
	snapshot, stateAddr, state := marinadeFixture(t)
	delete(snapshot.Accounts, state.StakeSystem.StakeList.Account)
	src := BuildSources{Accounts: snapshot, Rewards: snapshot, Tips: nil}

	_, err := BuildMarinadeMeta(context.Background(), src, stateAddr, state, testEpoch)
	if !errors.Is(err, ErrRequiredAccountMissing) {
		t.Fatalf("err = %v, want ErrRequiredAccountMissing", err)
	}
}

func TestBuildMarinadeMetaSkipsRemovedAccounts(t *testing.T) {
	snapshot, stateAddr, state := marinadeFixture(t)
	delete(snapshot.Accounts, fixedKey(0x42))
	src := BuildSources{Accounts: snapshot, Rewards: snapshot, Tips: nil}

	meta, err := BuildMarinadeMeta(context.Background(), src, stateAddr, state, testEpoch)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if meta.Allocation.Deactivating != 0 {
		t.Fatalf("deactivating = %d, want 0", meta.Allocation.Deactivating)
	}
	if meta.Allocation.Active != 6_000_000_000 {
		t.Fatalf("active = %d", meta.Allocation.Active)
	}
}
