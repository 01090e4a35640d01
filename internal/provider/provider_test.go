package provider

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/mr-tron/base58"

	"solana-stakepool-lab/internal/jito"
	"solana-stakepool-lab/internal/layout"
	"solana-stakepool-lab/internal/ledger"
	"solana-stakepool-lab/internal/pda"
)

const testEpoch = 500

func fixedKey(seed byte) string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed
	}
	return base58.Encode(raw)
}

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8)  { e.buf = append(e.buf, v) }
func (e *encoder) u32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}
func (e *encoder) u64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *encoder) pubkey(t *testing.T, s string) {
	t.Helper()
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != 32 {
		t.Fatalf("bad test pubkey %q", s)
	}
	e.buf = append(e.buf, raw...)
}

func (e *encoder) pad(n int) {
	e.buf = append(e.buf, make([]byte, n)...)
}

// encodeDelegatedStake builds a native stake account in the Stake state.
func encodeDelegatedStake(t *testing.T, rent uint64, voter string, stake, activation, deactivation uint64) []byte {
	t.Helper()
	e := &encoder{}
	e.u32(layout.StakeStateStake)
	e.u64(rent)
	e.pubkey(t, fixedKey(0xAA)) // staker
	e.pubkey(t, fixedKey(0xAA)) // withdrawer
	e.u64(0)                    // lockup timestamp
	e.u64(0)                    // lockup epoch
	e.pubkey(t, fixedKey(0xAB)) // custodian
	e.pubkey(t, voter)
	e.u64(stake)
	e.u64(activation)
	e.u64(deactivation)
	e.u64(math.Float64bits(0.25))
	e.u64(0) // credits observed
	e.pad(layout.StakeAccountLen - len(e.buf))
	return e.buf
}

// encodeInitializedStake builds a native stake account in the Initialized
// state, as pool reserves are.
func encodeInitializedStake(t *testing.T, rent uint64) []byte {
	t.Helper()
	e := &encoder{}
	e.u32(layout.StakeStateInitialized)
	e.u64(rent)
	e.pubkey(t, fixedKey(0xAA))
	e.pubkey(t, fixedKey(0xAA))
	e.u64(0)
	e.u64(0)
	e.pubkey(t, fixedKey(0xAB))
	e.pad(layout.StakeAccountLen - len(e.buf))
	return e.buf
}

func encodeSplValidatorList(t *testing.T, entries []layout.SplValidatorStakeInfo) []byte {
	t.Helper()
	e := &encoder{}
	e.u8(layout.AccountTypeValidatorList)
	e.u32(100)
	e.u32(uint32(len(entries)))
	for _, v := range entries {
		e.u64(v.ActiveStakeLamports)
		e.u64(v.TransientStakeLamports)
		e.u64(v.LastUpdateEpoch)
		e.u64(v.TransientSeedSuffix)
		e.u32(0)
		e.u32(v.ValidatorSeedSuffix)
		e.u8(uint8(v.Status))
		e.pubkey(t, v.VoteAccountAddress)
	}
	return e.buf
}

// splFixture wires a two-validator SPL pool into a snapshot: one healthy
// validator above the staked threshold, one below it with activating
// transient stake.
func splFixture(t *testing.T) (*ledger.Snapshot, string, *layout.SplStakePool, jito.RewardsLookup) {
	t.Helper()

	poolAddr := fixedKey(0x01)
	vote1 := fixedKey(0x02)
	vote2 := fixedKey(0x03)
	listAddr := fixedKey(0x04)
	reserveAddr := fixedKey(0x05)

	pool := &layout.SplStakePool{
		AccountType:      layout.AccountTypeStakePool,
		Manager:          fixedKey(0x06),
		ValidatorList:    listAddr,
		ReserveStake:     reserveAddr,
		PoolMint:         fixedKey(0x07),
		TotalLamports:    10_000_000_000,
		PoolTokenSupply:  9_000_000_000,
		LastUpdateEpoch:  testEpoch,
		EpochFee:         layout.Fee{Denominator: 100, Numerator: 6},
		SolDepositFee:    layout.Fee{Denominator: 1000, Numerator: 1},
		SolWithdrawalFee: layout.Fee{Denominator: 1000, Numerator: 3},
	}

	active1, err := pda.ValidatorStakeAddress(layout.StakePoolProgramID, vote1, poolAddr, 0)
	if err != nil {
		t.Fatal(err)
	}
	active2, err := pda.ValidatorStakeAddress(layout.StakePoolProgramID, vote2, poolAddr, 0)
	if err != nil {
		t.Fatal(err)
	}
	transient2, err := pda.TransientStakeAddress(layout.StakePoolProgramID, vote2, poolAddr, 3)
	if err != nil {
		t.Fatal(err)
	}

	const rent = 2_282_880
	snapshot := &ledger.Snapshot{
		Context: ledger.EpochContext{Epoch: testEpoch, Slot: 216_000_000},
		Accounts: map[string]ledger.Account{
			listAddr: {Owner: layout.StakePoolProgramID, Data: encodeSplValidatorList(t, []layout.SplValidatorStakeInfo{
				{VoteAccountAddress: vote1, Status: layout.StakeStatusActive},
				{VoteAccountAddress: vote2, Status: layout.StakeStatusActive, TransientSeedSuffix: 3},
			})},
			// Validator 1: 5 SOL active since epoch 100, 0.1 SOL loose.
			active1: {
				Lamports: 5_000_000_000 + rent + 100_000_000,
				Owner:    layout.StakeProgramID,
				Data:     encodeDelegatedStake(t, rent, vote1, 5_000_000_000, 100, layout.NoDeactivationEpoch),
			},
			// Validator 2: 0.5 SOL active, 0.3 SOL activating in transient;
			// stays below the staked threshold.
			active2: {
				Lamports: 500_000_000 + rent,
				Owner:    layout.StakeProgramID,
				Data:     encodeDelegatedStake(t, rent, vote2, 500_000_000, 100, layout.NoDeactivationEpoch),
			},
			transient2: {
				Lamports: 300_000_000,
				Owner:    layout.StakeProgramID,
				Data:     encodeDelegatedStake(t, rent, vote2, 300_000_000-rent, testEpoch, layout.NoDeactivationEpoch),
			},
			// Reserve holds 3 SOL above rent.
			reserveAddr: {
				Lamports: 3_000_000_000 + rent,
				Owner:    layout.StakeProgramID,
				Data:     encodeInitializedStake(t, rent),
			},
		},
		Rewards: map[uint64]map[string]uint64{
			testEpoch: {active1: 4_000_000, active2: 300_000},
		},
	}

	tips := jito.RewardsLookup{active1: 1_500_000}
	return snapshot, poolAddr, pool, tips
}

func TestBuildSplMeta(t *testing.T) {
	snapshot, poolAddr, pool, tips := splFixture(t)
	src := BuildSources{Accounts: snapshot, Rewards: snapshot, Tips: tips}

	meta, err := BuildSplMeta(context.Background(), src, poolAddr, pool, testEpoch)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if !meta.IsValid || meta.NeedsUpdate {
		t.Fatalf("validity flags: valid=%v needsUpdate=%v", meta.IsValid, meta.NeedsUpdate)
	}
	wantFees := SplStakePoolFees{
		Epoch:         layout.Fee{Denominator: 100, Numerator: 6},
		DepositSol:    layout.Fee{Denominator: 1000, Numerator: 1},
		WithdrawalSol: layout.Fee{Denominator: 1000, Numerator: 3},
	}
	if meta.Fees != wantFees {
		t.Fatalf("fees = %+v", meta.Fees)
	}
	if meta.ReserveLamports != 3_000_000_000 {
		t.Fatalf("reserve lamports = %d", meta.ReserveLamports)
	}

	s := meta.Summary()
	if s.Provider != ProviderSpl {
		t.Fatalf("provider = %q", s.Provider)
	}
	if !s.IsValid || s.ManagementFee != 0.06 {
		t.Fatalf("summary valid=%v fee=%v", s.IsValid, s.ManagementFee)
	}
	if s.Allocation.Active != 5_500_000_000 {
		t.Fatalf("active = %d", s.Allocation.Active)
	}
	// Transient account: rent + delegated stake all counts as activating.
	if s.Allocation.Activating != 300_000_000 {
		t.Fatalf("activating = %d", s.Allocation.Activating)
	}
	// Loose 0.1 SOL on validator 1 plus the reserve.
	if s.Allocation.Undelegated != 100_000_000+3_000_000_000 {
		t.Fatalf("undelegated = %d", s.Allocation.Undelegated)
	}
	if s.Allocation.Deactivating != 0 {
		t.Fatalf("deactivating = %d", s.Allocation.Deactivating)
	}
	if s.Rewards.Inflation != 4_300_000 || s.Rewards.Jito != 1_500_000 {
		t.Fatalf("rewards = %+v", s.Rewards)
	}
	// Only validator 1 crosses the 1 SOL staked threshold.
	if s.StakedValidatorCount != 1 {
		t.Fatalf("staked validators = %d", s.StakedValidatorCount)
	}
	if want := float64(10_000_000_000) / float64(9_000_000_000); s.LstPrice != want {
		t.Fatalf("lst price = %v, want %v", s.LstPrice, want)
	}
}

func TestBuildSplMetaStalePool(t *testing.T) {
	snapshot, poolAddr, pool, tips := splFixture(t)
	pool.LastUpdateEpoch = testEpoch - 1
	src := BuildSources{Accounts: snapshot, Rewards: snapshot, Tips: tips}

	meta, err := BuildSplMeta(context.Background(), src, poolAddr, pool, testEpoch)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// The raw initialization flag survives; only the summary view conflates
	// it with staleness.
	if !meta.IsValid || !meta.NeedsUpdate {
		t.Fatalf("stale pool flags: valid=%v needsUpdate=%v", meta.IsValid, meta.NeedsUpdate)
	}
	if s := meta.Summary(); s.IsValid {
		t.Fatal("stale pool summary reports valid")
	}
}

func TestBuildSplMetaDeactivatingValidatorExcluded(t *testing.T) {
	snapshot, poolAddr, pool, tips := splFixture(t)

	// Flip validator 1 to DeactivatingValidator; its delegated 5 SOL and
	// loose 0.1 SOL must drop out of the totals.
	vote1 := fixedKey(0x02)
	vote2 := fixedKey(0x03)
	snapshot.Accounts[pool.ValidatorList] = ledger.Account{
		Owner: layout.StakePoolProgramID,
		Data: encodeSplValidatorList(t, []layout.SplValidatorStakeInfo{
			{VoteAccountAddress: vote1, Status: layout.StakeStatusDeactivatingValidator},
			{VoteAccountAddress: vote2, Status: layout.StakeStatusActive, TransientSeedSuffix: 3},
		}),
	}
	src := BuildSources{Accounts: snapshot, Rewards: snapshot, Tips: tips}

	meta, err := BuildSplMeta(context.Background(), src, poolAddr, pool, testEpoch)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	v1 := meta.Validators[0]
	if v1.ActiveStake != 0 || v1.UndelegatedStake != 0 {
		t.Fatalf("deactivating validator stakes = active %d, undelegated %d, want 0/0",
			v1.ActiveStake, v1.UndelegatedStake)
	}

	s := meta.Summary()
	if s.Allocation.Active != 500_000_000 {
		t.Fatalf("active = %d, want validator 2 only", s.Allocation.Active)
	}
	// Only the reserve remains undelegated.
	if s.Allocation.Undelegated != 3_000_000_000 {
		t.Fatalf("undelegated = %d", s.Allocation.Undelegated)
	}
	if s.Allocation.Activating != 300_000_000 || s.Allocation.Deactivating != 0 {
		t.Fatalf("transient allocation = %+v", s.Allocation)
	}
	if s.StakedValidatorCount != 0 {
		t.Fatalf("staked validators = %d, want 0", s.StakedValidatorCount)
	}
	// Reward attribution is not gated by lifecycle status.
	if s.Rewards.Inflation != 4_300_000 || s.Rewards.Jito != 1_500_000 {
		t.Fatalf("rewards = %+v", s.Rewards)
	}
}

func TestSoceanSummaryDerivedFields(t *testing.T) {
	meta := &SoceanStakePoolMeta{
		Address:     "pool1",
		IsValid:     true,
		NeedsUpdate: true,
		Fees: SoceanStakePoolFees{
			Epoch:      layout.Fee{Denominator: 1000, Numerator: 25},
			Withdrawal: layout.Fee{Denominator: 100, Numerator: 1},
		},
		TotalStakeLamports: 2_000_000,
		PoolTokenSupply:    1_000_000,
	}

	s := meta.Summary()
	if s.IsValid {
		t.Fatal("summary valid despite pending update")
	}
	if s.ManagementFee != 0.025 {
		t.Fatalf("management fee = %v", s.ManagementFee)
	}
	if s.LstPrice != 2 {
		t.Fatalf("lst price = %v", s.LstPrice)
	}

	meta.NeedsUpdate = false
	if s := meta.Summary(); !s.IsValid {
		t.Fatal("summary invalid for updated pool")
	}
}

func TestBuildSplMetaMissingValidatorList(t *testing.T) {
	snapshot, poolAddr, pool, tips := splFixture(t)
	delete(snapshot.Accounts, pool.ValidatorList)
	src := BuildSources{Accounts: snapshot, Rewards: snapshot, Tips: tips}

	_, err := BuildSplMeta(context.Background(), src, poolAddr, pool, testEpoch)
	if !errors.Is(err, ErrRequiredAccountMissing) {
		t.Fatalf("err = %v, want ErrRequiredAccountMissing", err)
	}
}

func TestBuildSplMetaMissingReserve(t *testing.T) {
	snapshot, poolAddr, pool, tips := splFixture(t)
	delete(snapshot.Accounts, pool.ReserveStake)
	src := BuildSources{Accounts: snapshot, Rewards: snapshot, Tips: tips}

	_, err := BuildSplMeta(context.Background(), src, poolAddr, pool, testEpoch)
	if !errors.Is(err, ErrRequiredAccountMissing) {
		t.Fatalf("err = %v, want ErrRequiredAccountMissing", err)
	}
}

func TestBuildSplMetaTransientConsistencyFault(t *testing.T) {
	snapshot, poolAddr, pool, tips := splFixture(t)

	// A transient delegation scheduled to deactivate in the future is
	// neither ramping in nor ramping out at this epoch.
	vote2 := fixedKey(0x03)
	transient2, err := pda.TransientStakeAddress(layout.StakePoolProgramID, vote2, poolAddr, 3)
	if err != nil {
		t.Fatal(err)
	}
	const rent = 2_282_880
	snapshot.Accounts[transient2] = ledger.Account{
		Lamports: 2_000_000_000,
		Owner:    layout.StakeProgramID,
		Data:     encodeDelegatedStake(t, rent, vote2, 1_000_000_000, 100, testEpoch+5),
	}
	src := BuildSources{Accounts: snapshot, Rewards: snapshot, Tips: tips}

	_, err = BuildSplMeta(context.Background(), src, poolAddr, pool, testEpoch)
	if !errors.Is(err, ErrDataConsistency) {
		t.Fatalf("err = %v, want ErrDataConsistency", err)
	}
}

func TestStakePoolEnvelopeJSON(t *testing.T) {
	envelope := StakePool{Spl: &SplStakePoolMeta{Address: "pool1"}}
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(tagged) != 1 {
		t.Fatalf("envelope has %d tags, want 1: %s", len(tagged), raw)
	}
	if _, ok := tagged["Spl"]; !ok {
		t.Fatalf("envelope missing Spl tag: %s", raw)
	}

	var back StakePool
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back.Spl == nil || back.Spl.Address != "pool1" {
		t.Fatalf("round trip lost payload: %+v", back)
	}

	if _, err := (StakePool{}).Summary(); !errors.Is(err, ErrDataConsistency) {
		t.Fatalf("empty envelope summary err = %v", err)
	}
}
