package layout

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/mr-tron/base58"
)

// builder constructs little-endian account buffers for decoder tests.
type builder struct {
	buf []byte
}

func (b *builder) u8(v uint8)  { b.buf = append(b.buf, v) }
func (b *builder) u32(v uint32) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
}
func (b *builder) u64(v uint64) {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, v)
}
func (b *builder) i64(v int64) { b.u64(uint64(v)) }

func (b *builder) pubkey(s string) {
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != 32 {
		panic("bad test pubkey " + s)
	}
	b.buf = append(b.buf, raw...)
}

func (b *builder) fee(f Fee) {
	b.u64(f.Denominator)
	b.u64(f.Numerator)
}

func (b *builder) lockup(l Lockup) {
	b.i64(l.UnixTimestamp)
	b.u64(l.Epoch)
	b.pubkey(l.Custodian)
}

func (b *builder) pad(n int) {
	b.buf = append(b.buf, make([]byte, n)...)
}

func testPubkey(t *testing.T, seed byte) string {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed
	}
	return base58.Encode(raw)
}

func TestFeeRatio(t *testing.T) {
	if got := (Fee{Denominator: 100, Numerator: 7}).Ratio(); got != 0.07 {
		t.Fatalf("ratio = %v, want 0.07", got)
	}
	if got := (Fee{Denominator: 0, Numerator: 7}).Ratio(); got != 0 {
		t.Fatalf("zero denominator ratio = %v, want 0", got)
	}
}

func buildSplPool(t *testing.T) (*builder, *SplStakePool) {
	t.Helper()
	want := &SplStakePool{
		AccountType:           AccountTypeStakePool,
		Manager:               testPubkey(t, 1),
		Staker:                testPubkey(t, 2),
		StakeDepositAuthority: testPubkey(t, 3),
		StakeWithdrawBumpSeed: 255,
		ValidatorList:         testPubkey(t, 4),
		ReserveStake:          testPubkey(t, 5),
		PoolMint:              testPubkey(t, 6),
		ManagerFeeAccount:     testPubkey(t, 7),
		TokenProgramID:        testPubkey(t, 8),
		TotalLamports:         1_000_000,
		PoolTokenSupply:       900_000,
		LastUpdateEpoch:       500,
		Lockup:                Lockup{Custodian: testPubkey(t, 9)},
		EpochFee:              Fee{Denominator: 100, Numerator: 6},
		StakeDepositFee:       Fee{Denominator: 1000, Numerator: 1},
		StakeWithdrawalFee:    Fee{Denominator: 1000, Numerator: 3},
		SolDepositFee:         Fee{Denominator: 0, Numerator: 0},
		SolWithdrawalFee:      Fee{Denominator: 1000, Numerator: 3},
		LastEpochPoolTokenSupply: 850_000,
		LastEpochTotalLamports:   950_000,
	}

	b := &builder{}
	b.u8(want.AccountType)
	b.pubkey(want.Manager)
	b.pubkey(want.Staker)
	b.pubkey(want.StakeDepositAuthority)
	b.u8(want.StakeWithdrawBumpSeed)
	b.pubkey(want.ValidatorList)
	b.pubkey(want.ReserveStake)
	b.pubkey(want.PoolMint)
	b.pubkey(want.ManagerFeeAccount)
	b.pubkey(want.TokenProgramID)
	b.u64(want.TotalLamports)
	b.u64(want.PoolTokenSupply)
	b.u64(want.LastUpdateEpoch)
	b.lockup(want.Lockup)
	b.fee(want.EpochFee)
	b.u8(0) // next_epoch_fee: None
	b.u8(0) // preferred_deposit_validator: None
	b.u8(0) // preferred_withdraw_validator: None
	b.fee(want.StakeDepositFee)
	b.fee(want.StakeWithdrawalFee)
	b.u8(0) // next_stake_withdrawal_fee: None
	b.u8(want.StakeReferralFee)
	b.u8(0) // sol_deposit_authority: None
	b.fee(want.SolDepositFee)
	b.u8(want.SolReferralFee)
	b.u8(0) // sol_withdraw_authority: None
	b.fee(want.SolWithdrawalFee)
	b.u8(0) // next_sol_withdrawal_fee: None
	b.u64(want.LastEpochPoolTokenSupply)
	b.u64(want.LastEpochTotalLamports)
	b.pad(SplStakePoolLen - len(b.buf))
	return b, want
}

func TestDecodeSplStakePool(t *testing.T) {
	b, want := buildSplPool(t)

	got, err := DecodeSplStakePool(b.buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Manager != want.Manager || got.ValidatorList != want.ValidatorList ||
		got.ReserveStake != want.ReserveStake || got.PoolMint != want.PoolMint {
		t.Fatalf("pubkeys mismatch: got %+v", got)
	}
	if got.TotalLamports != want.TotalLamports || got.PoolTokenSupply != want.PoolTokenSupply {
		t.Fatalf("balances mismatch: got %d/%d", got.TotalLamports, got.PoolTokenSupply)
	}
	if got.LastEpochTotalLamports != want.LastEpochTotalLamports ||
		got.LastEpochPoolTokenSupply != want.LastEpochPoolTokenSupply {
		t.Fatalf("last epoch balances mismatch: got %+v", got)
	}
	if got.EpochFee != want.EpochFee {
		t.Fatalf("epoch fee = %+v, want %+v", got.EpochFee, want.EpochFee)
	}
	if got.NextEpochFee != nil || got.PreferredDepositVote != "" || got.SolDepositAuthority != "" {
		t.Fatalf("unset options decoded as set: %+v", got)
	}
	if !got.IsValid() {
		t.Fatal("initialized pool reported invalid")
	}
}

func TestDecodeSplStakePoolLengths(t *testing.T) {
	b, _ := buildSplPool(t)

	if _, err := DecodeSplStakePool(b.buf[:SplStakePoolLen-1]); !errors.Is(err, ErrMalformedLayout) {
		t.Fatalf("short buffer: err = %v, want ErrMalformedLayout", err)
	}
	long := append(append([]byte{}, b.buf...), 0)
	if _, err := DecodeSplStakePool(long); !errors.Is(err, ErrMalformedLayout) {
		t.Fatalf("long buffer: err = %v, want ErrMalformedLayout", err)
	}
}

func TestDecodeSplStakePoolDiscriminants(t *testing.T) {
	b, _ := buildSplPool(t)

	// Uninitialized decodes fine; validity is the caller's concern.
	buf := append([]byte{}, b.buf...)
	buf[0] = AccountTypeUninitialized
	got, err := DecodeSplStakePool(buf)
	if err != nil {
		t.Fatalf("uninitialized: %v", err)
	}
	if got.IsValid() {
		t.Fatal("uninitialized pool reported valid")
	}

	buf[0] = 7
	if _, err := DecodeSplStakePool(buf); !errors.Is(err, ErrMalformedLayout) {
		t.Fatalf("unknown discriminant: err = %v, want ErrMalformedLayout", err)
	}
}

func TestDecodeSplValidatorList(t *testing.T) {
	vote := testPubkey(t, 11)
	b := &builder{}
	b.u8(AccountTypeValidatorList)
	b.u32(100) // max_validators
	b.u32(1)   // count
	b.u64(5_000_000_000)
	b.u64(2_000_000)
	b.u64(499)
	b.u64(42) // transient_seed_suffix
	b.u32(0)  // unused
	b.u32(7)  // validator_seed_suffix
	b.u8(uint8(StakeStatusActive))
	b.pubkey(vote)

	l, err := DecodeSplValidatorList(b.buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(l.Validators) != 1 {
		t.Fatalf("got %d validators, want 1", len(l.Validators))
	}
	v := l.Validators[0]
	if v.VoteAccountAddress != vote || v.ActiveStakeLamports != 5_000_000_000 ||
		v.TransientSeedSuffix != 42 || v.ValidatorSeedSuffix != 7 || v.Status != StakeStatusActive {
		t.Fatalf("entry mismatch: %+v", v)
	}

	// Declared count larger than the buffer must fail, not over-read.
	binary.LittleEndian.PutUint32(b.buf[5:], 1000)
	if _, err := DecodeSplValidatorList(b.buf); !errors.Is(err, ErrMalformedLayout) {
		t.Fatalf("oversized count: err = %v, want ErrMalformedLayout", err)
	}
}

func TestDecodeSoceanStakePool(t *testing.T) {
	b := &builder{}
	b.u8(AccountTypeStakePool)
	b.pubkey(testPubkey(t, 1)) // manager
	b.pubkey(testPubkey(t, 2)) // staker
	b.pubkey(testPubkey(t, 3)) // deposit authority
	b.u8(254)
	b.pubkey(testPubkey(t, 4)) // validator list
	b.pubkey(testPubkey(t, 5)) // reserve
	b.pubkey(testPubkey(t, 6)) // mint
	b.pubkey(testPubkey(t, 7)) // fee account
	b.pubkey(testPubkey(t, 8)) // token program
	b.u64(2_000_000)           // total_stake_lamports
	b.u64(1_800_000)           // pool_token_supply
	b.u64(321)                 // last_update_epoch
	b.lockup(Lockup{Custodian: testPubkey(t, 9)})
	b.fee(Fee{Denominator: 100, Numerator: 3})
	b.fee(Fee{Denominator: 1000, Numerator: 3})
	b.fee(Fee{})
	b.fee(Fee{})
	b.pad(SoceanStakePoolLen - len(b.buf))

	got, err := DecodeSoceanStakePool(b.buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalStakeLamports != 2_000_000 || got.PoolTokenSupply != 1_800_000 {
		t.Fatalf("balances mismatch: %+v", got)
	}
	if got.Fee != (Fee{Denominator: 100, Numerator: 3}) {
		t.Fatalf("fee = %+v", got.Fee)
	}

	if _, err := DecodeSoceanStakePool(b.buf[:100]); !errors.Is(err, ErrMalformedLayout) {
		t.Fatalf("short buffer: err = %v, want ErrMalformedLayout", err)
	}
}

func TestDecodeSoceanValidatorList(t *testing.T) {
	vote := testPubkey(t, 12)
	b := &builder{}
	b.u8(AccountTypeValidatorList)
	b.u32(50)
	b.u32(1)
	b.u8(uint8(StakeStatusDeactivatingTransient))
	b.pubkey(vote)
	b.u64(3_000_000_000)
	b.u64(1_000_000)
	b.u64(320)

	l, err := DecodeSoceanValidatorList(b.buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	v := l.Validators[0]
	if v.VoteAccountAddress != vote || v.Status != StakeStatusDeactivatingTransient ||
		v.ActiveStakeLamports != 3_000_000_000 {
		t.Fatalf("entry mismatch: %+v", v)
	}
}

func TestDecodeStakeAccount(t *testing.T) {
	staker := testPubkey(t, 20)
	voter := testPubkey(t, 21)

	b := &builder{}
	b.u32(StakeStateStake)
	b.u64(2_282_880) // rent_exempt_reserve
	b.pubkey(staker)
	b.pubkey(staker)
	b.lockup(Lockup{Custodian: testPubkey(t, 22)})
	b.pubkey(voter)
	b.u64(10_000_000_000)
	b.u64(400)                // activation_epoch
	b.u64(NoDeactivationEpoch)
	b.u64(math.Float64bits(0.25))
	b.u64(12345) // credits_observed
	b.pad(StakeAccountLen - len(b.buf))

	got, err := DecodeStakeAccount(b.buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IsDelegated() {
		t.Fatal("stake state not reported as delegated")
	}
	d := got.Delegation
	if d.VoterPubkey != voter || d.Stake != 10_000_000_000 || d.ActivationEpoch != 400 {
		t.Fatalf("delegation mismatch: %+v", d)
	}
	if d.Deactivating() {
		t.Fatal("delegation with no deactivation epoch reported deactivating")
	}
	if got.MinimumReserve() != 2_282_880 {
		t.Fatalf("minimum reserve = %d", got.MinimumReserve())
	}
}

func TestDecodeStakeAccountInitialized(t *testing.T) {
	b := &builder{}
	b.u32(StakeStateInitialized)
	b.u64(2_282_880)
	b.pubkey(testPubkey(t, 20))
	b.pubkey(testPubkey(t, 20))
	b.lockup(Lockup{Custodian: testPubkey(t, 22)})
	b.pad(StakeAccountLen - len(b.buf))

	got, err := DecodeStakeAccount(b.buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.IsDelegated() || got.Delegation != nil {
		t.Fatal("initialized account reported delegated")
	}
	if got.Meta.RentExemptReserve != 2_282_880 {
		t.Fatalf("rent reserve = %d", got.Meta.RentExemptReserve)
	}
}

func TestDecodeStakeAccountBadState(t *testing.T) {
	b := &builder{}
	b.u32(9)
	b.pad(StakeAccountLen - len(b.buf))
	if _, err := DecodeStakeAccount(b.buf); !errors.Is(err, ErrMalformedLayout) {
		t.Fatalf("err = %v, want ErrMalformedLayout", err)
	}
}

func TestDecodeMarinadeState(t *testing.T) {
	msolMint := testPubkey(t, 30)
	stakeList := testPubkey(t, 31)

	b := &builder{}
	disc := sha256.Sum256([]byte("account:State"))
	b.buf = append(b.buf, disc[:8]...)
	b.pubkey(msolMint)
	b.pubkey(testPubkey(t, 32)) // admin
	b.pubkey(testPubkey(t, 33)) // operational sol
	b.pubkey(testPubkey(t, 34)) // treasury msol
	b.u8(255)
	b.u8(254)
	b.u64(2_039_280) // rent_exempt_for_token_acc
	b.u32(600)       // reward_fee bps

	// stake system
	b.pubkey(stakeList)
	b.u32(48) // item size
	b.u32(2)  // count
	b.pubkey(testPubkey(t, 35))
	b.u32(0)
	b.u64(1_000_000) // delayed_unstake_cooling_down
	b.u8(1)
	b.u8(2)
	b.u64(18000)
	b.u64(499)
	b.u64(1_000_000_000)
	b.u32(0)

	// validator system
	b.pubkey(testPubkey(t, 36))
	b.u32(56)
	b.u32(3)
	b.pubkey(testPubkey(t, 37))
	b.u32(0)
	b.pubkey(testPubkey(t, 38)) // manager authority
	b.u32(1000)                 // total score
	b.u64(7_000_000_000)        // total_active_balance
	b.u8(1)

	// liq pool
	b.pubkey(testPubkey(t, 39))
	b.u8(1)
	b.u8(2)
	b.u8(3)
	b.pubkey(testPubkey(t, 40))
	b.u64(100_000_000_000)
	b.u32(300)
	b.u32(30)
	b.u32(7500)
	b.u64(50_000_000)
	b.u64(0)
	b.u64(0)

	b.u64(2_500_000) // available_reserve_balance
	b.u64(9_000_000) // msol_supply
	b.u64(1 << 32)   // msol_price
	b.u64(4)         // circulating_ticket_count
	b.u64(3_000_000) // circulating_ticket_balance
	b.u64(0)
	b.u64(1_000_000)
	b.u64(1_000)
	b.u64(math.MaxUint64)
	b.u64(500_000) // emergency_cooling_down
	b.pad(128)     // reserved tail

	got, err := DecodeMarinadeState(b.buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.MsolMint != msolMint || got.RewardFeeBps != 600 {
		t.Fatalf("header mismatch: %+v", got)
	}
	if got.StakeSystem.StakeList.Account != stakeList || got.StakeSystem.StakeList.Count != 2 {
		t.Fatalf("stake list mismatch: %+v", got.StakeSystem.StakeList)
	}
	if got.ManagementFee() != 0.06 {
		t.Fatalf("management fee = %v, want 0.06", got.ManagementFee())
	}
	if got.TotalCoolingDown() != 1_500_000 {
		t.Fatalf("cooling down = %d", got.TotalCoolingDown())
	}
	// 7_000_000_000 + 1_500_000 + 2_500_000 - 3_000_000
	if got.TotalVirtualStakedLamports() != 7_001_000_000 {
		t.Fatalf("virtual staked = %d", got.TotalVirtualStakedLamports())
	}

	b.buf[0] ^= 0xff
	if _, err := DecodeMarinadeState(b.buf); !errors.Is(err, ErrMalformedLayout) {
		t.Fatalf("bad discriminator: err = %v, want ErrMalformedLayout", err)
	}
}

func TestTotalVirtualStakedSaturates(t *testing.T) {
	s := &MarinadeState{CirculatingTicketBalance: 10}
	s.ValidatorSystem.TotalActiveBalance = 5
	if got := s.TotalVirtualStakedLamports(); got != 0 {
		t.Fatalf("virtual staked = %d, want 0", got)
	}
}

func TestDecodeMarinadeStakeList(t *testing.T) {
	acct := testPubkey(t, 50)
	list := MarinadeList{ItemSize: 64, Count: 2}

	b := &builder{}
	b.pad(anchorDiscriminatorLen)
	for i := 0; i < 2; i++ {
		start := len(b.buf)
		b.pubkey(acct)
		b.u64(uint64(1000 * (i + 1)))
		b.u64(uint64(400 + i))
		b.u8(0)
		b.pad(start + int(list.ItemSize) - len(b.buf))
	}

	recs, err := DecodeMarinadeStakeList(list, b.buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[1].LastUpdateDelegatedLamports != 2000 || recs[1].LastUpdateEpoch != 401 {
		t.Fatalf("record mismatch: %+v", recs[1])
	}

	list.Count = 5
	if _, err := DecodeMarinadeStakeList(list, b.buf); !errors.Is(err, ErrMalformedLayout) {
		t.Fatalf("oversized count: err = %v, want ErrMalformedLayout", err)
	}
}
