// Package pda derives Solana Program Derived Addresses and the stake
// account addresses the supported pool programs derive with them.
package pda

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrNoViableBump is returned when no bump seed in 255..1 produces an
// off-curve address. Probability is negligible for real seeds.
var ErrNoViableBump = errors.New("no viable bump seed for program address")

const maxSeedLen = 32

// FindProgramAddress derives the canonical PDA for the seeds under the
// program, returning the address and the bump seed that produced it.
// Bumps are tried from 255 downward; the first off-curve hash wins.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := base58.Decode(programID)
	if err != nil {
		return "", 0, fmt.Errorf("decode program id %q: %w", programID, err)
	}
	if len(program) != 32 {
		return "", 0, fmt.Errorf("program id %q is %d bytes, want 32", programID, len(program))
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLen {
			return "", 0, fmt.Errorf("seed length %d exceeds maximum %d", len(seed), maxSeedLen)
		}
	}

	for bump := uint8(255); bump > 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, program...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), bump, nil
		}
	}
	return "", 0, ErrNoViableBump
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

func decodeKey(what, address string) ([]byte, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("decode %s %q: %w", what, address, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%s %q is %d bytes, want 32", what, address, len(raw))
	}
	return raw, nil
}

// ValidatorStakeAddress derives an SPL pool's active stake account for a
// vote account. A non-zero seed suffix is appended as a u32 seed; zero
// means the legacy two-seed derivation.
func ValidatorStakeAddress(programID, voteAccount, pool string, seed uint32) (string, error) {
	vote, err := decodeKey("vote account", voteAccount)
	if err != nil {
		return "", err
	}
	poolKey, err := decodeKey("pool", pool)
	if err != nil {
		return "", err
	}

	seeds := [][]byte{vote, poolKey}
	if seed != 0 {
		seeds = append(seeds, binary.LittleEndian.AppendUint32(nil, seed))
	}
	addr, _, err := FindProgramAddress(seeds, programID)
	return addr, err
}

// TransientStakeAddress derives an SPL pool's transient stake account for a
// vote account. The u64 seed suffix is always appended.
func TransientStakeAddress(programID, voteAccount, pool string, seed uint64) (string, error) {
	vote, err := decodeKey("vote account", voteAccount)
	if err != nil {
		return "", err
	}
	poolKey, err := decodeKey("pool", pool)
	if err != nil {
		return "", err
	}

	seeds := [][]byte{
		[]byte("transient"),
		vote,
		poolKey,
		binary.LittleEndian.AppendUint64(nil, seed),
	}
	addr, _, err := FindProgramAddress(seeds, programID)
	return addr, err
}

// SoceanValidatorStakeAddress derives a Socean pool's active stake account.
// Socean predates seed suffixes: vote account and pool only.
func SoceanValidatorStakeAddress(programID, voteAccount, pool string) (string, error) {
	return ValidatorStakeAddress(programID, voteAccount, pool, 0)
}

// SoceanTransientStakeAddress derives a Socean pool's transient stake
// account: the "transient" prefix, vote account and pool, no suffix.
func SoceanTransientStakeAddress(programID, voteAccount, pool string) (string, error) {
	vote, err := decodeKey("vote account", voteAccount)
	if err != nil {
		return "", err
	}
	poolKey, err := decodeKey("pool", pool)
	if err != nil {
		return "", err
	}

	addr, _, err := FindProgramAddress([][]byte{[]byte("transient"), vote, poolKey}, programID)
	return addr, err
}

// MarinadeReserveAddress derives the Marinade reserve PDA from the state
// account address.
func MarinadeReserveAddress(programID, stateAddress string) (string, error) {
	state, err := decodeKey("state", stateAddress)
	if err != nil {
		return "", err
	}
	addr, _, err := FindProgramAddress([][]byte{state, []byte("reserve")}, programID)
	return addr, err
}
