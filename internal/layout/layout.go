// Package layout decodes the fixed-layout on-chain account formats of the
// supported stake pool programs into typed records. Decoding is purely
// structural: byte offsets, length checks and discriminant checks only.
package layout

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrMalformedLayout is returned when a buffer's length or leading
// discriminant does not match the expected account schema.
var ErrMalformedLayout = errors.New("malformed account layout")

// Fee is a fee expressed as a ratio. A zero denominator means a 0% fee.
type Fee struct {
	Denominator uint64 `json:"denominator"`
	Numerator   uint64 `json:"numerator"`
}

// Ratio returns the fee as a fraction, 0 when the denominator is 0.
func (f Fee) Ratio() float64 {
	if f.Denominator == 0 {
		return 0
	}
	return float64(f.Numerator) / float64(f.Denominator)
}

// reader walks a byte buffer sequentially. The first out-of-bounds read
// latches an error; subsequent reads return zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) fail(what string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: short buffer reading %s at offset %d (len %d)",
			ErrMalformedLayout, what, r.off, len(r.buf))
	}
}

func (r *reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.fail(what)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8(what string) uint8 {
	b := r.take(1, what)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16(what string) uint16 {
	b := r.take(2, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32(what string) uint32 {
	b := r.take(4, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64(what string) uint64 {
	b := r.take(8, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i64(what string) int64 {
	return int64(r.u64(what))
}

func (r *reader) pubkey(what string) string {
	b := r.take(32, what)
	if b == nil {
		return ""
	}
	return base58.Encode(b)
}

func (r *reader) fee(what string) Fee {
	return Fee{
		Denominator: r.u64(what + ".denominator"),
		Numerator:   r.u64(what + ".numerator"),
	}
}

// optionFee reads a borsh Option<Fee> (tag byte + payload when set).
func (r *reader) optionFee(what string) *Fee {
	tag := r.u8(what + ".tag")
	if r.err != nil || tag == 0 {
		return nil
	}
	f := r.fee(what)
	return &f
}

// optionPubkey reads a borsh Option<Pubkey>.
func (r *reader) optionPubkey(what string) string {
	tag := r.u8(what + ".tag")
	if r.err != nil || tag == 0 {
		return ""
	}
	return r.pubkey(what)
}

// futureFee reads a FutureEpoch<Fee>: a countdown enum that is
// borsh-compatible with Option but carries a payload for tags 1 and 2.
func (r *reader) futureFee(what string) *Fee {
	tag := r.u8(what + ".tag")
	if r.err != nil {
		return nil
	}
	switch tag {
	case 0:
		return nil
	case 1, 2:
		f := r.fee(what)
		return &f
	default:
		if r.err == nil {
			r.err = fmt.Errorf("%w: invalid FutureEpoch tag %d for %s", ErrMalformedLayout, tag, what)
		}
		return nil
	}
}

// Lockup is the stake lockup constraint embedded in pool and stake accounts.
type Lockup struct {
	UnixTimestamp int64  `json:"unix_timestamp"`
	Epoch         uint64 `json:"epoch"`
	Custodian     string `json:"custodian"`
}

func (r *reader) lockup(what string) Lockup {
	return Lockup{
		UnixTimestamp: r.i64(what + ".unix_timestamp"),
		Epoch:         r.u64(what + ".epoch"),
		Custodian:     r.pubkey(what + ".custodian"),
	}
}
