package ledger

import (
	"context"
	"errors"
	"fmt"
)

// minimumSlotsPerEpoch is the length of the first warmup epoch.
const minimumSlotsPerEpoch = 32

// blockTimeScanLimit bounds the forward scan past skipped slots when
// resolving an epoch boundary block time.
const blockTimeScanLimit = 512

// EpochSchedule maps epochs to slot ranges. Clusters launched with warmup
// have exponentially growing epochs before FirstNormalEpoch.
type EpochSchedule struct {
	SlotsPerEpoch    uint64 `json:"slotsPerEpoch"`
	FirstNormalEpoch uint64 `json:"firstNormalEpoch"`
	FirstNormalSlot  uint64 `json:"firstNormalSlot"`
	Warmup           bool   `json:"warmup"`
}

// FirstSlot returns the first slot of the epoch.
func (s EpochSchedule) FirstSlot(epoch uint64) uint64 {
	if epoch < s.FirstNormalEpoch {
		// Warmup epoch e spans minimum*2^e slots, so epoch e starts at
		// minimum*(2^e - 1).
		return minimumSlotsPerEpoch * ((1 << epoch) - 1)
	}
	return s.FirstNormalSlot + (epoch-s.FirstNormalEpoch)*s.SlotsPerEpoch
}

// LastSlot returns the last slot of the epoch.
func (s EpochSchedule) LastSlot(epoch uint64) uint64 {
	return s.FirstSlot(epoch+1) - 1
}

// EpochDuration measures the wall-clock length of the epoch in seconds from
// the block times of its boundary slots. Skipped boundary slots are resolved
// by scanning forward a bounded number of slots.
func EpochDuration(ctx context.Context, src BlockTimeSource, epoch uint64) (float64, error) {
	schedule, err := src.EpochSchedule(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch epoch schedule: %w", err)
	}

	start, err := blockTimeAt(ctx, src, schedule.FirstSlot(epoch))
	if err != nil {
		return 0, fmt.Errorf("epoch %d start time: %w", epoch, err)
	}
	// The epoch ends when the next one begins.
	end, err := blockTimeAt(ctx, src, schedule.FirstSlot(epoch+1))
	if err != nil {
		return 0, fmt.Errorf("epoch %d end time: %w", epoch, err)
	}
	if end < start {
		return 0, fmt.Errorf("epoch %d boundary times inverted: %d before %d", epoch, end, start)
	}
	return float64(end - start), nil
}

// blockTimeAt returns the block time of the first non-skipped slot at or
// after the given slot.
func blockTimeAt(ctx context.Context, src BlockTimeSource, slot uint64) (int64, error) {
	for offset := uint64(0); offset < blockTimeScanLimit; offset++ {
		ts, err := src.BlockTime(ctx, slot+offset)
		if errors.Is(err, ErrBlockTimeUnavailable) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return ts, nil
	}
	return 0, fmt.Errorf("%w: no block within %d slots of %d",
		ErrBlockTimeUnavailable, blockTimeScanLimit, slot)
}
