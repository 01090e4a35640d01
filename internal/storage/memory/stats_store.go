package memory

import (
	"context"
	"sort"
	"sync"

	"solana-stakepool-lab/internal/domain"
	"solana-stakepool-lab/internal/storage"
)

// StatsStore is an in-memory implementation of storage.EpochStatsStore.
type StatsStore struct {
	mu   sync.RWMutex
	data map[uint64]*domain.EpochStatsCollection // keyed by epoch
}

// NewStatsStore creates a new in-memory epoch stats store.
func NewStatsStore() *StatsStore {
	return &StatsStore{
		data: make(map[uint64]*domain.EpochStatsCollection),
	}
}

// Insert adds the stats collection for its epoch. Returns ErrDuplicateKey
// if the epoch already has one.
func (s *StatsStore) Insert(_ context.Context, stats *domain.EpochStatsCollection) error {
	if stats == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[stats.Epoch]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	statsCopy := *stats
	statsCopy.StakePools = append([]domain.EpochStakePoolStats(nil), stats.StakePools...)
	s.data[stats.Epoch] = &statsCopy
	return nil
}

// GetByEpoch retrieves the stats for an epoch. Returns ErrNotFound if not
// exists.
func (s *StatsStore) GetByEpoch(_ context.Context, epoch uint64) (*domain.EpochStatsCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, exists := s.data[epoch]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	statsCopy := *stats
	statsCopy.StakePools = append([]domain.EpochStakePoolStats(nil), stats.StakePools...)
	return &statsCopy, nil
}

// Verify interface compliance at compile time.
var _ storage.EpochStatsStore = (*StatsStore)(nil)

// PoolStatsStore is an in-memory implementation of
// storage.PoolStatsTimeseriesStore.
type PoolStatsStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.PoolStatsPoint // keyed by address
	keys map[poolStatsKey]struct{}
}

type poolStatsKey struct {
	epoch   uint64
	address string
}

// NewPoolStatsStore creates a new in-memory pool stats timeseries store.
func NewPoolStatsStore() *PoolStatsStore {
	return &PoolStatsStore{
		data: make(map[string][]*domain.PoolStatsPoint),
		keys: make(map[poolStatsKey]struct{}),
	}
}

// InsertBulk adds the epoch's pool rows. Fails entire batch on duplicate
// (epoch, address).
func (s *PoolStatsStore) InsertBulk(_ context.Context, epoch uint64, stats []domain.EpochStakePoolStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(stats))
	for _, row := range stats {
		if _, dup := seen[row.Address]; dup {
			return storage.ErrDuplicateKey
		}
		seen[row.Address] = struct{}{}
		if _, exists := s.keys[poolStatsKey{epoch, row.Address}]; exists {
			return storage.ErrDuplicateKey
		}
	}

	for _, row := range stats {
		point := &domain.PoolStatsPoint{Epoch: epoch, EpochStakePoolStats: row}
		s.data[row.Address] = append(s.data[row.Address], point)
		s.keys[poolStatsKey{epoch, row.Address}] = struct{}{}
	}
	return nil
}

// GetByAddress retrieves all rows for a pool, ordered by epoch ASC.
func (s *PoolStatsStore) GetByAddress(_ context.Context, address string) ([]*domain.PoolStatsPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.data[address]
	result := make([]*domain.PoolStatsPoint, 0, len(points))
	for _, p := range points {
		pointCopy := *p
		result = append(result, &pointCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Epoch < result[j].Epoch
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.PoolStatsTimeseriesStore = (*PoolStatsStore)(nil)
