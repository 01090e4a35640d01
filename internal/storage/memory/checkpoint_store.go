// Package memory provides in-memory store implementations, used by tests
// and by single-shot runs that do not need persistence.
package memory

import (
	"context"
	"sync"

	"solana-stakepool-lab/internal/provider"
	"solana-stakepool-lab/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[uint64]*provider.Metas // keyed by epoch
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[uint64]*provider.Metas),
	}
}

// Insert adds the checkpoint for its epoch. Returns ErrDuplicateKey if the
// epoch already has one.
func (s *CheckpointStore) Insert(_ context.Context, metas *provider.Metas) error {
	if metas == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[metas.Epoch]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	metasCopy := *metas
	metasCopy.StakePools = append([]provider.StakePool(nil), metas.StakePools...)
	s.data[metas.Epoch] = &metasCopy
	return nil
}

// GetByEpoch retrieves the checkpoint for an epoch. Returns ErrNotFound if
// not exists.
func (s *CheckpointStore) GetByEpoch(_ context.Context, epoch uint64) (*provider.Metas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metas, exists := s.data[epoch]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	metasCopy := *metas
	metasCopy.StakePools = append([]provider.StakePool(nil), metas.StakePools...)
	return &metasCopy, nil
}

// Verify interface compliance at compile time.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)
