// Package file persists checkpoints and epoch stats as JSON files in a
// directory, one file per epoch. It is the interchange format between the
// extraction and stats stages and with external consumers.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"solana-stakepool-lab/internal/domain"
	"solana-stakepool-lab/internal/provider"
	"solana-stakepool-lab/internal/storage"
)

const (
	metasFilePattern = "stake_pool_metas_%d.json"
	statsFilePattern = "stake_pool_stats_%d.json"
	manifestFileName = "manifest.json"
)

// CheckpointStore implements storage.CheckpointStore on a directory of
// per-epoch JSON files.
type CheckpointStore struct {
	dir string
}

// NewCheckpointStore creates the directory if needed and returns a store.
func NewCheckpointStore(dir string) (*CheckpointStore, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &CheckpointStore{dir: dir}, nil
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Path returns the checkpoint file path for an epoch.
func (s *CheckpointStore) Path(epoch uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf(metasFilePattern, epoch))
}

// Insert adds the checkpoint for its epoch. Returns ErrDuplicateKey if the
// epoch already has one.
func (s *CheckpointStore) Insert(ctx context.Context, metas *provider.Metas) error {
	if metas == nil {
		return fmt.Errorf("%w: nil checkpoint", storage.ErrInvalidInput)
	}
	return writeJSON(s.dir, s.Path(metas.Epoch), metas)
}

// GetByEpoch retrieves the checkpoint for an epoch. Returns ErrNotFound if
// not exists.
func (s *CheckpointStore) GetByEpoch(ctx context.Context, epoch uint64) (*provider.Metas, error) {
	var metas provider.Metas
	if err := readJSON(s.Path(epoch), &metas); err != nil {
		return nil, err
	}
	return &metas, nil
}

// StatsStore implements storage.EpochStatsStore on a directory of
// per-epoch JSON files.
type StatsStore struct {
	dir string
}

// NewStatsStore creates the directory if needed and returns a store.
func NewStatsStore(dir string) (*StatsStore, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &StatsStore{dir: dir}, nil
}

// Compile-time interface check.
var _ storage.EpochStatsStore = (*StatsStore)(nil)

// Path returns the stats file path for an epoch.
func (s *StatsStore) Path(epoch uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf(statsFilePattern, epoch))
}

// Insert adds the stats collection for its epoch. Returns ErrDuplicateKey
// if the epoch already has one.
func (s *StatsStore) Insert(ctx context.Context, stats *domain.EpochStatsCollection) error {
	if stats == nil {
		return fmt.Errorf("%w: nil stats collection", storage.ErrInvalidInput)
	}
	return writeJSON(s.dir, s.Path(stats.Epoch), stats)
}

// GetByEpoch retrieves the stats for an epoch. Returns ErrNotFound if not
// exists.
func (s *StatsStore) GetByEpoch(ctx context.Context, epoch uint64) (*domain.EpochStatsCollection, error) {
	var stats domain.EpochStatsCollection
	if err := readJSON(s.Path(epoch), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Manifest indexes the stats files in the directory so consumers can find
// the newest epoch without listing the directory themselves.
type Manifest struct {
	Latest *uint64  `json:"latest"`
	Epochs []uint64 `json:"epochs"`
}

// WriteManifest scans the directory and rewrites manifest.json with the
// sorted list of epochs that have a stats file. Unlike the epoch files the
// manifest is always replaced.
func (s *StatsStore) WriteManifest(ctx context.Context) (*Manifest, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list stats directory: %w", err)
	}

	manifest := &Manifest{Epochs: []uint64{}}
	for _, entry := range entries {
		var epoch uint64
		if _, err := fmt.Sscanf(entry.Name(), statsFilePattern, &epoch); err != nil {
			continue
		}
		// Sscanf tolerates trailing garbage, temp files included.
		if entry.Name() != fmt.Sprintf(statsFilePattern, epoch) {
			continue
		}
		manifest.Epochs = append(manifest.Epochs, epoch)
	}
	sort.Slice(manifest.Epochs, func(i, j int) bool { return manifest.Epochs[i] < manifest.Epochs[j] })
	if n := len(manifest.Epochs); n > 0 {
		manifest.Latest = &manifest.Epochs[n-1]
	}

	if err := writeFileAtomic(s.dir, filepath.Join(s.dir, manifestFileName), manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// Manifest reads manifest.json. Returns ErrNotFound if none was written.
func (s *StatsStore) Manifest(ctx context.Context) (*Manifest, error) {
	var manifest Manifest
	if err := readJSON(filepath.Join(s.dir, manifestFileName), &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}

// writeJSON writes a new file, refusing to replace an existing epoch.
func writeJSON(dir, path string, v any) error {
	if _, err := os.Stat(path); err == nil {
		return storage.ErrDuplicateKey
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return writeFileAtomic(dir, path, v)
}

// writeFileAtomic writes through a temp file and renames it into place so a
// crashed run never leaves a truncated file behind.
func writeFileAtomic(dir, path string, v any) error {
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
