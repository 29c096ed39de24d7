package store

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// CheckpointStore keeps the crawl checkpoint in a single JSON file.
type CheckpointStore struct {
	fs     afero.Fs
	path   string
	logger *zap.Logger
}

var _ crawler.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore returns a store writing to path on fs.
func NewCheckpointStore(fs afero.Fs, path string, logger *zap.Logger) *CheckpointStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckpointStore{fs: fs, path: path, logger: logger}
}

// Path returns the checkpoint file location.
func (s *CheckpointStore) Path() string {
	return s.path
}

// Load reads the checkpoint. A missing file, or one that cannot be parsed,
// yields a fresh checkpoint; the latter is logged as a warning.
func (s *CheckpointStore) Load() *crawler.Checkpoint {
	data, err := readIfExists(s.fs, s.path)
	if err != nil {
		s.logger.Warn("checkpoint unreadable, starting fresh", zap.String("path", s.path), zap.Error(err))
		return crawler.NewCheckpoint()
	}
	if data == nil {
		return crawler.NewCheckpoint()
	}
	cp := crawler.NewCheckpoint()
	if err := json.Unmarshal(data, cp); err != nil {
		s.logger.Warn("checkpoint corrupt, starting fresh", zap.String("path", s.path), zap.Error(err))
		return crawler.NewCheckpoint()
	}
	return cp
}

// Save replaces the checkpoint file atomically.
func (s *CheckpointStore) Save(cp *crawler.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := writeAtomic(s.fs, s.path, data); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
