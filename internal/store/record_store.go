package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// RecordStore keeps the full record collection as a JSON array.
type RecordStore struct {
	fs     afero.Fs
	path   string
	logger *zap.Logger
}

var _ crawler.RecordStore = (*RecordStore)(nil)

// NewRecordStore returns a store writing to path on fs.
func NewRecordStore(fs afero.Fs, path string, logger *zap.Logger) *RecordStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{fs: fs, path: path, logger: logger}
}

// Path returns the progress file location.
func (s *RecordStore) Path() string {
	return s.path
}

// Load reads the record collection. Records without a url are dropped and
// list values are restored to []string.
func (s *RecordStore) Load() []crawler.Record {
	data, err := readIfExists(s.fs, s.path)
	if err != nil {
		s.logger.Warn("progress file unreadable, starting empty", zap.String("path", s.path), zap.Error(err))
		return nil
	}
	if data == nil {
		return nil
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("progress file corrupt, starting empty", zap.String("path", s.path), zap.Error(err))
		return nil
	}
	out := make([]crawler.Record, 0, len(raw))
	for _, m := range raw {
		rec := crawler.Record(m)
		if rec.URL() == "" {
			continue
		}
		for k, v := range rec {
			if list, ok := v.([]any); ok {
				rec[k] = toStrings(list)
			}
		}
		out = append(out, rec)
	}
	return out
}

// Save replaces the progress file atomically.
func (s *RecordStore) Save(records []crawler.Record) error {
	if records == nil {
		records = []crawler.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := writeAtomic(s.fs, s.path, buf.Bytes()); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	return nil
}

func toStrings(list []any) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		} else if v != nil {
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}
