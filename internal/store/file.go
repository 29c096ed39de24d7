package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Config names the files used for crawl state.
type Config struct {
	Dir            string
	CheckpointFile string
	ProgressFile   string
}

// CheckpointPath returns the full checkpoint file path.
func (c Config) CheckpointPath() string {
	return filepath.Join(c.Dir, c.CheckpointFile)
}

// ProgressPath returns the full record collection file path.
func (c Config) ProgressPath() string {
	return filepath.Join(c.Dir, c.ProgressFile)
}

// writeAtomic writes data to a temp file beside path and renames it into place.
func writeAtomic(fs afero.Fs, path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(fs, dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = fs.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err = fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}

// readIfExists returns (nil, nil) when path does not exist.
func readIfExists(fs afero.Fs, path string) ([]byte, error) {
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Clear removes the checkpoint and progress files. Missing files are fine.
func Clear(fs afero.Fs, cfg Config) ([]string, error) {
	var removed []string
	for _, p := range []string{cfg.CheckpointPath(), cfg.ProgressPath()} {
		err := fs.Remove(p)
		switch {
		case err == nil:
			removed = append(removed, p)
		case errors.Is(err, os.ErrNotExist):
		default:
			return removed, fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return removed, nil
}
