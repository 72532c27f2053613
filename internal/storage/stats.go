package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// StoreStats summarizes the contents of a store.
type StoreStats struct {
	Objects   int   `json:"objects"`
	DataBytes int64 `json:"data_bytes"`
	MetaBytes int64 `json:"meta_bytes"`
}

// Stats walks the store root and counts complete objects and their sizes.
// Entries racing with concurrent deletes are skipped rather than failing
// the whole walk.
func (s *Store) Stats(ctx context.Context) (StoreStats, error) {
	if err := ctx.Err(); err != nil {
		return StoreStats{}, err
	}

	var stats StoreStats
	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if !d.IsDir() || !objectExists(path) {
			return nil
		}

		stats.Objects++
		if info, err := os.Stat(filepath.Join(path, dataFileName)); err == nil {
			stats.DataBytes += info.Size()
		}
		if info, err := os.Stat(filepath.Join(path, metaFileName)); err == nil {
			stats.MetaBytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return StoreStats{}, err
	}
	return stats, nil
}
