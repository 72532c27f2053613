package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// tmpName returns a fresh co-located temporary name for path. Co-location
// keeps the final rename inside one directory, which is what makes it
// atomic on the platforms we care about.
func tmpName(path string) string {
	return path + "_" + uuid.NewString()
}

// stageWrite writes content directly to a staging path that is not yet
// visible to readers, creating it exclusively and syncing before return.
// Unlike atomicWrite there is no inner temporary, so a crash mid-write
// leaves at most the staging file itself, which the reclaim sweep
// recognizes. On failure the staging file is removed.
func stageWrite(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}

	_, err = f.Write(content)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("write staging file: %w", err)
	}
	return nil
}

// atomicWrite commits content to path so that a reader at any moment sees
// either the previous content or the new content, never a partial write.
// The content lands in a temporary file in the same directory, is flushed
// and synced to stable media, and is then renamed onto the final name. On
// any failure before the rename the temporary file is removed.
func atomicWrite(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	tmp := tmpName(path)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	_, err = f.Write(content)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit temp file: %w", err)
	}

	return nil
}
