// Package snapshot exports and imports vault trees as zstd-compressed tar
// archives. An archive captures every committed artifact, including tag
// markers, so a restored tree behaves identically to the original.
package snapshot

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/runvault/runvault/internal/storage"
)

// Write streams the store's on-disk tree into w as a zstd-compressed tar
// archive. Transient engine files left over from interrupted writes are
// skipped; everything else travels as-is. Returns the number of files
// archived.
func Write(ctx context.Context, store *storage.Store, w io.Writer) (int, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(enc)

	root := store.Root()
	count := 0
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Objects can vanish mid-walk; that is not a snapshot failure.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if storage.IsTempArtifact(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}

		// Open before writing the header so a file deleted between the
		// walk callback and the read never leaves a truncated entry.
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("header for %s: %w", rel, err)
		}
		hdr.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header %s: %w", hdr.Name, err)
		}
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("archive %s: %w", hdr.Name, err)
		}
		count++
		return nil
	})
	if walkErr != nil {
		_ = tw.Close()
		_ = enc.Close()
		return count, walkErr
	}

	if err := tw.Close(); err != nil {
		return count, fmt.Errorf("finalize archive: %w", err)
	}
	if err := enc.Close(); err != nil {
		return count, fmt.Errorf("finalize compression: %w", err)
	}
	return count, nil
}

// Read restores a snapshot archive into dir, creating it if needed. The
// target must be empty so a restore can never silently merge two vaults.
// Returns the number of files extracted.
func Read(ctx context.Context, r io.Reader, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("read target directory: %w", err)
	}
	if len(entries) > 0 {
		return 0, fmt.Errorf("target directory %s is not empty", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create target directory: %w", err)
	}
	cleanDir := filepath.Clean(dir)

	dec, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	tr := tar.NewReader(dec)
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("read archive: %w", err)
		}

		target := filepath.Join(cleanDir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target, cleanDir+string(os.PathSeparator)) {
			return count, fmt.Errorf("archive entry %q escapes target directory", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, fmt.Errorf("create directory %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return count, fmt.Errorf("create parent for %s: %w", hdr.Name, err)
			}
			if err := extractFile(target, tr); err != nil {
				return count, fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			count++
		default:
			// A vault tree holds only directories and regular files.
			return count, fmt.Errorf("unsupported archive entry type %d for %q", hdr.Typeflag, hdr.Name)
		}
	}
}

func extractFile(target string, r io.Reader) error {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
