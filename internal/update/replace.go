package update

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// GetExecutablePath returns the path of the running binary with symlinks
// resolved.
func GetExecutablePath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("get executable: %w", err)
	}

	realPath, err := filepath.EvalSymlinks(exePath)
	if err != nil {
		return exePath, nil
	}
	return realPath, nil
}

// CleanupBackup removes the backup left by ReplaceExecutableWithBackup.
func CleanupBackup(backupPath string) {
	if backupPath == "" {
		return
	}
	_ = os.Remove(backupPath)
}

// CleanupOldBinary removes the .old file a previous Windows update left
// behind. Harmless elsewhere.
func CleanupOldBinary() {
	exePath, err := GetExecutablePath()
	if err != nil {
		return
	}
	_ = os.Remove(exePath + ".old")
}

// copyFile copies src to dst, truncating dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync: %w", err)
	}
	return out.Close()
}
