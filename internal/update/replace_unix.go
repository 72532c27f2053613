//go:build !windows

package update

import (
	"fmt"
	"os"
)

// ReplaceExecutable swaps the current binary for the one at newPath.
// Unix keeps file descriptors of the running binary valid across the
// replacement, so this is safe while running.
func ReplaceExecutable(currentPath, newPath string) error {
	newInfo, err := os.Stat(newPath)
	if err != nil {
		return fmt.Errorf("stat new file: %w", err)
	}
	if newInfo.IsDir() {
		return fmt.Errorf("new path is a directory")
	}

	currentInfo, err := os.Stat(currentPath)
	if err != nil {
		return fmt.Errorf("stat current file: %w", err)
	}

	// Rename is atomic but only works within one filesystem.
	if err := os.Rename(newPath, currentPath); err == nil {
		_ = os.Chmod(currentPath, currentInfo.Mode())
		return nil
	}

	if err := copyFile(newPath, currentPath); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	if err := os.Chmod(currentPath, currentInfo.Mode()); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	_ = os.Remove(newPath)

	return nil
}

// ReplaceExecutableWithBackup swaps the binary, keeping a copy of the
// original. Returns the backup path for RollbackReplace.
func ReplaceExecutableWithBackup(currentPath, newPath string) (backupPath string, err error) {
	if _, err := os.Stat(newPath); err != nil {
		return "", fmt.Errorf("stat new file: %w", err)
	}

	backupPath = currentPath + ".backup"
	_ = os.Remove(backupPath)

	if err := copyFile(currentPath, backupPath); err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}

	if err := ReplaceExecutable(currentPath, newPath); err != nil {
		_ = os.Remove(currentPath)
		_ = os.Rename(backupPath, currentPath)
		return "", fmt.Errorf("replace: %w", err)
	}

	return backupPath, nil
}

// RollbackReplace restores the binary from a backup.
func RollbackReplace(currentPath, backupPath string) error {
	if backupPath == "" {
		return fmt.Errorf("no backup path provided")
	}
	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup not found: %w", err)
	}

	var mode os.FileMode = 0755
	if info, err := os.Stat(currentPath); err == nil {
		mode = info.Mode()
	} else if info, err := os.Stat(backupPath); err == nil {
		mode = info.Mode()
	}

	_ = os.Remove(currentPath)
	if err := os.Rename(backupPath, currentPath); err != nil {
		if err := copyFile(backupPath, currentPath); err != nil {
			return fmt.Errorf("restore from backup: %w", err)
		}
	}
	_ = os.Chmod(currentPath, mode)

	return nil
}
