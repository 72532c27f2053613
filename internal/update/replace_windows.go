//go:build windows

package update

import (
	"fmt"
	"os"
)

// ReplaceExecutable swaps the current binary for the one at newPath.
// Windows locks running executables, so the current binary is renamed
// aside first; the .old file is removed on the next startup.
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

	oldPath := currentPath + ".old"
	_ = os.Remove(oldPath)

	// Renaming a running executable works on Windows; deleting does not.
	if err := os.Rename(currentPath, oldPath); err != nil {
		return fmt.Errorf("rename current to old: %w", err)
	}

	if err := copyFile(newPath, currentPath); err != nil {
		_ = os.Rename(oldPath, currentPath)
		return fmt.Errorf("copy new file: %w", err)
	}

	_ = os.Chmod(currentPath, currentInfo.Mode())
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
		_ = os.Remove(currentPath + ".old")
		_ = copyFile(backupPath, currentPath)
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
	if info, err := os.Stat(backupPath); err == nil {
		mode = info.Mode()
	}

	oldPath := currentPath + ".rollback-old"
	_ = os.Remove(oldPath)
	_ = os.Rename(currentPath, oldPath)

	if err := copyFile(backupPath, currentPath); err != nil {
		_ = os.Rename(oldPath, currentPath)
		return fmt.Errorf("restore from backup: %w", err)
	}

	_ = os.Chmod(currentPath, mode)
	_ = os.Remove(oldPath)
	_ = os.Remove(backupPath)

	return nil
}
