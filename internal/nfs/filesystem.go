// Package nfs exposes the vault tree as a read-only NFS v3 export.
package nfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/runvault/runvault/internal/storage"
)

var errReadOnly = errors.New("read-only filesystem")

// VaultFilesystem implements billy.Filesystem over a vault tree. All write
// operations fail with errReadOnly; transient engine files are invisible.
type VaultFilesystem struct {
	root   string // Absolute path of the vault tree on disk
	prefix string // Subtree this view is rooted at, slash-separated, no leading slash
}

// NewVaultFilesystem creates a read-only view over the store's tree, rooted
// at prefix ("" exposes the whole vault).
func NewVaultFilesystem(store *storage.Store, prefix string) *VaultFilesystem {
	return &VaultFilesystem{
		root:   store.Root(),
		prefix: strings.Trim(prefix, "/"),
	}
}

// normalizePath converts a mount-relative path to a key under the tree root.
// Cleaning against "/" first keeps dot-dot segments from escaping the tree.
func (f *VaultFilesystem) normalizePath(path string) string {
	path = filepath.ToSlash(filepath.Clean("/" + path))
	path = strings.TrimPrefix(path, "/")
	if f.prefix != "" {
		if path == "" {
			return f.prefix
		}
		return f.prefix + "/" + path
	}
	return path
}

// fsPath resolves a normalized key to its on-disk location.
func (f *VaultFilesystem) fsPath(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

// Create creates the named file.
func (f *VaultFilesystem) Create(filename string) (billy.File, error) {
	return nil, errReadOnly
}

// Open opens the named file for reading.
func (f *VaultFilesystem) Open(filename string) (billy.File, error) {
	return f.OpenFile(filename, os.O_RDONLY, 0)
}

// OpenFile opens the named file with specified flags.
func (f *VaultFilesystem) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, errReadOnly
	}

	key := f.normalizePath(filename)
	if hidden(key) {
		return nil, os.ErrNotExist
	}

	// Lstat keeps a planted symlink from redirecting reads outside the tree.
	info, err := os.Lstat(f.fsPath(key))
	if err != nil || !info.Mode().IsRegular() {
		return nil, os.ErrNotExist
	}

	h, err := os.Open(f.fsPath(key))
	if err != nil {
		return nil, os.ErrNotExist
	}
	return &vaultFile{name: filename, file: h}, nil
}

// Stat returns file info.
func (f *VaultFilesystem) Stat(filename string) (os.FileInfo, error) {
	key := f.normalizePath(filename)
	if hidden(key) {
		return nil, os.ErrNotExist
	}

	info, err := os.Lstat(f.fsPath(key))
	if err != nil {
		return nil, os.ErrNotExist
	}

	switch {
	case info.IsDir():
		return &vaultFileInfo{
			name:    infoName(filename),
			mode:    0555 | os.ModeDir,
			modTime: info.ModTime(),
			isDir:   true,
		}, nil
	case info.Mode().IsRegular():
		return &vaultFileInfo{
			name:    infoName(filename),
			size:    info.Size(),
			mode:    0444,
			modTime: info.ModTime(),
		}, nil
	default:
		return nil, os.ErrNotExist
	}
}

// Rename renames a file.
func (f *VaultFilesystem) Rename(oldpath, newpath string) error {
	return errReadOnly
}

// Remove removes a file.
func (f *VaultFilesystem) Remove(filename string) error {
	return errReadOnly
}

// Join joins path elements.
func (f *VaultFilesystem) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// TempFile creates a temporary file.
func (f *VaultFilesystem) TempFile(dir, prefix string) (billy.File, error) {
	return nil, errReadOnly
}

// ReadDir reads a directory.
func (f *VaultFilesystem) ReadDir(path string) ([]os.FileInfo, error) {
	key := f.normalizePath(path)
	entries, err := os.ReadDir(f.fsPath(key))
	if err != nil {
		return nil, os.ErrNotExist
	}

	var infos []os.FileInfo
	for _, e := range entries {
		if storage.IsTempArtifact(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Entry vanished between list and stat.
			continue
		}
		switch {
		case e.IsDir():
			infos = append(infos, &vaultFileInfo{
				name:    e.Name(),
				mode:    0555 | os.ModeDir,
				modTime: info.ModTime(),
				isDir:   true,
			})
		case e.Type().IsRegular():
			infos = append(infos, &vaultFileInfo{
				name:    e.Name(),
				size:    info.Size(),
				mode:    0444,
				modTime: info.ModTime(),
			})
		}
	}
	return infos, nil
}

// MkdirAll creates a directory and all parents.
func (f *VaultFilesystem) MkdirAll(path string, perm os.FileMode) error {
	return errReadOnly
}

// Symlink creates a symbolic link.
func (f *VaultFilesystem) Symlink(target, link string) error {
	return errReadOnly
}

// Readlink reads a symbolic link.
func (f *VaultFilesystem) Readlink(link string) (string, error) {
	return "", errors.New("symlinks not supported")
}

// Lstat returns file info (the tree holds no symlinks to resolve).
func (f *VaultFilesystem) Lstat(filename string) (os.FileInfo, error) {
	return f.Stat(filename)
}

// Chroot returns a new filesystem rooted at path.
func (f *VaultFilesystem) Chroot(path string) (billy.Filesystem, error) {
	return &VaultFilesystem{root: f.root, prefix: f.normalizePath(path)}, nil
}

// Root returns the root path.
func (f *VaultFilesystem) Root() string {
	return "/"
}

// hidden reports whether a key names a transient engine file.
func hidden(key string) bool {
	if key == "" {
		return false
	}
	return storage.IsTempArtifact(filepath.Base(key))
}

// infoName derives the entry name NFS clients display.
func infoName(filename string) string {
	base := filepath.Base(filepath.Clean("/" + filename))
	if base == "/" || base == "." {
		return "/"
	}
	return base
}

// --- vaultFile implementation ---

type vaultFile struct {
	name string
	file *os.File
}

func (f *vaultFile) Name() string {
	return f.name
}

func (f *vaultFile) Read(p []byte) (int, error) {
	return f.file.Read(p)
}

func (f *vaultFile) ReadAt(p []byte, off int64) (int, error) {
	return f.file.ReadAt(p, off)
}

func (f *vaultFile) Seek(offset int64, whence int) (int64, error) {
	return f.file.Seek(offset, whence)
}

func (f *vaultFile) Write(p []byte) (int, error) {
	return 0, errReadOnly
}

func (f *vaultFile) Truncate(size int64) error {
	return errReadOnly
}

func (f *vaultFile) Close() error {
	return f.file.Close()
}

func (f *vaultFile) Lock() error {
	return nil // No-op
}

func (f *vaultFile) Unlock() error {
	return nil // No-op
}

// --- vaultFileInfo implementation ---

type vaultFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (fi *vaultFileInfo) Name() string       { return fi.name }
func (fi *vaultFileInfo) Size() int64        { return fi.size }
func (fi *vaultFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *vaultFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *vaultFileInfo) IsDir() bool        { return fi.isDir }
func (fi *vaultFileInfo) Sys() interface{}   { return nil }

// Ensure VaultFilesystem implements billy.Filesystem
var _ billy.Filesystem = (*VaultFilesystem)(nil)
var _ billy.File = (*vaultFile)(nil)
var _ fs.FileInfo = (*vaultFileInfo)(nil)
