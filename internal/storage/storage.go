// Package storage implements the durable object store that backs runvault.
//
// Objects are addressed by slash-separated URIs. Each object occupies the
// directory its URI resolves to and consists of two files committed
// atomically: an opaque payload named "data" and a JSON metadata document
// named "meta". A URI names an object exactly when the directory and both
// files exist; any partial layout, such as one left by an interrupted
// create, reads as "object does not exist" and is reclaimed by the next
// create for that URI.
//
// The store performs no in-process locking. Concurrent writers race at the
// filesystem and the last rename wins; readers observe old or new content,
// never a torn mix. Contexts are honored at operation entry only; an
// operation that has started is never cancelled mid-commit.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Store is a filesystem-backed object store rooted at a single directory.
//
// Directory structure:
//
//	{rootDir}/
//	  jobs/
//	    run-17/
//	      data          # payload, committed via rename
//	      meta          # JSON metadata document, committed via rename
//	      latest        # tag marker files may use any non-reserved name
//	      data_<uuid>   # transient temp, reclaimed on the next create
type Store struct {
	rootDir string
	uriRoot string
}

// Open returns a Store rooted at rootDir, creating the directory if it
// does not exist. rootDir must be absolute. uriRoot is the logical prefix
// stripped from incoming URIs before resolution; empty means "/".
func Open(rootDir, uriRoot string) (*Store, error) {
	if !filepath.IsAbs(rootDir) {
		return nil, fmt.Errorf("%w: root dir %q is not absolute", ErrInvalidArgument, rootDir)
	}
	if uriRoot == "" {
		uriRoot = "/"
	}

	info, err := os.Stat(rootDir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: root %q is not a directory", ErrInvalidArgument, rootDir)
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(rootDir, 0755); err != nil {
			return nil, fmt.Errorf("create root dir: %w", err)
		}
	default:
		return nil, fmt.Errorf("stat root dir: %w", err)
	}

	return &Store{rootDir: rootDir, uriRoot: uriRoot}, nil
}

// Root returns the absolute filesystem directory the store is rooted at.
func (s *Store) Root() string { return s.rootDir }

// URIRoot returns the logical prefix stripped from incoming URIs.
func (s *Store) URIRoot() string { return s.uriRoot }

// CreateObject stores data and meta as the object named by uri and returns
// the physical directory that now holds it. With overwrite false the call
// fails if the object already exists; with overwrite true a new version
// replaces the old one atomically.
//
// Commit order makes the object visible all at once: the payload is staged
// under a temporary name, the metadata document is committed, and the
// staged payload is renamed into place last. Existence requires both files,
// so a crash anywhere in between leaves a state that still reads as
// "object absent".
func (s *Store) CreateObject(ctx context.Context, uri string, data []byte, meta map[string]any, overwrite bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateURI(uri); err != nil {
		return "", err
	}

	dir := s.objectPath(uri)
	exists := objectExists(dir)
	if exists && !overwrite {
		return "", fmt.Errorf("object %q: %w", uri, ErrObjectExists)
	}

	// Temps surviving a crash are swept before the placement check so an
	// interrupted create cannot permanently wedge its URI.
	if err := reclaimTemps(dir); err != nil {
		return "", err
	}
	if !exists {
		if err := requireVacant(dir, uri); err != nil {
			return "", err
		}
	}

	doc, err := encodeMeta(meta)
	if err != nil {
		return "", err
	}

	dataPath := filepath.Join(dir, dataFileName)
	staged := tmpName(dataPath)
	if err := stageWrite(staged, data); err != nil {
		return "", fmt.Errorf("stage data: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, metaFileName), doc); err != nil {
		_ = os.Remove(staged)
		return "", fmt.Errorf("commit meta: %w", err)
	}
	if err := os.Rename(staged, dataPath); err != nil {
		_ = os.Remove(staged)
		return "", fmt.Errorf("commit data: %w", err)
	}

	return dir, nil
}

// UpdateMeta rewrites the object's metadata document. With replace false
// the given mapping is shallow-merged into the existing metadata; with
// replace true it substitutes the document wholesale.
func (s *Store) UpdateMeta(ctx context.Context, uri string, meta map[string]any, replace bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateURI(uri); err != nil {
		return err
	}

	dir := s.objectPath(uri)
	if !objectExists(dir) {
		return fmt.Errorf("object %q: %w", uri, ErrObjectNotFound)
	}

	if !replace {
		existing, err := s.readMeta(dir, uri)
		if err != nil {
			return err
		}
		for k, v := range meta {
			existing[k] = v
		}
		meta = existing
	}

	doc, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	if err := atomicWrite(filepath.Join(dir, metaFileName), doc); err != nil {
		return fmt.Errorf("commit meta: %w", err)
	}
	return nil
}

// UpdateData atomically replaces the object's payload.
func (s *Store) UpdateData(ctx context.Context, uri string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateURI(uri); err != nil {
		return err
	}

	dir := s.objectPath(uri)
	if !objectExists(dir) {
		return fmt.Errorf("object %q: %w", uri, ErrObjectNotFound)
	}
	if err := atomicWrite(filepath.Join(dir, dataFileName), data); err != nil {
		return fmt.Errorf("commit data: %w", err)
	}
	return nil
}

// GetMeta returns the object's decoded metadata mapping.
func (s *Store) GetMeta(ctx context.Context, uri string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateURI(uri); err != nil {
		return nil, err
	}

	dir := s.objectPath(uri)
	if !objectExists(dir) {
		return nil, fmt.Errorf("object %q: %w", uri, ErrObjectNotFound)
	}
	return s.readMeta(dir, uri)
}

// GetData returns the object's payload.
func (s *Store) GetData(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateURI(uri); err != nil {
		return nil, err
	}

	dir := s.objectPath(uri)
	if !objectExists(dir) {
		return nil, fmt.Errorf("object %q: %w", uri, ErrObjectNotFound)
	}
	return s.readData(dir, uri)
}

// GetDetail returns the object's metadata and payload together.
func (s *Store) GetDetail(ctx context.Context, uri string) (map[string]any, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := validateURI(uri); err != nil {
		return nil, nil, err
	}

	dir := s.objectPath(uri)
	if !objectExists(dir) {
		return nil, nil, fmt.Errorf("object %q: %w", uri, ErrObjectNotFound)
	}
	meta, err := s.readMeta(dir, uri)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.readData(dir, uri)
	if err != nil {
		return nil, nil, err
	}
	return meta, data, nil
}

// ListObjects returns the URIs of the complete objects that are immediate
// children of dirURI, in lexical order. withoutTag, when non-empty,
// excludes objects whose directory carries a marker file with that name.
// Entries that are not complete objects are skipped.
func (s *Store) ListObjects(ctx context.Context, dirURI string, withoutTag string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateURI(dirURI); err != nil {
		return nil, err
	}
	if withoutTag != "" {
		if err := validateTag(withoutTag); err != nil {
			return nil, err
		}
	}

	dir := s.objectPath(dirURI)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("path %q is not a directory: %w", dirURI, ErrInvalidPath)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	uris := make([]string, 0, len(entries))
	for _, e := range entries {
		child := filepath.Join(dir, e.Name())
		if !objectExists(child) {
			continue
		}
		if withoutTag != "" && fileExists(filepath.Join(child, withoutTag)) {
			continue
		}
		uris = append(uris, joinURI(dirURI, e.Name()))
	}
	return uris, nil
}

// ListChildren enumerates the immediate children of dirURI, split into
// complete objects and plain subdirectories. It serves read-only
// projections such as the CLI tree listing; object listing with tag
// filtering is ListObjects.
func (s *Store) ListChildren(ctx context.Context, dirURI string) (objects, dirs []string, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := validateURI(dirURI); err != nil {
		return nil, nil, err
	}

	dir := s.objectPath(dirURI)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil, fmt.Errorf("path %q is not a directory: %w", dirURI, ErrInvalidPath)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read dir: %w", err)
	}

	for _, e := range entries {
		child := filepath.Join(dir, e.Name())
		uri := joinURI(dirURI, e.Name())
		switch {
		case objectExists(child):
			objects = append(objects, uri)
		case isDir(child):
			dirs = append(dirs, uri)
		}
	}
	return objects, dirs, nil
}

// DeleteObject removes the object and everything beneath its directory,
// tag markers included.
func (s *Store) DeleteObject(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateURI(uri); err != nil {
		return err
	}

	dir := s.objectPath(uri)
	if !objectExists(dir) {
		return fmt.Errorf("object %q: %w", uri, ErrObjectNotFound)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// TagObject writes a marker file named tag into the directory uri resolves
// to, overwriting any previous marker of that name. Markers are advisory:
// they are written in place without sync and their only engine-level
// consumer is the ListObjects tag filter. The payload may be empty.
func (s *Store) TagObject(ctx context.Context, uri, tag string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateURI(uri); err != nil {
		return err
	}
	if err := validateTag(tag); err != nil {
		return err
	}

	dir := s.objectPath(uri)
	if !isDir(dir) {
		return fmt.Errorf("path %q: %w", uri, ErrObjectNotFound)
	}
	if err := os.WriteFile(filepath.Join(dir, tag), payload, 0644); err != nil {
		return fmt.Errorf("write tag: %w", err)
	}
	return nil
}

// Exists reports whether uri currently names a complete object.
func (s *Store) Exists(ctx context.Context, uri string) bool {
	if ctx.Err() != nil || validateURI(uri) != nil {
		return false
	}
	return objectExists(s.objectPath(uri))
}

// ObjectSize returns the size in bytes of the object's payload.
func (s *Store) ObjectSize(ctx context.Context, uri string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validateURI(uri); err != nil {
		return 0, err
	}

	dir := s.objectPath(uri)
	if !objectExists(dir) {
		return 0, fmt.Errorf("object %q: %w", uri, ErrObjectNotFound)
	}
	info, err := os.Stat(filepath.Join(dir, dataFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("object %q: %w", uri, ErrObjectNotFound)
		}
		return 0, fmt.Errorf("stat data: %w", err)
	}
	return info.Size(), nil
}

// readMeta loads and decodes the meta document from an object directory.
// Objects racing with a concurrent delete surface as not found.
func (s *Store) readMeta(dir, uri string) (map[string]any, error) {
	doc, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %q: %w", uri, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("read meta: %w", err)
	}
	return decodeMeta(doc)
}

// readData loads the payload from an object directory.
func (s *Store) readData(dir, uri string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, dataFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %q: %w", uri, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("read data: %w", err)
	}
	return data, nil
}

// reclaimTemps removes crash-surviving temporary artifacts from dir.
func reclaimTemps(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read object dir: %w", err)
	}
	for _, e := range entries {
		if !isEngineTemp(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reclaim temp %s: %w", e.Name(), err)
		}
	}
	return nil
}

// requireVacant enforces the placement rule for new objects: the target
// directory may exist, but content beyond the engine's own artifacts means
// the URI points at an unrelated directory tree and the create is refused.
func requireVacant(dir, uri string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read object dir: %w", err)
	}
	for _, e := range entries {
		if !isEngineOwned(e.Name()) {
			return fmt.Errorf("directory %q has unrelated content: %w", uri, ErrNonEmptyDirectory)
		}
	}
	return nil
}

// objectExists reports whether dir holds a complete object: the directory
// itself plus regular data and meta files, all present at once.
func objectExists(dir string) bool {
	if !isDir(dir) {
		return false
	}
	return isRegular(filepath.Join(dir, dataFileName)) &&
		isRegular(filepath.Join(dir, metaFileName))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
