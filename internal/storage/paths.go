package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Files an object directory owns. Any other entry in an object directory
// is either a tag marker or foreign content.
const (
	dataFileName = "data"
	metaFileName = "meta"
)

// objectPath resolves a logical URI to the physical directory holding the
// object's artifacts: the URI root is stripped from the left, leading
// separators are trimmed, and the remainder is joined under the store root.
// Resolution is purely lexical; symlinks are not followed and the result is
// not revalidated against the root. Callers inside the trust boundary are
// responsible for the URIs they pass in.
func (s *Store) objectPath(uri string) string {
	rel := strings.TrimPrefix(uri, s.uriRoot)
	rel = strings.TrimLeft(rel, "/")
	return filepath.Join(s.rootDir, filepath.FromSlash(rel))
}

// joinURI joins a logical directory URI with a child entry name.
func joinURI(dirURI, name string) string {
	return path.Join(dirURI, name)
}

// isEngineTemp reports whether name has a transient shape the engine
// produces (data_<uuid> or meta_<uuid>), or the doubled data_<uuid>_<uuid>
// shape earlier engines could leave when a crash hit the inner temporary
// of a staged write. Only entries of these shapes are reclaimed during
// create; everything else is treated as foreign.
func isEngineTemp(name string) bool {
	for _, prefix := range []string{dataFileName + "_", metaFileName + "_"} {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		parts := strings.Split(rest, "_")
		if len(parts) > 2 {
			continue
		}
		valid := true
		for _, p := range parts {
			if _, err := uuid.Parse(p); err != nil {
				valid = false
				break
			}
		}
		if valid {
			return true
		}
	}
	return false
}

// isEngineOwned reports whether name belongs to the object's own artifacts,
// committed or transient.
func isEngineOwned(name string) bool {
	return name == dataFileName || name == metaFileName || isEngineTemp(name)
}

// IsTempArtifact reports whether a file name has the transient shape the
// engine produces while committing writes. Snapshot and maintenance tooling
// skip such entries.
func IsTempArtifact(name string) bool {
	return isEngineTemp(name)
}

// validateURI rejects URIs the engine cannot meaningfully resolve.
func validateURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("%w: empty uri", ErrInvalidArgument)
	}
	if strings.ContainsRune(uri, 0) {
		return fmt.Errorf("%w: null byte in uri", ErrInvalidArgument)
	}
	return nil
}

// validateTag rejects tag names that would collide with the files the
// engine owns or escape the object directory.
func validateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("%w: empty tag", ErrInvalidArgument)
	}
	if strings.ContainsAny(tag, "/\\") || strings.ContainsRune(tag, 0) {
		return fmt.Errorf("%w: tag %q", ErrInvalidArgument, tag)
	}
	if tag == "." || tag == ".." {
		return fmt.Errorf("%w: tag %q", ErrInvalidArgument, tag)
	}
	if isEngineOwned(tag) {
		return fmt.Errorf("%w: tag %q is reserved", ErrInvalidArgument, tag)
	}
	return nil
}
