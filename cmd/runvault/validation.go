package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// validateObjectURI checks that a vault URI is usable from the command line.
// URIs are absolute slash-separated paths without traversal segments, the
// same shape the server accepts.
// Returns a user-friendly error describing the rules when invalid.
func validateObjectURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("uri cannot be empty - use an absolute path like /jobs/run-1/model")
	}
	if strings.ContainsRune(uri, 0) {
		return fmt.Errorf("uri contains a null byte")
	}
	if !strings.HasPrefix(uri, "/") {
		return fmt.Errorf("uri %q must be absolute - start it with a slash (e.g. /jobs/run-1/model)", uri)
	}
	for _, seg := range strings.Split(uri, "/") {
		if seg == "." || seg == ".." {
			return fmt.Errorf("uri %q must not contain . or .. segments", uri)
		}
	}
	return nil
}

// validateTagName checks that a tag is a plain marker name the store accepts:
// no path separators, no traversal names, not a name the object's own
// artifacts use.
func validateTagName(tag string) error {
	if tag == "" {
		return fmt.Errorf("tag cannot be empty")
	}
	if strings.ContainsAny(tag, "/\\") {
		return fmt.Errorf("tag %q must not contain path separators", tag)
	}
	if tag == "." || tag == ".." {
		return fmt.Errorf("tag %q is not a valid marker name", tag)
	}
	if tag == "data" || tag == "meta" {
		return fmt.Errorf("tag %q is reserved for object artifacts", tag)
	}
	return nil
}

// parseMetaPairs converts key=value arguments into an object metadata map.
// Values that parse as JSON keep their type (numbers, booleans, null,
// quoted strings, arrays); everything else stays a plain string.
func parseMetaPairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid meta %q - use key=value (e.g. round=3)", pair)
		}
		if key == "" {
			return nil, fmt.Errorf("invalid meta %q - key cannot be empty", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			meta[key] = parsed
		} else {
			meta[key] = value
		}
	}
	return meta, nil
}
