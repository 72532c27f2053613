package storage

import "errors"

// Storage error types.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrObjectExists      = errors.New("object already exists")
	ErrNonEmptyDirectory = errors.New("directory not empty")
	ErrObjectNotFound    = errors.New("object not found")
	ErrInvalidPath       = errors.New("invalid path")
	ErrMetaDecode        = errors.New("metadata decode failed")
)
