package storage

import "errors"

var (
	ErrStoreUnavailable   = errors.New("vector store unavailable")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionConflict = errors.New("collection exists with different configuration")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
	ErrInvalidFilter      = errors.New("invalid filter")
	ErrInvalidRequest     = errors.New("invalid search request")
)
