package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrCacheEntryNotFound = errors.New("cache entry not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTemporary          = errors.New("temporary failure")
	ErrRetrieval          = errors.New("retrieval failure")
	ErrGeneration         = errors.New("generation failure")

	// ErrStaleCacheWrite reports a cache write that lost the race against an
	// invalidation of one of its source documents. Callers treat it as benign.
	ErrStaleCacheWrite = errors.New("stale cache write")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
