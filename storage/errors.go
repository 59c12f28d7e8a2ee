package storage

import (
	"errors"
	"fmt"
)

// Common storage errors.
var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidCollection is returned for collection or field names a backend cannot address.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrRejected wraps backend errors that will fail the same way on every attempt,
	// such as constraint violations or undecodable rows.
	ErrRejected = errors.New("rejected by store")
)

func rejected(err error) error {
	return fmt.Errorf("%w: %w", ErrRejected, err)
}

// isPermanent reports whether retrying a store call cannot change its outcome.
func isPermanent(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrInvalidCollection)
}
