package puzzle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown puzzle ids, puzzles without geometry
	// and missing asset objects. Callers redirect rather than fail.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable is returned when the remote store or the secret
	// provider cannot be reached. No cache mutation happens.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrCorruptCache is returned when the cache file exists but cannot be
	// parsed into puzzle records.
	ErrCorruptCache = errors.New("corrupt cache")
)

// GeometryError reports a hex grid that could not be turned into a puzzle.
type GeometryError struct {
	ID  string
	Err error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry for puzzle %s: %v", e.ID, e.Err)
}

func (e *GeometryError) Unwrap() error {
	return e.Err
}
