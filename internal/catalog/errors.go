package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogUnavailable is returned when a catalog page cannot be fetched
	// after exhausting retries, or a response cannot be decoded.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrInconsistentCatalog is returned when the catalog contradicts itself:
	// a result count that differs from the reported total, or two different
	// payloads sharing one id.
	ErrInconsistentCatalog = errors.New("inconsistent catalog")

	// ErrNoCandidate is returned when no scene matches the search.
	ErrNoCandidate = errors.New("no candidate scene")

	// ErrMalformedScene is returned when a scene lacks a required property or asset.
	ErrMalformedScene = errors.New("malformed scene")

	// ErrInvalidTimeSpan is returned when a time span is empty or reversed.
	ErrInvalidTimeSpan = errors.New("invalid time span")
)

// UnavailableError carries the last upstream response seen before giving up.
type UnavailableError struct {
	Endpoint   string
	Attempts   int
	StatusCode int
	Body       string
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s failed after %d attempts: %v", ErrCatalogUnavailable, e.Endpoint, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %s returned status %d after %d attempts: %s",
		ErrCatalogUnavailable, e.Endpoint, e.StatusCode, e.Attempts, e.Body)
}

// Is lets errors.Is match ErrCatalogUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrCatalogUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
