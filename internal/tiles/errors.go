package tiles

import (
	"errors"
	"fmt"
)

var (
	// ErrTileService is returned when the tile service answers with a non-200
	// status, a non-image content type, or bytes that cannot be decoded.
	ErrTileService = errors.New("tile service error")

	// ErrInvalidRequest is returned when a request cannot be turned into a GetMap call.
	ErrInvalidRequest = errors.New("invalid tile request")
)

// ServiceError describes a rejected tile service response.
type ServiceError struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        string
	Err         error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (status %d, content type %q): %v", ErrTileService, e.URL, e.StatusCode, e.ContentType, e.Err)
	}
	return fmt.Sprintf("%s: %s returned status %d with content type %q: %s",
		ErrTileService, e.URL, e.StatusCode, e.ContentType, e.Body)
}

// Is lets errors.Is match ErrTileService.
func (e *ServiceError) Is(target error) bool {
	return target == ErrTileService
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
