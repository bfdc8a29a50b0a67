package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tingly-dev/nodepack/internal/archive"
)

var (
	// ErrNotFound means the requested path has no backing node
	ErrNotFound = errors.New("resource not found")
	// ErrStructural means the repository violated a traversal invariant
	ErrStructural = errors.New("structural error")
	// ErrSerialization means node data cannot be represented in the archive
	ErrSerialization = errors.New("serialization error")
	// ErrIO means the output channel rejected further bytes
	ErrIO = errors.New("output error")
	// ErrInvalidOptions means the export options are unusable
	ErrInvalidOptions = errors.New("invalid export options")
)

// classify maps archive level failures onto the export taxonomy
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, archive.ErrEncode):
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	case errors.Is(err, archive.ErrWrite):
		return fmt.Errorf("%w: %w", ErrIO, err)
	default:
		return err
	}
}

// StatusCode returns the HTTP status for an export error
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidOptions):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Kind names the error class for logs and metrics
func Kind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidOptions):
		return "invalid_options"
	case errors.Is(err, ErrStructural):
		return "structural"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
