package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidImage is returned when an upload request carries no
	// recognizable image.
	ErrInvalidImage = errors.New("invalid image format")
	// ErrTooManyFiles is returned when a batch upload exceeds MaxBatchFiles.
	ErrTooManyFiles = errors.New("too many files")
)

// ExtractionError reports an embedded image payload that could not be
// decoded. Path locates the field, e.g. "reviews[0].review[1].content".
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("malformed embedded image at %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
