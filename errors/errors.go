package errors

import (
	"errors"
	"fmt"
)

// Category classifies failures so callers can react without string matching.
type Category string

const (
	CategoryUnreadable   Category = "unreadable_image"
	CategoryEncoding     Category = "invalid_encoding"
	CategoryUnwritable   Category = "unwritable"
	CategoryNotFound     Category = "not_found"
	CategoryPrecondition Category = "precondition"
	CategoryPipeline     Category = "pipeline"
	CategoryConfig       Category = "config"
)

// ProcessingError is the structured error type used throughout the module.
// Failures are terminal: nothing in the module retries them.
type ProcessingError struct {
	Category Category
	Op       string // operation name
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Is matches the sentinel that corresponds to the error's category, so
// errors.Is(err, ErrNotFound) holds for any not_found failure regardless of
// the underlying cause.
func (e *ProcessingError) Is(target error) bool {
	s := sentinelFor(e.Category)
	return s != nil && s == target
}

// New creates a ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Wrap wraps an existing error with context.  An error that is already a
// ProcessingError keeps its category.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		category = pe.Category
	}
	return New(category, op, err)
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	return CategoryOf(err) == cat
}

// CategoryOf returns the category of the outermost ProcessingError in err's
// chain, or "" when there is none.
func CategoryOf(err error) Category {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// Sentinel errors for common failure modes.
var (
	ErrUnreadableImage       = errors.New("unreadable image")
	ErrInvalidEncoding       = errors.New("invalid encoding")
	ErrUnwritable            = errors.New("destination not writable")
	ErrNotFound              = errors.New("not found")
	ErrPreconditionViolation = errors.New("precondition violated")
	ErrUnsupportedFormat     = errors.New("unsupported image format")
	ErrEmptyInput            = errors.New("empty input")
	ErrWorkerPoolFull        = errors.New("worker pool queue full")
)

func sentinelFor(c Category) error {
	switch c {
	case CategoryUnreadable:
		return ErrUnreadableImage
	case CategoryEncoding:
		return ErrInvalidEncoding
	case CategoryUnwritable:
		return ErrUnwritable
	case CategoryNotFound:
		return ErrNotFound
	case CategoryPrecondition:
		return ErrPreconditionViolation
	}
	return nil
}
