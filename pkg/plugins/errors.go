package plugins

import (
	"errors"
	"fmt"
)

// Common plugin errors
var (
	// ErrABIMismatch is returned when a unit was built against another contract version
	ErrABIMismatch = errors.New("analyzer ABI version mismatch")

	// ErrNoFactory is returned when a unit exports no analyzer constructor
	ErrNoFactory = errors.New("unit exports no analyzer factory")

	// ErrNilAnalyzer is returned when registering a nil analyzer
	ErrNilAnalyzer = errors.New("analyzer cannot be nil")

	// ErrDuplicateAnalyzer is returned when an origin registers the same analyzer name twice
	ErrDuplicateAnalyzer = errors.New("analyzer already registered")

	// ErrBrokenAnalyzer is returned when an analyzer panics while being described
	ErrBrokenAnalyzer = errors.New("analyzer panicked during registration")

	// ErrAnalyzerNotFound is returned when an analyzer is not found
	ErrAnalyzerNotFound = errors.New("analyzer not found")
)

// LoadError represents a failure to load one analyzer unit
type LoadError struct {
	Unit  string
	Cause error
}

// Error implements the error interface
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load analyzer unit %s: %v", e.Unit, e.Cause)
}

// Unwrap returns the underlying error
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// NewLoadError creates a new load error
func NewLoadError(unit string, cause error) *LoadError {
	return &LoadError{
		Unit:  unit,
		Cause: cause,
	}
}

// IsLoadError checks if an error is a unit load error
func IsLoadError(err error) bool {
	var loadErr *LoadError
	return errors.As(err, &loadErr)
}
