package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks invalid configuration, such as an overlap that is not
	// smaller than the chunk size.
	ErrConfig = errors.New("invalid configuration")

	// ErrIndexUnavailable is returned by vector stores that have not been
	// initialized yet. Searches treat it as zero results.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrState marks an operation attempted in the wrong session state.
	ErrState = errors.New("invalid session state")

	// ErrEmptyQuestion is returned when the reader submits a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
)

// ExtractionError reports a book file that could not be read.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StateError reports an operation that the session cannot perform in its
// current state.
type StateError struct {
	Op     string
	State  string
	Reason string
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s not allowed in state %s: %s", e.Op, e.State, e.Reason)
	}
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool { return target == ErrState }

// ConfigErrorf wraps ErrConfig with a formatted message.
func ConfigErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
