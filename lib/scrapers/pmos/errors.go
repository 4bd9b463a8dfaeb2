package pmos

import (
	"errors"
	"fmt"
)

// FailureKind classifies unit-level failures; the kind decides whether
// another attempt on the same UI state is worth anything.
type FailureKind int

const (
	// TransientUIFailure covers timeouts, stale elements after a
	// re-render, downloads that never completed. Retried.
	TransientUIFailure FailureKind = iota
	// NavigationFailure means the target view was unreachable. Also
	// retried, but a diagnostic snapshot is captured first.
	NavigationFailure
	// ExtractionFailure means both the export and the scrape
	// fallback produced zero rows. Repeating identical UI state
	// rarely self-heals inside one run, so this is terminal.
	ExtractionFailure
	// DataShapeFailure means the table structure was unrecognized:
	// the site changed and the mapping needs revision, not a retry.
	DataShapeFailure
)

func (k FailureKind) String() string {
	switch k {
	case TransientUIFailure:
		return "transient"
	case NavigationFailure:
		return "navigation"
	case ExtractionFailure:
		return "extraction"
	case DataShapeFailure:
		return "data_shape"
	default:
		return "unknown"
	}
}

// retryable reports whether another attempt at the same unit can
// plausibly succeed.
func (k FailureKind) retryable() bool {
	return k == TransientUIFailure || k == NavigationFailure
}

// UnitError is a classified failure of a single crawl unit.
type UnitError struct {
	Kind FailureKind
	Err  error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

func failf(kind FailureKind, format string, args ...any) *UnitError {
	return &UnitError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// classify wraps an arbitrary error as a UnitError, defaulting to
// transient when it carries no classification of its own.
func classify(err error) *UnitError {
	if err == nil {
		return nil
	}
	var ue *UnitError
	if errors.As(err, &ue) {
		return ue
	}
	return &UnitError{Kind: TransientUIFailure, Err: err}
}
