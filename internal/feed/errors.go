package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrNetworkFailure matches every failure reported by the remote source.
	ErrNetworkFailure = errors.New("trace log source failed")
	// ErrInvalidPageSize is returned for page sizes outside the configured bounds.
	ErrInvalidPageSize = errors.New("invalid page size")
	// ErrStaleResult marks a load whose epoch was superseded before it completed.
	ErrStaleResult = errors.New("stale load result")
	// ErrFillInProgress is returned when a fill is already running for the same load state.
	ErrFillInProgress = errors.New("fill already in progress")
	// ErrInvalidInterval is returned for non-positive live intervals.
	ErrInvalidInterval = errors.New("invalid live interval")
	// ErrClosed is returned once the engine has been closed.
	ErrClosed = errors.New("engine closed")
)

// NetworkError wraps a source failure with the operation that triggered it.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNetworkFailure) match any NetworkError.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetworkFailure
}
