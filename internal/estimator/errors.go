package estimator

import (
	"errors"
	"fmt"
)

var (
	// ErrNegativeInput is returned when a step carries a negative count.
	ErrNegativeInput = errors.New("estimator: negative input")
	// ErrInvalidAlpha is returned for a confidence draw outside (0, 1).
	ErrInvalidAlpha = errors.New("estimator: alpha must lie in (0, 1)")
	// ErrBracketDiverged is returned when the doubling search fails to find
	// an upper bracket within the configured number of doublings.
	ErrBracketDiverged = errors.New("estimator: bracketing search diverged")
	// ErrUndefinedMidP is returned when the survival model is evaluated
	// outside its support, which happens for inconsistent step inputs.
	ErrUndefinedMidP = errors.New("estimator: mid-P undefined for step")
	// ErrInvalidReplicates is returned for a non-positive replicate count.
	ErrInvalidReplicates = errors.New("estimator: replicates must be positive")
	// ErrInvalidPercentile is returned for a percentile outside (0, 100).
	ErrInvalidPercentile = errors.New("estimator: percentile must lie in (0, 100)")
)

// ReplicateError reports the replicate whose trajectory failed.
type ReplicateError struct {
	Index int
	Err   error
}

func (e *ReplicateError) Error() string {
	return fmt.Sprintf("estimator: replicate %d: %v", e.Index, e.Err)
}

func (e *ReplicateError) Unwrap() error { return e.Err }
