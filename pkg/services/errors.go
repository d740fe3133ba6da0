package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures so callers branch on structure
// instead of message text.
type ErrorKind int

const (
	// KindTransient covers network faults, 5xx responses, timeouts and open
	// circuit breakers. The coordinator may retry these.
	KindTransient ErrorKind = iota
	// KindNotReady marks preconditions that are not met yet, such as missing
	// match results. Re-evaluated on a later run, never retried within one.
	KindNotReady
	// KindInvariant marks a broken internal assumption, such as a not-set
	// outcome reaching submission. Aborts the unit and is flagged for review.
	KindInvariant
	// KindAlreadyResolved is the chain reporting the cycle as already
	// resolved. Treated as idempotent success.
	KindAlreadyResolved
	// KindChainRejected is a definitive contract rejection, not retryable.
	KindChainRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotReady:
		return "not_ready"
	case KindInvariant:
		return "invariant"
	case KindAlreadyResolved:
		return "already_resolved"
	case KindChainRejected:
		return "chain_rejected"
	default:
		return "unknown"
	}
}

// Retryable reports whether a retry inside the same run can help.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient
}

// ResolutionError carries a classified failure through the pipeline.
type ResolutionError struct {
	Kind    ErrorKind
	CycleID int64 // zero when the failure is not scoped to one cycle
	Err     error
}

func (e *ResolutionError) Error() string {
	if e.CycleID != 0 {
		return fmt.Sprintf("%s: cycle %d: %v", e.Kind, e.CycleID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// NewResolutionError wraps err with a kind and optional cycle scope.
func NewResolutionError(kind ErrorKind, cycleID int64, err error) *ResolutionError {
	return &ResolutionError{Kind: kind, CycleID: cycleID, Err: err}
}

// KindOf extracts the kind from an error chain. Unclassified errors count as
// transient: an unknown failure is assumed worth one more try.
func KindOf(err error) ErrorKind {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindTransient
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var re *ResolutionError
	return errors.As(err, &re) && re.Kind == kind
}
