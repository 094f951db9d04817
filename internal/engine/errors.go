package engine

import (
	"errors"
	"fmt"
)

// Code categorizes synchronization errors.
type Code string

const (
	// CodeShapeMismatch reports rows that do not match the container
	// schema. Programming error, fatal to the call.
	CodeShapeMismatch Code = "SHAPE_MISMATCH"

	// CodeQuery reports a malformed predicate or a store-rejected query.
	CodeQuery Code = "QUERY_ERROR"

	// CodeConstraint reports a store-side uniqueness or referential
	// failure on insert.
	CodeConstraint Code = "CONSTRAINT_VIOLATION"

	// CodeConflict reports an update that affected zero rows: the
	// stored row changed (or vanished) since it was loaded.
	CodeConflict Code = "OPTIMISTIC_CONFLICT"

	// CodeNotFound reports an absent fetch or delete target. Deletes
	// tolerate it under the idempotent policy; fetches report it.
	CodeNotFound Code = "NOT_FOUND"

	// CodeValidation reports a business-rule rejection. Carries the
	// offending row and its message; never aborts sibling rows.
	CodeValidation Code = "VALIDATION_FAILED"

	// CodeTimeout reports a store call that exceeded its bound.
	CodeTimeout Code = "TIMEOUT"

	// CodeTxAborted reports a rolled-back sync scope. Wraps the cause.
	CodeTxAborted Code = "TRANSACTION_ABORTED"
)

// SyncError is a structured synchronization error with enough context
// (container, row index, key) for the caller to act per row.
type SyncError struct {
	Code      Code
	Container string
	Row       int // index within the container, -1 when not row-scoped
	Key       string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := e.Message
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case msg != "" && e.Err != nil:
		msg = msg + ": " + e.Err.Error()
	}
	if e.Container != "" && e.Key != "" {
		return fmt.Sprintf("%s: %s (container=%s, key=%s)", e.Code, msg, e.Container, e.Key)
	}
	if e.Container != "" {
		return fmt.Sprintf("%s: %s (container=%s)", e.Code, msg, e.Container)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the outermost error code from err, or "" if err is
// not a SyncError. Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// hasCode walks the whole wrap chain so that a per-row error inside a
// rolled-back scope (CodeTxAborted wrapping CodeConflict) still answers
// to its specific predicate.
func hasCode(err error, code Code) bool {
	for err != nil {
		var se *SyncError
		if !errors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Err
	}
	return false
}

// IsConflict reports whether err carries an optimistic-conflict error.
func IsConflict(err error) bool { return hasCode(err, CodeConflict) }

// IsConstraint reports whether err carries a constraint violation.
func IsConstraint(err error) bool { return hasCode(err, CodeConstraint) }

// IsNotFound reports whether err carries a not-found error.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsValidation reports whether err carries a validation rejection.
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

// IsTimeout reports whether err carries a timeout.
func IsTimeout(err error) bool { return hasCode(err, CodeTimeout) }

// IsAborted reports whether err carries a rolled-back sync scope.
func IsAborted(err error) bool { return hasCode(err, CodeTxAborted) }
