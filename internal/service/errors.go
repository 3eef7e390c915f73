package service

import (
	"errors"
	"fmt"
)

// ValidationError blocks a save with no mutation applied. It is surfaced to
// the user against the named field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// LinkError codes.
const (
	LinkSameAccount   = "same-account"
	LinkAmbiguousPair = "ambiguous-pair"
	LinkAlreadyLinked = "already-linked"
	LinkNotFound      = "not-found"
)

// LinkError blocks a transfer transition with no mutation applied.
type LinkError struct {
	Code    string
	Message string
}

func (e *LinkError) Error() string { return e.Message }

func linkErr(code, format string, args ...interface{}) error {
	return &LinkError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrSnapshotConsumed is returned when Reconcile is called twice with the
// same snapshot. A second call would silently double-apply every delta, so
// the snapshot is consumed on first use and reuse is a programming error.
var ErrSnapshotConsumed = errors.New("snapshot already reconciled")
