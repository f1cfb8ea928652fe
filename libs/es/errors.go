package es

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("aggregate not found")
	ErrVersionConflict  = errors.New("version conflict")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrSequenceGap      = errors.New("event sequence gap")
)

// VersionConflictError reports a lost compare-and-append race. Actual is -1
// when the competing write was only detected by the stream constraint.
type VersionConflictError struct {
	AggregateID string
	Expected    int
	Actual      int
}

func (e *VersionConflictError) Error() string {
	if e.Actual < 0 {
		return fmt.Sprintf("version conflict on %s: expected version %d was already taken", e.AggregateID, e.Expected)
	}
	return fmt.Sprintf("version conflict on %s: expected version %d, stream is at %d", e.AggregateID, e.Expected, e.Actual)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// ValidationError is a rejected command. Rule is a stable kebab-case code
// such as "duplicate-email" or "vendor-not-active".
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Rule + ": " + e.Message
}

func Invalid(rule string, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// DuplicateValue is the validation failure for an already claimed unique value.
func DuplicateValue(field string, value string) *ValidationError {
	return Invalid("duplicate-"+field, "%s %q is already registered", field, value)
}

// AsValidation extracts a ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
