package spider

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across subsystems.
var (
	// ErrNotFound reports a missing job, service, or run log record.
	ErrNotFound = errors.New("record not found")

	// ErrMissingSource reports a job with neither an inline spec nor a
	// service reference.
	ErrMissingSource = errors.New("no spec source: neither inline spec nor service reference present")

	// ErrAlreadyExists reports a duplicate record ID or title on create.
	ErrAlreadyExists = errors.New("record already exists")
)

// ConflictReason is a stable machine-readable code attached to rejected
// operator actions so callers can decide whether a retry makes sense.
type ConflictReason string

// Conflict reasons.
const (
	ConflictAlreadyInState ConflictReason = "ALREADY_IN_STATE"
	ConflictIncompatible   ConflictReason = "INCOMPATIBLE_STATE"
	ConflictTerminal       ConflictReason = "TERMINAL"
	ConflictCapacity       ConflictReason = "CAPACITY"
	ConflictConverging     ConflictReason = "STILL_CONVERGING"
)

// ConflictError rejects an operator action without changing any state.
type ConflictError struct {
	Reason ConflictReason
	Msg    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Msg)
}

// NewConflict builds a ConflictError.
func NewConflict(reason ConflictReason, format string, args ...any) *ConflictError {
	return &ConflictError{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// IsConflict reports whether err is a ConflictError, optionally matching
// a specific reason. Passing an empty reason matches any conflict.
func IsConflict(err error, reason ConflictReason) bool {
	var ce *ConflictError
	if !errors.As(err, &ce) {
		return false
	}
	return reason == "" || ce.Reason == reason
}

// CommandError reports a failed fleet executor invocation. Timeout is a
// distinct failure from a nonzero exit; both carry any captured output
// for diagnostics.
type CommandError struct {
	Op      string
	Output  string
	Timeout bool
	Err     error
}

func (e *CommandError) Error() string {
	kind := "failed"
	if e.Timeout {
		kind = "timed out"
	}
	if e.Output != "" {
		return fmt.Sprintf("executor command %s %s: %v: %s", e.Op, kind, e.Err, e.Output)
	}
	return fmt.Sprintf("executor command %s %s: %v", e.Op, kind, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// IsCommandError reports whether err wraps a CommandError.
func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

// ValidationError rejects malformed input before any external call.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
