/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Every structured error unwraps to a sentinel, so callers branch with
  errors.Is and read details with errors.As.

ERROR CATEGORIES:
  1. Input errors   - InvalidDate, InvalidRange
  2. Policy errors  - OutOfPolicy, UnknownLeaveType
  3. Workflow errors - InvalidTransition, NotFound

USAGE:
  units, err := converter.TimeRangeToUnits(start, end)
  if errors.Is(err, generic.ErrOutOfPolicy) {
      // outside business hours
  }

SEE ALSO:
  - leave/units.go: Raises InvalidRange and OutOfPolicy
  - leave/entitlement.go: Raises InvalidDate
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidDate is returned for unparsable or nonsensical dates and times.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidRange is returned when an end precedes its start, or a duration
	// that must be positive is not.
	ErrInvalidRange = errors.New("invalid range")

	// ErrOutOfPolicy is returned when input is well-formed but violates leave policy,
	// such as times outside business hours or hours above a cap.
	ErrOutOfPolicy = errors.New("out of policy")

	// ErrUnknownLeaveType is returned for unrecognized leave-type keys and for
	// types the employee is not eligible for.
	ErrUnknownLeaveType = errors.New("unknown leave type")

	// ErrInvalidTransition is returned when a request status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned when a referenced employee or request doesn't exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidDateError describes a date or clock value that could not be used.
type InvalidDateError struct {
	Input  string
	Reason string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date %q: %s", e.Input, e.Reason)
}

func (e *InvalidDateError) Unwrap() error { return ErrInvalidDate }

// InvalidRangeError describes a range whose end is not after its start.
type InvalidRangeError struct {
	From   string
	To     string
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %s - %s: %s", e.From, e.To, e.Reason)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// OutOfPolicyError names the rule that was broken and the offending value.
type OutOfPolicyError struct {
	Rule  string // e.g., "business_hours", "short_leave_request_cap"
	Value string
	Limit string
}

func (e *OutOfPolicyError) Error() string {
	if e.Limit == "" {
		return fmt.Sprintf("out of policy (%s): %s", e.Rule, e.Value)
	}
	return fmt.Sprintf("out of policy (%s): %s exceeds %s", e.Rule, e.Value, e.Limit)
}

func (e *OutOfPolicyError) Unwrap() error { return ErrOutOfPolicy }

// UnknownLeaveTypeError carries the rejected key.
type UnknownLeaveTypeError struct {
	Key    string
	Reason string
}

func (e *UnknownLeaveTypeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unknown leave type %q", e.Key)
	}
	return fmt.Sprintf("leave type %q: %s", e.Key, e.Reason)
}

func (e *UnknownLeaveTypeError) Unwrap() error { return ErrUnknownLeaveType }

// TransitionError describes a refused status change.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move request from %q to %q", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrOutOfPolicy) ||
		errors.Is(err, ErrUnknownLeaveType)
}

// IsConflict returns true if the error is a refused workflow step.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
