/*
errors.go - Centralized error types for the envelope engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is against the sentinels and errors.As
  against the structured types when they need the details.

ERROR CATEGORIES:
  1. Input errors - malformed duration, unknown category, negative capacity
  2. Contract errors - unsorted input, calendar gaps (collaborator bugs)
  3. Change-set errors - delta and set on the same field
  4. Store errors - persistence failures

  Slush-fund invariant violations are NOT errors. They are ErrorCheck
  values attached to the month output (see slush.go), because a month can
  legitimately be in a bad state that the operator fixes next month.

SEE ALSO:
  - slush.go: ErrorCheck
  - api/handlers.go: HTTP status mapping
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
	// ErrInvalidInput is returned for malformed input caught at the boundary.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownCategory is returned when a category is not in the closed set.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrUnsortedInput is returned when transactions are not in date order.
	// BuildDeltaCalendar never sorts on the caller's behalf.
	ErrUnsortedInput = errors.New("unsorted input")

	// ErrCalendarGap is returned when a calendar is not a consecutive day run.
	ErrCalendarGap = errors.New("calendar gap")

	// ErrConflictingOverride is returned when a change set both adds a delta
	// to and sets the same field of the same category.
	ErrConflictingOverride = errors.New("conflicting override")

	// ErrInvalidPeriod is returned when a period ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. Expected on import retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrRunNotFound is returned when a stored simulation run doesn't exist.
	ErrRunNotFound = errors.New("simulation run not found")

	// ErrEnvelopeNotFound is returned when a category has no envelope config.
	ErrEnvelopeNotFound = errors.New("envelope not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidInputError describes which field was rejected and why.
type InvalidInputError struct {
	Field    string
	Category CategoryID
	Reason   string
}

func (e *InvalidInputError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("invalid input: %s for %s: %s", e.Field, e.Category, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// UnknownCategoryError names the category that failed validation.
type UnknownCategoryError struct {
	Category CategoryID
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q", e.Category)
}

func (e *UnknownCategoryError) Unwrap() error { return ErrUnknownCategory }

// UnsortedInputError points at the first out-of-order transaction.
type UnsortedInputError struct {
	Category CategoryID
	Index    int
	Previous TimePoint
	Date     TimePoint
}

func (e *UnsortedInputError) Error() string {
	return fmt.Sprintf("unsorted input for %s: transaction %d dated %s follows %s",
		e.Category, e.Index, e.Date, e.Previous)
}

func (e *UnsortedInputError) Unwrap() error { return ErrUnsortedInput }

// CalendarGapError describes where a calendar stops being consecutive.
type CalendarGapError struct {
	Category CategoryID
	After    TimePoint
	Next     TimePoint
}

func (e *CalendarGapError) Error() string {
	return fmt.Sprintf("calendar gap for %s: %s is followed by %s", e.Category, e.After, e.Next)
}

func (e *CalendarGapError) Unwrap() error { return ErrCalendarGap }

// ConflictingOverrideError names the category and field that were both
// delta'd and set in one change set.
type ConflictingOverrideError struct {
	Category CategoryID
	Field    string
}

func (e *ConflictingOverrideError) Error() string {
	return fmt.Sprintf("conflicting override for %s.%s: both delta and set given", e.Category, e.Field)
}

func (e *ConflictingOverrideError) Unwrap() error { return ErrConflictingOverride }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrUnsortedInput) ||
		errors.Is(err, ErrCalendarGap) ||
		errors.Is(err, ErrConflictingOverride) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound) || errors.Is(err, ErrEnvelopeNotFound)
}

// IsConflict returns true for duplicate writes.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey)
}
