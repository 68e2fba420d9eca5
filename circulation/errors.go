/*
errors.go - Centralized error types for the circulation ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Ledger packages return these; the API layer maps them to HTTP statuses.

ERROR CATEGORIES:
  1. Validation   - malformed or out-of-range input (non-positive quantity,
                    return exceeding pending, returned above sent)
  2. Not found    - referenced trip/line item/entry/dispatch/shipment missing
  3. Stock        - a CD-side mutation would drive reconciled stock negative
  4. Consistency  - an audit-log reversal would break a line item's bounds

Every failing mutation rolls back its whole transaction, so a returned error
always means "nothing changed".

USAGE:
  if errors.Is(err, circulation.ErrInsufficientStock) {
      var stockErr *circulation.InsufficientStockError
      errors.As(err, &stockErr)
      fmt.Printf("only %d boxes available\n", stockErr.Available)
  }
*/
package circulation

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for input that breaks a business rule.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned when the CD does not hold enough boxes.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConsistency is returned when reversing a return event would push a
	// line item's returned count below zero.
	ErrConsistency = errors.New("consistency violation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes the offending field. Requested/Available are set
// when the rule is a quantity bound (e.g. return exceeding pending).
type ValidationError struct {
	Field     string
	Message   string
	Requested int
	Available int
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a ValidationError without quantity context.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // "trip", "line item", "return event", "dispatch", ...
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(kind string, id int64) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// InsufficientStockError reports a CD stock shortage.
type InsufficientStockError struct {
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Shortfall is how many boxes are missing.
func (e *InsufficientStockError) Shortfall() int { return e.Requested - e.Available }

// ConsistencyError reports a reversal the line item cannot absorb.
type ConsistencyError struct {
	EntryID    ReturnEventID
	LineItemID LineItemID
	Returned   int // current returned count on the line
	Reversal   int // quantity the entry tried to take back
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("cannot reverse return event %d: line item %d has %d returned, entry holds %d",
		e.EntryID, e.LineItemID, e.Returned, e.Reversal)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrConsistency)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
