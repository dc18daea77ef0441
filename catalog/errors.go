/*
errors.go - Centralized error types for the catalog engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Higher layers (compat, migration) wrap these with additional context.

ERROR CATEGORIES:
  1. Not-found errors  - missing products/coverages/records
  2. Store errors      - persistence failures, transient availability
  3. Validation errors - business rule violations (see validate.go)

TRANSIENT VS PERMANENT:
  ErrStoreUnavailable marks a failure worth retrying (network blip,
  database busy). The migration engine retries these with bounded
  exponential backoff before declaring a coverage failed. Everything
  else is treated as permanent.

USAGE:
  if errors.Is(err, catalog.ErrStoreUnavailable) {
      // retry with backoff
  }

SEE ALSO:
  - validate.go: ValidationError
  - migration/retry.go: backoff over ErrStoreUnavailable
*/
package catalog

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrProductNotFound is returned when a referenced product doesn't exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrCoverageNotFound is returned when a referenced coverage doesn't exist.
	ErrCoverageNotFound = errors.New("coverage not found")

	// ErrLimitNotFound is returned when a referenced limit doesn't exist.
	ErrLimitNotFound = errors.New("limit not found")

	// ErrDeductibleNotFound is returned when a referenced deductible doesn't exist.
	ErrDeductibleNotFound = errors.New("deductible not found")

	// ErrStoreUnavailable marks a transient store failure. Callers may retry.
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrBatchConflict is returned when an atomic batch loses a write race
	// and should be re-read and retried by the caller.
	ErrBatchConflict = errors.New("batch conflicts with concurrent write")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrBatchConflict)
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StoreError wraps a low-level persistence failure with the path it hit.
type StoreError struct {
	Op         string // e.g. "apply", "list-limits"
	ProductID  ProductID
	CoverageID CoverageID
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed for %s/%s: %v", e.Op, e.ProductID, e.CoverageID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
