/*
validate.go - Domain invariant enforcement

PURPOSE:
  Validates limits, deductibles, and coverages before they are persisted,
  independent of which representation they came from. The compat write path
  rejects on any error; the migration engine downgrades errors on
  synthesized records to warnings (skip that record, keep the coverage).

RULES:
  Limit:
    - Type is a known LimitType
    - Amount >= 0
    - If ParentLimitID is set, the parent exists and Amount <= parent.Amount
    - At most one default limit per coverage
  Deductible:
    - Type is a known DeductibleType
    - Exactly one of Amount/Percentage is set, per the type's rule
    - Percentage within [0,100]
    - Retained bounds only on percentage deductibles, with min <= max
    - At most one default deductible per coverage
  Coverage:
    - RequiredCoverages and IncompatibleCoverages must not both name the
      same target (one-hop contradiction only; full cycle detection across
      the dependency graph is deliberately not attempted here)

RETURN SHAPE:
  validate(entity) -> []ValidationError. Empty means valid. Every error
  names the failing rule so callers can surface it precisely.

SEE ALSO:
  - compat/write.go: rejects writes on any error
  - migration/engine.go: warning-equivalent handling
*/
package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VALIDATION ERROR
// =============================================================================

// ValidationError describes one violated rule on one entity.
type ValidationError struct {
	Entity  string // "limit", "deductible", "coverage"
	Field   string
	Rule    string // stable machine-readable rule ID, e.g. "sublimit_exceeds_parent"
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s.%s %s: %s", e.Entity, e.Field, e.Rule, e.Message)
}

var percentMax = decimal.NewFromInt(100)

// =============================================================================
// LIMIT VALIDATION
// =============================================================================

// ValidateLimit checks a limit against its coverage siblings and (for
// sublimits) its parent. siblings should be the coverage's current limits,
// excluding l itself when l is an update.
func ValidateLimit(l Limit, siblings []Limit, parent *Limit) []ValidationError {
	var errs []ValidationError

	if !l.Type.Valid() {
		errs = append(errs, ValidationError{
			Entity: "limit", Field: "type", Rule: "unknown_limit_type",
			Message: fmt.Sprintf("unknown limit type %q", l.Type),
		})
	}

	if l.Amount.IsNegative() {
		errs = append(errs, ValidationError{
			Entity: "limit", Field: "amount", Rule: "negative_amount",
			Message: fmt.Sprintf("amount %s is negative", l.Amount),
		})
	}

	if l.ParentLimitID != "" {
		if parent == nil {
			errs = append(errs, ValidationError{
				Entity: "limit", Field: "parentLimitId", Rule: "parent_limit_missing",
				Message: fmt.Sprintf("parent limit %s not found", l.ParentLimitID),
			})
		} else if l.Amount.GreaterThan(parent.Amount) {
			errs = append(errs, ValidationError{
				Entity: "limit", Field: "amount", Rule: "sublimit_exceeds_parent",
				Message: fmt.Sprintf("sublimit amount %s exceeds parent amount %s", l.Amount, parent.Amount),
			})
		}
	}

	if l.IsDefault {
		for _, s := range siblings {
			if s.ID != l.ID && s.IsDefault {
				errs = append(errs, ValidationError{
					Entity: "limit", Field: "isDefault", Rule: "duplicate_default",
					Message: fmt.Sprintf("coverage already has default limit %s", s.ID),
				})
				break
			}
		}
	}

	return errs
}

// =============================================================================
// DEDUCTIBLE VALIDATION
// =============================================================================

// ValidateDeductible checks a deductible against its coverage siblings.
func ValidateDeductible(d Deductible, siblings []Deductible) []ValidationError {
	var errs []ValidationError

	if !d.Type.Valid() {
		errs = append(errs, ValidationError{
			Entity: "deductible", Field: "type", Rule: "unknown_deductible_type",
			Message: fmt.Sprintf("unknown deductible type %q", d.Type),
		})
		return errs
	}

	if d.Type.UsesPercentage() {
		if d.Percentage == nil {
			errs = append(errs, ValidationError{
				Entity: "deductible", Field: "percentage", Rule: "percentage_required",
				Message: fmt.Sprintf("type %s requires percentage", d.Type),
			})
		} else if d.Percentage.IsNegative() || d.Percentage.GreaterThan(percentMax) {
			errs = append(errs, ValidationError{
				Entity: "deductible", Field: "percentage", Rule: "percentage_out_of_range",
				Message: fmt.Sprintf("percentage %s outside [0,100]", d.Percentage),
			})
		}
		if d.Amount != nil {
			errs = append(errs, ValidationError{
				Entity: "deductible", Field: "amount", Rule: "amount_forbidden",
				Message: fmt.Sprintf("type %s must not set amount", d.Type),
			})
		}
		if d.MinimumRetained != nil && d.MaximumRetained != nil &&
			d.MinimumRetained.GreaterThan(*d.MaximumRetained) {
			errs = append(errs, ValidationError{
				Entity: "deductible", Field: "minimumRetained", Rule: "retained_bounds_inverted",
				Message: fmt.Sprintf("minimum retained %s exceeds maximum %s", d.MinimumRetained, d.MaximumRetained),
			})
		}
	} else {
		if d.Amount == nil {
			errs = append(errs, ValidationError{
				Entity: "deductible", Field: "amount", Rule: "amount_required",
				Message: fmt.Sprintf("type %s requires amount", d.Type),
			})
		} else if d.Amount.IsNegative() {
			errs = append(errs, ValidationError{
				Entity: "deductible", Field: "amount", Rule: "negative_amount",
				Message: fmt.Sprintf("amount %s is negative", d.Amount),
			})
		}
		if d.Percentage != nil {
			errs = append(errs, ValidationError{
				Entity: "deductible", Field: "percentage", Rule: "percentage_forbidden",
				Message: fmt.Sprintf("type %s must not set percentage", d.Type),
			})
		}
		if d.MinimumRetained != nil || d.MaximumRetained != nil {
			errs = append(errs, ValidationError{
				Entity: "deductible", Field: "minimumRetained", Rule: "retained_bounds_forbidden",
				Message: "retained bounds are meaningful only for percentage deductibles",
			})
		}
	}

	if d.IsDefault {
		for _, s := range siblings {
			if s.ID != d.ID && s.IsDefault {
				errs = append(errs, ValidationError{
					Entity: "deductible", Field: "isDefault", Rule: "duplicate_default",
					Message: fmt.Sprintf("coverage already has default deductible %s", s.ID),
				})
				break
			}
		}
	}

	return errs
}

// =============================================================================
// COVERAGE VALIDATION
// =============================================================================

// ValidateCoverage checks cross-coverage dependency edges for one-hop
// contradictions: a coverage must not both require and exclude the same
// target. Full cycle detection across the whole dependency graph is an
// open product question and is not attempted.
func ValidateCoverage(c Coverage) []ValidationError {
	var errs []ValidationError

	incompatible := make(map[CoverageID]bool, len(c.IncompatibleCoverages))
	for _, id := range c.IncompatibleCoverages {
		incompatible[id] = true
	}
	for _, id := range c.RequiredCoverages {
		if incompatible[id] {
			errs = append(errs, ValidationError{
				Entity: "coverage", Field: "requiredCoverages", Rule: "required_and_incompatible",
				Message: fmt.Sprintf("coverage %s is both required and incompatible", id),
			})
		}
	}

	return errs
}
