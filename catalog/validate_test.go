package catalog_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/catalog-engine/catalog"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func ruleIDs(errs []catalog.ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Rule
	}
	return out
}

// =============================================================================
// LIMIT VALIDATION TESTS
// =============================================================================

func TestValidateLimit_Valid(t *testing.T) {
	l := catalog.Limit{
		ID: "lim-1", Type: catalog.LimitPerOccurrence,
		Amount: dec("100000"), IsDefault: true,
	}
	assert.Empty(t, catalog.ValidateLimit(l, nil, nil))
}

func TestValidateLimit_UnknownType(t *testing.T) {
	l := catalog.Limit{ID: "lim-1", Type: "bogus", Amount: dec("100")}
	errs := catalog.ValidateLimit(l, nil, nil)
	assert.Contains(t, ruleIDs(errs), "unknown_limit_type")
}

func TestValidateLimit_NegativeAmount(t *testing.T) {
	l := catalog.Limit{ID: "lim-1", Type: catalog.LimitAggregate, Amount: dec("-1")}
	errs := catalog.ValidateLimit(l, nil, nil)
	assert.Contains(t, ruleIDs(errs), "negative_amount")
}

func TestValidateLimit_SublimitExceedsParent(t *testing.T) {
	// GIVEN: A parent limit of $100,000
	// WHEN: A sublimit of $150,000 points at it
	// THEN: Rejected - a sublimit can never exceed its parent
	parent := catalog.Limit{ID: "lim-parent", Type: catalog.LimitPerOccurrence, Amount: dec("100000")}
	sub := catalog.Limit{
		ID: "lim-sub", Type: catalog.LimitSublimit,
		Amount: dec("150000"), ParentLimitID: "lim-parent",
	}

	errs := catalog.ValidateLimit(sub, []catalog.Limit{parent}, &parent)
	assert.Contains(t, ruleIDs(errs), "sublimit_exceeds_parent")

	// At or below the parent is fine.
	sub.Amount = dec("100000")
	assert.Empty(t, catalog.ValidateLimit(sub, []catalog.Limit{parent}, &parent))
}

func TestValidateLimit_ParentMissing(t *testing.T) {
	sub := catalog.Limit{
		ID: "lim-sub", Type: catalog.LimitSublimit,
		Amount: dec("50000"), ParentLimitID: "lim-gone",
	}
	errs := catalog.ValidateLimit(sub, nil, nil)
	assert.Contains(t, ruleIDs(errs), "parent_limit_missing")
}

func TestValidateLimit_DuplicateDefault(t *testing.T) {
	existing := catalog.Limit{ID: "lim-1", Type: catalog.LimitPerOccurrence, Amount: dec("1000"), IsDefault: true}
	incoming := catalog.Limit{ID: "lim-2", Type: catalog.LimitPerOccurrence, Amount: dec("2000"), IsDefault: true}

	errs := catalog.ValidateLimit(incoming, []catalog.Limit{existing}, nil)
	assert.Contains(t, ruleIDs(errs), "duplicate_default")

	// Updating the existing default in place is not a duplicate.
	existing.Amount = dec("1500")
	assert.Empty(t, catalog.ValidateLimit(existing, []catalog.Limit{existing}, nil))
}

// =============================================================================
// DEDUCTIBLE VALIDATION TESTS
// =============================================================================

func TestValidateDeductible_FlatRequiresAmount(t *testing.T) {
	d := catalog.Deductible{ID: "ded-1", Type: catalog.DeductibleFlat}
	errs := catalog.ValidateDeductible(d, nil)
	assert.Contains(t, ruleIDs(errs), "amount_required")

	d.Amount = decPtr("1000")
	assert.Empty(t, catalog.ValidateDeductible(d, nil))
}

func TestValidateDeductible_FlatForbidsPercentage(t *testing.T) {
	d := catalog.Deductible{
		ID: "ded-1", Type: catalog.DeductibleFlat,
		Amount: decPtr("1000"), Percentage: decPtr("2"),
	}
	errs := catalog.ValidateDeductible(d, nil)
	assert.Contains(t, ruleIDs(errs), "percentage_forbidden")
}

func TestValidateDeductible_PercentageRules(t *testing.T) {
	// Percentage type with no percentage set
	d := catalog.Deductible{ID: "ded-1", Type: catalog.DeductiblePercentage}
	assert.Contains(t, ruleIDs(catalog.ValidateDeductible(d, nil)), "percentage_required")

	// Out of range (percent points, valid domain is [0,100])
	d.Percentage = decPtr("150")
	assert.Contains(t, ruleIDs(catalog.ValidateDeductible(d, nil)), "percentage_out_of_range")

	d.Percentage = decPtr("-1")
	assert.Contains(t, ruleIDs(catalog.ValidateDeductible(d, nil)), "percentage_out_of_range")

	// In range with retained bounds in order
	d.Percentage = decPtr("2")
	d.MinimumRetained = decPtr("1000")
	d.MaximumRetained = decPtr("50000")
	assert.Empty(t, catalog.ValidateDeductible(d, nil))

	// Inverted retained bounds
	d.MinimumRetained = decPtr("60000")
	assert.Contains(t, ruleIDs(catalog.ValidateDeductible(d, nil)), "retained_bounds_inverted")
}

func TestValidateDeductible_PercentageForbidsAmount(t *testing.T) {
	d := catalog.Deductible{
		ID: "ded-1", Type: catalog.DeductiblePercentage,
		Percentage: decPtr("2"), Amount: decPtr("1000"),
	}
	assert.Contains(t, ruleIDs(catalog.ValidateDeductible(d, nil)), "amount_forbidden")
}

func TestValidateDeductible_RetainedBoundsOnlyForPercentage(t *testing.T) {
	d := catalog.Deductible{
		ID: "ded-1", Type: catalog.DeductibleFlat,
		Amount: decPtr("1000"), MinimumRetained: decPtr("100"),
	}
	assert.Contains(t, ruleIDs(catalog.ValidateDeductible(d, nil)), "retained_bounds_forbidden")
}

func TestValidateDeductible_UnknownTypeShortCircuits(t *testing.T) {
	d := catalog.Deductible{ID: "ded-1", Type: "bogus"}
	errs := catalog.ValidateDeductible(d, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, "unknown_deductible_type", errs[0].Rule)
}

func TestValidateDeductible_DuplicateDefault(t *testing.T) {
	existing := catalog.Deductible{ID: "ded-1", Type: catalog.DeductibleFlat, Amount: decPtr("500"), IsDefault: true}
	incoming := catalog.Deductible{ID: "ded-2", Type: catalog.DeductibleFlat, Amount: decPtr("1000"), IsDefault: true}
	assert.Contains(t, ruleIDs(catalog.ValidateDeductible(incoming, []catalog.Deductible{existing})), "duplicate_default")
}

// =============================================================================
// COVERAGE VALIDATION TESTS
// =============================================================================

func TestValidateCoverage_RequiredAndIncompatible(t *testing.T) {
	c := catalog.Coverage{
		ProductID: "prod-1", ID: "cov-1", Name: "Flood",
		RequiredCoverages:     []catalog.CoverageID{"cov-base"},
		IncompatibleCoverages: []catalog.CoverageID{"cov-base"},
	}
	errs := catalog.ValidateCoverage(c)
	require.Len(t, errs, 1)
	assert.Equal(t, "required_and_incompatible", errs[0].Rule)

	c.IncompatibleCoverages = []catalog.CoverageID{"cov-other"}
	assert.Empty(t, catalog.ValidateCoverage(c))
}
