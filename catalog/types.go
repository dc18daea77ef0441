/*
Package catalog provides the core coverage catalog engine.

PURPOSE:
  This package contains the domain taxonomy and algorithms for insurance
  coverage attributes: limits, deductibles, exclusions, and conditions.
  A Coverage lives in a tree rooted at a Product and owns child Limit and
  Deductible records plus inline Exclusion/Condition lists.

KEY CONCEPTS IN THIS FILE (types.go):
  - Limit/Deductible: strongly-typed child records with decimal amounts
  - Coverage: tree node carrying both representations of its attributes
  - Representation: which encoding (legacy strings vs child records) is live
  - Product/Coverage/Limit IDs: type-safe identifiers

TWO REPRESENTATIONS:
  Coverages historically stored limits and deductibles as arrays of display
  strings ("$100,000", "2%"). The migration replaces those with independently
  addressable child records. Until every coverage is migrated, both shapes
  coexist and the Representation of a coverage is resolved at read time.

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all amounts, never float64
  2. Type Safety: strong typing for IDs prevents mixing product/coverage IDs
  3. Derived display: DisplayValue is always rendered from Amount, never
     the source of truth
  4. Flat hierarchy: coverages reference parents by ID; traversal order is
     computed, never recursed through pointers

SEE ALSO:
  - parse.go: display string -> decimal conversion
  - validate.go: invariant enforcement
  - store.go: persistence interface
*/
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS - Type-safe IDs
// =============================================================================

type ProductID string
type CoverageID string
type LimitID string
type DeductibleID string

// =============================================================================
// LIMIT - Strongly-typed limit child record
// =============================================================================

// LimitType classifies how a limit caps exposure.
type LimitType string

const (
	LimitPerOccurrence LimitType = "per-occurrence"
	LimitAggregate     LimitType = "aggregate"
	LimitPerPerson     LimitType = "per-person"
	LimitPerLocation   LimitType = "per-location"
	LimitSublimit      LimitType = "sublimit"
	LimitCombined      LimitType = "combined"
	LimitSplit         LimitType = "split"
)

// LimitTypes lists every valid LimitType.
var LimitTypes = []LimitType{
	LimitPerOccurrence, LimitAggregate, LimitPerPerson,
	LimitPerLocation, LimitSublimit, LimitCombined, LimitSplit,
}

func (t LimitType) Valid() bool {
	for _, v := range LimitTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Limit is a child record keyed by (ProductID, CoverageID, ID).
//
// INVARIANTS (enforced by validate.go):
//   - Amount >= 0
//   - At most one Limit per coverage has IsDefault = true
//   - If ParentLimitID is set, Amount must not exceed the parent's Amount
type Limit struct {
	ID         LimitID
	ProductID  ProductID
	CoverageID CoverageID

	Type   LimitType
	Amount decimal.Decimal

	// DisplayValue is rendered from Amount/Type. Never the source of truth.
	DisplayValue string

	IsDefault bool

	// ParentLimitID makes this a sublimit of another limit on the same coverage.
	// Empty means top-level.
	ParentLimitID LimitID
}

// =============================================================================
// DEDUCTIBLE - Strongly-typed deductible child record
// =============================================================================

// DeductibleType classifies how a deductible is retained.
type DeductibleType string

const (
	DeductibleFlat          DeductibleType = "flat"
	DeductiblePercentage    DeductibleType = "percentage"
	DeductibleFranchise     DeductibleType = "franchise"
	DeductibleDisappearing  DeductibleType = "disappearing"
	DeductiblePerOccurrence DeductibleType = "per-occurrence"
	DeductibleAggregate     DeductibleType = "aggregate"
	DeductibleWaitingPeriod DeductibleType = "waiting-period"
)

// DeductibleTypes lists every valid DeductibleType.
var DeductibleTypes = []DeductibleType{
	DeductibleFlat, DeductiblePercentage, DeductibleFranchise,
	DeductibleDisappearing, DeductiblePerOccurrence, DeductibleAggregate,
	DeductibleWaitingPeriod,
}

func (t DeductibleType) Valid() bool {
	for _, v := range DeductibleTypes {
		if t == v {
			return true
		}
	}
	return false
}

// UsesPercentage reports whether this type stores its value in Percentage
// instead of Amount.
func (t DeductibleType) UsesPercentage() bool {
	return t == DeductiblePercentage
}

// Deductible is a child record keyed by (ProductID, CoverageID, ID).
//
// Exactly one of Amount/Percentage is set, determined by Type:
//   - percentage:                       Percentage (0-100, percent points)
//   - waiting-period:                   Amount, in days
//   - flat/franchise/disappearing/...:  Amount, in currency
//
// MinimumRetained/MaximumRetained are meaningful only for percentage
// deductibles: they bound the currency amount actually retained.
type Deductible struct {
	ID         DeductibleID
	ProductID  ProductID
	CoverageID CoverageID

	Type       DeductibleType
	Amount     *decimal.Decimal
	Percentage *decimal.Decimal

	MinimumRetained *decimal.Decimal
	MaximumRetained *decimal.Decimal

	// DisplayValue is rendered from Amount/Percentage. Never the source of truth.
	DisplayValue string

	IsDefault bool
}

// =============================================================================
// EXCLUSION / CONDITION - Inline value objects
// =============================================================================

// ExclusionType classifies a coverage exclusion.
type ExclusionType string

const (
	ExclusionWar            ExclusionType = "war"
	ExclusionNuclear        ExclusionType = "nuclear"
	ExclusionFlood          ExclusionType = "flood"
	ExclusionEarthMovement  ExclusionType = "earth-movement"
	ExclusionWearAndTear    ExclusionType = "wear-and-tear"
	ExclusionIntentionalAct ExclusionType = "intentional-act"
	ExclusionPollution      ExclusionType = "pollution"
	ExclusionOther          ExclusionType = "other"
)

// ConditionType classifies a coverage condition.
type ConditionType string

const (
	ConditionNotice         ConditionType = "notice"
	ConditionCooperation    ConditionType = "cooperation"
	ConditionSubrogation    ConditionType = "subrogation"
	ConditionOtherInsurance ConditionType = "other-insurance"
	ConditionInspection     ConditionType = "inspection"
	ConditionOther          ConditionType = "other"
)

// Exclusion carves risk out of a coverage. No independent identity; lives
// inline on the coverage, ordered.
type Exclusion struct {
	Type             ExclusionType
	Description      string
	SourceDocumentID string // optional reference to a form/document
}

// Condition attaches an obligation to a coverage. Same shape as Exclusion.
type Condition struct {
	Type             ConditionType
	Description      string
	SourceDocumentID string
}

// =============================================================================
// COVERAGE - Tree node owning limits and deductibles
// =============================================================================

// Coverage is a node in a tree rooted at a Product.
//
// It carries BOTH representations of its limits/deductibles:
//   - LegacyLimits/LegacyDeductibles: pre-migration display-string arrays
//   - child Limit/Deductible records in the store (not embedded here)
//
// MigratedAt is the migration idempotency marker: once set, the migration
// engine treats this coverage as terminal.
type Coverage struct {
	ProductID        ProductID
	ID               CoverageID
	ParentCoverageID CoverageID // empty for top-level coverages
	Name             string

	LegacyLimits      []string
	LegacyDeductibles []string
	MigratedAt        *time.Time

	Exclusions []Exclusion
	Conditions []Condition

	// Cross-coverage dependency edges. Validation checks one-hop
	// contradictions only (a target in both lists).
	RequiredCoverages     []CoverageID
	IncompatibleCoverages []CoverageID
}

// Product roots a coverage tree.
type Product struct {
	ID   ProductID
	Name string
	Line string // business line, e.g. "commercial-property"
}

// =============================================================================
// REPRESENTATION - Which encoding is live for a coverage
// =============================================================================

// Representation is the tagged state of a coverage's attribute encoding,
// resolved once at read time by the compat layer rather than scattered
// if-checks in consumers.
type Representation string

const (
	// ReprLegacy: legacy arrays populated, no child records.
	ReprLegacy Representation = "legacy"
	// ReprDual: both populated. Written by the dual-write path during the
	// transition window.
	ReprDual Representation = "dual"
	// ReprMigrated: child records authoritative; legacy arrays ignored.
	ReprMigrated Representation = "migrated"
)

// ResolveRepresentation computes the representation of a coverage given its
// child record counts. Child records or a MigratedAt marker win over legacy
// arrays.
func ResolveRepresentation(c Coverage, limitCount, deductibleCount int) Representation {
	hasChildren := limitCount > 0 || deductibleCount > 0 || c.MigratedAt != nil
	hasLegacy := len(c.LegacyLimits) > 0 || len(c.LegacyDeductibles) > 0

	switch {
	case hasChildren && hasLegacy:
		return ReprDual
	case hasChildren:
		return ReprMigrated
	default:
		return ReprLegacy
	}
}
