/*
Package compat implements the compatibility accessors for coverage
attributes.

PURPOSE:
  Every component outside the migration tooling reads and writes limits
  and deductibles through this package - never through the record store
  directly and never by touching the legacy string arrays. The accessors
  hide which representation (legacy arrays vs child records) a coverage
  currently has.

DUAL-READ:
  ReadLimits/ReadDeductibles return child records when they exist
  (authoritative). When none exist yet, the legacy array is parsed on the
  fly into synthetic, non-persisted values. The fallback is pure and
  stateless: repeated reads of an unmigrated coverage perform zero writes.

DUAL-WRITE:
  During the transition window (Config.DualWrite), every write also
  refreshes the legacy array by rendering ALL current child records back
  to display strings, in the same atomic batch. Components still reading
  the legacy array therefore always see current data. The flag is
  threaded in at construction - there is no ambient global strategy.

VALIDATION:
  Writes run the validation rules first and are rejected on any error,
  leaving the entity unchanged. The failing rules are returned to the
  caller, never dropped.

CONCURRENCY:
  Safe for concurrent use. Reads are stateless; writes are scoped to a
  single coverage's atomic batch, so different coverages never contend.
  Same-coverage writers are serialized by the store's batch primitive.

SEE ALSO:
  - catalog/validate.go: the rules writes enforce
  - migration/: converges coverages toward the child-record representation
*/
package compat

import (
	"context"

	"github.com/warp/catalog-engine/catalog"
)

// =============================================================================
// ACCESSORS
// =============================================================================

// Config carries the representation-strategy flags, threaded in at
// construction instead of living in ambient global state.
type Config struct {
	// DualWrite keeps the legacy arrays refreshed on every write.
	// Disabled once all dual-read consumers are retired.
	DualWrite bool
}

// Accessors is the only supported entry point for coverage-attribute
// reads and writes outside the migration tooling.
type Accessors struct {
	store catalog.RecordStore
	cfg   Config
}

// New creates accessors over the given store.
func New(store catalog.RecordStore, cfg Config) *Accessors {
	return &Accessors{store: store, cfg: cfg}
}

// Representation resolves which encoding is live for a coverage.
func (a *Accessors) Representation(ctx context.Context, productID catalog.ProductID, coverageID catalog.CoverageID) (catalog.Representation, error) {
	c, err := a.store.GetCoverage(ctx, productID, coverageID)
	if err != nil {
		return "", err
	}
	limits, err := a.store.ListLimits(ctx, productID, coverageID)
	if err != nil {
		return "", err
	}
	deductibles, err := a.store.ListDeductibles(ctx, productID, coverageID)
	if err != nil {
		return "", err
	}
	return catalog.ResolveRepresentation(c, len(limits), len(deductibles)), nil
}

// Validate exposes the validation engine for callers that want to check
// an entity without writing it. Siblings and sublimit parents are loaded
// from the coverage's current state.
func (a *Accessors) ValidateLimit(ctx context.Context, l catalog.Limit) ([]catalog.ValidationError, error) {
	siblings, err := a.store.ListLimits(ctx, l.ProductID, l.CoverageID)
	if err != nil {
		return nil, err
	}
	return catalog.ValidateLimit(l, siblings, findParent(l, siblings)), nil
}

func (a *Accessors) ValidateDeductible(ctx context.Context, d catalog.Deductible) ([]catalog.ValidationError, error) {
	siblings, err := a.store.ListDeductibles(ctx, d.ProductID, d.CoverageID)
	if err != nil {
		return nil, err
	}
	return catalog.ValidateDeductible(d, siblings), nil
}

// findParent locates a sublimit's parent among the coverage's limits.
// Nil when the limit is top-level or the parent is absent.
func findParent(l catalog.Limit, siblings []catalog.Limit) *catalog.Limit {
	if l.ParentLimitID == "" {
		return nil
	}
	for i := range siblings {
		if siblings[i].ID == l.ParentLimitID {
			return &siblings[i]
		}
	}
	return nil
}
