/*
write.go - Validated writes with dual-write refresh

PURPOSE:
  Persists limit/deductible child records, enforcing the validation rules
  first and refreshing the legacy arrays in the same atomic batch while
  dual-write is on.

WRITE SEQUENCE:
  1. Load the coverage's current child records
  2. Validate the incoming entity against siblings (and sublimit parent)
  3. Reject on any violation - the entity is unchanged, the violations
     are returned to the caller
  4. Derive DisplayValue from the typed value (caller input is ignored;
     display is never the source of truth)
  5. Apply one batch: the record put, plus the rendered legacy array when
     dual-write is enabled

ATOMICITY:
  The child-record put and the legacy-array refresh land in one store
  batch. A concurrent reader of either representation sees the old state
  or the new state, never a mix.
*/
package compat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/warp/catalog-engine/catalog"
)

// =============================================================================
// ERRORS
// =============================================================================

// RejectedError is returned when a write fails validation. The entity
// was not persisted.
type RejectedError struct {
	Violations []catalog.ValidationError
}

func (e *RejectedError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("write rejected: %s", e.Violations[0])
	}
	return fmt.Sprintf("write rejected: %d rule violations (first: %s)", len(e.Violations), e.Violations[0])
}

// =============================================================================
// LIMIT WRITES
// =============================================================================

// WriteLimit validates and persists a limit record. A limit with an empty
// ID is treated as a create and assigned one.
func (a *Accessors) WriteLimit(ctx context.Context, l catalog.Limit) error {
	siblings, err := a.store.ListLimits(ctx, l.ProductID, l.CoverageID)
	if err != nil {
		return err
	}

	if l.ID == "" {
		l.ID = catalog.LimitID(uuid.NewString())
	}
	if violations := catalog.ValidateLimit(l, siblings, findParent(l, siblings)); len(violations) > 0 {
		return &RejectedError{Violations: violations}
	}
	l.DisplayValue = catalog.RenderLimit(l)

	batch := catalog.CoverageBatch{
		ProductID:  l.ProductID,
		CoverageID: l.CoverageID,
		PutLimits:  []catalog.Limit{l},
	}
	if a.cfg.DualWrite {
		rendered := renderLimitArray(merge(siblings, l, func(x catalog.Limit) catalog.LimitID { return x.ID }))
		batch.SetLegacyLimits = &rendered
	}
	return a.store.Apply(ctx, batch)
}

// DeleteLimit removes a limit record, refreshing the legacy array under
// dual-write like any other write.
func (a *Accessors) DeleteLimit(ctx context.Context, productID catalog.ProductID, coverageID catalog.CoverageID, id catalog.LimitID) error {
	batch := catalog.CoverageBatch{
		ProductID:    productID,
		CoverageID:   coverageID,
		DeleteLimits: []catalog.LimitID{id},
	}
	if a.cfg.DualWrite {
		siblings, err := a.store.ListLimits(ctx, productID, coverageID)
		if err != nil {
			return err
		}
		rendered := renderLimitArray(without(siblings, id, func(x catalog.Limit) catalog.LimitID { return x.ID }))
		batch.SetLegacyLimits = &rendered
	}
	return a.store.Apply(ctx, batch)
}

// =============================================================================
// DEDUCTIBLE WRITES
// =============================================================================

// WriteDeductible validates and persists a deductible record.
func (a *Accessors) WriteDeductible(ctx context.Context, d catalog.Deductible) error {
	siblings, err := a.store.ListDeductibles(ctx, d.ProductID, d.CoverageID)
	if err != nil {
		return err
	}

	if d.ID == "" {
		d.ID = catalog.DeductibleID(uuid.NewString())
	}
	if violations := catalog.ValidateDeductible(d, siblings); len(violations) > 0 {
		return &RejectedError{Violations: violations}
	}
	d.DisplayValue = catalog.RenderDeductible(d)

	batch := catalog.CoverageBatch{
		ProductID:      d.ProductID,
		CoverageID:     d.CoverageID,
		PutDeductibles: []catalog.Deductible{d},
	}
	if a.cfg.DualWrite {
		rendered := renderDeductibleArray(merge(siblings, d, func(x catalog.Deductible) catalog.DeductibleID { return x.ID }))
		batch.SetLegacyDeductibles = &rendered
	}
	return a.store.Apply(ctx, batch)
}

// DeleteDeductible removes a deductible record.
func (a *Accessors) DeleteDeductible(ctx context.Context, productID catalog.ProductID, coverageID catalog.CoverageID, id catalog.DeductibleID) error {
	batch := catalog.CoverageBatch{
		ProductID:         productID,
		CoverageID:        coverageID,
		DeleteDeductibles: []catalog.DeductibleID{id},
	}
	if a.cfg.DualWrite {
		siblings, err := a.store.ListDeductibles(ctx, productID, coverageID)
		if err != nil {
			return err
		}
		rendered := renderDeductibleArray(without(siblings, id, func(x catalog.Deductible) catalog.DeductibleID { return x.ID }))
		batch.SetLegacyDeductibles = &rendered
	}
	return a.store.Apply(ctx, batch)
}

// =============================================================================
// DUAL-WRITE RENDERING
// =============================================================================

func renderLimitArray(limits []catalog.Limit) []string {
	out := make([]string, 0, len(limits))
	for _, l := range limits {
		out = append(out, catalog.RenderLimit(l))
	}
	return out
}

func renderDeductibleArray(deductibles []catalog.Deductible) []string {
	out := make([]string, 0, len(deductibles))
	for _, d := range deductibles {
		out = append(out, catalog.RenderDeductible(d))
	}
	return out
}

// merge replaces (or appends) item in items by key, preserving order.
func merge[T any, K comparable](items []T, item T, keyOf func(T) K) []T {
	out := make([]T, 0, len(items)+1)
	replaced := false
	for _, existing := range items {
		if keyOf(existing) == keyOf(item) {
			out = append(out, item)
			replaced = true
		} else {
			out = append(out, existing)
		}
	}
	if !replaced {
		out = append(out, item)
	}
	return out
}

// without drops the item with the given key, preserving order.
func without[T any, K comparable](items []T, key K, keyOf func(T) K) []T {
	out := make([]T, 0, len(items))
	for _, existing := range items {
		if keyOf(existing) != key {
			out = append(out, existing)
		}
	}
	return out
}
