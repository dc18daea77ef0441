/*
read.go - Dual-read with legacy fallback

PURPOSE:
  Reads a coverage's limits/deductibles regardless of representation.
  Child records win; for unmigrated coverages legacy display strings are
  parsed into synthetic values on the fly. Once MigratedAt is set the
  legacy array is retired even when zero records survived migration.

SYNTHETIC VALUES:
  Fallback records carry an empty ID (they are not persisted), the first
  entry is marked IsDefault, limit types default to per-occurrence and
  deductible types to flat (percent entries route to the percentage
  deductible type). Entries that fail to parse are skipped - a read can
  not fail on dirty legacy data, it just returns what it can interpret.

PURITY:
  The fallback performs no writes. Reading a not-yet-migrated coverage a
  thousand times leaves the store byte-identical.
*/
package compat

import (
	"context"

	"github.com/warp/catalog-engine/catalog"
)

// ReadLimits returns the coverage's limits in the new representation.
// Child records are authoritative; for unmigrated coverages a non-empty
// legacy array is the fallback; otherwise empty. A migrated coverage
// never falls back, even when it holds zero records.
func (a *Accessors) ReadLimits(ctx context.Context, productID catalog.ProductID, coverageID catalog.CoverageID) ([]catalog.Limit, error) {
	limits, err := a.store.ListLimits(ctx, productID, coverageID)
	if err != nil {
		return nil, err
	}
	if len(limits) > 0 {
		return limits, nil
	}

	c, err := a.store.GetCoverage(ctx, productID, coverageID)
	if err != nil {
		return nil, err
	}
	if c.MigratedAt != nil {
		// Zero records is a valid migrated state (every legacy entry may
		// have been rejected). The marker retires the legacy array for
		// reads, so nothing gets resurrected from it.
		return limits, nil
	}
	return SyntheticLimits(c), nil
}

// ReadDeductibles is the deductible analogue of ReadLimits.
func (a *Accessors) ReadDeductibles(ctx context.Context, productID catalog.ProductID, coverageID catalog.CoverageID) ([]catalog.Deductible, error) {
	deductibles, err := a.store.ListDeductibles(ctx, productID, coverageID)
	if err != nil {
		return nil, err
	}
	if len(deductibles) > 0 {
		return deductibles, nil
	}

	c, err := a.store.GetCoverage(ctx, productID, coverageID)
	if err != nil {
		return nil, err
	}
	if c.MigratedAt != nil {
		return deductibles, nil
	}
	return SyntheticDeductibles(c), nil
}

// =============================================================================
// LEGACY PARSING - Shared with the migration engine
// =============================================================================

// SyntheticLimits parses a coverage's legacy limit strings into
// non-persisted Limit values. Unparseable entries are skipped.
func SyntheticLimits(c catalog.Coverage) []catalog.Limit {
	result := make([]catalog.Limit, 0, len(c.LegacyLimits))
	for i, raw := range c.LegacyLimits {
		v, ok := catalog.ParseDisplay(raw)
		if !ok || v.Percent {
			// Limits are currency amounts; percent entries don't apply.
			continue
		}
		result = append(result, catalog.Limit{
			ProductID:    c.ProductID,
			CoverageID:   c.ID,
			Type:         catalog.LimitPerOccurrence,
			Amount:       v.Amount,
			DisplayValue: catalog.RenderCurrency(v.Amount),
			IsDefault:    i == 0,
		})
	}
	return result
}

// SyntheticDeductibles parses a coverage's legacy deductible strings into
// non-persisted Deductible values.
func SyntheticDeductibles(c catalog.Coverage) []catalog.Deductible {
	result := make([]catalog.Deductible, 0, len(c.LegacyDeductibles))
	for i, raw := range c.LegacyDeductibles {
		v, ok := catalog.ParseDisplay(raw)
		if !ok {
			continue
		}
		d := catalog.Deductible{
			ProductID:  c.ProductID,
			CoverageID: c.ID,
			IsDefault:  i == 0,
		}
		amount := v.Amount
		switch {
		case v.Percent:
			d.Type = catalog.DeductiblePercentage
			d.Percentage = &amount
			d.DisplayValue = catalog.RenderPercent(amount)
		case v.Days:
			d.Type = catalog.DeductibleWaitingPeriod
			d.Amount = &amount
			d.DisplayValue = catalog.RenderDays(amount)
		default:
			d.Type = catalog.DeductibleFlat
			d.Amount = &amount
			d.DisplayValue = catalog.RenderCurrency(amount)
		}
		result = append(result, d)
	}
	return result
}
