/*
rollback.go - Deletes migrated child records, restoring the legacy state

PURPOSE:
  The inverse of the migration engine. For a migrated coverage it deletes
  every child Limit/Deductible record and clears the MigratedAt marker in
  one atomic batch. The legacy arrays are NEVER touched - they were only
  ever refreshed by dual-write, never deleted, so rollback is always safe
  during the dual-write window and restores the pre-migration state
  exactly.

SAFETY INTERLOCK:
  A live (non-dry-run) rollback refuses to run without the explicit
  Confirm flag. Dry-run reports what would be deleted without the flag.

SCOPE:
  Rollback targets one coverage, or every migrated coverage of a product
  when no coverage ID is given. Product-wide rollback walks children
  before parents - the reverse of migration order - so a re-migration
  never sees a half-rolled-back subtree.
*/
package migration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/catalog-engine/catalog"
)

// ErrConfirmRequired is returned when a live rollback is attempted
// without the explicit confirmation flag.
var ErrConfirmRequired = errors.New("live rollback requires explicit confirmation")

// RollbackOptions configure a rollback invocation.
type RollbackOptions struct {
	DryRun bool
	// Confirm must be set for a live rollback to proceed.
	Confirm bool
}

// Rollback deletes the migrated child records of one coverage. The
// legacy arrays are left untouched.
func (e *Engine) Rollback(ctx context.Context, productID catalog.ProductID, coverageID catalog.CoverageID, opts RollbackOptions) (*RollbackReport, error) {
	if !opts.DryRun && !opts.Confirm {
		return nil, ErrConfirmRequired
	}

	report := &RollbackReport{DryRun: opts.DryRun, StartedAt: e.now()}
	defer func() { report.FinishedAt = e.now() }()

	c, err := e.store.GetCoverage(ctx, productID, coverageID)
	if err != nil {
		return report, err
	}
	if err := e.rollbackCoverage(ctx, c, opts, report); err != nil {
		return report, err
	}
	return report, nil
}

// RollbackProduct rolls back every migrated coverage of a product,
// children before parents.
func (e *Engine) RollbackProduct(ctx context.Context, productID catalog.ProductID, opts RollbackOptions) (*RollbackReport, error) {
	if !opts.DryRun && !opts.Confirm {
		return nil, ErrConfirmRequired
	}

	report := &RollbackReport{DryRun: opts.DryRun, StartedAt: e.now()}
	defer func() { report.FinishedAt = e.now() }()

	coverages, err := e.store.ListCoverages(ctx, productID)
	if err != nil {
		return report, err
	}

	levels, cyclic := coverageLevels(coverages)
	// Reverse of migration order: deepest level first.
	for i := len(levels) - 1; i >= 0; i-- {
		for _, c := range levels[i] {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := e.rollbackCoverage(ctx, c, opts, report); err != nil {
				return report, fmt.Errorf("coverage %s: %w", c.ID, err)
			}
		}
	}
	for _, c := range cyclic {
		if err := e.rollbackCoverage(ctx, c, opts, report); err != nil {
			return report, fmt.Errorf("coverage %s: %w", c.ID, err)
		}
	}
	return report, nil
}

func (e *Engine) rollbackCoverage(ctx context.Context, c catalog.Coverage, opts RollbackOptions, report *RollbackReport) error {
	if c.MigratedAt == nil {
		report.CoveragesSkipped++
		report.Outcomes = append(report.Outcomes, RollbackOutcome{
			ProductID:  c.ProductID,
			CoverageID: c.ID,
			RolledBack: false,
		})
		return nil
	}

	var limits []catalog.Limit
	err := withRetry(ctx, e.opts.MaxAttempts, e.opts.RetryBaseDelay, e.opts.RetryMaxDelay, func() error {
		var err error
		limits, err = e.store.ListLimits(ctx, c.ProductID, c.ID)
		return err
	})
	if err != nil {
		return err
	}
	var deductibles []catalog.Deductible
	err = withRetry(ctx, e.opts.MaxAttempts, e.opts.RetryBaseDelay, e.opts.RetryMaxDelay, func() error {
		var err error
		deductibles, err = e.store.ListDeductibles(ctx, c.ProductID, c.ID)
		return err
	})
	if err != nil {
		return err
	}

	outcome := RollbackOutcome{
		ProductID:          c.ProductID,
		CoverageID:         c.ID,
		RolledBack:         true,
		LimitsDeleted:      len(limits),
		DeductiblesDeleted: len(deductibles),
	}

	if !opts.DryRun {
		batch := catalog.CoverageBatch{
			ProductID:       c.ProductID,
			CoverageID:      c.ID,
			ClearMigratedAt: true,
		}
		for _, l := range limits {
			batch.DeleteLimits = append(batch.DeleteLimits, l.ID)
		}
		for _, d := range deductibles {
			batch.DeleteDeductibles = append(batch.DeleteDeductibles, d.ID)
		}

		batchCtx := context.WithoutCancel(ctx)
		err = withRetry(ctx, e.opts.MaxAttempts, e.opts.RetryBaseDelay, e.opts.RetryMaxDelay, func() error {
			return e.store.Apply(batchCtx, batch)
		})
		if err != nil {
			return err
		}
	}

	report.CoveragesRolledBack++
	report.LimitsDeleted += outcome.LimitsDeleted
	report.DeductiblesDeleted += outcome.DeductiblesDeleted
	report.Outcomes = append(report.Outcomes, outcome)

	e.log.Info("coverage rolled back",
		zap.String("coverage", string(c.ID)),
		zap.Bool("dryRun", opts.DryRun),
		zap.Int("limitsDeleted", outcome.LimitsDeleted),
		zap.Int("deductiblesDeleted", outcome.DeductiblesDeleted))
	return nil
}
