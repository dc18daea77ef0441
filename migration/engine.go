/*
Package migration converts legacy coverage-attribute arrays into child
records, and rolls that conversion back.

PURPOSE:
  The engine walks the product/coverage hierarchy, parses each legacy
  display string, synthesizes strongly-typed Limit/Deductible records,
  and persists them per-coverage as one atomic batch capped by the
  MigratedAt marker. It is an operator-invoked offline tool; the live
  application keeps serving through the compat accessors while it runs.

STATE MACHINE (per coverage):
  Legacy -> Converting -> Migrated | Failed
  - Migrated is terminal: a MigratedAt marker short-circuits re-runs, so
    the engine is idempotent per coverage. Existing child records are
    terminal the same way: a coverage the compat accessors already wrote
    through is never re-synthesized from its legacy array.
  - Failed leaves legacy data untouched; rerunning retries the coverage.

DRY-RUN:
  ModeDryRun runs the exact same planning code as a live run but persists
  nothing; planned records accumulate in the report. planCoverage is pure,
  which is what makes the dry-run report trustworthy.

FAILURE SEMANTICS:
  - Parse/validation failures on individual entries: warning, entry
    skipped, coverage continues. A coverage whose every entry fails still
    migrates (empty is a valid migrated state).
  - Batch persistence failures: retried with backoff while transient,
    then the coverage is marked failed and the run continues.
  - Catastrophic failures (hierarchy unreadable after retries, context
    canceled): the run aborts; already-migrated coverages stay migrated.

CONCURRENCY:
  Products are processed sequentially. Within a product, coverages run
  concurrently under a weighted semaphore, level by level: a parent
  coverage's level completes before its children start (see topo.go).
  Cancellation is honored between coverages, never mid-batch.

SEE ALSO:
  - rollback.go: the inverse operation
  - report.go: structured run summary
*/
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/warp/catalog-engine/catalog"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Mode selects whether the engine persists anything.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeLive   Mode = "live"
)

// Overrides customize synthesized record types per coverage.
type Overrides struct {
	LimitTypes      map[catalog.CoverageID]catalog.LimitType
	DeductibleTypes map[catalog.CoverageID]catalog.DeductibleType
}

// Options configure a migration run.
type Options struct {
	Mode Mode

	// Product restricts the run to one product. Empty migrates everything.
	Product catalog.ProductID

	// Concurrency bounds simultaneous coverage batches. Sized to the
	// record store's safe concurrent-batch limit.
	Concurrency int

	// Defaults for synthesized records; legacy strings carry no type info.
	DefaultLimitType      catalog.LimitType
	DefaultDeductibleType catalog.DeductibleType
	Overrides             Overrides

	// Retry policy for transient store failures.
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeDryRun
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.DefaultLimitType == "" {
		o.DefaultLimitType = catalog.LimitPerOccurrence
	}
	if o.DefaultDeductibleType == "" {
		o.DefaultDeductibleType = catalog.DeductibleFlat
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 100 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 5 * time.Second
	}
	return o
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine migrates coverages from the legacy representation.
type Engine struct {
	store catalog.RecordStore
	log   *zap.Logger
	opts  Options

	// now is swappable in tests so MigratedAt markers are deterministic.
	now func() time.Time
}

// New creates a migration engine. A nil logger disables logging.
func New(store catalog.RecordStore, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store: store,
		log:   logger,
		opts:  opts.withDefaults(),
		now:   time.Now,
	}
}

// Run executes the migration. The returned report is always non-nil and
// reflects whatever completed; a non-nil error means the run aborted
// catastrophically (remaining coverages untouched, migrated ones stay
// migrated).
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := newReport(e.opts.Mode, e.now())
	defer func() { report.finish(e.now()) }()

	products, err := e.listProducts(ctx)
	if err != nil {
		return report, fmt.Errorf("listing products: %w", err)
	}

	e.log.Info("migration run starting",
		zap.String("mode", string(e.opts.Mode)),
		zap.Int("products", len(products)),
		zap.Int("concurrency", e.opts.Concurrency))

	for _, product := range products {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := e.migrateProduct(ctx, product, report); err != nil {
			return report, fmt.Errorf("product %s: %w", product.ID, err)
		}
		report.addProduct()
	}

	e.log.Info("migration run finished",
		zap.Int("coverages", report.CoveragesProcessed),
		zap.Int("migrated", report.CoveragesMigrated),
		zap.Int("skipped", report.CoveragesSkipped),
		zap.Int("failed", report.CoveragesFailed),
		zap.Int("warnings", len(report.Warnings)))
	return report, nil
}

func (e *Engine) listProducts(ctx context.Context) ([]catalog.Product, error) {
	if e.opts.Product != "" {
		var p catalog.Product
		err := withRetry(ctx, e.opts.MaxAttempts, e.opts.RetryBaseDelay, e.opts.RetryMaxDelay, func() error {
			var err error
			p, err = e.store.GetProduct(ctx, e.opts.Product)
			return err
		})
		if err != nil {
			return nil, err
		}
		return []catalog.Product{p}, nil
	}

	var products []catalog.Product
	err := withRetry(ctx, e.opts.MaxAttempts, e.opts.RetryBaseDelay, e.opts.RetryMaxDelay, func() error {
		var err error
		products, err = e.store.ListProducts(ctx)
		return err
	})
	return products, err
}

// migrateProduct walks one product's coverage hierarchy level by level.
// A returned error is catastrophic for the whole run.
func (e *Engine) migrateProduct(ctx context.Context, product catalog.Product, report *Report) error {
	var coverages []catalog.Coverage
	err := withRetry(ctx, e.opts.MaxAttempts, e.opts.RetryBaseDelay, e.opts.RetryMaxDelay, func() error {
		var err error
		coverages, err = e.store.ListCoverages(ctx, product.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("listing coverages: %w", err)
	}

	levels, cyclic := coverageLevels(coverages)
	for _, c := range cyclic {
		e.log.Warn("coverage parent cycle, cannot order",
			zap.String("product", string(product.ID)),
			zap.String("coverage", string(c.ID)))
		report.addOutcome(CoverageOutcome{
			ProductID:  product.ID,
			CoverageID: c.ID,
			Status:     StatusFailed,
			Error:      "parent coverage cycle",
		}, nil)
	}

	sem := semaphore.NewWeighted(int64(e.opts.Concurrency))
	for _, level := range levels {
		// Level boundary = dependency barrier: all parents in earlier
		// levels have finished before this group starts.
		g, gctx := errgroup.WithContext(ctx)
		for _, c := range level {
			c := c
			if err := sem.Acquire(gctx, 1); err != nil {
				g.Wait()
				return err
			}
			g.Go(func() error {
				defer sem.Release(1)
				e.migrateCoverage(gctx, product, c, report)
				// Per-coverage failures stay in the report; only
				// cancellation crosses the coverage boundary.
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// migrateCoverage converts one coverage. Never returns an error: every
// failure is captured in the report.
func (e *Engine) migrateCoverage(ctx context.Context, product catalog.Product, c catalog.Coverage, report *Report) {
	if c.MigratedAt != nil {
		report.addOutcome(CoverageOutcome{
			ProductID:  product.ID,
			CoverageID: c.ID,
			Status:     StatusSkipped,
		}, nil)
		return
	}

	// A coverage can hold child records before the marker is set: the
	// compat accessors write them directly and refresh the legacy array
	// in the same batch. Re-synthesizing from that array would duplicate
	// every record (and mint a second default), so existing children make
	// the coverage terminal exactly like the marker does.
	var existingLimits []catalog.Limit
	var existingDeductibles []catalog.Deductible
	err := withRetry(ctx, e.opts.MaxAttempts, e.opts.RetryBaseDelay, e.opts.RetryMaxDelay, func() error {
		var err error
		existingLimits, err = e.store.ListLimits(ctx, product.ID, c.ID)
		if err != nil {
			return err
		}
		existingDeductibles, err = e.store.ListDeductibles(ctx, product.ID, c.ID)
		return err
	})
	if err != nil {
		report.addOutcome(CoverageOutcome{
			ProductID:  product.ID,
			CoverageID: c.ID,
			Status:     StatusFailed,
			Error:      err.Error(),
		}, nil)
		e.log.Error("coverage failed",
			zap.String("coverage", string(c.ID)),
			zap.Error(err))
		return
	}
	if len(existingLimits)+len(existingDeductibles) > 0 {
		report.addOutcome(CoverageOutcome{
			ProductID:  product.ID,
			CoverageID: c.ID,
			Status:     StatusSkipped,
		}, nil)
		e.log.Info("coverage already has child records, skipping",
			zap.String("coverage", string(c.ID)),
			zap.Int("limits", len(existingLimits)),
			zap.Int("deductibles", len(existingDeductibles)))
		return
	}

	plan := e.planCoverage(c)

	outcome := CoverageOutcome{
		ProductID:          product.ID,
		CoverageID:         c.ID,
		LimitsCreated:      len(plan.limits),
		DeductiblesCreated: len(plan.deductibles),
	}

	if e.opts.Mode == ModeDryRun {
		outcome.Status = StatusPlanned
		report.addPlanned(plan.limits, plan.deductibles)
		report.addOutcome(outcome, plan.warnings)
		e.log.Info("coverage planned",
			zap.String("coverage", string(c.ID)),
			zap.Int("limits", len(plan.limits)),
			zap.Int("deductibles", len(plan.deductibles)),
			zap.Int("warnings", len(plan.warnings)))
		return
	}

	migratedAt := e.now().UTC()
	batch := catalog.CoverageBatch{
		ProductID:      product.ID,
		CoverageID:     c.ID,
		PutLimits:      plan.limits,
		PutDeductibles: plan.deductibles,
		SetMigratedAt:  &migratedAt,
	}

	// Cancellation is honored between coverages only; an in-flight batch
	// always runs to completion or rollback.
	batchCtx := context.WithoutCancel(ctx)
	err = withRetry(ctx, e.opts.MaxAttempts, e.opts.RetryBaseDelay, e.opts.RetryMaxDelay, func() error {
		return e.store.Apply(batchCtx, batch)
	})
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Error = err.Error()
		outcome.LimitsCreated = 0
		outcome.DeductiblesCreated = 0
		report.addOutcome(outcome, plan.warnings)
		e.log.Error("coverage failed",
			zap.String("coverage", string(c.ID)),
			zap.Error(err))
		return
	}

	outcome.Status = StatusMigrated
	report.addOutcome(outcome, plan.warnings)
	e.log.Info("coverage migrated",
		zap.String("coverage", string(c.ID)),
		zap.Int("limits", len(plan.limits)),
		zap.Int("deductibles", len(plan.deductibles)),
		zap.Int("warnings", len(plan.warnings)))
}

// =============================================================================
// PLANNING - The single decision path shared by dry-run and live
// =============================================================================

type coveragePlan struct {
	limits      []catalog.Limit
	deductibles []catalog.Deductible
	warnings    []Warning
}

// migrationNamespace seeds deterministic record IDs: the same coverage
// entry always synthesizes the same UUID, so re-planning (dry-run vs
// live, or a retried run) produces identical records.
var migrationNamespace = uuid.MustParse("8c1f63d2-4a5e-4b8a-9f0d-2f6a7c3b1e90")

func recordID(productID catalog.ProductID, coverageID catalog.CoverageID, collection string, index int) string {
	path := fmt.Sprintf("products/%s/coverages/%s/%s/%d", productID, coverageID, collection, index)
	return uuid.NewSHA1(migrationNamespace, []byte(path)).String()
}

// planCoverage synthesizes the records a coverage's legacy arrays imply.
// Pure: same coverage in, same plan out.
func (e *Engine) planCoverage(c catalog.Coverage) coveragePlan {
	var plan coveragePlan

	limitType := e.opts.DefaultLimitType
	if t, ok := e.opts.Overrides.LimitTypes[c.ID]; ok {
		limitType = t
	}
	deductibleType := e.opts.DefaultDeductibleType
	if t, ok := e.opts.Overrides.DeductibleTypes[c.ID]; ok {
		deductibleType = t
	}

	for i, raw := range c.LegacyLimits {
		v, ok := catalog.ParseDisplay(raw)
		if !ok {
			plan.warnings = append(plan.warnings, Warning{
				CoverageID: c.ID, EntryIndex: i, RawValue: raw,
				Reason: "unparseable limit value",
			})
			continue
		}
		if v.Percent {
			plan.warnings = append(plan.warnings, Warning{
				CoverageID: c.ID, EntryIndex: i, RawValue: raw,
				Reason: "percent value in limit position",
			})
			continue
		}
		l := catalog.Limit{
			ID:           catalog.LimitID(recordID(c.ProductID, c.ID, "limits", i)),
			ProductID:    c.ProductID,
			CoverageID:   c.ID,
			Type:         limitType,
			Amount:       v.Amount,
			DisplayValue: catalog.RenderCurrency(v.Amount),
			IsDefault:    len(plan.limits) == 0 && i == 0,
		}
		if violations := catalog.ValidateLimit(l, plan.limits, nil); len(violations) > 0 {
			plan.warnings = append(plan.warnings, Warning{
				CoverageID: c.ID, EntryIndex: i, RawValue: raw,
				Reason: violations[0].Error(),
			})
			continue
		}
		plan.limits = append(plan.limits, l)
	}

	for i, raw := range c.LegacyDeductibles {
		v, ok := catalog.ParseDisplay(raw)
		if !ok {
			plan.warnings = append(plan.warnings, Warning{
				CoverageID: c.ID, EntryIndex: i, RawValue: raw,
				Reason: "unparseable deductible value",
			})
			continue
		}
		d := catalog.Deductible{
			ID:         catalog.DeductibleID(recordID(c.ProductID, c.ID, "deductibles", i)),
			ProductID:  c.ProductID,
			CoverageID: c.ID,
			IsDefault:  len(plan.deductibles) == 0 && i == 0,
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
			d.Type = deductibleType
			d.Amount = &amount
			d.DisplayValue = catalog.RenderCurrency(amount)
		}
		if violations := catalog.ValidateDeductible(d, plan.deductibles); len(violations) > 0 {
			plan.warnings = append(plan.warnings, Warning{
				CoverageID: c.ID, EntryIndex: i, RawValue: raw,
				Reason: violations[0].Error(),
			})
			continue
		}
		plan.deductibles = append(plan.deductibles, d)
	}

	return plan
}
