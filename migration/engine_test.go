package migration_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/catalog-engine/catalog"
	"github.com/warp/catalog-engine/catalog/store"
	"github.com/warp/catalog-engine/migration"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newSeededStore(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.PutProduct(ctx, catalog.Product{ID: "prod-1", Name: "General Liability"}))
	require.NoError(t, m.PutCoverage(ctx, catalog.Coverage{
		ProductID:         "prod-1",
		ID:                "cov-1",
		Name:              "Premises Liability",
		LegacyLimits:      []string{"$100,000", "$250,000"},
		LegacyDeductibles: []string{"$1,000"},
	}))
	return m
}

func fastOpts(mode migration.Mode) migration.Options {
	return migration.Options{
		Mode:           mode,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func outcomeFor(t *testing.T, report *migration.Report, id catalog.CoverageID) migration.CoverageOutcome {
	t.Helper()
	for _, o := range report.Outcomes {
		if o.CoverageID == id {
			return o
		}
	}
	t.Fatalf("no outcome for coverage %s", id)
	return migration.CoverageOutcome{}
}

// =============================================================================
// LIVE MIGRATION
// =============================================================================

func TestEngine_Live_ConvertsLegacyArrays(t *testing.T) {
	// GIVEN: legacy_limits ["$100,000", "$250,000"], legacy_deductibles ["$1,000"]
	// WHEN: A live run
	// THEN: Two limit records and one flat deductible, MigratedAt set,
	//       legacy arrays untouched
	m := newSeededStore(t)
	engine := migration.New(m, nil, fastOpts(migration.ModeLive))

	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.CoveragesMigrated)
	assert.Equal(t, 0, report.CoveragesFailed)
	assert.Equal(t, 2, report.LimitsCreated)
	assert.Equal(t, 1, report.DeductiblesCreated)
	assert.Empty(t, report.Warnings)

	ctx := context.Background()
	limits, err := m.ListLimits(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	require.Len(t, limits, 2)
	amounts := []decimal.Decimal{limits[0].Amount, limits[1].Amount}
	assert.True(t, (amounts[0].Equal(dec("100000")) && amounts[1].Equal(dec("250000"))) ||
		(amounts[0].Equal(dec("250000")) && amounts[1].Equal(dec("100000"))))

	deductibles, err := m.ListDeductibles(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	require.Len(t, deductibles, 1)
	assert.Equal(t, catalog.DeductibleFlat, deductibles[0].Type)
	require.NotNil(t, deductibles[0].Amount)
	assert.True(t, deductibles[0].Amount.Equal(dec("1000")))
	assert.True(t, deductibles[0].IsDefault)

	c, err := m.GetCoverage(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	require.NotNil(t, c.MigratedAt)
	assert.Equal(t, []string{"$100,000", "$250,000"}, c.LegacyLimits,
		"migration must not modify the legacy arrays")
}

func TestEngine_Live_UnparseableEntry_WarnsAndCompletes(t *testing.T) {
	// GIVEN: A coverage whose only limit entry is "not-a-number"
	// WHEN: A live run
	// THEN: Status migrated with zero limits and one warning; never failed
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.PutProduct(ctx, catalog.Product{ID: "prod-1"}))
	require.NoError(t, m.PutCoverage(ctx, catalog.Coverage{
		ProductID: "prod-1", ID: "cov-dirty", Name: "Dirty",
		LegacyLimits: []string{"not-a-number"},
	}))

	engine := migration.New(m, nil, fastOpts(migration.ModeLive))
	report, err := engine.Run(ctx)
	require.NoError(t, err)

	outcome := outcomeFor(t, report, "cov-dirty")
	assert.Equal(t, migration.StatusMigrated, outcome.Status)
	assert.Equal(t, 0, outcome.LimitsCreated)

	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "not-a-number", report.Warnings[0].RawValue)
	assert.Equal(t, 0, report.Warnings[0].EntryIndex)

	c, err := m.GetCoverage(ctx, "prod-1", "cov-dirty")
	require.NoError(t, err)
	assert.NotNil(t, c.MigratedAt, "dirty entries do not block the coverage")
}

func TestEngine_Live_PercentInLimitPosition_Warns(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.PutProduct(ctx, catalog.Product{ID: "prod-1"}))
	require.NoError(t, m.PutCoverage(ctx, catalog.Coverage{
		ProductID: "prod-1", ID: "cov-1", Name: "C",
		LegacyLimits: []string{"2%", "$50,000"},
	}))

	engine := migration.New(m, nil, fastOpts(migration.ModeLive))
	report, err := engine.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.LimitsCreated)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "2%", report.Warnings[0].RawValue)
}

func TestEngine_Live_RoutesDeductibleShapes(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.PutProduct(ctx, catalog.Product{ID: "prod-1"}))
	require.NoError(t, m.PutCoverage(ctx, catalog.Coverage{
		ProductID: "prod-1", ID: "cov-1", Name: "C",
		LegacyDeductibles: []string{"$1,000", "2%", "30 days"},
	}))

	engine := migration.New(m, nil, fastOpts(migration.ModeLive))
	_, err := engine.Run(ctx)
	require.NoError(t, err)

	deductibles, err := m.ListDeductibles(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	require.Len(t, deductibles, 3)

	byType := map[catalog.DeductibleType]catalog.Deductible{}
	for _, d := range deductibles {
		byType[d.Type] = d
	}
	require.Contains(t, byType, catalog.DeductibleFlat)
	require.Contains(t, byType, catalog.DeductiblePercentage)
	require.Contains(t, byType, catalog.DeductibleWaitingPeriod)

	assert.True(t, byType[catalog.DeductiblePercentage].Percentage.Equal(dec("2")))
	assert.True(t, byType[catalog.DeductibleWaitingPeriod].Amount.Equal(dec("30")))
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestEngine_Rerun_SkipsMigratedCoverages(t *testing.T) {
	// GIVEN: A completed live run
	// WHEN: The exact same run again
	// THEN: Everything skipped, record counts unchanged
	m := newSeededStore(t)
	ctx := context.Background()

	engine := migration.New(m, nil, fastOpts(migration.ModeLive))
	first, err := engine.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.CoveragesMigrated)

	second, err := migration.New(m, nil, fastOpts(migration.ModeLive)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.CoveragesMigrated)
	assert.Equal(t, 1, second.CoveragesSkipped)
	assert.Equal(t, 0, second.LimitsCreated)

	limits, err := m.ListLimits(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	assert.Len(t, limits, 2, "re-run must not duplicate records")
}

func TestEngine_SkipsCoverageWithExistingChildRecords(t *testing.T) {
	// GIVEN: A coverage in the dual state: one limit written through the
	//        accessors (legacy array refreshed in the same batch), no
	//        MigratedAt marker yet
	// WHEN: A live run
	// THEN: The coverage is skipped untouched; no record duplicated, the
	//       single default survives, the marker stays unset
	m := newSeededStore(t)
	ctx := context.Background()

	legacy := []string{"$100,000"}
	require.NoError(t, m.Apply(ctx, catalog.CoverageBatch{
		ProductID:  "prod-1",
		CoverageID: "cov-1",
		PutLimits: []catalog.Limit{{
			ID:           "lim-dual",
			ProductID:    "prod-1",
			CoverageID:   "cov-1",
			Type:         catalog.LimitPerOccurrence,
			Amount:       dec("100000"),
			DisplayValue: "$100,000",
			IsDefault:    true,
		}},
		SetLegacyLimits: &legacy,
	}))

	report, err := migration.New(m, nil, fastOpts(migration.ModeLive)).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, report.CoveragesMigrated)
	assert.Equal(t, 1, report.CoveragesSkipped)
	assert.Equal(t, migration.StatusSkipped, outcomeFor(t, report, "cov-1").Status)

	limits, err := m.ListLimits(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	require.Len(t, limits, 1, "existing records must not be re-synthesized")
	assert.True(t, limits[0].IsDefault)

	deductibles, err := m.ListDeductibles(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	assert.Empty(t, deductibles)

	c, err := m.GetCoverage(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	assert.Nil(t, c.MigratedAt)
}

// =============================================================================
// DRY-RUN
// =============================================================================

func TestEngine_DryRun_WritesNothing(t *testing.T) {
	m := newSeededStore(t)
	ctx := context.Background()

	engine := migration.New(m, nil, fastOpts(migration.ModeDryRun))
	report, err := engine.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.CoveragesMigrated)
	assert.Len(t, report.PlannedLimits, 2)
	assert.Len(t, report.PlannedDeductibles, 1)

	limits, err := m.ListLimits(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	assert.Empty(t, limits)

	c, err := m.GetCoverage(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	assert.Nil(t, c.MigratedAt)
}

func TestEngine_DryRun_MatchesLiveExactly(t *testing.T) {
	// The dry-run plan and the records a live run persists must be
	// identical, record IDs included. Planning is deterministic.
	dryStore := newSeededStore(t)
	liveStore := newSeededStore(t)
	ctx := context.Background()

	dryReport, err := migration.New(dryStore, nil, fastOpts(migration.ModeDryRun)).Run(ctx)
	require.NoError(t, err)

	_, err = migration.New(liveStore, nil, fastOpts(migration.ModeLive)).Run(ctx)
	require.NoError(t, err)

	persisted, err := liveStore.ListLimits(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	require.Len(t, dryReport.PlannedLimits, len(persisted))

	planned := map[catalog.LimitID]catalog.Limit{}
	for _, l := range dryReport.PlannedLimits {
		planned[l.ID] = l
	}
	for _, l := range persisted {
		p, ok := planned[l.ID]
		require.True(t, ok, "live record %s missing from dry-run plan", l.ID)
		assert.True(t, p.Amount.Equal(l.Amount))
		assert.Equal(t, p.Type, l.Type)
		assert.Equal(t, p.DisplayValue, l.DisplayValue)
		assert.Equal(t, p.IsDefault, l.IsDefault)
	}
}

// =============================================================================
// OVERRIDES
// =============================================================================

func TestEngine_TypeOverrides(t *testing.T) {
	m := newSeededStore(t)
	ctx := context.Background()

	opts := fastOpts(migration.ModeLive)
	opts.DefaultLimitType = catalog.LimitAggregate
	opts.Overrides.DeductibleTypes = map[catalog.CoverageID]catalog.DeductibleType{
		"cov-1": catalog.DeductibleFranchise,
	}

	_, err := migration.New(m, nil, opts).Run(ctx)
	require.NoError(t, err)

	limits, err := m.ListLimits(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	for _, l := range limits {
		assert.Equal(t, catalog.LimitAggregate, l.Type)
	}

	deductibles, err := m.ListDeductibles(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	require.Len(t, deductibles, 1)
	assert.Equal(t, catalog.DeductibleFranchise, deductibles[0].Type)
}

// =============================================================================
// RETRY AND FAILURE ISOLATION
// =============================================================================

func TestEngine_RetriesTransientApplyFailures(t *testing.T) {
	m := newSeededStore(t)
	m.FailNextApply(2) // fewer than MaxAttempts

	report, err := migration.New(m, nil, fastOpts(migration.ModeLive)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.CoveragesMigrated)
	assert.Equal(t, 0, report.CoveragesFailed)
}

func TestEngine_ExhaustedRetries_FailCoverageNotRun(t *testing.T) {
	// GIVEN: A store that keeps failing one coverage's batch
	// WHEN: A live run over two coverages
	// THEN: That coverage is failed in the report; the run itself succeeds
	m := newSeededStore(t)
	ctx := context.Background()
	require.NoError(t, m.PutCoverage(ctx, catalog.Coverage{
		ProductID: "prod-1", ID: "cov-2", Name: "Second",
		LegacyLimits: []string{"$5,000"},
	}))

	opts := fastOpts(migration.ModeLive)
	opts.Concurrency = 1
	opts.MaxAttempts = 2
	m.FailNextApply(2) // exhausts attempts for the first coverage only

	report, err := migration.New(m, nil, opts).Run(ctx)
	require.NoError(t, err, "per-coverage failures never abort the run")
	assert.Equal(t, 1, report.CoveragesFailed)
	assert.Equal(t, 1, report.CoveragesMigrated)

	failed := outcomeFor(t, report, "cov-1")
	assert.Equal(t, migration.StatusFailed, failed.Status)
	assert.NotEmpty(t, failed.Error)
}

func TestEngine_ProductScope(t *testing.T) {
	m := newSeededStore(t)
	ctx := context.Background()
	require.NoError(t, m.PutProduct(ctx, catalog.Product{ID: "prod-2"}))
	require.NoError(t, m.PutCoverage(ctx, catalog.Coverage{
		ProductID: "prod-2", ID: "cov-other", Name: "Other",
		LegacyLimits: []string{"$9,000"},
	}))

	opts := fastOpts(migration.ModeLive)
	opts.Product = "prod-1"
	report, err := migration.New(m, nil, opts).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ProductsProcessed)

	c, err := m.GetCoverage(ctx, "prod-2", "cov-other")
	require.NoError(t, err)
	assert.Nil(t, c.MigratedAt, "out-of-scope product must be untouched")
}

func TestEngine_UnknownProduct_IsFatal(t *testing.T) {
	m := newSeededStore(t)

	opts := fastOpts(migration.ModeLive)
	opts.Product = "prod-missing"
	_, err := migration.New(m, nil, opts).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

// =============================================================================
// HIERARCHY ORDERING
// =============================================================================

func TestEngine_ParentMigratesBeforeChild(t *testing.T) {
	// A three-deep chain: root -> mid -> leaf. With single-worker
	// concurrency the outcome order must respect the hierarchy.
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.PutProduct(ctx, catalog.Product{ID: "prod-1"}))
	require.NoError(t, m.PutCoverage(ctx, catalog.Coverage{
		ProductID: "prod-1", ID: "cov-leaf", ParentCoverageID: "cov-mid",
		Name: "Leaf", LegacyLimits: []string{"$1,000"},
	}))
	require.NoError(t, m.PutCoverage(ctx, catalog.Coverage{
		ProductID: "prod-1", ID: "cov-root", Name: "Root",
		LegacyLimits: []string{"$100,000"},
	}))
	require.NoError(t, m.PutCoverage(ctx, catalog.Coverage{
		ProductID: "prod-1", ID: "cov-mid", ParentCoverageID: "cov-root",
		Name: "Mid", LegacyLimits: []string{"$10,000"},
	}))

	opts := fastOpts(migration.ModeLive)
	opts.Concurrency = 1
	report, err := migration.New(m, nil, opts).Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)

	position := map[catalog.CoverageID]int{}
	for i, o := range report.Outcomes {
		position[o.CoverageID] = i
	}
	assert.Less(t, position["cov-root"], position["cov-mid"])
	assert.Less(t, position["cov-mid"], position["cov-leaf"])
}

func TestEngine_ParentCycle_MarkedFailed(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.PutProduct(ctx, catalog.Product{ID: "prod-1"}))
	require.NoError(t, m.PutCoverage(ctx, catalog.Coverage{
		ProductID: "prod-1", ID: "cov-a", ParentCoverageID: "cov-b", Name: "A",
	}))
	require.NoError(t, m.PutCoverage(ctx, catalog.Coverage{
		ProductID: "prod-1", ID: "cov-b", ParentCoverageID: "cov-a", Name: "B",
	}))

	report, err := migration.New(m, nil, fastOpts(migration.ModeLive)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.CoveragesFailed)
	for _, o := range report.Outcomes {
		assert.Equal(t, migration.StatusFailed, o.Status)
	}
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestEngine_CancelledContext_AbortsBetweenCoverages(t *testing.T) {
	m := newSeededStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := migration.New(m, nil, fastOpts(migration.ModeLive)).Run(ctx)
	require.Error(t, err)
	assert.NotNil(t, report)

	c, err2 := m.GetCoverage(context.Background(), "prod-1", "cov-1")
	require.NoError(t, err2)
	assert.Nil(t, c.MigratedAt)
}
