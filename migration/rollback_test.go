package migration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/catalog-engine/catalog"
	"github.com/warp/catalog-engine/catalog/store"
	"github.com/warp/catalog-engine/migration"
)

// migrateLive runs a live migration so rollback tests start from a
// migrated state.
func migrateLive(t *testing.T, m *store.Memory) {
	t.Helper()
	_, err := migration.New(m, nil, fastOpts(migration.ModeLive)).Run(context.Background())
	require.NoError(t, err)
}

func TestRollback_RequiresConfirm(t *testing.T) {
	m := newSeededStore(t)
	migrateLive(t, m)

	engine := migration.New(m, nil, fastOpts(migration.ModeLive))
	_, err := engine.Rollback(context.Background(), "prod-1", "cov-1", migration.RollbackOptions{})
	assert.ErrorIs(t, err, migration.ErrConfirmRequired)

	// Records survive a refused rollback.
	limits, err := m.ListLimits(context.Background(), "prod-1", "cov-1")
	require.NoError(t, err)
	assert.Len(t, limits, 2)
}

func TestRollback_DeletesRecordsAndClearsMarker(t *testing.T) {
	// GIVEN: A migrated coverage with intact legacy arrays
	// WHEN: A confirmed live rollback
	// THEN: Child records gone, MigratedAt cleared, legacy arrays untouched,
	//       reads fall back to the legacy representation again
	m := newSeededStore(t)
	migrateLive(t, m)
	ctx := context.Background()

	engine := migration.New(m, nil, fastOpts(migration.ModeLive))
	report, err := engine.Rollback(ctx, "prod-1", "cov-1", migration.RollbackOptions{Confirm: true})
	require.NoError(t, err)

	assert.Equal(t, 1, report.CoveragesRolledBack)
	assert.Equal(t, 2, report.LimitsDeleted)
	assert.Equal(t, 1, report.DeductiblesDeleted)

	limits, err := m.ListLimits(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	assert.Empty(t, limits)

	c, err := m.GetCoverage(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	assert.Nil(t, c.MigratedAt)
	assert.Equal(t, []string{"$100,000", "$250,000"}, c.LegacyLimits)
	assert.Equal(t, []string{"$1,000"}, c.LegacyDeductibles)
}

func TestRollback_DryRun_ReportsWithoutDeleting(t *testing.T) {
	m := newSeededStore(t)
	migrateLive(t, m)
	ctx := context.Background()

	engine := migration.New(m, nil, fastOpts(migration.ModeLive))
	report, err := engine.Rollback(ctx, "prod-1", "cov-1", migration.RollbackOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.LimitsDeleted)

	limits, err := m.ListLimits(ctx, "prod-1", "cov-1")
	require.NoError(t, err)
	assert.Len(t, limits, 2, "dry-run must not delete")
}

func TestRollback_NotMigratedCoverage_Skipped(t *testing.T) {
	m := newSeededStore(t)

	engine := migration.New(m, nil, fastOpts(migration.ModeLive))
	report, err := engine.Rollback(context.Background(), "prod-1", "cov-1", migration.RollbackOptions{Confirm: true})
	require.NoError(t, err)

	assert.Equal(t, 0, report.CoveragesRolledBack)
	assert.Equal(t, 1, report.CoveragesSkipped)
}

func TestRollbackProduct_WalksWholeHierarchy(t *testing.T) {
	m := newSeededStore(t)
	ctx := context.Background()
	require.NoError(t, m.PutCoverage(ctx, catalog.Coverage{
		ProductID: "prod-1", ID: "cov-child", ParentCoverageID: "cov-1",
		Name: "Child", LegacyLimits: []string{"$5,000"},
	}))
	migrateLive(t, m)

	engine := migration.New(m, nil, fastOpts(migration.ModeLive))
	report, err := engine.RollbackProduct(ctx, "prod-1", migration.RollbackOptions{Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, 2, report.CoveragesRolledBack)

	// Children roll back before parents.
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, catalog.CoverageID("cov-child"), report.Outcomes[0].CoverageID)
	assert.Equal(t, catalog.CoverageID("cov-1"), report.Outcomes[1].CoverageID)

	for _, id := range []catalog.CoverageID{"cov-1", "cov-child"} {
		c, err := m.GetCoverage(ctx, "prod-1", id)
		require.NoError(t, err)
		assert.Nil(t, c.MigratedAt)
	}
}

func TestRollback_ThenRemigrate_ProducesSameRecords(t *testing.T) {
	// Rollback must restore a state from which migration reproduces the
	// exact same records (deterministic IDs included).
	m := newSeededStore(t)
	ctx := context.Background()
	migrateLive(t, m)

	before, err := m.ListLimits(ctx, "prod-1", "cov-1")
	require.NoError(t, err)

	engine := migration.New(m, nil, fastOpts(migration.ModeLive))
	_, err = engine.Rollback(ctx, "prod-1", "cov-1", migration.RollbackOptions{Confirm: true})
	require.NoError(t, err)

	migrateLive(t, m)
	after, err := m.ListLimits(ctx, "prod-1", "cov-1")
	require.NoError(t, err)

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.True(t, before[i].Amount.Equal(after[i].Amount))
	}
}
