package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/catalog-engine/catalog"
)

func cov(id, parent string) catalog.Coverage {
	return catalog.Coverage{
		ProductID:        "prod-1",
		ID:               catalog.CoverageID(id),
		ParentCoverageID: catalog.CoverageID(parent),
	}
}

func levelIDs(levels [][]catalog.Coverage) [][]catalog.CoverageID {
	out := make([][]catalog.CoverageID, len(levels))
	for i, level := range levels {
		for _, c := range level {
			out[i] = append(out[i], c.ID)
		}
	}
	return out
}

func TestCoverageLevels_FlatHierarchy(t *testing.T) {
	levels, cyclic := coverageLevels([]catalog.Coverage{
		cov("a", ""), cov("b", ""), cov("c", ""),
	})
	require.Empty(t, cyclic)
	require.Len(t, levels, 1)
	assert.Len(t, levels[0], 3)
}

func TestCoverageLevels_Chain(t *testing.T) {
	levels, cyclic := coverageLevels([]catalog.Coverage{
		cov("leaf", "mid"), cov("root", ""), cov("mid", "root"),
	})
	require.Empty(t, cyclic)
	ids := levelIDs(levels)
	require.Len(t, ids, 3)
	assert.Equal(t, []catalog.CoverageID{"root"}, ids[0])
	assert.Equal(t, []catalog.CoverageID{"mid"}, ids[1])
	assert.Equal(t, []catalog.CoverageID{"leaf"}, ids[2])
}

func TestCoverageLevels_Tree(t *testing.T) {
	// root with two children, one grandchild: children share a level.
	levels, cyclic := coverageLevels([]catalog.Coverage{
		cov("root", ""),
		cov("child-a", "root"), cov("child-b", "root"),
		cov("grand", "child-a"),
	})
	require.Empty(t, cyclic)
	ids := levelIDs(levels)
	require.Len(t, ids, 3)
	assert.ElementsMatch(t, []catalog.CoverageID{"child-a", "child-b"}, ids[1])
	assert.Equal(t, []catalog.CoverageID{"grand"}, ids[2])
}

func TestCoverageLevels_ParentOutsideProduct_IsRoot(t *testing.T) {
	// A parent ID this run will never process cannot be waited on.
	levels, cyclic := coverageLevels([]catalog.Coverage{
		cov("orphan", "cov-from-another-product"),
	})
	require.Empty(t, cyclic)
	require.Len(t, levels, 1)
	assert.Equal(t, catalog.CoverageID("orphan"), levels[0][0].ID)
}

func TestCoverageLevels_Cycle(t *testing.T) {
	levels, cyclic := coverageLevels([]catalog.Coverage{
		cov("a", "b"), cov("b", "a"), cov("free", ""),
	})
	require.Len(t, levels, 1)
	assert.Equal(t, catalog.CoverageID("free"), levels[0][0].ID)

	require.Len(t, cyclic, 2)
	ids := []catalog.CoverageID{cyclic[0].ID, cyclic[1].ID}
	assert.ElementsMatch(t, []catalog.CoverageID{"a", "b"}, ids)
}

func TestCoverageLevels_Empty(t *testing.T) {
	levels, cyclic := coverageLevels(nil)
	assert.Empty(t, levels)
	assert.Empty(t, cyclic)
}
