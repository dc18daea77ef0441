/*
topo.go - Parent-before-child coverage ordering

PURPOSE:
  Coverages form an arbitrarily deep hierarchy via ParentCoverageID. The
  engine must finish a parent before starting its sub-coverages (sublimit
  validation reads the parent's already-migrated amounts), while still
  migrating unrelated coverages concurrently.

APPROACH:
  The hierarchy is kept as a flat arena keyed by coverage ID; ordering is
  a breadth-first topological pass producing LEVELS. Everything in one
  level has all ancestors in earlier levels, so a level can be processed
  with full parallelism and the level boundary is the dependency barrier.
  No native recursion, no pointer tree.

EDGE CASES:
  - A parent ID pointing outside the product is treated as a root (the
    coverage can't wait on something this run will never process).
  - Parent cycles are impossible to order; those coverages are returned
    separately and the engine marks them failed.
*/
package migration

import "github.com/warp/catalog-engine/catalog"

// coverageLevels splits a product's coverages into dependency levels.
// Level i+1 contains only coverages whose parent sits in level <= i.
// The second return value holds coverages trapped in a parent cycle.
func coverageLevels(coverages []catalog.Coverage) ([][]catalog.Coverage, []catalog.Coverage) {
	arena := make(map[catalog.CoverageID]catalog.Coverage, len(coverages))
	for _, c := range coverages {
		arena[c.ID] = c
	}

	placed := make(map[catalog.CoverageID]bool, len(coverages))
	var levels [][]catalog.Coverage

	remaining := len(coverages)
	for remaining > 0 {
		var level []catalog.Coverage
		for _, c := range coverages {
			if placed[c.ID] {
				continue
			}
			parent := c.ParentCoverageID
			_, parentInProduct := arena[parent]
			if parent == "" || !parentInProduct || placed[parent] {
				level = append(level, c)
			}
		}
		if len(level) == 0 {
			// Every unplaced coverage waits on another unplaced one: a cycle.
			break
		}
		for _, c := range level {
			placed[c.ID] = true
		}
		levels = append(levels, level)
		remaining -= len(level)
	}

	var cyclic []catalog.Coverage
	for _, c := range coverages {
		if !placed[c.ID] {
			cyclic = append(cyclic, c)
		}
	}
	return levels, cyclic
}
