// Package store provides RecordStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/catalog-engine/catalog"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	products    map[catalog.ProductID]catalog.Product
	coverages   map[coverageKey]catalog.Coverage
	limits      map[coverageKey]map[catalog.LimitID]catalog.Limit
	deductibles map[coverageKey]map[catalog.DeductibleID]catalog.Deductible

	// failNext injects a transient fault into the next Apply call.
	// Tests use FailNextApply to exercise retry paths.
	failNext int
}

type coverageKey struct {
	ProductID  catalog.ProductID
	CoverageID catalog.CoverageID
}

func NewMemory() *Memory {
	return &Memory{
		products:    make(map[catalog.ProductID]catalog.Product),
		coverages:   make(map[coverageKey]catalog.Coverage),
		limits:      make(map[coverageKey]map[catalog.LimitID]catalog.Limit),
		deductibles: make(map[coverageKey]map[catalog.DeductibleID]catalog.Deductible),
	}
}

// FailNextApply makes the next n Apply calls fail with ErrStoreUnavailable.
func (m *Memory) FailNextApply(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) ListProducts(_ context.Context) ([]catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]catalog.Product, 0, len(m.products))
	for _, p := range m.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) GetProduct(_ context.Context, productID catalog.ProductID) (catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[productID]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (m *Memory) ListCoverages(_ context.Context, productID catalog.ProductID) ([]catalog.Coverage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []catalog.Coverage
	for k, c := range m.coverages {
		if k.ProductID == productID {
			result = append(result, copyCoverage(c))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) GetCoverage(_ context.Context, productID catalog.ProductID, coverageID catalog.CoverageID) (catalog.Coverage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.coverages[coverageKey{productID, coverageID}]
	if !ok {
		return catalog.Coverage{}, catalog.ErrCoverageNotFound
	}
	return copyCoverage(c), nil
}

func (m *Memory) ListLimits(_ context.Context, productID catalog.ProductID, coverageID catalog.CoverageID) ([]catalog.Limit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]catalog.Limit, 0)
	for _, l := range m.limits[coverageKey{productID, coverageID}] {
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) ListDeductibles(_ context.Context, productID catalog.ProductID, coverageID catalog.CoverageID) ([]catalog.Deductible, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]catalog.Deductible, 0)
	for _, d := range m.deductibles[coverageKey{productID, coverageID}] {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// AUTHORING WRITES
// =============================================================================

func (m *Memory) PutProduct(_ context.Context, p catalog.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *Memory) PutCoverage(_ context.Context, c catalog.Coverage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coverages[coverageKey{c.ProductID, c.ID}] = copyCoverage(c)
	return nil
}

// =============================================================================
// ATOMIC BATCH
// =============================================================================

// Apply commits the batch under a single lock hold. The coverage and its
// child maps are snapshotted first so a mid-batch failure restores the
// pre-batch state exactly.
func (m *Memory) Apply(_ context.Context, batch catalog.CoverageBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext > 0 {
		m.failNext--
		return catalog.ErrStoreUnavailable
	}

	k := coverageKey{batch.ProductID, batch.CoverageID}
	c, ok := m.coverages[k]
	if !ok {
		return catalog.ErrCoverageNotFound
	}

	// Snapshot for rollback
	prevCoverage := copyCoverage(c)
	prevLimits := copyLimits(m.limits[k])
	prevDeductibles := copyDeductibles(m.deductibles[k])

	if err := m.applyLocked(k, &c, batch); err != nil {
		m.coverages[k] = prevCoverage
		m.limits[k] = prevLimits
		m.deductibles[k] = prevDeductibles
		return err
	}
	m.coverages[k] = c
	return nil
}

func (m *Memory) applyLocked(k coverageKey, c *catalog.Coverage, batch catalog.CoverageBatch) error {
	if len(batch.PutLimits) > 0 || len(batch.DeleteLimits) > 0 {
		if m.limits[k] == nil {
			m.limits[k] = make(map[catalog.LimitID]catalog.Limit)
		}
		for _, id := range batch.DeleteLimits {
			if _, ok := m.limits[k][id]; !ok {
				return catalog.ErrLimitNotFound
			}
			delete(m.limits[k], id)
		}
		for _, l := range batch.PutLimits {
			m.limits[k][l.ID] = l
		}
	}

	if len(batch.PutDeductibles) > 0 || len(batch.DeleteDeductibles) > 0 {
		if m.deductibles[k] == nil {
			m.deductibles[k] = make(map[catalog.DeductibleID]catalog.Deductible)
		}
		for _, id := range batch.DeleteDeductibles {
			if _, ok := m.deductibles[k][id]; !ok {
				return catalog.ErrDeductibleNotFound
			}
			delete(m.deductibles[k], id)
		}
		for _, d := range batch.PutDeductibles {
			m.deductibles[k][d.ID] = d
		}
	}

	if batch.SetMigratedAt != nil {
		t := *batch.SetMigratedAt
		c.MigratedAt = &t
	}
	if batch.ClearMigratedAt {
		c.MigratedAt = nil
	}
	if batch.SetLegacyLimits != nil {
		c.LegacyLimits = append([]string(nil), (*batch.SetLegacyLimits)...)
	}
	if batch.SetLegacyDeductibles != nil {
		c.LegacyDeductibles = append([]string(nil), (*batch.SetLegacyDeductibles)...)
	}
	return nil
}

// =============================================================================
// COPY HELPERS - Readers never share slices with the store
// =============================================================================

func copyCoverage(c catalog.Coverage) catalog.Coverage {
	out := c
	out.LegacyLimits = append([]string(nil), c.LegacyLimits...)
	out.LegacyDeductibles = append([]string(nil), c.LegacyDeductibles...)
	out.Exclusions = append([]catalog.Exclusion(nil), c.Exclusions...)
	out.Conditions = append([]catalog.Condition(nil), c.Conditions...)
	out.RequiredCoverages = append([]catalog.CoverageID(nil), c.RequiredCoverages...)
	out.IncompatibleCoverages = append([]catalog.CoverageID(nil), c.IncompatibleCoverages...)
	if c.MigratedAt != nil {
		t := *c.MigratedAt
		out.MigratedAt = &t
	}
	return out
}

func copyLimits(in map[catalog.LimitID]catalog.Limit) map[catalog.LimitID]catalog.Limit {
	if in == nil {
		return nil
	}
	out := make(map[catalog.LimitID]catalog.Limit, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyDeductibles(in map[catalog.DeductibleID]catalog.Deductible) map[catalog.DeductibleID]catalog.Deductible {
	if in == nil {
		return nil
	}
	out := make(map[catalog.DeductibleID]catalog.Deductible, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
