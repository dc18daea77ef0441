/*
store.go - Persistence interface for the coverage hierarchy

PURPOSE:
  Defines the interface between the domain logic and the hierarchical
  record store. Records are addressed by path:

    products/{productId}
      coverages/{coverageId}
        limits/{limitId}
        deductibles/{deductibleId}

  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage; the migration and compat layers are written against this
  interface only.

ATOMIC BATCHES:
  Apply() is the single write primitive for coverage attributes. Every
  mutation it carries is scoped to ONE coverage's subtree (child records,
  legacy arrays, migration marker) and commits or rolls back as a unit.
  This is what lets:
    - writeLimit update the child collection AND refresh the legacy array
      without a reader ever seeing half the write
    - the migration engine persist a whole coverage's synthesized records
      plus its MigratedAt marker all-or-nothing
  Two batches for DIFFERENT coverages never contend; two batches for the
  SAME coverage are serialized by the store.

READ SNAPSHOTS:
  List methods return copies ordered deterministically (limits and
  deductibles by ID) so callers can diff results across runs.

IMPLEMENTATIONS:
  - catalog/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go:  production SQLite

SEE ALSO:
  - compat/: read/write through this interface
  - migration/: batch-per-coverage conversion
*/
package catalog

import (
	"context"
	"time"
)

// =============================================================================
// RECORD STORE - Path-addressed persistence
// =============================================================================

// RecordStore is the hierarchical document store the catalog persists to.
type RecordStore interface {
	// ListProducts returns all products, ordered by ID.
	ListProducts(ctx context.Context) ([]Product, error)

	// GetProduct returns one product. ErrProductNotFound if missing.
	GetProduct(ctx context.Context, productID ProductID) (Product, error)

	// ListCoverages returns a product's coverages, ordered by ID.
	ListCoverages(ctx context.Context, productID ProductID) ([]Coverage, error)

	// GetCoverage returns one coverage. ErrCoverageNotFound if missing.
	GetCoverage(ctx context.Context, productID ProductID, coverageID CoverageID) (Coverage, error)

	// ListLimits returns a coverage's child limit records, ordered by ID.
	// Empty (not an error) when none exist.
	ListLimits(ctx context.Context, productID ProductID, coverageID CoverageID) ([]Limit, error)

	// ListDeductibles returns a coverage's child deductible records, ordered by ID.
	ListDeductibles(ctx context.Context, productID ProductID, coverageID CoverageID) ([]Deductible, error)

	// PutProduct creates or replaces a product record.
	// Used by product-authoring flows and test fixtures.
	PutProduct(ctx context.Context, p Product) error

	// PutCoverage creates or replaces a coverage record (its scalar fields
	// and inline lists; child records are touched only via Apply).
	PutCoverage(ctx context.Context, c Coverage) error

	// Apply commits a CoverageBatch atomically. All-or-nothing.
	// ErrCoverageNotFound if the batch's coverage doesn't exist.
	Apply(ctx context.Context, batch CoverageBatch) error
}

// =============================================================================
// COVERAGE BATCH - Atomic mutation of one coverage's subtree
// =============================================================================

// CoverageBatch carries every mutation for a single coverage that must
// land together. Nil/empty fields are untouched.
type CoverageBatch struct {
	ProductID  ProductID
	CoverageID CoverageID

	PutLimits      []Limit
	PutDeductibles []Deductible

	DeleteLimits      []LimitID
	DeleteDeductibles []DeductibleID

	// SetMigratedAt stamps the migration marker; ClearMigratedAt removes it.
	// Setting both is a caller bug and Apply may reject it.
	SetMigratedAt   *time.Time
	ClearMigratedAt bool

	// Legacy-array refresh (dual-write). A nil pointer leaves the array
	// alone; a pointer to an empty slice overwrites it with empty.
	SetLegacyLimits      *[]string
	SetLegacyDeductibles *[]string
}

// Empty reports whether the batch carries no mutations.
func (b CoverageBatch) Empty() bool {
	return len(b.PutLimits) == 0 && len(b.PutDeductibles) == 0 &&
		len(b.DeleteLimits) == 0 && len(b.DeleteDeductibles) == 0 &&
		b.SetMigratedAt == nil && !b.ClearMigratedAt &&
		b.SetLegacyLimits == nil && b.SetLegacyDeductibles == nil
}
