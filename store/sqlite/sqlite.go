/*
Package sqlite provides a SQLite-backed implementation of catalog.RecordStore.

PURPOSE:
  Persists the coverage hierarchy (products / coverages / limits /
  deductibles) in SQLite. In production, the same patterns apply to any
  store with transactions - only dialect differences.

PATH-ADDRESSED LAYOUT:
  The hierarchical record paths map onto tables keyed by their path
  components:
    products(id)
    coverages(product_id, id)
    limits(product_id, coverage_id, id)
    deductibles(product_id, coverage_id, id)
  Inline lists (legacy arrays, exclusions, conditions, dependency edges)
  are stored as JSON columns on the coverage row, mirroring how a
  document store keeps them on the parent document.

ATOMIC BATCHES:
  Apply() runs each CoverageBatch inside one SQL transaction. Child-record
  puts/deletes, the legacy-array refresh, and the MigratedAt marker commit
  or roll back together - the compat layer and migration engine depend on
  never observing half a batch.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, plus WAL mode:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery
  A busy/locked database surfaces as catalog.ErrStoreUnavailable so the
  migration engine's retry loop can handle it.

USAGE:
  store, err := sqlite.New("./data/catalog.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - catalog/store.go: interface definition
  - catalog/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/catalog-engine/catalog"
)

// Store implements catalog.RecordStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		line TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS coverages (
		product_id TEXT NOT NULL,
		id TEXT NOT NULL,
		parent_coverage_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		legacy_limits_json TEXT NOT NULL DEFAULT '[]',
		legacy_deductibles_json TEXT NOT NULL DEFAULT '[]',
		migrated_at TEXT,
		exclusions_json TEXT NOT NULL DEFAULT '[]',
		conditions_json TEXT NOT NULL DEFAULT '[]',
		required_json TEXT NOT NULL DEFAULT '[]',
		incompatible_json TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (product_id, id)
	);

	CREATE TABLE IF NOT EXISTS limits (
		product_id TEXT NOT NULL,
		coverage_id TEXT NOT NULL,
		id TEXT NOT NULL,
		limit_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		display_value TEXT NOT NULL DEFAULT '',
		is_default INTEGER NOT NULL DEFAULT 0,
		parent_limit_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (product_id, coverage_id, id),
		FOREIGN KEY (product_id, coverage_id) REFERENCES coverages(product_id, id)
	);

	CREATE TABLE IF NOT EXISTS deductibles (
		product_id TEXT NOT NULL,
		coverage_id TEXT NOT NULL,
		id TEXT NOT NULL,
		deductible_type TEXT NOT NULL,
		amount TEXT,
		percentage TEXT,
		minimum_retained TEXT,
		maximum_retained TEXT,
		display_value TEXT NOT NULL DEFAULT '',
		is_default INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (product_id, coverage_id, id),
		FOREIGN KEY (product_id, coverage_id) REFERENCES coverages(product_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_coverages_parent
		ON coverages(product_id, parent_coverage_id);
	CREATE INDEX IF NOT EXISTS idx_coverages_migrated
		ON coverages(product_id, migrated_at) WHERE migrated_at IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// READS (catalog.RecordStore interface)
// =============================================================================

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, line FROM products ORDER BY id`)
	if err != nil {
		return nil, translateErr(wrapStoreErr("list-products", "", "", err))
	}
	defer rows.Close()

	var result []catalog.Product
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Line); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, productID catalog.ProductID) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p catalog.Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, line FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.Line)
	if err == sql.ErrNoRows {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	if err != nil {
		return catalog.Product{}, translateErr(wrapStoreErr("get-product", productID, "", err))
	}
	return p, nil
}

const coverageColumns = `product_id, id, parent_coverage_id, name,
	legacy_limits_json, legacy_deductibles_json, migrated_at,
	exclusions_json, conditions_json, required_json, incompatible_json`

func (s *Store) ListCoverages(ctx context.Context, productID catalog.ProductID) ([]catalog.Coverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+coverageColumns+` FROM coverages WHERE product_id = ? ORDER BY id`, productID)
	if err != nil {
		return nil, translateErr(wrapStoreErr("list-coverages", productID, "", err))
	}
	defer rows.Close()

	var result []catalog.Coverage
	for rows.Next() {
		c, err := scanCoverage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) GetCoverage(ctx context.Context, productID catalog.ProductID, coverageID catalog.CoverageID) (catalog.Coverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+coverageColumns+` FROM coverages WHERE product_id = ? AND id = ?`,
		productID, coverageID)
	c, err := scanCoverage(row)
	if err == sql.ErrNoRows {
		return catalog.Coverage{}, catalog.ErrCoverageNotFound
	}
	if err != nil {
		return catalog.Coverage{}, translateErr(wrapStoreErr("get-coverage", productID, coverageID, err))
	}
	return c, nil
}

func (s *Store) ListLimits(ctx context.Context, productID catalog.ProductID, coverageID catalog.CoverageID) ([]catalog.Limit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, limit_type, amount, display_value, is_default, parent_limit_id
		FROM limits WHERE product_id = ? AND coverage_id = ? ORDER BY id`,
		productID, coverageID)
	if err != nil {
		return nil, translateErr(wrapStoreErr("list-limits", productID, coverageID, err))
	}
	defer rows.Close()

	result := make([]catalog.Limit, 0)
	for rows.Next() {
		l := catalog.Limit{ProductID: productID, CoverageID: coverageID}
		var amount string
		if err := rows.Scan(&l.ID, &l.Type, &amount, &l.DisplayValue, &l.IsDefault, &l.ParentLimitID); err != nil {
			return nil, err
		}
		l.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt limit amount %q: %w", amount, err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *Store) ListDeductibles(ctx context.Context, productID catalog.ProductID, coverageID catalog.CoverageID) ([]catalog.Deductible, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deductible_type, amount, percentage, minimum_retained, maximum_retained,
		       display_value, is_default
		FROM deductibles WHERE product_id = ? AND coverage_id = ? ORDER BY id`,
		productID, coverageID)
	if err != nil {
		return nil, translateErr(wrapStoreErr("list-deductibles", productID, coverageID, err))
	}
	defer rows.Close()

	result := make([]catalog.Deductible, 0)
	for rows.Next() {
		d := catalog.Deductible{ProductID: productID, CoverageID: coverageID}
		var amount, percentage, minRetained, maxRetained sql.NullString
		if err := rows.Scan(&d.ID, &d.Type, &amount, &percentage, &minRetained, &maxRetained,
			&d.DisplayValue, &d.IsDefault); err != nil {
			return nil, err
		}
		if d.Amount, err = nullDecimal(amount); err != nil {
			return nil, err
		}
		if d.Percentage, err = nullDecimal(percentage); err != nil {
			return nil, err
		}
		if d.MinimumRetained, err = nullDecimal(minRetained); err != nil {
			return nil, err
		}
		if d.MaximumRetained, err = nullDecimal(maxRetained); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// =============================================================================
// AUTHORING WRITES
// =============================================================================

func (s *Store) PutProduct(ctx context.Context, p catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, line) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, line = excluded.line`,
		p.ID, p.Name, p.Line)
	if err != nil {
		return translateErr(wrapStoreErr("put-product", p.ID, "", err))
	}
	return nil
}

func (s *Store) PutCoverage(ctx context.Context, c catalog.Coverage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	legacyLimits, _ := json.Marshal(emptyIfNil(c.LegacyLimits))
	legacyDeductibles, _ := json.Marshal(emptyIfNil(c.LegacyDeductibles))
	exclusions, _ := json.Marshal(c.Exclusions)
	conditions, _ := json.Marshal(c.Conditions)
	required, _ := json.Marshal(c.RequiredCoverages)
	incompatible, _ := json.Marshal(c.IncompatibleCoverages)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coverages
		(product_id, id, parent_coverage_id, name,
		 legacy_limits_json, legacy_deductibles_json, migrated_at,
		 exclusions_json, conditions_json, required_json, incompatible_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id, id) DO UPDATE SET
			parent_coverage_id = excluded.parent_coverage_id,
			name = excluded.name,
			legacy_limits_json = excluded.legacy_limits_json,
			legacy_deductibles_json = excluded.legacy_deductibles_json,
			migrated_at = excluded.migrated_at,
			exclusions_json = excluded.exclusions_json,
			conditions_json = excluded.conditions_json,
			required_json = excluded.required_json,
			incompatible_json = excluded.incompatible_json`,
		c.ProductID, c.ID, c.ParentCoverageID, c.Name,
		string(legacyLimits), string(legacyDeductibles), nullTime(c.MigratedAt),
		string(exclusions), string(conditions), string(required), string(incompatible))
	if err != nil {
		return translateErr(wrapStoreErr("put-coverage", c.ProductID, c.ID, err))
	}
	return nil
}

// =============================================================================
// ATOMIC BATCH
// =============================================================================

// Apply commits a CoverageBatch in one SQL transaction.
func (s *Store) Apply(ctx context.Context, batch catalog.CoverageBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translateErr(wrapStoreErr("apply", batch.ProductID, batch.CoverageID, err))
	}
	defer tx.Rollback()

	// The coverage row must exist before any child mutation lands.
	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM coverages WHERE product_id = ? AND id = ?`,
		batch.ProductID, batch.CoverageID).Scan(&one)
	if err == sql.ErrNoRows {
		return catalog.ErrCoverageNotFound
	}
	if err != nil {
		return translateErr(wrapStoreErr("apply", batch.ProductID, batch.CoverageID, err))
	}

	if err := s.applyTx(ctx, tx, batch); err != nil {
		return translateErr(err)
	}
	if err := tx.Commit(); err != nil {
		return translateErr(wrapStoreErr("apply", batch.ProductID, batch.CoverageID, err))
	}
	return nil
}

func (s *Store) applyTx(ctx context.Context, tx *sql.Tx, batch catalog.CoverageBatch) error {
	for _, id := range batch.DeleteLimits {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM limits WHERE product_id = ? AND coverage_id = ? AND id = ?`,
			batch.ProductID, batch.CoverageID, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return catalog.ErrLimitNotFound
		}
	}
	for _, id := range batch.DeleteDeductibles {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM deductibles WHERE product_id = ? AND coverage_id = ? AND id = ?`,
			batch.ProductID, batch.CoverageID, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return catalog.ErrDeductibleNotFound
		}
	}

	for _, l := range batch.PutLimits {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO limits
			(product_id, coverage_id, id, limit_type, amount, display_value, is_default, parent_limit_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(product_id, coverage_id, id) DO UPDATE SET
				limit_type = excluded.limit_type,
				amount = excluded.amount,
				display_value = excluded.display_value,
				is_default = excluded.is_default,
				parent_limit_id = excluded.parent_limit_id`,
			batch.ProductID, batch.CoverageID, l.ID, l.Type, l.Amount.String(),
			l.DisplayValue, l.IsDefault, l.ParentLimitID)
		if err != nil {
			return err
		}
	}
	for _, d := range batch.PutDeductibles {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO deductibles
			(product_id, coverage_id, id, deductible_type, amount, percentage,
			 minimum_retained, maximum_retained, display_value, is_default)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(product_id, coverage_id, id) DO UPDATE SET
				deductible_type = excluded.deductible_type,
				amount = excluded.amount,
				percentage = excluded.percentage,
				minimum_retained = excluded.minimum_retained,
				maximum_retained = excluded.maximum_retained,
				display_value = excluded.display_value,
				is_default = excluded.is_default`,
			batch.ProductID, batch.CoverageID, d.ID, d.Type,
			decimalString(d.Amount), decimalString(d.Percentage),
			decimalString(d.MinimumRetained), decimalString(d.MaximumRetained),
			d.DisplayValue, d.IsDefault)
		if err != nil {
			return err
		}
	}

	sets := []string{}
	args := []any{}
	if batch.SetMigratedAt != nil {
		sets = append(sets, "migrated_at = ?")
		args = append(args, batch.SetMigratedAt.UTC().Format(time.RFC3339Nano))
	}
	if batch.ClearMigratedAt {
		sets = append(sets, "migrated_at = NULL")
	}
	if batch.SetLegacyLimits != nil {
		b, _ := json.Marshal(emptyIfNil(*batch.SetLegacyLimits))
		sets = append(sets, "legacy_limits_json = ?")
		args = append(args, string(b))
	}
	if batch.SetLegacyDeductibles != nil {
		b, _ := json.Marshal(emptyIfNil(*batch.SetLegacyDeductibles))
		sets = append(sets, "legacy_deductibles_json = ?")
		args = append(args, string(b))
	}
	if len(sets) > 0 {
		args = append(args, batch.ProductID, batch.CoverageID)
		_, err := tx.ExecContext(ctx,
			`UPDATE coverages SET `+strings.Join(sets, ", ")+` WHERE product_id = ? AND id = ?`,
			args...)
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SCAN + NULL HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoverage(row rowScanner) (catalog.Coverage, error) {
	var c catalog.Coverage
	var legacyLimits, legacyDeductibles, exclusions, conditions, required, incompatible string
	var migratedAt sql.NullString

	err := row.Scan(&c.ProductID, &c.ID, &c.ParentCoverageID, &c.Name,
		&legacyLimits, &legacyDeductibles, &migratedAt,
		&exclusions, &conditions, &required, &incompatible)
	if err != nil {
		return catalog.Coverage{}, err
	}

	if err := json.Unmarshal([]byte(legacyLimits), &c.LegacyLimits); err != nil {
		return catalog.Coverage{}, fmt.Errorf("corrupt legacy limits: %w", err)
	}
	if err := json.Unmarshal([]byte(legacyDeductibles), &c.LegacyDeductibles); err != nil {
		return catalog.Coverage{}, fmt.Errorf("corrupt legacy deductibles: %w", err)
	}
	if err := json.Unmarshal([]byte(exclusions), &c.Exclusions); err != nil {
		return catalog.Coverage{}, fmt.Errorf("corrupt exclusions: %w", err)
	}
	if err := json.Unmarshal([]byte(conditions), &c.Conditions); err != nil {
		return catalog.Coverage{}, fmt.Errorf("corrupt conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(required), &c.RequiredCoverages); err != nil {
		return catalog.Coverage{}, fmt.Errorf("corrupt required coverages: %w", err)
	}
	if err := json.Unmarshal([]byte(incompatible), &c.IncompatibleCoverages); err != nil {
		return catalog.Coverage{}, fmt.Errorf("corrupt incompatible coverages: %w", err)
	}

	if migratedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, migratedAt.String)
		if err != nil {
			return catalog.Coverage{}, fmt.Errorf("corrupt migrated_at: %w", err)
		}
		c.MigratedAt = &t
	}
	return c, nil
}

func nullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, fmt.Errorf("corrupt decimal %q: %w", v.String, err)
	}
	return &d, nil
}

func decimalString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func wrapStoreErr(op string, productID catalog.ProductID, coverageID catalog.CoverageID, err error) error {
	return &catalog.StoreError{Op: op, ProductID: productID, CoverageID: coverageID, Err: err}
}

// translateErr maps driver failures onto the catalog sentinels so the
// migration engine's backoff loop can retry them. Busy/locked means a
// concurrent writer holds the database, which is a batch conflict; the
// rest of the transient family stays ErrStoreUnavailable.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", catalog.ErrBatchConflict, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
		}
		return err
	}
	// database/sql can surface lock contention as plain text.
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return fmt.Errorf("%w: %v", catalog.ErrBatchConflict, err)
	}
	return err
}
