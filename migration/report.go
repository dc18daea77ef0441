/*
report.go - Structured migration reporting

PURPOSE:
  Accumulates running totals, per-coverage outcomes, and per-entry
  warnings while a migration (or rollback) runs, and serializes to JSON
  for operators and tooling. A long run logs incrementally; the report is
  the machine-parsable summary emitted at the end.

DRY-RUN EQUIVALENCE:
  In dry-run mode the report also carries the full set of records the
  engine WOULD have created. A dry-run followed by a live run on the same
  input must produce a planned set equal to the records actually
  persisted - tests pin that property.

CONCURRENCY:
  Coverages migrate concurrently, so all mutation goes through the
  mutex-guarded add* methods.
*/
package migration

import (
	"sync"
	"time"

	"github.com/warp/catalog-engine/catalog"
)

// =============================================================================
// OUTCOMES AND WARNINGS
// =============================================================================

// CoverageStatus is the terminal state of one coverage within a run.
type CoverageStatus string

const (
	StatusMigrated CoverageStatus = "migrated"
	StatusPlanned  CoverageStatus = "planned" // dry-run counterpart of migrated
	StatusSkipped  CoverageStatus = "skipped" // MigratedAt set, or child records already exist
	StatusFailed   CoverageStatus = "failed"
)

// CoverageOutcome records what happened to one coverage.
type CoverageOutcome struct {
	ProductID          catalog.ProductID  `json:"productId"`
	CoverageID         catalog.CoverageID `json:"coverageId"`
	Status             CoverageStatus     `json:"status"`
	LimitsCreated      int                `json:"limitsCreated"`
	DeductiblesCreated int                `json:"deductiblesCreated"`
	Error              string             `json:"error,omitempty"`
}

// Warning records one legacy entry the engine could not convert.
// Non-fatal: the coverage continues without that record.
type Warning struct {
	CoverageID catalog.CoverageID `json:"coverageId"`
	EntryIndex int                `json:"entryIndex"`
	RawValue   string             `json:"rawValue"`
	Reason     string             `json:"reason"`
}

// =============================================================================
// REPORT
// =============================================================================

// Report is the structured summary of a migration run.
type Report struct {
	mu sync.Mutex

	Mode       Mode      `json:"mode"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	ProductsProcessed  int `json:"productsProcessed"`
	CoveragesProcessed int `json:"coveragesProcessed"`
	CoveragesMigrated  int `json:"coveragesMigrated"`
	CoveragesSkipped   int `json:"coveragesSkipped"`
	CoveragesFailed    int `json:"coveragesFailed"`

	LimitsCreated      int `json:"limitsCreated"`
	DeductiblesCreated int `json:"deductiblesCreated"`

	Outcomes []CoverageOutcome `json:"outcomes"`
	Warnings []Warning         `json:"warnings"`

	// Populated in dry-run mode only: the records a live run would create.
	PlannedLimits      []catalog.Limit      `json:"plannedLimits,omitempty"`
	PlannedDeductibles []catalog.Deductible `json:"plannedDeductibles,omitempty"`
}

func newReport(mode Mode, now time.Time) *Report {
	return &Report{Mode: mode, StartedAt: now}
}

func (r *Report) addProduct() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ProductsProcessed++
}

func (r *Report) addOutcome(o CoverageOutcome, warnings []Warning) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.CoveragesProcessed++
	switch o.Status {
	case StatusMigrated, StatusPlanned:
		r.CoveragesMigrated++
		r.LimitsCreated += o.LimitsCreated
		r.DeductiblesCreated += o.DeductiblesCreated
	case StatusSkipped:
		r.CoveragesSkipped++
	case StatusFailed:
		r.CoveragesFailed++
	}
	r.Outcomes = append(r.Outcomes, o)
	r.Warnings = append(r.Warnings, warnings...)
}

func (r *Report) addPlanned(limits []catalog.Limit, deductibles []catalog.Deductible) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PlannedLimits = append(r.PlannedLimits, limits...)
	r.PlannedDeductibles = append(r.PlannedDeductibles, deductibles...)
}

func (r *Report) finish(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = now
}

// =============================================================================
// ROLLBACK REPORT
// =============================================================================

// RollbackReport summarizes a rollback invocation.
type RollbackReport struct {
	DryRun     bool      `json:"dryRun"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	CoveragesRolledBack int `json:"coveragesRolledBack"`
	CoveragesSkipped    int `json:"coveragesSkipped"` // not migrated, nothing to do
	LimitsDeleted       int `json:"limitsDeleted"`
	DeductiblesDeleted  int `json:"deductiblesDeleted"`

	Outcomes []RollbackOutcome `json:"outcomes"`
}

// RollbackOutcome records one coverage's rollback.
type RollbackOutcome struct {
	ProductID          catalog.ProductID  `json:"productId"`
	CoverageID         catalog.CoverageID `json:"coverageId"`
	RolledBack         bool               `json:"rolledBack"`
	LimitsDeleted      int                `json:"limitsDeleted"`
	DeductiblesDeleted int                `json:"deductiblesDeleted"`
}
