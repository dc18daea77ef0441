/*
handlers.go - HTTP API handlers for the coverage catalog

PURPOSE:
  Exposes the catalog and migration engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.
  All reads and writes to coverage attributes go through the compat
  accessors so clients see one consistent view regardless of how far
  migration has progressed.

ENDPOINTS:
  Products:
    GET    /api/products                       List all products
    POST   /api/products                       Create product
    GET    /api/products/{id}                  Get product details

  Coverages:
    GET    /api/products/{id}/coverages        List coverages
    POST   /api/products/{id}/coverages        Create/replace coverage
    GET    /api/products/{id}/coverages/{cid}  Get coverage + representation

  Attributes (dual-read, dual-write aware):
    GET    /api/products/{id}/coverages/{cid}/limits
    POST   /api/products/{id}/coverages/{cid}/limits
    DELETE /api/products/{id}/coverages/{cid}/limits/{lid}
    GET    /api/products/{id}/coverages/{cid}/deductibles
    POST   /api/products/{id}/coverages/{cid}/deductibles
    DELETE /api/products/{id}/coverages/{cid}/deductibles/{did}

  Admin:
    POST   /api/admin/migrate                  Run the migration engine
    POST   /api/admin/rollback                 Roll back to legacy arrays

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (accessors, engine)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, malformed amounts
  - 404: Product/coverage/record not found
  - 422: Validation rejections (structured violation list)
  - 503: Record store unavailable
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/catalog-engine/catalog"
	"github.com/warp/catalog-engine/compat"
	"github.com/warp/catalog-engine/migration"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     catalog.RecordStore
	Accessors *compat.Accessors
	Migration migration.Options
	Log       *zap.Logger
}

// NewHandler creates a new handler over the given store. Migration runs
// triggered through the admin endpoints inherit opts as their defaults.
func NewHandler(store catalog.RecordStore, accessors *compat.Accessors, opts migration.Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:     store,
		Accessors: accessors,
		Migration: opts,
		Log:       log,
	}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns all products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context())
	if err != nil {
		writeStoreError(w, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = ProductDTO{ID: string(p.ID), Name: p.Name, Line: p.Line}
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := catalog.ProductID(chi.URLParam(r, "id"))

	p, err := h.Store.GetProduct(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to get product", err)
		return
	}

	writeJSON(w, http.StatusOK, ProductDTO{ID: string(p.ID), Name: p.Name, Line: p.Line})
}

// CreateProduct creates a new product.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	p := catalog.Product{ID: catalog.ProductID(req.ID), Name: req.Name, Line: req.Line}
	if err := h.Store.PutProduct(r.Context(), p); err != nil {
		writeStoreError(w, "Failed to create product", err)
		return
	}

	writeJSON(w, http.StatusCreated, ProductDTO{ID: string(p.ID), Name: p.Name, Line: p.Line})
}

// =============================================================================
// COVERAGE HANDLERS
// =============================================================================

// ListCoverages returns all coverages for a product, each annotated with
// its current representation state.
func (h *Handler) ListCoverages(w http.ResponseWriter, r *http.Request) {
	productID := catalog.ProductID(chi.URLParam(r, "id"))

	coverages, err := h.Store.ListCoverages(r.Context(), productID)
	if err != nil {
		writeStoreError(w, "Failed to list coverages", err)
		return
	}

	dtos := make([]CoverageDTO, 0, len(coverages))
	for _, c := range coverages {
		repr, err := h.Accessors.Representation(r.Context(), productID, c.ID)
		if err != nil {
			writeStoreError(w, "Failed to resolve representation", err)
			return
		}
		dtos = append(dtos, toCoverageDTO(c, repr))
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetCoverage returns a single coverage with its representation state.
func (h *Handler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	productID := catalog.ProductID(chi.URLParam(r, "id"))
	coverageID := catalog.CoverageID(chi.URLParam(r, "cid"))

	c, err := h.Store.GetCoverage(r.Context(), productID, coverageID)
	if err != nil {
		writeStoreError(w, "Failed to get coverage", err)
		return
	}

	repr, err := h.Accessors.Representation(r.Context(), productID, coverageID)
	if err != nil {
		writeStoreError(w, "Failed to resolve representation", err)
		return
	}

	writeJSON(w, http.StatusOK, toCoverageDTO(c, repr))
}

// CreateCoverage creates or replaces a coverage.
func (h *Handler) CreateCoverage(w http.ResponseWriter, r *http.Request) {
	productID := catalog.ProductID(chi.URLParam(r, "id"))

	var req CreateCoverageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	c := catalog.Coverage{
		ProductID:             productID,
		ID:                    catalog.CoverageID(req.ID),
		ParentCoverageID:      catalog.CoverageID(req.ParentCoverageID),
		Name:                  req.Name,
		LegacyLimits:          req.LegacyLimits,
		LegacyDeductibles:     req.LegacyDeductibles,
		RequiredCoverages:     toCoverageIDs(req.RequiredCoverages),
		IncompatibleCoverages: toCoverageIDs(req.IncompatibleCoverages),
	}

	if violations := catalog.ValidateCoverage(c); len(violations) > 0 {
		writeValidationError(w, violations)
		return
	}

	if err := h.Store.PutCoverage(r.Context(), c); err != nil {
		writeStoreError(w, "Failed to save coverage", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCoverageDTO(c, catalog.ResolveRepresentation(c, 0, 0)))
}

// =============================================================================
// LIMIT HANDLERS
// =============================================================================

// ListLimits returns limits through the compat read path. Coverages that
// have not migrated yet return synthetic records parsed from the legacy
// display array.
func (h *Handler) ListLimits(w http.ResponseWriter, r *http.Request) {
	productID := catalog.ProductID(chi.URLParam(r, "id"))
	coverageID := catalog.CoverageID(chi.URLParam(r, "cid"))

	limits, err := h.Accessors.ReadLimits(r.Context(), productID, coverageID)
	if err != nil {
		writeStoreError(w, "Failed to read limits", err)
		return
	}

	writeJSON(w, http.StatusOK, toLimitDTOs(limits))
}

// WriteLimit creates or updates a limit through the compat write path.
func (h *Handler) WriteLimit(w http.ResponseWriter, r *http.Request) {
	productID := catalog.ProductID(chi.URLParam(r, "id"))
	coverageID := catalog.CoverageID(chi.URLParam(r, "cid"))

	var req WriteLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	l := catalog.Limit{
		ID:            catalog.LimitID(req.ID),
		ProductID:     productID,
		CoverageID:    coverageID,
		Type:          catalog.LimitType(req.Type),
		Amount:        amount,
		IsDefault:     req.IsDefault,
		ParentLimitID: catalog.LimitID(req.ParentLimitID),
	}
	if l.ID == "" {
		l.ID = catalog.LimitID(uuid.NewString())
	}

	if err := h.Accessors.WriteLimit(r.Context(), l); err != nil {
		writeWriteError(w, "Failed to write limit", err)
		return
	}

	l.DisplayValue = catalog.RenderLimit(l)
	writeJSON(w, http.StatusCreated, toLimitDTO(l))
}

// DeleteLimit removes a limit through the compat write path.
func (h *Handler) DeleteLimit(w http.ResponseWriter, r *http.Request) {
	productID := catalog.ProductID(chi.URLParam(r, "id"))
	coverageID := catalog.CoverageID(chi.URLParam(r, "cid"))
	limitID := catalog.LimitID(chi.URLParam(r, "lid"))

	if err := h.Accessors.DeleteLimit(r.Context(), productID, coverageID, limitID); err != nil {
		writeWriteError(w, "Failed to delete limit", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DEDUCTIBLE HANDLERS
// =============================================================================

// ListDeductibles returns deductibles through the compat read path.
func (h *Handler) ListDeductibles(w http.ResponseWriter, r *http.Request) {
	productID := catalog.ProductID(chi.URLParam(r, "id"))
	coverageID := catalog.CoverageID(chi.URLParam(r, "cid"))

	deductibles, err := h.Accessors.ReadDeductibles(r.Context(), productID, coverageID)
	if err != nil {
		writeStoreError(w, "Failed to read deductibles", err)
		return
	}

	writeJSON(w, http.StatusOK, toDeductibleDTOs(deductibles))
}

// WriteDeductible creates or updates a deductible through the compat
// write path.
func (h *Handler) WriteDeductible(w http.ResponseWriter, r *http.Request) {
	productID := catalog.ProductID(chi.URLParam(r, "id"))
	coverageID := catalog.CoverageID(chi.URLParam(r, "cid"))

	var req WriteDeductibleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	d := catalog.Deductible{
		ID:         catalog.DeductibleID(req.ID),
		ProductID:  productID,
		CoverageID: coverageID,
		Type:       catalog.DeductibleType(req.Type),
		IsDefault:  req.IsDefault,
	}
	var err error
	if d.Amount, err = parseDecimalPtr(req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if d.Percentage, err = parseDecimalPtr(req.Percentage); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid percentage", err)
		return
	}
	if d.MinimumRetained, err = parseDecimalPtr(req.MinimumRetained); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid minimum_retained", err)
		return
	}
	if d.MaximumRetained, err = parseDecimalPtr(req.MaximumRetained); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid maximum_retained", err)
		return
	}
	if d.ID == "" {
		d.ID = catalog.DeductibleID(uuid.NewString())
	}

	if err := h.Accessors.WriteDeductible(r.Context(), d); err != nil {
		writeWriteError(w, "Failed to write deductible", err)
		return
	}

	d.DisplayValue = catalog.RenderDeductible(d)
	writeJSON(w, http.StatusCreated, toDeductibleDTO(d))
}

// DeleteDeductible removes a deductible through the compat write path.
func (h *Handler) DeleteDeductible(w http.ResponseWriter, r *http.Request) {
	productID := catalog.ProductID(chi.URLParam(r, "id"))
	coverageID := catalog.CoverageID(chi.URLParam(r, "cid"))
	deductibleID := catalog.DeductibleID(chi.URLParam(r, "did"))

	if err := h.Accessors.DeleteDeductible(r.Context(), productID, coverageID, deductibleID); err != nil {
		writeWriteError(w, "Failed to delete deductible", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerMigration runs the migration engine and returns its report.
// The request executes synchronously; large catalogs should prefer the
// CLI, which streams progress logs.
func (h *Handler) TriggerMigration(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	opts := h.Migration
	switch req.Mode {
	case "", string(migration.ModeDryRun):
		opts.Mode = migration.ModeDryRun
	case string(migration.ModeLive):
		opts.Mode = migration.ModeLive
	default:
		writeError(w, http.StatusBadRequest, "mode must be dry-run or live", nil)
		return
	}
	opts.Product = catalog.ProductID(req.ProductID)
	if req.Concurrency > 0 {
		opts.Concurrency = req.Concurrency
	}

	engine := migration.New(h.Store, h.Log, opts)
	report, err := engine.Run(r.Context())
	if err != nil {
		writeStoreError(w, "Migration run failed", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// TriggerRollback reverts migrated coverages to their legacy arrays.
func (h *Handler) TriggerRollback(w http.ResponseWriter, r *http.Request) {
	var req RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required", nil)
		return
	}

	engine := migration.New(h.Store, h.Log, h.Migration)
	opts := migration.RollbackOptions{DryRun: req.DryRun, Confirm: req.Confirm}

	var (
		report *migration.RollbackReport
		err    error
	)
	if req.CoverageID != "" {
		report, err = engine.Rollback(r.Context(), catalog.ProductID(req.ProductID), catalog.CoverageID(req.CoverageID), opts)
	} else {
		report, err = engine.RollbackProduct(r.Context(), catalog.ProductID(req.ProductID), opts)
	}
	if err != nil {
		if errors.Is(err, migration.ErrConfirmRequired) {
			writeError(w, http.StatusBadRequest, "Live rollback requires confirm=true", err)
			return
		}
		writeStoreError(w, "Rollback failed", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// HELPERS
// =============================================================================

func toCoverageIDs(ids []string) []catalog.CoverageID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]catalog.CoverageID, len(ids))
	for i, id := range ids {
		out[i] = catalog.CoverageID(id)
	}
	return out
}

func parseDecimalPtr(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeValidationError(w http.ResponseWriter, violations []catalog.ValidationError) {
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "Validation failed",
		Code:    "validation_failed",
		Details: toValidationErrorDTOs(violations),
	})
}

// writeWriteError maps compat write failures, which can be either
// validation rejections or store errors, to the right status.
func writeWriteError(w http.ResponseWriter, message string, err error) {
	var rejected *compat.RejectedError
	if errors.As(err, &rejected) {
		writeValidationError(w, rejected.Violations)
		return
	}
	writeStoreError(w, message, err)
}

// writeStoreError maps store sentinels to HTTP statuses.
func writeStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrCoverageNotFound),
		errors.Is(err, catalog.ErrLimitNotFound),
		errors.Is(err, catalog.ErrDeductibleNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, catalog.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
