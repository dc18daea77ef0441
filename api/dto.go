/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Product:
    ProductDTO, CreateProductRequest

  Coverage:
    CoverageDTO, CreateCoverageRequest

  Attributes:
    LimitDTO, DeductibleDTO, WriteLimitRequest, WriteDeductibleRequest

  Migration:
    MigrateRequest, RollbackRequest (reports are serialized directly
    from migration.Report, which already carries json tags)

VALIDATION:
  Validation is done in handlers and in compat, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - compat/accessors.go: The domain facade behind the handlers
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/catalog-engine/catalog"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ProductDTO represents a product in API responses.
type ProductDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Line string `json:"line"`
}

// CreateProductRequest is the request to create a product.
type CreateProductRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Line string `json:"line"`
}

// CoverageDTO represents a coverage in API responses.
type CoverageDTO struct {
	ID                    string   `json:"id"`
	ProductID             string   `json:"product_id"`
	ParentCoverageID      string   `json:"parent_coverage_id,omitempty"`
	Name                  string   `json:"name"`
	Representation        string   `json:"representation"`
	LegacyLimits          []string `json:"legacy_limits,omitempty"`
	LegacyDeductibles     []string `json:"legacy_deductibles,omitempty"`
	MigratedAt            *string  `json:"migrated_at,omitempty"`
	RequiredCoverages     []string `json:"required_coverages,omitempty"`
	IncompatibleCoverages []string `json:"incompatible_coverages,omitempty"`
}

// CreateCoverageRequest is the request to create or replace a coverage.
type CreateCoverageRequest struct {
	ID                    string   `json:"id"`
	ParentCoverageID      string   `json:"parent_coverage_id,omitempty"`
	Name                  string   `json:"name"`
	LegacyLimits          []string `json:"legacy_limits,omitempty"`
	LegacyDeductibles     []string `json:"legacy_deductibles,omitempty"`
	RequiredCoverages     []string `json:"required_coverages,omitempty"`
	IncompatibleCoverages []string `json:"incompatible_coverages,omitempty"`
}

// LimitDTO represents a limit in API responses. Synthetic limits read
// from the legacy display array carry an empty ID.
type LimitDTO struct {
	ID            string `json:"id,omitempty"`
	CoverageID    string `json:"coverage_id"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	DisplayValue  string `json:"display_value"`
	IsDefault     bool   `json:"is_default"`
	ParentLimitID string `json:"parent_limit_id,omitempty"`
}

// WriteLimitRequest is the request to create or update a limit.
type WriteLimitRequest struct {
	ID            string `json:"id,omitempty"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	IsDefault     bool   `json:"is_default"`
	ParentLimitID string `json:"parent_limit_id,omitempty"`
}

// DeductibleDTO represents a deductible in API responses.
type DeductibleDTO struct {
	ID              string  `json:"id,omitempty"`
	CoverageID      string  `json:"coverage_id"`
	Type            string  `json:"type"`
	Amount          *string `json:"amount,omitempty"`
	Percentage      *string `json:"percentage,omitempty"`
	MinimumRetained *string `json:"minimum_retained,omitempty"`
	MaximumRetained *string `json:"maximum_retained,omitempty"`
	DisplayValue    string  `json:"display_value"`
	IsDefault       bool    `json:"is_default"`
}

// WriteDeductibleRequest is the request to create or update a deductible.
type WriteDeductibleRequest struct {
	ID              string  `json:"id,omitempty"`
	Type            string  `json:"type"`
	Amount          *string `json:"amount,omitempty"`
	Percentage      *string `json:"percentage,omitempty"`
	MinimumRetained *string `json:"minimum_retained,omitempty"`
	MaximumRetained *string `json:"maximum_retained,omitempty"`
	IsDefault       bool    `json:"is_default"`
}

// MigrateRequest is the request to run the migration engine.
type MigrateRequest struct {
	Mode        string `json:"mode"` // "dry-run" or "live"
	ProductID   string `json:"product_id,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
}

// RollbackRequest is the request to roll a coverage or product back to
// its legacy representation.
type RollbackRequest struct {
	ProductID  string `json:"product_id"`
	CoverageID string `json:"coverage_id,omitempty"` // empty = whole product
	DryRun     bool   `json:"dry_run"`
	Confirm    bool   `json:"confirm"`
}

// ValidationErrorDTO mirrors catalog.ValidationError for 422 responses.
type ValidationErrorDTO struct {
	Entity  string `json:"entity"`
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCoverageDTO(c catalog.Coverage, repr catalog.Representation) CoverageDTO {
	dto := CoverageDTO{
		ID:                    string(c.ID),
		ProductID:             string(c.ProductID),
		ParentCoverageID:      string(c.ParentCoverageID),
		Name:                  c.Name,
		Representation:        string(repr),
		LegacyLimits:          c.LegacyLimits,
		LegacyDeductibles:     c.LegacyDeductibles,
		RequiredCoverages:     coverageIDStrings(c.RequiredCoverages),
		IncompatibleCoverages: coverageIDStrings(c.IncompatibleCoverages),
	}
	if c.MigratedAt != nil {
		s := c.MigratedAt.Format(time.RFC3339)
		dto.MigratedAt = &s
	}
	return dto
}

func toLimitDTO(l catalog.Limit) LimitDTO {
	return LimitDTO{
		ID:            string(l.ID),
		CoverageID:    string(l.CoverageID),
		Type:          string(l.Type),
		Amount:        l.Amount.String(),
		DisplayValue:  l.DisplayValue,
		IsDefault:     l.IsDefault,
		ParentLimitID: string(l.ParentLimitID),
	}
}

func toLimitDTOs(limits []catalog.Limit) []LimitDTO {
	dtos := make([]LimitDTO, len(limits))
	for i, l := range limits {
		dtos[i] = toLimitDTO(l)
	}
	return dtos
}

func toDeductibleDTO(d catalog.Deductible) DeductibleDTO {
	return DeductibleDTO{
		ID:              string(d.ID),
		CoverageID:      string(d.CoverageID),
		Type:            string(d.Type),
		Amount:          decimalPtrString(d.Amount),
		Percentage:      decimalPtrString(d.Percentage),
		MinimumRetained: decimalPtrString(d.MinimumRetained),
		MaximumRetained: decimalPtrString(d.MaximumRetained),
		DisplayValue:    d.DisplayValue,
		IsDefault:       d.IsDefault,
	}
}

func toDeductibleDTOs(deductibles []catalog.Deductible) []DeductibleDTO {
	dtos := make([]DeductibleDTO, len(deductibles))
	for i, d := range deductibles {
		dtos[i] = toDeductibleDTO(d)
	}
	return dtos
}

func toValidationErrorDTOs(violations []catalog.ValidationError) []ValidationErrorDTO {
	dtos := make([]ValidationErrorDTO, len(violations))
	for i, v := range violations {
		dtos[i] = ValidationErrorDTO{
			Entity:  v.Entity,
			Field:   v.Field,
			Rule:    v.Rule,
			Message: v.Message,
		}
	}
	return dtos
}

func decimalPtrString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func coverageIDStrings(ids []catalog.CoverageID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
