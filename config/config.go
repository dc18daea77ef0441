/*
Package config provides JSON to Go migration-option conversion.

PURPOSE:
  Converts a JSON migration configuration into migration.Options
  overrides. Legacy display strings carry no type information, so the
  engine defaults every synthesized limit to per-occurrence and every
  deductible to flat - this file is how operators override those defaults
  globally or per coverage without code changes.

JSON SCHEMA:
  {
    "default_limit_type": "aggregate",
    "default_deductible_type": "franchise",
    "limit_type_overrides": {
      "cov-equipment": "sublimit"
    },
    "deductible_type_overrides": {
      "cov-flood": "percentage"
    }
  }

KEY FEATURES:
  - Validates every type name against the taxonomy on load
  - Unknown coverage IDs are allowed (the config may outlive a coverage)
  - Missing fields keep the engine defaults

USAGE:
  overrides, err := config.Load("./migration.json")
  engine := migration.New(store, logger, migration.Options{
      DefaultLimitType: overrides.DefaultLimitType,
      Overrides:        overrides.Overrides,
  })

SEE ALSO:
  - migration/engine.go: where the overrides take effect
*/
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/warp/catalog-engine/catalog"
	"github.com/warp/catalog-engine/migration"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// MigrationJSON is the JSON representation of a migration configuration.
type MigrationJSON struct {
	DefaultLimitType        string            `json:"default_limit_type,omitempty"`
	DefaultDeductibleType   string            `json:"default_deductible_type,omitempty"`
	LimitTypeOverrides      map[string]string `json:"limit_type_overrides,omitempty"`
	DeductibleTypeOverrides map[string]string `json:"deductible_type_overrides,omitempty"`
}

// MigrationConfig is the validated, typed form.
type MigrationConfig struct {
	DefaultLimitType      catalog.LimitType
	DefaultDeductibleType catalog.DeductibleType
	Overrides             migration.Overrides
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads and validates a migration configuration file.
func Load(path string) (MigrationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MigrationConfig{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse validates a JSON migration configuration.
func Parse(data []byte) (MigrationConfig, error) {
	var raw MigrationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return MigrationConfig{}, fmt.Errorf("parsing config: %w", err)
	}

	var cfg MigrationConfig

	if raw.DefaultLimitType != "" {
		t := catalog.LimitType(raw.DefaultLimitType)
		if !t.Valid() {
			return MigrationConfig{}, fmt.Errorf("unknown default limit type %q", raw.DefaultLimitType)
		}
		cfg.DefaultLimitType = t
	}
	if raw.DefaultDeductibleType != "" {
		t := catalog.DeductibleType(raw.DefaultDeductibleType)
		if !t.Valid() {
			return MigrationConfig{}, fmt.Errorf("unknown default deductible type %q", raw.DefaultDeductibleType)
		}
		cfg.DefaultDeductibleType = t
	}

	if len(raw.LimitTypeOverrides) > 0 {
		cfg.Overrides.LimitTypes = make(map[catalog.CoverageID]catalog.LimitType, len(raw.LimitTypeOverrides))
		for coverageID, name := range raw.LimitTypeOverrides {
			t := catalog.LimitType(name)
			if !t.Valid() {
				return MigrationConfig{}, fmt.Errorf("unknown limit type %q for coverage %s", name, coverageID)
			}
			cfg.Overrides.LimitTypes[catalog.CoverageID(coverageID)] = t
		}
	}
	if len(raw.DeductibleTypeOverrides) > 0 {
		cfg.Overrides.DeductibleTypes = make(map[catalog.CoverageID]catalog.DeductibleType, len(raw.DeductibleTypeOverrides))
		for coverageID, name := range raw.DeductibleTypeOverrides {
			t := catalog.DeductibleType(name)
			if !t.Valid() {
				return MigrationConfig{}, fmt.Errorf("unknown deductible type %q for coverage %s", name, coverageID)
			}
			cfg.Overrides.DeductibleTypes[catalog.CoverageID(coverageID)] = t
		}
	}

	return cfg, nil
}
