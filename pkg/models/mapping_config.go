// Package models contains domain types for docuflow-engine.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConfigScope represents the breadth at which a mapping configuration applies.
type ConfigScope string

const (
	ScopeGlobal  ConfigScope = "GLOBAL"
	ScopeCompany ConfigScope = "COMPANY"
	ScopeFormat  ConfigScope = "FORMAT"
)

// String returns the string representation of a ConfigScope.
func (s ConfigScope) String() string {
	return string(s)
}

// IsValid returns true if the scope is a known configuration scope.
func (s ConfigScope) IsValid() bool {
	switch s {
	case ScopeGlobal, ScopeCompany, ScopeFormat:
		return true
	default:
		return false
	}
}

// Specificity orders scopes from broadest (0) to narrowest (2).
// Used when merging configurations and when scoring configuration-match confidence.
func (s ConfigScope) Specificity() int {
	switch s {
	case ScopeCompany:
		return 1
	case ScopeFormat:
		return 2
	default:
		return 0
	}
}

// TransformKind identifies the strategy used to derive an output field
// from one or more source fields.
type TransformKind string

const (
	TransformDirect TransformKind = "DIRECT"
	TransformConcat TransformKind = "CONCAT"
	TransformSplit  TransformKind = "SPLIT"
	TransformLookup TransformKind = "LOOKUP"
	TransformCustom TransformKind = "CUSTOM"
)

// String returns the string representation of a TransformKind.
func (k TransformKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is a known transform kind.
func (k TransformKind) IsValid() bool {
	switch k {
	case TransformDirect, TransformConcat, TransformSplit, TransformLookup, TransformCustom:
		return true
	default:
		return false
	}
}

// TransformParams is the kind-specific parameter bundle of a mapping rule.
// Only the fields relevant to the rule's transform kind are set.
type TransformParams struct {
	// CONCAT
	Separator string `json:"separator,omitempty"`
	// CONCAT / CUSTOM: explicit ordering of source fields. Falls back to the
	// rule's source-field declaration order when empty.
	FieldOrder []string `json:"field_order,omitempty"`

	// SPLIT
	Delimiter string `json:"delimiter,omitempty"`
	Index     int    `json:"index,omitempty"` // zero-based part index

	// LOOKUP
	Table         map[string]string `json:"table,omitempty"`
	CaseSensitive bool              `json:"case_sensitive,omitempty"`
	DefaultValue  string            `json:"default_value,omitempty"`

	// CUSTOM: template with {{fieldName}} placeholders
	Template string `json:"template,omitempty"`
}

// MappingRule maps one or more extracted source fields to a single target field.
// Rules belong to exactly one MappingConfiguration; lower Priority runs first.
type MappingRule struct {
	ID              uuid.UUID       `json:"id"`
	ConfigurationID uuid.UUID       `json:"configuration_id"`
	SourceFields    []string        `json:"source_fields"`
	TargetField     string          `json:"target_field"`
	TransformKind   TransformKind   `json:"transform_kind"`
	Params          TransformParams `json:"params"`
	Priority        int             `json:"priority"`
	Active          bool            `json:"active"`

	// ValidationPattern is an optional regex applied to the transformed value.
	// A value that fails validation is kept but flagged for review.
	ValidationPattern string `json:"validation_pattern,omitempty"`
}

// Validate checks the rule's structural invariants.
func (r *MappingRule) Validate() error {
	if r.TargetField == "" {
		return fmt.Errorf("rule %s: target field is required", r.ID)
	}
	if !r.TransformKind.IsValid() {
		return fmt.Errorf("rule %s: unknown transform kind %q", r.ID, r.TransformKind)
	}
	switch r.TransformKind {
	case TransformConcat, TransformCustom:
		if len(r.SourceFields) < 1 {
			return fmt.Errorf("rule %s: %s requires at least one source field", r.ID, r.TransformKind)
		}
	default:
		if len(r.SourceFields) != 1 {
			return fmt.Errorf("rule %s: %s requires exactly one source field, got %d",
				r.ID, r.TransformKind, len(r.SourceFields))
		}
	}
	return nil
}

// OrderedSourceFields returns the source fields in the order CONCAT/CUSTOM
// should consume them: the explicit params ordering when given, otherwise
// declaration order. Fields listed in params but not declared are ignored.
func (r *MappingRule) OrderedSourceFields() []string {
	if len(r.Params.FieldOrder) == 0 {
		return r.SourceFields
	}
	declared := make(map[string]bool, len(r.SourceFields))
	for _, f := range r.SourceFields {
		declared[f] = true
	}
	ordered := make([]string, 0, len(r.SourceFields))
	for _, f := range r.Params.FieldOrder {
		if declared[f] {
			ordered = append(ordered, f)
			declared[f] = false
		}
	}
	for _, f := range r.SourceFields {
		if declared[f] {
			ordered = append(ordered, f)
		}
	}
	return ordered
}

// MappingConfiguration is a named, versioned set of mapping rules at one scope.
// Exactly one active configuration may exist per (scope, company, format) triple.
// Updates use optimistic concurrency: a write carrying a stale Version is rejected.
type MappingConfiguration struct {
	ID               uuid.UUID     `json:"id"`
	Scope            ConfigScope   `json:"scope"`
	CompanyID        *uuid.UUID    `json:"company_id,omitempty"`
	DocumentFormatID *uuid.UUID    `json:"document_format_id,omitempty"`
	Name             string        `json:"name"`
	Version          int64         `json:"version"`
	Active           bool          `json:"active"`
	Rules            []MappingRule `json:"rules"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Validate checks scope/key consistency and every rule's invariants.
func (c *MappingConfiguration) Validate() error {
	if !c.Scope.IsValid() {
		return fmt.Errorf("configuration %s: unknown scope %q", c.ID, c.Scope)
	}
	switch c.Scope {
	case ScopeCompany:
		if c.CompanyID == nil {
			return fmt.Errorf("configuration %s: COMPANY scope requires a company id", c.ID)
		}
	case ScopeFormat:
		if c.DocumentFormatID == nil {
			return fmt.Errorf("configuration %s: FORMAT scope requires a document format id", c.ID)
		}
	case ScopeGlobal:
		if c.CompanyID != nil || c.DocumentFormatID != nil {
			return fmt.Errorf("configuration %s: GLOBAL scope must not carry company or format ids", c.ID)
		}
	}
	for i := range c.Rules {
		if err := c.Rules[i].Validate(); err != nil {
			return fmt.Errorf("configuration %s: %w", c.ID, err)
		}
	}
	return nil
}
