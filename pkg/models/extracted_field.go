package models

import (
	"github.com/google/uuid"
)

// ExtractedFieldValue is one raw field produced by the extraction subsystem.
type ExtractedFieldValue struct {
	FieldName  string  `json:"field_name"`
	Value      *string `json:"value"`      // nil when the extractor saw the field but no value
	Confidence float64 `json:"confidence"` // 0-100
	Extractor  string  `json:"extractor"`  // provenance tag, e.g. "azure_di", "tesseract"
}

// MappedFieldValue is one output field produced by the mapping engine,
// with full provenance back to the rule and configuration that produced it.
type MappedFieldValue struct {
	TargetField     string        `json:"target_field"`
	Value           *string       `json:"value"`
	NormalizedValue *string       `json:"normalized_value,omitempty"`
	Confidence      float64       `json:"confidence"`
	SourceFields    []string      `json:"source_fields"`
	TransformKind   TransformKind `json:"transform_kind"`
	RuleID          uuid.UUID     `json:"rule_id"`
	ConfigurationID uuid.UUID     `json:"configuration_id"`
	Scope           ConfigScope   `json:"scope"`
	Validated       bool          `json:"validated"`
	ValidationError string        `json:"validation_error,omitempty"`
}

// EffectiveValue returns the normalized value when normalization produced one,
// otherwise the raw transformed value.
func (m *MappedFieldValue) EffectiveValue() *string {
	if m.NormalizedValue != nil {
		return m.NormalizedValue
	}
	return m.Value
}

// UnmappedField records an extracted source field that no rule consumed.
type UnmappedField struct {
	FieldName string  `json:"field_name"`
	Value     *string `json:"value"`
	Reason    string  `json:"reason"`
}

// MappingResult is the full outcome of one mapping pass. Warnings collect
// rule-execution anomalies that were recovered locally (unknown transform
// kinds, invalid validation patterns) and never surfaced as errors.
type MappingResult struct {
	Mapped   []MappedFieldValue `json:"mapped"`
	Unmapped []UnmappedField    `json:"unmapped"`
	Warnings []string           `json:"warnings,omitempty"`
}

// AverageConfidence returns the mean confidence over mapped fields, 0 when none.
func (r *MappingResult) AverageConfidence() float64 {
	if len(r.Mapped) == 0 {
		return 0
	}
	total := 0.0
	for i := range r.Mapped {
		total += r.Mapped[i].Confidence
	}
	return total / float64(len(r.Mapped))
}
