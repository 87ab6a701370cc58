package services

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

// FieldMappingEngine orchestrates an effective rule set against a document's
// extracted fields.
//
// Gating policy: a rule executes only when EVERY declared source field is
// present in the extracted set; otherwise the whole rule is skipped. The
// transform executor's own tolerance for missing fields (CONCAT/CUSTOM) only
// matters when the executor is invoked directly, never through this engine.
type FieldMappingEngine struct {
	executor *TransformExecutor
	logger   *zap.Logger
}

// NewFieldMappingEngine creates a field mapping engine.
func NewFieldMappingEngine(executor *TransformExecutor, logger *zap.Logger) *FieldMappingEngine {
	return &FieldMappingEngine{executor: executor, logger: logger}
}

// Map runs the rule set in priority order and returns mapped and unmapped
// fields with full provenance. An empty rule set falls back to identity
// mapping. Map never fails; rule-level anomalies become warnings on the result.
func (m *FieldMappingEngine) Map(extracted []models.ExtractedFieldValue, ruleSet *models.EffectiveRuleSet) *models.MappingResult {
	sources := make(map[string]models.ExtractedFieldValue, len(extracted))
	for _, field := range extracted {
		sources[field.FieldName] = field
	}

	if ruleSet.IsEmpty() {
		return m.identityMap(extracted)
	}

	result := &models.MappingResult{}
	used := make(map[string]bool)

	for i := range ruleSet.Rules {
		resolved := &ruleSet.Rules[i]
		rule := &resolved.Rule

		if !rule.TransformKind.IsValid() {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"rule %s for %q has unknown transform kind %q, executed as DIRECT",
				rule.ID, rule.TargetField, rule.TransformKind))
		}

		// Rule-level gating over all declared sources.
		if missing := missingSourceFields(rule, sources); len(missing) > 0 {
			m.logger.Debug("Skipping rule, required source fields missing",
				zap.String("rule_id", rule.ID.String()),
				zap.String("target_field", rule.TargetField),
				zap.Strings("missing", missing))
			continue
		}

		value, confidence := m.executor.Execute(sources, rule)

		// The rule was accepted, so its sources count as consumed even when
		// the transform produced nothing.
		for _, name := range rule.SourceFields {
			used[name] = true
		}

		if value == nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"rule %s for %q produced no value", rule.ID, rule.TargetField))
			continue
		}

		mapped := models.MappedFieldValue{
			TargetField:     rule.TargetField,
			Value:           value,
			NormalizedValue: NormalizeValue(*value, rule.TargetField),
			Confidence:      confidence,
			SourceFields:    rule.SourceFields,
			TransformKind:   rule.TransformKind,
			RuleID:          rule.ID,
			ConfigurationID: resolved.Provenance.ConfigurationID,
			Scope:           resolved.Provenance.Scope,
			Validated:       true,
		}
		m.validate(&mapped, rule, result)
		result.Mapped = append(result.Mapped, mapped)
	}

	for _, field := range extracted {
		if !used[field.FieldName] {
			result.Unmapped = append(result.Unmapped, models.UnmappedField{
				FieldName: field.FieldName,
				Value:     field.Value,
				Reason:    "no matching rule",
			})
		}
	}

	return result
}

// identityMap turns every non-null extracted field into a DIRECT mapping onto
// its own name. Used when no configuration exists at any scope.
func (m *FieldMappingEngine) identityMap(extracted []models.ExtractedFieldValue) *models.MappingResult {
	result := &models.MappingResult{}
	for _, field := range extracted {
		if field.Value == nil {
			result.Unmapped = append(result.Unmapped, models.UnmappedField{
				FieldName: field.FieldName,
				Reason:    "no value extracted",
			})
			continue
		}
		value := *field.Value
		result.Mapped = append(result.Mapped, models.MappedFieldValue{
			TargetField:     field.FieldName,
			Value:           &value,
			NormalizedValue: NormalizeValue(value, field.FieldName),
			Confidence:      field.Confidence,
			SourceFields:    []string{field.FieldName},
			TransformKind:   models.TransformDirect,
			Validated:       true,
		})
	}
	return result
}

// validate applies the rule's optional validation pattern to the transformed
// value. An invalid pattern counts as passing, with a warning on the pass.
func (m *FieldMappingEngine) validate(mapped *models.MappedFieldValue, rule *models.MappingRule, result *models.MappingResult) {
	if rule.ValidationPattern == "" || mapped.Value == nil {
		return
	}
	re, err := regexp.Compile(rule.ValidationPattern)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"rule %s for %q has invalid validation pattern: %v", rule.ID, rule.TargetField, err))
		return
	}

	candidate := mapped.Value
	if mapped.NormalizedValue != nil {
		candidate = mapped.NormalizedValue
	}
	if !re.MatchString(*candidate) {
		mapped.Validated = false
		mapped.ValidationError = fmt.Sprintf("value does not match pattern %q", rule.ValidationPattern)
	}
}

// missingSourceFields returns the declared source fields absent from the
// extracted set.
func missingSourceFields(rule *models.MappingRule, sources map[string]models.ExtractedFieldValue) []string {
	var missing []string
	for _, name := range rule.SourceFields {
		if _, ok := sources[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
