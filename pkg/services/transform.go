// Package services contains the field-mapping and confidence-routing engine:
// configuration resolution, transform execution, field mapping, confidence
// scoring and the routing decision.
package services

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

// lookupDefaultConfidenceFactor discounts the source confidence when a LOOKUP
// falls back to its configured default value.
const lookupDefaultConfidenceFactor = 0.5

// templatePlaceholderPattern matches {{fieldName}} placeholders in CUSTOM templates.
var templatePlaceholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// TransformExecutor turns one mapping rule plus the available source values
// into a single output value and its confidence contribution. It is stateless;
// Execute is a pure function of its inputs.
type TransformExecutor struct {
	logger *zap.Logger
}

// NewTransformExecutor creates a transform executor.
func NewTransformExecutor(logger *zap.Logger) *TransformExecutor {
	return &TransformExecutor{logger: logger}
}

// Execute dispatches on the rule's transform kind. A nil value with zero
// confidence means the transform could not produce an output. An unknown kind
// degrades to DIRECT behavior on the first listed source field; that is a
// configuration anomaly, logged but never fatal.
func (e *TransformExecutor) Execute(sources map[string]models.ExtractedFieldValue, rule *models.MappingRule) (*string, float64) {
	switch rule.TransformKind {
	case models.TransformDirect:
		return e.executeDirect(sources, rule)
	case models.TransformConcat:
		return e.executeConcat(sources, rule)
	case models.TransformSplit:
		return e.executeSplit(sources, rule)
	case models.TransformLookup:
		return e.executeLookup(sources, rule)
	case models.TransformCustom:
		return e.executeCustom(sources, rule)
	default:
		e.logger.Warn("Unknown transform kind, falling back to DIRECT",
			zap.String("rule_id", rule.ID.String()),
			zap.String("transform_kind", rule.TransformKind.String()),
			zap.String("target_field", rule.TargetField))
		return e.executeDirect(sources, rule)
	}
}

// executeDirect passes the single source value and confidence through unchanged.
func (e *TransformExecutor) executeDirect(sources map[string]models.ExtractedFieldValue, rule *models.MappingRule) (*string, float64) {
	if len(rule.SourceFields) == 0 {
		return nil, 0
	}
	src, ok := sources[rule.SourceFields[0]]
	if !ok {
		return nil, 0
	}
	return src.Value, src.Confidence
}

// executeConcat joins the string values of all listed source fields with the
// configured separator. Missing fields are skipped; confidence is the mean
// over fields actually present.
func (e *TransformExecutor) executeConcat(sources map[string]models.ExtractedFieldValue, rule *models.MappingRule) (*string, float64) {
	parts := make([]string, 0, len(rule.SourceFields))
	total := 0.0
	present := 0

	for _, name := range rule.OrderedSourceFields() {
		src, ok := sources[name]
		if !ok || src.Value == nil {
			continue
		}
		parts = append(parts, *src.Value)
		total += src.Confidence
		present++
	}

	if present == 0 {
		return nil, 0
	}
	joined := strings.Join(parts, rule.Params.Separator)
	return &joined, total / float64(present)
}

// executeSplit splits the single source value on the configured delimiter and
// returns the trimmed part at the configured zero-based index.
func (e *TransformExecutor) executeSplit(sources map[string]models.ExtractedFieldValue, rule *models.MappingRule) (*string, float64) {
	if len(rule.SourceFields) == 0 {
		return nil, 0
	}
	src, ok := sources[rule.SourceFields[0]]
	if !ok || src.Value == nil {
		return nil, 0
	}

	parts := []string{*src.Value}
	if rule.Params.Delimiter != "" {
		parts = strings.Split(*src.Value, rule.Params.Delimiter)
	}
	idx := rule.Params.Index
	if idx < 0 || idx >= len(parts) {
		return nil, 0
	}
	part := strings.TrimSpace(parts[idx])
	return &part, src.Confidence
}

// executeLookup maps the source value through the configured table. Unmatched
// keys return the configured default at reduced confidence rather than failing.
func (e *TransformExecutor) executeLookup(sources map[string]models.ExtractedFieldValue, rule *models.MappingRule) (*string, float64) {
	if len(rule.SourceFields) == 0 {
		return nil, 0
	}
	src, ok := sources[rule.SourceFields[0]]
	if !ok || src.Value == nil {
		return nil, 0
	}

	key := *src.Value
	if rule.Params.CaseSensitive {
		if mapped, found := rule.Params.Table[key]; found {
			return &mapped, src.Confidence
		}
	} else {
		for candidate, mapped := range rule.Params.Table {
			if strings.EqualFold(candidate, key) {
				result := mapped
				return &result, src.Confidence
			}
		}
	}

	fallback := rule.Params.DefaultValue
	return &fallback, src.Confidence * lookupDefaultConfidenceFactor
}

// executeCustom renders the rule's template, substituting {{fieldName}}
// placeholders with source values (empty string when absent). Confidence is
// the mean over fields that were actually substituted.
func (e *TransformExecutor) executeCustom(sources map[string]models.ExtractedFieldValue, rule *models.MappingRule) (*string, float64) {
	total := 0.0
	substituted := 0

	rendered := templatePlaceholderPattern.ReplaceAllStringFunc(rule.Params.Template, func(match string) string {
		name := templatePlaceholderPattern.FindStringSubmatch(match)[1]
		src, ok := sources[name]
		if !ok || src.Value == nil {
			return ""
		}
		total += src.Confidence
		substituted++
		return *src.Value
	})

	confidence := 0.0
	if substituted > 0 {
		confidence = total / float64(substituted)
	}
	return &rendered, confidence
}
