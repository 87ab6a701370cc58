package services

import (
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

func strPtr(s string) *string {
	return &s
}

func sourcesFrom(fields ...models.ExtractedFieldValue) map[string]models.ExtractedFieldValue {
	sources := make(map[string]models.ExtractedFieldValue, len(fields))
	for _, f := range fields {
		sources[f.FieldName] = f
	}
	return sources
}

func TestTransformExecutor_Direct(t *testing.T) {
	executor := NewTransformExecutor(zap.NewNop())

	sources := sourcesFrom(
		models.ExtractedFieldValue{FieldName: "invoice_no", Value: strPtr("INV-42"), Confidence: 88},
	)
	rule := &models.MappingRule{
		ID:            uuid.New(),
		SourceFields:  []string{"invoice_no"},
		TargetField:   "invoice_number",
		TransformKind: models.TransformDirect,
	}

	value, confidence := executor.Execute(sources, rule)
	if value == nil || *value != "INV-42" {
		t.Fatalf("Execute value = %v, want INV-42", value)
	}
	if confidence != 88 {
		t.Errorf("Execute confidence = %f, want 88", confidence)
	}

	rule.SourceFields = []string{"missing"}
	value, confidence = executor.Execute(sources, rule)
	if value != nil || confidence != 0 {
		t.Errorf("Execute on missing source = (%v, %f), want (nil, 0)", value, confidence)
	}
}

func TestTransformExecutor_Concat(t *testing.T) {
	executor := NewTransformExecutor(zap.NewNop())

	sources := sourcesFrom(
		models.ExtractedFieldValue{FieldName: "base_charge", Value: strPtr("100"), Confidence: 90},
		models.ExtractedFieldValue{FieldName: "surcharge", Value: strPtr("20"), Confidence: 80},
	)
	rule := &models.MappingRule{
		ID:            uuid.New(),
		SourceFields:  []string{"base_charge", "surcharge"},
		TargetField:   "charge_summary",
		TransformKind: models.TransformConcat,
		Params:        models.TransformParams{Separator: " + "},
	}

	value, confidence := executor.Execute(sources, rule)
	if value == nil || *value != "100 + 20" {
		t.Fatalf("Execute value = %v, want %q", value, "100 + 20")
	}
	if confidence != 85 {
		t.Errorf("Execute confidence = %f, want 85 (mean of 90 and 80)", confidence)
	}
}

func TestTransformExecutor_ConcatFieldOrder(t *testing.T) {
	executor := NewTransformExecutor(zap.NewNop())

	sources := sourcesFrom(
		models.ExtractedFieldValue{FieldName: "city", Value: strPtr("Rotterdam"), Confidence: 90},
		models.ExtractedFieldValue{FieldName: "country", Value: strPtr("NL"), Confidence: 90},
	)
	rule := &models.MappingRule{
		ID:            uuid.New(),
		SourceFields:  []string{"city", "country"},
		TargetField:   "origin",
		TransformKind: models.TransformConcat,
		Params: models.TransformParams{
			Separator:  ", ",
			FieldOrder: []string{"country", "city"},
		},
	}

	value, _ := executor.Execute(sources, rule)
	if value == nil || *value != "NL, Rotterdam" {
		t.Errorf("Execute value = %v, want %q", value, "NL, Rotterdam")
	}
}

func TestTransformExecutor_ConcatSkipsMissing(t *testing.T) {
	executor := NewTransformExecutor(zap.NewNop())

	sources := sourcesFrom(
		models.ExtractedFieldValue{FieldName: "first", Value: strPtr("a"), Confidence: 60},
	)
	rule := &models.MappingRule{
		ID:            uuid.New(),
		SourceFields:  []string{"first", "second"},
		TargetField:   "joined",
		TransformKind: models.TransformConcat,
		Params:        models.TransformParams{Separator: "-"},
	}

	value, confidence := executor.Execute(sources, rule)
	if value == nil || *value != "a" {
		t.Fatalf("Execute value = %v, want %q", value, "a")
	}
	if confidence != 60 {
		t.Errorf("Execute confidence = %f, want 60 (mean over present fields only)", confidence)
	}
}

func TestTransformExecutor_Split(t *testing.T) {
	executor := NewTransformExecutor(zap.NewNop())

	tests := []struct {
		name       string
		value      string
		delimiter  string
		index      int
		want       *string
		confidence float64
	}{
		{"middle part", "ABC-123-XYZ", "-", 1, strPtr("123"), 95},
		{"first part", "ABC-123-XYZ", "-", 0, strPtr("ABC"), 95},
		{"index out of range", "ABC-123-XYZ", "-", 5, nil, 0},
		{"negative index", "ABC-123-XYZ", "-", -1, nil, 0},
		{"empty delimiter returns whole value", "ABC-123-XYZ", "", 0, strPtr("ABC-123-XYZ"), 95},
		{"part is trimmed", "ABC - 123 - XYZ", "-", 1, strPtr("123"), 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sources := sourcesFrom(
				models.ExtractedFieldValue{FieldName: "raw", Value: strPtr(tt.value), Confidence: 95},
			)
			rule := &models.MappingRule{
				ID:            uuid.New(),
				SourceFields:  []string{"raw"},
				TargetField:   "part",
				TransformKind: models.TransformSplit,
				Params:        models.TransformParams{Delimiter: tt.delimiter, Index: tt.index},
			}

			value, confidence := executor.Execute(sources, rule)
			if (value == nil) != (tt.want == nil) {
				t.Fatalf("Execute value = %v, want %v", value, tt.want)
			}
			if value != nil && *value != *tt.want {
				t.Errorf("Execute value = %q, want %q", *value, *tt.want)
			}
			if confidence != tt.confidence {
				t.Errorf("Execute confidence = %f, want %f", confidence, tt.confidence)
			}
		})
	}
}

func TestTransformExecutor_Lookup(t *testing.T) {
	executor := NewTransformExecutor(zap.NewNop())

	rule := &models.MappingRule{
		ID:            uuid.New(),
		SourceFields:  []string{"carrier_code"},
		TargetField:   "carrier_name",
		TransformKind: models.TransformLookup,
		Params: models.TransformParams{
			Table:        map[string]string{"MAEU": "Maersk", "MSCU": "MSC"},
			DefaultValue: "Unknown",
		},
	}

	t.Run("exact hit keeps confidence", func(t *testing.T) {
		sources := sourcesFrom(
			models.ExtractedFieldValue{FieldName: "carrier_code", Value: strPtr("MAEU"), Confidence: 92},
		)
		value, confidence := executor.Execute(sources, rule)
		if value == nil || *value != "Maersk" {
			t.Fatalf("Execute value = %v, want Maersk", value)
		}
		if confidence != 92 {
			t.Errorf("Execute confidence = %f, want 92", confidence)
		}
	})

	t.Run("case-insensitive hit by default", func(t *testing.T) {
		sources := sourcesFrom(
			models.ExtractedFieldValue{FieldName: "carrier_code", Value: strPtr("maeu"), Confidence: 92},
		)
		value, _ := executor.Execute(sources, rule)
		if value == nil || *value != "Maersk" {
			t.Errorf("Execute value = %v, want Maersk", value)
		}
	})

	t.Run("miss returns default at half confidence", func(t *testing.T) {
		sources := sourcesFrom(
			models.ExtractedFieldValue{FieldName: "carrier_code", Value: strPtr("ZZZZ"), Confidence: 92},
		)
		value, confidence := executor.Execute(sources, rule)
		if value == nil || *value != "Unknown" {
			t.Fatalf("Execute value = %v, want Unknown", value)
		}
		if confidence != 46 {
			t.Errorf("Execute confidence = %f, want 46 (92 * 0.5)", confidence)
		}
	})

	t.Run("case-sensitive miss", func(t *testing.T) {
		strict := *rule
		strict.Params.CaseSensitive = true
		sources := sourcesFrom(
			models.ExtractedFieldValue{FieldName: "carrier_code", Value: strPtr("maeu"), Confidence: 80},
		)
		value, confidence := executor.Execute(sources, &strict)
		if value == nil || *value != "Unknown" {
			t.Fatalf("Execute value = %v, want Unknown", value)
		}
		if confidence != 40 {
			t.Errorf("Execute confidence = %f, want 40", confidence)
		}
	})
}

func TestTransformExecutor_Custom(t *testing.T) {
	executor := NewTransformExecutor(zap.NewNop())

	sources := sourcesFrom(
		models.ExtractedFieldValue{FieldName: "currency", Value: strPtr("USD"), Confidence: 90},
		models.ExtractedFieldValue{FieldName: "total", Value: strPtr("1250.00"), Confidence: 70},
	)
	rule := &models.MappingRule{
		ID:            uuid.New(),
		SourceFields:  []string{"currency", "total"},
		TargetField:   "display_total",
		TransformKind: models.TransformCustom,
		Params:        models.TransformParams{Template: "{{currency}} {{total}}"},
	}

	value, confidence := executor.Execute(sources, rule)
	if value == nil || *value != "USD 1250.00" {
		t.Fatalf("Execute value = %v, want %q", value, "USD 1250.00")
	}
	if confidence != 80 {
		t.Errorf("Execute confidence = %f, want 80 (mean of 90 and 70)", confidence)
	}
}

func TestTransformExecutor_CustomMissingPlaceholder(t *testing.T) {
	executor := NewTransformExecutor(zap.NewNop())

	sources := sourcesFrom(
		models.ExtractedFieldValue{FieldName: "currency", Value: strPtr("EUR"), Confidence: 85},
	)
	rule := &models.MappingRule{
		ID:            uuid.New(),
		SourceFields:  []string{"currency", "total"},
		TargetField:   "display_total",
		TransformKind: models.TransformCustom,
		Params:        models.TransformParams{Template: "{{currency}} {{total}}"},
	}

	value, confidence := executor.Execute(sources, rule)
	if value == nil || *value != "EUR " {
		t.Fatalf("Execute value = %v, want %q", value, "EUR ")
	}
	if confidence != 85 {
		t.Errorf("Execute confidence = %f, want 85 (mean over substituted fields)", confidence)
	}
}

func TestTransformExecutor_UnknownKindFallsBackToDirect(t *testing.T) {
	executor := NewTransformExecutor(zap.NewNop())

	sources := sourcesFrom(
		models.ExtractedFieldValue{FieldName: "raw", Value: strPtr("value"), Confidence: 77},
	)
	rule := &models.MappingRule{
		ID:            uuid.New(),
		SourceFields:  []string{"raw"},
		TargetField:   "out",
		TransformKind: models.TransformKind("REVERSE"),
	}

	value, confidence := executor.Execute(sources, rule)
	if value == nil || *value != "value" {
		t.Fatalf("Execute value = %v, want value", value)
	}
	if confidence != 77 {
		t.Errorf("Execute confidence = %f, want 77", confidence)
	}
}
