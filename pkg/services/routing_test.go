package services

import (
	"strings"
	"testing"

	"github.com/docuflow-inc/docuflow-engine/pkg/config"
	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

func TestRouteDecision(t *testing.T) {
	thresholds := &config.RoutingThresholds{AutoApprove: 90, QuickReview: 70}

	tests := []struct {
		name    string
		overall float64
		want    models.RoutingDecision
	}{
		{"at auto-approve boundary", 90.0, models.RouteAutoApprove},
		{"above auto-approve", 97.3, models.RouteAutoApprove},
		{"just under auto-approve", 89.9, models.RouteQuickReview},
		{"at quick-review boundary", 70.0, models.RouteQuickReview},
		{"just under quick-review", 69.9, models.RouteFullReview},
		{"zero", 0, models.RouteFullReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := routeDecision(tt.overall, thresholds)
			if got != tt.want {
				t.Errorf("routeDecision(%.1f) = %s, want %s", tt.overall, got, tt.want)
			}
		})
	}
}

func TestBuildRationale(t *testing.T) {
	dimensions := []models.DimensionScore{
		{Dimension: models.DimensionExtractionQuality, FinalScore: 95},
		{Dimension: models.DimensionIssuerIdentification, FinalScore: 40},
		{Dimension: models.DimensionFormatIdentification, FinalScore: 85},
		{Dimension: models.DimensionConfigMatch, FinalScore: 20},
	}

	t.Run("auto-approve names strongest", func(t *testing.T) {
		rationale := buildRationale(models.RouteAutoApprove, dimensions)
		if !strings.Contains(rationale, "extraction_quality") || !strings.Contains(rationale, "format_identification") {
			t.Errorf("rationale %q does not name the two strongest dimensions", rationale)
		}
	})

	t.Run("review names weakest", func(t *testing.T) {
		rationale := buildRationale(models.RouteFullReview, dimensions)
		if !strings.Contains(rationale, "config_match") || !strings.Contains(rationale, "issuer_identification") {
			t.Errorf("rationale %q does not name the two weakest dimensions", rationale)
		}
		if !strings.Contains(rationale, "full review") {
			t.Errorf("rationale %q does not name the tier", rationale)
		}
	})

	t.Run("does not mutate input order", func(t *testing.T) {
		buildRationale(models.RouteQuickReview, dimensions)
		if dimensions[0].Dimension != models.DimensionExtractionQuality {
			t.Error("buildRationale reordered the caller's dimension slice")
		}
	})
}

func TestReviewFocus(t *testing.T) {
	dimensions := []models.DimensionScore{
		{Dimension: models.DimensionExtractionQuality, FinalScore: 95},
		{Dimension: models.DimensionIssuerIdentification, FinalScore: 10},
		{Dimension: models.DimensionFormatIdentification, FinalScore: 65},
		{Dimension: models.DimensionConfigMatch, FinalScore: 25},
		{Dimension: models.DimensionHistoricalAccuracy, FinalScore: 30},
		{Dimension: models.DimensionFieldCompleteness, FinalScore: 69},
	}

	hints := reviewFocus(dimensions)

	if len(hints) != 3 {
		t.Fatalf("reviewFocus returned %d hints, want capped at 3", len(hints))
	}
	// Lowest first: issuer (10), config (25), historical (30).
	if !strings.HasPrefix(hints[0], "issuer_identification") {
		t.Errorf("hints[0] = %q, want issuer_identification first", hints[0])
	}
	if !strings.HasPrefix(hints[1], "config_match") {
		t.Errorf("hints[1] = %q, want config_match second", hints[1])
	}
	if !strings.HasPrefix(hints[2], "historical_accuracy") {
		t.Errorf("hints[2] = %q, want historical_accuracy third", hints[2])
	}
}

func TestReviewFocusEmptyWhenAllHealthy(t *testing.T) {
	dimensions := []models.DimensionScore{
		{Dimension: models.DimensionExtractionQuality, FinalScore: 95},
		{Dimension: models.DimensionTermMatching, FinalScore: 70},
	}
	if hints := reviewFocus(dimensions); len(hints) != 0 {
		t.Errorf("reviewFocus = %v, want none at or above the threshold", hints)
	}
}

func TestSplitFieldsForReview(t *testing.T) {
	value := "v"
	mapping := &models.MappingResult{
		Mapped: []models.MappedFieldValue{
			{TargetField: "confident", Value: &value, Confidence: 90, Validated: true},
			{TargetField: "at_threshold", Value: &value, Confidence: 70, Validated: true},
			{TargetField: "shaky", Value: &value, Confidence: 69.9, Validated: true},
			{TargetField: "failed_validation", Value: &value, Confidence: 99, Validated: false},
		},
	}

	review, approved := splitFieldsForReview(mapping, 70)

	wantApproved := []string{"confident", "at_threshold"}
	wantReview := []string{"shaky", "failed_validation"}
	if len(approved) != len(wantApproved) {
		t.Fatalf("approved = %v, want %v", approved, wantApproved)
	}
	for i := range wantApproved {
		if approved[i] != wantApproved[i] {
			t.Errorf("approved[%d] = %s, want %s", i, approved[i], wantApproved[i])
		}
	}
	if len(review) != len(wantReview) {
		t.Fatalf("review = %v, want %v", review, wantReview)
	}
	for i := range wantReview {
		if review[i] != wantReview[i] {
			t.Errorf("review[%d] = %s, want %s", i, review[i], wantReview[i])
		}
	}
}

func TestSplitFieldsForReviewNilMapping(t *testing.T) {
	review, approved := splitFieldsForReview(nil, 70)
	if review != nil || approved != nil {
		t.Errorf("splitFieldsForReview(nil) = (%v, %v), want (nil, nil)", review, approved)
	}
}
