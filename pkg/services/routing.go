package services

import (
	"fmt"
	"sort"

	"github.com/docuflow-inc/docuflow-engine/pkg/config"
	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

// reviewFocusThreshold is the dimension score under which a review-focus hint
// is generated.
const reviewFocusThreshold = 70.0

// reviewFocusHints is the fixed human-readable hint per dimension, shown to
// reviewers alongside the routing decision.
var reviewFocusHints = map[models.Dimension]string{
	models.DimensionExtractionQuality:    "Verify extracted values against the source document",
	models.DimensionIssuerIdentification: "Confirm the issuing company is correct",
	models.DimensionFormatIdentification: "Confirm the document format assignment",
	models.DimensionConfigMatch:          "Mapping relied on broad defaults; check configuration coverage for this company/format",
	models.DimensionHistoricalAccuracy:   "Accuracy for this company/format is low or unproven; spot-check mapped fields",
	models.DimensionFieldCompleteness:    "Fill in missing required fields",
	models.DimensionTermMatching:         "Review unrecognized line-item terms",
}

// routeDecision is a pure threshold function of the overall score, inclusive
// on the upper side of each boundary.
func routeDecision(overall float64, thresholds *config.RoutingThresholds) models.RoutingDecision {
	switch {
	case overall >= thresholds.AutoApprove:
		return models.RouteAutoApprove
	case overall >= thresholds.QuickReview:
		return models.RouteQuickReview
	default:
		return models.RouteFullReview
	}
}

// buildRationale generates a short sentence naming the two dimensions that
// drove the decision: the strongest for an auto-approval, the weakest for
// either review tier.
func buildRationale(decision models.RoutingDecision, dimensions []models.DimensionScore) string {
	ranked := make([]models.DimensionScore, len(dimensions))
	copy(ranked, dimensions)

	if decision == models.RouteAutoApprove {
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].FinalScore > ranked[j].FinalScore
		})
		return fmt.Sprintf("Auto-approved: strongest signals were %s (%.1f) and %s (%.1f).",
			ranked[0].Dimension, ranked[0].FinalScore,
			ranked[1].Dimension, ranked[1].FinalScore)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore < ranked[j].FinalScore
	})
	tier := "full review"
	if decision == models.RouteQuickReview {
		tier = "quick review"
	}
	return fmt.Sprintf("Routed to %s: weakest signals were %s (%.1f) and %s (%.1f).",
		tier,
		ranked[0].Dimension, ranked[0].FinalScore,
		ranked[1].Dimension, ranked[1].FinalScore)
}

// reviewFocus selects the up-to-three lowest-scoring dimensions below the
// focus threshold and attaches their fixed hints, lowest first.
func reviewFocus(dimensions []models.DimensionScore) []string {
	low := make([]models.DimensionScore, 0, len(dimensions))
	for _, dim := range dimensions {
		if dim.FinalScore < reviewFocusThreshold {
			low = append(low, dim)
		}
	}
	sort.SliceStable(low, func(i, j int) bool {
		return low[i].FinalScore < low[j].FinalScore
	})
	if len(low) > 3 {
		low = low[:3]
	}

	hints := make([]string, 0, len(low))
	for _, dim := range low {
		hints = append(hints, fmt.Sprintf("%s (%.0f): %s",
			dim.Dimension, dim.FinalScore, reviewFocusHints[dim.Dimension]))
	}
	return hints
}

// splitFieldsForReview partitions mapped fields into those a reviewer must
// look at (low confidence or failed validation) and those safe to
// auto-approve. Unmapped fields always require review attention and are
// reported separately by the mapping result.
func splitFieldsForReview(mapping *models.MappingResult, threshold float64) (review, approved []string) {
	if mapping == nil {
		return nil, nil
	}
	for i := range mapping.Mapped {
		field := &mapping.Mapped[i]
		if field.Confidence < threshold || !field.Validated {
			review = append(review, field.TargetField)
		} else {
			approved = append(approved, field.TargetField)
		}
	}
	return review, approved
}
