package services

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/docuflow-inc/docuflow-engine/pkg/config"
	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

// weightSumTolerance is how far the configured weights may drift from 1.0
// before they are renormalized.
const weightSumTolerance = 0.001

// neutralHistoryScore is the raw historical-accuracy score used when no
// aggregate exists for the pair yet.
const neutralHistoryScore = 50.0

// ConfidenceCalculator produces the weighted multi-dimensional confidence
// score and the routing decision for one document-processing pass. Purely
// computational; persistence of the result happens outside the engine.
type ConfidenceCalculator struct {
	tuning *config.TuningStore
	logger *zap.Logger
}

// NewConfidenceCalculator creates a confidence calculator.
func NewConfidenceCalculator(tuning *config.TuningStore, logger *zap.Logger) *ConfidenceCalculator {
	return &ConfidenceCalculator{tuning: tuning, logger: logger}
}

// Calculate scores all seven dimensions, combines them into the overall
// score, decides routing and assembles the audit trail (rationale, review
// focus, per-field review split).
func (c *ConfidenceCalculator) Calculate(input *models.ConfidenceInput) *models.ConfidenceResult {
	tuning := c.tuning.Current()
	weights := c.normalizedWeights(tuning)

	dimensions := []models.DimensionScore{
		c.scoreExtractionQuality(input, tuning),
		c.scoreIssuerIdentification(input, tuning),
		c.scoreFormatIdentification(input, tuning),
		c.scoreConfigMatch(input),
		c.scoreHistoricalAccuracy(input, tuning),
		c.scoreFieldCompleteness(input),
		c.scoreTermMatching(input),
	}

	weightSum := 0.0
	weighted := 0.0
	for i := range dimensions {
		dimensions[i].Weight = weights[dimensions[i].Dimension]
		weighted += dimensions[i].FinalScore * dimensions[i].Weight
		weightSum += dimensions[i].Weight
	}

	overall := 0.0
	if weightSum > 0 {
		overall = weighted / weightSum
	}

	decision := routeDecision(overall, &tuning.Routing)
	review, approved := splitFieldsForReview(input.Mapping, tuning.FieldReviewThreshold)

	return &models.ConfidenceResult{
		Dimensions:            dimensions,
		OverallScore:          overall,
		Decision:              decision,
		Rationale:             buildRationale(decision, dimensions),
		ReviewFocus:           reviewFocus(dimensions),
		FieldsRequiringReview: review,
		AutoApprovedFields:    approved,
	}
}

// normalizedWeights returns the configured weights, proportionally rescaled
// to sum to 1.0 when they do not (within tolerance). Misconfigured weights
// are a logged warning, not an error.
func (c *ConfidenceCalculator) normalizedWeights(tuning *config.Tuning) map[models.Dimension]float64 {
	sum := 0.0
	for _, w := range tuning.Weights {
		sum += w
	}

	if sum == 0 {
		c.logger.Warn("All dimension weights are zero, using equal weights")
		equal := 1.0 / float64(len(models.AllDimensions))
		weights := make(map[models.Dimension]float64, len(models.AllDimensions))
		for _, dim := range models.AllDimensions {
			weights[dim] = equal
		}
		return weights
	}

	weights := make(map[models.Dimension]float64, len(tuning.Weights))
	if math.Abs(sum-1.0) <= weightSumTolerance {
		for dim, w := range tuning.Weights {
			weights[dim] = w
		}
		return weights
	}

	c.logger.Warn("Dimension weights do not sum to 1.0, renormalizing",
		zap.Float64("sum", sum))
	for dim, w := range tuning.Weights {
		weights[dim] = w / sum
	}
	return weights
}

// scoreExtractionQuality averages the source confidence over all extracted
// fields, with a bonus when more than one extraction method contributed.
func (c *ConfidenceCalculator) scoreExtractionQuality(input *models.ConfidenceInput, tuning *config.Tuning) models.DimensionScore {
	raw := 0.0
	extractors := make(map[string]bool)
	for _, field := range input.Extracted {
		raw += field.Confidence
		if field.Extractor != "" {
			extractors[field.Extractor] = true
		}
	}
	if len(input.Extracted) > 0 {
		raw /= float64(len(input.Extracted))
	}

	adjustment := 0.0
	detail := fmt.Sprintf("mean source confidence %.1f over %d fields", raw, len(input.Extracted))
	if len(extractors) >= 2 {
		adjustment = tuning.Adjustments.DualExtractionMethod
		detail += fmt.Sprintf("; %d extraction methods agreed (%+.0f)", len(extractors), adjustment)
	}

	return newDimensionScore(models.DimensionExtractionQuality, raw, adjustment, detail)
}

// scoreIssuerIdentification scores the issuer-matching outcome, penalizing
// auto-created companies that have never been reviewed.
func (c *ConfidenceCalculator) scoreIssuerIdentification(input *models.ConfidenceInput, tuning *config.Tuning) models.DimensionScore {
	if !input.Issuer.Matched {
		return newDimensionScore(models.DimensionIssuerIdentification, 0, 0,
			"issuer not identified")
	}

	raw := input.Issuer.Confidence
	adjustment := 0.0
	detail := fmt.Sprintf("issuer identified via %s at %.1f", input.Issuer.Method, raw)
	if input.Issuer.IsNewCompany {
		adjustment = tuning.Adjustments.IssuerNewCompany
		detail += fmt.Sprintf("; company is new (%+.0f)", adjustment)
	}

	return newDimensionScore(models.DimensionIssuerIdentification, raw, adjustment, detail)
}

// scoreFormatIdentification scores the format-matching outcome. Exact matches
// earn a bonus; auto-created formats take a penalty. An unmatched format gets
// partial credit from the structural similarity score.
func (c *ConfidenceCalculator) scoreFormatIdentification(input *models.ConfidenceInput, tuning *config.Tuning) models.DimensionScore {
	format := input.Format
	if !format.Matched {
		raw := format.Similarity * 100
		return newDimensionScore(models.DimensionFormatIdentification, raw, 0,
			fmt.Sprintf("format not identified; best structural similarity %.0f%%", raw))
	}

	raw := format.Confidence
	adjustment := 0.0
	detail := fmt.Sprintf("format identified via %s at %.1f", format.Method, raw)
	switch {
	case format.AutoCreated:
		adjustment = tuning.Adjustments.FormatAutoCreated
		detail += fmt.Sprintf("; format was auto-created (%+.0f)", adjustment)
	case format.Method == "exact":
		adjustment = tuning.Adjustments.FormatExactMatch
		detail += fmt.Sprintf("; exact match (%+.0f)", adjustment)
	}

	return newDimensionScore(models.DimensionFormatIdentification, raw, adjustment, detail)
}

// scoreConfigMatch rewards resolution against more specific configurations:
// a FORMAT-level rule set beats a COMPANY-level one beats the GLOBAL default,
// and the identity fallback scores lowest.
func (c *ConfidenceCalculator) scoreConfigMatch(input *models.ConfidenceInput) models.DimensionScore {
	scope, ok := input.RuleSet.MostSpecificScope()
	if !ok {
		return newDimensionScore(models.DimensionConfigMatch, 25, 0,
			"no mapping configuration at any scope; identity fallback used")
	}

	raw := 50.0
	switch scope {
	case models.ScopeFormat:
		raw = 100
	case models.ScopeCompany:
		raw = 75
	}
	return newDimensionScore(models.DimensionConfigMatch, raw, 0,
		fmt.Sprintf("resolved %d rules, most specific scope %s", len(input.RuleSet.Rules), scope))
}

// scoreHistoricalAccuracy uses the review subsystem's accuracy aggregate for
// this pair, penalizing aggregates with too few samples to trust.
func (c *ConfidenceCalculator) scoreHistoricalAccuracy(input *models.ConfidenceInput, tuning *config.Tuning) models.DimensionScore {
	if input.History == nil {
		return newDimensionScore(models.DimensionHistoricalAccuracy, neutralHistoryScore, 0,
			"no historical accuracy data for this company/format")
	}

	raw := input.History.AvgCorrectness
	adjustment := 0.0
	detail := fmt.Sprintf("historical correctness %.1f over %d documents", raw, input.History.SampleCount)
	if input.History.SampleCount < tuning.HistoricalMinSample {
		adjustment = tuning.Adjustments.HistoricalSmallSample
		detail += fmt.Sprintf("; sample below %d (%+.0f)", tuning.HistoricalMinSample, adjustment)
	}

	return newDimensionScore(models.DimensionHistoricalAccuracy, raw, adjustment, detail)
}

// scoreFieldCompleteness measures required-field coverage, falling back to
// overall mapped share when the caller declared no required fields.
func (c *ConfidenceCalculator) scoreFieldCompleteness(input *models.ConfidenceInput) models.DimensionScore {
	mapped := make(map[string]bool)
	if input.Mapping != nil {
		for i := range input.Mapping.Mapped {
			if input.Mapping.Mapped[i].EffectiveValue() != nil {
				mapped[input.Mapping.Mapped[i].TargetField] = true
			}
		}
	}

	if len(input.RequiredFields) == 0 {
		total := 0
		if input.Mapping != nil {
			total = len(input.Mapping.Mapped) + len(input.Mapping.Unmapped)
		}
		raw := 0.0
		if total > 0 {
			raw = float64(len(mapped)) / float64(total) * 100
		}
		return newDimensionScore(models.DimensionFieldCompleteness, raw, 0,
			fmt.Sprintf("no required fields declared; %d of %d fields mapped", len(mapped), total))
	}

	filled := 0
	for _, name := range input.RequiredFields {
		if mapped[name] {
			filled++
		}
	}
	raw := float64(filled) / float64(len(input.RequiredFields)) * 100
	return newDimensionScore(models.DimensionFieldCompleteness, raw, 0,
		fmt.Sprintf("%d of %d required fields filled", filled, len(input.RequiredFields)))
}

// scoreTermMatching converts the precomputed term-matching statistics into a
// score; the matching algorithm itself lives upstream.
func (c *ConfidenceCalculator) scoreTermMatching(input *models.ConfidenceInput) models.DimensionScore {
	terms := input.Terms
	if terms.TotalTerms == 0 {
		return newDimensionScore(models.DimensionTermMatching, neutralHistoryScore, 0,
			"no terms to match")
	}

	raw := terms.MatchRate * 100
	detail := fmt.Sprintf("match rate %.0f%% (%d exact, %d fuzzy, %d new, %d unknown of %d)",
		raw, terms.ExactMatches, terms.FuzzyMatches, terms.NewTerms, terms.UnknownTerms, terms.TotalTerms)
	return newDimensionScore(models.DimensionTermMatching, raw, 0, detail)
}

// newDimensionScore applies the adjustment and the [0,100] clamp. Weight is
// filled in by Calculate.
func newDimensionScore(dim models.Dimension, raw, adjustment float64, detail string) models.DimensionScore {
	return models.DimensionScore{
		Dimension:  dim,
		RawScore:   raw,
		Adjustment: adjustment,
		FinalScore: clampScore(raw + adjustment),
		Detail:     detail,
	}
}

// clampScore bounds a score to [0,100].
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
