package models

import (
	"github.com/google/uuid"
)

// Dimension identifies one of the seven independent signal categories
// contributing to the overall confidence score.
type Dimension string

const (
	DimensionExtractionQuality    Dimension = "extraction_quality"
	DimensionIssuerIdentification Dimension = "issuer_identification"
	DimensionFormatIdentification Dimension = "format_identification"
	DimensionConfigMatch          Dimension = "config_match"
	DimensionHistoricalAccuracy   Dimension = "historical_accuracy"
	DimensionFieldCompleteness    Dimension = "field_completeness"
	DimensionTermMatching         Dimension = "term_matching"
)

// AllDimensions lists every dimension in reporting order.
var AllDimensions = []Dimension{
	DimensionExtractionQuality,
	DimensionIssuerIdentification,
	DimensionFormatIdentification,
	DimensionConfigMatch,
	DimensionHistoricalAccuracy,
	DimensionFieldCompleteness,
	DimensionTermMatching,
}

// String returns the string representation of a Dimension.
func (d Dimension) String() string {
	return string(d)
}

// RoutingDecision is the three-way outcome determining how much human
// oversight a document receives.
type RoutingDecision string

const (
	RouteAutoApprove RoutingDecision = "AUTO_APPROVE"
	RouteQuickReview RoutingDecision = "QUICK_REVIEW"
	RouteFullReview  RoutingDecision = "FULL_REVIEW"
)

// String returns the string representation of a RoutingDecision.
func (r RoutingDecision) String() string {
	return string(r)
}

// IssuerIdentification is the issuer-matching outcome supplied by the
// extraction subsystem.
type IssuerIdentification struct {
	Matched      bool    `json:"matched"`
	Method       string  `json:"method"` // e.g. "name", "keyword", "format", "logo_text"
	Confidence   float64 `json:"confidence"`
	IsNewCompany bool    `json:"is_new_company"`
}

// FormatIdentification is the document-format-matching outcome supplied by
// the extraction subsystem.
type FormatIdentification struct {
	Matched     bool    `json:"matched"`
	Method      string  `json:"method"` // e.g. "exact", "similarity", "auto_created"
	Confidence  float64 `json:"confidence"`
	Similarity  float64 `json:"similarity"` // 0-1 structural similarity to the known format
	AutoCreated bool    `json:"auto_created"`
}

// TermMatchingStats are precomputed term-learning statistics; the matching
// algorithm itself lives upstream.
type TermMatchingStats struct {
	TotalTerms   int     `json:"total_terms"`
	ExactMatches int     `json:"exact_matches"`
	FuzzyMatches int     `json:"fuzzy_matches"`
	NewTerms     int     `json:"new_terms"`
	UnknownTerms int     `json:"unknown_terms"`
	MatchRate    float64 `json:"match_rate"` // 0-1
}

// AccuracyStats is a read-only historical-accuracy aggregate for a company,
// a format, a company+format pair, or globally.
type AccuracyStats struct {
	CompanyID        *uuid.UUID `json:"company_id,omitempty"`
	DocumentFormatID *uuid.UUID `json:"document_format_id,omitempty"`
	SampleCount      int        `json:"sample_count"`
	AvgCorrectness   float64    `json:"avg_correctness"` // 0-100
}

// ConfidenceInput bundles the seven signal groups consumed by the
// confidence calculator.
type ConfidenceInput struct {
	Extracted []ExtractedFieldValue `json:"extracted"`
	Mapping   *MappingResult        `json:"mapping"`
	RuleSet   *EffectiveRuleSet     `json:"rule_set"`
	Issuer    IssuerIdentification  `json:"issuer"`
	Format    FormatIdentification  `json:"format"`
	History   *AccuracyStats        `json:"history,omitempty"` // nil when no aggregate exists
	Terms     TermMatchingStats     `json:"terms"`

	// RequiredFields drives the field-completeness dimension. Fields not
	// listed are treated as optional.
	RequiredFields []string `json:"required_fields"`
}

// DimensionScore is the scored outcome of one confidence dimension.
type DimensionScore struct {
	Dimension  Dimension `json:"dimension"`
	RawScore   float64   `json:"raw_score"`
	Weight     float64   `json:"weight"`
	Adjustment float64   `json:"adjustment"` // signed bonus/penalty applied to the raw score
	FinalScore float64   `json:"final_score"`
	Detail     string    `json:"detail"` // human-readable provenance, kept for reviewers
}

// ConfidenceResult aggregates all dimension scores into one overall score,
// a routing decision and its audit trail. Immutable once produced.
type ConfidenceResult struct {
	Dimensions   []DimensionScore `json:"dimensions"`
	OverallScore float64          `json:"overall_score"`
	Decision     RoutingDecision  `json:"decision"`
	Rationale    string           `json:"rationale"`
	ReviewFocus  []string         `json:"review_focus,omitempty"`

	// Review split consumed by the routing/queueing subsystem.
	FieldsRequiringReview []string `json:"fields_requiring_review,omitempty"`
	AutoApprovedFields    []string `json:"auto_approved_fields,omitempty"`
}

// Score returns the DimensionScore for a dimension, or nil.
func (r *ConfidenceResult) Score(d Dimension) *DimensionScore {
	for i := range r.Dimensions {
		if r.Dimensions[i].Dimension == d {
			return &r.Dimensions[i]
		}
	}
	return nil
}
