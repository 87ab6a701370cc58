package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docuflow-inc/docuflow-engine/pkg/apperrors"
	"github.com/docuflow-inc/docuflow-engine/pkg/models"
	"github.com/docuflow-inc/docuflow-engine/pkg/repositories"
)

// DocumentInput is everything the engine needs for one document pass: the
// pair identifying its configuration, the extracted fields, and the
// identification/term signals computed upstream.
type DocumentInput struct {
	CompanyID        uuid.UUID                    `json:"company_id"`
	DocumentFormatID uuid.UUID                    `json:"document_format_id"`
	Extracted        []models.ExtractedFieldValue `json:"extracted"`
	Issuer           models.IssuerIdentification  `json:"issuer"`
	Format           models.FormatIdentification  `json:"format"`
	Terms            models.TermMatchingStats     `json:"terms"`
	RequiredFields   []string                     `json:"required_fields"`
}

// DocumentOutcome is the full result of one pass, serializable as an opaque
// record for audit logging. Nothing is dropped; reviewers depend on the
// dimension provenance text.
type DocumentOutcome struct {
	RuleSet    *models.EffectiveRuleSet `json:"rule_set"`
	Mapping    *models.MappingResult    `json:"mapping"`
	Confidence *models.ConfidenceResult `json:"confidence"`
}

// DocumentProcessor composes the pipeline: resolve configuration, map fields,
// score confidence, decide routing. Safe for concurrent use; the rule-set
// cache is the only shared state.
type DocumentProcessor struct {
	resolver   *RuleResolver
	mapper     *FieldMappingEngine
	calculator *ConfidenceCalculator
	accuracy   repositories.AccuracyRepository
	logger     *zap.Logger
}

// NewDocumentProcessor creates a document processor. The accuracy repository
// may be nil; the historical dimension then scores neutrally.
func NewDocumentProcessor(
	resolver *RuleResolver,
	mapper *FieldMappingEngine,
	calculator *ConfidenceCalculator,
	accuracy repositories.AccuracyRepository,
	logger *zap.Logger,
) *DocumentProcessor {
	return &DocumentProcessor{
		resolver:   resolver,
		mapper:     mapper,
		calculator: calculator,
		accuracy:   accuracy,
		logger:     logger,
	}
}

// Process runs one document through the pipeline. A document always receives
// a routing decision: configuration and history lookups degrade rather than
// fail, and only a hard resolver error aborts the pass.
func (p *DocumentProcessor) Process(ctx context.Context, input *DocumentInput) (*DocumentOutcome, error) {
	ruleSet, err := p.resolver.Resolve(ctx, input.CompanyID, input.DocumentFormatID)
	if err != nil {
		return nil, fmt.Errorf("resolving rule set: %w", err)
	}

	mapping := p.mapper.Map(input.Extracted, ruleSet)
	history := p.fetchHistory(ctx, input.CompanyID, input.DocumentFormatID)

	confidence := p.calculator.Calculate(&models.ConfidenceInput{
		Extracted:      input.Extracted,
		Mapping:        mapping,
		RuleSet:        ruleSet,
		Issuer:         input.Issuer,
		Format:         input.Format,
		History:        history,
		Terms:          input.Terms,
		RequiredFields: input.RequiredFields,
	})

	p.logger.Info("Document processed",
		zap.String("company_id", input.CompanyID.String()),
		zap.String("format_id", input.DocumentFormatID.String()),
		zap.Int("mapped", len(mapping.Mapped)),
		zap.Int("unmapped", len(mapping.Unmapped)),
		zap.Float64("overall_score", confidence.OverallScore),
		zap.String("decision", confidence.Decision.String()))

	return &DocumentOutcome{
		RuleSet:    ruleSet,
		Mapping:    mapping,
		Confidence: confidence,
	}, nil
}

// ProcessBatch processes many documents concurrently, bounded by the
// caller-supplied limit. Outcomes are returned in input order. The first hard
// failure cancels the remaining work.
func (p *DocumentProcessor) ProcessBatch(ctx context.Context, inputs []*DocumentInput, concurrency int) ([]*DocumentOutcome, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	outcomes := make([]*DocumentOutcome, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			outcome, err := p.Process(gctx, input)
			if err != nil {
				return fmt.Errorf("document %d: %w", i, err)
			}
			outcomes[i] = outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// fetchHistory loads the most specific accuracy aggregate for the pair.
// Missing data or a store failure scores the dimension neutrally.
func (p *DocumentProcessor) fetchHistory(ctx context.Context, companyID, formatID uuid.UUID) *models.AccuracyStats {
	if p.accuracy == nil {
		return nil
	}
	stats, err := p.accuracy.GetMostSpecific(ctx, companyID, formatID)
	if err == nil {
		return stats
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		p.logger.Warn("Historical accuracy lookup degraded to neutral",
			zap.String("company_id", companyID.String()),
			zap.String("format_id", formatID.String()),
			zap.Error(err))
	}
	return nil
}
