package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docuflow-inc/docuflow-engine/pkg/apperrors"
	"github.com/docuflow-inc/docuflow-engine/pkg/cache"
	"github.com/docuflow-inc/docuflow-engine/pkg/config"
	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

// ConfigurationFetcher is the read side of the configuration store the
// resolver depends on. Satisfied by repositories.MappingConfigRepository.
type ConfigurationFetcher interface {
	GetActive(ctx context.Context, scope models.ConfigScope, companyID, formatID *uuid.UUID) (*models.MappingConfiguration, error)
}

// RuleResolver merges the GLOBAL, COMPANY and FORMAT configurations for a
// (company, format) pair into one effective rule set and caches the result.
type RuleResolver struct {
	store  ConfigurationFetcher
	cache  cache.RuleSetCache
	tuning *config.TuningStore
	logger *zap.Logger
}

// NewRuleResolver creates a rule resolver.
func NewRuleResolver(store ConfigurationFetcher, ruleSetCache cache.RuleSetCache, tuning *config.TuningStore, logger *zap.Logger) *RuleResolver {
	return &RuleResolver{
		store:  store,
		cache:  ruleSetCache,
		tuning: tuning,
		logger: logger,
	}
}

// Resolve returns the effective rule set for the pair, from cache when warm.
// A store failure or timeout at one scope degrades to "no configuration at
// that scope" with an operational warning; the pipeline keeps going. An empty
// rule set (no configuration anywhere) is a valid result, not an error.
func (r *RuleResolver) Resolve(ctx context.Context, companyID, formatID uuid.UUID) (*models.EffectiveRuleSet, error) {
	return r.resolve(ctx, companyID, formatID, false)
}

// ResolveStrict is Resolve for callers that require strict consistency:
// any store failure is surfaced instead of degraded.
func (r *RuleResolver) ResolveStrict(ctx context.Context, companyID, formatID uuid.UUID) (*models.EffectiveRuleSet, error) {
	return r.resolve(ctx, companyID, formatID, true)
}

func (r *RuleResolver) resolve(ctx context.Context, companyID, formatID uuid.UUID, strict bool) (*models.EffectiveRuleSet, error) {
	key := cache.Key{CompanyID: companyID, DocumentFormatID: formatID}
	if ruleSet, ok := r.cache.Get(ctx, key); ok {
		return ruleSet, nil
	}

	// Fetch the three candidate configurations in parallel. Slots keep the
	// fixed GLOBAL, COMPANY, FORMAT merge order regardless of completion order.
	configs := make([]*models.MappingConfiguration, 3)
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(slot int, scope models.ConfigScope, companyKey, formatKey *uuid.UUID) {
		g.Go(func() error {
			cfg, err := r.fetchScope(gctx, scope, companyKey, formatKey, strict)
			if err != nil {
				return err
			}
			configs[slot] = cfg
			return nil
		})
	}
	fetch(0, models.ScopeGlobal, nil, nil)
	fetch(1, models.ScopeCompany, &companyID, nil)
	fetch(2, models.ScopeFormat, nil, &formatID)

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to resolve configurations for %s: %w", key, err)
	}

	ruleSet := mergeConfigurations(companyID, formatID, configs)
	r.cache.Set(ctx, key, ruleSet)
	return ruleSet, nil
}

// fetchScope looks up one scope's active configuration within the configured
// timeout. Not-found is a nil configuration. In degrade mode any other
// failure, timeouts included, also yields nil, logged for alerting.
func (r *RuleResolver) fetchScope(ctx context.Context, scope models.ConfigScope, companyID, formatID *uuid.UUID, strict bool) (*models.MappingConfiguration, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.tuning.Current().FetchTimeout())
	defer cancel()

	cfg, err := r.store.GetActive(fetchCtx, scope, companyID, formatID)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if strict {
		return nil, fmt.Errorf("fetching %s configuration: %w", scope, err)
	}
	r.logger.Warn("Configuration fetch degraded to empty scope",
		zap.String("scope", scope.String()),
		zap.Error(err))
	return nil, nil
}

// InvalidateFor drops the cache entries a configuration write could affect.
// COMPANY and FORMAT writes invalidate by their key dimension; a GLOBAL write
// conservatively clears the whole cache.
func (r *RuleResolver) InvalidateFor(ctx context.Context, cfg *models.MappingConfiguration) {
	switch cfg.Scope {
	case models.ScopeCompany:
		if cfg.CompanyID != nil {
			r.cache.InvalidateCompany(ctx, *cfg.CompanyID)
			return
		}
	case models.ScopeFormat:
		if cfg.DocumentFormatID != nil {
			r.cache.InvalidateFormat(ctx, *cfg.DocumentFormatID)
			return
		}
	}
	r.cache.Clear(ctx)
}

// mergeConfigurations merges rule lists in GLOBAL, COMPANY, FORMAT order so a
// later scope's rule for the same target field replaces the earlier one,
// while rules for disjoint targets are all retained. Final execution order is
// each surviving rule's own priority; priorities are only meaningful within
// their original configuration, so equal priorities across scopes fall back
// to target-field order for determinism.
func mergeConfigurations(companyID, formatID uuid.UUID, configs []*models.MappingConfiguration) *models.EffectiveRuleSet {
	byTarget := make(map[string]models.ResolvedRule)
	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		provenance := models.RuleProvenance{
			Scope:             cfg.Scope,
			ConfigurationID:   cfg.ID,
			ConfigurationName: cfg.Name,
		}
		for _, rule := range cfg.Rules {
			if !rule.Active {
				continue
			}
			byTarget[rule.TargetField] = models.ResolvedRule{
				Rule:       rule,
				Provenance: provenance,
			}
		}
	}

	rules := make([]models.ResolvedRule, 0, len(byTarget))
	for _, resolved := range byTarget {
		rules = append(rules, resolved)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Rule.Priority != rules[j].Rule.Priority {
			return rules[i].Rule.Priority < rules[j].Rule.Priority
		}
		return rules[i].Rule.TargetField < rules[j].Rule.TargetField
	})

	return &models.EffectiveRuleSet{
		CompanyID:        companyID,
		DocumentFormatID: formatID,
		Rules:            rules,
	}
}
