package models

import (
	"github.com/google/uuid"
)

// RuleProvenance records which configuration supplied a surviving rule
// after the cross-scope merge.
type RuleProvenance struct {
	Scope             ConfigScope `json:"scope"`
	ConfigurationID   uuid.UUID   `json:"configuration_id"`
	ConfigurationName string      `json:"configuration_name"`
}

// ResolvedRule is a mapping rule together with its merge provenance.
type ResolvedRule struct {
	Rule       MappingRule    `json:"rule"`
	Provenance RuleProvenance `json:"provenance"`
}

// EffectiveRuleSet is the merged, priority-ordered rule collection actually
// used for one (company, format) pair. It is a derived, cache-only entity:
// rebuilt on cache miss or invalidation, never persisted.
type EffectiveRuleSet struct {
	CompanyID        uuid.UUID      `json:"company_id"`
	DocumentFormatID uuid.UUID      `json:"document_format_id"`
	Rules            []ResolvedRule `json:"rules"`
}

// IsEmpty reports whether no configuration contributed any rule.
func (s *EffectiveRuleSet) IsEmpty() bool {
	return s == nil || len(s.Rules) == 0
}

// RuleForTarget returns the winning rule for a target field, or nil.
func (s *EffectiveRuleSet) RuleForTarget(targetField string) *ResolvedRule {
	if s == nil {
		return nil
	}
	for i := range s.Rules {
		if s.Rules[i].Rule.TargetField == targetField {
			return &s.Rules[i]
		}
	}
	return nil
}

// MostSpecificScope returns the narrowest scope that contributed at least one
// surviving rule, or ("", false) for an empty set. Feeds the configuration-match
// confidence dimension.
func (s *EffectiveRuleSet) MostSpecificScope() (ConfigScope, bool) {
	if s.IsEmpty() {
		return "", false
	}
	best := s.Rules[0].Provenance.Scope
	for i := range s.Rules {
		if s.Rules[i].Provenance.Scope.Specificity() > best.Specificity() {
			best = s.Rules[i].Provenance.Scope
		}
	}
	return best, true
}
