package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docuflow-inc/docuflow-engine/pkg/apperrors"
	"github.com/docuflow-inc/docuflow-engine/pkg/cache"
	"github.com/docuflow-inc/docuflow-engine/pkg/config"
	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

// fakeConfigStore serves canned configurations per scope and counts fetches.
type fakeConfigStore struct {
	global  *models.MappingConfiguration
	company *models.MappingConfiguration
	format  *models.MappingConfiguration
	errs    map[models.ConfigScope]error
	fetches atomic.Int64
}

func (s *fakeConfigStore) GetActive(_ context.Context, scope models.ConfigScope, _, _ *uuid.UUID) (*models.MappingConfiguration, error) {
	s.fetches.Add(1)
	if err, ok := s.errs[scope]; ok {
		return nil, err
	}
	var cfg *models.MappingConfiguration
	switch scope {
	case models.ScopeGlobal:
		cfg = s.global
	case models.ScopeCompany:
		cfg = s.company
	case models.ScopeFormat:
		cfg = s.format
	}
	if cfg == nil {
		return nil, apperrors.ErrNotFound
	}
	return cfg, nil
}

func configAt(scope models.ConfigScope, name string, rules ...models.MappingRule) *models.MappingConfiguration {
	cfg := &models.MappingConfiguration{
		ID:     uuid.New(),
		Scope:  scope,
		Name:   name,
		Active: true,
	}
	for i := range rules {
		rules[i].ConfigurationID = cfg.ID
		if rules[i].ID == uuid.Nil {
			rules[i].ID = uuid.New()
		}
	}
	cfg.Rules = rules
	return cfg
}

func directRule(target, source string, priority int) models.MappingRule {
	return models.MappingRule{
		ID:            uuid.New(),
		SourceFields:  []string{source},
		TargetField:   target,
		TransformKind: models.TransformDirect,
		Priority:      priority,
		Active:        true,
	}
}

func newTestResolver(store ConfigurationFetcher) (*RuleResolver, *cache.MemoryCache) {
	mem := cache.NewMemoryCache(0)
	tuning := config.NewStaticTuningStore(config.DefaultTuning())
	return NewRuleResolver(store, mem, tuning, zap.NewNop()), mem
}

func TestRuleResolver_ResolveMergesScopes(t *testing.T) {
	store := &fakeConfigStore{
		global: configAt(models.ScopeGlobal, "defaults",
			directRule("invoice_number", "inv_no", 10),
			directRule("invoice_date", "date", 20),
		),
		company: configAt(models.ScopeCompany, "acme overrides",
			directRule("invoice_date", "issue_date", 20),
			directRule("po_number", "po", 30),
		),
		format: configAt(models.ScopeFormat, "acme pdf v2",
			directRule("invoice_number", "document_ref", 10),
		),
	}
	resolver, mem := newTestResolver(store)
	defer mem.Close()

	ruleSet, err := resolver.Resolve(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if len(ruleSet.Rules) != 3 {
		t.Fatalf("Resolve produced %d rules, want 3 (disjoint targets retained)", len(ruleSet.Rules))
	}

	invoiceNumber := ruleSet.RuleForTarget("invoice_number")
	if invoiceNumber == nil || invoiceNumber.Provenance.Scope != models.ScopeFormat {
		t.Errorf("invoice_number won by %+v, want FORMAT scope", invoiceNumber)
	}
	if invoiceNumber != nil && invoiceNumber.Rule.SourceFields[0] != "document_ref" {
		t.Errorf("invoice_number source = %v, want document_ref", invoiceNumber.Rule.SourceFields)
	}

	invoiceDate := ruleSet.RuleForTarget("invoice_date")
	if invoiceDate == nil || invoiceDate.Provenance.Scope != models.ScopeCompany {
		t.Errorf("invoice_date won by %+v, want COMPANY scope", invoiceDate)
	}

	poNumber := ruleSet.RuleForTarget("po_number")
	if poNumber == nil || poNumber.Provenance.Scope != models.ScopeCompany {
		t.Errorf("po_number won by %+v, want COMPANY scope", poNumber)
	}

	if scope, ok := ruleSet.MostSpecificScope(); !ok || scope != models.ScopeFormat {
		t.Errorf("MostSpecificScope = (%v, %v), want (FORMAT, true)", scope, ok)
	}
}

func TestRuleResolver_ResolveOrdersByPriorityThenTarget(t *testing.T) {
	store := &fakeConfigStore{
		global: configAt(models.ScopeGlobal, "defaults",
			directRule("zeta", "z", 10),
			directRule("alpha", "a", 10),
			directRule("first", "f", 1),
		),
	}
	resolver, mem := newTestResolver(store)
	defer mem.Close()

	ruleSet, err := resolver.Resolve(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	got := make([]string, 0, len(ruleSet.Rules))
	for _, r := range ruleSet.Rules {
		got = append(got, r.Rule.TargetField)
	}
	want := []string{"first", "alpha", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rule order = %v, want %v", got, want)
		}
	}
}

func TestRuleResolver_ResolveSkipsInactiveRules(t *testing.T) {
	inactive := directRule("invoice_number", "inv_no", 10)
	inactive.Active = false
	store := &fakeConfigStore{
		global: configAt(models.ScopeGlobal, "defaults", inactive),
	}
	resolver, mem := newTestResolver(store)
	defer mem.Close()

	ruleSet, err := resolver.Resolve(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !ruleSet.IsEmpty() {
		t.Errorf("Resolve rules = %+v, want empty (only rule inactive)", ruleSet.Rules)
	}
}

func TestRuleResolver_ResolveCachesResult(t *testing.T) {
	store := &fakeConfigStore{
		global: configAt(models.ScopeGlobal, "defaults", directRule("invoice_number", "inv_no", 10)),
	}
	resolver, mem := newTestResolver(store)
	defer mem.Close()

	companyID, formatID := uuid.New(), uuid.New()
	first, err := resolver.Resolve(context.Background(), companyID, formatID)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	after := store.fetches.Load()
	if after != 3 {
		t.Fatalf("cold resolve made %d fetches, want 3", after)
	}

	second, err := resolver.Resolve(context.Background(), companyID, formatID)
	if err != nil {
		t.Fatalf("second Resolve returned error: %v", err)
	}
	if store.fetches.Load() != after {
		t.Errorf("warm resolve hit the store (%d fetches total)", store.fetches.Load())
	}
	if first != second {
		t.Error("warm resolve returned a different rule set instance")
	}
}

func TestRuleResolver_ResolveDegradesOnScopeFailure(t *testing.T) {
	store := &fakeConfigStore{
		global: configAt(models.ScopeGlobal, "defaults", directRule("invoice_number", "inv_no", 10)),
		errs:   map[models.ConfigScope]error{models.ScopeCompany: errors.New("connection refused")},
	}
	resolver, mem := newTestResolver(store)
	defer mem.Close()

	ruleSet, err := resolver.Resolve(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("Resolve returned error: %v, want degraded success", err)
	}
	if len(ruleSet.Rules) != 1 {
		t.Errorf("Resolve produced %d rules, want 1 from the surviving scope", len(ruleSet.Rules))
	}
}

func TestRuleResolver_ResolveStrictSurfacesFailure(t *testing.T) {
	store := &fakeConfigStore{
		global: configAt(models.ScopeGlobal, "defaults", directRule("invoice_number", "inv_no", 10)),
		errs:   map[models.ConfigScope]error{models.ScopeCompany: errors.New("connection refused")},
	}
	resolver, mem := newTestResolver(store)
	defer mem.Close()

	if _, err := resolver.ResolveStrict(context.Background(), uuid.New(), uuid.New()); err == nil {
		t.Fatal("ResolveStrict returned nil error, want store failure surfaced")
	}
}

func TestRuleResolver_ResolveEmptyEverywhere(t *testing.T) {
	resolver, mem := newTestResolver(&fakeConfigStore{})
	defer mem.Close()

	ruleSet, err := resolver.Resolve(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("Resolve returned error: %v, want empty rule set", err)
	}
	if !ruleSet.IsEmpty() {
		t.Errorf("Resolve rules = %+v, want empty", ruleSet.Rules)
	}
	if _, ok := ruleSet.MostSpecificScope(); ok {
		t.Error("MostSpecificScope reported a scope for an empty set")
	}
}

func TestRuleResolver_InvalidateFor(t *testing.T) {
	store := &fakeConfigStore{
		global: configAt(models.ScopeGlobal, "defaults", directRule("invoice_number", "inv_no", 10)),
	}
	resolver, mem := newTestResolver(store)
	defer mem.Close()

	companyID, formatID := uuid.New(), uuid.New()
	if _, err := resolver.Resolve(context.Background(), companyID, formatID); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if mem.Len() != 1 {
		t.Fatalf("cache has %d entries, want 1", mem.Len())
	}

	resolver.InvalidateFor(context.Background(), &models.MappingConfiguration{
		Scope:     models.ScopeCompany,
		CompanyID: &companyID,
	})
	if mem.Len() != 0 {
		t.Errorf("cache has %d entries after company invalidation, want 0", mem.Len())
	}
}

func TestRuleResolver_InvalidateForGlobalClearsAll(t *testing.T) {
	store := &fakeConfigStore{
		global: configAt(models.ScopeGlobal, "defaults", directRule("invoice_number", "inv_no", 10)),
	}
	resolver, mem := newTestResolver(store)
	defer mem.Close()

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), uuid.New(), uuid.New()); err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
	}
	if mem.Len() != 3 {
		t.Fatalf("cache has %d entries, want 3", mem.Len())
	}

	resolver.InvalidateFor(context.Background(), &models.MappingConfiguration{Scope: models.ScopeGlobal})
	if mem.Len() != 0 {
		t.Errorf("cache has %d entries after global invalidation, want 0", mem.Len())
	}
}
