// Package rules loads eligibility and pre-approval rule definitions and runs
// them through the evaluation pipeline.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/condition"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine keeps one loaded rule set per tenant. Loads swap the whole set
// under the lock; evaluations read a snapshot and never block reloads.
type Engine struct {
	mu         sync.RWMutex
	sets       map[string]*RuleSet
	loader     *Loader
	pipeline   *Pipeline
	conditions *condition.Engine
	now        func() time.Time
}

// NewEngine creates a rule engine from the engine configuration.
func NewEngine(cfg domain.EngineConfig) (*Engine, error) {
	conditions := condition.NewEngine(cfg.ConditionMaxDepth)
	loader, err := NewLoader(conditions)
	if err != nil {
		return nil, err
	}
	return &Engine{
		sets:       make(map[string]*RuleSet),
		loader:     loader,
		pipeline:   NewPipeline(conditions, cfg.ProcessingTable),
		conditions: conditions,
		now:        time.Now,
	}, nil
}

// Conditions returns the condition engine rules are evaluated with.
func (e *Engine) Conditions() *condition.Engine {
	return e.conditions
}

// Validate checks a definition document without changing loaded rules.
func (e *Engine) Validate(defs *Definitions) error {
	_, err := e.loader.LoadRuleSet(defs, e.now())
	return err
}

// Load validates defs and replaces the tenant's rule set with the rules in
// force today. On error the previous set stays loaded.
func (e *Engine) Load(tenantID string, defs *Definitions) (*RuleSet, error) {
	set, err := e.loader.LoadRuleSet(defs, e.now())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sets[tenantID] = set
	return set, nil
}

// Reload rebuilds a tenant's rule set from the repository.
// This enables hot-reloading of rules from the database.
func (e *Engine) Reload(ctx context.Context, repo domain.Repository, tenantID string) (*RuleSet, error) {
	defs, err := Stored(ctx, repo, tenantID)
	if err != nil {
		return nil, err
	}
	return e.Load(tenantID, defs)
}

// Stored reads every stored definition of a tenant, disabled ones included.
func Stored(ctx context.Context, repo domain.Repository, tenantID string) (*Definitions, error) {
	var records []*domain.RuleRecord
	for _, kind := range []domain.RuleKind{domain.RuleKindEligibility, domain.RuleKindPreapproval} {
		recs, err := repo.ListRules(ctx, tenantID, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s rules: %w", kind, err)
		}
		records = append(records, recs...)
	}
	return FromRecords(records)
}

// Snapshot returns the tenant's current rule set. A tenant with nothing
// loaded gets an empty set.
func (e *Engine) Snapshot(tenantID string) *RuleSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if set, ok := e.sets[tenantID]; ok {
		return set
	}
	return &RuleSet{}
}

// Tenants returns the ids of tenants with a loaded rule set.
func (e *Engine) Tenants() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.sets))
	for id := range e.sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RulesCount returns the number of rules in force for a tenant.
func (e *Engine) RulesCount(tenantID string) int {
	return e.Snapshot(tenantID).Len()
}

// EvaluateEligibility runs the tenant's eligibility rules against input.
func (e *Engine) EvaluateEligibility(ctx context.Context, tenantID string, input map[string]any, overrideCodes []string) *domain.EligibilityResult {
	return e.pipeline.EvaluateEligibility(ctx, tenantID, e.Snapshot(tenantID), input, overrideCodes)
}

// EvaluatePreapproval runs the tenant's pre-approval rules against input.
func (e *Engine) EvaluatePreapproval(ctx context.Context, tenantID string, input map[string]any, estimatedCost decimal.Decimal, overrideCodes []string) *domain.PreapprovalResult {
	return e.pipeline.EvaluatePreapproval(ctx, tenantID, e.Snapshot(tenantID), input, estimatedCost, overrideCodes)
}

// Close drops every loaded rule set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sets = make(map[string]*RuleSet)
	return nil
}
