package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/kestrel/internal/condition"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// criteria is the compiled decision part of a rule. Exactly one of
// node and program is set for rules with criteria.
type criteria struct {
	node    *domain.ConditionNode
	program cel.Program
}

func (c criteria) empty() bool {
	return c.node == nil && c.program == nil
}

// check evaluates the criteria. Structural faults and runtime CEL errors
// are returned; a missing field is simply false.
func (c criteria) check(conditions *condition.Engine, input map[string]any) (bool, error) {
	if c.program != nil {
		return evalExpression(c.program, input)
	}
	return conditions.Check(c.node, input)
}

// CompiledEligibility is an eligibility rule ready for evaluation.
type CompiledEligibility struct {
	Rule domain.EligibilityRule
	criteria
}

// CompiledPreapproval is a pre-approval rule ready for evaluation.
type CompiledPreapproval struct {
	Rule domain.PreapprovalRule
	criteria
}

// RuleSet is an immutable, ordered snapshot of the rules in force on AsOf.
// It is safe to share between concurrent evaluations.
type RuleSet struct {
	Eligibility []*CompiledEligibility
	Preapproval []*CompiledPreapproval
	AsOf        time.Time
	LoadedAt    time.Time

	// Skipped counts valid rules left out as inactive or outside their window.
	Skipped int
}

// Len returns the number of rules in force.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Eligibility) + len(s.Preapproval)
}

// Loader validates definitions and compiles them into rule sets.
type Loader struct {
	conditions *condition.Engine
	env        *cel.Env
}

// NewLoader creates a loader that validates condition trees with conditions.
func NewLoader(conditions *condition.Engine) (*Loader, error) {
	env, err := newCELEnv()
	if err != nil {
		return nil, err
	}
	if conditions == nil {
		conditions = condition.NewEngine(condition.DefaultMaxDepth)
	}
	return &Loader{conditions: conditions, env: env}, nil
}

// LoadRuleSet validates every definition, rejects cyclic parent chains, and
// returns the rules in force on asOf ordered by priority, category, then id.
//
// Invalid definitions yield domain.ValidationErrors naming each rule id.
// Unknown or cyclic parents yield a *domain.ConfigurationError. Both are
// checked across inactive rules too, so a broken document never activates.
func (l *Loader) LoadRuleSet(defs *Definitions, asOf time.Time) (*RuleSet, error) {
	if defs == nil {
		defs = &Definitions{}
	}

	var errs domain.ValidationErrors
	eligibility := make([]*CompiledEligibility, 0, len(defs.Eligibility))
	seen := make(map[string]bool)
	for i := range defs.Eligibility {
		rule := defs.Eligibility[i]
		path := fmt.Sprintf("eligibility[%d]", i)
		c, ruleErrs := l.compileEligibility(&rule, path)
		errs = append(errs, duplicate(seen, rule.ID, path)...)
		errs = append(errs, ruleErrs...)
		eligibility = append(eligibility, &CompiledEligibility{Rule: rule, criteria: c})
	}

	preapproval := make([]*CompiledPreapproval, 0, len(defs.Preapproval))
	seen = make(map[string]bool)
	for i := range defs.Preapproval {
		rule := defs.Preapproval[i]
		path := fmt.Sprintf("preapproval[%d]", i)
		c, ruleErrs := l.compilePreapproval(&rule, path)
		errs = append(errs, duplicate(seen, rule.ID, path)...)
		errs = append(errs, ruleErrs...)
		preapproval = append(preapproval, &CompiledPreapproval{Rule: rule, criteria: c})
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}

	eligParents := make(map[string]string, len(eligibility))
	for _, r := range eligibility {
		eligParents[r.Rule.ID] = r.Rule.ParentRuleID
	}
	if err := checkParents(eligParents); err != nil {
		return nil, err
	}
	preParents := make(map[string]string, len(preapproval))
	for _, r := range preapproval {
		preParents[r.Rule.ID] = r.Rule.ParentRuleID
	}
	if err := checkParents(preParents); err != nil {
		return nil, err
	}

	set := &RuleSet{AsOf: asOf, LoadedAt: time.Now().UTC()}
	for _, r := range eligibility {
		if r.Rule.IsActive && domain.Effective(r.Rule.EffectiveDate, r.Rule.ExpiryDate, asOf) {
			set.Eligibility = append(set.Eligibility, r)
		} else {
			set.Skipped++
		}
	}
	for _, r := range preapproval {
		if r.Rule.IsActive && domain.Effective(r.Rule.EffectiveDate, r.Rule.ExpiryDate, asOf) {
			set.Preapproval = append(set.Preapproval, r)
		} else {
			set.Skipped++
		}
	}

	sort.SliceStable(set.Eligibility, func(i, j int) bool {
		a, b := set.Eligibility[i].Rule, set.Eligibility[j].Rule
		return ruleLess(a.Priority, b.Priority, a.Category, b.Category, a.ID, b.ID)
	})
	sort.SliceStable(set.Preapproval, func(i, j int) bool {
		a, b := set.Preapproval[i].Rule, set.Preapproval[j].Rule
		return ruleLess(a.Priority, b.Priority, a.Category, b.Category, a.ID, b.ID)
	})

	return set, nil
}

func ruleLess(pa, pb int, ca, cb, ia, ib string) bool {
	if pa != pb {
		return pa < pb
	}
	if ca != cb {
		return ca < cb
	}
	return ia < ib
}

func duplicate(seen map[string]bool, id, path string) domain.ValidationErrors {
	if id == "" {
		return nil
	}
	if seen[id] {
		return domain.ValidationErrors{{RuleID: id, Path: path, Field: "id", Message: "is duplicated"}}
	}
	seen[id] = true
	return nil
}

func (l *Loader) compileEligibility(rule *domain.EligibilityRule, path string) (criteria, domain.ValidationErrors) {
	var errs domain.ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, &domain.ValidationError{RuleID: rule.ID, Path: path, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	checkIdentity(rule.ID, rule.Name, add)
	if rule.Severity == "" {
		add("severity", "is required")
	}
	if rule.Type == "" {
		add("type", "is required")
	}
	if rule.Criteria.Empty() {
		add("criteria", "one of condition, field/operator/value or expression is required")
	}
	if rule.CanOverride && len(rule.OverrideCodes) == 0 {
		add("overrideCodes", "is required when canOverride is set")
	}
	checkWindow(rule.EffectiveDate, rule.ExpiryDate, add)

	c := l.compileCriteria(rule.ID, path, rule.Criteria, &errs)

	for i, exc := range rule.ExceptionConditions {
		excPath := fmt.Sprintf("%s.exceptionConditions[%d]", path, i)
		if exc == nil {
			errs = append(errs, &domain.ValidationError{RuleID: rule.ID, Path: excPath, Message: "exception condition is null"})
			continue
		}
		errs = append(errs, l.nodeErrors(rule.ID, excPath, exc)...)
	}
	return c, errs
}

func (l *Loader) compilePreapproval(rule *domain.PreapprovalRule, path string) (criteria, domain.ValidationErrors) {
	var errs domain.ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, &domain.ValidationError{RuleID: rule.ID, Path: path, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	checkIdentity(rule.ID, rule.Name, add)
	if rule.ThresholdAmount != nil && rule.ThresholdAmount.IsNegative() {
		add("thresholdAmount", "must not be negative")
	}
	if rule.AutoApproveBelowThreshold && rule.ThresholdAmount == nil {
		add("autoApproveBelowThreshold", "requires thresholdAmount")
	}
	if rule.CanOverride && len(rule.OverrideCodes) == 0 {
		add("overrideCodes", "is required when canOverride is set")
	}
	checkWindow(rule.EffectiveDate, rule.ExpiryDate, add)

	// Pre-approval criteria are optional: empty criteria apply to every request.
	var c criteria
	if !rule.Criteria.Empty() {
		c = l.compileCriteria(rule.ID, path, rule.Criteria, &errs)
	}
	return c, errs
}

func checkIdentity(id, name string, add func(field, format string, args ...any)) {
	if strings.TrimSpace(id) == "" {
		add("id", "is required")
	}
	if strings.TrimSpace(name) == "" {
		add("name", "is required")
	}
}

func checkWindow(from, to *domain.Date, add func(field, format string, args ...any)) {
	if from != nil && to != nil && !from.Before(to.Time) {
		add("expiryDate", "must be after effectiveDate")
	}
}

// compileCriteria normalizes the three criteria forms. The simple triple
// becomes a single comparison node; expressions are compiled to CEL.
func (l *Loader) compileCriteria(ruleID, path string, c domain.Criteria, errs *domain.ValidationErrors) criteria {
	add := func(field, format string, args ...any) {
		*errs = append(*errs, &domain.ValidationError{RuleID: ruleID, Path: path, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	forms := 0
	if c.Condition != nil {
		forms++
	}
	if c.HasSimple() {
		forms++
	}
	expr := strings.TrimSpace(c.Expression)
	if expr != "" {
		forms++
	}
	if forms > 1 {
		add("criteria", "condition, field/operator/value and expression are mutually exclusive")
		return criteria{}
	}

	switch {
	case c.Condition != nil:
		*errs = append(*errs, l.nodeErrors(ruleID, path+".condition", c.Condition)...)
		return criteria{node: c.Condition}
	case c.HasSimple():
		node := domain.Compare(c.Field, c.Operator, c.Value)
		*errs = append(*errs, l.nodeErrors(ruleID, path, node)...)
		return criteria{node: node}
	case expr != "":
		program, err := compileExpression(l.env, expr)
		if err != nil {
			add("expression", "%v", err)
			return criteria{}
		}
		return criteria{program: program}
	}
	return criteria{}
}

// nodeErrors runs the static condition pass and rebases its paths under path.
func (l *Loader) nodeErrors(ruleID, path string, node *domain.ConditionNode) domain.ValidationErrors {
	errs := l.conditions.ValidateStructure(node)
	for _, e := range errs {
		e.Path = path + strings.TrimPrefix(e.Path, "root")
	}
	return errs.WithRule(ruleID)
}

// checkParents follows every parent chain with an explicit visited set.
// The first unknown parent or cycle found is returned.
func checkParents(parents map[string]string) error {
	ids := make([]string, 0, len(parents))
	for id := range parents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	done := make(map[string]bool, len(parents))
	for _, start := range ids {
		visited := make(map[string]int)
		var chain []string
		for id := start; id != "" && !done[id]; id = parents[id] {
			if at, ok := visited[id]; ok {
				cycle := append(append([]string{}, chain[at:]...), id)
				return &domain.ConfigurationError{
					RuleID:  start,
					Cycle:   cycle,
					Message: "cyclic parent rule reference",
				}
			}
			if _, known := parents[id]; !known {
				return &domain.ConfigurationError{
					RuleID:  chain[len(chain)-1],
					Message: fmt.Sprintf("unknown parent rule %q", id),
				}
			}
			visited[id] = len(chain)
			chain = append(chain, id)
		}
		for _, id := range chain {
			done[id] = true
		}
	}
	return nil
}
