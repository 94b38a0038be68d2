package rules

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func loadSet(t *testing.T, defs *Definitions) *RuleSet {
	t.Helper()
	set, err := newTestLoader(t).LoadRuleSet(defs, asOf)
	if err != nil {
		t.Fatalf("failed to load rule set: %v", err)
	}
	return set
}

func TestEligibilityBlockingClassification(t *testing.T) {
	critical := eligibilityRule("critical", 1, domain.Compare("applicant.age", domain.OpGreaterOrEqual, 18))
	critical.Severity = domain.SeverityCritical
	low := eligibilityRule("low", 2, domain.Compare("applicant.bmi", domain.OpLessThan, 30))
	low.Severity = domain.SeverityLow

	set := loadSet(t, &Definitions{Eligibility: []domain.EligibilityRule{critical, low}})
	input := map[string]any{"applicant": map[string]any{"age": 16, "bmi": 34}}

	result := NewPipeline(nil, nil).EvaluateEligibility(context.Background(), "tenant-a", set, input, nil)

	if result.OverallEligible {
		t.Error("expected applicant to be ineligible")
	}
	if result.Status != domain.StatusIneligible {
		t.Errorf("expected status ineligible, got %s", result.Status)
	}
	if len(result.BlockingIssues) != 1 || result.BlockingIssues[0].RuleID != "critical" {
		t.Errorf("expected one blocking issue from critical, got %+v", result.BlockingIssues)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings, got %d", len(result.Warnings))
	}
	if len(result.ReviewItems) != 1 || result.ReviewItems[0].RuleID != "low" {
		t.Errorf("expected low failure in review items, got %+v", result.ReviewItems)
	}
	if result.FailedCount != 2 {
		t.Errorf("expected 2 failures, got %d", result.FailedCount)
	}
}

func TestEligibilityStatuses(t *testing.T) {
	adult := domain.Compare("age", domain.OpGreaterOrEqual, 18)

	tests := []struct {
		name       string
		severity   domain.Severity
		ruleType   domain.RuleType
		mandatory  bool
		age        int
		wantStatus domain.EligibilityStatus
		wantWarn   int
	}{
		{"passing rule", domain.SeverityCritical, domain.RuleInclusion, false, 30, domain.StatusEligible, 0},
		{"high failure blocks", domain.SeverityHigh, domain.RuleInclusion, false, 10, domain.StatusIneligible, 0},
		{"mandatory failure blocks", domain.SeverityLow, domain.RuleInclusion, true, 10, domain.StatusIneligible, 0},
		{"medium failure needs review", domain.SeverityMedium, domain.RuleInclusion, false, 10, domain.StatusRequiresManualReview, 0},
		{"warning failure stays eligible", domain.SeverityLow, domain.RuleWarning, false, 10, domain.StatusEligible, 1},
		{"preference failure needs review", domain.SeverityInfo, domain.RulePreference, false, 10, domain.StatusRequiresManualReview, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := eligibilityRule("r1", 1, adult)
			rule.Severity = tt.severity
			rule.Type = tt.ruleType
			rule.IsMandatory = tt.mandatory
			set := loadSet(t, &Definitions{Eligibility: []domain.EligibilityRule{rule}})

			result := NewPipeline(nil, nil).EvaluateEligibility(context.Background(), "t", set, map[string]any{"age": tt.age}, nil)
			if result.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, result.Status)
			}
			if len(result.Warnings) != tt.wantWarn {
				t.Errorf("expected %d warnings, got %d", tt.wantWarn, len(result.Warnings))
			}
		})
	}
}

func TestEligibilityExclusion(t *testing.T) {
	rule := eligibilityRule("smoker", 1, domain.Compare("smoker", domain.OpEquals, true))
	rule.Type = domain.RuleExclusion
	set := loadSet(t, &Definitions{Eligibility: []domain.EligibilityRule{rule}})
	pipeline := NewPipeline(nil, nil)

	result := pipeline.EvaluateEligibility(context.Background(), "t", set, map[string]any{"smoker": false}, nil)
	if !result.Results[0].Passed {
		t.Error("expected non-smoker to pass exclusion rule")
	}

	result = pipeline.EvaluateEligibility(context.Background(), "t", set, map[string]any{"smoker": true}, nil)
	if result.Results[0].Passed {
		t.Error("expected smoker to fail exclusion rule")
	}
}

func TestEligibilityException(t *testing.T) {
	rule := eligibilityRule("age", 1, domain.Compare("age", domain.OpGreaterOrEqual, 18))
	rule.Severity = domain.SeverityCritical
	rule.ExceptionConditions = []*domain.ConditionNode{
		domain.Compare("guardian_consent", domain.OpEquals, true),
	}
	set := loadSet(t, &Definitions{Eligibility: []domain.EligibilityRule{rule}})

	result := NewPipeline(nil, nil).EvaluateEligibility(context.Background(), "t", set,
		map[string]any{"age": 16, "guardian_consent": true}, nil)

	rr := result.Results[0]
	if !rr.Passed || !rr.ExceptionApplied {
		t.Errorf("expected exception to pass the rule, got %+v", rr)
	}
	if result.Status != domain.StatusEligible {
		t.Errorf("expected eligible, got %s", result.Status)
	}
}

func TestEligibilityOverride(t *testing.T) {
	rule := eligibilityRule("age", 1, domain.Compare("age", domain.OpGreaterOrEqual, 18))
	rule.Severity = domain.SeverityCritical
	rule.CanOverride = true
	rule.OverrideCodes = []string{"MINOR-OK"}
	set := loadSet(t, &Definitions{Eligibility: []domain.EligibilityRule{rule}})
	pipeline := NewPipeline(nil, nil)
	input := map[string]any{"age": 16}

	t.Run("accepted code", func(t *testing.T) {
		result := pipeline.EvaluateEligibility(context.Background(), "t", set, input, []string{"OTHER", "MINOR-OK"})
		rr := result.Results[0]
		if !rr.Passed || !rr.OverrideApplied || rr.OverrideCode != "MINOR-OK" {
			t.Errorf("expected override to apply, got %+v", rr)
		}
		if result.OverriddenCount != 1 {
			t.Errorf("expected 1 override, got %d", result.OverriddenCount)
		}
		if !result.OverallEligible {
			t.Error("expected overridden failure not to block")
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		result := pipeline.EvaluateEligibility(context.Background(), "t", set, input, []string{"OTHER"})
		if result.Results[0].Passed {
			t.Error("expected rule to stay failed")
		}
		if result.OverallEligible {
			t.Error("expected blocking failure")
		}
	})

	t.Run("not overridable", func(t *testing.T) {
		locked := rule
		locked.CanOverride = false
		lockedSet := loadSet(t, &Definitions{Eligibility: []domain.EligibilityRule{locked}})
		result := pipeline.EvaluateEligibility(context.Background(), "t", lockedSet, input, []string{"MINOR-OK"})
		if result.Results[0].OverrideApplied {
			t.Error("expected override to be ignored")
		}
	})
}

func TestEligibilityOverrideIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	pipeline := NewPipeline(nil, nil)

	properties.Property("same override twice gives the same pass", prop.ForAll(
		func(code string, age int) bool {
			rule := eligibilityRule("r1", 1, domain.Compare("age", domain.OpGreaterOrEqual, 200))
			rule.Severity = domain.SeverityHigh
			rule.CanOverride = true
			rule.OverrideCodes = []string{code}
			set, err := newTestLoader(t).LoadRuleSet(&Definitions{Eligibility: []domain.EligibilityRule{rule}}, asOf)
			if err != nil {
				return false
			}
			input := map[string]any{"age": age}

			first := pipeline.EvaluateEligibility(context.Background(), "t", set, input, []string{code})
			second := pipeline.EvaluateEligibility(context.Background(), "t", set, input, []string{code, code})
			a, b := first.Results[0], second.Results[0]
			return a.Passed && b.Passed && a.OverrideApplied == b.OverrideApplied &&
				a.OverrideCode == b.OverrideCode && first.Status == second.Status
		},
		gen.Identifier(),
		gen.IntRange(0, 150),
	))

	properties.TestingRun(t)
}

func TestEligibilityRuleErrorDoesNotAbort(t *testing.T) {
	deep := domain.Compare("age", domain.OpGreaterThan, 18)
	for i := 0; i < 12; i++ {
		deep = domain.Not(domain.Not(deep))
	}
	broken := eligibilityRule("broken", 1, domain.Compare("age", domain.OpGreaterThan, 18))
	broken.Severity = domain.SeverityLow
	ok := eligibilityRule("ok", 2, domain.Compare("age", domain.OpGreaterThan, 18))

	set := loadSet(t, &Definitions{Eligibility: []domain.EligibilityRule{broken, ok}})
	// Swap in a tree past the depth limit after load to force a runtime fault.
	set.Eligibility[0].node = deep

	result := NewPipeline(nil, nil).EvaluateEligibility(context.Background(), "t", set, map[string]any{"age": 30}, nil)
	if len(result.Results) != 2 {
		t.Fatalf("expected both rules evaluated, got %d", len(result.Results))
	}
	if result.Results[0].Error == "" || result.Results[0].Passed {
		t.Errorf("expected broken rule to fail with error, got %+v", result.Results[0])
	}
	if !result.Results[1].Passed {
		t.Error("expected second rule to pass")
	}
	if result.Status != domain.StatusRequiresManualReview {
		t.Errorf("expected manual review, got %s", result.Status)
	}
}

func TestEligibilityExpression(t *testing.T) {
	premium := eligibilityRule("premium", 1, nil)
	premium.Criteria = domain.Criteria{Expression: `input.plan.tier in ["gold", "platinum"] && input.premium > 1000.0`}
	named := eligibilityRule("named", 2, nil)
	named.Criteria = domain.Criteria{Expression: "input.name"}

	set := loadSet(t, &Definitions{Eligibility: []domain.EligibilityRule{premium, named}})
	input := map[string]any{
		"plan":    map[string]any{"tier": "gold"},
		"premium": 1500.0,
		"name":    "Jane",
	}

	result := NewPipeline(nil, nil).EvaluateEligibility(context.Background(), "t", set, input, nil)
	if !result.Results[0].Passed {
		t.Errorf("expected expression rule to pass, got %+v", result.Results[0])
	}
	if result.Results[1].Passed || result.Results[1].Error == "" {
		t.Errorf("expected non-bool expression to fail with error, got %+v", result.Results[1])
	}
}

func TestEligibilityExpressionMissingKey(t *testing.T) {
	smoker := eligibilityRule("smoker", 1, nil)
	smoker.Type = domain.RuleExclusion
	smoker.Severity = domain.SeverityCritical
	smoker.Criteria = domain.Criteria{Expression: "input.applicant.smoker == true"}

	adult := eligibilityRule("adult", 2, nil)
	adult.Severity = domain.SeverityCritical
	adult.Criteria = domain.Criteria{Expression: "input.applicant.age >= 18"}

	set := loadSet(t, &Definitions{Eligibility: []domain.EligibilityRule{smoker, adult}})
	result := NewPipeline(nil, nil).EvaluateEligibility(context.Background(), "t", set, map[string]any{}, nil)

	if !result.Results[0].Passed || result.Results[0].Error != "" {
		t.Errorf("expected exclusion on a missing key to pass cleanly, got %+v", result.Results[0])
	}
	if result.Results[1].Passed || result.Results[1].Error != "" {
		t.Errorf("expected inclusion on a missing key to fail without error, got %+v", result.Results[1])
	}
	if result.Status != domain.StatusIneligible {
		t.Errorf("expected ineligible, got %s", result.Status)
	}
}

func TestEligibilityMissingFieldFailsSafe(t *testing.T) {
	rule := eligibilityRule("income", 1, domain.Compare("applicant.income", domain.OpGreaterThan, 1000))
	rule.Severity = domain.SeverityCritical
	rule.FailureMessage = "Income below minimum"
	set := loadSet(t, &Definitions{Eligibility: []domain.EligibilityRule{rule}})

	result := NewPipeline(nil, nil).EvaluateEligibility(context.Background(), "t", set, map[string]any{}, nil)
	rr := result.Results[0]
	if rr.Passed || rr.Error != "" {
		t.Errorf("expected clean failure, got %+v", rr)
	}
	if rr.Message != "Income below minimum" {
		t.Errorf("expected failure message, got %q", rr.Message)
	}
}

func TestEligibilityEmptySet(t *testing.T) {
	result := NewPipeline(nil, nil).EvaluateEligibility(context.Background(), "t", nil, map[string]any{}, nil)
	if result.Status != domain.StatusEligible || !result.OverallEligible {
		t.Errorf("expected empty rule set to be eligible, got %s", result.Status)
	}
	if result.ID == "" {
		t.Error("expected evaluation id")
	}
}

func TestPreapprovalOutcomes(t *testing.T) {
	threshold := decimal.NewFromInt(1000)
	imaging := domain.Compare("service.category", domain.OpEquals, "imaging")

	tests := []struct {
		name     string
		rule     domain.PreapprovalRule
		cost     string
		codes    []string
		want     domain.PreapprovalOutcome
		decision domain.PreapprovalDecision
	}{
		{
			name:     "criteria not met",
			rule:     domain.PreapprovalRule{Criteria: domain.Criteria{Condition: domain.Compare("service.category", domain.OpEquals, "surgery")}, AlwaysRequired: true},
			cost:     "50",
			want:     domain.PreapprovalNotApplicable,
			decision: domain.PreapprovalApproved,
		},
		{
			name:     "always required ignores threshold",
			rule:     domain.PreapprovalRule{Criteria: domain.Criteria{Condition: imaging}, AlwaysRequired: true, ThresholdAmount: &threshold, AutoApproveBelowThreshold: true},
			cost:     "10",
			want:     domain.PreapprovalRequired,
			decision: domain.PreapprovalPending,
		},
		{
			name:     "below threshold auto approves",
			rule:     domain.PreapprovalRule{Criteria: domain.Criteria{Condition: imaging}, ThresholdAmount: &threshold, AutoApproveBelowThreshold: true},
			cost:     "999.99",
			want:     domain.PreapprovalAutoApproved,
			decision: domain.PreapprovalApproved,
		},
		{
			name:     "at threshold requires approval",
			rule:     domain.PreapprovalRule{Criteria: domain.Criteria{Condition: imaging}, ThresholdAmount: &threshold, AutoApproveBelowThreshold: true},
			cost:     "1000",
			want:     domain.PreapprovalRequired,
			decision: domain.PreapprovalPending,
		},
		{
			name:     "below threshold without auto approval",
			rule:     domain.PreapprovalRule{Criteria: domain.Criteria{Condition: imaging}, ThresholdAmount: &threshold},
			cost:     "10",
			want:     domain.PreapprovalNotApplicable,
			decision: domain.PreapprovalApproved,
		},
		{
			name:     "criteria without threshold",
			rule:     domain.PreapprovalRule{Criteria: domain.Criteria{Condition: imaging}},
			cost:     "10",
			want:     domain.PreapprovalRequired,
			decision: domain.PreapprovalPending,
		},
		{
			name:     "override",
			rule:     domain.PreapprovalRule{AlwaysRequired: true, CanOverride: true, OverrideCodes: []string{"URGENT"}},
			cost:     "10",
			codes:    []string{"URGENT"},
			want:     domain.PreapprovalOverridden,
			decision: domain.PreapprovalApproved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			rule.ID = "p1"
			rule.Name = "Pre-approval"
			rule.IsActive = true
			set := loadSet(t, &Definitions{Preapproval: []domain.PreapprovalRule{rule}})
			input := map[string]any{"service": map[string]any{"category": "imaging"}}

			result := NewPipeline(nil, nil).EvaluatePreapproval(context.Background(), "t", set, input,
				decimal.RequireFromString(tt.cost), tt.codes)

			if got := result.Results[0].Outcome; got != tt.want {
				t.Errorf("expected outcome %s, got %s", tt.want, got)
			}
			if result.Decision != tt.decision {
				t.Errorf("expected decision %s, got %s", tt.decision, result.Decision)
			}
			if result.RequiresApproval != (tt.decision == domain.PreapprovalPending) {
				t.Errorf("expected requiresApproval to match decision, got %v", result.RequiresApproval)
			}
		})
	}
}

func TestPreapprovalProcessingEstimate(t *testing.T) {
	tests := []struct {
		reviews int
		want    string
	}{
		{0, "immediate"},
		{1, "1-2 business days"},
		{2, "1-2 business days"},
		{3, "3-5 business days"},
		{7, "3-5 business days"},
	}

	for _, tt := range tests {
		rules := make([]domain.PreapprovalRule, tt.reviews)
		for i := range rules {
			rules[i] = domain.PreapprovalRule{
				ID:             string(rune('a' + i)),
				Name:           "Always",
				AlwaysRequired: true,
				IsActive:       true,
			}
		}
		set := loadSet(t, &Definitions{Preapproval: rules})

		result := NewPipeline(nil, nil).EvaluatePreapproval(context.Background(), "t", set, map[string]any{}, decimal.Zero, nil)
		if result.ManualReviewCount != tt.reviews {
			t.Errorf("expected %d reviews, got %d", tt.reviews, result.ManualReviewCount)
		}
		if result.EstimatedProcessing != tt.want {
			t.Errorf("expected %q for %d reviews, got %q", tt.want, tt.reviews, result.EstimatedProcessing)
		}
	}
}

func TestEstimateProcessingCustomTable(t *testing.T) {
	table := []domain.ProcessingTier{
		{MaxReviews: 1, Estimate: "same day"},
		{MaxReviews: 4, Estimate: "this week"},
	}

	if got := EstimateProcessing(table, 0); got != "same day" {
		t.Errorf("expected same day, got %q", got)
	}
	if got := EstimateProcessing(table, 3); got != "this week" {
		t.Errorf("expected this week, got %q", got)
	}
	if got := EstimateProcessing(table, 9); got != "this week" {
		t.Errorf("expected last tier beyond table, got %q", got)
	}
	if got := EstimateProcessing(nil, 0); got != "immediate" {
		t.Errorf("expected immediate for empty table, got %q", got)
	}
}

func TestPreapprovalErrorRequiresReview(t *testing.T) {
	rule := domain.PreapprovalRule{
		ID:       "p1",
		Name:     "Expression",
		IsActive: true,
		Criteria: domain.Criteria{Expression: "input.missing.value > 1"},
	}
	set := loadSet(t, &Definitions{Preapproval: []domain.PreapprovalRule{rule}})

	result := NewPipeline(nil, nil).EvaluatePreapproval(context.Background(), "t", set, map[string]any{}, decimal.Zero, nil)
	rr := result.Results[0]
	if rr.Outcome != domain.PreapprovalRequired || rr.Error == "" {
		t.Errorf("expected unevaluable rule to require approval with error, got %+v", rr)
	}
}
