package rules

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/condition"
	"github.com/opensource-finance/kestrel/internal/domain"
)

var tracer = otel.Tracer("kestrel-rules")

// Pipeline runs loaded rule sets against an evaluation context. It holds
// no per-run state; every call returns a fresh result.
type Pipeline struct {
	conditions *condition.Engine
	processing []domain.ProcessingTier
	logger     *slog.Logger
}

// NewPipeline creates a pipeline. A nil processing table means
// domain.DefaultProcessingTable().
func NewPipeline(conditions *condition.Engine, processing []domain.ProcessingTier) *Pipeline {
	if conditions == nil {
		conditions = condition.NewEngine(condition.DefaultMaxDepth)
	}
	if len(processing) == 0 {
		processing = domain.DefaultProcessingTable()
	}
	return &Pipeline{
		conditions: conditions,
		processing: processing,
		logger:     slog.Default(),
	}
}

// EvaluateEligibility evaluates every eligibility rule in set in order and
// aggregates the outcome. A rule that cannot be evaluated is recorded as
// failed with its error and classified like any other failure.
func (p *Pipeline) EvaluateEligibility(ctx context.Context, tenantID string, set *RuleSet, input map[string]any, overrideCodes []string) *domain.EligibilityResult {
	start := time.Now()
	_, span := tracer.Start(ctx, "rules.EvaluateEligibility",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	result := &domain.EligibilityResult{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		BlockingIssues: []domain.Issue{},
		Warnings:       []domain.Issue{},
		ReviewItems:    []domain.Issue{},
	}

	var rules []*CompiledEligibility
	if set != nil {
		rules = set.Eligibility
	}
	result.Results = make([]domain.RuleResult, 0, len(rules))

	for _, r := range rules {
		rr := p.evaluateEligibilityRule(r, input, overrideCodes)
		result.Results = append(result.Results, rr)

		switch {
		case rr.OverrideApplied:
			result.PassedCount++
			result.OverriddenCount++
		case rr.Passed:
			result.PassedCount++
		default:
			result.FailedCount++
			issue := domain.Issue{
				RuleID:   rr.RuleID,
				RuleName: rr.RuleName,
				Severity: rr.Severity,
				Message:  rr.Message,
			}
			switch {
			case r.Rule.Severity.Blocking() || r.Rule.IsMandatory:
				result.BlockingIssues = append(result.BlockingIssues, issue)
			case r.Rule.Type == domain.RuleWarning:
				result.Warnings = append(result.Warnings, issue)
			default:
				result.ReviewItems = append(result.ReviewItems, issue)
			}
		}
	}

	result.OverallEligible = len(result.BlockingIssues) == 0
	switch {
	case !result.OverallEligible:
		result.Status = domain.StatusIneligible
	case len(result.ReviewItems) > 0:
		result.Status = domain.StatusRequiresManualReview
	default:
		result.Status = domain.StatusEligible
	}
	result.EvaluatedAt = time.Now().UTC()
	result.DurationMs = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.String("eligibility.status", string(result.Status)),
		attribute.Int("eligibility.rules", len(rules)),
	)
	p.logger.Debug("eligibility evaluated",
		"tenant_id", tenantID,
		"evaluation_id", result.ID,
		"status", result.Status,
		"failed", result.FailedCount,
		"overridden", result.OverriddenCount,
		"duration_ms", result.DurationMs,
	)

	return result
}

func (p *Pipeline) evaluateEligibilityRule(r *CompiledEligibility, input map[string]any, overrideCodes []string) domain.RuleResult {
	rule := r.Rule
	rr := domain.RuleResult{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Category: rule.Category,
		Severity: rule.Severity,
		Type:     rule.Type,
	}

	holds, err := r.check(p.conditions, input)
	if err != nil {
		rr.Error = err.Error()
		p.logger.Warn("rule evaluation failed",
			"rule_id", rule.ID,
			"error", err,
		)
	} else if rule.Type == domain.RuleExclusion {
		rr.Passed = !holds
	} else {
		rr.Passed = holds
	}

	if !rr.Passed && err == nil {
		for _, exc := range rule.ExceptionConditions {
			if p.conditions.Evaluate(exc, input) {
				rr.Passed = true
				rr.ExceptionApplied = true
				break
			}
		}
	}

	if !rr.Passed && rule.CanOverride {
		if code, ok := matchOverride(rule.OverrideCodes, overrideCodes); ok {
			rr.Passed = true
			rr.OverrideApplied = true
			rr.OverrideCode = code
		}
	}

	rr.Message = eligibilityMessage(rule, rr)
	return rr
}

func eligibilityMessage(rule domain.EligibilityRule, rr domain.RuleResult) string {
	switch {
	case rr.OverrideApplied:
		return fmt.Sprintf("%s: failed, overridden with code %s", rule.Name, rr.OverrideCode)
	case rr.ExceptionApplied:
		return fmt.Sprintf("%s: passed by exception", rule.Name)
	case rr.Passed:
		if rule.SuccessMessage != "" {
			return rule.SuccessMessage
		}
		return fmt.Sprintf("%s: passed", rule.Name)
	case rr.Error != "":
		return fmt.Sprintf("%s: could not be evaluated", rule.Name)
	default:
		if rule.FailureMessage != "" {
			return rule.FailureMessage
		}
		return fmt.Sprintf("%s: failed", rule.Name)
	}
}

// matchOverride returns the first supplied code the rule accepts.
func matchOverride(accepted, supplied []string) (string, bool) {
	for _, code := range supplied {
		if code != "" && slices.Contains(accepted, code) {
			return code, true
		}
	}
	return "", false
}

// EvaluatePreapproval decides whether a request needs prior authorization.
// The decision is approved only when no applicable rule still requires
// manual approval.
func (p *Pipeline) EvaluatePreapproval(ctx context.Context, tenantID string, set *RuleSet, input map[string]any, estimatedCost decimal.Decimal, overrideCodes []string) *domain.PreapprovalResult {
	_, span := tracer.Start(ctx, "rules.EvaluatePreapproval",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	result := &domain.PreapprovalResult{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		EstimatedCost: estimatedCost,
	}

	var rules []*CompiledPreapproval
	if set != nil {
		rules = set.Preapproval
	}
	result.Results = make([]domain.PreapprovalRuleResult, 0, len(rules))

	for _, r := range rules {
		rr := p.evaluatePreapprovalRule(r, input, estimatedCost, overrideCodes)
		if rr.Outcome == domain.PreapprovalRequired {
			result.ManualReviewCount++
		}
		result.Results = append(result.Results, rr)
	}

	result.RequiresApproval = result.ManualReviewCount > 0
	if result.RequiresApproval {
		result.Decision = domain.PreapprovalPending
	} else {
		result.Decision = domain.PreapprovalApproved
	}
	result.EstimatedProcessing = EstimateProcessing(p.processing, result.ManualReviewCount)
	result.EvaluatedAt = time.Now().UTC()

	span.SetAttributes(
		attribute.String("preapproval.decision", string(result.Decision)),
		attribute.Int("preapproval.manual_reviews", result.ManualReviewCount),
	)
	return result
}

func (p *Pipeline) evaluatePreapprovalRule(r *CompiledPreapproval, input map[string]any, cost decimal.Decimal, overrideCodes []string) domain.PreapprovalRuleResult {
	rule := r.Rule
	rr := domain.PreapprovalRuleResult{
		RuleID:   rule.ID,
		RuleName: rule.Name,
	}

	applies := true
	if !r.empty() {
		holds, err := r.check(p.conditions, input)
		if err != nil {
			// Unevaluable criteria fail safe toward manual review.
			rr.Error = err.Error()
			p.logger.Warn("pre-approval rule evaluation failed",
				"rule_id", rule.ID,
				"error", err,
			)
		}
		applies = holds || err != nil
	}

	switch {
	case !applies:
		rr.Outcome = domain.PreapprovalNotApplicable
		rr.Reason = "criteria not met"
	case rule.AlwaysRequired || rr.Error != "":
		rr.Outcome = domain.PreapprovalRequired
		rr.Reason = "pre-approval always required"
		if rr.Error != "" {
			rr.Reason = "criteria could not be evaluated"
		}
	case rule.ThresholdAmount != nil && cost.LessThan(*rule.ThresholdAmount):
		if rule.AutoApproveBelowThreshold {
			rr.Outcome = domain.PreapprovalAutoApproved
			rr.Reason = fmt.Sprintf("estimated cost %s below threshold %s", cost.StringFixed(2), rule.ThresholdAmount.StringFixed(2))
		} else {
			rr.Outcome = domain.PreapprovalNotApplicable
			rr.Reason = fmt.Sprintf("estimated cost %s below threshold %s", cost.StringFixed(2), rule.ThresholdAmount.StringFixed(2))
		}
	case rule.ThresholdAmount != nil:
		rr.Outcome = domain.PreapprovalRequired
		rr.Reason = fmt.Sprintf("estimated cost %s at or above threshold %s", cost.StringFixed(2), rule.ThresholdAmount.StringFixed(2))
	default:
		rr.Outcome = domain.PreapprovalRequired
		rr.Reason = "criteria met"
	}
	if rule.Message != "" && rr.Outcome == domain.PreapprovalRequired {
		rr.Reason = rule.Message
	}

	if rr.Outcome == domain.PreapprovalRequired && rule.CanOverride {
		if code, ok := matchOverride(rule.OverrideCodes, overrideCodes); ok {
			rr.Outcome = domain.PreapprovalOverridden
			rr.OverrideCode = code
			rr.Reason = fmt.Sprintf("overridden with code %s", code)
		}
	}
	return rr
}

// EstimateProcessing picks the first tier whose bound covers reviews.
// Zero reviews with no matching tier is "immediate".
func EstimateProcessing(table []domain.ProcessingTier, reviews int) string {
	for _, tier := range table {
		if tier.MaxReviews < 0 || reviews <= tier.MaxReviews {
			return tier.Estimate
		}
	}
	if reviews == 0 {
		return "immediate"
	}
	if len(table) > 0 {
		return table[len(table)-1].Estimate
	}
	return ""
}
