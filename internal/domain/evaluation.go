package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleResult is the outcome of one rule in an evaluation run.
type RuleResult struct {
	RuleID           string   `json:"ruleId"`
	RuleName         string   `json:"ruleName"`
	Category         string   `json:"category,omitempty"`
	Severity         Severity `json:"severity"`
	Type             RuleType `json:"type"`
	Passed           bool     `json:"passed"`
	Message          string   `json:"message"`
	ExceptionApplied bool     `json:"exceptionApplied"`
	OverrideApplied  bool     `json:"overrideApplied"`
	OverrideCode     string   `json:"overrideCode,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// EligibilityStatus is the terminal state of an eligibility run.
type EligibilityStatus string

const (
	StatusEligible             EligibilityStatus = "eligible"
	StatusIneligible           EligibilityStatus = "ineligible"
	StatusRequiresManualReview EligibilityStatus = "requires_manual_review"
)

// Issue is a failed rule surfaced in the aggregate result.
type Issue struct {
	RuleID   string   `json:"ruleId"`
	RuleName string   `json:"ruleName"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// EligibilityResult aggregates every rule evaluated in one run.
type EligibilityResult struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenantId"`
	SubjectID       string            `json:"subjectId,omitempty"`
	Status          EligibilityStatus `json:"status"`
	OverallEligible bool              `json:"overallEligible"`
	PassedCount     int               `json:"passedCount"`
	FailedCount     int               `json:"failedCount"`
	OverriddenCount int               `json:"overriddenCount"`
	BlockingIssues  []Issue           `json:"blockingIssues"`
	Warnings        []Issue           `json:"warnings"`
	ReviewItems     []Issue           `json:"reviewItems"`
	Results         []RuleResult      `json:"results"`
	EvaluatedAt     time.Time         `json:"evaluatedAt"`
	DurationMs      int64             `json:"durationMs"`
}

// PreapprovalOutcome is the per-rule outcome of a pre-approval run.
type PreapprovalOutcome string

const (
	PreapprovalNotApplicable PreapprovalOutcome = "not_applicable"
	PreapprovalAutoApproved  PreapprovalOutcome = "auto_approved"
	PreapprovalRequired      PreapprovalOutcome = "required"
	PreapprovalOverridden    PreapprovalOutcome = "overridden"
)

// PreapprovalRuleResult records how one pre-approval rule applied.
type PreapprovalRuleResult struct {
	RuleID       string             `json:"ruleId"`
	RuleName     string             `json:"ruleName"`
	Outcome      PreapprovalOutcome `json:"outcome"`
	Reason       string             `json:"reason"`
	OverrideCode string             `json:"overrideCode,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// PreapprovalDecision is the final pre-approval verdict.
type PreapprovalDecision string

const (
	PreapprovalApproved PreapprovalDecision = "approved"
	PreapprovalPending  PreapprovalDecision = "pending"
)

// PreapprovalResult aggregates a pre-approval run.
type PreapprovalResult struct {
	ID                  string                  `json:"id"`
	TenantID            string                  `json:"tenantId"`
	SubjectID           string                  `json:"subjectId,omitempty"`
	Decision            PreapprovalDecision     `json:"decision"`
	RequiresApproval    bool                    `json:"requiresApproval"`
	EstimatedCost       decimal.Decimal         `json:"estimatedCost"`
	ManualReviewCount   int                     `json:"manualReviewCount"`
	EstimatedProcessing string                  `json:"estimatedProcessingTime"`
	Results             []PreapprovalRuleResult `json:"results"`
	EvaluatedAt         time.Time               `json:"evaluatedAt"`
}

// Formula is an arithmetic expression with its declared variable set.
// An empty Variables list declares nothing and accepts any reference.
type Formula struct {
	Expression string   `json:"expression"`
	Variables  []string `json:"variables,omitempty"`
}
