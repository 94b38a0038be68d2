package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Severity ranks how serious a failed rule is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Blocking reports whether a failure at this severity blocks eligibility.
func (s Severity) Blocking() bool {
	return s == SeverityCritical || s == SeverityHigh
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	v, err := decodeEnum(data, "severity")
	if err != nil {
		return err
	}
	sev := Severity(v)
	if sev != "" && !sev.Valid() {
		return fmt.Errorf("unknown severity %q", v)
	}
	*s = sev
	return nil
}

// RuleType describes how a rule's criteria relate to passing.
type RuleType string

const (
	RuleInclusion  RuleType = "inclusion"
	RuleExclusion  RuleType = "exclusion"
	RulePreference RuleType = "preference"
	RuleWarning    RuleType = "warning"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleInclusion, RuleExclusion, RulePreference, RuleWarning:
		return true
	}
	return false
}

func (t *RuleType) UnmarshalJSON(data []byte) error {
	v, err := decodeEnum(data, "rule type")
	if err != nil {
		return err
	}
	rt := RuleType(v)
	if rt != "" && !rt.Valid() {
		return fmt.Errorf("unknown rule type %q", v)
	}
	*t = rt
	return nil
}

func decodeEnum(data []byte, what string) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("%s must be a string: %w", what, err)
	}
	return strings.ToLower(strings.TrimSpace(s)), nil
}

// Date is a calendar date that accepts both "2006-01-02" and RFC 3339 on decode.
type Date struct {
	time.Time
}

// NewDate truncates t to midnight UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(time.DateOnly))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		*d = Date{t}
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	*d = NewDate(t)
	return nil
}

// Criteria is the decision part shared by eligibility and pre-approval
// rules. Exactly one form is expected: a condition tree, a simple
// field/operator/value triple, or a CEL expression over `input`.
type Criteria struct {
	Condition  *ConditionNode `json:"condition,omitempty"`
	Field      string         `json:"field,omitempty"`
	Operator   Operator       `json:"operator,omitempty"`
	Value      any            `json:"value,omitempty"`
	Expression string         `json:"expression,omitempty"`
}

// HasSimple reports whether the simple triple form is in use.
func (c Criteria) HasSimple() bool {
	return c.Field != "" || c.Operator != ""
}

// Empty reports whether no criteria form is present.
func (c Criteria) Empty() bool {
	return c.Condition == nil && !c.HasSimple() && strings.TrimSpace(c.Expression) == ""
}

// EligibilityRule is a named, prioritized eligibility check.
type EligibilityRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Version     string `json:"version,omitempty"`
	Priority    int    `json:"priority"`

	Criteria

	Severity Severity `json:"severity"`
	Type     RuleType `json:"type"`

	IsMandatory   bool     `json:"isMandatory"`
	CanOverride   bool     `json:"canOverride"`
	OverrideCodes []string `json:"overrideCodes,omitempty"`

	// ExceptionConditions turn a failure into a pass when any of them holds.
	ExceptionConditions []*ConditionNode `json:"exceptionConditions,omitempty"`

	ParentRuleID string `json:"parentRuleId,omitempty"`

	SuccessMessage string `json:"successMessage,omitempty"`
	FailureMessage string `json:"failureMessage,omitempty"`

	EffectiveDate *Date `json:"effectiveDate,omitempty"`
	ExpiryDate    *Date `json:"expiryDate,omitempty"`
	IsActive      bool  `json:"isActive"`
}

// PreapprovalRule decides whether a service needs prior authorization.
type PreapprovalRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Version     string `json:"version,omitempty"`
	Priority    int    `json:"priority"`

	// Criteria select the requests this rule applies to. Empty criteria
	// apply to every request.
	Criteria

	AlwaysRequired            bool             `json:"alwaysRequired"`
	ThresholdAmount           *decimal.Decimal `json:"thresholdAmount,omitempty"`
	AutoApproveBelowThreshold bool             `json:"autoApproveBelowThreshold"`

	CanOverride   bool     `json:"canOverride"`
	OverrideCodes []string `json:"overrideCodes,omitempty"`

	ParentRuleID string `json:"parentRuleId,omitempty"`
	Message      string `json:"message,omitempty"`

	EffectiveDate *Date `json:"effectiveDate,omitempty"`
	ExpiryDate    *Date `json:"expiryDate,omitempty"`
	IsActive      bool  `json:"isActive"`
}

// UnmarshalJSON decodes a rule that is active unless isActive is false.
func (r *EligibilityRule) UnmarshalJSON(data []byte) error {
	type plain EligibilityRule
	p := plain{IsActive: true}
	if err := decodeRule(data, &p); err != nil {
		return err
	}
	*r = EligibilityRule(p)
	return nil
}

// UnmarshalJSON decodes a rule that is active unless isActive is false.
func (r *PreapprovalRule) UnmarshalJSON(data []byte) error {
	type plain PreapprovalRule
	p := plain{IsActive: true}
	if err := decodeRule(data, &p); err != nil {
		return err
	}
	*r = PreapprovalRule(p)
	return nil
}

// decodeRule keeps numbers exact and rejects unknown keys. Outer decoder
// options do not reach a custom unmarshaler.
func decodeRule(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// RuleKind distinguishes stored rule definitions.
type RuleKind string

const (
	RuleKindEligibility RuleKind = "eligibility"
	RuleKindPreapproval RuleKind = "preapproval"
)

// RuleRecord is the persisted form of a rule: the raw definition plus
// the columns the repository indexes on.
type RuleRecord struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	Kind       RuleKind        `json:"kind"`
	Name       string          `json:"name"`
	Priority   int             `json:"priority"`
	Version    string          `json:"version"`
	Definition json.RawMessage `json:"definition"`
	Enabled    bool            `json:"enabled"`
	CreatedAt  time.Time       `json:"createdAt,omitempty"`
	UpdatedAt  time.Time       `json:"updatedAt,omitempty"`
}

// Effective reports whether a rule dated [from, to) is in force on day.
// Nil bounds are open.
func Effective(from, to *Date, day time.Time) bool {
	d := NewDate(day)
	if from != nil && d.Before(from.Time) {
		return false
	}
	if to != nil && !d.Before(to.Time) {
		return false
	}
	return true
}
