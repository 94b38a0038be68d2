package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalStatus is the workflow state of a calculation.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// CanTransitionTo reports whether a calculation may move from s to next.
// Approved and rejected are terminal.
func (s ApprovalStatus) CanTransitionTo(next ApprovalStatus) bool {
	if s != StatusPending {
		return false
	}
	return next == StatusApproved || next == StatusRejected || next == StatusPending
}

// Adjustment is one itemized loading or discount applied to the base amount.
type Adjustment struct {
	Name        string          `json:"name"`
	Formula     string          `json:"formula"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// Override records a manual change to a pending calculation's amount.
type Override struct {
	Reason         string          `json:"reason"`
	OriginalAmount decimal.Decimal `json:"originalAmount"`
	NewAmount      decimal.Decimal `json:"newAmount"`
	Justification  string          `json:"justification"`
	OverriddenBy   string          `json:"overriddenBy"`
	OverriddenAt   time.Time       `json:"overriddenAt"`
}

// EventAction names a calculation history entry.
type EventAction string

const (
	EventCreated    EventAction = "created"
	EventApproved   EventAction = "approved"
	EventRejected   EventAction = "rejected"
	EventOverridden EventAction = "overridden"
)

// CalculationEvent is an append-only history entry.
type CalculationEvent struct {
	ID             string           `json:"id"`
	CalculationID  string           `json:"calculationId"`
	Action         EventAction      `json:"action"`
	Actor          string           `json:"actor,omitempty"`
	FromStatus     ApprovalStatus   `json:"fromStatus,omitempty"`
	ToStatus       ApprovalStatus   `json:"toStatus"`
	PreviousAmount *decimal.Decimal `json:"previousAmount,omitempty"`
	NewAmount      decimal.Decimal  `json:"newAmount"`
	Reason         string           `json:"reason,omitempty"`
	Justification  string           `json:"justification,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Calculation is a priced decision awaiting or past approval.
type Calculation struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	MemberID  string `json:"memberId,omitempty"`
	BenefitID string `json:"benefitId,omitempty"`
	PlanYear  int    `json:"planYear,omitempty"`

	BaseAmount  decimal.Decimal       `json:"baseAmount"`
	Adjustments []Adjustment          `json:"adjustments"`
	FinalAmount decimal.Decimal       `json:"finalAmount"`
	CostSharing *CalculationBreakdown `json:"costSharing,omitempty"`
	Eligibility *EligibilityResult    `json:"eligibility,omitempty"`

	Status    ApprovalStatus `json:"status"`
	Override  *Override      `json:"override,omitempty"`
	DecidedBy string         `json:"decidedBy,omitempty"`
	DecidedAt *time.Time     `json:"decidedAt,omitempty"`
	Reason    string         `json:"reason,omitempty"`

	History   []CalculationEvent `json:"history"`
	Metadata  map[string]string  `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
