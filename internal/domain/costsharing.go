package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostSharingStructure is a benefit's member cost-sharing configuration.
// Copay and coinsurance are mutually exclusive.
type CostSharingStructure struct {
	Deductible            decimal.Decimal  `json:"deductible"`
	Copay                 decimal.Decimal  `json:"copay"`
	CoinsurancePercentage decimal.Decimal  `json:"coinsurancePercentage"`
	OutOfPocketMax        *decimal.Decimal `json:"outOfPocketMax,omitempty"`
}

// StepName identifies a cost-sharing cascade step.
type StepName string

const (
	StepDeductible     StepName = "deductible"
	StepCopay          StepName = "copay"
	StepCoinsurance    StepName = "coinsurance"
	StepOutOfPocketMax StepName = "out_of_pocket_max"
)

// CalculationStep is one applied step of the cascade.
type CalculationStep struct {
	Step        StepName        `json:"step"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// CalculationBreakdown explains how a service amount was split.
// MemberCost + InsurerCost always equals ServiceAmount.
type CalculationBreakdown struct {
	ServiceAmount       decimal.Decimal   `json:"serviceAmount"`
	RemainingDeductible decimal.Decimal   `json:"remainingDeductible"`
	CurrentOOPSpend     decimal.Decimal   `json:"currentOopSpend"`
	Steps               []CalculationStep `json:"steps"`
	MemberCost          decimal.Decimal   `json:"memberCost"`
	InsurerCost         decimal.Decimal   `json:"insurerCost"`
}

// CostSharingProfile binds a structure to a benefit for a tenant.
type CostSharingProfile struct {
	TenantID  string               `json:"tenantId"`
	BenefitID string               `json:"benefitId"`
	Name      string               `json:"name,omitempty"`
	Structure CostSharingStructure `json:"structure"`
	UpdatedAt time.Time            `json:"updatedAt,omitempty"`
}

// Accumulator is a member's running spend within a plan year.
type Accumulator struct {
	MemberID            string          `json:"memberId"`
	PlanYear            int             `json:"planYear"`
	DeductibleMet       decimal.Decimal `json:"deductibleMet"`
	RemainingDeductible decimal.Decimal `json:"remainingDeductible"`
	CurrentOOPSpend     decimal.Decimal `json:"currentOopSpend"`
	Calculations        int             `json:"calculations"`
}
