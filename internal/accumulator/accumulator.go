// Package accumulator derives a member's running deductible and
// out-of-pocket totals for a plan year from approved calculations.
package accumulator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Service reads accumulators from the calculation history.
type Service struct {
	repo domain.Repository
}

// NewService creates a new accumulator service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// Get totals the member's approved cost-sharing calculations for planYear.
// Deductible met is the sum of deductible steps; out-of-pocket spend is the
// sum of member costs. Remaining deductible is floored at zero.
func (s *Service) Get(ctx context.Context, tenantID, memberID string, planYear int, structure domain.CostSharingStructure) (*domain.Accumulator, error) {
	if tenantID == "" || memberID == "" {
		return nil, fmt.Errorf("tenantID and memberID are required")
	}
	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}

	calcs, err := s.repo.ListMemberCalculations(ctx, tenantID, memberID, planYear)
	if err != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", err)
	}

	return Total(memberID, planYear, structure, calcs), nil
}

// Total folds calculations into an accumulator. Only approved calculations
// with a cost-sharing breakdown count.
func Total(memberID string, planYear int, structure domain.CostSharingStructure, calcs []*domain.Calculation) *domain.Accumulator {
	acc := &domain.Accumulator{
		MemberID:        memberID,
		PlanYear:        planYear,
		DeductibleMet:   decimal.Zero,
		CurrentOOPSpend: decimal.Zero,
	}

	for _, calc := range calcs {
		if calc.Status != domain.StatusApproved || calc.CostSharing == nil {
			continue
		}
		acc.Calculations++
		acc.CurrentOOPSpend = acc.CurrentOOPSpend.Add(calc.CostSharing.MemberCost)
		for _, step := range calc.CostSharing.Steps {
			if step.Step == domain.StepDeductible {
				acc.DeductibleMet = acc.DeductibleMet.Add(step.Amount)
			}
		}
	}

	acc.RemainingDeductible = decimal.Max(decimal.Zero, structure.Deductible.Sub(acc.DeductibleMet))
	return acc
}
