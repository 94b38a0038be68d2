// Package costshare splits a service amount between member and insurer by
// applying a benefit's deductible, copay, coinsurance and out-of-pocket
// maximum, in that order.
package costshare

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// CurrencyPlaces is the precision member and insurer amounts are rounded to.
const CurrencyPlaces int32 = 2

var hundred = decimal.NewFromInt(100)

// ValidateStructure rejects negative amounts, coinsurance outside 0-100 and
// structures that set both copay and coinsurance.
func ValidateStructure(s domain.CostSharingStructure) error {
	switch {
	case s.Deductible.IsNegative():
		return domain.NewBusinessLogicError("deductible must not be negative")
	case s.Copay.IsNegative():
		return domain.NewBusinessLogicError("copay must not be negative")
	case s.CoinsurancePercentage.IsNegative() || s.CoinsurancePercentage.GreaterThan(hundred):
		return domain.NewBusinessLogicError("coinsurance percentage must be between 0 and 100")
	case s.OutOfPocketMax != nil && s.OutOfPocketMax.IsNegative():
		return domain.NewBusinessLogicError("out-of-pocket maximum must not be negative")
	case s.Copay.IsPositive() && s.CoinsurancePercentage.IsPositive():
		return domain.NewBusinessLogicError("copay and coinsurance are mutually exclusive")
	}
	return nil
}

// Calculate runs the cascade for one service. remainingDeductible is what the
// member still owes toward the deductible and currentOOPSpend is what they
// have paid toward the out-of-pocket maximum so far.
//
// The copay is capped at the amount left after the deductible so the member
// never pays more than the service costs.
func Calculate(s domain.CostSharingStructure, serviceAmount, remainingDeductible, currentOOPSpend decimal.Decimal) (*domain.CalculationBreakdown, error) {
	if err := ValidateStructure(s); err != nil {
		return nil, err
	}
	if err := validateInputs(serviceAmount, remainingDeductible, currentOOPSpend); err != nil {
		return nil, err
	}

	b := &domain.CalculationBreakdown{
		ServiceAmount:       serviceAmount,
		RemainingDeductible: remainingDeductible,
		CurrentOOPSpend:     currentOOPSpend,
		Steps:               []domain.CalculationStep{},
	}

	remaining := serviceAmount
	member := decimal.Zero

	if applied := decimal.Min(serviceAmount, remainingDeductible); applied.IsPositive() {
		member = member.Add(applied)
		remaining = remaining.Sub(applied)
		b.Steps = append(b.Steps, domain.CalculationStep{
			Step:        domain.StepDeductible,
			Amount:      applied.RoundBank(CurrencyPlaces),
			Description: fmt.Sprintf("Deductible applied: %s of %s remaining", money(applied), money(remainingDeductible)),
		})
	}

	switch {
	case s.Copay.IsPositive():
		if applied := decimal.Min(s.Copay, remaining); applied.IsPositive() {
			member = member.Add(applied)
			remaining = remaining.Sub(applied)
			b.Steps = append(b.Steps, domain.CalculationStep{
				Step:        domain.StepCopay,
				Amount:      applied.RoundBank(CurrencyPlaces),
				Description: fmt.Sprintf("Copay applied: %s", money(applied)),
			})
		}
		remaining = decimal.Zero

	case s.CoinsurancePercentage.IsPositive() && remaining.IsPositive():
		share := remaining.Mul(s.CoinsurancePercentage).Div(hundred)
		member = member.Add(share)
		b.Steps = append(b.Steps, domain.CalculationStep{
			Step:        domain.StepCoinsurance,
			Amount:      share.RoundBank(CurrencyPlaces),
			Description: fmt.Sprintf("Coinsurance applied: %s%% of %s", s.CoinsurancePercentage.String(), money(remaining)),
		})
		remaining = decimal.Zero
	}

	if s.OutOfPocketMax != nil {
		headroom := decimal.Max(decimal.Zero, s.OutOfPocketMax.Sub(currentOOPSpend))
		if member.GreaterThan(headroom) {
			shifted := member.Sub(headroom)
			member = headroom
			b.Steps = append(b.Steps, domain.CalculationStep{
				Step:        domain.StepOutOfPocketMax,
				Amount:      shifted.RoundBank(CurrencyPlaces),
				Description: fmt.Sprintf("Out-of-pocket maximum %s reached: %s shifted to insurer", money(*s.OutOfPocketMax), money(shifted)),
			})
		}
	}

	b.MemberCost = member.RoundBank(CurrencyPlaces)
	b.InsurerCost = serviceAmount.Sub(b.MemberCost)

	if !b.MemberCost.Add(b.InsurerCost).Equal(serviceAmount) || b.InsurerCost.IsNegative() {
		return nil, domain.NewBusinessLogicError("cost split %s + %s does not equal service amount %s",
			money(b.MemberCost), money(b.InsurerCost), money(serviceAmount))
	}
	return b, nil
}

func validateInputs(serviceAmount, remainingDeductible, currentOOPSpend decimal.Decimal) error {
	switch {
	case serviceAmount.IsNegative():
		return domain.NewBusinessLogicError("service amount must not be negative")
	case !serviceAmount.Equal(serviceAmount.RoundBank(CurrencyPlaces)):
		return domain.NewBusinessLogicError("service amount %s has more than %d decimal places", serviceAmount.String(), CurrencyPlaces)
	case remainingDeductible.IsNegative():
		return domain.NewBusinessLogicError("remaining deductible must not be negative")
	case currentOOPSpend.IsNegative():
		return domain.NewBusinessLogicError("current out-of-pocket spend must not be negative")
	}
	return nil
}

func money(d decimal.Decimal) string {
	return d.StringFixedBank(CurrencyPlaces)
}
