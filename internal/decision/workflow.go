package decision

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// OverrideInput is a manual amount change on a pending calculation.
type OverrideInput struct {
	Actor         string          `json:"actor"`
	Reason        string          `json:"reason"`
	NewAmount     decimal.Decimal `json:"newAmount"`
	Justification string          `json:"justification"`
}

// Approve moves a pending calculation to approved and appends the event.
func Approve(calc *domain.Calculation, actor, reason string, at time.Time) (*domain.CalculationEvent, error) {
	return decide(calc, domain.StatusApproved, domain.EventApproved, actor, reason, at)
}

// Reject moves a pending calculation to rejected and appends the event.
func Reject(calc *domain.Calculation, actor, reason string, at time.Time) (*domain.CalculationEvent, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &domain.ValidationError{Field: "reason", Message: "is required to reject"}
	}
	return decide(calc, domain.StatusRejected, domain.EventRejected, actor, reason, at)
}

func decide(calc *domain.Calculation, next domain.ApprovalStatus, action domain.EventAction, actor, reason string, at time.Time) (*domain.CalculationEvent, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, &domain.ValidationError{Field: "actor", Message: "is required"}
	}
	if !calc.Status.CanTransitionTo(next) {
		return nil, domain.NewBusinessLogicError("calculation %s is %s; only pending calculations can be %s", calc.ID, calc.Status, next)
	}

	event := newEvent(calc, action, actor, at)
	event.ToStatus = next
	event.Reason = reason

	calc.Status = next
	calc.DecidedBy = actor
	calc.DecidedAt = &at
	calc.Reason = reason
	calc.UpdatedAt = at
	calc.History = append(calc.History, *event)
	return event, nil
}

// Override changes the final amount of a pending calculation. The status
// stays pending and the previous amount is kept in the event history.
func Override(calc *domain.Calculation, in OverrideInput, at time.Time) (*domain.CalculationEvent, error) {
	var errs domain.ValidationErrors
	if strings.TrimSpace(in.Actor) == "" {
		errs = append(errs, &domain.ValidationError{Field: "actor", Message: "is required"})
	}
	if strings.TrimSpace(in.Reason) == "" {
		errs = append(errs, &domain.ValidationError{Field: "reason", Message: "is required"})
	}
	if strings.TrimSpace(in.Justification) == "" {
		errs = append(errs, &domain.ValidationError{Field: "justification", Message: "is required"})
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	if in.NewAmount.IsNegative() {
		return nil, domain.NewBusinessLogicError("override amount must not be negative")
	}
	if !calc.Status.CanTransitionTo(domain.StatusPending) {
		return nil, domain.NewBusinessLogicError("calculation %s is %s; only pending calculations can be overridden", calc.ID, calc.Status)
	}

	previous := calc.FinalAmount
	event := newEvent(calc, domain.EventOverridden, in.Actor, at)
	event.ToStatus = domain.StatusPending
	event.PreviousAmount = &previous
	event.NewAmount = in.NewAmount
	event.Reason = in.Reason
	event.Justification = in.Justification

	calc.Override = &domain.Override{
		Reason:         in.Reason,
		OriginalAmount: previous,
		NewAmount:      in.NewAmount,
		Justification:  in.Justification,
		OverriddenBy:   in.Actor,
		OverriddenAt:   at,
	}
	calc.FinalAmount = in.NewAmount
	calc.UpdatedAt = at
	calc.History = append(calc.History, *event)
	return event, nil
}

func newEvent(calc *domain.Calculation, action domain.EventAction, actor string, at time.Time) *domain.CalculationEvent {
	return &domain.CalculationEvent{
		ID:            uuid.New().String(),
		CalculationID: calc.ID,
		Action:        action,
		Actor:         actor,
		FromStatus:    calc.Status,
		NewAmount:     calc.FinalAmount,
		CreatedAt:     at,
	}
}
