// Package decision combines formula pricing, cost sharing and eligibility
// into a calculation record and runs its two-step approval workflow.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/costshare"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/formula"
)

// Reserved variable names visible to adjustment formulas.
const (
	VarBase    = "base"
	VarRunning = "running"
)

// Processor builds calculations and moves them through approval.
// Repository and bus are optional; without them the processor only computes.
type Processor struct {
	formulas *formula.Evaluator
	repo     domain.Repository
	bus      domain.EventBus
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor creates a processor.
func NewProcessor(formulas *formula.Evaluator, repo domain.Repository, bus domain.EventBus) *Processor {
	if formulas == nil {
		formulas = &formula.Evaluator{}
	}
	return &Processor{
		formulas: formulas,
		repo:     repo,
		bus:      bus,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AdjustmentInput is one named loading or discount. Its formula sees the
// caller's variables plus base (the base amount) and running (the total
// after every earlier adjustment).
type AdjustmentInput struct {
	Name        string `json:"name"`
	Formula     string `json:"formula"`
	Description string `json:"description,omitempty"`
}

// CostSharingInput requests a member cost split of the final amount, or of
// ServiceAmount when set.
type CostSharingInput struct {
	Structure           domain.CostSharingStructure `json:"structure"`
	ServiceAmount       *decimal.Decimal            `json:"serviceAmount,omitempty"`
	RemainingDeductible decimal.Decimal             `json:"remainingDeductible"`
	CurrentOOPSpend     decimal.Decimal             `json:"currentOopSpend"`
}

// CalculationInput contains all data needed for a calculation.
// Exactly one of BaseFormula and BaseAmount is required.
type CalculationInput struct {
	TenantID  string `json:"-"`
	MemberID  string `json:"memberId,omitempty"`
	BenefitID string `json:"benefitId,omitempty"`
	PlanYear  int    `json:"planYear,omitempty"`
	Actor     string `json:"actor,omitempty"`

	BaseFormula string                     `json:"baseFormula,omitempty"`
	BaseAmount  *decimal.Decimal           `json:"baseAmount,omitempty"`
	Variables   map[string]decimal.Decimal `json:"variables,omitempty"`
	Adjustments []AdjustmentInput          `json:"adjustments,omitempty"`

	// Bounds limit the final amount.
	Bounds formula.Bounds `json:"bounds"`

	CostSharing *CostSharingInput         `json:"costSharing,omitempty"`
	Eligibility *domain.EligibilityResult `json:"eligibility,omitempty"`
	Metadata    map[string]string         `json:"metadata,omitempty"`
}

// Compute builds a pending calculation without persisting or publishing it.
func (p *Processor) Compute(input *CalculationInput) (*domain.Calculation, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	base, err := p.base(input)
	if err != nil {
		return nil, err
	}

	now := p.now()
	calc := &domain.Calculation{
		ID:          uuid.New().String(),
		TenantID:    input.TenantID,
		MemberID:    input.MemberID,
		BenefitID:   input.BenefitID,
		PlanYear:    input.PlanYear,
		BaseAmount:  base,
		Adjustments: make([]domain.Adjustment, 0, len(input.Adjustments)),
		Status:      domain.StatusPending,
		Eligibility: input.Eligibility,
		Metadata:    input.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	running := base
	for _, adj := range input.Adjustments {
		vars := make(map[string]decimal.Decimal, len(input.Variables)+2)
		maps.Copy(vars, input.Variables)
		vars[VarBase] = base
		vars[VarRunning] = running

		amount, err := p.formulas.Evaluate(adj.Formula, vars, formula.Bounds{})
		if err != nil {
			return nil, fmt.Errorf("adjustment %s: %w", adj.Name, err)
		}
		running = running.Add(amount)
		calc.Adjustments = append(calc.Adjustments, domain.Adjustment{
			Name:        adj.Name,
			Formula:     adj.Formula,
			Amount:      amount,
			Description: adj.Description,
		})
	}

	final := running
	if final.IsNegative() {
		return nil, domain.NewBusinessLogicError("final amount %s is negative", final.StringFixed(2))
	}
	if b := input.Bounds; b.Min != nil && final.LessThan(*b.Min) {
		return nil, domain.NewBusinessLogicError("final amount %s is below minimum %s", final.StringFixed(2), b.Min.String())
	}
	if b := input.Bounds; b.Max != nil && final.GreaterThan(*b.Max) {
		return nil, domain.NewBusinessLogicError("final amount %s is above maximum %s", final.StringFixed(2), b.Max.String())
	}
	calc.FinalAmount = final

	if cs := input.CostSharing; cs != nil {
		service := final.RoundBank(costshare.CurrencyPlaces)
		if cs.ServiceAmount != nil {
			service = *cs.ServiceAmount
		}
		breakdown, err := costshare.Calculate(cs.Structure, service, cs.RemainingDeductible, cs.CurrentOOPSpend)
		if err != nil {
			return nil, fmt.Errorf("cost sharing: %w", err)
		}
		calc.CostSharing = breakdown
	}

	if reasons := Reasons(input.Eligibility); len(reasons) > 0 {
		calc.Reason = strings.Join(reasons, "; ")
	}

	created := newEvent(calc, domain.EventCreated, input.Actor, now)
	created.FromStatus = ""
	created.ToStatus = domain.StatusPending
	calc.History = []domain.CalculationEvent{*created}

	return calc, nil
}

// Process computes a calculation, stores it and announces it on the bus.
func (p *Processor) Process(ctx context.Context, input *CalculationInput) (*domain.Calculation, error) {
	calc, err := p.Compute(input)
	if err != nil {
		return nil, err
	}

	if p.repo != nil {
		if err := p.repo.SaveCalculation(ctx, calc.TenantID, calc); err != nil {
			return nil, fmt.Errorf("failed to save calculation: %w", err)
		}
	}
	p.publish(ctx, calc, domain.EventCreated)

	p.logger.Info("calculation created",
		"tenant_id", calc.TenantID,
		"calculation_id", calc.ID,
		"final_amount", calc.FinalAmount.String(),
	)
	return calc, nil
}

// Approve loads a calculation, approves it and records the event.
func (p *Processor) Approve(ctx context.Context, tenantID, calcID, actor, reason string) (*domain.Calculation, error) {
	return p.transition(ctx, tenantID, calcID, func(calc *domain.Calculation, at time.Time) (*domain.CalculationEvent, error) {
		return Approve(calc, actor, reason, at)
	})
}

// Reject loads a calculation, rejects it and records the event.
func (p *Processor) Reject(ctx context.Context, tenantID, calcID, actor, reason string) (*domain.Calculation, error) {
	return p.transition(ctx, tenantID, calcID, func(calc *domain.Calculation, at time.Time) (*domain.CalculationEvent, error) {
		return Reject(calc, actor, reason, at)
	})
}

// Override loads a calculation, overrides its amount and records the event.
func (p *Processor) Override(ctx context.Context, tenantID, calcID string, in OverrideInput) (*domain.Calculation, error) {
	return p.transition(ctx, tenantID, calcID, func(calc *domain.Calculation, at time.Time) (*domain.CalculationEvent, error) {
		return Override(calc, in, at)
	})
}

func (p *Processor) transition(ctx context.Context, tenantID, calcID string, apply func(*domain.Calculation, time.Time) (*domain.CalculationEvent, error)) (*domain.Calculation, error) {
	if p.repo == nil {
		return nil, fmt.Errorf("calculation workflow requires a repository")
	}

	calc, err := p.repo.GetCalculation(ctx, tenantID, calcID)
	if err != nil {
		return nil, err
	}

	event, err := apply(calc, p.now())
	if err != nil {
		return nil, err
	}

	if err := p.repo.RecordCalculationEvent(ctx, tenantID, calc, event); err != nil {
		return nil, fmt.Errorf("failed to record %s event: %w", event.Action, err)
	}
	p.publish(ctx, calc, event.Action)

	p.logger.Info("calculation updated",
		"tenant_id", tenantID,
		"calculation_id", calc.ID,
		"action", event.Action,
		"actor", event.Actor,
		"status", calc.Status,
	)
	return calc, nil
}

// publish announces a calculation. Bus failures are logged, not returned:
// the stored record is the source of truth.
func (p *Processor) publish(ctx context.Context, calc *domain.Calculation, action domain.EventAction) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(calc)
	if err != nil {
		p.logger.Warn("failed to encode calculation event", "calculation_id", calc.ID, "error", err)
		return
	}
	if err := p.bus.Publish(ctx, calc.TenantID, domain.CalculationTopic(action), payload); err != nil {
		p.logger.Warn("failed to publish calculation event",
			"calculation_id", calc.ID,
			"action", action,
			"error", err,
		)
	}
}

func (p *Processor) base(input *CalculationInput) (decimal.Decimal, error) {
	if input.BaseAmount != nil {
		if input.BaseAmount.IsNegative() {
			return decimal.Zero, domain.NewBusinessLogicError("base amount must not be negative")
		}
		return *input.BaseAmount, nil
	}
	amount, err := p.formulas.Evaluate(input.BaseFormula, input.Variables, formula.Bounds{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("base formula: %w", err)
	}
	return amount, nil
}

func validateInput(input *CalculationInput) error {
	if input == nil {
		return &domain.ValidationError{Message: "calculation input is required"}
	}

	var errs domain.ValidationErrors
	hasFormula := strings.TrimSpace(input.BaseFormula) != ""
	switch {
	case hasFormula && input.BaseAmount != nil:
		errs = append(errs, &domain.ValidationError{Field: "baseAmount", Message: "baseFormula and baseAmount are mutually exclusive"})
	case !hasFormula && input.BaseAmount == nil:
		errs = append(errs, &domain.ValidationError{Field: "baseAmount", Message: "one of baseFormula or baseAmount is required"})
	}

	seen := make(map[string]bool, len(input.Adjustments))
	for i, adj := range input.Adjustments {
		path := fmt.Sprintf("adjustments[%d]", i)
		if strings.TrimSpace(adj.Name) == "" {
			errs = append(errs, &domain.ValidationError{Path: path, Field: "name", Message: "is required"})
		} else if seen[adj.Name] {
			errs = append(errs, &domain.ValidationError{Path: path, Field: "name", Message: "is duplicated"})
		}
		seen[adj.Name] = true
		if strings.TrimSpace(adj.Formula) == "" {
			errs = append(errs, &domain.ValidationError{Path: path, Field: "formula", Message: "is required"})
		}
	}
	for name := range input.Variables {
		if name == VarBase || name == VarRunning {
			errs = append(errs, &domain.ValidationError{Field: "variables", Message: fmt.Sprintf("%q is reserved", name)})
		}
	}
	return errs.Err()
}

// Reasons extracts human-readable reasons from an eligibility result:
// blocking issues first, then items needing review.
func Reasons(result *domain.EligibilityResult) []string {
	if result == nil {
		return nil
	}
	var reasons []string
	for _, issue := range result.BlockingIssues {
		reasons = append(reasons, issue.Message)
	}
	for _, issue := range result.ReviewItems {
		reasons = append(reasons, issue.Message)
	}
	return reasons
}
