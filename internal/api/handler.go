package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/accumulator"
	"github.com/opensource-finance/kestrel/internal/costshare"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/formula"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// maxBodyBytes caps request bodies, rule documents included.
const maxBodyBytes = 4 << 20

// Dependencies are the collaborators the handlers run against.
// Repo, Cache and Bus are optional; endpoints that need storage answer 503
// without a repository.
type Dependencies struct {
	Repo         domain.Repository
	Cache        domain.Cache
	Bus          domain.EventBus
	Engine       *rules.Engine
	Processor    *decision.Processor
	Formulas     *formula.Evaluator
	Profiles     *costshare.Profiles
	Accumulators *accumulator.Service
	Version      string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	engine       *rules.Engine
	processor    *decision.Processor
	formulas     *formula.Evaluator
	profiles     *costshare.Profiles
	accumulators *accumulator.Service
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	formulas := deps.Formulas
	if formulas == nil {
		formulas = &formula.Evaluator{}
	}
	processor := deps.Processor
	if processor == nil {
		processor = decision.NewProcessor(formulas, deps.Repo, deps.Bus)
	}
	profiles := deps.Profiles
	if profiles == nil && deps.Repo != nil {
		profiles = costshare.NewProfiles(deps.Repo, deps.Cache, 0)
	}
	accumulators := deps.Accumulators
	if accumulators == nil && deps.Repo != nil {
		accumulators = accumulator.NewService(deps.Repo)
	}

	return &Handler{
		repo:         deps.Repo,
		cache:        deps.Cache,
		bus:          deps.Bus,
		engine:       deps.Engine,
		processor:    processor,
		formulas:     formulas,
		profiles:     profiles,
		accumulators: accumulators,
		version:      deps.Version,
	}
}

// ============================================================================
// FORMULA HANDLERS
// ============================================================================

// FormulaRequest is the request body for the formula endpoints.
type FormulaRequest struct {
	Expression string                     `json:"expression"`
	Variables  map[string]decimal.Decimal `json:"variables,omitempty"`
	Declared   []string                   `json:"declaredVariables,omitempty"`
	Bounds     formula.Bounds             `json:"bounds"`
	TestCases  []formula.TestCase         `json:"testCases,omitempty"`
}

// EvaluateFormula handles POST /formulas/evaluate.
func (h *Handler) EvaluateFormula(w http.ResponseWriter, r *http.Request) {
	var req FormulaRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.formulas.Evaluate(req.Expression, req.Variables, req.Bounds)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"expression": req.Expression,
		"result":     result,
	})
}

// ValidateFormula handles POST /formulas/validate. Invalid formulas are a
// successful dry run with valid=false.
func (h *Handler) ValidateFormula(w http.ResponseWriter, r *http.Request) {
	var req FormulaRequest
	if !decodeBody(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, h.formulas.ValidateFormula(domain.Formula{
		Expression: req.Expression,
		Variables:  req.Declared,
	}))
}

// TestFormula handles POST /formulas/test.
func (h *Handler) TestFormula(w http.ResponseWriter, r *http.Request) {
	var req FormulaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.TestCases) == 0 {
		writeError(w, &domain.ValidationError{Field: "testCases", Message: "at least one test case is required"})
		return
	}

	results := h.formulas.TestFormula(req.Expression, req.TestCases)
	passed := 0
	for _, res := range results {
		if res.Success {
			passed++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"expression": req.Expression,
		"results":    results,
		"passed":     passed,
		"total":      len(results),
	})
}

// ============================================================================
// CONDITION HANDLERS
// ============================================================================

// ConditionRequest is the request body for the condition endpoints.
type ConditionRequest struct {
	Condition *domain.ConditionNode `json:"condition"`
	Context   map[string]any        `json:"context,omitempty"`
}

// EvaluateCondition handles POST /conditions/evaluate. Structural faults are
// reported as validation errors instead of a false result.
func (h *Handler) EvaluateCondition(w http.ResponseWriter, r *http.Request) {
	var req ConditionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !h.requireEngine(w) {
		return
	}

	conditions := h.engine.Conditions()
	if err := conditions.ValidateStructure(req.Condition).Err(); err != nil {
		writeError(w, err)
		return
	}

	matched, err := conditions.Check(req.Condition, req.Context)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result": matched,
	})
}

// ValidateCondition handles POST /conditions/validate.
func (h *Handler) ValidateCondition(w http.ResponseWriter, r *http.Request) {
	var req ConditionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !h.requireEngine(w) {
		return
	}

	errs := h.engine.Conditions().ValidateStructure(req.Condition)
	resp := map[string]any{
		"valid": len(errs) == 0,
	}
	if req.Condition != nil {
		resp["depth"] = req.Condition.Depth()
	}
	if len(errs) > 0 {
		resp["errors"] = errs
	}
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// COST-SHARING HANDLERS
// ============================================================================

// CostSharingRequest is the request body for POST /cost-sharing/calculate.
// The structure comes from the request or from the benefit's stored
// profile. Omitted accumulator values are looked up for the member, or
// default to a fresh plan year.
type CostSharingRequest struct {
	BenefitID           string                       `json:"benefitId,omitempty"`
	MemberID            string                       `json:"memberId,omitempty"`
	PlanYear            int                          `json:"planYear,omitempty"`
	Structure           *domain.CostSharingStructure `json:"structure,omitempty"`
	ServiceAmount       decimal.Decimal              `json:"serviceAmount"`
	RemainingDeductible *decimal.Decimal             `json:"remainingDeductible,omitempty"`
	CurrentOOPSpend     *decimal.Decimal             `json:"currentOopSpend,omitempty"`
}

// CalculateCostSharing handles POST /cost-sharing/calculate.
func (h *Handler) CalculateCostSharing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CostSharingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	structure := req.Structure
	if structure == nil {
		if req.BenefitID == "" {
			writeError(w, &domain.ValidationError{Field: "structure", Message: "structure or benefitId is required"})
			return
		}
		if h.profiles == nil {
			writeUnavailable(w, "repository")
			return
		}
		profile, err := h.profiles.Get(ctx, tenantID, req.BenefitID)
		if err != nil {
			writeError(w, err)
			return
		}
		structure = &profile.Structure
	}

	remaining := structure.Deductible
	oop := decimal.Zero
	if req.RemainingDeductible == nil || req.CurrentOOPSpend == nil {
		if req.MemberID != "" && h.accumulators != nil {
			acc, err := h.accumulators.Get(ctx, tenantID, req.MemberID, req.PlanYear, *structure)
			if err != nil {
				writeError(w, err)
				return
			}
			remaining = acc.RemainingDeductible
			oop = acc.CurrentOOPSpend
		}
	}
	if req.RemainingDeductible != nil {
		remaining = *req.RemainingDeductible
	}
	if req.CurrentOOPSpend != nil {
		oop = *req.CurrentOOPSpend
	}

	breakdown, err := costshare.Calculate(*structure, req.ServiceAmount, remaining, oop)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, breakdown)
}

// GetProfile handles GET /cost-sharing/profiles/{benefitId}.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		writeUnavailable(w, "repository")
		return
	}

	profile, err := h.profiles.Get(ctx, GetTenantID(ctx), chi.URLParam(r, "benefitId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// PutProfile handles PUT /cost-sharing/profiles/{benefitId}.
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		writeUnavailable(w, "repository")
		return
	}

	var profile domain.CostSharingProfile
	if !decodeBody(w, r, &profile) {
		return
	}
	profile.BenefitID = chi.URLParam(r, "benefitId")

	if err := h.profiles.Put(ctx, GetTenantID(ctx), &profile); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// GetAccumulator handles GET /members/{memberId}/accumulators.
// Query parameters: planYear, benefitId (for the deductible).
func (h *Handler) GetAccumulator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	if h.accumulators == nil {
		writeUnavailable(w, "repository")
		return
	}

	planYear := 0
	if raw := r.URL.Query().Get("planYear"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, &domain.ValidationError{Field: "planYear", Message: "must be an integer"})
			return
		}
		planYear = year
	}

	var structure domain.CostSharingStructure
	if benefitID := r.URL.Query().Get("benefitId"); benefitID != "" && h.profiles != nil {
		profile, err := h.profiles.Get(ctx, tenantID, benefitID)
		if err != nil {
			writeError(w, err)
			return
		}
		structure = profile.Structure
	}

	acc, err := h.accumulators.Get(ctx, tenantID, chi.URLParam(r, "memberId"), planYear, structure)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// ============================================================================
// RULE EVALUATION HANDLERS
// ============================================================================

// EvaluationRequest is the request body for the eligibility and
// pre-approval endpoints.
type EvaluationRequest struct {
	SubjectID     string          `json:"subjectId,omitempty"`
	Context       map[string]any  `json:"context"`
	OverrideCodes []string        `json:"overrideCodes,omitempty"`
	EstimatedCost decimal.Decimal `json:"estimatedCost"`
}

// EvaluateEligibility handles POST /eligibility/evaluate.
func (h *Handler) EvaluateEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req EvaluationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !h.requireEngine(w) {
		return
	}

	result := h.engine.EvaluateEligibility(ctx, tenantID, req.Context, req.OverrideCodes)
	result.SubjectID = req.SubjectID

	if h.repo != nil {
		if err := h.repo.SaveEligibility(ctx, tenantID, result); err != nil {
			slog.Error("failed to save eligibility result",
				"result_id", result.ID,
				"error", err,
			)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// GetEligibility handles GET /eligibility/{id}.
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	result, err := h.repo.GetEligibility(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// EvaluatePreapproval handles POST /preapproval/evaluate.
func (h *Handler) EvaluatePreapproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EvaluationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !h.requireEngine(w) {
		return
	}

	result := h.engine.EvaluatePreapproval(ctx, GetTenantID(ctx), req.Context, req.EstimatedCost, req.OverrideCodes)
	result.SubjectID = req.SubjectID

	writeJSON(w, http.StatusOK, result)
}

// ============================================================================
// RULE MANAGEMENT HANDLERS
// ============================================================================

// ListRules handles GET /rules and returns the rules currently in force.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}

	set := h.engine.Snapshot(GetTenantID(r.Context()))
	eligibility := make([]domain.EligibilityRule, len(set.Eligibility))
	for i, c := range set.Eligibility {
		eligibility[i] = c.Rule
	}
	preapproval := make([]domain.PreapprovalRule, len(set.Preapproval))
	for i, c := range set.Preapproval {
		preapproval[i] = c.Rule
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"eligibility": eligibility,
		"preapproval": preapproval,
		"count":       set.Len(),
		"skipped":     set.Skipped,
		"loadedAt":    set.LoadedAt,
	})
}

// CreateRules handles POST /rules. The body is a rule document in JSON, or
// YAML when the Content-Type says so. The document is validated together
// with the tenant's stored rules, so parents may already be stored, and
// all of it is saved in one transaction.
func (h *Handler) CreateRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	if !h.requireEngine(w) {
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
		return
	}

	defs, err := rules.DecodeDefinitions(data, requestFormat(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if defs.Len() == 0 {
		writeError(w, &domain.ValidationError{Message: "rule document contains no rules"})
		return
	}

	var set *rules.RuleSet
	if h.repo == nil {
		set, err = h.engine.Load(tenantID, defs)
		if err != nil {
			writeError(w, err)
			return
		}
	} else {
		stored, err := rules.Stored(ctx, h.repo, tenantID)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := h.engine.Validate(rules.Merge(stored, defs)); err != nil {
			writeError(w, err)
			return
		}
		records, err := rules.Records(tenantID, defs)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := h.repo.SaveRules(ctx, tenantID, records); err != nil {
			slog.Error("failed to save rules", "tenant_id", tenantID, "error", err)
			writeError(w, err)
			return
		}
		set, err = h.engine.Reload(ctx, h.repo, tenantID)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	slog.Info("rules stored",
		"tenant_id", tenantID,
		"submitted", defs.Len(),
		"in_force", set.Len(),
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"submitted": defs.Len(),
		"count":     set.Len(),
		"skipped":   set.Skipped,
	})
}

// ReloadRules handles POST /rules/reload.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	if !h.requireEngine(w) {
		return
	}
	if h.repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	set, err := h.engine.Reload(ctx, h.repo, tenantID)
	if err != nil {
		slog.Error("failed to reload rules", "tenant_id", tenantID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "reloaded",
		"count":   set.Len(),
		"skipped": set.Skipped,
	})
}

// DeleteRule handles DELETE /rules/{id}. The rule is disabled and the
// tenant's rules are reloaded.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	if !h.requireEngine(w) {
		return
	}
	if h.repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	if err := h.repo.DeleteRule(ctx, tenantID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	set, err := h.engine.Reload(ctx, h.repo, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "disabled",
		"count":  set.Len(),
	})
}

// ============================================================================
// CALCULATION HANDLERS
// ============================================================================

// CalculationRequest is the request body for POST /calculations. When
// EligibilityContext is set the tenant's eligibility rules are run and the
// result is attached to the calculation.
type CalculationRequest struct {
	decision.CalculationInput
	EligibilityContext map[string]any `json:"eligibilityContext,omitempty"`
	OverrideCodes      []string       `json:"overrideCodes,omitempty"`
}

// DecisionRequest is the request body for approve and reject.
type DecisionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// CreateCalculation handles POST /calculations.
func (h *Handler) CreateCalculation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CalculationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	input := req.CalculationInput
	input.TenantID = tenantID
	if req.EligibilityContext != nil {
		if !h.requireEngine(w) {
			return
		}
		input.Eligibility = h.engine.EvaluateEligibility(ctx, tenantID, req.EligibilityContext, req.OverrideCodes)
	}

	calc, err := h.processor.Process(ctx, &input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, calc)
}

// GetCalculation handles GET /calculations/{id}.
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	calc, err := h.repo.GetCalculation(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

// ApproveCalculation handles POST /calculations/{id}/approve.
func (h *Handler) ApproveCalculation(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.processor.Approve)
}

// RejectCalculation handles POST /calculations/{id}/reject.
func (h *Handler) RejectCalculation(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.processor.Reject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, tenantID, calcID, actor, reason string) (*domain.Calculation, error)) {
	ctx := r.Context()
	if h.repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	var req DecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	calc, err := apply(ctx, GetTenantID(ctx), chi.URLParam(r, "id"), req.Actor, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

// OverrideCalculation handles POST /calculations/{id}/override.
func (h *Handler) OverrideCalculation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.repo == nil {
		writeUnavailable(w, "repository")
		return
	}

	var req decision.OverrideInput
	if !decodeBody(w, r, &req) {
		return
	}

	calc, err := h.processor.Override(ctx, GetTenantID(ctx), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

// ============================================================================
// HEALTH HANDLERS
// ============================================================================

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check event bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":  false,
			"reason": "rule engine not initialized",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ready":   true,
		"tenants": len(h.engine.Tenants()),
	})
}

// ============================================================================
// HELPERS
// ============================================================================

func (h *Handler) requireEngine(w http.ResponseWriter) bool {
	if h.engine == nil {
		writeUnavailable(w, "rule engine")
		return false
	}
	return true
}

// decodeBody decodes a JSON body keeping numbers exact. It writes a 400 and
// returns false when the body is malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	return true
}

func requestFormat(r *http.Request) rules.Format {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return rules.FormatJSON
	}
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return rules.FormatYAML
	}
	return rules.FormatJSON
}

// writeError maps domain errors onto status codes. Validation and formula
// errors are the caller's input (400); business and configuration errors
// are well-formed requests the rules refuse (422).
func writeError(w http.ResponseWriter, err error) {
	var (
		verrs domain.ValidationErrors
		verr  *domain.ValidationError
		ferr  *domain.FormulaError
		berr  *domain.BusinessLogicError
		cerr  *domain.ConfigurationError
	)

	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"errors": verrs,
		})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"errors": domain.ValidationErrors{verr},
		})
	case errors.As(err, &ferr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  err.Error(),
			"errors": []*domain.FormulaError{ferr},
		})
	case errors.As(err, &berr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": berr.Message,
		})
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "rule configuration error",
			"errors": []*domain.ConfigurationError{cerr},
		})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "not found",
		})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func writeUnavailable(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"error": what + " not available",
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
