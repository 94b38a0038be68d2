package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes. Every typed error below unwraps to exactly one of these,
// so callers can branch with errors.Is without knowing the concrete type.
var (
	ErrValidation    = errors.New("validation error")
	ErrFormula       = errors.New("formula error")
	ErrBusinessLogic = errors.New("business logic error")
	ErrConfiguration = errors.New("configuration error")
)

// ValidationError describes malformed input detected before evaluation:
// a formula that does not parse, a condition tree with the wrong shape,
// or a rule definition missing required fields.
type ValidationError struct {
	RuleID  string `json:"ruleId,omitempty"`
	Path    string `json:"path,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.RuleID != "" {
		fmt.Fprintf(&b, "rule %s: ", e.RuleID)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "%s ", e.Field)
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ValidationErrors collects every problem found by a static pass.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	switch len(v) {
	case 0:
		return "no validation errors"
	case 1:
		return v[0].Error()
	}
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(v), strings.Join(msgs, "; "))
}

func (v ValidationErrors) Unwrap() error { return ErrValidation }

// WithRule stamps a rule id on every entry that does not carry one yet.
func (v ValidationErrors) WithRule(ruleID string) ValidationErrors {
	for _, e := range v {
		if e.RuleID == "" {
			e.RuleID = ruleID
		}
	}
	return v
}

// Err returns nil for an empty list so callers can `return errs.Err()`.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// FormulaErrorCode identifies why a formula could not be evaluated.
type FormulaErrorCode string

const (
	FormulaSyntax              FormulaErrorCode = "syntax_error"
	FormulaDisallowedConstruct FormulaErrorCode = "disallowed_construct"
	FormulaUnknownVariable     FormulaErrorCode = "unknown_variable"
	FormulaUnknownFunction     FormulaErrorCode = "unknown_function"
	FormulaArity               FormulaErrorCode = "wrong_argument_count"
	FormulaDivisionByZero      FormulaErrorCode = "division_by_zero"
	FormulaTooDeep             FormulaErrorCode = "nesting_too_deep"
)

// FormulaError is raised per expression, either while parsing or while
// evaluating against a concrete variable set.
type FormulaError struct {
	Code     FormulaErrorCode `json:"code"`
	Message  string           `json:"message"`
	Variable string           `json:"variable,omitempty"`
	Position int              `json:"position,omitempty"`
}

func (e *FormulaError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Variable)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FormulaError) Unwrap() error { return ErrFormula }

// BusinessLogicError reports a well-formed input whose outcome is not
// acceptable: a result out of bounds, a non-finite number, or a cost-sharing
// configuration that breaks a business invariant.
type BusinessLogicError struct {
	Message string `json:"message"`
}

func (e *BusinessLogicError) Error() string { return e.Message }

func (e *BusinessLogicError) Unwrap() error { return ErrBusinessLogic }

// NewBusinessLogicError formats a BusinessLogicError.
func NewBusinessLogicError(format string, args ...any) *BusinessLogicError {
	return &BusinessLogicError{Message: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports structural problems in stored configuration
// that only show up when definitions are put together, such as cyclic rule
// parents or a NOT node with the wrong number of children.
type ConfigurationError struct {
	RuleID  string   `json:"ruleId,omitempty"`
	Cycle   []string `json:"cycle,omitempty"`
	Message string   `json:"message"`
}

func (e *ConfigurationError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Cycle, " -> "))
	}
	if e.RuleID != "" {
		return fmt.Sprintf("rule %s: %s", e.RuleID, e.Message)
	}
	return e.Message
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }
