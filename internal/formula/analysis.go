package formula

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Complexity scores a tree: one per binary or unary operator, two per call.
// The score is advisory.
func Complexity(n Node) int {
	score := 0
	Walk(n, func(n Node) {
		switch n.(type) {
		case *Binary, *Unary:
			score++
		case *Call:
			score += 2
		}
	})
	return score
}

// Variables lists the distinct variable names a tree references, sorted.
func Variables(n Node) []string {
	seen := make(map[string]struct{})
	Walk(n, func(n Node) {
		if id, ok := n.(*Ident); ok {
			seen[id.Name] = struct{}{}
		}
	})
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtractVariables parses expr and lists the variables it needs.
func (ev *Evaluator) ExtractVariables(expr string) ([]string, error) {
	n, err := ev.Parse(expr)
	if err != nil {
		return nil, err
	}
	return Variables(n), nil
}

// Report is the dry-run result of validating a formula. Nothing is evaluated.
type Report struct {
	Expression        string                 `json:"expression"`
	Valid             bool                   `json:"valid"`
	Variables         []string               `json:"variables"`
	Complexity        int                    `json:"complexity"`
	ComplexityWarning bool                   `json:"complexityWarning"`
	Errors            []*domain.FormulaError `json:"errors,omitempty"`
}

// Validate parses expr without evaluating it, listing required variables
// and the complexity score.
func (ev *Evaluator) Validate(expr string) *Report {
	return ev.ValidateFormula(domain.Formula{Expression: expr})
}

// ValidateFormula is Validate against a declared variable set. When the
// formula declares its variables, references outside that set are errors.
func (ev *Evaluator) ValidateFormula(f domain.Formula) *Report {
	report := &Report{Expression: f.Expression, Variables: []string{}}

	n, err := ev.Parse(f.Expression)
	if err != nil {
		report.Errors = append(report.Errors, asFormulaError(err))
		return report
	}

	report.Variables = Variables(n)
	report.Complexity = Complexity(n)
	report.ComplexityWarning = ev != nil && ev.ComplexityWarning > 0 && report.Complexity > ev.ComplexityWarning

	if len(f.Variables) > 0 {
		declared := make(map[string]struct{}, len(f.Variables))
		for _, v := range f.Variables {
			declared[v] = struct{}{}
		}
		for _, v := range report.Variables {
			if _, ok := declared[v]; !ok {
				report.Errors = append(report.Errors, &domain.FormulaError{
					Code:     domain.FormulaUnknownVariable,
					Message:  "variable is not declared",
					Variable: v,
				})
			}
		}
	}

	report.Valid = len(report.Errors) == 0
	return report
}

// TestCase is one set of inputs for TestFormula.
type TestCase struct {
	Name      string                     `json:"name,omitempty"`
	Variables map[string]decimal.Decimal `json:"variables"`
	Expected  *decimal.Decimal           `json:"expected,omitempty"`
	Bounds    Bounds                     `json:"bounds"`
}

// TestResult captures one case's outcome.
type TestResult struct {
	Name    string               `json:"name,omitempty"`
	Success bool                 `json:"success"`
	Result  *decimal.Decimal     `json:"result,omitempty"`
	Matched *bool                `json:"matched,omitempty"`
	Error   *domain.FormulaError `json:"error,omitempty"`
	Message string               `json:"message,omitempty"`
}

// TestFormula evaluates expr against each case and records the outcome.
// A case fails when evaluation errors or the result differs from Expected.
func (ev *Evaluator) TestFormula(expr string, cases []TestCase) []TestResult {
	results := make([]TestResult, len(cases))

	n, parseErr := ev.Parse(expr)
	for i, tc := range cases {
		res := TestResult{Name: tc.Name}
		if parseErr != nil {
			res.Error = asFormulaError(parseErr)
			res.Message = parseErr.Error()
			results[i] = res
			continue
		}

		val, err := ev.EvaluateNode(n, tc.Variables, tc.Bounds)
		if err != nil {
			var fe *domain.FormulaError
			if errors.As(err, &fe) {
				res.Error = fe
			}
			res.Message = err.Error()
			results[i] = res
			continue
		}

		res.Result = &val
		res.Success = true
		if tc.Expected != nil {
			matched := val.Equal(*tc.Expected)
			res.Matched = &matched
			res.Success = matched
			if !matched {
				res.Message = "expected " + tc.Expected.String() + ", got " + val.String()
			}
		}
		results[i] = res
	}
	return results
}

func asFormulaError(err error) *domain.FormulaError {
	var fe *domain.FormulaError
	if errors.As(err, &fe) {
		return fe
	}
	return &domain.FormulaError{Code: domain.FormulaSyntax, Message: err.Error()}
}
