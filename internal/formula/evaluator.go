// Package formula parses and evaluates sandboxed arithmetic expressions over
// named decimal variables.
//
// Evaluation is two-phase: an expression is parsed into a closed node set
// and checked against an allow-list before any arithmetic runs. There is no
// attribute access, no string handling and no way to call anything outside
// abs, min, max, round and pow.
package formula

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	// DefaultPrecision is the number of decimal places results are rounded to.
	DefaultPrecision int32 = 2

	// divisionPrecision is the scale kept on intermediate quotients.
	divisionPrecision int32 = 16

	// maxExactExponent bounds exponents computed by repeated multiplication.
	maxExactExponent = 1024

	// MaxPowerDigits bounds the coefficient size of an exact power result.
	MaxPowerDigits = 1000
)

// Bounds limit an evaluated result. Nil ends are open.
type Bounds struct {
	Min *decimal.Decimal `json:"min,omitempty"`
	Max *decimal.Decimal `json:"max,omitempty"`
}

// Evaluator holds formula limits. The zero value uses the defaults and an
// Evaluator is safe for concurrent use.
type Evaluator struct {
	// Precision is the number of decimal places a result is rounded to.
	Precision int32

	// MaxNesting bounds parse and check recursion.
	MaxNesting int

	// ComplexityWarning flags formulas whose complexity score exceeds it.
	// Zero disables the warning.
	ComplexityWarning int
}

// NewEvaluator creates an evaluator from engine configuration.
func NewEvaluator(cfg domain.EngineConfig) *Evaluator {
	return &Evaluator{
		Precision:         cfg.FormulaPrecision,
		MaxNesting:        cfg.FormulaMaxNesting,
		ComplexityWarning: cfg.ComplexityWarning,
	}
}

// Parse normalizes, screens, parses and structurally checks expr.
// A tree returned without error is safe to evaluate.
func (ev *Evaluator) Parse(expr string) (Node, error) {
	src := Normalize(expr)
	if err := screen(src); err != nil {
		return nil, err
	}
	n, err := parse(src, ev.maxNesting())
	if err != nil {
		return nil, err
	}
	if err := check(n, 1, ev.maxNesting()); err != nil {
		return nil, err
	}
	return n, nil
}

// Evaluate parses expr and computes it against variables. The result is
// rounded to the evaluator precision and must fall within bounds.
func (ev *Evaluator) Evaluate(expr string, variables map[string]decimal.Decimal, bounds Bounds) (decimal.Decimal, error) {
	n, err := ev.Parse(expr)
	if err != nil {
		return decimal.Zero, err
	}
	return ev.EvaluateNode(n, variables, bounds)
}

// EvaluateNode computes an already parsed tree.
func (ev *Evaluator) EvaluateNode(n Node, variables map[string]decimal.Decimal, bounds Bounds) (decimal.Decimal, error) {
	raw, err := eval(n, variables)
	if err != nil {
		return decimal.Zero, err
	}

	result := raw.RoundBank(ev.precision())
	if bounds.Min != nil && result.LessThan(*bounds.Min) {
		return decimal.Zero, domain.NewBusinessLogicError("result %s is below minimum %s", result.StringFixed(ev.precision()), bounds.Min.String())
	}
	if bounds.Max != nil && result.GreaterThan(*bounds.Max) {
		return decimal.Zero, domain.NewBusinessLogicError("result %s is above maximum %s", result.StringFixed(ev.precision()), bounds.Max.String())
	}
	return result, nil
}

func (ev *Evaluator) precision() int32 {
	if ev == nil || ev.Precision <= 0 {
		return DefaultPrecision
	}
	return ev.Precision
}

func (ev *Evaluator) maxNesting() int {
	if ev == nil || ev.MaxNesting <= 0 {
		return DefaultMaxNesting
	}
	return ev.MaxNesting
}

func eval(n Node, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	switch v := n.(type) {
	case *Literal:
		return v.Value, nil

	case *Ident:
		val, ok := vars[v.Name]
		if !ok {
			return decimal.Zero, &domain.FormulaError{
				Code:     domain.FormulaUnknownVariable,
				Message:  "variable is not defined",
				Variable: v.Name,
				Position: v.Offset,
			}
		}
		return val, nil

	case *Unary:
		x, err := eval(v.X, vars)
		if err != nil {
			return decimal.Zero, err
		}
		if v.Op == UnaryNeg {
			return x.Neg(), nil
		}
		return x, nil

	case *Binary:
		l, err := eval(v.Left, vars)
		if err != nil {
			return decimal.Zero, err
		}
		r, err := eval(v.Right, vars)
		if err != nil {
			return decimal.Zero, err
		}
		switch v.Op {
		case OpAdd:
			return l.Add(r), nil
		case OpSub:
			return l.Sub(r), nil
		case OpMul:
			return l.Mul(r), nil
		case OpDiv:
			return divide(l, r, v.Offset)
		case OpPow:
			return power(l, r, v.Offset)
		}
		return decimal.Zero, disallowed(v.Offset, fmt.Sprintf("operator %q is not allowed", v.Op))

	case *Call:
		args := make([]decimal.Decimal, len(v.Args))
		for i, a := range v.Args {
			x, err := eval(a, vars)
			if err != nil {
				return decimal.Zero, err
			}
			args[i] = x
		}
		return call(v, args)
	}
	return decimal.Zero, disallowed(n.Pos(), fmt.Sprintf("node type %T is not allowed", n))
}

func divide(l, r decimal.Decimal, pos int) (decimal.Decimal, error) {
	if r.IsZero() {
		return decimal.Zero, &domain.FormulaError{
			Code:     domain.FormulaDivisionByZero,
			Message:  "division by zero",
			Position: pos,
		}
	}
	return l.DivRound(r, divisionPrecision), nil
}

// power is exact for integral exponents and goes through float64 otherwise.
// Exact results are refused once their estimated coefficient passes
// MaxPowerDigits.
func power(base, exp decimal.Decimal, pos int) (decimal.Decimal, error) {
	if exp.IsInteger() && exp.Abs().LessThanOrEqual(decimal.NewFromInt(maxExactExponent)) {
		n := exp.IntPart()
		if digits := powerDigits(base, n); digits > MaxPowerDigits {
			return decimal.Zero, domain.NewBusinessLogicError("%s ** %d is too large (about %d digits, limit %d)",
				shorten(base), n, digits, MaxPowerDigits)
		}
		if n < 0 {
			if base.IsZero() {
				return decimal.Zero, &domain.FormulaError{
					Code:     domain.FormulaDivisionByZero,
					Message:  "zero raised to a negative power",
					Position: pos,
				}
			}
			return decimal.NewFromInt(1).DivRound(intPow(base, -n), divisionPrecision), nil
		}
		return intPow(base, n), nil
	}

	f := math.Pow(base.InexactFloat64(), exp.InexactFloat64())
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, domain.NewBusinessLogicError("%s ** %s is not a finite number", base.String(), exp.String())
	}
	return decimal.NewFromFloat(f), nil
}

// powerDigits estimates the coefficient digits of base**n as
// |n| * digits(base). Bases with a one-digit coefficient of 0 or 1 never grow.
func powerDigits(base decimal.Decimal, n int64) int64 {
	coef := base.Coefficient()
	coef.Abs(coef)
	if coef.BitLen() <= 1 {
		return 1
	}
	if n < 0 {
		n = -n
	}
	return n * int64(len(coef.String()))
}

func shorten(v decimal.Decimal) string {
	s := v.String()
	if len(s) > 24 {
		return s[:21] + "..."
	}
	return s
}

func intPow(base decimal.Decimal, n int64) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
		n >>= 1
	}
	return result
}

func call(c *Call, args []decimal.Decimal) (decimal.Decimal, error) {
	switch c.Func {
	case "abs":
		return args[0].Abs(), nil
	case "min":
		return decimal.Min(args[0], args[1:]...), nil
	case "max":
		return decimal.Max(args[0], args[1:]...), nil
	case "round":
		if len(args) == 1 {
			return args[0].RoundBank(0), nil
		}
		places := args[1]
		if !places.IsInteger() || places.Abs().GreaterThan(decimal.NewFromInt(32)) {
			return decimal.Zero, &domain.FormulaError{
				Code:     domain.FormulaDisallowedConstruct,
				Message:  "round digits must be an integer between -32 and 32",
				Position: c.Offset,
			}
		}
		return args[0].RoundBank(int32(places.IntPart())), nil
	case "pow":
		return power(args[0], args[1], c.Offset)
	}
	return decimal.Zero, &domain.FormulaError{
		Code:     domain.FormulaUnknownFunction,
		Message:  fmt.Sprintf("function %q is not allowed", c.Func),
		Position: c.Offset,
	}
}

var std = &Evaluator{}

// Evaluate runs expr with the default evaluator.
func Evaluate(expr string, variables map[string]decimal.Decimal, bounds Bounds) (decimal.Decimal, error) {
	return std.Evaluate(expr, variables, bounds)
}
