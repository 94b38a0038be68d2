package formula

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestExtractVariables(t *testing.T) {
	ev := &Evaluator{}

	vars, err := ev.ExtractVariables("base * (1 + age_factor) + max(region_load, base) - round(discount, 2)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"age_factor", "base", "discount", "region_load"}
	if !reflect.DeepEqual(vars, want) {
		t.Errorf("expected %v, got %v", want, vars)
	}

	if _, err := ev.ExtractVariables("os.system"); err == nil {
		t.Error("expected error for disallowed expression")
	}
}

func TestComplexity(t *testing.T) {
	ev := &Evaluator{}
	tests := []struct {
		expr string
		want int
	}{
		{"1", 0},
		{"a + b", 1},
		{"-a * b", 2},
		{"max(a, b) + 1", 3},
		{"round(abs(a - b), 2)", 5},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			n, err := ev.Parse(tt.expr)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if got := Complexity(n); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	ev := &Evaluator{ComplexityWarning: 2}

	t.Run("valid with warning", func(t *testing.T) {
		report := ev.Validate("a + b * c - d")
		if !report.Valid {
			t.Fatalf("expected valid report, got %+v", report.Errors)
		}
		if report.Complexity != 3 || !report.ComplexityWarning {
			t.Errorf("expected complexity 3 with warning, got %d/%v", report.Complexity, report.ComplexityWarning)
		}
		if len(report.Variables) != 4 {
			t.Errorf("expected 4 variables, got %v", report.Variables)
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		report := ev.Validate("a +* b")
		if report.Valid || len(report.Errors) != 1 {
			t.Fatalf("expected one error, got %+v", report)
		}
		if report.Errors[0].Code != domain.FormulaSyntax {
			t.Errorf("expected syntax error, got %s", report.Errors[0].Code)
		}
	})

	t.Run("undeclared variable", func(t *testing.T) {
		report := ev.ValidateFormula(domain.Formula{Expression: "base * factor", Variables: []string{"base"}})
		if report.Valid {
			t.Fatal("expected invalid report")
		}
		if report.Errors[0].Variable != "factor" {
			t.Errorf("expected 'factor' flagged, got %+v", report.Errors[0])
		}
	})
}

func TestTestFormula(t *testing.T) {
	ev := &Evaluator{}
	expected := decimal.RequireFromString("120")
	wrong := decimal.RequireFromString("1")

	results := ev.TestFormula("base * (1 + f)", []TestCase{
		{Name: "match", Variables: map[string]decimal.Decimal{"base": decimal.NewFromInt(100), "f": decimal.RequireFromString("0.2")}, Expected: &expected},
		{Name: "mismatch", Variables: map[string]decimal.Decimal{"base": decimal.NewFromInt(100), "f": decimal.Zero}, Expected: &wrong},
		{Name: "missing", Variables: map[string]decimal.Decimal{"base": decimal.NewFromInt(100)}},
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Success || results[0].Matched == nil || !*results[0].Matched {
		t.Errorf("expected first case to match, got %+v", results[0])
	}
	if results[1].Success || results[1].Result == nil {
		t.Errorf("expected mismatch with a result, got %+v", results[1])
	}
	if results[2].Success || results[2].Error == nil || results[2].Error.Code != domain.FormulaUnknownVariable {
		t.Errorf("expected unknown variable, got %+v", results[2])
	}

	t.Run("parse failure applies to every case", func(t *testing.T) {
		results := ev.TestFormula("import os", []TestCase{{Name: "a"}, {Name: "b"}})
		for _, r := range results {
			if r.Success || r.Error == nil {
				t.Errorf("expected failure, got %+v", r)
			}
		}
	})
}
