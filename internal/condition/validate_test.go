package condition

import (
	"errors"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestValidateStructure(t *testing.T) {
	engine := NewEngine(DefaultMaxDepth)

	t.Run("valid tree", func(t *testing.T) {
		tree := domain.And(
			domain.Compare("age", domain.OpBetween, []any{25, 65}),
			domain.Not(domain.Compare("status", domain.OpIn, []any{"lapsed"})),
		)
		if errs := engine.ValidateStructure(tree); len(errs) != 0 {
			t.Errorf("expected no errors, got %v", errs)
		}
	})

	tests := []struct {
		name     string
		node     *domain.ConditionNode
		wantPath string
		wantMsg  string
	}{
		{"missing operator", &domain.ConditionNode{Kind: domain.NodeComparison, Field: "a", Value: 1}, "root", "is required"},
		{"missing field", domain.Compare("", domain.OpEquals, 1), "root", "is required"},
		{"missing value", domain.Compare("a", domain.OpEquals, nil), "root", "is required"},
		{"in without list", domain.Compare("a", domain.OpIn, "x"), "root", "in requires a list"},
		{"between arity", domain.Compare("a", domain.OpBetween, []any{1, 2, 3}), "root", "exactly 2 values"},
		{"not arity", &domain.ConditionNode{Kind: domain.NodeNot, Children: []*domain.ConditionNode{
			domain.Compare("a", domain.OpEquals, 1), domain.Compare("b", domain.OpEquals, 2),
		}}, "root", "exactly one child"},
		{"empty and", domain.And(), "root", "at least one child"},
		{"nested error path", domain.Or(
			domain.Compare("a", domain.OpEquals, 1),
			domain.Compare("b", domain.OpIn, 5),
		), "root.children[1]", "in requires a list"},
		{"missing kind", &domain.ConditionNode{}, "root", "is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := engine.ValidateStructure(tt.node)
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			var matched bool
			for _, e := range errs {
				if e.Path == tt.wantPath && strings.Contains(e.Message, tt.wantMsg) {
					matched = true
				}
			}
			if !matched {
				t.Errorf("expected %q at %s, got %v", tt.wantMsg, tt.wantPath, errs)
			}
			if !errors.Is(errs, domain.ErrValidation) {
				t.Error("expected errors to unwrap to ErrValidation")
			}
		})
	}

	t.Run("depth limit", func(t *testing.T) {
		shallow := NewEngine(2)
		tree := domain.And(domain.And(domain.Compare("a", domain.OpEquals, 1)))
		errs := shallow.ValidateStructure(tree)
		if len(errs) != 1 || errs[0].Path != "root.children[0].children[0]" {
			t.Errorf("expected one depth error at the leaf, got %v", errs)
		}
	})
}
