package condition

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ValidateStructure checks the shape of a tree without a context: operators
// and fields present, value shapes matching the operator, NOT arity, and the
// depth limit. It returns every problem found, each tagged with its node path.
func (e *Engine) ValidateStructure(node *domain.ConditionNode) domain.ValidationErrors {
	var errs domain.ValidationErrors
	e.validate(node, "root", 1, &errs)
	return errs
}

func (e *Engine) validate(node *domain.ConditionNode, path string, depth int, errs *domain.ValidationErrors) {
	add := func(field, format string, args ...any) {
		*errs = append(*errs, &domain.ValidationError{
			Path:    path,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if node == nil {
		add("", "node is required")
		return
	}
	if limit := e.maxDepth(); depth > limit {
		add("", "exceeds maximum depth of %d", limit)
		return
	}

	switch node.Kind {
	case domain.NodeComparison:
		validateComparison(node, add)
		if len(node.Children) > 0 {
			add("children", "not allowed on a comparison")
		}
		return

	case domain.NodeAnd, domain.NodeOr:
		if len(node.Children) == 0 {
			add("children", "%s requires at least one child", node.Kind)
		}

	case domain.NodeNot:
		if len(node.Children) != 1 {
			add("children", "not requires exactly one child, got %d", len(node.Children))
		}

	case "":
		add("kind", "is required")
		return

	default:
		add("kind", "unknown node kind %q", node.Kind)
		return
	}

	if node.Field != "" || node.Operator != "" {
		add("", "logical node must not carry field or operator")
	}
	for i, child := range node.Children {
		e.validate(child, fmt.Sprintf("%s.children[%d]", path, i), depth+1, errs)
	}
}

func validateComparison(node *domain.ConditionNode, add func(field, format string, args ...any)) {
	if node.Field == "" {
		add("field", "is required")
	}
	if node.Operator == "" {
		add("operator", "is required")
		return
	}
	if !node.Operator.Valid() {
		add("operator", "unknown operator %q", node.Operator)
		return
	}
	if node.Value == nil {
		add("value", "is required")
		return
	}

	switch node.Operator {
	case domain.OpIn:
		if _, ok := asList(node.Value); !ok {
			add("value", "in requires a list")
		}
	case domain.OpBetween:
		bounds, ok := asList(node.Value)
		if !ok || len(bounds) != 2 {
			add("value", "between requires exactly 2 values")
			return
		}
		if bounds[0] == nil || bounds[1] == nil {
			add("value", "between bounds must not be null")
		}
	default:
		if _, ok := asList(node.Value); ok {
			add("value", "%s requires a scalar value", node.Operator)
		}
	}
}
