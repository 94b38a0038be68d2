package condition

import (
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultMaxDepth bounds condition tree height when none is configured.
const DefaultMaxDepth = 10

// Engine evaluates condition trees. It holds no per-evaluation state and is
// safe for concurrent use.
type Engine struct {
	// MaxDepth is the tallest tree Evaluate will descend. Zero means DefaultMaxDepth.
	MaxDepth int

	// Logger receives structural warnings. Nil means slog.Default().
	Logger *slog.Logger
}

// NewEngine creates an engine with the given depth limit.
func NewEngine(maxDepth int) *Engine {
	return &Engine{MaxDepth: maxDepth}
}

// Evaluate reports whether node holds against ctx. Missing fields make a
// comparison false. Structural faults (depth exceeded, a NOT without exactly
// one child) are logged and evaluate to false.
func (e *Engine) Evaluate(node *domain.ConditionNode, ctx map[string]any) bool {
	ok, err := e.Check(node, ctx)
	if err != nil {
		e.logger().Warn("condition evaluation aborted",
			"error", err,
		)
		return false
	}
	return ok
}

// Check is Evaluate with the structural error returned instead of logged.
// The boolean is always false when err is non-nil.
func (e *Engine) Check(node *domain.ConditionNode, ctx map[string]any) (bool, error) {
	ok, err := e.eval(node, ctx, 1)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (e *Engine) eval(node *domain.ConditionNode, ctx map[string]any, depth int) (bool, error) {
	if node == nil {
		return false, &domain.ConfigurationError{Message: "condition node is nil"}
	}
	if limit := e.maxDepth(); depth > limit {
		return false, &domain.ConfigurationError{
			Message: fmt.Sprintf("condition depth exceeds maximum of %d", limit),
		}
	}

	switch node.Kind {
	case domain.NodeComparison:
		actual, found := Resolve(ctx, node.Field)
		if !found {
			return false, nil
		}
		return compare(node.Operator, actual, node.Value)

	case domain.NodeAnd:
		if len(node.Children) == 0 {
			return false, &domain.ConfigurationError{Message: "and node has no children"}
		}
		for _, child := range node.Children {
			ok, err := e.eval(child, ctx, depth+1)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case domain.NodeOr:
		if len(node.Children) == 0 {
			return false, &domain.ConfigurationError{Message: "or node has no children"}
		}
		for _, child := range node.Children {
			ok, err := e.eval(child, ctx, depth+1)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case domain.NodeNot:
		if len(node.Children) != 1 {
			return false, &domain.ConfigurationError{
				Message: fmt.Sprintf("not node requires exactly one child, has %d", len(node.Children)),
			}
		}
		ok, err := e.eval(node.Children[0], ctx, depth+1)
		if err != nil {
			return false, err
		}
		return !ok, nil

	default:
		return false, &domain.ConfigurationError{Message: fmt.Sprintf("unknown node kind %q", node.Kind)}
	}
}

func (e *Engine) maxDepth() int {
	if e == nil || e.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return e.MaxDepth
}

func (e *Engine) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
