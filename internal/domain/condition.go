package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NodeKind tags a ConditionNode.
type NodeKind string

const (
	NodeComparison NodeKind = "comparison"
	NodeAnd        NodeKind = "and"
	NodeOr         NodeKind = "or"
	NodeNot        NodeKind = "not"
)

// Valid reports whether k is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeComparison, NodeAnd, NodeOr, NodeNot:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown kinds at decode time.
func (k *NodeKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("node kind must be a string: %w", err)
	}
	kind := NodeKind(strings.ToLower(strings.TrimSpace(s)))
	if kind != "" && !kind.Valid() {
		return fmt.Errorf("unknown node kind %q", s)
	}
	*k = kind
	return nil
}

// Operator is a comparison operator.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpGreaterThan    Operator = "greater_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessThan       Operator = "less_than"
	OpLessOrEqual    Operator = "less_or_equal"
	OpIn             Operator = "in"
	OpBetween        Operator = "between"
	OpContains       Operator = "contains"
	OpStartsWith     Operator = "starts_with"
	OpEndsWith       Operator = "ends_with"
)

var operatorAliases = map[string]Operator{
	"==":  OpEquals,
	"eq":  OpEquals,
	"!=":  OpNotEquals,
	"ne":  OpNotEquals,
	">":   OpGreaterThan,
	"gt":  OpGreaterThan,
	">=":  OpGreaterOrEqual,
	"gte": OpGreaterOrEqual,
	"<":   OpLessThan,
	"lt":  OpLessThan,
	"<=":  OpLessOrEqual,
	"lte": OpLessOrEqual,
}

// ParseOperator maps a stored operator name (or symbol alias) to an Operator.
func ParseOperator(s string) (Operator, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := operatorAliases[name]; ok {
		return alias, nil
	}
	op := Operator(name)
	if !op.Valid() {
		return "", fmt.Errorf("unknown operator %q", s)
	}
	return op, nil
}

// Valid reports whether op is one of the known operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals,
		OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual,
		OpIn, OpBetween,
		OpContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

// UnmarshalJSON accepts canonical names and symbol aliases. An empty string
// decodes to the zero Operator so structural validation can report it.
func (op *Operator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("operator must be a string: %w", err)
	}
	if strings.TrimSpace(s) == "" {
		*op = ""
		return nil
	}
	parsed, err := ParseOperator(s)
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// ConditionNode is one node of a boolean expression tree. Comparison nodes
// use Field/Operator/Value; logical nodes use Children.
type ConditionNode struct {
	Kind     NodeKind         `json:"kind"`
	Field    string           `json:"field,omitempty"`
	Operator Operator         `json:"operator,omitempty"`
	Value    any              `json:"value,omitempty"`
	Children []*ConditionNode `json:"children,omitempty"`
}

// Compare builds a comparison node.
func Compare(field string, op Operator, value any) *ConditionNode {
	return &ConditionNode{Kind: NodeComparison, Field: field, Operator: op, Value: value}
}

// And builds a conjunction.
func And(children ...*ConditionNode) *ConditionNode {
	return &ConditionNode{Kind: NodeAnd, Children: children}
}

// Or builds a disjunction.
func Or(children ...*ConditionNode) *ConditionNode {
	return &ConditionNode{Kind: NodeOr, Children: children}
}

// Not builds a negation.
func Not(child *ConditionNode) *ConditionNode {
	return &ConditionNode{Kind: NodeNot, Children: []*ConditionNode{child}}
}

// Depth returns the height of the tree rooted at n (a leaf has depth 1).
func (n *ConditionNode) Depth() int {
	if n == nil {
		return 0
	}
	deepest := 0
	for _, c := range n.Children {
		if d := c.Depth(); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}
