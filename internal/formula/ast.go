package formula

import "github.com/shopspring/decimal"

// Node is a parsed expression. The set of implementations is closed:
// Literal, Ident, Unary, Binary and Call.
type Node interface {
	Pos() int
	node()
}

// Literal is a numeric constant.
type Literal struct {
	Value  decimal.Decimal
	Offset int
}

// Ident is a variable reference.
type Ident struct {
	Name   string
	Offset int
}

// UnaryOp is a prefix operator.
type UnaryOp string

const (
	UnaryNeg UnaryOp = "-"
	UnaryPos UnaryOp = "+"
)

// Unary applies a prefix operator.
type Unary struct {
	Op     UnaryOp
	X      Node
	Offset int
}

// BinaryOp is an infix operator.
type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpPow BinaryOp = "**"
)

// Binary applies an infix operator.
type Binary struct {
	Op     BinaryOp
	Left   Node
	Right  Node
	Offset int
}

// Call invokes a named function.
type Call struct {
	Func   string
	Args   []Node
	Offset int
}

func (n *Literal) Pos() int { return n.Offset }
func (n *Ident) Pos() int   { return n.Offset }
func (n *Unary) Pos() int   { return n.Offset }
func (n *Binary) Pos() int  { return n.Offset }
func (n *Call) Pos() int    { return n.Offset }

func (*Literal) node() {}
func (*Ident) node()   {}
func (*Unary) node()   {}
func (*Binary) node()  {}
func (*Call) node()    {}

// arity bounds for the permitted functions; max < 0 means variadic.
var functions = map[string]struct{ min, max int }{
	"abs":   {1, 1},
	"min":   {1, -1},
	"max":   {1, -1},
	"round": {1, 2},
	"pow":   {2, 2},
}

// Walk visits n and its descendants depth-first.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch v := n.(type) {
	case *Unary:
		Walk(v.X, fn)
	case *Binary:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case *Call:
		for _, a := range v.Args {
			Walk(a, fn)
		}
	}
}
