package formula

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultMaxNesting bounds parser recursion when none is configured.
const DefaultMaxNesting = 64

// Grammar:
//
//	expr    := term (('+' | '-') term)*
//	term    := unary (('*' | '/') unary)*
//	unary   := ('+' | '-') unary | power
//	power   := primary ('**' unary)?
//	primary := NUMBER | IDENT | IDENT '(' args ')' | '(' expr ')'
//	args    := expr (',' expr)*
type parser struct {
	toks     []token
	pos      int
	depth    int
	maxDepth int
}

func parse(src string, maxDepth int) (Node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxNesting
	}
	p := &parser{toks: toks, maxDepth: maxDepth}
	if p.peek().kind == tokEOF {
		return nil, &domain.FormulaError{Code: domain.FormulaSyntax, Message: "expression is empty"}
	}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.unexpected(t)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > p.maxDepth {
		return &domain.FormulaError{
			Code:     domain.FormulaTooDeep,
			Message:  fmt.Sprintf("expression nests deeper than %d levels", p.maxDepth),
			Position: pos,
		}
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) expr() (Node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokPlus && t.kind != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		op := OpAdd
		if t.kind == tokMinus {
			op = OpSub
		}
		left = &Binary{Op: op, Left: left, Right: right, Offset: t.pos}
	}
}

func (p *parser) term() (Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokStar && t.kind != tokSlash {
			return left, nil
		}
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		op := OpMul
		if t.kind == tokSlash {
			op = OpDiv
		}
		left = &Binary{Op: op, Left: left, Right: right, Offset: t.pos}
	}
}

func (p *parser) unary() (Node, error) {
	t := p.peek()
	if t.kind != tokPlus && t.kind != tokMinus {
		return p.power()
	}
	p.next()
	if err := p.enter(t.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	x, err := p.unary()
	if err != nil {
		return nil, err
	}
	op := UnaryPos
	if t.kind == tokMinus {
		op = UnaryNeg
	}
	return &Unary{Op: op, X: x, Offset: t.pos}, nil
}

func (p *parser) power() (Node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokPow {
		return base, nil
	}
	p.next()
	if err := p.enter(t.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return &Binary{Op: OpPow, Left: base, Right: exp, Offset: t.pos}, nil
}

func (p *parser) primary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, &domain.FormulaError{Code: domain.FormulaSyntax, Message: fmt.Sprintf("invalid number %q", t.text), Position: t.pos}
		}
		return &Literal{Value: v, Offset: t.pos}, nil

	case tokIdent:
		if p.peek().kind != tokLParen {
			return &Ident{Name: t.text, Offset: t.pos}, nil
		}
		p.next()
		return p.call(t)

	case tokLParen:
		if err := p.enter(t.pos); err != nil {
			return nil, err
		}
		defer p.leave()

		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, p.unexpected(c)
		}
		return inner, nil

	default:
		return nil, p.unexpected(t)
	}
}

func (p *parser) call(name token) (Node, error) {
	if err := p.enter(name.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	c := &Call{Func: name.text, Offset: name.pos}
	if p.peek().kind == tokRParen {
		p.next()
		return c, nil
	}
	for {
		arg, err := p.expr()
		if err != nil {
			return nil, err
		}
		c.Args = append(c.Args, arg)

		t := p.next()
		switch t.kind {
		case tokComma:
			continue
		case tokRParen:
			return c, nil
		default:
			return nil, p.unexpected(t)
		}
	}
}

func (p *parser) unexpected(t token) error {
	msg := fmt.Sprintf("unexpected %s", t.kind)
	if t.kind == tokIdent || t.kind == tokNumber {
		msg = fmt.Sprintf("unexpected %s %q", t.kind, t.text)
	}
	return &domain.FormulaError{Code: domain.FormulaSyntax, Message: msg, Position: t.pos}
}

// check is the structural allow-list pass run on every parsed tree before
// evaluation.
func check(n Node, depth, maxDepth int) error {
	if depth > maxDepth {
		return &domain.FormulaError{
			Code:     domain.FormulaTooDeep,
			Message:  fmt.Sprintf("expression nests deeper than %d levels", maxDepth),
			Position: n.Pos(),
		}
	}
	switch v := n.(type) {
	case *Literal, *Ident:
		return nil
	case *Unary:
		if v.Op != UnaryNeg && v.Op != UnaryPos {
			return disallowed(v.Offset, fmt.Sprintf("unary operator %q is not allowed", v.Op))
		}
		return check(v.X, depth+1, maxDepth)
	case *Binary:
		switch v.Op {
		case OpAdd, OpSub, OpMul, OpDiv, OpPow:
		default:
			return disallowed(v.Offset, fmt.Sprintf("operator %q is not allowed", v.Op))
		}
		// A left operand continues a flat chain like a+b+c and does not nest.
		leftDepth := depth
		if v.Op == OpPow {
			leftDepth = depth + 1
		}
		if err := check(v.Left, leftDepth, maxDepth); err != nil {
			return err
		}
		return check(v.Right, depth+1, maxDepth)
	case *Call:
		arity, ok := functions[v.Func]
		if !ok {
			return &domain.FormulaError{
				Code:     domain.FormulaUnknownFunction,
				Message:  fmt.Sprintf("function %q is not allowed", v.Func),
				Position: v.Offset,
			}
		}
		if len(v.Args) < arity.min || (arity.max >= 0 && len(v.Args) > arity.max) {
			return &domain.FormulaError{
				Code:     domain.FormulaArity,
				Message:  fmt.Sprintf("%s takes %s, got %d", v.Func, describeArity(arity.min, arity.max), len(v.Args)),
				Position: v.Offset,
			}
		}
		for _, a := range v.Args {
			if err := check(a, depth+1, maxDepth); err != nil {
				return err
			}
		}
		return nil
	default:
		return disallowed(n.Pos(), fmt.Sprintf("node type %T is not allowed", n))
	}
}

func describeArity(lo, hi int) string {
	switch {
	case hi < 0:
		return fmt.Sprintf("at least %d argument(s)", lo)
	case lo == hi:
		return fmt.Sprintf("%d argument(s)", lo)
	default:
		return fmt.Sprintf("%d to %d arguments", lo, hi)
	}
}
