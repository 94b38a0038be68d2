package formula

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPow
	tokLParen
	tokRParen
	tokComma
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokNumber:
		return "number"
	case tokIdent:
		return "identifier"
	case tokPlus:
		return "'+'"
	case tokMinus:
		return "'-'"
	case tokStar:
		return "'*'"
	case tokSlash:
		return "'/'"
	case tokPow:
		return "'**'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	}
	return "unknown token"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

var glyphs = strings.NewReplacer(
	"×", "*",
	"÷", "/",
	"−", "-",
	"^", "**",
)

// denied substrings are rejected before parsing.
var denied = []string{"__", "import", "exec", "eval", "open", "input"}

// Normalize collapses whitespace and maps alternate math glyphs onto the
// ASCII operator set.
func Normalize(expr string) string {
	return strings.Join(strings.Fields(glyphs.Replace(expr)), " ")
}

func screen(expr string) error {
	lowered := strings.ToLower(expr)
	for _, d := range denied {
		if strings.Contains(lowered, d) {
			return &domain.FormulaError{
				Code:    domain.FormulaDisallowedConstruct,
				Message: fmt.Sprintf("expression contains forbidden text %q", d),
			}
		}
	}
	return nil
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ':
			i++
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			if i+1 < len(src) && src[i] == '.' && isDigit(src[i+1]) {
				i++
				for i < len(src) && isDigit(src[i]) {
					i++
				}
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		case c == '*':
			if i+1 < len(src) && src[i+1] == '*' {
				toks = append(toks, token{kind: tokPow, text: "**", pos: i})
				i += 2
				continue
			}
			toks = append(toks, token{kind: tokStar, text: "*", pos: i})
			i++
		case c == '/':
			if i+1 < len(src) && src[i+1] == '/' {
				return nil, disallowed(i, "floor division is not supported")
			}
			toks = append(toks, token{kind: tokSlash, text: "/", pos: i})
			i++
		case c == '+':
			toks = append(toks, token{kind: tokPlus, text: "+", pos: i})
			i++
		case c == '-':
			toks = append(toks, token{kind: tokMinus, text: "-", pos: i})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case c == '.':
			return nil, disallowed(i, "attribute access is not allowed")
		case c == '[' || c == ']':
			return nil, disallowed(i, "subscripts are not allowed")
		case c == '"' || c == '\'':
			return nil, disallowed(i, "string literals are not allowed")
		case c == '=' || c == '<' || c == '>' || c == '!':
			return nil, disallowed(i, "comparisons and assignment are not allowed")
		default:
			r := rune(c)
			if c >= 0x80 {
				r = []rune(src[i:])[0]
			}
			if unicode.IsPrint(r) {
				return nil, disallowed(i, fmt.Sprintf("character %q is not allowed", r))
			}
			return nil, disallowed(i, "non-printable character")
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func disallowed(pos int, msg string) *domain.FormulaError {
	return &domain.FormulaError{Code: domain.FormulaDisallowedConstruct, Message: msg, Position: pos}
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }
