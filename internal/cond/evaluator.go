package cond

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/vars"
)

// Evaluate evaluates a boolean expression drawn from the restricted
// condition grammar. Variable references must already be substituted;
// use EvaluateWithStore when they are not.
func Evaluate(expr string) (bool, error) {
	tokens, err := lex(expr)
	if err != nil {
		return false, err
	}
	p := &parser{expr: expr, tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if p.peek().kind != tokenEOF {
		return false, p.errorf("unexpected trailing input %q", p.peek().text)
	}
	result, err := root.eval(p)
	if err != nil {
		return false, err
	}
	if result.kind != kindBool {
		return false, p.errorf("expression result is %s, not boolean", result.kind)
	}
	return result.b, nil
}

// EvaluateWithStore substitutes variables with SQL-context formatting
// and then evaluates the expression.
func EvaluateWithStore(ctx context.Context, expr string, store *vars.Store) (bool, error) {
	substituted, err := vars.Substitute(ctx, expr, store, vars.ForSQL())
	if err != nil {
		return false, err
	}
	return Evaluate(substituted)
}

type valueKind int

const (
	kindBool valueKind = iota
	kindInt
	kindFloat
	kindString
	kindNull
)

func (k valueKind) String() string {
	switch k {
	case kindBool:
		return "boolean"
	case kindInt:
		return "integer"
	case kindFloat:
		return "float"
	case kindString:
		return "string"
	default:
		return "None"
	}
}

type value struct {
	kind valueKind
	b    bool
	i    int64
	f    float64
	s    string
}

// node is an expression tree node. The tree is tiny (conditions are one
// line), so a plain interface with an eval method is enough.
type node interface {
	eval(p *parser) (value, error)
}

type litNode struct{ v value }

func (n litNode) eval(*parser) (value, error) { return n.v, nil }

type notNode struct{ operand node }

func (n notNode) eval(p *parser) (value, error) {
	v, err := n.operand.eval(p)
	if err != nil {
		return value{}, err
	}
	if v.kind != kindBool {
		return value{}, p.errorf("'not' requires a boolean operand")
	}
	v.b = !v.b
	return v, nil
}

type logicNode struct {
	op          string // "and" | "or"
	left, right node
}

// eval short-circuits: the right side is not evaluated when the left
// side decides the result.
func (n logicNode) eval(p *parser) (value, error) {
	left, err := n.left.eval(p)
	if err != nil {
		return value{}, err
	}
	if left.kind != kindBool {
		return value{}, p.errorf("%q requires boolean operands", n.op)
	}
	if n.op == "and" && !left.b {
		return left, nil
	}
	if n.op == "or" && left.b {
		return left, nil
	}
	right, err := n.right.eval(p)
	if err != nil {
		return value{}, err
	}
	if right.kind != kindBool {
		return value{}, p.errorf("%q requires boolean operands", n.op)
	}
	return right, nil
}

type compareNode struct {
	op          string
	left, right node
}

func (n compareNode) eval(p *parser) (value, error) {
	left, err := n.left.eval(p)
	if err != nil {
		return value{}, err
	}
	right, err := n.right.eval(p)
	if err != nil {
		return value{}, err
	}
	result, err := compareValues(p, n.op, left, right)
	if err != nil {
		return value{}, err
	}
	return value{kind: kindBool, b: result}, nil
}

// hyphenNode repairs a binary '-' between two string operands into
// string concatenation with a hyphen (us - east -> "us-east"), the
// common case where an unquoted hyphenated word was parsed as
// subtraction. Any other operand types are arithmetic, which the
// grammar prohibits.
type hyphenNode struct {
	left, right node
}

func (n hyphenNode) eval(p *parser) (value, error) {
	left, err := n.left.eval(p)
	if err != nil {
		return value{}, err
	}
	right, err := n.right.eval(p)
	if err != nil {
		return value{}, err
	}
	if left.kind == kindString && right.kind == kindString {
		return value{kind: kindString, s: left.s + "-" + right.s}, nil
	}
	return value{}, p.errorf("arithmetic is not supported in conditions")
}

// parser builds the expression tree by recursive descent.
type parser struct {
	expr   string
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return &core.EvaluationError{Expression: p.expr, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logicNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = logicNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.peek().kind == tokenNot {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenOp {
		return left, nil
	}
	op := p.next().text
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return compareNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseOperand() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenMinus {
		p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = hyphenNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokenLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokenRParen {
			return nil, p.errorf("missing closing parenthesis")
		}
		return inner, nil

	case tokenString:
		return litNode{value{kind: kindString, s: t.text}}, nil

	case tokenInt:
		i, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid integer literal %q", t.text)
		}
		return litNode{value{kind: kindInt, i: i}}, nil

	case tokenFloat:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf("invalid float literal %q", t.text)
		}
		return litNode{value{kind: kindFloat, f: f}}, nil

	case tokenIdent:
		// Keyword literals first; any other bare word is treated as a
		// string literal of its own name, which supports shell-style
		// words like us-east after substitution.
		switch strings.ToLower(t.text) {
		case "true":
			return litNode{value{kind: kindBool, b: true}}, nil
		case "false":
			return litNode{value{kind: kindBool, b: false}}, nil
		case "none":
			return litNode{value{kind: kindNull}}, nil
		}
		if p.peek().kind == tokenLParen {
			return nil, p.errorf("function calls are not allowed in conditions")
		}
		return litNode{value{kind: kindString, s: t.text}}, nil

	case tokenEOF:
		return nil, p.errorf("unexpected end of expression")

	default:
		return nil, p.errorf("unexpected token %q", t.text)
	}
}

func compareValues(p *parser, op string, left, right value) (bool, error) {
	// Boolean-to-string equality matches case-insensitively against
	// "true"/"false".
	if isBoolStringPair(left, right) && (op == "==" || op == "!=") {
		eq := boolStringEqual(left, right)
		if op == "!=" {
			return !eq, nil
		}
		return eq, nil
	}

	switch {
	case left.kind == kindNull || right.kind == kindNull:
		eq := left.kind == kindNull && right.kind == kindNull
		switch op {
		case "==":
			return eq, nil
		case "!=":
			return !eq, nil
		default:
			return false, p.errorf("cannot order None values")
		}

	case isNumeric(left) && isNumeric(right):
		return compareOrdered(p, op, numeric(left), numeric(right))

	case left.kind == kindString && right.kind == kindString:
		return compareOrdered(p, op, left.s, right.s)

	case left.kind == kindBool && right.kind == kindBool:
		switch op {
		case "==":
			return left.b == right.b, nil
		case "!=":
			return left.b != right.b, nil
		default:
			return false, p.errorf("cannot order boolean values")
		}

	default:
		// Mixed types never compare equal and cannot be ordered.
		switch op {
		case "==":
			return false, nil
		case "!=":
			return true, nil
		default:
			return false, p.errorf("cannot compare %s to %s with %q", left.kind, right.kind, op)
		}
	}
}

func isBoolStringPair(left, right value) bool {
	return (left.kind == kindBool && right.kind == kindString) ||
		(left.kind == kindString && right.kind == kindBool)
}

func boolStringEqual(left, right value) bool {
	b, s := left, right
	if left.kind == kindString {
		b, s = right, left
	}
	return strconv.FormatBool(b.b) == strings.ToLower(s.s)
}

func isNumeric(v value) bool {
	return v.kind == kindInt || v.kind == kindFloat
}

func numeric(v value) float64 {
	if v.kind == kindInt {
		return float64(v.i)
	}
	return v.f
}

func compareOrdered[T interface{ ~string | ~float64 }](p *parser, op string, left, right T) (bool, error) {
	switch op {
	case "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	case "<":
		return left < right, nil
	case "<=":
		return left <= right, nil
	case ">":
		return left > right, nil
	case ">=":
		return left >= right, nil
	default:
		return false, p.errorf("unknown operator %q", op)
	}
}
