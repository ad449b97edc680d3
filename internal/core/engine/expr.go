package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var ErrUnsupportedExpr = errors.New("unsupported expression")

// Expr is a postprocess expression node. The set of nodes is closed.
type Expr interface {
	refs(dst []string) []string
}

type (
	Ref             struct{ Field string }
	Literal         struct{ Value string }
	Number          struct{ Value decimal.Decimal }
	ParseAmountExpr struct{ Arg Expr }
	SumExpr         struct{ Args []Expr }
	SubtractExpr    struct{ Left, Right Expr }
)

func (e Ref) refs(dst []string) []string             { return append(dst, e.Field) }
func (Literal) refs(dst []string) []string           { return dst }
func (Number) refs(dst []string) []string            { return dst }
func (e ParseAmountExpr) refs(dst []string) []string { return e.Arg.refs(dst) }
func (e SubtractExpr) refs(dst []string) []string    { return e.Right.refs(e.Left.refs(dst)) }
func (e SumExpr) refs(dst []string) []string {
	for _, a := range e.Args {
		dst = a.refs(dst)
	}
	return dst
}

// Assignment binds a postprocess target field to its parsed expression.
type Assignment struct {
	Field  string
	Expr   Expr
	Source string
}

// ParseExpr parses parseAmount(x), sum(a, b, ...), subtract(a, b), quoted
// literals, numbers and bare field references.
func ParseExpr(src string) (Expr, error) {
	p := &exprParser{src: src}
	expr, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("%w: trailing input in %q", ErrUnsupportedExpr, src)
	}
	return expr, nil
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += size
	}
}

func (p *exprParser) parse() (Expr, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("%w: empty expression", ErrUnsupportedExpr)
	}

	switch c := p.src[p.pos]; {
	case c == '\'' || c == '"':
		end := strings.IndexByte(p.src[p.pos+1:], c)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated literal in %q", ErrUnsupportedExpr, p.src)
		}
		value := p.src[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return Literal{Value: value}, nil
	case c == '-' || (c >= '0' && c <= '9'):
		start := p.pos
		p.pos++
		for p.pos < len(p.src) && (p.src[p.pos] == '.' || (p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
			p.pos++
		}
		d, err := decimal.NewFromString(p.src[start:p.pos])
		if err != nil {
			return nil, fmt.Errorf("%w: bad number in %q", ErrUnsupportedExpr, p.src)
		}
		return Number{Value: d}, nil
	}

	ident := p.ident()
	if ident == "" {
		return nil, fmt.Errorf("%w: unexpected %q", ErrUnsupportedExpr, p.src[p.pos:])
	}
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return Ref{Field: ident}, nil
	}
	p.pos++

	args, err := p.args()
	if err != nil {
		return nil, err
	}
	switch ident {
	case "parseAmount":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: parseAmount takes 1 argument", ErrUnsupportedExpr)
		}
		return ParseAmountExpr{Arg: args[0]}, nil
	case "sum":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: sum needs arguments", ErrUnsupportedExpr)
		}
		return SumExpr{Args: args}, nil
	case "subtract":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: subtract takes 2 arguments", ErrUnsupportedExpr)
		}
		return SubtractExpr{Left: args[0], Right: args[1]}, nil
	default:
		return nil, fmt.Errorf("%w: unknown function %s", ErrUnsupportedExpr, ident)
	}
}

func (p *exprParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if r == '_' || unicode.IsLetter(r) || (p.pos > start && (unicode.IsDigit(r) || r == '.')) {
			p.pos += size
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *exprParser) args() ([]Expr, error) {
	var args []Expr
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == ')' {
		p.pos++
		return args, nil
	}
	for {
		arg, err := p.parse()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("%w: unterminated call in %q", ErrUnsupportedExpr, p.src)
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return args, nil
		default:
			return nil, fmt.Errorf("%w: unexpected %q", ErrUnsupportedExpr, p.src[p.pos:])
		}
	}
}

// Eval evaluates expr against env. ok is false when the expression cannot
// produce a value (missing operands, unparsable amounts).
func Eval(expr Expr, env map[string]any) (any, bool) {
	switch e := expr.(type) {
	case Ref:
		v, ok := env[e.Field]
		return v, ok && v != nil
	case Literal:
		return e.Value, true
	case Number:
		return amountFloat(e.Value), true
	case ParseAmountExpr:
		v, ok := Eval(e.Arg, env)
		if !ok {
			return nil, false
		}
		d, ok := toDecimal(v)
		if !ok {
			return nil, false
		}
		return amountFloat(d), true
	case SumExpr:
		total := decimal.Zero
		seen := false
		for _, arg := range e.Args {
			d, ok := evalDecimal(arg, env)
			if !ok {
				continue
			}
			total = total.Add(d)
			seen = true
		}
		if !seen {
			return nil, false
		}
		return amountFloat(total), true
	case SubtractExpr:
		left, ok := evalDecimal(e.Left, env)
		if !ok {
			return nil, false
		}
		right, ok := evalDecimal(e.Right, env)
		if !ok {
			right = decimal.Zero
		}
		return amountFloat(left.Sub(right)), true
	default:
		return nil, false
	}
}

func evalDecimal(expr Expr, env map[string]any) (decimal.Decimal, bool) {
	v, ok := Eval(expr, env)
	if !ok {
		return decimal.Zero, false
	}
	return toDecimal(v)
}

// OrderAssignments returns assignments in dependency order: an assignment
// runs after every other assignment producing a field it references, with
// declaration order breaking ties. A self reference reads the value present
// before the assignment. Assignments caught in a cycle keep declaration order
// and are reported through cyclic.
func OrderAssignments(assignments []Assignment) (ordered []Assignment, cyclic []string) {
	producers := make(map[string][]int, len(assignments))
	for i, a := range assignments {
		producers[a.Field] = append(producers[a.Field], i)
	}

	deps := make([][]int, len(assignments))
	for i, a := range assignments {
		for _, field := range a.Expr.refs(nil) {
			for _, j := range producers[field] {
				if j != i && !(field == a.Field && j > i) {
					deps[i] = append(deps[i], j)
				}
			}
		}
	}

	done := make([]bool, len(assignments))
	ordered = make([]Assignment, 0, len(assignments))
	for len(ordered) < len(assignments) {
		progressed := false
		for i := range assignments {
			if done[i] || !ready(deps[i], done) {
				continue
			}
			done[i] = true
			ordered = append(ordered, assignments[i])
			progressed = true
			break
		}
		if progressed {
			continue
		}
		for i, a := range assignments {
			if !done[i] {
				done[i] = true
				ordered = append(ordered, a)
				cyclic = append(cyclic, a.Field)
			}
		}
	}
	return ordered, cyclic
}

func ready(deps []int, done []bool) bool {
	for _, j := range deps {
		if !done[j] {
			return false
		}
	}
	return true
}

// RunPostProcess evaluates assignments in dependency order and writes their
// results into env. It returns the fields it produced, in evaluation order.
func RunPostProcess(assignments []Assignment, env map[string]any) (produced []string, warnings []string) {
	ordered, cyclic := OrderAssignments(assignments)
	if len(cyclic) > 0 {
		warnings = append(warnings, fmt.Sprintf("postprocess cycle through %s, using declaration order", strings.Join(cyclic, ", ")))
	}
	for _, a := range ordered {
		v, ok := Eval(a.Expr, env)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("postprocess %s = %s produced no value", a.Field, a.Source))
			continue
		}
		env[a.Field] = v
		produced = append(produced, a.Field)
	}
	return produced, warnings
}
