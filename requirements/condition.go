package requirements

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Operator is a comparison operator of the condition grammar.
type Operator string

const (
	OpEq    Operator = "=="
	OpNe    Operator = "!="
	OpGt    Operator = ">"
	OpGe    Operator = ">="
	OpLt    Operator = "<"
	OpLe    Operator = "<="
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
)

// ordering reports whether the operator requires an ordered field type.
func (op Operator) ordering() bool {
	switch op {
	case OpGt, OpGe, OpLt, OpLe:
		return true
	}
	return false
}

// negated reports whether a missing referenced field satisfies the
// comparison. Missing behaves as "does not satisfy" for equality-style
// predicates, so != and not_in hold while everything else fails. A field
// that supplied no data must not unlock a dependent requirement.
func (op Operator) negated() bool {
	return op == OpNe || op == OpNotIn
}

// LiteralKind discriminates the literal payload of a comparison.
type LiteralKind int

const (
	LitNumber LiteralKind = iota
	LitString
	LitBool
	LitList
)

// Literal is the right-hand side of a comparison.
type Literal struct {
	Kind LiteralKind
	Num  float64
	Str  string
	Bool bool
	List []Literal
}

// Condition is a parsed conditional-logic expression. Evaluation is a pure
// function of the resolved-values map and never fails: comparisons against
// missing or uncoercible values simply do not hold.
type Condition interface {
	eval(values map[string]any, types map[string]FieldType) bool
	walk(fn func(*Comparison))
}

// Comparison is a single "fieldRef operator literal" predicate.
type Comparison struct {
	FieldRef string
	Op       Operator
	Literal  Literal
}

// And joins two conditions, short-circuiting on the left operand.
type And struct {
	Left, Right Condition
}

// Or joins two conditions, short-circuiting on the left operand.
type Or struct {
	Left, Right Condition
}

func (c *Comparison) walk(fn func(*Comparison)) { fn(c) }
func (a *And) walk(fn func(*Comparison))        { a.Left.walk(fn); a.Right.walk(fn) }
func (o *Or) walk(fn func(*Comparison))         { o.Left.walk(fn); o.Right.walk(fn) }

func (a *And) eval(values map[string]any, types map[string]FieldType) bool {
	return a.Left.eval(values, types) && a.Right.eval(values, types)
}

func (o *Or) eval(values map[string]any, types map[string]FieldType) bool {
	return o.Left.eval(values, types) || o.Right.eval(values, types)
}

func (c *Comparison) eval(values map[string]any, types map[string]FieldType) bool {
	v, ok := values[c.FieldRef]
	if !ok || v == nil {
		return c.Op.negated()
	}

	switch types[c.FieldRef] {
	case FieldInteger, FieldDecimal:
		n, ok := asNumber(v)
		if !ok {
			return c.Op.negated()
		}
		return c.compareNumber(n)
	case FieldString:
		s, ok := v.(string)
		if !ok {
			return c.Op.negated()
		}
		return c.compareString(s)
	case FieldBoolean:
		b, ok := v.(bool)
		if !ok {
			return c.Op.negated()
		}
		return c.compareBool(b)
	case FieldDate:
		d, ok := asDate(v)
		if !ok {
			return c.Op.negated()
		}
		return c.compareDate(d)
	}
	return c.Op.negated()
}

func (c *Comparison) compareNumber(n float64) bool {
	switch c.Op {
	case OpEq:
		return n == c.Literal.Num
	case OpNe:
		return n != c.Literal.Num
	case OpGt:
		return n > c.Literal.Num
	case OpGe:
		return n >= c.Literal.Num
	case OpLt:
		return n < c.Literal.Num
	case OpLe:
		return n <= c.Literal.Num
	case OpIn, OpNotIn:
		found := false
		for _, lit := range c.Literal.List {
			if lit.Kind == LitNumber && lit.Num == n {
				found = true
				break
			}
		}
		if c.Op == OpIn {
			return found
		}
		return !found
	}
	return false
}

func (c *Comparison) compareString(s string) bool {
	switch c.Op {
	case OpEq:
		return s == c.Literal.Str
	case OpNe:
		return s != c.Literal.Str
	case OpIn, OpNotIn:
		found := false
		for _, lit := range c.Literal.List {
			if lit.Kind == LitString && lit.Str == s {
				found = true
				break
			}
		}
		if c.Op == OpIn {
			return found
		}
		return !found
	}
	return false
}

func (c *Comparison) compareBool(b bool) bool {
	switch c.Op {
	case OpEq:
		return b == c.Literal.Bool
	case OpNe:
		return b != c.Literal.Bool
	}
	return false
}

func (c *Comparison) compareDate(d time.Time) bool {
	lit, ok := parseDate(c.Literal.Str)
	if !ok {
		return c.Op.negated()
	}
	switch c.Op {
	case OpEq:
		return d.Equal(lit)
	case OpNe:
		return !d.Equal(lit)
	case OpGt:
		return d.After(lit)
	case OpGe:
		return !d.Before(lit)
	case OpLt:
		return d.Before(lit)
	case OpLe:
		return !d.After(lit)
	case OpIn, OpNotIn:
		found := false
		for _, l := range c.Literal.List {
			if l.Kind == LitString {
				if ld, ok := parseDate(l.Str); ok && ld.Equal(d) {
					found = true
					break
				}
			}
		}
		if c.Op == OpIn {
			return found
		}
		return !found
	}
	return false
}

// asNumber coerces the dynamic types a decoded JSON submission can carry.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, true
	case string:
		return parseDate(d)
	}
	return time.Time{}, false
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ---------------------------------------------------------------------------
// Parser
//
// condition := or
// or        := and  ( ("OR"  | "||") and )*
// and       := term ( ("AND" | "&&") term )*
// term      := "(" condition ")" | IDENT op literal
// op        := == | != | >= | <= | > | < | in | not_in
// literal   := NUMBER | STRING | true | false | "[" literal ("," literal)* "]"
//
// Keywords are case-insensitive. Strings take single or double quotes.

type condParser struct {
	src string
	pos int
}

// ParseCondition parses conditional-logic source into its AST. Parsing
// happens once per requirement set, at compile time, so a malformed
// condition is a configuration error rather than a per-submission failure.
func ParseCondition(src string) (Condition, error) {
	p := &condParser{src: src}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return cond, nil
}

func (p *condParser) errorf(format string, args ...any) error {
	return &ConditionParseError{Source: p.src, Pos: p.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *condParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

// peekWord returns the identifier starting at the cursor without consuming it.
func (p *condParser) peekWord() string {
	i := p.pos
	for i < len(p.src) && isIdentChar(p.src[i]) {
		i++
	}
	return p.src[p.pos:i]
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *condParser) parseOr() (Condition, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if strings.HasPrefix(p.src[p.pos:], "||") {
			p.pos += 2
		} else if w := p.peekWord(); strings.EqualFold(w, "or") {
			p.pos += len(w)
		} else {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
}

func (p *condParser) parseAnd() (Condition, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if strings.HasPrefix(p.src[p.pos:], "&&") {
			p.pos += 2
		} else if w := p.peekWord(); strings.EqualFold(w, "and") {
			p.pos += len(w)
		} else {
			return left, nil
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
}

func (p *condParser) parseTerm() (Condition, error) {
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '(' {
		p.pos++
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return nil, p.errorf("expected closing parenthesis")
		}
		p.pos++
		return cond, nil
	}
	return p.parseComparison()
}

func (p *condParser) parseComparison() (Condition, error) {
	p.skipSpace()
	ident := p.peekWord()
	if ident == "" {
		return nil, p.errorf("expected field name")
	}
	if ident[0] >= '0' && ident[0] <= '9' {
		return nil, p.errorf("field name cannot start with a digit")
	}
	p.pos += len(ident)

	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}

	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}

	return &Comparison{FieldRef: ident, Op: op, Literal: lit}, nil
}

func (p *condParser) parseOperator() (Operator, error) {
	p.skipSpace()
	rest := p.src[p.pos:]
	for _, op := range []Operator{OpEq, OpNe, OpGe, OpLe, OpGt, OpLt} {
		if strings.HasPrefix(rest, string(op)) {
			p.pos += len(op)
			return op, nil
		}
	}
	if w := p.peekWord(); strings.EqualFold(w, "not_in") {
		p.pos += len(w)
		return OpNotIn, nil
	} else if strings.EqualFold(w, "in") {
		p.pos += len(w)
		return OpIn, nil
	}
	return "", p.errorf("expected comparison operator")
}

func (p *condParser) parseLiteral() (Literal, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return Literal{}, p.errorf("expected literal")
	}

	switch c := p.src[p.pos]; {
	case c == '\'' || c == '"':
		quote := c
		p.pos++
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] != quote {
			p.pos++
		}
		if p.pos >= len(p.src) {
			return Literal{}, p.errorf("unterminated string literal")
		}
		s := p.src[start:p.pos]
		p.pos++
		return Literal{Kind: LitString, Str: s}, nil

	case c == '[':
		p.pos++
		var list []Literal
		for {
			p.skipSpace()
			if p.pos < len(p.src) && p.src[p.pos] == ']' {
				p.pos++
				return Literal{Kind: LitList, List: list}, nil
			}
			elem, err := p.parseLiteral()
			if err != nil {
				return Literal{}, err
			}
			if elem.Kind == LitList {
				return Literal{}, p.errorf("nested lists are not allowed")
			}
			list = append(list, elem)
			p.skipSpace()
			if p.pos < len(p.src) && p.src[p.pos] == ',' {
				p.pos++
			}
		}

	case c == '-' || (c >= '0' && c <= '9'):
		start := p.pos
		if c == '-' {
			p.pos++
		}
		for p.pos < len(p.src) && (p.src[p.pos] == '.' || (p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
			p.pos++
		}
		n, err := strconv.ParseFloat(p.src[start:p.pos], 64)
		if err != nil {
			return Literal{}, p.errorf("invalid number %q", p.src[start:p.pos])
		}
		return Literal{Kind: LitNumber, Num: n}, nil

	default:
		w := p.peekWord()
		if strings.EqualFold(w, "true") {
			p.pos += len(w)
			return Literal{Kind: LitBool, Bool: true}, nil
		}
		if strings.EqualFold(w, "false") {
			p.pos += len(w)
			return Literal{Kind: LitBool, Bool: false}, nil
		}
		return Literal{}, p.errorf("expected literal")
	}
}
