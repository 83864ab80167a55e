package expressions

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/rendis/bpmnforms/pkg/schema"
)

// FEEL covers the subset of Camunda FEEL the generator writes and the form
// templates commonly carry in hide rules:
//
//	x = "a"   x != "a"   x < 1 (and <=, >, >=)
//	list contains(x, "a")
//	a or b    a and b    not(a)    ( ... )
//	"string"  12.5  true  false  null  identifiers
//
// Parsed expressions render to expr-lang (routing simulation) and to CEL
// (component visibility).

type feelKind int

const (
	feelIdent feelKind = iota
	feelString
	feelNumber
	feelBool
	feelNull
	feelBinary
	feelNot
	feelContains
)

// FEELExpr is a parsed FEEL expression.
type FEELExpr struct {
	kind  feelKind
	value string
	op    string
	left  *FEELExpr
	right *FEELExpr
}

// ParseFEEL parses src. A leading "=" is stripped.
func ParseFEEL(src string) (*FEELExpr, error) {
	body := strings.TrimSpace(src)
	body = strings.TrimSpace(strings.TrimPrefix(body, "="))
	if body == "" {
		return nil, schema.NewError(schema.ErrCodeParse, "empty FEEL expression")
	}
	toks, err := lexFEEL(body)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "FEEL %q: %s", src, err.Error()).WithCause(err)
	}
	p := &feelParser{toks: toks}
	e, err := p.or()
	if err == nil && !p.done() {
		err = fmt.Errorf("unexpected %q at offset %d", p.peek().text, p.peek().pos)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "FEEL %q: %s", src, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": src})
	}
	return e, nil
}

// Identifiers returns the distinct variable names the expression reads, sorted.
func (e *FEELExpr) Identifiers() []string {
	set := make(map[string]bool)
	e.walk(func(n *FEELExpr) {
		if n.kind == feelIdent {
			set[n.value] = true
		}
	})
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ListIdentifiers returns the variables used as the list operand of
// "list contains", sorted.
func (e *FEELExpr) ListIdentifiers() []string {
	set := make(map[string]bool)
	e.walk(func(n *FEELExpr) {
		if n.kind == feelContains && n.left.kind == feelIdent {
			set[n.left.value] = true
		}
	})
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e *FEELExpr) walk(fn func(*FEELExpr)) {
	if e == nil {
		return
	}
	fn(e)
	e.left.walk(fn)
	e.right.walk(fn)
}

// ToExpr renders the expression as expr-lang source. Missing list variables
// are treated as empty lists.
func (e *FEELExpr) ToExpr() string {
	switch e.kind {
	case feelIdent:
		return e.value
	case feelString:
		return strconv.Quote(e.value)
	case feelNumber, feelBool:
		return e.value
	case feelNull:
		return "nil"
	case feelNot:
		return "!(" + e.left.ToExpr() + ")"
	case feelContains:
		return fmt.Sprintf("(%s in (%s ?? []))", e.right.ToExpr(), e.left.ToExpr())
	case feelBinary:
		return fmt.Sprintf("(%s %s %s)", e.left.ToExpr(), exprOp(e.op), e.right.ToExpr())
	}
	return ""
}

// ToCEL renders the expression as CEL source. Numbers render as doubles to
// match decoded JSON values.
func (e *FEELExpr) ToCEL() string {
	switch e.kind {
	case feelIdent:
		return e.value
	case feelString:
		return strconv.Quote(e.value)
	case feelNumber:
		if strings.ContainsAny(e.value, ".eE") {
			return e.value
		}
		return e.value + ".0"
	case feelBool:
		return e.value
	case feelNull:
		return "null"
	case feelNot:
		return "!(" + e.left.ToCEL() + ")"
	case feelContains:
		return fmt.Sprintf("(%s in %s)", e.right.ToCEL(), e.left.ToCEL())
	case feelBinary:
		return fmt.Sprintf("(%s %s %s)", e.left.ToCEL(), exprOp(e.op), e.right.ToCEL())
	}
	return ""
}

func exprOp(op string) string {
	switch op {
	case "=":
		return "=="
	case "or":
		return "||"
	case "and":
		return "&&"
	}
	return op
}

// --- lexer ---

type feelToken struct {
	kind string // ident, string, number, op, punct
	text string
	pos  int
}

func lexFEEL(src string) ([]feelToken, error) {
	var toks []feelToken
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"':
			j := i + 1
			var sb strings.Builder
			for ; j < len(rs) && rs[j] != '"'; j++ {
				if rs[j] == '\\' && j+1 < len(rs) {
					j++
				}
				sb.WriteRune(rs[j])
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			toks = append(toks, feelToken{kind: "string", text: sb.String(), pos: i})
			i = j + 1
		case unicode.IsDigit(r):
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			toks = append(toks, feelToken{kind: "number", text: string(rs[i:j]), pos: i})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_') {
				j++
			}
			toks = append(toks, feelToken{kind: "ident", text: string(rs[i:j]), pos: i})
			i = j
		case r == '!' || r == '<' || r == '>':
			if i+1 < len(rs) && rs[i+1] == '=' {
				toks = append(toks, feelToken{kind: "op", text: string(rs[i : i+2]), pos: i})
				i += 2
				continue
			}
			if r == '!' {
				return nil, fmt.Errorf("unexpected '!' at offset %d", i)
			}
			toks = append(toks, feelToken{kind: "op", text: string(r), pos: i})
			i++
		case r == '=':
			toks = append(toks, feelToken{kind: "op", text: "=", pos: i})
			i++
		case r == '(' || r == ')' || r == ',':
			toks = append(toks, feelToken{kind: "punct", text: string(r), pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", r, i)
		}
	}
	return toks, nil
}

// --- parser ---

type feelParser struct {
	toks []feelToken
	pos  int
}

func (p *feelParser) done() bool { return p.pos >= len(p.toks) }

func (p *feelParser) peek() feelToken {
	if p.done() {
		return feelToken{kind: "eof", pos: -1}
	}
	return p.toks[p.pos]
}

func (p *feelParser) next() feelToken {
	t := p.peek()
	p.pos++
	return t
}

func (p *feelParser) isWord(w string) bool {
	t := p.peek()
	return t.kind == "ident" && t.text == w
}

func (p *feelParser) expect(kind, text string) error {
	t := p.next()
	if t.kind != kind || t.text != text {
		if t.kind == "eof" {
			return fmt.Errorf("expected %q, got end of input", text)
		}
		return fmt.Errorf("expected %q at offset %d, got %q", text, t.pos, t.text)
	}
	return nil
}

func (p *feelParser) or() (*FEELExpr, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.isWord("or") {
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = &FEELExpr{kind: feelBinary, op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *feelParser) and() (*FEELExpr, error) {
	left, err := p.comparison()
	if err != nil {
		return nil, err
	}
	for p.isWord("and") {
		p.next()
		right, err := p.comparison()
		if err != nil {
			return nil, err
		}
		left = &FEELExpr{kind: feelBinary, op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *feelParser) comparison() (*FEELExpr, error) {
	left, err := p.primary()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == "op" {
		p.next()
		right, err := p.primary()
		if err != nil {
			return nil, err
		}
		return &FEELExpr{kind: feelBinary, op: t.text, left: left, right: right}, nil
	}
	return left, nil
}

func (p *feelParser) primary() (*FEELExpr, error) {
	t := p.next()
	switch t.kind {
	case "string":
		return &FEELExpr{kind: feelString, value: t.text}, nil
	case "number":
		if _, err := strconv.ParseFloat(t.text, 64); err != nil {
			return nil, fmt.Errorf("invalid number %q at offset %d", t.text, t.pos)
		}
		return &FEELExpr{kind: feelNumber, value: t.text}, nil
	case "punct":
		if t.text != "(" {
			return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
		}
		e, err := p.or()
		if err != nil {
			return nil, err
		}
		return e, p.expect("punct", ")")
	case "ident":
		switch t.text {
		case "true", "false":
			return &FEELExpr{kind: feelBool, value: t.text}, nil
		case "null":
			return &FEELExpr{kind: feelNull}, nil
		case "not":
			if err := p.expect("punct", "("); err != nil {
				return nil, err
			}
			e, err := p.or()
			if err != nil {
				return nil, err
			}
			return &FEELExpr{kind: feelNot, left: e}, p.expect("punct", ")")
		case "list":
			if !p.isWord("contains") {
				return nil, fmt.Errorf("expected \"contains\" after \"list\" at offset %d", t.pos)
			}
			p.next()
			return p.contains()
		case "or", "and":
			return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
		}
		return &FEELExpr{kind: feelIdent, value: t.text}, nil
	case "eof":
		return nil, fmt.Errorf("unexpected end of input")
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}

func (p *feelParser) contains() (*FEELExpr, error) {
	if err := p.expect("punct", "("); err != nil {
		return nil, err
	}
	list, err := p.or()
	if err != nil {
		return nil, err
	}
	if err := p.expect("punct", ","); err != nil {
		return nil, err
	}
	item, err := p.or()
	if err != nil {
		return nil, err
	}
	if err := p.expect("punct", ")"); err != nil {
		return nil, err
	}
	return &FEELExpr{kind: feelContains, left: list, right: item}, nil
}
