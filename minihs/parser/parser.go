package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type assoc int

const (
	assocLeft assoc = iota
	assocRight
	assocNone
)

type opInfo struct {
	prec  int
	assoc assoc
}

var operators = map[string]opInfo{
	"$":  {0, assocRight},
	"||": {2, assocRight},
	"&&": {3, assocRight},
	"==": {4, assocNone},
	"/=": {4, assocNone},
	"<":  {4, assocNone},
	"<=": {4, assocNone},
	">":  {4, assocNone},
	">=": {4, assocNone},
	"++": {5, assocRight},
	"+":  {6, assocLeft},
	"-":  {6, assocLeft},
	"*":  {7, assocLeft},
	"/":  {7, assocLeft},
	"%":  {7, assocLeft},
}

// IsOperator reports whether op is a known binary operator.
func IsOperator(op string) bool {
	_, ok := operators[op]
	return ok
}

// bailout aborts the current item; the error is already recorded.
type bailout struct{}

type parser struct {
	source string
	toks   []Token
	pos    int
	layout []int // columns of enclosing let blocks; 0 suspends layout inside parens
	errs   []*Error
}

func newParser(source string, toks []Token, end Pos) *parser {
	all := make([]Token, 0, len(toks)+1)
	all = append(all, toks...)
	all = append(all, Token{Kind: EOF, Pos: end})
	return &parser{source: source, toks: all}
}

// ParseFragment parses and classifies one unit of interactive input.
//
// A fragment starting with `module` is a module. A fragment whose top-level
// items are all declarations is a definitions fragment. A fragment without
// any declaration is a single expression. Mixing both is an error.
func ParseFragment(source, src string) (*Fragment, []*Error) {
	toks, err := Lex(source, src)
	if err != nil {
		return nil, []*Error{asError(source, err)}
	}
	body, eof := toks[:len(toks)-1], toks[len(toks)-1]
	frag := &Fragment{Source: source}

	if len(body) == 0 {
		frag.Kind = KindDefinitions
		return frag, nil
	}

	if body[0].Kind == MODULE {
		m, errs := parseModuleTokens(source, body, eof.Pos)
		if len(errs) > 0 {
			return nil, errs
		}
		frag.Kind = KindModule
		frag.Module = m
		return frag, nil
	}

	items := splitItems(body)
	var declItems, exprItems int
	for _, item := range items {
		if isDeclItem(item) {
			declItems++
		} else {
			exprItems++
		}
	}

	switch {
	case exprItems == 0:
		decls, errs := parseDecls(source, items)
		if len(errs) > 0 {
			return nil, errs
		}
		frag.Kind = KindDefinitions
		frag.Decls = decls
		return frag, nil
	case declItems == 0:
		p := newParser(source, body, eof.Pos)
		var expr Expr
		if !p.run(func() {
			expr = p.parseExpr()
			p.expectEOF()
		}) {
			return nil, p.errs
		}
		frag.Kind = KindExpression
		frag.Expr = expr
		return frag, nil
	default:
		first := isDeclItem(items[0])
		for _, item := range items[1:] {
			if isDeclItem(item) != first {
				return nil, []*Error{{
					Source: source,
					Pos:    item[0].Pos,
					Msg:    "cannot mix declarations and expressions in one fragment",
				}}
			}
		}
		panic("unreachable")
	}
}

// ParseModule parses a complete module source such as a file found on the
// search path.
func ParseModule(source, src string) (*Module, []*Error) {
	toks, err := Lex(source, src)
	if err != nil {
		return nil, []*Error{asError(source, err)}
	}
	body, eof := toks[:len(toks)-1], toks[len(toks)-1]
	if len(body) == 0 || body[0].Kind != MODULE {
		return nil, []*Error{{Source: source, Pos: toks[0].Pos, Msg: "expected a module header"}}
	}
	return parseModuleTokens(source, body, eof.Pos)
}

func asError(source string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return &Error{Source: source, Pos: Pos{Line: 1, Col: 1}, Msg: err.Error()}
}

func parseModuleTokens(source string, body []Token, end Pos) (*Module, []*Error) {
	p := newParser(source, body, end)
	var m *Module
	if !p.run(func() {
		kw := p.expect(MODULE, "'module'")
		name := p.expect(CONID, "a module name")
		p.expect(WHERE, "'where'")
		m = &Module{Pos: kw.Pos, Name: name.Text}
	}) {
		return nil, p.errs
	}
	rest := body[p.pos:]
	if len(rest) == 0 {
		return m, nil
	}
	decls, errs := parseDecls(source, splitItems(rest))
	if len(errs) > 0 {
		return nil, errs
	}
	m.Decls = decls
	return m, nil
}

// splitItems cuts a token stream into top-level items. An item starts at a
// token in column 1 that begins a line.
func splitItems(toks []Token) [][]Token {
	var items [][]Token
	start := 0
	for i := 1; i < len(toks); i++ {
		if toks[i].BOL && toks[i].Pos.Col == 1 {
			items = append(items, toks[start:i])
			start = i
		}
	}
	if start < len(toks) {
		items = append(items, toks[start:])
	}
	return items
}

func endOf(toks []Token) Pos {
	last := toks[len(toks)-1]
	return Pos{Line: last.Pos.Line, Col: last.Pos.Col + len([]rune(last.Text))}
}

// isDeclItem decides by the leading tokens whether an item is a declaration:
// an import, a signature (`a, b :: T`), or an equation (`[!]f x () = ...`).
func isDeclItem(item []Token) bool {
	i := 0
	switch item[0].Kind {
	case IMPORT:
		return true
	case BANG:
		i = 1
	}
	if i >= len(item) || item[i].Kind != IDENT {
		return false
	}
	i++
	for i < len(item) {
		switch item[i].Kind {
		case EQUALS, DCOLON:
			return true
		case IDENT, COMMA:
			i++
		case LPAREN:
			if i+1 < len(item) && item[i+1].Kind == RPAREN {
				i += 2
				continue
			}
			return false
		default:
			return false
		}
	}
	return false
}

func parseDecls(source string, items [][]Token) ([]Decl, []*Error) {
	var decls []Decl
	var errs []*Error
	for _, item := range items {
		p := newParser(source, item, endOf(item))
		if p.run(func() {
			d := p.parseDecl()
			p.expectEOF()
			decls = append(decls, d)
		}) {
			continue
		}
		errs = append(errs, p.errs...)
	}
	return decls, errs
}

func (p *parser) run(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, isBailout := r.(bailout); !isBailout {
				panic(r)
			}
			ok = false
		}
	}()
	fn()
	return true
}

func (p *parser) peek() Token {
	return p.toks[p.pos]
}

func (p *parser) peekN(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() Token {
	t := p.toks[p.pos]
	if t.Kind != EOF {
		p.pos++
	}
	return t
}

func (p *parser) fail(t Token, format string, args ...any) {
	p.errs = append(p.errs, &Error{Source: p.source, Pos: t.Pos, Msg: fmt.Sprintf(format, args...)})
	panic(bailout{})
}

func (p *parser) expect(kind TokenKind, what string) Token {
	t := p.peek()
	if t.Kind != kind {
		p.fail(t, "expected %s, found %s", what, t.describe())
	}
	return p.next()
}

func (p *parser) expectEOF() {
	if t := p.peek(); t.Kind != EOF {
		p.fail(t, "unexpected %s", t.describe())
	}
}

// atBoundary reports whether the next token starts a new binding of the
// innermost let block.
func (p *parser) atBoundary() bool {
	if len(p.layout) == 0 {
		return false
	}
	t := p.peek()
	return t.BOL && t.Pos.Col <= p.layout[len(p.layout)-1]
}

// --- declarations ---

func (p *parser) parseDecl() Decl {
	t := p.peek()
	switch t.Kind {
	case IMPORT:
		p.next()
		name := p.expect(CONID, "a module name")
		return &Import{Pos: t.Pos, Module: name.Text}
	case BANG:
		p.next()
		return p.parseBinding(true)
	case IDENT:
		if k := p.peekN(1).Kind; k == COMMA || k == DCOLON {
			return p.parseSignature()
		}
		return p.parseBinding(false)
	}
	p.fail(t, "expected a declaration, found %s", t.describe())
	return nil
}

func (p *parser) parseSignature() *Signature {
	first := p.expect(IDENT, "a name")
	sig := &Signature{Pos: first.Pos, Names: []string{first.Text}}
	for p.peek().Kind == COMMA {
		p.next()
		sig.Names = append(sig.Names, p.expect(IDENT, "a name").Text)
	}
	p.expect(DCOLON, "'::'")
	sig.Type = p.parseType()
	return sig
}

func (p *parser) parseParams() []string {
	var params []string
	for {
		t := p.peek()
		switch {
		case t.Kind == IDENT:
			p.next()
			params = append(params, t.Text)
		case t.Kind == LPAREN && p.peekN(1).Kind == RPAREN:
			p.next()
			p.next()
			params = append(params, UnitParam)
		default:
			return params
		}
	}
}

func (p *parser) parseBinding(strict bool) *Binding {
	name := p.expect(IDENT, "a name")
	b := &Binding{Pos: name.Pos, Name: name.Text, Strict: strict}
	b.Params = p.parseParams()
	eq := p.expect(EQUALS, "'='")
	if strict && len(b.Params) > 0 {
		p.fail(eq, "strict binding %s cannot take parameters", b.Name)
	}
	b.Body = p.parseExpr()
	return b
}

// --- types ---

func (p *parser) parseType() Type {
	t := p.parseBType()
	if p.peek().Kind == ARROW {
		p.next()
		return &TFun{From: t, To: p.parseType()}
	}
	return t
}

func isATypeStart(t Token) bool {
	return t.Kind == CONID || t.Kind == IDENT || t.Kind == LPAREN
}

func (p *parser) parseBType() Type {
	head := p.parseAType()
	var args []Type
	for isATypeStart(p.peek()) {
		args = append(args, p.parseAType())
	}
	if len(args) == 0 {
		return head
	}
	return &TApp{Head: head, Args: args}
}

func (p *parser) parseAType() Type {
	t := p.next()
	switch t.Kind {
	case CONID:
		return &TCon{Pos: t.Pos, Name: t.Text}
	case IDENT:
		return &TVar{Pos: t.Pos, Name: t.Text}
	case LPAREN:
		if p.peek().Kind == RPAREN {
			p.next()
			return &TUnit{Pos: t.Pos}
		}
		inner := p.parseType()
		p.expect(RPAREN, "')'")
		return inner
	}
	p.fail(t, "expected a type, found %s", t.describe())
	return nil
}

// --- expressions ---

func (p *parser) parseExpr() Expr {
	return p.parseInfix(0)
}

func (p *parser) parseInfix(minPrec int) Expr {
	left := p.parseOperand()
	for {
		t := p.peek()
		if t.Kind != OP || p.atBoundary() {
			return left
		}
		info, ok := operators[t.Text]
		if !ok {
			p.fail(t, "unknown operator %q", t.Text)
		}
		if info.prec < minPrec {
			return left
		}
		p.next()
		nextMin := info.prec + 1
		if info.assoc == assocRight {
			nextMin = info.prec
		}
		right := p.parseInfix(nextMin)
		left = &Infix{Pos: t.Pos, Op: t.Text, Left: left, Right: right}
		if info.assoc == assocNone {
			if n := p.peek(); n.Kind == OP && !p.atBoundary() {
				if ni, ok := operators[n.Text]; ok && ni.prec == info.prec {
					p.fail(n, "operator %q cannot be chained with %q", n.Text, t.Text)
				}
			}
		}
	}
}

func (p *parser) parseOperand() Expr {
	t := p.peek()
	switch t.Kind {
	case BACKSLASH:
		return p.parseLambda()
	case LET:
		return p.parseLet()
	case IF:
		return p.parseIf()
	case OP:
		if t.Text == "-" {
			p.next()
			return &Negate{Pos: t.Pos, X: p.parseInfix(7)}
		}
	}
	return p.parseApp()
}

func isAtomStart(t Token) bool {
	switch t.Kind {
	case IDENT, QVAR, CONID, INT, STRING, LPAREN:
		return true
	}
	return false
}

func (p *parser) parseApp() Expr {
	fn := p.parseAtom()
	var args []Expr
	for isAtomStart(p.peek()) && !p.atBoundary() {
		args = append(args, p.parseAtom())
	}
	if len(args) == 0 {
		return fn
	}
	return &App{Fn: fn, Args: args}
}

func (p *parser) parseAtom() Expr {
	t := p.peek()
	switch t.Kind {
	case IDENT:
		p.next()
		return &Ident{Pos: t.Pos, Name: t.Text}
	case QVAR:
		p.next()
		idx := strings.LastIndex(t.Text, ".")
		return &QualIdent{Pos: t.Pos, Module: t.Text[:idx], Name: t.Text[idx+1:]}
	case CONID:
		p.next()
		switch t.Text {
		case "True":
			return &BoolLit{Pos: t.Pos, Value: true}
		case "False":
			return &BoolLit{Pos: t.Pos, Value: false}
		}
		p.fail(t, "unknown constructor %q", t.Text)
	case INT:
		p.next()
		v, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			p.fail(t, "integer literal %s is out of range", t.Text)
		}
		return &IntLit{Pos: t.Pos, Value: v}
	case STRING:
		p.next()
		return &StringLit{Pos: t.Pos, Value: t.Text}
	case LPAREN:
		p.next()
		if p.peek().Kind == RPAREN {
			p.next()
			return &UnitLit{Pos: t.Pos}
		}
		if op := p.peek(); op.Kind == OP && p.peekN(1).Kind == RPAREN {
			if !IsOperator(op.Text) {
				p.fail(op, "unknown operator %q", op.Text)
			}
			p.next()
			p.next()
			return &OpRef{Pos: t.Pos, Op: op.Text}
		}
		p.layout = append(p.layout, 0)
		e := p.parseExpr()
		p.layout = p.layout[:len(p.layout)-1]
		p.expect(RPAREN, "')'")
		return e
	}
	p.fail(t, "unexpected %s", t.describe())
	return nil
}

func (p *parser) parseLambda() Expr {
	kw := p.next()
	params := p.parseParams()
	if len(params) == 0 {
		p.fail(p.peek(), "expected a parameter, found %s", p.peek().describe())
	}
	p.expect(ARROW, "'->'")
	return &Lambda{Pos: kw.Pos, Params: params, Body: p.parseExpr()}
}

func (p *parser) parseIf() Expr {
	kw := p.next()
	cond := p.parseExpr()
	p.expect(THEN, "'then'")
	then := p.parseExpr()
	p.expect(ELSE, "'else'")
	return &If{Pos: kw.Pos, Cond: cond, Then: then, Else: p.parseExpr()}
}

func (p *parser) parseLet() Expr {
	kw := p.next()
	first := p.peek()
	if first.Kind != IDENT {
		p.fail(first, "expected a binding after 'let', found %s", first.describe())
	}
	p.layout = append(p.layout, first.Pos.Col)
	var binds []*Binding
	for {
		binds = append(binds, p.parseBinding(false))
		t := p.peek()
		if t.Kind == SEMI {
			p.next()
			continue
		}
		if t.Kind == IN {
			break
		}
		if t.Kind == IDENT && t.BOL && t.Pos.Col == first.Pos.Col {
			continue
		}
		p.fail(t, "expected 'in', found %s", t.describe())
	}
	p.layout = p.layout[:len(p.layout)-1]
	p.expect(IN, "'in'")
	return &Let{Pos: kw.Pos, Binds: binds, Body: p.parseExpr()}
}
