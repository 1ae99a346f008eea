package parser

import (
	"strconv"
	"strings"
	"unicode"
)

const symbolChars = "+-*/<>=!&|$:\\%^.~?@#"

type lexer struct {
	source string
	src    []rune
	off    int
	line   int
	col    int
	bol    bool // no token emitted on the current line yet
	tokens []Token
}

// Lex splits src into tokens. The returned slice always ends with an EOF
// token positioned just after the last real token.
func Lex(source, src string) ([]Token, error) {
	l := &lexer{source: source, src: []rune(src), line: 1, col: 1, bol: true}
	if err := l.run(); err != nil {
		return nil, err
	}
	end := Pos{Line: l.line, Col: l.col}
	if n := len(l.tokens); n > 0 {
		last := l.tokens[n-1]
		end = Pos{Line: last.Pos.Line, Col: last.Pos.Col + len([]rune(last.Text))}
	}
	l.tokens = append(l.tokens, Token{Kind: EOF, Pos: end})
	return l.tokens, nil
}

func (l *lexer) peek(n int) rune {
	if l.off+n >= len(l.src) {
		return 0
	}
	return l.src[l.off+n]
}

func (l *lexer) advance() rune {
	r := l.src[l.off]
	l.off++
	if r == '\n' {
		l.line++
		l.col = 1
		l.bol = true
	} else {
		l.col++
	}
	return r
}

func (l *lexer) errorf(pos Pos, msg string) error {
	return &Error{Source: l.source, Pos: pos, Msg: msg}
}

func (l *lexer) emit(kind TokenKind, text string, pos Pos) {
	l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Pos: pos, BOL: l.bol})
	l.bol = false
}

func (l *lexer) run() error {
	for l.off < len(l.src) {
		r := l.peek(0)
		pos := Pos{Line: l.line, Col: l.col}
		switch {
		case r == '\n' || unicode.IsSpace(r):
			l.advance()
		case r == '{' && l.peek(1) == '-':
			if err := l.blockComment(pos); err != nil {
				return err
			}
		case isIdentStart(r):
			text := l.ident()
			if kind, ok := keywords[text]; ok {
				l.emit(kind, text, pos)
			} else {
				l.emit(IDENT, text, pos)
			}
		case unicode.IsUpper(r):
			kind, text := l.qualified()
			l.emit(kind, text, pos)
		case unicode.IsDigit(r):
			var b strings.Builder
			for l.off < len(l.src) && unicode.IsDigit(l.peek(0)) {
				b.WriteRune(l.advance())
			}
			l.emit(INT, b.String(), pos)
		case r == '"':
			text, err := l.stringLit(pos)
			if err != nil {
				return err
			}
			l.emit(STRING, text, pos)
		case r == '(':
			l.advance()
			l.emit(LPAREN, "(", pos)
		case r == ')':
			l.advance()
			l.emit(RPAREN, ")", pos)
		case r == ',':
			l.advance()
			l.emit(COMMA, ",", pos)
		case r == ';':
			l.advance()
			l.emit(SEMI, ";", pos)
		case strings.ContainsRune(symbolChars, r):
			var b strings.Builder
			for l.off < len(l.src) && strings.ContainsRune(symbolChars, l.peek(0)) {
				b.WriteRune(l.advance())
			}
			sym := b.String()
			if len(sym) >= 2 && strings.Trim(sym, "-") == "" {
				for l.off < len(l.src) && l.peek(0) != '\n' {
					l.advance()
				}
				continue
			}
			switch sym {
			case "::":
				l.emit(DCOLON, sym, pos)
			case "=":
				l.emit(EQUALS, sym, pos)
			case "->":
				l.emit(ARROW, sym, pos)
			case "\\":
				l.emit(BACKSLASH, sym, pos)
			case "!":
				l.emit(BANG, sym, pos)
			default:
				l.emit(OP, sym, pos)
			}
		default:
			return l.errorf(pos, "unexpected character "+strconv.QuoteRune(r))
		}
	}
	return nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLower(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '\'' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (l *lexer) ident() string {
	var b strings.Builder
	for l.off < len(l.src) && isIdentPart(l.peek(0)) {
		b.WriteRune(l.advance())
	}
	return b.String()
}

// qualified lexes Foo, Foo.Bar or Foo.Bar.baz.
func (l *lexer) qualified() (TokenKind, string) {
	var b strings.Builder
	b.WriteString(l.ident())
	for l.peek(0) == '.' {
		next := l.peek(1)
		switch {
		case unicode.IsUpper(next):
			l.advance()
			b.WriteRune('.')
			b.WriteString(l.ident())
		case isIdentStart(next):
			l.advance()
			b.WriteRune('.')
			b.WriteString(l.ident())
			return QVAR, b.String()
		default:
			return CONID, b.String()
		}
	}
	return CONID, b.String()
}

func (l *lexer) stringLit(start Pos) (string, error) {
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.off >= len(l.src) || l.peek(0) == '\n' {
			return "", l.errorf(start, "unterminated string literal")
		}
		r := l.advance()
		switch r {
		case '"':
			return b.String(), nil
		case '\\':
			if l.off >= len(l.src) {
				return "", l.errorf(start, "unterminated string literal")
			}
			esc := l.advance()
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case '\\', '"':
				b.WriteRune(esc)
			default:
				return "", l.errorf(start, "unknown escape sequence \\"+string(esc))
			}
		default:
			b.WriteRune(r)
		}
	}
}

func (l *lexer) blockComment(start Pos) error {
	l.advance()
	l.advance()
	depth := 1
	for l.off < len(l.src) {
		switch {
		case l.peek(0) == '{' && l.peek(1) == '-':
			l.advance()
			l.advance()
			depth++
		case l.peek(0) == '-' && l.peek(1) == '}':
			l.advance()
			l.advance()
			depth--
			if depth == 0 {
				return nil
			}
		default:
			l.advance()
		}
	}
	return l.errorf(start, "unterminated block comment")
}
