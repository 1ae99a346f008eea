package parser

import "fmt"

// TokenKind is the lexical class of a token.
type TokenKind int

const (
	EOF TokenKind = iota
	IDENT
	CONID // Foo or a dotted module name such as Data.List
	QVAR  // qualified variable: Data.List.foo
	INT
	STRING
	OP

	DCOLON    // ::
	EQUALS    // =
	ARROW     // ->
	BACKSLASH // \
	BANG      // !
	LPAREN
	RPAREN
	COMMA
	SEMI

	MODULE
	WHERE
	IMPORT
	LET
	IN
	IF
	THEN
	ELSE
)

var keywords = map[string]TokenKind{
	"module": MODULE,
	"where":  WHERE,
	"import": IMPORT,
	"let":    LET,
	"in":     IN,
	"if":     IF,
	"then":   THEN,
	"else":   ELSE,
}

// Pos is a 1-based line and column.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Token is a lexical token. BOL marks the first token on its line.
type Token struct {
	Kind TokenKind
	Text string
	Pos  Pos
	BOL  bool
}

func (t Token) describe() string {
	switch t.Kind {
	case EOF:
		return "end of input"
	case IDENT:
		return fmt.Sprintf("identifier %q", t.Text)
	case CONID, QVAR:
		return fmt.Sprintf("name %q", t.Text)
	case INT:
		return fmt.Sprintf("number %s", t.Text)
	case STRING:
		return "string literal"
	case OP:
		return fmt.Sprintf("operator %q", t.Text)
	default:
		return fmt.Sprintf("%q", t.Text)
	}
}

// Error is a syntax error at a position of a named source.
type Error struct {
	Source string
	Pos    Pos
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Source, e.Pos.Line, e.Pos.Col, e.Msg)
}
