package parser

// Node is any syntax tree node.
type Node interface {
	Position() Pos
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Decl is a top-level declaration.
type Decl interface {
	Node
	declNode()
}

// Type is a type expression in a signature.
type Type interface {
	Node
	typeNode()
}

// --- expressions ---

type Ident struct {
	Pos  Pos
	Name string
}

// QualIdent is Module.name.
type QualIdent struct {
	Pos    Pos
	Module string
	Name   string
}

type IntLit struct {
	Pos   Pos
	Value int64
}

type StringLit struct {
	Pos   Pos
	Value string
}

type BoolLit struct {
	Pos   Pos
	Value bool
}

// UnitLit is ().
type UnitLit struct {
	Pos Pos
}

// App is a function applied to one or more arguments.
type App struct {
	Fn   Expr
	Args []Expr
}

type Infix struct {
	Pos   Pos
	Op    string
	Left  Expr
	Right Expr
}

type Negate struct {
	Pos Pos
	X   Expr
}

// OpRef is an operator used as a function: (+).
type OpRef struct {
	Pos Pos
	Op  string
}

type Lambda struct {
	Pos    Pos
	Params []string
	Body   Expr
}

type Let struct {
	Pos   Pos
	Binds []*Binding
	Body  Expr
}

type If struct {
	Pos  Pos
	Cond Expr
	Then Expr
	Else Expr
}

func (e *Ident) Position() Pos     { return e.Pos }
func (e *QualIdent) Position() Pos { return e.Pos }
func (e *IntLit) Position() Pos    { return e.Pos }
func (e *StringLit) Position() Pos { return e.Pos }
func (e *BoolLit) Position() Pos   { return e.Pos }
func (e *UnitLit) Position() Pos   { return e.Pos }
func (e *App) Position() Pos       { return e.Fn.Position() }
func (e *Infix) Position() Pos     { return e.Pos }
func (e *Negate) Position() Pos    { return e.Pos }
func (e *OpRef) Position() Pos     { return e.Pos }
func (e *Lambda) Position() Pos    { return e.Pos }
func (e *Let) Position() Pos       { return e.Pos }
func (e *If) Position() Pos        { return e.Pos }

func (*Ident) exprNode()     {}
func (*QualIdent) exprNode() {}
func (*IntLit) exprNode()    {}
func (*StringLit) exprNode() {}
func (*BoolLit) exprNode()   {}
func (*UnitLit) exprNode()   {}
func (*App) exprNode()       {}
func (*Infix) exprNode()     {}
func (*Negate) exprNode()    {}
func (*OpRef) exprNode()     {}
func (*Lambda) exprNode()    {}
func (*Let) exprNode()       {}
func (*If) exprNode()        {}

// --- declarations ---

type Import struct {
	Pos    Pos
	Module string
}

// Signature declares the type of one or more names.
type Signature struct {
	Pos   Pos
	Names []string
	Type  Type
}

// UnitParam is the parameter name used for a () pattern.
const UnitParam = "()"

// Binding is `name params = body`. A strict binding (`!name = ...`) is
// evaluated when its module is loaded.
type Binding struct {
	Pos    Pos
	Name   string
	Params []string
	Strict bool
	Body   Expr
}

func (d *Import) Position() Pos    { return d.Pos }
func (d *Signature) Position() Pos { return d.Pos }
func (d *Binding) Position() Pos   { return d.Pos }

func (*Import) declNode()    {}
func (*Signature) declNode() {}
func (*Binding) declNode()   {}

// --- types ---

// TCon is a type constructor such as Int or Ref.
type TCon struct {
	Pos  Pos
	Name string
}

// TVar is a type variable.
type TVar struct {
	Pos  Pos
	Name string
}

type TUnit struct {
	Pos Pos
}

// TApp is a constructor applied to arguments: Ref Int.
type TApp struct {
	Head Type
	Args []Type
}

// TFun is a function type.
type TFun struct {
	From Type
	To   Type
}

func (t *TCon) Position() Pos  { return t.Pos }
func (t *TVar) Position() Pos  { return t.Pos }
func (t *TUnit) Position() Pos { return t.Pos }
func (t *TApp) Position() Pos  { return t.Head.Position() }
func (t *TFun) Position() Pos  { return t.From.Position() }

func (*TCon) typeNode()  {}
func (*TVar) typeNode()  {}
func (*TUnit) typeNode() {}
func (*TApp) typeNode()  {}
func (*TFun) typeNode()  {}

// --- files ---

// Module is a parsed `module Name where ...` unit.
type Module struct {
	Pos   Pos
	Name  string
	Decls []Decl
}

// FragmentKind is the syntactic class of a fragment.
type FragmentKind int

const (
	KindDefinitions FragmentKind = iota
	KindExpression
	KindModule
)

func (k FragmentKind) String() string {
	switch k {
	case KindExpression:
		return "expression"
	case KindModule:
		return "module"
	default:
		return "definitions"
	}
}

// Fragment is one parsed unit of interactive input.
// Exactly one of Module, Decls or Expr is meaningful, according to Kind.
type Fragment struct {
	Source string
	Kind   FragmentKind
	Module *Module
	Decls  []Decl
	Expr   Expr
}

// Imports returns the module names imported by the fragment.
func (f *Fragment) Imports() []string {
	decls := f.Decls
	if f.Module != nil {
		decls = f.Module.Decls
	}
	var names []string
	for _, d := range decls {
		if imp, ok := d.(*Import); ok {
			names = append(names, imp.Module)
		}
	}
	return names
}
