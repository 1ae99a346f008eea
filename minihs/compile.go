package minihs

import (
	"fmt"
	"slices"
	"sort"

	"github.com/podhmo/evalsession/interp"
	"github.com/podhmo/evalsession/minihs/evaluator"
	"github.com/podhmo/evalsession/minihs/parser"
)

// piece is a run of declarations from one source. Signatures only apply to
// bindings of the same piece.
type piece struct {
	source string
	decls  []parser.Decl
}

type compiledBind struct {
	binding *parser.Binding
	source  string
	want    string
}

// compiledModule is a checked module ready to be linked by a Loader.
type compiledModule struct {
	name    string
	imports []string
	binds   []*compiledBind // later definitions of a name replace earlier ones
}

func (m *compiledModule) exports() []string {
	names := make([]string, len(m.binds))
	for i, b := range m.binds {
		names[i] = b.binding.Name
	}
	return names
}

// importResolver returns the exported names of an imported module.
// Diagnostics explain why a module could not be resolved; a false result
// with no diagnostics means the module is unknown.
type importResolver interface {
	resolve(name string) ([]string, []interp.Message, bool)
}

// typeArity lists the type constructors and the number of arguments each takes.
var typeArity = map[string]int{
	"Int":    0,
	"Bool":   0,
	"String": 0,
	"Ref":    1,
}

type diagnostics struct {
	order map[string]int
	msgs  []interp.Message
}

func (d *diagnostics) add(source string, pos parser.Pos, format string, args ...any) {
	d.msgs = append(d.msgs, interp.Message{Source: source, Line: pos.Line, Column: pos.Col, Text: fmt.Sprintf(format, args...)})
}

// rank orders sources; messages from imported files come first.
func (d *diagnostics) rank(source string) int {
	if i, ok := d.order[source]; ok {
		return i
	}
	return -1
}

// sorted returns the messages by source order, then position.
func (d *diagnostics) sorted() []interp.Message {
	sort.SliceStable(d.msgs, func(i, j int) bool {
		a, b := d.msgs[i], d.msgs[j]
		if ra, rb := d.rank(a.Source), d.rank(b.Source); ra != rb {
			return ra < rb
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return d.msgs
}

// compile checks pieces as one module named name.
func compile(name string, pieces []piece, r importResolver) (*compiledModule, []interp.Message) {
	d := &diagnostics{order: make(map[string]int, len(pieces))}
	for i, p := range pieces {
		if _, ok := d.order[p.source]; !ok {
			d.order[p.source] = i
		}
	}

	mod := &compiledModule{name: name}
	var imports []*parser.Import
	index := make(map[string]int) // name -> position in mod.binds

	for _, p := range pieces {
		sigs := make(map[string]*parser.Signature)
		seen := make(map[string]bool)
		for _, decl := range p.decls {
			switch decl := decl.(type) {
			case *parser.Import:
				imports = append(imports, decl)
			case *parser.Signature:
				checkType(d, p.source, decl.Type)
				for _, n := range decl.Names {
					if _, dup := sigs[n]; dup {
						d.add(p.source, decl.Pos, "duplicate type signature for %s", n)
						continue
					}
					sigs[n] = decl
				}
			case *parser.Binding:
				if seen[decl.Name] {
					d.add(p.source, decl.Pos, "conflicting definitions for %s", decl.Name)
					continue
				}
				seen[decl.Name] = true
			}
		}

		for _, decl := range p.decls {
			b, ok := decl.(*parser.Binding)
			if !ok {
				continue
			}
			cb := &compiledBind{binding: b, source: p.source}
			if sig, ok := sigs[b.Name]; ok && len(b.Params) == 0 {
				cb.want = baseType(sig.Type)
			}
			if i, ok := index[b.Name]; ok {
				mod.binds = slices.Delete(mod.binds, i, i+1)
				for n, j := range index {
					if j > i {
						index[n] = j - 1
					}
				}
			}
			index[b.Name] = len(mod.binds)
			mod.binds = append(mod.binds, cb)
		}

		for n, sig := range sigs {
			if !seen[n] {
				d.add(p.source, sig.Pos, "type signature for %s lacks an accompanying binding", n)
			}
		}
	}

	// imports
	global := make(map[string]bool)
	for _, n := range evaluator.BuiltinNames() {
		global[n] = true
	}
	qualified := make(map[string]map[string]bool)
	for _, imp := range imports {
		if _, done := qualified[imp.Module]; done {
			continue
		}
		names, msgs, ok := r.resolve(imp.Module)
		d.msgs = append(d.msgs, msgs...)
		if !ok {
			if len(msgs) == 0 {
				d.add(sourceOf(pieces, imp), imp.Pos, "unknown module %s", imp.Module)
			}
			qualified[imp.Module] = nil
			continue
		}
		exported := make(map[string]bool, len(names))
		for _, n := range names {
			exported[n] = true
			global[n] = true
		}
		qualified[imp.Module] = exported
		mod.imports = append(mod.imports, imp.Module)
	}
	for n := range index {
		global[n] = true
	}

	// scopes
	for _, cb := range mod.binds {
		locals := make(map[string]bool)
		for _, p := range cb.binding.Params {
			locals[p] = true
		}
		s := &scopeChecker{d: d, source: cb.source, global: global, qualified: qualified}
		s.check(cb.binding.Body, locals)
	}

	if len(d.msgs) > 0 {
		return nil, d.sorted()
	}
	return mod, nil
}

func sourceOf(pieces []piece, target parser.Decl) string {
	for _, p := range pieces {
		for _, decl := range p.decls {
			if decl == target {
				return p.source
			}
		}
	}
	return ""
}

// baseType returns the name of a type that can be checked at runtime, or "".
func baseType(t parser.Type) string {
	switch t := t.(type) {
	case *parser.TCon:
		if typeArity[t.Name] == 0 {
			return t.Name
		}
	case *parser.TUnit:
		return "()"
	}
	return ""
}

func checkType(d *diagnostics, source string, t parser.Type) {
	switch t := t.(type) {
	case *parser.TCon:
		checkCon(d, source, t, 0)
	case *parser.TApp:
		switch head := t.Head.(type) {
		case *parser.TCon:
			checkCon(d, source, head, len(t.Args))
		default:
			d.add(source, t.Position(), "type %s cannot be applied to arguments", describeType(head))
		}
		for _, arg := range t.Args {
			checkType(d, source, arg)
		}
	case *parser.TFun:
		checkType(d, source, t.From)
		checkType(d, source, t.To)
	}
}

func checkCon(d *diagnostics, source string, con *parser.TCon, args int) {
	arity, ok := typeArity[con.Name]
	if !ok {
		d.add(source, con.Pos, "unknown type %s", con.Name)
		return
	}
	if arity != args {
		d.add(source, con.Pos, "type constructor %s expects %d argument(s), got %d", con.Name, arity, args)
	}
}

func describeType(t parser.Type) string {
	switch t := t.(type) {
	case *parser.TVar:
		return t.Name
	case *parser.TUnit:
		return "()"
	default:
		return "expression"
	}
}

type scopeChecker struct {
	d         *diagnostics
	source    string
	global    map[string]bool
	qualified map[string]map[string]bool
}

func extend(locals map[string]bool, names ...string) map[string]bool {
	next := make(map[string]bool, len(locals)+len(names))
	for n := range locals {
		next[n] = true
	}
	for _, n := range names {
		next[n] = true
	}
	return next
}

func (s *scopeChecker) check(expr parser.Expr, locals map[string]bool) {
	switch e := expr.(type) {
	case *parser.Ident:
		if !locals[e.Name] && !s.global[e.Name] {
			s.d.add(s.source, e.Pos, "undefined variable %s", e.Name)
		}
	case *parser.QualIdent:
		exported, imported := s.qualified[e.Module]
		switch {
		case !imported:
			s.d.add(s.source, e.Pos, "module %s is not imported", e.Module)
		case exported == nil:
			// already reported as an unknown module
		case !exported[e.Name]:
			s.d.add(s.source, e.Pos, "module %s does not export %s", e.Module, e.Name)
		}
	case *parser.App:
		s.check(e.Fn, locals)
		for _, arg := range e.Args {
			s.check(arg, locals)
		}
	case *parser.Infix:
		s.check(e.Left, locals)
		s.check(e.Right, locals)
	case *parser.Negate:
		s.check(e.X, locals)
	case *parser.Lambda:
		s.check(e.Body, extend(locals, e.Params...))
	case *parser.Let:
		names := make([]string, len(e.Binds))
		for i, b := range e.Binds {
			names[i] = b.Name
		}
		inner := extend(locals, names...)
		for _, b := range e.Binds {
			s.check(b.Body, extend(inner, b.Params...))
		}
		s.check(e.Body, inner)
	case *parser.If:
		s.check(e.Cond, locals)
		s.check(e.Then, locals)
		s.check(e.Else, locals)
	}
}
