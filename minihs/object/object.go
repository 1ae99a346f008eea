package object

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/podhmo/evalsession/minihs/parser"
)

// ObjectType is a string representation of an object's type.
type ObjectType string

const (
	INTEGER_OBJ  ObjectType = "INTEGER"
	BOOLEAN_OBJ  ObjectType = "BOOLEAN"
	STRING_OBJ   ObjectType = "STRING"
	UNIT_OBJ     ObjectType = "UNIT"
	FUNCTION_OBJ ObjectType = "FUNCTION"
	BUILTIN_OBJ  ObjectType = "BUILTIN"
	PARTIAL_OBJ  ObjectType = "PARTIAL"
	REF_OBJ      ObjectType = "REF"
	GO_VALUE_OBJ ObjectType = "GO_VALUE"
	THUNK_OBJ    ObjectType = "THUNK"
	ERROR_OBJ    ObjectType = "ERROR"
)

// Object is the interface that all runtime values implement.
type Object interface {
	// Type returns the type of the object.
	Type() ObjectType
	// Inspect returns a string representation of the object's value.
	Inspect() string
}

// --- Integer Object ---

// Integer represents an integer value.
type Integer struct {
	Value int64
}

func (i *Integer) Type() ObjectType { return INTEGER_OBJ }
func (i *Integer) Inspect() string  { return strconv.FormatInt(i.Value, 10) }

// --- Boolean Object ---

type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ObjectType { return BOOLEAN_OBJ }
func (b *Boolean) Inspect() string {
	if b.Value {
		return "True"
	}
	return "False"
}

// --- String Object ---

type String struct {
	Value string
}

func (s *String) Type() ObjectType { return STRING_OBJ }
func (s *String) Inspect() string  { return s.Value }

// --- Unit Object ---

// Unit is the value ().
type Unit struct{}

func (u *Unit) Type() ObjectType { return UNIT_OBJ }
func (u *Unit) Inspect() string  { return "()" }

var (
	TRUE  = &Boolean{Value: true}
	FALSE = &Boolean{Value: false}
	UNIT  = &Unit{}
)

// NativeBool returns the shared Boolean for v.
func NativeBool(v bool) *Boolean {
	if v {
		return TRUE
	}
	return FALSE
}

// --- Function Object ---

// Function is a user-defined function or lambda closed over its defining
// environment.
type Function struct {
	Name   string // empty for lambdas
	Params []string
	Body   parser.Expr
	Env    *Environment
	Source string
}

func (f *Function) Type() ObjectType { return FUNCTION_OBJ }
func (f *Function) Inspect() string {
	name := f.Name
	if name == "" {
		name = "\\" + strings.Join(f.Params, " ")
	}
	return fmt.Sprintf("<function %s/%d>", name, len(f.Params))
}

// --- Builtin Object ---

// BuiltinFunction is the Go implementation of a builtin. It receives exactly
// Arity evaluated arguments.
type BuiltinFunction func(args ...Object) Object

type Builtin struct {
	Name  string
	Arity int
	Fn    BuiltinFunction
}

func (b *Builtin) Type() ObjectType { return BUILTIN_OBJ }
func (b *Builtin) Inspect() string  { return fmt.Sprintf("<builtin %s/%d>", b.Name, b.Arity) }

// --- Partial Object ---

// Partial is a function applied to fewer arguments than it takes.
type Partial struct {
	Fn   Object
	Args []Object
}

func (p *Partial) Type() ObjectType { return PARTIAL_OBJ }
func (p *Partial) Inspect() string {
	return fmt.Sprintf("<partial %s with %d args>", p.Fn.Inspect(), len(p.Args))
}

// --- Ref Object ---

// Ref is a mutable reference cell. Host values are written into cells from
// outside the interpreter.
type Ref struct {
	Value Object
}

func (r *Ref) Type() ObjectType { return REF_OBJ }
func (r *Ref) Inspect() string {
	if r.Value == nil {
		return "<ref>"
	}
	return fmt.Sprintf("<ref %s>", r.Value.Inspect())
}

// --- GoValue Object ---

// GoValue wraps a native Go value so it can be handed back to the host
// unchanged.
type GoValue struct {
	Value reflect.Value
}

func (g *GoValue) Type() ObjectType { return GO_VALUE_OBJ }
func (g *GoValue) Inspect() string {
	if !g.Value.IsValid() {
		return "<invalid Go value>"
	}
	if g.Value.Kind() == reflect.Ptr && g.Value.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("%v", g.Value.Interface())
}

// --- Thunk Object ---

// Thunk is a lazily evaluated top-level or let-bound value. The evaluator
// replaces the expression with its value the first time it is forced.
type Thunk struct {
	Name   string
	Expr   parser.Expr
	Env    *Environment
	Source string
	// Want is a base type name ("Int", "Bool", "String" or "()") the forced
	// value must conform to, or empty.
	Want string

	Value   Object
	Forcing bool
}

func (t *Thunk) Type() ObjectType { return THUNK_OBJ }
func (t *Thunk) Inspect() string {
	if t.Value != nil {
		return t.Value.Inspect()
	}
	return fmt.Sprintf("<thunk %s>", t.Name)
}

// Done reports whether the thunk has been evaluated.
func (t *Thunk) Done() bool { return t.Value != nil }

// --- Error Object ---

// Error is a runtime error. It travels through the evaluator as a value and
// is converted to a Go error at the artifact boundary.
type Error struct {
	Source  string
	Pos     parser.Pos
	Message string
	Trace   []string // function names, innermost last
	Cause   error
}

func (e *Error) Type() ObjectType { return ERROR_OBJ }
func (e *Error) Inspect() string {
	var b strings.Builder
	b.WriteString("runtime error: ")
	b.WriteString(e.Message)
	if e.Pos.Line > 0 {
		fmt.Fprintf(&b, "\n\t%s:%d:%d", e.Source, e.Pos.Line, e.Pos.Col)
	}
	for i := len(e.Trace) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "\n\tin %s", e.Trace[i])
	}
	return b.String()
}

// Error makes it a valid Go error.
func (e *Error) Error() string {
	switch {
	case e.Pos.Line > 0 && e.Source != "":
		return fmt.Sprintf("%s:%d:%d: %s", e.Source, e.Pos.Line, e.Pos.Col, e.Message)
	case e.Pos.Line > 0:
		return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Col, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError creates an error without a position; the evaluator attaches one.
func NewError(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// --- conversion ---

// FromGo turns a host value into a runtime object. Objects pass through,
// nil becomes (), and anything else is wrapped so it can be read back as
// the identical value.
func FromGo(v any) Object {
	switch v := v.(type) {
	case nil:
		return UNIT
	case Object:
		return v
	default:
		return &GoValue{Value: reflect.ValueOf(v)}
	}
}

// ToGo converts a forced object to a host value.
func ToGo(obj Object) any {
	switch o := obj.(type) {
	case *Integer:
		return o.Value
	case *Boolean:
		return o.Value
	case *String:
		return o.Value
	case *Unit:
		return nil
	case *GoValue:
		if !o.Value.IsValid() {
			return nil
		}
		return o.Value.Interface()
	case *Thunk:
		if o.Done() {
			return ToGo(o.Value)
		}
		return o
	default:
		return obj
	}
}

// Int extracts an integer from an Integer or a wrapped Go integer.
func Int(obj Object) (int64, bool) {
	switch o := obj.(type) {
	case *Integer:
		return o.Value, true
	case *GoValue:
		switch o.Value.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return o.Value.Int(), true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return int64(o.Value.Uint()), true
		}
	}
	return 0, false
}

// Bool extracts a boolean from a Boolean or a wrapped Go bool.
func Bool(obj Object) (bool, bool) {
	switch o := obj.(type) {
	case *Boolean:
		return o.Value, true
	case *GoValue:
		if o.Value.Kind() == reflect.Bool {
			return o.Value.Bool(), true
		}
	}
	return false, false
}

// Str extracts a string from a String or a wrapped Go string.
func Str(obj Object) (string, bool) {
	switch o := obj.(type) {
	case *String:
		return o.Value, true
	case *GoValue:
		if o.Value.Kind() == reflect.String {
			return o.Value.String(), true
		}
	}
	return "", false
}

// TypeName describes obj in the vocabulary of the language, for messages.
func TypeName(obj Object) string {
	switch o := obj.(type) {
	case *Integer:
		return "Int"
	case *Boolean:
		return "Bool"
	case *String:
		return "String"
	case *Unit:
		return "()"
	case *Ref:
		return "Ref"
	case *Function, *Builtin, *Partial:
		return "function"
	case *GoValue:
		if _, ok := Int(o); ok {
			return "Int"
		}
		if _, ok := Bool(o); ok {
			return "Bool"
		}
		if _, ok := Str(o); ok {
			return "String"
		}
		if o.Value.IsValid() {
			return "Go " + o.Value.Type().String()
		}
		return "Go value"
	default:
		return strings.ToLower(string(obj.Type()))
	}
}

// Conforms reports whether obj is a value of the base type want.
func Conforms(obj Object, want string) bool {
	switch want {
	case "":
		return true
	case "Int":
		_, ok := Int(obj)
		return ok
	case "Bool":
		_, ok := Bool(obj)
		return ok
	case "String":
		_, ok := Str(obj)
		return ok
	case "()":
		_, ok := obj.(*Unit)
		return ok
	}
	return true
}

// --- Environment ---

// Environment holds the bindings of one scope.
type Environment struct {
	store map[string]Object
	outer *Environment
}

// NewEnvironment creates a new, top-level environment.
func NewEnvironment() *Environment {
	return &Environment{store: make(map[string]Object)}
}

// NewEnclosedEnvironment creates a new environment that is enclosed by an outer one.
func NewEnclosedEnvironment(outer *Environment) *Environment {
	env := NewEnvironment()
	env.outer = outer
	return env
}

// Get retrieves an object by name, checking outer scopes if necessary.
func (e *Environment) Get(name string) (Object, bool) {
	if obj, ok := e.store[name]; ok {
		return obj, true
	}
	if e.outer != nil {
		return e.outer.Get(name)
	}
	return nil, false
}

// Set stores an object by name in the current scope.
func (e *Environment) Set(name string, val Object) Object {
	e.store[name] = val
	return val
}

// Has reports whether name is bound in the current scope, ignoring outer ones.
func (e *Environment) Has(name string) bool {
	_, ok := e.store[name]
	return ok
}

// Outer returns the enclosing environment.
func (e *Environment) Outer() *Environment {
	return e.outer
}

// Names returns the names bound in the current scope, sorted.
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.store))
	for name := range e.store {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
