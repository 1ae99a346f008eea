package evaluator

import (
	"context"
	"fmt"
	"reflect"

	"github.com/podhmo/evalsession/minihs/object"
	"github.com/podhmo/evalsession/minihs/parser"
)

// DefaultMaxDepth is the evaluation depth at which a stack overflow is reported.
const DefaultMaxDepth = 50000

// the context is polled every checkInterval evaluation steps
const checkInterval = 1024

type Config struct {
	// MaxDepth limits nested evaluation. Zero means DefaultMaxDepth.
	MaxDepth int
}

// Evaluator evaluates expressions. It keeps per-run counters, so one
// Evaluator must not be shared between goroutines.
type Evaluator struct {
	maxDepth int
	depth    int
	steps    int
	source   string
	trace    []string
}

func New(cfg Config) *Evaluator {
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Evaluator{maxDepth: maxDepth}
}

// Eval evaluates node in env to a value. Thunks reached through variables
// are forced; errors are returned as *object.Error.
func (e *Evaluator) Eval(ctx context.Context, node parser.Expr, env *object.Environment) object.Object {
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > e.maxDepth {
		return e.newError(node.Position(), "stack overflow (depth limit %d)", e.maxDepth)
	}
	e.steps++
	if e.steps%checkInterval == 0 {
		if err := ctx.Err(); err != nil {
			errObj := e.newError(node.Position(), "evaluation interrupted: %v", err)
			errObj.Cause = err
			return errObj
		}
	}

	switch n := node.(type) {
	case *parser.IntLit:
		return &object.Integer{Value: n.Value}
	case *parser.StringLit:
		return &object.String{Value: n.Value}
	case *parser.BoolLit:
		return object.NativeBool(n.Value)
	case *parser.UnitLit:
		return object.UNIT

	case *parser.Ident:
		obj, ok := env.Get(n.Name)
		if !ok {
			return e.newError(n.Pos, "undefined variable %s", n.Name)
		}
		return e.Force(ctx, obj)
	case *parser.QualIdent:
		obj, ok := env.Get(n.Module + "." + n.Name)
		if !ok {
			return e.newError(n.Pos, "undefined variable %s.%s", n.Module, n.Name)
		}
		return e.Force(ctx, obj)

	case *parser.App:
		fn := e.Eval(ctx, n.Fn, env)
		if isError(fn) {
			return fn
		}
		args := make([]object.Object, len(n.Args))
		for i, arg := range n.Args {
			v := e.Eval(ctx, arg, env)
			if isError(v) {
				return v
			}
			args[i] = v
		}
		return e.Apply(ctx, n.Position(), fn, args)

	case *parser.Infix:
		return e.evalInfix(ctx, n, env)

	case *parser.Negate:
		v := e.Eval(ctx, n.X, env)
		if isError(v) {
			return v
		}
		i, ok := object.Int(v)
		if !ok {
			return e.newError(n.Pos, "cannot negate %s", object.TypeName(v))
		}
		return &object.Integer{Value: -i}

	case *parser.OpRef:
		// (op) is \x y -> x op y
		x, y := &parser.Ident{Pos: n.Pos, Name: "x"}, &parser.Ident{Pos: n.Pos, Name: "y"}
		return &object.Function{
			Name:   "(" + n.Op + ")",
			Params: []string{"x", "y"},
			Body:   &parser.Infix{Pos: n.Pos, Op: n.Op, Left: x, Right: y},
			Env:    object.NewEnvironment(),
			Source: e.source,
		}

	case *parser.Lambda:
		return &object.Function{Params: n.Params, Body: n.Body, Env: env, Source: e.source}

	case *parser.Let:
		local := object.NewEnclosedEnvironment(env)
		for _, b := range n.Binds {
			local.Set(b.Name, NewBinding(b, local, e.source, ""))
		}
		return e.Eval(ctx, n.Body, local)

	case *parser.If:
		cond := e.Eval(ctx, n.Cond, env)
		if isError(cond) {
			return cond
		}
		b, ok := object.Bool(cond)
		if !ok {
			return e.newError(n.Cond.Position(), "if condition must be Bool, got %s", object.TypeName(cond))
		}
		if b {
			return e.Eval(ctx, n.Then, env)
		}
		return e.Eval(ctx, n.Else, env)
	}
	return e.newError(node.Position(), "unsupported expression %T", node)
}

// NewBinding creates the runtime object for a binding: a function when it
// takes parameters, a thunk otherwise. want is the base type the value is
// checked against when forced.
func NewBinding(b *parser.Binding, env *object.Environment, source, want string) object.Object {
	if len(b.Params) > 0 {
		return &object.Function{Name: b.Name, Params: b.Params, Body: b.Body, Env: env, Source: source}
	}
	return &object.Thunk{Name: b.Name, Expr: b.Body, Env: env, Source: source, Want: want}
}

// Force evaluates a thunk once and caches its value. Other objects are
// returned unchanged. Errors are not cached.
func (e *Evaluator) Force(ctx context.Context, obj object.Object) object.Object {
	t, ok := obj.(*object.Thunk)
	if !ok {
		return obj
	}
	if t.Done() {
		return t.Value
	}
	if t.Forcing {
		return e.newError(t.Expr.Position(), "infinite loop while evaluating %s", t.Name)
	}

	t.Forcing = true
	saved := e.source
	e.source = t.Source
	e.trace = append(e.trace, t.Name)
	v := e.Eval(ctx, t.Expr, t.Env)
	e.trace = e.trace[:len(e.trace)-1]
	e.source = saved
	t.Forcing = false

	if isError(v) {
		return v
	}
	if !object.Conforms(v, t.Want) {
		return e.newErrorIn(t.Source, t.Expr.Position(), "%s: expected %s, got %s", t.Name, t.Want, object.TypeName(v))
	}
	t.Value = v
	return v
}

// Apply calls fn with args. Missing arguments produce a partial
// application; extra arguments are applied to the result.
func (e *Evaluator) Apply(ctx context.Context, pos parser.Pos, fn object.Object, args []object.Object) object.Object {
	for {
		switch f := fn.(type) {
		case *object.Partial:
			all := make([]object.Object, 0, len(f.Args)+len(args))
			all = append(all, f.Args...)
			fn, args = f.Fn, append(all, args...)
			continue

		case *object.Function:
			n := len(f.Params)
			if len(args) < n {
				return &object.Partial{Fn: f, Args: args}
			}
			env := object.NewEnclosedEnvironment(f.Env)
			for i, p := range f.Params {
				if p == parser.UnitParam {
					if _, ok := args[i].(*object.Unit); !ok {
						return e.newError(pos, "%s: expected (), got %s", f.Inspect(), object.TypeName(args[i]))
					}
					continue
				}
				env.Set(p, args[i])
			}
			result := e.call(ctx, f, env)
			if isError(result) || len(args) == n {
				return result
			}
			fn, args = result, args[n:]

		case *object.Builtin:
			n := f.Arity
			if len(args) < n {
				return &object.Partial{Fn: f, Args: args}
			}
			result := f.Fn(args[:n]...)
			if errObj, ok := result.(*object.Error); ok {
				if errObj.Pos.Line == 0 {
					errObj.Pos = pos
					errObj.Source = e.source
					errObj.Trace = e.traceWith(f.Name)
				}
				return errObj
			}
			if len(args) == n {
				return result
			}
			fn, args = result, args[n:]

		case *object.GoValue:
			if f.Value.Kind() != reflect.Func || f.Value.IsNil() {
				return e.newError(pos, "%s is not a function", object.TypeName(f))
			}
			n := f.Value.Type().NumIn()
			if len(args) < n {
				return &object.Partial{Fn: f, Args: args}
			}
			result := e.callGo(pos, f.Value, args[:n])
			if isError(result) || len(args) == n {
				return result
			}
			fn, args = result, args[n:]

		default:
			return e.newError(pos, "%s is not a function", object.TypeName(fn))
		}
	}
}

func (e *Evaluator) call(ctx context.Context, f *object.Function, env *object.Environment) object.Object {
	name := f.Name
	if name == "" {
		name = "lambda"
	}
	saved := e.source
	e.source = f.Source
	e.trace = append(e.trace, name)
	result := e.Eval(ctx, f.Body, env)
	e.trace = e.trace[:len(e.trace)-1]
	e.source = saved
	return result
}

func (e *Evaluator) callGo(pos parser.Pos, fn reflect.Value, args []object.Object) object.Object {
	ft := fn.Type()
	if ft.IsVariadic() {
		return e.newError(pos, "variadic Go function %s is not supported", ft)
	}
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		v, err := toReflect(arg, ft.In(i))
		if err != nil {
			return e.newError(pos, "argument %d: %v", i+1, err)
		}
		in[i] = v
	}
	out := fn.Call(in)

	errorType := reflect.TypeOf((*error)(nil)).Elem()
	if n := len(out); n > 0 && ft.Out(n-1) == errorType {
		if !out[n-1].IsNil() {
			errObj := e.newError(pos, "%v", out[n-1].Interface())
			errObj.Cause = out[n-1].Interface().(error)
			return errObj
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return object.UNIT
	case 1:
		return object.FromGo(out[0].Interface())
	default:
		return e.newError(pos, "Go function %s returns %d values", ft, len(out))
	}
}

func toReflect(obj object.Object, t reflect.Type) (reflect.Value, error) {
	v := object.ToGo(obj)
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumeric(rv.Kind()) && isNumeric(t.Kind()) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", object.TypeName(obj), t)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func (e *Evaluator) evalInfix(ctx context.Context, n *parser.Infix, env *object.Environment) object.Object {
	switch n.Op {
	case "&&", "||":
		left := e.Eval(ctx, n.Left, env)
		if isError(left) {
			return left
		}
		lb, ok := object.Bool(left)
		if !ok {
			return e.newError(n.Pos, "operator %s expects Bool operands, got %s", n.Op, object.TypeName(left))
		}
		if (n.Op == "&&" && !lb) || (n.Op == "||" && lb) {
			return object.NativeBool(lb)
		}
		right := e.Eval(ctx, n.Right, env)
		if isError(right) {
			return right
		}
		rb, ok := object.Bool(right)
		if !ok {
			return e.newError(n.Pos, "operator %s expects Bool operands, got %s", n.Op, object.TypeName(right))
		}
		return object.NativeBool(rb)
	}

	left := e.Eval(ctx, n.Left, env)
	if isError(left) {
		return left
	}
	right := e.Eval(ctx, n.Right, env)
	if isError(right) {
		return right
	}
	if n.Op == "$" {
		return e.Apply(ctx, n.Pos, left, []object.Object{right})
	}
	return e.binop(n.Pos, n.Op, left, right)
}

func (e *Evaluator) binop(pos parser.Pos, op string, left, right object.Object) object.Object {
	switch op {
	case "+", "-", "*", "/", "%":
		l, lok := object.Int(left)
		r, rok := object.Int(right)
		if !lok || !rok {
			return e.newError(pos, "operator %s expects Int operands, got %s and %s", op, object.TypeName(left), object.TypeName(right))
		}
		switch op {
		case "+":
			return &object.Integer{Value: l + r}
		case "-":
			return &object.Integer{Value: l - r}
		case "*":
			return &object.Integer{Value: l * r}
		case "/":
			if r == 0 {
				return e.newError(pos, "division by zero")
			}
			return &object.Integer{Value: l / r}
		default:
			if r == 0 {
				return e.newError(pos, "division by zero")
			}
			return &object.Integer{Value: l % r}
		}

	case "++":
		l, lok := object.Str(left)
		r, rok := object.Str(right)
		if !lok || !rok {
			return e.newError(pos, "operator ++ expects String operands, got %s and %s", object.TypeName(left), object.TypeName(right))
		}
		return &object.String{Value: l + r}

	case "==", "/=":
		eq, ok := equal(left, right)
		if !ok {
			return e.newError(pos, "cannot compare %s with %s", object.TypeName(left), object.TypeName(right))
		}
		if op == "/=" {
			eq = !eq
		}
		return object.NativeBool(eq)

	case "<", "<=", ">", ">=":
		cmp, ok := compare(left, right)
		if !ok {
			return e.newError(pos, "cannot order %s and %s", object.TypeName(left), object.TypeName(right))
		}
		switch op {
		case "<":
			return object.NativeBool(cmp < 0)
		case "<=":
			return object.NativeBool(cmp <= 0)
		case ">":
			return object.NativeBool(cmp > 0)
		default:
			return object.NativeBool(cmp >= 0)
		}
	}
	return e.newError(pos, "unknown operator %s", op)
}

func equal(left, right object.Object) (bool, bool) {
	if l, ok := object.Int(left); ok {
		r, ok := object.Int(right)
		return l == r, ok
	}
	if l, ok := object.Str(left); ok {
		r, ok := object.Str(right)
		return l == r, ok
	}
	if l, ok := object.Bool(left); ok {
		r, ok := object.Bool(right)
		return l == r, ok
	}
	if _, ok := left.(*object.Unit); ok {
		_, ok := right.(*object.Unit)
		return ok, ok
	}
	return false, false
}

func compare(left, right object.Object) (int, bool) {
	if l, ok := object.Int(left); ok {
		r, ok := object.Int(right)
		switch {
		case !ok:
			return 0, false
		case l < r:
			return -1, true
		case l > r:
			return 1, true
		}
		return 0, true
	}
	if l, ok := object.Str(left); ok {
		r, ok := object.Str(right)
		switch {
		case !ok:
			return 0, false
		case l < r:
			return -1, true
		case l > r:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (e *Evaluator) traceWith(name string) []string {
	trace := make([]string, len(e.trace), len(e.trace)+1)
	copy(trace, e.trace)
	return append(trace, name)
}

func (e *Evaluator) newError(pos parser.Pos, format string, args ...any) *object.Error {
	return e.newErrorIn(e.source, pos, format, args...)
}

func (e *Evaluator) newErrorIn(source string, pos parser.Pos, format string, args ...any) *object.Error {
	trace := make([]string, len(e.trace))
	copy(trace, e.trace)
	return &object.Error{Source: source, Pos: pos, Message: fmt.Sprintf(format, args...), Trace: trace}
}

func isError(obj object.Object) bool {
	if obj != nil {
		return obj.Type() == object.ERROR_OBJ
	}
	return false
}
