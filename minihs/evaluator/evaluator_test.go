package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/podhmo/evalsession/minihs/object"
	"github.com/podhmo/evalsession/minihs/parser"
)

// testEval parses input as a definitions fragment followed by an expression
// and evaluates the expression with the definitions in scope.
func testEval(t *testing.T, defs, input string, options ...func(*Config)) object.Object {
	t.Helper()
	return testEvalContext(t, context.Background(), defs, input, options...)
}

func testEvalContext(t *testing.T, ctx context.Context, defs, input string, options ...func(*Config)) object.Object {
	t.Helper()
	env := object.NewEnclosedEnvironment(NewRootEnvironment())
	if defs != "" {
		frag, errs := parser.ParseFragment("<defs>", defs)
		if len(errs) > 0 {
			t.Fatalf("parse defs: %v", errs)
		}
		for _, d := range frag.Decls {
			if b, ok := d.(*parser.Binding); ok {
				env.Set(b.Name, NewBinding(b, env, "<defs>", ""))
			}
		}
	}
	frag, errs := parser.ParseFragment("<test>", input)
	if len(errs) > 0 {
		t.Fatalf("parse %q: %v", input, errs)
	}
	if frag.Kind != parser.KindExpression {
		t.Fatalf("%q is not an expression", input)
	}
	cfg := Config{}
	for _, opt := range options {
		opt(&cfg)
	}
	return New(cfg).Eval(ctx, frag.Expr, env)
}

func TestEval(t *testing.T) {
	tests := []struct {
		name  string
		defs  string
		input string
		want  any
	}{
		{name: "arithmetic", input: "40 + 2", want: int64(42)},
		{name: "precedence", input: "1 + 2 * 3 - 4", want: int64(3)},
		{name: "negate", input: "- 2 * 3", want: int64(-6)},
		{name: "truncating division", input: "7 / 2", want: int64(3)},
		{name: "remainder", input: "(-7) % 2", want: int64(-1)},
		{name: "string concat", input: `"ab" ++ "cd"`, want: "abcd"},
		{name: "comparison", input: "1 < 2 && 2 <= 2", want: true},
		{name: "string equality", input: `"a" == "b"`, want: false},
		{name: "inequality", input: "1 /= 2", want: true},
		{name: "if", input: "if 1 > 2 then 10 else 20", want: int64(20)},
		{name: "unit", input: "()", want: nil},
		{name: "lambda", input: `(\x y -> x * y) 6 7`, want: int64(42)},
		{name: "dollar", input: "negate $ 1 + 2", want: int64(-3)},
		{name: "operator section", input: "(+) 1 2", want: int64(3)},
		{name: "partial application", defs: "add a b = a + b\ninc = add 1", input: "inc 41", want: int64(42)},
		{name: "over application", defs: "k x = \\y -> x + y", input: "k 1 2", want: int64(3)},
		{name: "function definition", defs: "double n = n * 2", input: "double 21", want: int64(42)},
		{name: "recursion", defs: "fact n = if n == 0 then 1 else n * fact (n - 1)", input: "fact 10", want: int64(3628800)},
		{name: "let", input: "let a = 1; b = a + 1 in a * b + b", want: int64(4)},
		{name: "recursive let", input: "let go n acc = if n == 0 then acc else go (n - 1) (acc + n) in go 100 0", want: int64(5050)},
		{name: "unused let is lazy", input: "let boom = error \"no\" in 1", want: int64(1)},
		{name: "short circuit", input: "False && error \"no\"", want: false},
		{name: "unit parameter", defs: "tick () = 1", input: "tick ()", want: int64(1)},
		{name: "show int", input: "show 42", want: "42"},
		{name: "show string", input: `show "a"`, want: `"a"`},
		{name: "show bool", input: "show True", want: "True"},
		{name: "not", input: "not False", want: true},
		{name: "div floors", input: "div (-7) 2", want: int64(-4)},
		{name: "mod floors", input: "mod (-7) 2", want: int64(1)},
		{name: "length", input: `length "héllo"`, want: int64(5)},
		{name: "ref", input: "readRef (newRef 5)", want: int64(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testEval(t, tt.defs, tt.input)
			if errObj, ok := got.(*object.Error); ok {
				t.Fatalf("unexpected error: %s", errObj.Inspect())
			}
			if diff := cmp.Diff(tt.want, object.ToGo(got)); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		name    string
		defs    string
		input   string
		wantMsg string
	}{
		{name: "division by zero", input: "1 / 0", wantMsg: "division by zero"},
		{name: "type error", input: `1 + "a"`, wantMsg: "operator + expects Int operands, got Int and String"},
		{name: "undefined", input: "nope", wantMsg: "undefined variable nope"},
		{name: "not a function", input: "1 2", wantMsg: "Int is not a function"},
		{name: "error builtin", input: `error "boom"`, wantMsg: "boom"},
		{name: "compare mismatch", input: `1 == "a"`, wantMsg: "cannot compare Int with String"},
		{name: "if condition", input: "if 1 then 2 else 3", wantMsg: "if condition must be Bool, got Int"},
		{name: "loop", defs: "x = x + 1", input: "x", wantMsg: "infinite loop while evaluating x"},
		{name: "stack overflow", defs: "f n = f n + 1", input: "f 1", wantMsg: "stack overflow"},
		{name: "unit parameter", defs: "tick () = 1", input: "tick 1", wantMsg: "expected (), got Int"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testEval(t, tt.defs, tt.input, func(c *Config) { c.MaxDepth = 500 })
			errObj, ok := got.(*object.Error)
			if !ok {
				t.Fatalf("expected error, got %s (%T)", got.Inspect(), got)
			}
			if !strings.Contains(errObj.Message, tt.wantMsg) {
				t.Errorf("error message %q does not contain %q", errObj.Message, tt.wantMsg)
			}
		})
	}
}

func TestEval_ErrorPositionAndTrace(t *testing.T) {
	got := testEval(t, "f n = n / 0", "f 1")
	errObj, ok := got.(*object.Error)
	if !ok {
		t.Fatalf("expected error, got %s", got.Inspect())
	}
	if got, want := errObj.Error(), "<defs>:1:9: division by zero"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{"f"}, errObj.Trace); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestEval_GoValues(t *testing.T) {
	env := object.NewEnclosedEnvironment(NewRootEnvironment())
	env.Set("x", object.FromGo(10))
	env.Set("name", object.FromGo("go"))
	env.Set("upper", object.FromGo(strings.ToUpper))
	env.Set("fail", object.FromGo(func(s string) (string, error) { return "", errors.New("failed: " + s) }))

	tests := []struct {
		input string
		want  any
	}{
		{"x", 10},
		{"x + 1", int64(11)},
		{"x == 10", true},
		{`name ++ "!"`, "go!"},
		{"upper name", "GO"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			frag, errs := parser.ParseFragment("<test>", tt.input)
			if len(errs) > 0 {
				t.Fatalf("parse: %v", errs)
			}
			got := New(Config{}).Eval(context.Background(), frag.Expr, env)
			if errObj, ok := got.(*object.Error); ok {
				t.Fatalf("unexpected error: %s", errObj.Inspect())
			}
			if diff := cmp.Diff(tt.want, object.ToGo(got)); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}

	frag, _ := parser.ParseFragment("<test>", `fail "x"`)
	got := New(Config{}).Eval(context.Background(), frag.Expr, env)
	errObj, ok := got.(*object.Error)
	if !ok {
		t.Fatalf("expected error, got %s", got.Inspect())
	}
	if errObj.Cause == nil || errObj.Cause.Error() != "failed: x" {
		t.Errorf("unexpected cause: %v", errObj.Cause)
	}
}

func TestForce_WantedType(t *testing.T) {
	e := New(Config{})
	env := object.NewEnclosedEnvironment(NewRootEnvironment())
	frag, _ := parser.ParseFragment("<defs>", `x = "s"`)
	b := frag.Decls[0].(*parser.Binding)
	thunk := NewBinding(b, env, "<defs>", "Int").(*object.Thunk)

	got := e.Force(context.Background(), thunk)
	errObj, ok := got.(*object.Error)
	if !ok {
		t.Fatalf("expected error, got %s", got.Inspect())
	}
	if want := "x: expected Int, got String"; errObj.Message != want {
		t.Errorf("message = %q, want %q", errObj.Message, want)
	}
	if thunk.Done() {
		t.Errorf("failed thunk must not cache a value")
	}
}

func TestForce_CachesValue(t *testing.T) {
	e := New(Config{})
	env := object.NewEnclosedEnvironment(NewRootEnvironment())
	frag, _ := parser.ParseFragment("<defs>", "x = 1 + 1")
	thunk := NewBinding(frag.Decls[0].(*parser.Binding), env, "<defs>", "Int").(*object.Thunk)

	first := e.Force(context.Background(), thunk)
	second := e.Force(context.Background(), thunk)
	if first != second {
		t.Errorf("expected the cached object to be returned")
	}
	if !thunk.Done() {
		t.Errorf("thunk should be done")
	}
}

func TestEval_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := testEvalContext(t, ctx, "count n = if n == 0 then 0 else count (n - 1)", "count 10000")
	errObj, ok := got.(*object.Error)
	if !ok {
		t.Fatalf("expected error, got %s", got.Inspect())
	}
	if !errors.Is(errObj, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", errObj)
	}
}

func TestBuiltinNames(t *testing.T) {
	want := []string{"div", "error", "length", "mod", "negate", "newRef", "not", "readRef", "show"}
	if diff := cmp.Diff(want, BuiltinNames()); diff != "" {
		t.Errorf("builtin names mismatch (-want +got):\n%s", diff)
	}
}
