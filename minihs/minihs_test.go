package minihs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/podhmo/evalsession/cache"
	"github.com/podhmo/evalsession/interp"
	"github.com/podhmo/evalsession/locator"
	"github.com/podhmo/evalsession/minihs/evaluator"
	"github.com/podhmo/evalsession/minihs/object"
)

func evalConfigForTest() evaluator.Config {
	return evaluator.Config{MaxDepth: 1000}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestInterpreter(t *testing.T, options ...Option) *Interpreter {
	t.Helper()
	i, err := New(options...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return i
}

func run(t *testing.T, i *Interpreter, text string, cfg interp.Config, ld interp.Loader) interp.Result {
	t.Helper()
	result, err := i.Run(context.Background(), i.Interpret(text), cfg, ld)
	if err != nil {
		t.Fatalf("Run(%q) returned error: %v", text, err)
	}
	return result
}

// eval runs an expression and reads its value, the way a session does.
func eval(t *testing.T, i *Interpreter, text string, cfg interp.Config, ld interp.Loader) (any, error) {
	t.Helper()
	result := run(t, i, text, cfg, ld)
	switch r := result.(type) {
	case *interp.Failure:
		return nil, errors.New(strings.Join(r.Strings(), "\n"))
	case *interp.Success:
		expr, ok := r.Kind.(*interp.Expression)
		if !ok {
			t.Fatalf("%q: expected an expression, got %s", text, r.Kind)
		}
		artifact, err := i.ResolveArtifactName(expr.Symbol, r.State)
		if err != nil {
			t.Fatalf("ResolveArtifactName: %v", err)
		}
		field, err := i.ResolveFieldName(expr.Symbol, r.State)
		if err != nil {
			t.Fatalf("ResolveFieldName: %v", err)
		}
		a, err := r.State.Loader().Load(context.Background(), artifact)
		if err != nil {
			return nil, err
		}
		return a.ReadField(context.Background(), field)
	}
	t.Fatalf("unexpected result %T", result)
	return nil, nil
}

func TestRun_Classify(t *testing.T) {
	i := newTestInterpreter(t)
	tests := []struct {
		text string
		want string
	}{
		{"40 + 2", "expression Interactive.Script"},
		{"double n = n * 2", "definitions"},
		{"module Foo where\nfoo = 1", "module Foo"},
		{"", "definitions"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			result := run(t, i, tt.text, interp.Config{}, nil)
			success, ok := result.(*interp.Success)
			if !ok {
				t.Fatalf("expected success, got %#v", result)
			}
			if got := success.Kind.String(); !strings.HasPrefix(got, tt.want) {
				t.Errorf("kind = %q, want prefix %q", got, tt.want)
			}
		})
	}
}

func TestRun_Failure(t *testing.T) {
	i := newTestInterpreter(t)
	tests := []struct {
		name string
		text string
		cfg  interp.Config
		want []string
	}{
		{
			name: "parse error",
			text: "1 +",
			want: []string{"<interactive>:1:4: unexpected end of input"},
		},
		{
			name: "undefined variables in source order",
			text: "a + b",
			want: []string{
				"<interactive>:1:1: undefined variable a",
				"<interactive>:1:5: undefined variable b",
			},
		},
		{
			name: "unknown module",
			text: "import Nowhere",
			want: []string{"<interactive>:1:1: unknown module Nowhere"},
		},
		{
			name: "signature without binding",
			text: "x :: Int",
			want: []string{"<interactive>:1:1: type signature for x lacks an accompanying binding"},
		},
		{
			name: "unknown type",
			text: "x :: Foo\nx = 1",
			want: []string{"<interactive>:1:6: unknown type Foo"},
		},
		{
			name: "type arity",
			text: "x :: Ref\nx = 1",
			want: []string{"<interactive>:1:6: type constructor Ref expects 1 argument(s), got 0"},
		},
		{
			name: "conflicting definitions",
			text: "f = 1\nf = 2",
			want: []string{"<interactive>:2:1: conflicting definitions for f"},
		},
		{
			name: "not imported",
			text: "Data.Extra.f 1",
			want: []string{"<interactive>:1:1: module Data.Extra is not imported"},
		},
		{
			name: "mixed fragment",
			text: "x = 1\nx",
			want: []string{"<interactive>:2:1: cannot mix declarations and expressions in one fragment"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := run(t, i, tt.text, tt.cfg, nil)
			failure, ok := result.(*interp.Failure)
			if !ok {
				t.Fatalf("expected failure, got %#v", result)
			}
			if diff := cmp.Diff(tt.want, failure.Strings()); diff != "" {
				t.Errorf("messages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun_ExpressionWithPredefs(t *testing.T) {
	i := newTestInterpreter(t)
	cfg := interp.Config{}.Prepend("double n = n * 2").Prepend("x :: Int\nx = 21")

	got, err := eval(t, i, "double x", cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(int64(42), got); diff != "" {
		t.Errorf("value mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_LaterDefinitionsShadow(t *testing.T) {
	i := newTestInterpreter(t)
	cfg := interp.Config{}.Prepend("y = 1").Prepend("y = 2")
	got, err := eval(t, i, "y", cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int64(2) {
		t.Errorf("got %v, want 2", got)
	}
}

func TestRun_PredefDiagnosticsNameTheirSource(t *testing.T) {
	i := newTestInterpreter(t)
	cfg := interp.Config{}.Prepend("ok = 1").Prepend("bad = missing")
	result := run(t, i, "ok", cfg, nil)
	failure, ok := result.(*interp.Failure)
	if !ok {
		t.Fatalf("expected failure, got %#v", result)
	}
	want := []string{"<definitions:2>:1:7: undefined variable missing"}
	if diff := cmp.Diff(want, failure.Strings()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_RuntimeTypeCheck(t *testing.T) {
	i := newTestInterpreter(t)
	cfg := interp.Config{}.Prepend("x :: Int\nx = \"s\"")
	_, err := eval(t, i, "x", cfg, nil)
	if err == nil || !strings.Contains(err.Error(), "x: expected Int, got String") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRun_ScriptNameIsDeterministic(t *testing.T) {
	i := newTestInterpreter(t)
	cfg := interp.Config{}.Prepend("a = 1")
	sym := func() string {
		result := run(t, i, "a + 1", cfg, nil)
		return result.(*interp.Success).Kind.(*interp.Expression).Symbol.String()
	}
	first, second := sym(), sym()
	if first != second {
		t.Errorf("symbols differ: %s vs %s", first, second)
	}
	if !strings.HasPrefix(first, ScriptPrefix) || !strings.HasSuffix(first, "."+ResultField) {
		t.Errorf("unexpected symbol %s", first)
	}
}

func TestRun_ModuleAndImport(t *testing.T) {
	i := newTestInterpreter(t)
	result := run(t, i, "module Data.Extra where\n\ntriple n = n * 3\nanswer = 42\n", interp.Config{}, nil)
	success := result.(*interp.Success)
	loader := success.State.Loader()

	cfg := interp.Config{}.Prepend("import Data.Extra")
	got, err := eval(t, i, "triple answer + Data.Extra.answer", cfg, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int64(168) {
		t.Errorf("got %v, want 168", got)
	}

	// the module is not visible through a fresh loader
	result = run(t, i, "triple 1", cfg, nil)
	if _, ok := result.(*interp.Failure); !ok {
		t.Errorf("expected failure without the module's loader, got %#v", result)
	}
}

func TestRun_LoaderIsImmutable(t *testing.T) {
	i := newTestInterpreter(t)
	base := i.NewLoader()
	result := run(t, i, "module A where\na = 1", interp.Config{}, base)
	next := result.(*interp.Success).State.Loader().(*Loader)

	if got := base.(*Loader).Modules(); len(got) != 0 {
		t.Errorf("base loader changed: %v", got)
	}
	if diff := cmp.Diff([]string{"A"}, next.Modules()); diff != "" {
		t.Errorf("modules mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_ReplacedModuleRelinksImporters(t *testing.T) {
	i := newTestInterpreter(t)
	ld := run(t, i, "module A where\na = 1", interp.Config{}, nil).(*interp.Success).State.Loader()
	ld = run(t, i, "module B where\nimport A\nb = a + 1", interp.Config{}, ld).(*interp.Success).State.Loader()

	cfg := interp.Config{}.Prepend("import B")
	if got, err := eval(t, i, "b", cfg, ld); err != nil || got != int64(2) {
		t.Fatalf("b = %v, %v; want 2", got, err)
	}

	ld = run(t, i, "module A where\na = 10", interp.Config{}, ld).(*interp.Success).State.Loader()
	if got, err := eval(t, i, "b", cfg, ld); err != nil || got != int64(11) {
		t.Errorf("after replacing A, b = %v, %v; want 11", got, err)
	}
}

func TestRun_SearchPath(t *testing.T) {
	root := fstest.MapFS{
		"Data/Extra.mhs": {Data: []byte("module Data.Extra where\nimport Data.Base\ninc n = n + one\n")},
		"Data/Base.mhs":  {Data: []byte("module Data.Base where\none = 1\n")},
		"Broken.mhs":     {Data: []byte("module Broken where\nx = nope\n")},
		"Wrong.mhs":      {Data: []byte("module Other where\nx = 1\n")},
	}
	i := newTestInterpreter(t, WithLocator(locator.New([]fs.FS{root})))

	cfg := interp.Config{}.Prepend("import Data.Extra")
	got, err := eval(t, i, "inc 41", cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int64(42) {
		t.Errorf("got %v, want 42", got)
	}

	result := run(t, i, "import Broken", interp.Config{}, nil)
	failure, ok := result.(*interp.Failure)
	if !ok {
		t.Fatalf("expected failure, got %#v", result)
	}
	if diff := cmp.Diff([]string{"Broken.mhs:2:5: undefined variable nope"}, failure.Strings()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}

	result = run(t, i, "import Wrong", interp.Config{}, nil)
	failure, ok = result.(*interp.Failure)
	if !ok {
		t.Fatalf("expected failure, got %#v", result)
	}
	if !strings.Contains(failure.Strings()[0], "module Other is declared in a file for Wrong") {
		t.Errorf("unexpected message: %v", failure.Strings())
	}
}

func TestRun_Cancelled(t *testing.T) {
	i := newTestInterpreter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := i.Run(ctx, i.Interpret("1"), interp.Config{}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRun_ForeignValues(t *testing.T) {
	i := newTestInterpreter(t)

	type fakeProgram struct{ interp.Program }
	if _, err := i.Run(context.Background(), fakeProgram{}, interp.Config{}, nil); !errors.Is(err, ErrForeignValue) {
		t.Errorf("expected ErrForeignValue for program, got %v", err)
	}
	type fakeLoader struct{ interp.Loader }
	if _, err := i.Run(context.Background(), i.Interpret("1"), interp.Config{}, fakeLoader{}); !errors.Is(err, ErrForeignValue) {
		t.Errorf("expected ErrForeignValue for loader, got %v", err)
	}
}

func TestLoader_Cells(t *testing.T) {
	i := newTestInterpreter(t)
	prelude := "module EvalSession.Prelude where\n\nxRef :: Ref (Int)\n!xRef = newRef ()\n\nplain = 1\n"
	ld := run(t, i, prelude, interp.Config{}, nil).(*interp.Success).State.Loader()

	ctx := context.Background()
	a, err := ld.Load(ctx, "EvalSession.Prelude")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := a.WriteField("xRef", 10); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := a.WriteField("plain", 1); !errors.Is(err, ErrNotCell) {
		t.Errorf("expected ErrNotCell, got %v", err)
	}
	if err := a.WriteField("missing", 1); !errors.Is(err, ErrNoField) {
		t.Errorf("expected ErrNoField, got %v", err)
	}

	cfg := interp.Config{}.Prepend("import EvalSession.Prelude", "x :: Int\nx = readRef xRef")
	got, err := eval(t, i, "x", cfg, ld)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 10 {
		t.Errorf("got %#v, want the host value 10", got)
	}
	got, err = eval(t, i, "x + 1", cfg, ld)
	if err != nil || got != int64(11) {
		t.Errorf("x + 1 = %#v, %v; want 11", got, err)
	}
}

func TestLoader_StrictInitFails(t *testing.T) {
	i := newTestInterpreter(t)
	ld := run(t, i, "module M where\n!boom = error \"bad init\"", interp.Config{}, nil).(*interp.Success).State.Loader()
	_, err := ld.Load(context.Background(), "M")
	var errObj *object.Error
	if !errors.As(err, &errObj) || errObj.Message != "bad init" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoader_Errors(t *testing.T) {
	i := newTestInterpreter(t)
	ctx := context.Background()
	ld := i.NewLoader()
	if _, err := ld.Load(ctx, "Missing"); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("expected ErrModuleNotFound, got %v", err)
	}

	ld = run(t, i, "module A where\na = 1", interp.Config{}, ld).(*interp.Success).State.Loader()
	a, err := ld.Load(ctx, "A")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := a.ReadField(ctx, "b"); !errors.Is(err, ErrNoField) {
		t.Errorf("expected ErrNoField, got %v", err)
	}
	if a.Name() != "A" {
		t.Errorf("Name() = %q", a.Name())
	}
}

func TestLoader_ImportCycle(t *testing.T) {
	a := &compiledModule{name: "A", imports: []string{"B"}}
	b := &compiledModule{name: "B", imports: []string{"A"}}
	ld := newLoader(evalConfigForTest(), discardLogger()).with(a, b)
	_, err := ld.Load(context.Background(), "A")
	if !errors.Is(err, ErrImportCycle) {
		t.Fatalf("expected ErrImportCycle, got %v", err)
	}
	if !strings.Contains(err.Error(), "A -> B -> A") {
		t.Errorf("cycle path missing from %q", err)
	}
}

func TestInterpret_UsesCache(t *testing.T) {
	c := cache.New[*Parsed](0)
	i := newTestInterpreter(t, WithCache(c))
	i.Interpret("1 + 1")
	i.Interpret("1 + 1")
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = (%d hits, %d misses), want (1, 1)", hits, misses)
	}
}

func TestNew_BadSearchPath(t *testing.T) {
	if _, err := New(WithSearchPath(t.TempDir() + "/missing")); err == nil {
		t.Errorf("expected an error for a missing search path")
	}
}
