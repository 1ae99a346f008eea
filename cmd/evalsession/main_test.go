package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/podhmo/evalsession"
	"github.com/podhmo/evalsession/sessiontest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_Expr(t *testing.T) {
	cases := []struct {
		name  string
		opts  options
		want  string
		wantE error
	}{
		{
			name: "arithmetic",
			opts: options{expr: "40 + 2"},
			want: ": 42\n",
		},
		{
			name: "bound values",
			opts: options{
				binds: []string{"x::Int=10", "name::String=gopher", "flag=true"},
				expr:  `if flag then name ++ show (x + 1) else ""`,
			},
			want: ": gopher11\n",
		},
		{
			name: "definitions print nothing",
			opts: options{expr: "y = 1"},
			want: "",
		},
		{
			name:  "compilation error",
			opts:  options{expr: "1 +"},
			wantE: evalsession.ErrCompilation,
		},
		{
			name:  "bad binding",
			opts:  options{binds: []string{"Nope::Int=1"}, expr: "1"},
			wantE: evalsession.ErrInvalidName,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), strings.NewReader(""), &out, discardLogger(), c.opts)
			if c.wantE != nil {
				if !errors.Is(err, c.wantE) {
					t.Fatalf("want %v, got %v", c.wantE, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(c.want, out.String()); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun_InvalidBindFlag(t *testing.T) {
	err := run(context.Background(), strings.NewReader(""), io.Discard, discardLogger(), options{binds: []string{"x"}})
	if err == nil || !strings.Contains(err.Error(), `invalid binding "x"`) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRun_REPL(t *testing.T) {
	dir := sessiontest.WriteFiles(t, map[string]string{
		"Math/Extra.mhs": "module Math.Extra where\n\nsquare :: Int -> Int\nsquare n = n * n\n",
	})
	input := strings.Join([]string{
		"1 + 2",
		"",
		`double n = \`,
		"  n * 2",
		"double 21",
		"1 +",
		"import Math.Extra",
		"square 7",
		":bind x::Int=5",
		"double x",
		":defs",
		":prelude",
		":quit",
		"3 * 3",
	}, "\n")

	var out bytes.Buffer
	if err := run(context.Background(), strings.NewReader(input), &out, discardLogger(), options{paths: []string{dir}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := strings.Join([]string{
		": 3",
		": 42",
		"error: <interactive>:1:4: unexpected end of input",
		": 49",
		": 10",
		"double n = \n  n * 2",
		"import Math.Extra",
		"import EvalSession.Prelude",
		"x :: Int\nx = readRef xRef",
		"module EvalSession.Prelude where",
		"",
		"xRef :: Ref (Int)",
		"!xRef = newRef ()",
		"",
	}, "\n")
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitPaths(t *testing.T) {
	got := splitPaths(" a, ,b,")
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got := splitPaths(""); len(got) != 0 {
		t.Errorf("want no paths, got %q", got)
	}
}

func TestParseValue(t *testing.T) {
	for raw, want := range map[string]any{
		"10":    10,
		"-3":    -3,
		"true":  true,
		"False": false,
		"hello": "hello",
		"":      "",
	} {
		if diff := cmp.Diff(want, parseValue(raw)); diff != "" {
			t.Errorf("parseValue(%q) mismatch (-want +got):\n%s", raw, diff)
		}
	}
}
