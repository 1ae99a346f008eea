package bridge

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		key      string
		wantName string
		wantType string
		wantErr  error
	}{
		{key: "x::Int", wantName: "x", wantType: "Int"},
		{key: " x :: Ref Int ", wantName: "x", wantType: "Ref Int"},
		{key: "x", wantName: "x", wantType: "a"},
		{key: "x::", wantName: "x", wantType: "a"},
		{key: "f::Int -> Int", wantName: "f", wantType: "Int -> Int"},
		{key: "", wantErr: ErrEmptyName},
		{key: "::Int", wantErr: ErrEmptyName},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			name, typ, err := ParseKey(tt.key)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseKey(%q) error = %v, want %v", tt.key, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKey(%q) unexpected error: %v", tt.key, err)
			}
			if name != tt.wantName || typ != tt.wantType {
				t.Errorf("ParseKey(%q) = (%q, %q), want (%q, %q)", tt.key, name, typ, tt.wantName, tt.wantType)
			}
		})
	}
}

func TestTemplate_GenerateBindingDeclarations(t *testing.T) {
	tmpl := NewTemplate()
	config, prelude, err := tmpl.GenerateBindingDeclarations("x", "Int")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantConfig := "\nx :: Int\nx = readRef xRef\n"
	if diff := cmp.Diff(wantConfig, config); diff != "" {
		t.Errorf("config fragment mismatch (-want +got):\n%s", diff)
	}
	wantPrelude := "\nxRef :: Ref (Int)\n!xRef = newRef ()\n"
	if diff := cmp.Diff(wantPrelude, prelude); diff != "" {
		t.Errorf("prelude fragment mismatch (-want +got):\n%s", diff)
	}
}

func TestTemplate_RejectsNames(t *testing.T) {
	tmpl := NewTemplate()
	for _, name := range []string{"X", "1x", "x y", "x-y"} {
		if _, _, err := tmpl.GenerateBindingDeclarations(name, "Int"); !errors.Is(err, ErrInvalidName) {
			t.Errorf("GenerateBindingDeclarations(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
	if _, _, err := tmpl.GenerateBindingDeclarations("", "Int"); !errors.Is(err, ErrEmptyName) {
		t.Errorf("empty name error = %v, want ErrEmptyName", err)
	}
}

func TestTemplate_Prelude(t *testing.T) {
	tmpl := NewTemplate()
	if got, want := tmpl.Prelude(), "module EvalSession.Prelude where\n"; got != want {
		t.Errorf("Prelude() = %q, want %q", got, want)
	}
	if got, want := tmpl.PreludeImport(), "\nimport EvalSession.Prelude\n"; got != want {
		t.Errorf("PreludeImport() = %q, want %q", got, want)
	}
	if got, want := tmpl.CellName("count"), "countRef"; got != want {
		t.Errorf("CellName() = %q, want %q", got, want)
	}
}
