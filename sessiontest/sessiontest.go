// Package sessiontest runs scripted scenarios against an evaluation session.
package sessiontest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/podhmo/evalsession"
)

// Step is one action of a scenario. Exactly one of Eval and Bind is used:
// a non-empty Bind binds Value under that key, otherwise Eval is evaluated.
type Step struct {
	Eval  string
	Bind  string
	Value any

	// Want is compared with the evaluated value when WantErr is nil.
	Want any
	// WantErr is matched with errors.Is against the returned error.
	WantErr error
}

func (s Step) String() string {
	if s.Bind != "" {
		return "bind " + s.Bind
	}
	return "eval " + s.Eval
}

// Run executes steps in order and reports every mismatch. It stops at the
// first step that fails with an unexpected error.
func Run(t *testing.T, s *evalsession.Session, steps []Step) {
	t.Helper()
	ctx := context.Background()

	for i, step := range steps {
		var got any
		var err error
		if step.Bind != "" {
			err = s.Bind(ctx, step.Bind, step.Value)
		} else {
			got, err = s.Evaluate(ctx, step.Eval)
		}

		if step.WantErr != nil {
			if !errors.Is(err, step.WantErr) {
				t.Errorf("step %d (%s): want error %v, got %v", i, step, step.WantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("step %d (%s): unexpected error: %v", i, step, err)
		}
		if step.Bind != "" {
			continue
		}
		if diff := cmp.Diff(step.Want, got); diff != "" {
			t.Errorf("step %d (%s): value mismatch (-want +got):\n%s", i, step, diff)
		}
	}
}

// WriteFiles creates a temporary directory populated with files and returns
// its path. Names may contain slashes.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("MkdirAll(%q): %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile(%q): %v", path, err)
		}
	}
	return dir
}
