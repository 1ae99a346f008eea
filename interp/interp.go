// Package interp defines the contract between an evaluation session and the
// compiler/loader that actually understands the target language.
//
// A session never looks inside a Program, a Symbol or a CompilerState; it only
// switches on the closed Result and SourceKind variants and hands the opaque
// values back to the Interpreter that produced them.
package interp

import (
	"context"
	"fmt"
	"strings"
)

// Interpreter parses, classifies and compiles fragments.
//
// Contract:
//   - Interpret is pure: no side effects, no access to session state.
//   - Run must be deterministic for identical inputs. Diagnostics are reported
//     as a *Failure result; the error return is reserved for failures that are
//     not about the fragment (for example a cancelled context).
//   - Run must not mutate cfg or loader; a new loader is returned through the
//     CompilerState of a *Success.
type Interpreter interface {
	Interpret(text string) Program
	Run(ctx context.Context, prog Program, cfg Config, loader Loader) (Result, error)

	ResolveArtifactName(sym Symbol, st CompilerState) (string, error)
	ResolveFieldName(sym Symbol, st CompilerState) (string, error)

	// NewLoader returns the loader a fresh session starts with.
	NewLoader() Loader
}

// Program is the output of Interpret. Only the Interpreter that produced it
// knows how to run it.
type Program interface {
	Source() string
}

// Symbol identifies the value an Expression evaluates to.
type Symbol interface {
	String() string
}

// CompilerState is what a successful run leaves behind.
type CompilerState interface {
	// Loader returns the loader produced by the run. For a Module result it
	// is the loader the session switches to.
	Loader() Loader
}

// Config is the session configuration handed to every run.
// It is a value: updates return a copy and never touch the receiver.
type Config struct {
	// Predefs holds previously accepted definition fragments, newest first.
	Predefs []string
}

// Prepend returns a copy of c with fragments placed in front of Predefs.
// fragments[0] becomes the newest entry.
func (c Config) Prepend(fragments ...string) Config {
	predefs := make([]string, 0, len(fragments)+len(c.Predefs))
	predefs = append(predefs, fragments...)
	predefs = append(predefs, c.Predefs...)
	return Config{Predefs: predefs}
}

// Program returns the definitions in compilation order (oldest first).
func (c Config) Program() []string {
	program := make([]string, len(c.Predefs))
	for i, def := range c.Predefs {
		program[len(c.Predefs)-1-i] = def
	}
	return program
}

// Loader resolves compiled artifacts by name. Loaders are values: producing a
// loader with a new artifact leaves the old loader's view untouched.
type Loader interface {
	Load(ctx context.Context, name string) (Artifact, error)
}

// Artifact is a loaded, executable module.
type Artifact interface {
	Name() string
	ReadField(ctx context.Context, field string) (any, error)
	WriteField(field string, value any) error
}

// Message is a single diagnostic emitted by a run.
type Message struct {
	Source string
	Line   int
	Column int
	Text   string
}

func (m Message) String() string {
	var b strings.Builder
	if m.Source != "" {
		b.WriteString(m.Source)
		b.WriteString(":")
	}
	if m.Line > 0 {
		fmt.Fprintf(&b, "%d:%d:", m.Line, m.Column)
	}
	if b.Len() > 0 {
		b.WriteString(" ")
	}
	b.WriteString(m.Text)
	return b.String()
}
