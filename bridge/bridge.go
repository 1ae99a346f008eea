// Package bridge generates the synthetic source that exposes host values to
// interpreted code.
//
// A bound value travels through a reference cell declared in a prelude
// module. The session's definitions read the cell under the bound name, so
// interpreted code sees an ordinary top-level value.
package bridge

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptyName is returned when a binding key has no name part.
	ErrEmptyName = errors.New("binding name is empty")
	// ErrInvalidName is returned when a binding name cannot be used as an identifier.
	ErrInvalidName = errors.New("invalid binding name")
)

// DefaultType is the type used when a binding key carries no annotation.
const DefaultType = "a"

// Generator produces the declarations for one binding.
type Generator interface {
	// GenerateBindingDeclarations returns the fragment that goes into the
	// session definitions and the fragment appended to the prelude.
	GenerateBindingDeclarations(name, typ string) (config string, prelude string, err error)

	// Prelude returns the initial prelude text, before any binding.
	Prelude() string
	// PreludeImport returns the fragment importing the prelude module.
	PreludeImport() string
	// PreludeArtifact returns the artifact name of the prelude module.
	PreludeArtifact() string
	// CellName returns the prelude field holding the cell for name.
	CellName(name string) string
}

// ParseKey splits "name::Type" into its parts. The type defaults to
// DefaultType when it is omitted or blank.
func ParseKey(key string) (name string, typ string, err error) {
	name, typ, _ = strings.Cut(key, "::")
	name = strings.TrimSpace(name)
	typ = strings.TrimSpace(typ)
	if name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrEmptyName, key)
	}
	if typ == "" {
		typ = DefaultType
	}
	return name, typ, nil
}

var identPattern = regexp.MustCompile(`^[a-z_][A-Za-z0-9_']*$`)

// Template is the Generator for the minihs language.
type Template struct {
	// Module is the prelude module name.
	Module string
	// CellSuffix is appended to a binding name to name its cell.
	CellSuffix string
}

// NewTemplate returns a Template for the "EvalSession.Prelude" module.
func NewTemplate() *Template {
	return &Template{Module: "EvalSession.Prelude", CellSuffix: "Ref"}
}

func (t *Template) Prelude() string {
	return fmt.Sprintf("module %s where\n", t.Module)
}

func (t *Template) PreludeImport() string {
	return fmt.Sprintf("\nimport %s\n", t.Module)
}

func (t *Template) PreludeArtifact() string {
	return t.Module
}

func (t *Template) CellName(name string) string {
	return name + t.CellSuffix
}

func (t *Template) GenerateBindingDeclarations(name, typ string) (string, string, error) {
	if name == "" {
		return "", "", ErrEmptyName
	}
	if !identPattern.MatchString(name) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if typ == "" {
		typ = DefaultType
	}
	cell := t.CellName(name)
	config := fmt.Sprintf("\n%[1]s :: %[2]s\n%[1]s = readRef %[3]s\n", name, typ, cell)
	prelude := fmt.Sprintf("\n%[1]s :: Ref (%[2]s)\n!%[1]s = newRef ()\n", cell, typ)
	return config, prelude, nil
}
