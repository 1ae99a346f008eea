package evalsession

import (
	"errors"
	"fmt"
	"strings"

	"github.com/podhmo/evalsession/bridge"
)

// Sentinel errors for error classification.
var (
	// ErrCompilation matches every *CompilationError.
	ErrCompilation = errors.New("compilation failed")

	// ErrEvaluation matches every *EvaluationError.
	ErrEvaluation = errors.New("evaluation failed")

	// ErrBinding matches every *BindingError.
	ErrBinding = errors.New("binding failed")

	// ErrTypeMismatch is the cause of a BindingError when a name is bound
	// again with a different type.
	ErrTypeMismatch = errors.New("type differs from the existing binding")

	// ErrEmptyName and ErrInvalidName are causes of a BindingError for a
	// key whose name part is unusable.
	ErrEmptyName   = bridge.ErrEmptyName
	ErrInvalidName = bridge.ErrInvalidName
)

// CompilationError is returned when the interpreter rejects a fragment.
// Messages are the diagnostics in the order they were emitted.
type CompilationError struct {
	Messages []string
}

// Error returns the diagnostics joined with newlines.
func (e *CompilationError) Error() string {
	return strings.Join(e.Messages, "\n")
}

// Is reports whether target is ErrCompilation.
func (e *CompilationError) Is(target error) bool {
	return target == ErrCompilation
}

// EvaluationError is returned when a compiled expression cannot be loaded,
// receive its bindings, or be read.
type EvaluationError struct {
	// Artifact and Field name the value being read. They are empty when the
	// failure happened before the names were resolved.
	Artifact string
	Field    string

	// Err is the underlying error.
	Err error
}

func (e *EvaluationError) Error() string {
	if e.Artifact == "" {
		return fmt.Sprintf("evaluation failed: %v", e.Err)
	}
	return fmt.Sprintf("evaluating %s.%s: %v", e.Artifact, e.Field, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrEvaluation.
func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}

// BindingError is returned when a host value cannot be bound. Err may be a
// *CompilationError raised by reloading the prelude.
type BindingError struct {
	Name string
	Err  error
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("binding %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *BindingError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrBinding.
func (e *BindingError) Is(target error) bool {
	return target == ErrBinding
}
