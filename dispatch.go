package evalsession

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/podhmo/evalsession/interp"
)

// dispatch folds one run result into cur. The returned state is cur itself
// when nothing changes.
func (s *Session) dispatch(ctx context.Context, result interp.Result, cur *state, text string) (any, *state, error) {
	switch r := result.(type) {
	case *interp.Failure:
		s.logger.DebugContext(ctx, "fragment rejected", slog.Int("messages", len(r.Messages)))
		return nil, nil, &CompilationError{Messages: r.Strings()}
	case *interp.Success:
		s.logger.DebugContext(ctx, "fragment accepted", slog.String("kind", r.Kind.String()))
		switch kind := r.Kind.(type) {
		case *interp.Module:
			next := cur.clone()
			next.loader = r.State.Loader()
			return nil, next, nil
		case *interp.Expression:
			value, err := s.read(ctx, kind, r.State, cur)
			if err != nil {
				return nil, nil, err
			}
			return value, cur, nil
		case *interp.Definitions:
			next := cur.clone()
			next.config = cur.config.Prepend(text)
			return nil, next, nil
		default:
			return nil, nil, fmt.Errorf("unexpected source kind %T", r.Kind)
		}
	default:
		return nil, nil, fmt.Errorf("unexpected result %T", result)
	}
}

// read loads the artifact holding an expression's value, fills the prelude
// cells and reads the value. The run's loader is used but not kept.
func (s *Session) read(ctx context.Context, kind *interp.Expression, st interp.CompilerState, cur *state) (any, error) {
	artifact, err := s.interp.ResolveArtifactName(kind.Symbol, st)
	if err != nil {
		return nil, &EvaluationError{Err: err}
	}
	field, err := s.interp.ResolveFieldName(kind.Symbol, st)
	if err != nil {
		return nil, &EvaluationError{Err: err}
	}

	loader := st.Loader()
	if len(cur.order) > 0 {
		if err := s.inject(ctx, loader, cur); err != nil {
			return nil, &EvaluationError{Artifact: artifact, Field: field, Err: err}
		}
	}

	a, err := loader.Load(ctx, artifact)
	if err != nil {
		return nil, &EvaluationError{Artifact: artifact, Field: field, Err: err}
	}
	value, err := a.ReadField(ctx, field)
	if err != nil {
		return nil, &EvaluationError{Artifact: artifact, Field: field, Err: err}
	}
	return value, nil
}

// inject writes every bound value into its prelude cell.
func (s *Session) inject(ctx context.Context, loader interp.Loader, cur *state) error {
	prelude, err := loader.Load(ctx, s.generator.PreludeArtifact())
	if err != nil {
		return fmt.Errorf("loading prelude: %w", err)
	}
	for _, name := range cur.order {
		if err := prelude.WriteField(s.generator.CellName(name), cur.bindings[name].value); err != nil {
			return fmt.Errorf("injecting %s: %w", name, err)
		}
	}
	s.logger.DebugContext(ctx, "injected bindings", slog.Int("count", len(cur.order)))
	return nil
}
