package evalsession

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/podhmo/evalsession/bridge"
	"github.com/podhmo/evalsession/interp"
)

// Bind exposes value to interpreted code under a name.
//
// key is "name" or "name::Type". The first bind of a name declares it in the
// session definitions and adds its cell to the prelude; binding the name
// again only replaces the value. Either way the prelude module is reloaded
// once. The value is written into the cell before each expression is read.
func (s *Session) Bind(ctx context.Context, key string, value any) error {
	release, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	next, err := s.bind(ctx, s.state.Load(), key, value)
	if err != nil {
		return err
	}
	s.state.Store(next)
	return nil
}

func (s *Session) bind(ctx context.Context, cur *state, key string, value any) (*state, error) {
	name, typ, err := bridge.ParseKey(key)
	if err != nil {
		return nil, &BindingError{Name: key, Err: err}
	}
	_, annotation, _ := strings.Cut(key, "::")
	explicit := strings.TrimSpace(annotation) != ""

	var next *state
	if old, ok := cur.bindings[name]; ok {
		if explicit && typ != old.typ {
			return nil, &BindingError{Name: name, Err: fmt.Errorf("%w: %s is bound as %s, not %s", ErrTypeMismatch, name, old.typ, typ)}
		}
		next = cur.withBinding(name, binding{typ: old.typ, value: value})
	} else {
		config, prelude, err := s.generator.GenerateBindingDeclarations(name, typ)
		if err != nil {
			return nil, &BindingError{Name: name, Err: err}
		}
		fragments := []string{config}
		if len(cur.order) == 0 {
			fragments = append(fragments, s.generator.PreludeImport())
		}
		next = cur.withBinding(name, binding{typ: typ, value: value})
		next.config = cur.config.Prepend(fragments...)
		next.prelude = cur.prelude + prelude
	}

	reloaded, err := s.reload(ctx, next)
	if err != nil {
		return nil, &BindingError{Name: name, Err: err}
	}
	s.logger.DebugContext(ctx, "bound value", slog.String("name", name), slog.String("type", next.bindings[name].typ), slog.Int("phase", reloaded.phase().Count()))
	return reloaded, nil
}

// reload evaluates the prelude text of st as a module.
func (s *Session) reload(ctx context.Context, st *state) (*state, error) {
	prog := s.interp.Interpret(st.prelude)
	result, err := s.interp.Run(ctx, prog, st.config, st.loader)
	if err != nil {
		return nil, fmt.Errorf("reloading prelude: %w", err)
	}
	if success, ok := result.(*interp.Success); ok {
		if _, ok := success.Kind.(*interp.Module); !ok {
			return nil, fmt.Errorf("reloading prelude: expected a module, got %s", success.Kind)
		}
	}
	_, next, err := s.dispatch(ctx, result, st, prog.Source())
	if err != nil {
		return nil, err
	}
	next.reloads++
	return next, nil
}
