// Package evalsession manages an interactive evaluation session on top of a
// compiled language.
//
// A Session accepts source fragments one at a time. Each fragment is
// classified by the interpreter as a module, an expression or a group of
// definitions, and folded into the session so that later fragments compile
// against everything accepted before them. Host values are exposed to the
// interpreted code with Bind.
//
// Mutating operations are serialized; a failed operation leaves the session
// exactly as it was.
package evalsession

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/podhmo/evalsession/bridge"
	"github.com/podhmo/evalsession/interp"
	"golang.org/x/sync/semaphore"
)

// Session is an interactive evaluation session.
type Session struct {
	interp    interp.Interpreter
	generator bridge.Generator
	logger    *slog.Logger

	sem   *semaphore.Weighted
	state atomic.Pointer[state]
}

// New creates a session in the Fresh phase.
func New(ip interp.Interpreter, options ...Option) *Session {
	s := &Session{
		interp:    ip,
		generator: bridge.NewTemplate(),
		sem:       semaphore.NewWeighted(1),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	s.state.Store(&state{
		loader:   ip.NewLoader(),
		bindings: map[string]binding{},
		prelude:  s.generator.Prelude(),
	})
	return s
}

// lock waits for exclusive access to the session state.
func (s *Session) lock(ctx context.Context) (func(), error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.sem.Release(1) }, nil
}

// Evaluate compiles text against the session and folds the result in.
// Expressions return their value; modules and definitions return nil.
func (s *Session) Evaluate(ctx context.Context, text string) (any, error) {
	return s.evaluate(ctx, s.interp.Interpret(text))
}

// EvaluateReader reads a whole fragment from r and evaluates it.
func (s *Session) EvaluateReader(ctx context.Context, r io.Reader) (any, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading fragment: %w", err)
	}
	return s.Evaluate(ctx, string(b))
}

func (s *Session) evaluate(ctx context.Context, prog interp.Program) (any, error) {
	release, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	value, next, err := s.run(ctx, s.state.Load(), prog)
	if err != nil {
		return nil, err
	}
	s.state.Store(next)
	return value, nil
}

// run compiles prog against cur and dispatches the result. It never
// publishes the returned state.
func (s *Session) run(ctx context.Context, cur *state, prog interp.Program) (any, *state, error) {
	result, err := s.interp.Run(ctx, prog, cur.config, cur.loader)
	if err != nil {
		return nil, nil, fmt.Errorf("running fragment: %w", err)
	}
	return s.dispatch(ctx, result, cur, prog.Source())
}

// Compiled is a fragment that compiled against the session at the time of
// Compile. Eval runs it against the session as it is when Eval is called.
type Compiled struct {
	session *Session
	prog    interp.Program
}

// Compile checks text against the current session without changing it.
func (s *Session) Compile(ctx context.Context, text string) (*Compiled, error) {
	prog := s.interp.Interpret(text)
	cur := s.state.Load()
	result, err := s.interp.Run(ctx, prog, cur.config, cur.loader)
	if err != nil {
		return nil, fmt.Errorf("compiling fragment: %w", err)
	}
	if f, ok := result.(*interp.Failure); ok {
		return nil, &CompilationError{Messages: f.Strings()}
	}
	return &Compiled{session: s, prog: prog}, nil
}

// Source returns the text the fragment was compiled from.
func (c *Compiled) Source() string {
	return c.prog.Source()
}

// Eval evaluates the compiled fragment like Evaluate.
func (c *Compiled) Eval(ctx context.Context) (any, error) {
	return c.session.evaluate(ctx, c.prog)
}

// Binding returns the host value bound to name.
func (s *Session) Binding(name string) (any, bool) {
	b, ok := s.state.Load().bindings[name]
	if !ok {
		return nil, false
	}
	return b.value, true
}

// Bindings returns the bound names in the order they were first bound.
func (s *Session) Bindings() []string {
	order := s.state.Load().order
	names := make([]string, len(order))
	copy(names, order)
	return names
}

// Definitions returns the accepted definition fragments, oldest first. It
// includes the declarations generated by Bind.
func (s *Session) Definitions() []string {
	return s.state.Load().config.Program()
}

// Config returns a copy of the session configuration.
func (s *Session) Config() interp.Config {
	return s.state.Load().config.Prepend()
}

// Prelude returns the current prelude module text.
func (s *Session) Prelude() string {
	return s.state.Load().prelude
}

// Phase reports whether any value has been bound.
func (s *Session) Phase() Phase {
	return s.state.Load().phase()
}

// Reloads returns the number of committed prelude reloads.
func (s *Session) Reloads() int {
	return s.state.Load().reloads
}
