// Package minihs is a small lazily evaluated, Haskell-flavoured language
// implementing interp.Interpreter.
//
// Top-level values are thunks evaluated on first use; a binding written as
// `!name = ...` is evaluated when its module is loaded. Fragments typed at a
// session are compiled against the session's earlier definitions and the
// modules in its loader. Modules that are not loaded yet are read from the
// search path.
package minihs

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"

	"github.com/podhmo/evalsession/cache"
	"github.com/podhmo/evalsession/interp"
	"github.com/podhmo/evalsession/locator"
	"github.com/podhmo/evalsession/minihs/evaluator"
	"github.com/podhmo/evalsession/minihs/parser"
)

const (
	// FragmentSource names the fragment being run in diagnostics.
	FragmentSource = "<interactive>"
	// ResultField is the field of a script artifact holding an expression's value.
	ResultField = "$it"
	// DefinitionsModule is the name a definitions fragment is checked under.
	DefinitionsModule = "Interactive.Definitions"
	// ScriptPrefix prefixes the artifact name of every expression run.
	ScriptPrefix = "Interactive.Script"
)

var (
	// ErrForeignValue is returned when a Program, Loader or Symbol was not
	// produced by this package.
	ErrForeignValue = errors.New("value was not produced by minihs")
)

// Parsed is a cached parse result.
type Parsed struct {
	Fragment *parser.Fragment
	Errors   []*parser.Error
}

// Interpreter implements interp.Interpreter for minihs.
// It is safe for concurrent use by multiple sessions.
type Interpreter struct {
	logger   *slog.Logger
	locator  *locator.Locator
	paths    []string
	maxDepth int
	cache    *cache.Cache[*Parsed]
}

// Option is a functional option for configuring the Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

// WithSearchPath adds directories searched for imported modules.
// It is ignored if WithLocator is also used.
func WithSearchPath(paths ...string) Option {
	return func(i *Interpreter) {
		i.paths = append(i.paths, paths...)
	}
}

// WithLocator provides a pre-configured module locator.
func WithLocator(l *locator.Locator) Option {
	return func(i *Interpreter) {
		i.locator = l
	}
}

// WithMaxDepth sets the evaluation depth limit.
func WithMaxDepth(n int) Option {
	return func(i *Interpreter) {
		i.maxDepth = n
	}
}

// WithCache shares a parse cache between interpreters. Use cache.Disabled to
// turn caching off.
func WithCache(c *cache.Cache[*Parsed]) Option {
	return func(i *Interpreter) {
		i.cache = c
	}
}

// New creates an interpreter configured with options.
func New(options ...Option) (*Interpreter, error) {
	i := &Interpreter{maxDepth: evaluator.DefaultMaxDepth}
	for _, opt := range options {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	if i.cache == nil {
		i.cache = cache.New[*Parsed](1024)
	}
	if i.locator == nil {
		l, err := locator.FromPaths(i.paths)
		if err != nil {
			return nil, fmt.Errorf("initializing module search path: %w", err)
		}
		i.locator = l
	}
	return i, nil
}

// Locator returns the module locator used for imports.
func (i *Interpreter) Locator() *locator.Locator {
	return i.locator
}

type program struct {
	text   string
	parsed *Parsed
}

func (p *program) Source() string { return p.text }

type symbol struct {
	artifact string
	field    string
}

func (s *symbol) String() string { return s.artifact + "." + s.field }

type compilerState struct {
	loader *Loader
}

func (s *compilerState) Loader() interp.Loader { return s.loader }

// Interpret parses and classifies text. Parse errors are kept in the
// program and reported by Run.
func (i *Interpreter) Interpret(text string) interp.Program {
	return &program{text: text, parsed: i.parseFragment(FragmentSource, text)}
}

func (i *Interpreter) parseFragment(source, text string) *Parsed {
	parsed, _ := i.cache.Do("fragment\x00"+source+"\x00"+text, func() (*Parsed, error) {
		frag, errs := parser.ParseFragment(source, text)
		return &Parsed{Fragment: frag, Errors: errs}, nil
	})
	return parsed
}

func (i *Interpreter) parseModule(source, text string) *Parsed {
	parsed, _ := i.cache.Do("module\x00"+source+"\x00"+text, func() (*Parsed, error) {
		m, errs := parser.ParseModule(source, text)
		if len(errs) > 0 {
			return &Parsed{Errors: errs}, nil
		}
		return &Parsed{Fragment: &parser.Fragment{Source: source, Kind: parser.KindModule, Module: m}}, nil
	})
	return parsed
}

// NewLoader returns an empty loader.
func (i *Interpreter) NewLoader() interp.Loader {
	return newLoader(evaluator.Config{MaxDepth: i.maxDepth}, i.logger)
}

func (i *Interpreter) loaderOf(ld interp.Loader) (*Loader, error) {
	switch ld := ld.(type) {
	case nil:
		return i.NewLoader().(*Loader), nil
	case *Loader:
		return ld, nil
	default:
		return nil, fmt.Errorf("%w: loader %T", ErrForeignValue, ld)
	}
}

// Run compiles prog against cfg and loader.
func (i *Interpreter) Run(ctx context.Context, prog interp.Program, cfg interp.Config, ld interp.Loader) (interp.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := prog.(*program)
	if !ok {
		return nil, fmt.Errorf("%w: program %T", ErrForeignValue, prog)
	}
	loader, err := i.loaderOf(ld)
	if err != nil {
		return nil, err
	}
	if len(p.parsed.Errors) > 0 {
		return failure(parseMessages(p.parsed.Errors)), nil
	}

	frag := p.parsed.Fragment
	i.logger.DebugContext(ctx, "run", slog.String("kind", frag.Kind.String()), slog.Int("predefs", len(cfg.Predefs)))
	r := &resolver{interp: i, loader: loader, pending: make(map[string]*compiledModule), resolving: make(map[string]bool)}

	switch frag.Kind {
	case parser.KindModule:
		mod, msgs := compile(frag.Module.Name, []piece{{source: FragmentSource, decls: frag.Module.Decls}}, r)
		if len(msgs) > 0 {
			return failure(msgs), nil
		}
		next := loader.with(append(r.resolved(), mod)...)
		return &interp.Success{Kind: &interp.Module{Name: mod.name}, State: &compilerState{loader: next}}, nil

	case parser.KindDefinitions:
		pieces, msgs := i.predefs(cfg)
		if len(msgs) > 0 {
			return failure(msgs), nil
		}
		pieces = append(pieces, piece{source: FragmentSource, decls: frag.Decls})
		if _, msgs := compile(DefinitionsModule, pieces, r); len(msgs) > 0 {
			return failure(msgs), nil
		}
		return &interp.Success{Kind: &interp.Definitions{}, State: &compilerState{loader: loader.with(r.resolved()...)}}, nil

	case parser.KindExpression:
		pieces, msgs := i.predefs(cfg)
		if len(msgs) > 0 {
			return failure(msgs), nil
		}
		it := &parser.Binding{Pos: frag.Expr.Position(), Name: ResultField, Body: frag.Expr}
		pieces = append(pieces, piece{source: FragmentSource, decls: []parser.Decl{it}})
		name := scriptName(cfg, p.text)
		mod, msgs := compile(name, pieces, r)
		if len(msgs) > 0 {
			return failure(msgs), nil
		}
		next := loader.with(append(r.resolved(), mod)...)
		sym := &symbol{artifact: name, field: ResultField}
		return &interp.Success{Kind: &interp.Expression{Symbol: sym}, State: &compilerState{loader: next}}, nil
	}
	return nil, fmt.Errorf("unexpected fragment kind %s", frag.Kind)
}

// predefs parses the session definitions, oldest first.
func (i *Interpreter) predefs(cfg interp.Config) ([]piece, []interp.Message) {
	var pieces []piece
	var msgs []interp.Message
	for n, text := range cfg.Program() {
		source := fmt.Sprintf("<definitions:%d>", n+1)
		parsed := i.parseFragment(source, text)
		if len(parsed.Errors) > 0 {
			msgs = append(msgs, parseMessages(parsed.Errors)...)
			continue
		}
		if parsed.Fragment.Kind != parser.KindDefinitions {
			msgs = append(msgs, interp.Message{Source: source, Text: "not a definitions fragment: " + parsed.Fragment.Kind.String()})
			continue
		}
		pieces = append(pieces, piece{source: source, decls: parsed.Fragment.Decls})
	}
	return pieces, msgs
}

// scriptName derives a stable artifact name from the compiler input.
func scriptName(cfg interp.Config, text string) string {
	h := fnv.New64a()
	for _, def := range cfg.Program() {
		h.Write([]byte(def))
		h.Write([]byte{0})
	}
	h.Write([]byte(text))
	return fmt.Sprintf("%s%016x", ScriptPrefix, h.Sum64())
}

// ResolveArtifactName returns the artifact holding sym's value.
func (i *Interpreter) ResolveArtifactName(sym interp.Symbol, st interp.CompilerState) (string, error) {
	s, ok := sym.(*symbol)
	if !ok {
		return "", fmt.Errorf("%w: symbol %T", ErrForeignValue, sym)
	}
	if cs, ok := st.(*compilerState); ok {
		if _, ok := cs.loader.lookup(s.artifact); !ok {
			return "", fmt.Errorf("%w: %s", ErrModuleNotFound, s.artifact)
		}
	}
	return s.artifact, nil
}

// ResolveFieldName returns the field holding sym's value.
func (i *Interpreter) ResolveFieldName(sym interp.Symbol, st interp.CompilerState) (string, error) {
	s, ok := sym.(*symbol)
	if !ok {
		return "", fmt.Errorf("%w: symbol %T", ErrForeignValue, sym)
	}
	return s.field, nil
}

func failure(msgs []interp.Message) *interp.Failure {
	return &interp.Failure{Messages: msgs}
}

func parseMessages(errs []*parser.Error) []interp.Message {
	msgs := make([]interp.Message, len(errs))
	for i, err := range errs {
		msgs[i] = interp.Message{Source: err.Source, Line: err.Pos.Line, Column: err.Pos.Col, Text: err.Msg}
	}
	return msgs
}

// resolver finds imported modules in the loader or on the search path.
// Modules read from the search path during a run are added to the run's
// loader.
type resolver struct {
	interp    *Interpreter
	loader    *Loader
	pending   map[string]*compiledModule
	order     []string
	resolving map[string]bool
}

func (r *resolver) resolved() []*compiledModule {
	mods := make([]*compiledModule, len(r.order))
	for i, name := range r.order {
		mods[i] = r.pending[name]
	}
	return mods
}

func (r *resolver) resolve(name string) ([]string, []interp.Message, bool) {
	if m, ok := r.pending[name]; ok {
		return m.exports(), nil, true
	}
	if m, ok := r.loader.lookup(name); ok {
		return m.exports(), nil, true
	}
	if r.resolving[name] {
		return nil, []interp.Message{{Text: fmt.Sprintf("import cycle through module %s", name)}}, false
	}

	file, err := r.interp.locator.Find(name)
	if err != nil {
		if errors.Is(err, locator.ErrNotFound) {
			return nil, nil, false
		}
		return nil, []interp.Message{{Text: err.Error()}}, false
	}

	r.resolving[name] = true
	defer delete(r.resolving, name)

	parsed := r.interp.parseModule(file.Path, string(file.Source))
	if len(parsed.Errors) > 0 {
		return nil, parseMessages(parsed.Errors), false
	}
	m := parsed.Fragment.Module
	if m.Name != name {
		return nil, []interp.Message{{
			Source: file.Path, Line: m.Pos.Line, Column: m.Pos.Col,
			Text: fmt.Sprintf("module %s is declared in a file for %s", m.Name, name),
		}}, false
	}
	mod, msgs := compile(name, []piece{{source: file.Path, decls: m.Decls}}, r)
	if len(msgs) > 0 {
		return nil, msgs, false
	}
	r.pending[name] = mod
	r.order = append(r.order, name)
	r.interp.logger.Debug("loaded module from search path", slog.String("module", name), slog.String("path", file.Path))
	return mod.exports(), nil, true
}
