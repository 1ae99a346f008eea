package minihs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/podhmo/evalsession/interp"
	"github.com/podhmo/evalsession/minihs/evaluator"
	"github.com/podhmo/evalsession/minihs/object"
)

var (
	// ErrModuleNotFound is returned when a loader has no module of the given name.
	ErrModuleNotFound = errors.New("module not loaded")
	// ErrImportCycle is returned when linking modules that import each other.
	ErrImportCycle = errors.New("import cycle")
	// ErrNoField is returned when an artifact does not define a field.
	ErrNoField = errors.New("no such field")
	// ErrNotCell is returned when writing to a field that is not a reference cell.
	ErrNotCell = errors.New("field is not a reference cell")
)

// Loader is an immutable set of compiled modules. Deriving a loader with new
// modules leaves the receiver unchanged.
type Loader struct {
	modules map[string]*entry
	cfg     evaluator.Config
	logger  *slog.Logger
}

// entry holds a module and its instance. An instance is linked at most once
// and then shared by every loader holding the entry.
type entry struct {
	mod *compiledModule

	mu   sync.Mutex
	inst *instance
}

func newLoader(cfg evaluator.Config, logger *slog.Logger) *Loader {
	return &Loader{modules: make(map[string]*entry), cfg: cfg, logger: logger}
}

// Modules returns the names of the loaded modules, sorted.
func (l *Loader) Modules() []string {
	names := make([]string, 0, len(l.modules))
	for name := range l.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Loader) lookup(name string) (*compiledModule, bool) {
	e, ok := l.modules[name]
	if !ok {
		return nil, false
	}
	return e.mod, true
}

// with returns a loader where mods replace modules of the same name. Modules
// importing a replaced module, directly or not, get a fresh entry so they are
// relinked against the new definition.
func (l *Loader) with(mods ...*compiledModule) *Loader {
	if len(mods) == 0 {
		return l
	}
	next := &Loader{modules: make(map[string]*entry, len(l.modules)+len(mods)), cfg: l.cfg, logger: l.logger}
	for name, e := range l.modules {
		next.modules[name] = e
	}
	dirty := make(map[string]bool, len(mods))
	for _, m := range mods {
		next.modules[m.name] = &entry{mod: m}
		dirty[m.name] = true
	}
	for changed := true; changed; {
		changed = false
		for name, e := range next.modules {
			if dirty[name] {
				continue
			}
			for _, imp := range e.mod.imports {
				if dirty[imp] {
					next.modules[name] = &entry{mod: e.mod}
					dirty[name] = true
					changed = true
					break
				}
			}
		}
	}
	return next
}

// Load links the named module and its imports and returns it as an artifact.
// Strict bindings are evaluated during the first load.
func (l *Loader) Load(ctx context.Context, name string) (interp.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inst, err := l.link(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (l *Loader) link(ctx context.Context, name string, visiting []string) (*instance, error) {
	e, ok := l.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	for _, v := range visiting {
		if v == name {
			return nil, fmt.Errorf("%w: %s", ErrImportCycle, strings.Join(append(visiting, name), " -> "))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inst != nil {
		return e.inst, nil
	}

	visiting = append(visiting[:len(visiting):len(visiting)], name)
	env := object.NewEnclosedEnvironment(evaluator.NewRootEnvironment())
	local := make(map[string]bool, len(e.mod.binds))
	for _, b := range e.mod.binds {
		local[b.binding.Name] = true
	}
	for _, imp := range e.mod.imports {
		dep, err := l.link(ctx, imp, visiting)
		if err != nil {
			return nil, fmt.Errorf("linking %s: %w", name, err)
		}
		for field, obj := range dep.fields {
			env.Set(imp+"."+field, obj)
			if !local[field] {
				env.Set(field, obj)
			}
		}
	}

	inst := &instance{name: name, fields: make(map[string]object.Object, len(e.mod.binds)), cfg: l.cfg}
	for _, b := range e.mod.binds {
		obj := evaluator.NewBinding(b.binding, env, b.source, b.want)
		env.Set(b.binding.Name, obj)
		inst.fields[b.binding.Name] = obj
	}

	ev := evaluator.New(l.cfg)
	for _, b := range e.mod.binds {
		if !b.binding.Strict {
			continue
		}
		if errObj, ok := ev.Force(ctx, inst.fields[b.binding.Name]).(*object.Error); ok {
			return nil, fmt.Errorf("initializing %s.%s: %w", name, b.binding.Name, errObj)
		}
	}

	e.inst = inst
	l.logger.DebugContext(ctx, "linked module", slog.String("module", name), slog.Int("fields", len(inst.fields)))
	return inst, nil
}

// instance is a linked module. It implements interp.Artifact.
type instance struct {
	name   string
	fields map[string]object.Object
	cfg    evaluator.Config
}

func (i *instance) Name() string { return i.name }

// ReadField forces the field and converts its value for the host.
func (i *instance) ReadField(ctx context.Context, field string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj, ok := i.fields[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoField, i.name, field)
	}
	v := evaluator.New(i.cfg).Force(ctx, obj)
	if errObj, ok := v.(*object.Error); ok {
		return nil, errObj
	}
	return object.ToGo(v), nil
}

// WriteField stores value into the reference cell held by field.
func (i *instance) WriteField(field string, value any) error {
	obj, ok := i.fields[field]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrNoField, i.name, field)
	}
	if t, ok := obj.(*object.Thunk); ok && t.Done() {
		if ref, ok := t.Value.(*object.Ref); ok {
			ref.Value = object.FromGo(value)
			return nil
		}
	}
	return fmt.Errorf("%w: %s.%s", ErrNotCell, i.name, field)
}
