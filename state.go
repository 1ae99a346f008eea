package evalsession

import (
	"fmt"

	"github.com/podhmo/evalsession/interp"
)

// Phase tells whether any host value has been bound in a session.
// It is Fresh until the first Bind and Bound(n) afterwards, n being the
// number of distinct bound names.
type Phase int

// Fresh is the phase of a session without bindings.
const Fresh Phase = 0

// Bound returns the phase of a session with n bound names.
func Bound(n int) Phase { return Phase(n) }

// Count returns the number of bound names.
func (p Phase) Count() int { return int(p) }

func (p Phase) String() string {
	if p == Fresh {
		return "fresh"
	}
	return fmt.Sprintf("bound(%d)", int(p))
}

type binding struct {
	typ   string
	value any
}

// state is an immutable snapshot of a session. Operations build a new
// snapshot with clone and the with* helpers; a published snapshot is never
// modified.
type state struct {
	config   interp.Config
	loader   interp.Loader
	bindings map[string]binding
	order    []string // bound names, first bind first
	prelude  string
	reloads  int
}

func (s *state) clone() *state {
	next := *s
	return &next
}

func (s *state) withBinding(name string, b binding) *state {
	next := s.clone()
	next.bindings = make(map[string]binding, len(s.bindings)+1)
	for k, v := range s.bindings {
		next.bindings[k] = v
	}
	if _, exists := s.bindings[name]; !exists {
		next.order = append(s.order[:len(s.order):len(s.order)], name)
	}
	next.bindings[name] = b
	return next
}

func (s *state) phase() Phase {
	return Bound(len(s.order))
}
