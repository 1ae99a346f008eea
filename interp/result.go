package interp

// Result is the outcome of a Run: either *Success or *Failure.
type Result interface {
	isResult()
}

func (*Success) isResult() {}
func (*Failure) isResult() {}

// Success is a fragment that compiled.
type Success struct {
	Kind  SourceKind
	State CompilerState
}

// Failure carries the diagnostics of a fragment that did not compile,
// in emission order.
type Failure struct {
	Messages []Message
}

// Strings renders every message.
func (f *Failure) Strings() []string {
	msgs := make([]string, len(f.Messages))
	for i, m := range f.Messages {
		msgs[i] = m.String()
	}
	return msgs
}

// SourceKind classifies a compiled fragment: *Module, *Expression or
// *Definitions.
type SourceKind interface {
	isSourceKind()
	String() string
}

func (*Module) isSourceKind()      {}
func (*Expression) isSourceKind()  {}
func (*Definitions) isSourceKind() {}

// Module is a whole module; evaluating it only changes the loader.
type Module struct {
	Name string
}

func (m *Module) String() string { return "module " + m.Name }

// Expression is a single expression whose value is held by Symbol.
type Expression struct {
	Symbol Symbol
}

func (e *Expression) String() string { return "expression " + e.Symbol.String() }

// Definitions is a group of top-level declarations.
type Definitions struct{}

func (*Definitions) String() string { return "definitions" }
