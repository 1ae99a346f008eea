package evaluator

import (
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/podhmo/evalsession/minihs/object"
)

var builtins = map[string]*object.Builtin{
	"newRef": {
		Name:  "newRef",
		Arity: 1,
		Fn: func(args ...object.Object) object.Object {
			return &object.Ref{Value: args[0]}
		},
	},
	"readRef": {
		Name:  "readRef",
		Arity: 1,
		Fn: func(args ...object.Object) object.Object {
			ref, ok := args[0].(*object.Ref)
			if !ok {
				return object.NewError("readRef: expected Ref, got %s", object.TypeName(args[0]))
			}
			if ref.Value == nil {
				return object.NewError("readRef: reference cell is empty")
			}
			return ref.Value
		},
	},
	"show": {
		Name:  "show",
		Arity: 1,
		Fn: func(args ...object.Object) object.Object {
			return &object.String{Value: show(args[0])}
		},
	},
	"not": {
		Name:  "not",
		Arity: 1,
		Fn: func(args ...object.Object) object.Object {
			b, ok := object.Bool(args[0])
			if !ok {
				return object.NewError("not: expected Bool, got %s", object.TypeName(args[0]))
			}
			return object.NativeBool(!b)
		},
	},
	"negate": {
		Name:  "negate",
		Arity: 1,
		Fn: func(args ...object.Object) object.Object {
			i, ok := object.Int(args[0])
			if !ok {
				return object.NewError("negate: expected Int, got %s", object.TypeName(args[0]))
			}
			return &object.Integer{Value: -i}
		},
	},
	"div": {
		Name:  "div",
		Arity: 2,
		Fn: func(args ...object.Object) object.Object {
			a, b, errObj := intArgs("div", args)
			if errObj != nil {
				return errObj
			}
			q := a / b
			if a%b != 0 && (a < 0) != (b < 0) {
				q--
			}
			return &object.Integer{Value: q}
		},
	},
	"mod": {
		Name:  "mod",
		Arity: 2,
		Fn: func(args ...object.Object) object.Object {
			a, b, errObj := intArgs("mod", args)
			if errObj != nil {
				return errObj
			}
			m := a % b
			if m != 0 && (m < 0) != (b < 0) {
				m += b
			}
			return &object.Integer{Value: m}
		},
	},
	"length": {
		Name:  "length",
		Arity: 1,
		Fn: func(args ...object.Object) object.Object {
			s, ok := object.Str(args[0])
			if !ok {
				return object.NewError("length: expected String, got %s", object.TypeName(args[0]))
			}
			return &object.Integer{Value: int64(utf8.RuneCountInString(s))}
		},
	},
	"error": {
		Name:  "error",
		Arity: 1,
		Fn: func(args ...object.Object) object.Object {
			if s, ok := object.Str(args[0]); ok {
				return object.NewError("%s", s)
			}
			return object.NewError("%s", args[0].Inspect())
		},
	},
}

// intArgs extracts two integers, rejecting a zero divisor.
func intArgs(name string, args []object.Object) (int64, int64, *object.Error) {
	a, ok := object.Int(args[0])
	if !ok {
		return 0, 0, object.NewError("%s: expected Int, got %s", name, object.TypeName(args[0]))
	}
	b, ok := object.Int(args[1])
	if !ok {
		return 0, 0, object.NewError("%s: expected Int, got %s", name, object.TypeName(args[1]))
	}
	if b == 0 {
		return 0, 0, object.NewError("%s: division by zero", name)
	}
	return a, b, nil
}

func show(obj object.Object) string {
	if i, ok := object.Int(obj); ok {
		return strconv.FormatInt(i, 10)
	}
	if s, ok := object.Str(obj); ok {
		return strconv.Quote(s)
	}
	switch o := obj.(type) {
	case *object.Boolean:
		return o.Inspect()
	case *object.GoValue:
		if b, ok := object.Bool(o); ok {
			return object.NativeBool(b).Inspect()
		}
		return fmt.Sprintf("%v", object.ToGo(o))
	}
	return obj.Inspect()
}

// BuiltinNames returns the names of all builtins, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRootEnvironment returns a fresh environment holding the builtins.
func NewRootEnvironment() *object.Environment {
	env := object.NewEnvironment()
	for name, b := range builtins {
		env.Set(name, b)
	}
	return env
}
