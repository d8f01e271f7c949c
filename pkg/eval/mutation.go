package eval

import (
	"github.com/gitrdm/lambdust/pkg/environment"
	"github.com/gitrdm/lambdust/pkg/value"
)

// BuiltinSetCar returns set-car! as a registrable primitive procedure:
// it updates exactly pair's car cell, leaving cdr untouched (§8 property
// 3), and notifies the heap's write barrier so a later Young collection
// can find the new edge without rescanning all of Old (§4.3).
func (in *Interp) BuiltinSetCar() *value.Procedure {
	return value.NewPrimitive("set-car!", 2, 2, func(args []value.Value) (value.Value, error) {
		pair, ok := args[0].(*value.Pair)
		if !ok {
			return nil, &TypeError{Proc: "set-car!", Expected: "a pair", Got: args[0].Kind()}
		}
		pair.SetCar(args[1])
		in.recordWrite(pair, args[1])
		return value.Unspecified{}, nil
	})
}

// BuiltinSetCdr returns set-cdr! as a registrable primitive procedure,
// the cdr counterpart of BuiltinSetCar.
func (in *Interp) BuiltinSetCdr() *value.Procedure {
	return value.NewPrimitive("set-cdr!", 2, 2, func(args []value.Value) (value.Value, error) {
		pair, ok := args[0].(*value.Pair)
		if !ok {
			return nil, &TypeError{Proc: "set-cdr!", Expected: "a pair", Got: args[0].Kind()}
		}
		pair.SetCdr(args[1])
		in.recordWrite(pair, args[1])
		return value.Unspecified{}, nil
	})
}

// BuiltinVectorSet returns vector-set! as a registrable primitive
// procedure: it updates exactly one slot of a vector, in bounds-checked
// fashion, and notifies the heap's write barrier like BuiltinSetCar.
func (in *Interp) BuiltinVectorSet() *value.Procedure {
	return value.NewPrimitive("vector-set!", 3, 3, func(args []value.Value) (value.Value, error) {
		vec, ok := args[0].(*value.Vector)
		if !ok {
			return nil, &TypeError{Proc: "vector-set!", Expected: "a vector", Got: args[0].Kind()}
		}
		idx, ok := args[1].(value.Int)
		if !ok {
			return nil, &TypeError{Proc: "vector-set!", Expected: "an integer index", Got: args[1].Kind()}
		}
		if err := vec.Set(int(idx), args[2]); err != nil {
			return nil, err
		}
		in.recordWrite(vec, args[2])
		return value.Unspecified{}, nil
	})
}

// InstallCorePrimitives interns and defines, in env, every primitive this
// package provides a Builtin constructor for (call/cc, dynamic-wind,
// set-car!, set-cdr!, vector-set!). Callers that assemble their own
// standard library (e.g. a parser's prelude) may define these
// individually instead; this is the one-call convenience the runtime
// façade uses when spawning a fresh evaluator thread.
func (in *Interp) InstallCorePrimitives(env *environment.Frame) {
	define := func(name string, proc *value.Procedure) {
		env.Define(in.Interner.Intern(name), proc)
	}
	define("call/cc", in.BuiltinCallCC())
	define("call-with-current-continuation", in.BuiltinCallCC())
	define("dynamic-wind", in.BuiltinDynamicWind())
	define("set-car!", in.BuiltinSetCar())
	define("set-cdr!", in.BuiltinSetCdr())
	define("vector-set!", in.BuiltinVectorSet())
}
