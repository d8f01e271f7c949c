package eval

import (
	"context"

	"github.com/gitrdm/lambdust/pkg/value"
)

// windFrame is one installed dynamic-wind extent (§9 design notes).
type windFrame struct {
	before, after *value.Procedure
}

// contToken uniquely identifies one captured continuation's escape path;
// recover() compares against it to distinguish "this call/cc's jump" from
// an unrelated panic propagating through the same goroutine.
type contToken struct{}

// contState is the opaque payload behind a *value.Continuation, built by
// CallCC and interpreted only here (value.Continuation.State is a bare
// interface{} for exactly this reason).
type contState struct {
	token     *contToken
	windDepth int
}

// contEscape is panicked by invoking a captured continuation and
// recovered at the matching CallCC call site. This implements
// escape-only (upward, one-shot) continuations: a captured continuation
// may be invoked to abandon the current computation and return a value
// to its call/cc call site, but — unlike fully reentrant continuations —
// it cannot be invoked again after that call/cc has returned. This
// satisfies §8 property 9 and scenario S4; full re-entrant continuations
// would require a heap-resident frame chain in place of the host Go
// stack, which is out of scope for this simplification (see DESIGN.md).
type contEscape struct {
	token *contToken
	value value.Value
}

// CallCC captures the current continuation as a first-class value and
// applies proc to it (§4.4).
func (in *Interp) CallCC(ctx context.Context, proc *value.Procedure) (result value.Value, err error) {
	token := &contToken{}
	cont := value.NewContinuation(&contState{token: token, windDepth: len(in.windStack)})
	in.allocate(cont)

	defer func() {
		if r := recover(); r != nil {
			esc, ok := r.(*contEscape)
			if !ok || esc.token != token {
				panic(r)
			}
			result, err = esc.value, nil
		}
	}()
	return in.Apply(ctx, proc, []value.Value{cont})
}

// invokeContinuation unwinds to cont's call/cc call site carrying args[0]
// (or Unspecified with no arguments) as the result.
func (in *Interp) invokeContinuation(cont *value.Continuation, args []value.Value) (value.Value, error) {
	st, ok := cont.State.(*contState)
	if !ok {
		return nil, &NotCallableError{Kind: "continuation"}
	}
	var v value.Value = value.Unspecified{}
	if len(args) > 0 {
		v = args[0]
	}
	panic(&contEscape{token: st.token, value: v})
}

// DynamicWind calls before, then thunk, then after — running after even
// when thunk exits via a captured continuation's escape (since that
// escape is a Go panic, the deferred after-call below still runs during
// unwind), per §4.4/§9.
func (in *Interp) DynamicWind(ctx context.Context, before, thunk, after *value.Procedure) (value.Value, error) {
	if _, err := in.Apply(ctx, before, nil); err != nil {
		return nil, err
	}
	frame := &windFrame{before: before, after: after}
	in.windStack = append(in.windStack, frame)
	defer func() {
		if n := len(in.windStack); n > 0 && in.windStack[n-1] == frame {
			in.windStack = in.windStack[:n-1]
		}
		_, _ = in.Apply(ctx, after, nil)
	}()
	return in.Apply(ctx, thunk, nil)
}

// BuiltinCallCC returns call/cc as a registrable primitive procedure.
func (in *Interp) BuiltinCallCC() *value.Procedure {
	return value.NewPrimitive("call/cc", 1, 1, func(args []value.Value) (value.Value, error) {
		proc, ok := args[0].(*value.Procedure)
		if !ok {
			return nil, &NotCallableError{Kind: "call/cc expects a procedure"}
		}
		return in.CallCC(context.Background(), proc)
	})
}

// BuiltinDynamicWind returns dynamic-wind as a registrable primitive
// procedure.
func (in *Interp) BuiltinDynamicWind() *value.Procedure {
	return value.NewPrimitive("dynamic-wind", 3, 3, func(args []value.Value) (value.Value, error) {
		before, ok1 := args[0].(*value.Procedure)
		thunk, ok2 := args[1].(*value.Procedure)
		after, ok3 := args[2].(*value.Procedure)
		if !ok1 || !ok2 || !ok3 {
			return nil, &NotCallableError{Kind: "dynamic-wind expects three procedures"}
		}
		return in.DynamicWind(context.Background(), before, thunk, after)
	})
}
