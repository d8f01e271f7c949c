package eval

import (
	"context"
	"fmt"

	"github.com/gitrdm/lambdust/pkg/environment"
	"github.com/gitrdm/lambdust/pkg/value"
)

// Top designates env as this interpreter's top-level frame: `define`
// evaluated directly in it is additionally published through the
// transactional global manager (§4.6), matching "for `define` at top
// level... issues transactional updates to the global manager" (§2 data
// flow).
func (in *Interp) Top(env *environment.Frame) { in.top = env }

func (in *Interp) symbolName(id uint64) string {
	if in.Interner == nil {
		return fmt.Sprintf("#%d", id)
	}
	if name, ok := in.Interner.Name(id); ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

// Eval interprets expr in env. Tail calls (self and mutual) reuse this
// call's stack frame via the `for`/`continue` trampoline below rather
// than recursing, so a tail-recursive loop of any depth uses O(1) host
// stack frames (§4.4, §8 property 10). Non-tail calls recurse through
// Apply/Eval normally, bounded by the host stack like any tree-walking
// interpreter's non-tail recursion.
func (in *Interp) Eval(ctx context.Context, env *environment.Frame, expr Expr) (value.Value, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch e := expr.(type) {
		case *Literal:
			return e.Value, nil

		case *Quote:
			return e.Datum, nil

		case *Ident:
			if v, ok := env.Lookup(e.Symbol); ok {
				if _, uninit := v.(uninitSentinel); uninit {
					return nil, &UninitializedError{Symbol: in.symbolName(e.Symbol)}
				}
				return v, nil
			}
			if in.Globals != nil {
				if v, ok := in.Globals.Lookup(e.Symbol); ok {
					return v, nil
				}
			}
			return nil, &UnboundError{Symbol: in.symbolName(e.Symbol), Span: e.Span()}

		case *Lambda:
			proc := value.NewClosure(e.Name, idsToSymbols(e.Params), e.Rest, e, env)
			in.allocate(proc)
			return proc, nil

		case *If:
			t, err := in.Eval(ctx, env, e.Test)
			if err != nil {
				return nil, err
			}
			if value.IsTruthy(t) {
				expr = e.Then
				continue
			}
			if e.Else == nil {
				return value.Unspecified{}, nil
			}
			expr = e.Else
			continue

		case *And:
			if len(e.Exprs) == 0 {
				return value.Bool(true), nil
			}
			for _, sub := range e.Exprs[:len(e.Exprs)-1] {
				v, err := in.Eval(ctx, env, sub)
				if err != nil {
					return nil, err
				}
				if !value.IsTruthy(v) {
					return v, nil
				}
			}
			expr = e.Exprs[len(e.Exprs)-1]
			continue

		case *Or:
			if len(e.Exprs) == 0 {
				return value.Bool(false), nil
			}
			for _, sub := range e.Exprs[:len(e.Exprs)-1] {
				v, err := in.Eval(ctx, env, sub)
				if err != nil {
					return nil, err
				}
				if value.IsTruthy(v) {
					return v, nil
				}
			}
			expr = e.Exprs[len(e.Exprs)-1]
			continue

		case *Begin:
			if len(e.Exprs) == 0 {
				return value.Unspecified{}, nil
			}
			for _, sub := range e.Exprs[:len(e.Exprs)-1] {
				if _, err := in.Eval(ctx, env, sub); err != nil {
					return nil, err
				}
			}
			expr = e.Exprs[len(e.Exprs)-1]
			continue

		case *Set:
			v, err := in.Eval(ctx, env, e.Val)
			if err != nil {
				return nil, err
			}
			if env.Set(e.Name, v) {
				return value.Unspecified{}, nil
			}
			if in.Globals != nil {
				if _, ok := in.Globals.Lookup(e.Name); ok {
					if err := in.Globals.DefineGlobalTransactional(in.ThreadID, e.Name, v); err != nil {
						return nil, err
					}
					return value.Unspecified{}, nil
				}
			}
			return nil, &UnboundError{Symbol: in.symbolName(e.Name), Span: e.Span()}

		case *Define:
			v, err := in.Eval(ctx, env, e.Val)
			if err != nil {
				return nil, err
			}
			env.Define(e.Name, v)
			if in.Globals != nil && env == in.top {
				if err := in.Globals.DefineGlobalTransactional(in.ThreadID, e.Name, v); err != nil {
					return nil, err
				}
			}
			return value.Unspecified{}, nil

		case *Cond:
			next, nenv, done, result, err := in.evalCond(ctx, env, e)
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}
			expr, env = next, nenv
			continue

		case *Case:
			next, done, result, err := in.evalCase(ctx, env, e)
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}
			expr = next
			continue

		case *Let:
			nenv, body, err := in.setupLet(ctx, env, e)
			if err != nil {
				return nil, err
			}
			if len(body) == 0 {
				return value.Unspecified{}, nil
			}
			for _, sub := range body[:len(body)-1] {
				if _, err := in.Eval(ctx, nenv, sub); err != nil {
					return nil, err
				}
			}
			expr, env = body[len(body)-1], nenv
			continue

		case *Do:
			v, done, next, nenv, err := in.stepDo(ctx, env, e)
			if err != nil {
				return nil, err
			}
			if done {
				return v, nil
			}
			expr, env = next, nenv
			continue

		case *Quasiquote:
			return in.evalQuasiquote(ctx, env, e.Template, 1)

		case *Match:
			next, nenv, done, result, err := in.evalMatch(ctx, env, e)
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}
			expr, env = next, nenv
			continue

		case *App:
			fnv, err := in.Eval(ctx, env, e.Fn)
			if err != nil {
				return nil, err
			}
			args := make([]value.Value, len(e.Args))
			for i, a := range e.Args {
				av, err := in.Eval(ctx, env, a)
				if err != nil {
					return nil, err
				}
				args[i] = av
			}

			if cont, ok := fnv.(*value.Continuation); ok {
				return in.invokeContinuation(cont, args)
			}
			proc, ok := fnv.(*value.Procedure)
			if !ok {
				return nil, &NotCallableError{Kind: fnv.Kind().String()}
			}
			if !proc.AcceptsArity(len(args)) {
				return nil, &ArityError{Name: proc.Name, Min: proc.Min, Max: proc.Max, Got: len(args), Span: e.Span()}
			}
			if proc.Primitive != nil {
				return proc.Primitive(args)
			}

			nenv, err := bindParams(proc.Closure, args)
			if err != nil {
				return nil, err
			}
			lam, ok := proc.Closure.Body.(*Lambda)
			if !ok {
				return nil, fmt.Errorf("eval: closure body is not an *eval.Lambda")
			}
			if len(lam.Body) == 0 {
				return value.Unspecified{}, nil
			}
			for _, sub := range lam.Body[:len(lam.Body)-1] {
				if _, err := in.Eval(ctx, nenv, sub); err != nil {
					return nil, err
				}
			}
			expr, env = lam.Body[len(lam.Body)-1], nenv
			continue

		default:
			return nil, fmt.Errorf("eval: unsupported expression node %T", expr)
		}
	}
}

// Apply invokes proc with args, evaluating its body (for a closure) via
// a fresh non-tail Eval call. Used for non-tail application sites: call/cc
// handler invocation, dynamic-wind thunks, cond `=>` procedures, and
// higher-order primitive callbacks.
func (in *Interp) Apply(ctx context.Context, proc *value.Procedure, args []value.Value) (value.Value, error) {
	if !proc.AcceptsArity(len(args)) {
		return nil, &ArityError{Name: proc.Name, Min: proc.Min, Max: proc.Max, Got: len(args)}
	}
	if proc.Primitive != nil {
		return proc.Primitive(args)
	}
	env, err := bindParams(proc.Closure, args)
	if err != nil {
		return nil, err
	}
	lam, ok := proc.Closure.Body.(*Lambda)
	if !ok {
		return nil, fmt.Errorf("eval: closure body is not an *eval.Lambda")
	}
	var result value.Value = value.Unspecified{}
	for _, sub := range lam.Body {
		result, err = in.Eval(ctx, env, sub)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// bindParams constructs the frame for a closure invocation, spreading
// extra arguments into the rest parameter when present.
func bindParams(cl *value.Closure, args []value.Value) (*environment.Frame, error) {
	parent, ok := cl.Env.(*environment.Frame)
	if !ok {
		return nil, fmt.Errorf("eval: closure environment is not an *environment.Frame")
	}
	env := parent.Extend(parent.Generation())
	fixed := len(cl.Params)
	if cl.Rest {
		fixed--
	}
	for i := 0; i < fixed; i++ {
		env.Define(uint64(cl.Params[i]), args[i])
	}
	if cl.Rest {
		rest := value.Value(value.Nil{})
		for i := len(args) - 1; i >= fixed; i-- {
			rest = value.NewPair(args[i], rest)
		}
		env.Define(uint64(cl.Params[fixed]), rest)
	}
	return env, nil
}

func idsToSymbols(ids []uint64) []value.Symbol {
	out := make([]value.Symbol, len(ids))
	for i, id := range ids {
		out[i] = value.Symbol(id)
	}
	return out
}

// uninitSentinel marks a letrec-bound name before its initializer has run
// (§4.2: "references to uninitialized names during initializer evaluation
// are an error").
type uninitSentinel struct{}

func (uninitSentinel) Kind() value.Kind                         { return value.KindUnspecified }
func (uninitSentinel) Display(map[interface{}]bool) string      { return "#[uninitialized]" }
