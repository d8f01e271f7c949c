package eval

import (
	"context"

	"github.com/gitrdm/lambdust/pkg/environment"
	"github.com/gitrdm/lambdust/pkg/value"
)

// evalCond evaluates e's clauses in order. When a clause's body would be
// the matching tail position, it returns done=false with next/nenv for
// the caller's trampoline to continue into; otherwise it returns a fully
// evaluated result.
func (in *Interp) evalCond(ctx context.Context, env *environment.Frame, e *Cond) (next Expr, nenv *environment.Frame, done bool, result value.Value, err error) {
	for _, clause := range e.Clauses {
		var test value.Value
		if clause.Test == nil { // else
			test = value.Bool(true)
		} else {
			test, err = in.Eval(ctx, env, clause.Test)
			if err != nil {
				return nil, nil, false, nil, err
			}
			if !value.IsTruthy(test) {
				continue
			}
		}
		if clause.Arrow {
			procv, everr := in.Eval(ctx, env, clause.Body[0])
			if everr != nil {
				return nil, nil, false, nil, everr
			}
			proc, ok := procv.(*value.Procedure)
			if !ok {
				return nil, nil, false, nil, &NotCallableError{Kind: procv.Kind().String()}
			}
			v, aerr := in.Apply(ctx, proc, []value.Value{test})
			return nil, nil, true, v, aerr
		}
		if len(clause.Body) == 0 {
			return nil, nil, true, test, nil
		}
		for _, sub := range clause.Body[:len(clause.Body)-1] {
			if _, everr := in.Eval(ctx, env, sub); everr != nil {
				return nil, nil, false, nil, everr
			}
		}
		return clause.Body[len(clause.Body)-1], env, false, nil, nil
	}
	return nil, nil, true, value.Unspecified{}, nil
}

// evalCase evaluates e's key, then matches it by eqv? against each
// clause's datums.
func (in *Interp) evalCase(ctx context.Context, env *environment.Frame, e *Case) (next Expr, done bool, result value.Value, err error) {
	key, err := in.Eval(ctx, env, e.Key)
	if err != nil {
		return nil, false, nil, err
	}
	for _, clause := range e.Clauses {
		matched := clause.IsElse
		if !matched {
			for _, d := range clause.Datums {
				if value.Operational(d, key) {
					matched = true
					break
				}
			}
		}
		if !matched {
			continue
		}
		if len(clause.Body) == 0 {
			return nil, true, value.Unspecified{}, nil
		}
		for _, sub := range clause.Body[:len(clause.Body)-1] {
			if _, everr := in.Eval(ctx, env, sub); everr != nil {
				return nil, false, nil, everr
			}
		}
		return clause.Body[len(clause.Body)-1], false, nil, nil
	}
	return nil, true, value.Unspecified{}, nil
}

// setupLet evaluates e's bindings per its LetKind and returns the frame
// and body for the caller's trampoline to continue into.
func (in *Interp) setupLet(ctx context.Context, env *environment.Frame, e *Let) (*environment.Frame, []Expr, error) {
	if e.HasName {
		return in.setupNamedLet(ctx, env, e)
	}
	child := env.Extend(env.Generation())
	switch e.Kind {
	case LetPlain:
		vals := make([]value.Value, len(e.Bindings))
		for i, b := range e.Bindings {
			v, err := in.Eval(ctx, env, b.Init)
			if err != nil {
				return nil, nil, err
			}
			vals[i] = v
		}
		for i, b := range e.Bindings {
			child.Define(b.Name, vals[i])
		}
	case LetStar:
		cur := child
		for _, b := range e.Bindings {
			v, err := in.Eval(ctx, cur, b.Init)
			if err != nil {
				return nil, nil, err
			}
			cur.Define(b.Name, v)
		}
		child = cur
	case LetRec, LetRecStar:
		for _, b := range e.Bindings {
			child.Define(b.Name, uninitSentinel{})
		}
		for _, b := range e.Bindings {
			v, err := in.Eval(ctx, child, b.Init)
			if err != nil {
				return nil, nil, err
			}
			child.Define(b.Name, v)
		}
	}
	return child, e.Body, nil
}

// setupNamedLet desugars (let name ((v e)...) body) into defining and
// immediately invoking a recursive procedure named `name` (§4.4).
func (in *Interp) setupNamedLet(ctx context.Context, env *environment.Frame, e *Let) (*environment.Frame, []Expr, error) {
	loopEnv := env.Extend(env.Generation())
	params := make([]uint64, len(e.Bindings))
	args := make([]value.Value, len(e.Bindings))
	for i, b := range e.Bindings {
		params[i] = b.Name
		v, err := in.Eval(ctx, env, b.Init)
		if err != nil {
			return nil, nil, err
		}
		args[i] = v
	}
	lam := &Lambda{Name: in.symbolName(e.Name), Params: params, Body: e.Body}
	proc := value.NewClosure(lam.Name, idsToSymbols(params), false, lam, loopEnv)
	in.allocate(proc)
	loopEnv.Define(e.Name, proc)

	callEnv := loopEnv.Extend(loopEnv.Generation())
	for i, p := range params {
		callEnv.Define(p, args[i])
	}
	return callEnv, e.Body, nil
}

// stepDo runs a do-loop to completion: it iterates in place inside its
// own loop (each iteration gets a fresh frame, no host-stack growth) and
// returns the fully-evaluated result with done=true once the test is
// satisfied. The next/nenv results are never set.
func (in *Interp) stepDo(ctx context.Context, env *environment.Frame, e *Do) (result value.Value, done bool, next Expr, nenv *environment.Frame, err error) {
	child := env.Extend(env.Generation())
	for _, b := range e.Bindings {
		v, everr := in.Eval(ctx, env, b.Init)
		if everr != nil {
			return nil, false, nil, nil, everr
		}
		child.Define(b.Name, v)
	}

	for {
		t, everr := in.Eval(ctx, child, e.Test)
		if everr != nil {
			return nil, false, nil, nil, everr
		}
		if value.IsTruthy(t) {
			var res value.Value = value.Unspecified{}
			for _, sub := range e.Result {
				res, everr = in.Eval(ctx, child, sub)
				if everr != nil {
					return nil, false, nil, nil, everr
				}
			}
			return res, true, nil, nil, nil
		}

		for _, sub := range e.Body {
			if _, everr := in.Eval(ctx, child, sub); everr != nil {
				return nil, false, nil, nil, everr
			}
		}

		steps := make([]value.Value, len(e.Bindings))
		for i, b := range e.Bindings {
			if b.Step == nil {
				v, _ := child.Lookup(b.Name)
				steps[i] = v
				continue
			}
			v, everr := in.Eval(ctx, child, b.Step)
			if everr != nil {
				return nil, false, nil, nil, everr
			}
			steps[i] = v
		}
		next := child.Extend(child.Generation())
		for i, b := range e.Bindings {
			next.Define(b.Name, steps[i])
		}
		child = next
	}
}

// evalMatch evaluates the subject and dispatches to the first clause
// whose pattern matches (and whose guard, if any, is truthy).
func (in *Interp) evalMatch(ctx context.Context, env *environment.Frame, e *Match) (next Expr, nenv *environment.Frame, done bool, result value.Value, err error) {
	e.checkOnce.Do(func() { e.checkErr = validateMatch(e.Clauses) })
	if e.checkErr != nil {
		return nil, nil, true, nil, e.checkErr
	}
	subj, err := in.Eval(ctx, env, e.Subject)
	if err != nil {
		return nil, nil, false, nil, err
	}
	for _, clause := range e.Clauses {
		bindings := make(map[uint64]value.Value)
		if !match(clause.Pattern, subj, bindings) {
			continue
		}
		child := env.Extend(env.Generation())
		for name, v := range bindings {
			child.Define(name, v)
		}
		if guard, ok := guardExprOf(clause.Pattern); ok {
			gv, everr := in.Eval(ctx, child, guard)
			if everr != nil {
				return nil, nil, false, nil, everr
			}
			if !value.IsTruthy(gv) {
				continue
			}
		}
		if len(clause.Body) == 0 {
			return nil, nil, true, value.Unspecified{}, nil
		}
		for _, sub := range clause.Body[:len(clause.Body)-1] {
			if _, everr := in.Eval(ctx, child, sub); everr != nil {
				return nil, nil, false, nil, everr
			}
		}
		return clause.Body[len(clause.Body)-1], child, false, nil, nil
	}
	return nil, nil, true, nil, &PatternError{Message: "no clause matched"}
}

// evalQuasiquote interprets tmpl at nesting depth, evaluating unquote
// escapes with Eval once depth reaches 1. Deeper nesting (multiple
// nested quasiquote) is supported for the common case of unquote/
// quasiquote alone; unquote-splicing below the outermost level is
// rebuilt structurally rather than spliced, since the host Scheme value
// it would splice is not yet evaluated at that depth.
func (in *Interp) evalQuasiquote(ctx context.Context, env *environment.Frame, tmpl Expr, depth int) (value.Value, error) {
	switch t := tmpl.(type) {
	case *Literal:
		return t.Value, nil
	case *Quote:
		return t.Datum, nil
	case *Unquote:
		if depth == 1 {
			return in.Eval(ctx, env, t.Expr)
		}
		inner, err := in.evalQuasiquote(ctx, env, t.Expr, depth-1)
		if err != nil {
			return nil, err
		}
		return in.wrapTagged("unquote", inner), nil
	case *UnquoteSplicing:
		if depth == 1 {
			// Spliced only meaningfully inside a QuasiPair; evaluated
			// alone it degrades to the evaluated list itself.
			return in.Eval(ctx, env, t.Expr)
		}
		inner, err := in.evalQuasiquote(ctx, env, t.Expr, depth-1)
		if err != nil {
			return nil, err
		}
		return in.wrapTagged("unquote-splicing", inner), nil
	case *Quasiquote:
		inner, err := in.evalQuasiquote(ctx, env, t.Template, depth+1)
		if err != nil {
			return nil, err
		}
		return in.wrapTagged("quasiquote", inner), nil
	case *QuasiPair:
		var tail value.Value = value.Nil{}
		if t.Tail != nil {
			v, err := in.evalQuasiquote(ctx, env, t.Tail, depth)
			if err != nil {
				return nil, err
			}
			tail = v
		}
		items := make([]value.Value, 0, len(t.Items))
		for _, item := range t.Items {
			if us, ok := item.(*UnquoteSplicing); ok && depth == 1 {
				v, err := in.Eval(ctx, env, us.Expr)
				if err != nil {
					return nil, err
				}
				items = append(items, value.ToSlice(v)...)
				continue
			}
			v, err := in.evalQuasiquote(ctx, env, item, depth)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		result := tail
		for i := len(items) - 1; i >= 0; i-- {
			result = value.NewPair(items[i], result)
		}
		return result, nil
	case *QuasiVector:
		items := make([]value.Value, len(t.Items))
		for i, item := range t.Items {
			v, err := in.evalQuasiquote(ctx, env, item, depth)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		vec := value.NewVector(items)
		in.allocate(vec)
		return vec, nil
	default:
		return in.Eval(ctx, env, tmpl)
	}
}

// wrapTagged builds the two-element list (tag inner), used to rebuild
// unquote/unquote-splicing/quasiquote forms encountered below the
// outermost quasiquote nesting level.
func (in *Interp) wrapTagged(tag string, inner value.Value) value.Value {
	var sym uint64
	if in.Interner != nil {
		sym = in.Interner.Intern(tag)
	}
	return value.NewPair(value.Symbol(sym), value.NewPair(inner, value.Nil{}))
}
