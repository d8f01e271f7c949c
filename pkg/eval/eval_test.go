package eval

import (
	"context"
	"testing"

	"github.com/gitrdm/lambdust/pkg/environment"
	"github.com/gitrdm/lambdust/pkg/gc"
	"github.com/gitrdm/lambdust/pkg/intern"
	"github.com/gitrdm/lambdust/pkg/value"
)

func newTestInterp() (*Interp, *environment.Frame, *intern.Table) {
	tbl := intern.New()
	in := New("t0", nil, tbl, nil, nil)
	top := environment.New(0)
	in.Top(top)
	return in, top, tbl
}

func sym(tbl *intern.Table, name string) uint64 { return tbl.Intern(name) }

func lit(v value.Value) Expr { return &Literal{Value: v} }

// S1: (if #t 1 2) -> 1
func TestEvalIf(t *testing.T) {
	in, top, _ := newTestInterp()
	e := &If{Test: lit(value.Bool(true)), Then: lit(value.Int(1)), Else: lit(value.Int(2))}
	v, err := in.Eval(context.Background(), top, e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := v.(value.Int)
	if !ok || n != 1 {
		t.Fatalf("got %#v, want 1", v)
	}
}

// S2: let*-shadowing — (let* ((x 1) (x (+ x 1))) x) -> 2
func TestEvalLetStarShadowing(t *testing.T) {
	in, top, tbl := newTestInterp()
	x := sym(tbl, "x")
	plus := sym(tbl, "+")
	top.Define(plus, builtinPlus())

	e := &Let{
		Kind: LetStar,
		Bindings: []Binding{
			{Name: x, Init: lit(value.Int(1))},
			{Name: x, Init: &App{Fn: &Ident{Symbol: plus}, Args: []Expr{&Ident{Symbol: x}, lit(value.Int(1))}}},
		},
		Body: []Expr{&Ident{Symbol: x}},
	}
	v, err := in.Eval(context.Background(), top, e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := v.(value.Int); !ok || n != 2 {
		t.Fatalf("got %#v, want 2", v)
	}
}

// S3: letrec factorial of 5 -> 120
func TestEvalLetrecFactorial(t *testing.T) {
	in, top, tbl := newTestInterp()
	fact := sym(tbl, "fact")
	n := sym(tbl, "n")
	minus := sym(tbl, "-")
	mul := sym(tbl, "*")
	top.Define(minus, builtinMinus())
	top.Define(mul, builtinMul())

	body := &If{
		Test: &App{Fn: &Ident{Symbol: sym(tbl, "zero?")}, Args: []Expr{&Ident{Symbol: n}}},
		Then: lit(value.Int(1)),
		Else: &App{
			Fn:   &Ident{Symbol: mul},
			Args: []Expr{&Ident{Symbol: n}, &App{Fn: &Ident{Symbol: fact}, Args: []Expr{&App{Fn: &Ident{Symbol: minus}, Args: []Expr{&Ident{Symbol: n}, lit(value.Int(1))}}}}},
		},
	}
	top.Define(sym(tbl, "zero?"), value.NewPrimitive("zero?", 1, 1, func(args []value.Value) (value.Value, error) {
		n, ok := args[0].(value.Int)
		return value.Bool(ok && n == 0), nil
	}))

	e := &Let{
		Kind:     LetRec,
		Bindings: []Binding{{Name: fact, Init: &Lambda{Name: "fact", Params: []uint64{n}, Body: []Expr{body}}}},
		Body:     []Expr{&App{Fn: &Ident{Symbol: fact}, Args: []Expr{lit(value.Int(5))}}},
	}
	v, err := in.Eval(context.Background(), top, e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := v.(value.Int); !ok || n != 120 {
		t.Fatalf("got %#v, want 120", v)
	}
}

// S4: (call/cc (lambda (k) (+ 1 2 (k 42) 3))) -> 42
func TestCallCCEscape(t *testing.T) {
	in, top, tbl := newTestInterp()
	plus := sym(tbl, "+")
	top.Define(plus, builtinPlus())
	top.Define(sym(tbl, "call/cc"), in.BuiltinCallCC())

	k := sym(tbl, "k")
	lam := &Lambda{
		Params: []uint64{k},
		Body: []Expr{&App{
			Fn: &Ident{Symbol: plus},
			Args: []Expr{
				lit(value.Int(1)),
				lit(value.Int(2)),
				&App{Fn: &Ident{Symbol: k}, Args: []Expr{lit(value.Int(42))}},
				lit(value.Int(3)),
			},
		}},
	}
	e := &App{Fn: &Ident{Symbol: sym(tbl, "call/cc")}, Args: []Expr{lam}}
	v, err := in.Eval(context.Background(), top, e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := v.(value.Int); !ok || n != 42 {
		t.Fatalf("got %#v, want 42", v)
	}
}

// S10: pattern match with a wildcard fallback is exhaustive, and a clause
// placed after a leading wildcard is reported as redundant.
func TestMatchExhaustiveness(t *testing.T) {
	clauses := []MatchClause{
		{Pattern: &LiteralPattern{Value: value.Int(0)}, Body: []Expr{lit(value.Int(100))}},
		{Pattern: &WildcardPattern{}, Body: []Expr{lit(value.Int(200))}},
	}
	if !CheckExhaustive(clauses) {
		t.Fatal("expected match to be exhaustive due to trailing wildcard")
	}
	if r := CheckRedundant(clauses); r != -1 {
		t.Fatalf("expected no redundant clause, got index %d", r)
	}

	redundant := []MatchClause{
		{Pattern: &WildcardPattern{}, Body: []Expr{lit(value.Int(1))}},
		{Pattern: &LiteralPattern{Value: value.Int(0)}, Body: []Expr{lit(value.Int(2))}},
	}
	if r := CheckRedundant(redundant); r != 1 {
		t.Fatalf("expected clause 1 to be redundant, got %d", r)
	}
}

func TestEvalMatchDispatchesFirstSatisfyingClause(t *testing.T) {
	in, top, tbl := newTestInterp()
	subj := sym(tbl, "subj")
	top.Define(subj, value.Int(7))

	e := &Match{
		Subject: &Ident{Symbol: subj},
		Clauses: []MatchClause{
			{Pattern: &LiteralPattern{Value: value.Int(0)}, Body: []Expr{lit(value.Int(-1))}},
			{Pattern: &VarPattern{Name: sym(tbl, "n")}, Body: []Expr{&Ident{Symbol: sym(tbl, "n")}}},
		},
	}
	v, err := in.Eval(context.Background(), top, e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := v.(value.Int); !ok || n != 7 {
		t.Fatalf("got %#v, want 7", v)
	}
}

// S6 (proper tail calls): a self-tail-recursive countdown of a large N
// must not overflow the host stack, since Eval's trampoline reuses its
// frame across the tail call rather than recursing.
func TestProperTailCallsBoundedStack(t *testing.T) {
	in, top, tbl := newTestInterp()
	loop := sym(tbl, "loop")
	n := sym(tbl, "n")
	minus := sym(tbl, "-")
	top.Define(minus, builtinMinus())
	top.Define(sym(tbl, "zero?"), value.NewPrimitive("zero?", 1, 1, func(args []value.Value) (value.Value, error) {
		v, ok := args[0].(value.Int)
		return value.Bool(ok && v == 0), nil
	}))

	body := &If{
		Test: &App{Fn: &Ident{Symbol: sym(tbl, "zero?")}, Args: []Expr{&Ident{Symbol: n}}},
		Then: &Ident{Symbol: n},
		Else: &App{Fn: &Ident{Symbol: loop}, Args: []Expr{&App{Fn: &Ident{Symbol: minus}, Args: []Expr{&Ident{Symbol: n}, lit(value.Int(1))}}}},
	}
	e := &Let{
		Kind:     LetRec,
		Bindings: []Binding{{Name: loop, Init: &Lambda{Name: "loop", Params: []uint64{n}, Body: []Expr{body}}}},
		Body:     []Expr{&App{Fn: &Ident{Symbol: loop}, Args: []Expr{lit(value.Int(500000))}}},
	}
	v, err := in.Eval(context.Background(), top, e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := v.(value.Int); !ok || n != 0 {
		t.Fatalf("got %#v, want 0", v)
	}
}

func TestDynamicWindRunsAfterOnContinuationEscape(t *testing.T) {
	in, top, tbl := newTestInterp()
	top.Define(sym(tbl, "call/cc"), in.BuiltinCallCC())
	top.Define(sym(tbl, "dynamic-wind"), in.BuiltinDynamicWind())

	var ranAfter bool
	before := value.NewPrimitive("before", 0, 0, func([]value.Value) (value.Value, error) { return value.Unspecified{}, nil })
	after := value.NewPrimitive("after", 0, 0, func([]value.Value) (value.Value, error) {
		ranAfter = true
		return value.Unspecified{}, nil
	})

	k := sym(tbl, "k")
	thunkLam := &Lambda{Params: nil, Body: []Expr{&App{Fn: &Ident{Symbol: k}, Args: []Expr{lit(value.Int(9))}}}}

	outerLam := &Lambda{
		Params: []uint64{k},
		Body: []Expr{
			&App{
				Fn: &Ident{Symbol: sym(tbl, "dynamic-wind")},
				Args: []Expr{
					litProc(before),
					thunkLam,
					litProc(after),
				},
			},
		},
	}
	e := &App{Fn: &Ident{Symbol: sym(tbl, "call/cc")}, Args: []Expr{outerLam}}
	v, err := in.Eval(context.Background(), top, e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := v.(value.Int); !ok || n != 9 {
		t.Fatalf("got %#v, want 9", v)
	}
	if !ranAfter {
		t.Fatal("expected dynamic-wind's after thunk to run during the continuation escape")
	}
}

// S7 (set-car!/set-cdr!): each primitive mutates exactly the one cell it
// names, driven through the evaluator the way a Scheme program would
// (§8 property 3).
func TestSetCarMutatesExactlyCarCell(t *testing.T) {
	in, top, tbl := newTestInterp()
	p := value.NewPair(value.Int(1), value.Int(2))
	pSym := sym(tbl, "p")
	top.Define(pSym, p)
	top.Define(sym(tbl, "set-car!"), in.BuiltinSetCar())

	e := &App{Fn: &Ident{Symbol: sym(tbl, "set-car!")}, Args: []Expr{&Ident{Symbol: pSym}, lit(value.Int(99))}}
	if _, err := in.Eval(context.Background(), top, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := p.Car().(value.Int); !ok || n != 99 {
		t.Fatalf("got car %#v, want 99", p.Car())
	}
	if n, ok := p.Cdr().(value.Int); !ok || n != 2 {
		t.Fatalf("set-car! must leave cdr untouched, got %#v", p.Cdr())
	}
}

func TestSetCdrMutatesExactlyCdrCell(t *testing.T) {
	in, top, tbl := newTestInterp()
	p := value.NewPair(value.Int(1), value.Int(2))
	pSym := sym(tbl, "p")
	top.Define(pSym, p)
	top.Define(sym(tbl, "set-cdr!"), in.BuiltinSetCdr())

	e := &App{Fn: &Ident{Symbol: sym(tbl, "set-cdr!")}, Args: []Expr{&Ident{Symbol: pSym}, lit(value.Int(99))}}
	if _, err := in.Eval(context.Background(), top, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := p.Cdr().(value.Int); !ok || n != 99 {
		t.Fatalf("got cdr %#v, want 99", p.Cdr())
	}
	if n, ok := p.Car().(value.Int); !ok || n != 1 {
		t.Fatalf("set-cdr! must leave car untouched, got %#v", p.Car())
	}
}

func TestVectorSetMutatesExactlyOneSlot(t *testing.T) {
	in, top, tbl := newTestInterp()
	vec := value.NewVector([]value.Value{value.Int(1), value.Int(2), value.Int(3)})
	vSym := sym(tbl, "v")
	top.Define(vSym, vec)
	top.Define(sym(tbl, "vector-set!"), in.BuiltinVectorSet())

	e := &App{Fn: &Ident{Symbol: sym(tbl, "vector-set!")}, Args: []Expr{&Ident{Symbol: vSym}, lit(value.Int(1)), lit(value.Int(99))}}
	if _, err := in.Eval(context.Background(), top, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, want := range []int64{1, 99, 3} {
		v, err := vec.Ref(i)
		if err != nil {
			t.Fatalf("Ref(%d): %v", i, err)
		}
		if n, ok := v.(value.Int); !ok || int64(n) != want {
			t.Fatalf("slot %d: got %#v, want %d", i, v, want)
		}
	}
}

// TestSetCarThroughEvaluatorFeedsRememberedSet confirms set-car! notifies
// the heap's write barrier, so a mutation made through real evaluation —
// not a direct Go call into package value — is what keeps the Old->Young
// remembered set (package gc) populated.
func TestSetCarThroughEvaluatorFeedsRememberedSet(t *testing.T) {
	heap := gc.NewHeap()
	tbl := intern.New()
	in := New("t0", heap, tbl, nil, nil)
	top := environment.New(0)
	in.Top(top)

	parent := value.NewPair(value.Nil{}, value.Nil{})
	parent.Header().SetGeneration(1)
	child := value.NewPair(value.Int(1), value.Nil{})
	if err := heap.Allocate(child); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pSym := tbl.Intern("p")
	top.Define(pSym, parent)
	top.Define(tbl.Intern("set-car!"), in.BuiltinSetCar())

	e := &App{Fn: &Ident{Symbol: tbl.Intern("set-car!")}, Args: []Expr{&Ident{Symbol: pSym}, lit(child)}}
	if _, err := in.Eval(context.Background(), top, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	heap.CollectYoung()
	found := false
	for _, e := range heap.Young() {
		if e == value.HeapObject(child) {
			found = true
		}
	}
	if !found {
		t.Error("expected the Old parent's set-car! write to be remembered, keeping its Young child alive across a collection")
	}
}

func litProc(p *value.Procedure) Expr { return &Literal{Value: p} }

func builtinPlus() *value.Procedure {
	return value.NewPrimitive("+", 0, -1, func(args []value.Value) (value.Value, error) {
		var sum value.Int
		for _, a := range args {
			n, ok := a.(value.Int)
			if !ok {
				return nil, &NotCallableError{Kind: "+ expects integers"}
			}
			sum += n
		}
		return sum, nil
	})
}

func builtinMinus() *value.Procedure {
	return value.NewPrimitive("-", 1, -1, func(args []value.Value) (value.Value, error) {
		first, ok := args[0].(value.Int)
		if !ok {
			return nil, &NotCallableError{Kind: "- expects integers"}
		}
		if len(args) == 1 {
			return -first, nil
		}
		result := first
		for _, a := range args[1:] {
			n, ok := a.(value.Int)
			if !ok {
				return nil, &NotCallableError{Kind: "- expects integers"}
			}
			result -= n
		}
		return result, nil
	})
}

func builtinMul() *value.Procedure {
	return value.NewPrimitive("*", 0, -1, func(args []value.Value) (value.Value, error) {
		result := value.Int(1)
		for _, a := range args {
			n, ok := a.(value.Int)
			if !ok {
				return nil, &NotCallableError{Kind: "* expects integers"}
			}
			result *= n
		}
		return result, nil
	})
}
