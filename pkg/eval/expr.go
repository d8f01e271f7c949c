// Package eval implements the tree-walking evaluator of spec §4.4 (C5):
// it interprets a parsed expression tree (parsing surface syntax is out
// of scope per §1 — Expr values are produced by an external parser and
// only consumed here) over a chain of environment.Frame scopes, with
// proper tail calls via a trampoline, pattern matching with
// exhaustiveness checking, and escape-only call/cc.
//
// Grounded on the teacher's Goal/ResultStream style (pkg/minikanren:
// explicit context.Context threading, closures-as-interpreters, plain
// sentinel errors) adapted from stream-of-solutions evaluation to
// single-result tree-walking evaluation.
package eval

import (
	"sync"

	"github.com/gitrdm/lambdust/pkg/iocoord"
	"github.com/gitrdm/lambdust/pkg/value"
)

// Expr is a node in a parsed expression tree. Concrete node types are
// defined below; Eval type-switches over them.
type Expr interface {
	exprNode()
	// Span returns this node's optional source span, for error reporting.
	Span() *iocoord.Span
}

type base struct {
	span *iocoord.Span
}

func (b base) exprNode()          {}
func (b base) Span() *iocoord.Span { return b.span }

// Literal is a self-evaluating datum.
type Literal struct {
	base
	Value value.Value
}

// Ident is a reference to an interned identifier.
type Ident struct {
	base
	Symbol uint64
}

// App is a procedure application: (Fn Args...).
type App struct {
	base
	Fn   Expr
	Args []Expr
}

// Lambda is a procedure literal.
type Lambda struct {
	base
	Name   string // empty for anonymous lambdas
	Params []uint64
	Rest   bool // true when the final param collects extra args
	Body   []Expr
}

// If is the conditional special form.
type If struct {
	base
	Test, Then, Else Expr // Else may be nil
}

// CondClause is one clause of a cond expression.
type CondClause struct {
	Test  Expr // nil for an `else` clause
	Arrow bool // true for a (test => proc) clause
	Body  []Expr
}

// Cond is the cond special form.
type Cond struct {
	base
	Clauses []CondClause
}

// CaseClause is one clause of a case expression.
type CaseClause struct {
	Datums []value.Value // empty (with IsElse) for an `else` clause
	IsElse bool
	Body   []Expr
}

// Case is the case special form.
type Case struct {
	base
	Key     Expr
	Clauses []CaseClause
}

// And is the short-circuiting and special form.
type And struct {
	base
	Exprs []Expr
}

// Or is the short-circuiting or special form.
type Or struct {
	base
	Exprs []Expr
}

// LetKind distinguishes let/let*/letrec/letrec*.
type LetKind int

const (
	LetPlain LetKind = iota
	LetStar
	LetRec
	LetRecStar
)

// Binding is one (name init) pair in a let-family form.
type Binding struct {
	Name uint64
	Init Expr
}

// Let is the let/let*/letrec/letrec* special form. HasName set (with the
// loop name in Name) denotes a named-let, equivalent to defining and immediately invoking a
// recursive procedure (§4.4).
type Let struct {
	base
	Kind     LetKind
	Name     uint64
	HasName  bool
	Bindings []Binding
	Body     []Expr
}

// DoBinding is one (name init step) triple in a do form; Step may be nil
// to mean "unchanged each iteration".
type DoBinding struct {
	Name uint64
	Init Expr
	Step Expr
}

// Do is the iteration special form.
type Do struct {
	base
	Bindings []DoBinding
	Test     Expr
	Result   []Expr
	Body     []Expr
}

// Begin sequences expressions, evaluating all but the last for effect.
type Begin struct {
	base
	Exprs []Expr
}

// Quote yields its datum unevaluated.
type Quote struct {
	base
	Datum value.Value
}

// Quasiquote, Unquote and UnquoteSplicing implement quasiquotation.
// Quasiquote's Template is built from nested Quasi* node values via
// ordinary Scheme pair structure; Unquote/UnquoteSplicing mark escape
// points evaluated in the enclosing environment.
type Quasiquote struct {
	base
	Template Expr
}

type Unquote struct {
	base
	Expr Expr
}

type UnquoteSplicing struct {
	base
	Expr Expr
}

// QuasiPair is a quasiquote template's list structure: Items holds each
// element (possibly an Unquote/UnquoteSplicing/nested Quasiquote), Tail
// holds the template's improper-list tail, if any (nil means a proper
// list terminated by Nil{}).
type QuasiPair struct {
	base
	Items []Expr
	Tail  Expr
}

// QuasiVector is a quasiquote template's vector structure.
type QuasiVector struct {
	base
	Items []Expr
}

// Set is the set! special form.
type Set struct {
	base
	Name uint64
	Val  Expr
}

// Define is a definition; at top level it becomes a transactional global
// definition (§4.6), in any other position it defines in the current
// frame.
type Define struct {
	base
	Name uint64
	Val  Expr
}

// Pattern is a match pattern (§4.4).
type Pattern interface {
	patternNode()
}

type pbase struct{}

func (pbase) patternNode() {}

// WildcardPattern matches anything and binds nothing.
type WildcardPattern struct{ pbase }

// VarPattern matches anything and binds it to Name.
type VarPattern struct {
	pbase
	Name uint64
}

// LiteralPattern matches a value by operational (eqv?) equality.
type LiteralPattern struct {
	pbase
	Value value.Value
}

// ConstructorPattern matches a record of the given type tag, recursing
// into Fields positionally.
type ConstructorPattern struct {
	pbase
	Tag    string
	Fields []Pattern
}

// TuplePattern matches a vector of exactly len(Elems) elements.
type TuplePattern struct {
	pbase
	Elems []Pattern
}

// RecordFieldPattern matches one field of a record by its already-
// resolved positional index (field-name-to-index resolution happens in
// the external pattern compiler, out of scope per §1).
type RecordFieldPattern struct {
	Index   int
	Pattern Pattern
}

// RecordPattern matches selected fields of a record of type Tag by
// positional index. Rest and HasRest are carried on the node, but the
// matcher does not bind the remaining fields to Rest.
type RecordPattern struct {
	pbase
	Tag     string
	Fields  []RecordFieldPattern
	Rest    uint64
	HasRest bool
}

// OrPattern matches if any alternative matches; all alternatives must
// bind the same set of variables (§4.4 exhaustiveness/redundancy rules).
type OrPattern struct {
	pbase
	Alts []Pattern
}

// GuardPattern matches Inner and additionally requires Cond to evaluate
// truthy with the clause's bindings in scope. Cond is evaluated only when
// the GuardPattern is a clause's top-level pattern; a GuardPattern nested
// inside another pattern matches as Inner alone.
type GuardPattern struct {
	pbase
	Inner Pattern
	Cond  Expr
}

// MatchClause is one arm of a Match expression.
type MatchClause struct {
	Pattern Pattern
	Body    []Expr
}

// Match is the pattern-match special form. checkOnce/checkErr cache the
// result of validating Clauses for exhaustiveness, redundancy, and
// or-pattern variable consistency (§4.4, §8 property 8) across repeated
// evaluations of the same node, e.g. inside a loop body.
type Match struct {
	base
	Subject Expr
	Clauses []MatchClause

	checkOnce sync.Once
	checkErr  error
}

// NewLiteral, NewIdent etc. are convenience constructors used by tests
// and by any external parser adapter wiring into this package.
func NewLiteral(v value.Value, span *iocoord.Span) *Literal { return &Literal{base{span}, v} }
func NewIdent(sym uint64, span *iocoord.Span) *Ident        { return &Ident{base{span}, sym} }
