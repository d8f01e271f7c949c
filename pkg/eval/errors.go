package eval

import (
	"fmt"

	"github.com/gitrdm/lambdust/pkg/iocoord"
	"github.com/gitrdm/lambdust/pkg/value"
)

// ArityError is the §7 `Arity` error kind.
type ArityError struct {
	Name     string
	Min, Max int
	Got      int
	Span     *iocoord.Span
}

func (e *ArityError) Error() string {
	if e.Max < 0 {
		return fmt.Sprintf("arity error: %s expects at least %d argument(s), got %d", e.Name, e.Min, e.Got)
	}
	if e.Min == e.Max {
		return fmt.Sprintf("arity error: %s expects exactly %d argument(s), got %d", e.Name, e.Min, e.Got)
	}
	return fmt.Sprintf("arity error: %s expects %d to %d argument(s), got %d", e.Name, e.Min, e.Max, e.Got)
}

// UnboundError is the §7 `Unbound` error kind.
type UnboundError struct {
	Symbol string
	Span   *iocoord.Span
}

func (e *UnboundError) Error() string { return "unbound identifier: " + e.Symbol }

// PatternError is the §7 `Pattern` error kind: a match expression's
// clauses failed validation (an or-pattern with inconsistent variables, an
// unreachable clause, or a non-exhaustive clause set), or no clause
// matched the subject.
type PatternError struct {
	Message string
}

func (e *PatternError) Error() string { return "pattern error: " + e.Message }

// NotCallableError reports an application whose operator is not a
// procedure.
type NotCallableError struct {
	Kind string
}

func (e *NotCallableError) Error() string { return "not applicable: " + e.Kind }

// TypeError is the §7 `Type` error kind: a primitive received an argument
// of the wrong value kind (e.g. set-car! on a non-pair).
type TypeError struct {
	Proc     string
	Expected string
	Got      value.Kind
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error: %s expects %s, got %s", e.Proc, e.Expected, e.Got)
}

// UninitializedError reports a reference to a letrec-bound name before
// its initializer has run (§4.2: "references to uninitialized names
// during initializer evaluation are an error").
type UninitializedError struct {
	Symbol string
}

func (e *UninitializedError) Error() string {
	return "uninitialized identifier referenced during letrec binding: " + e.Symbol
}
