package value

import "fmt"

// Numeric arithmetic implements §4.1's "Numeric semantics": exact integer
// arithmetic closed under +,-,*; exact division producing a rational when
// not evenly divisible; mixed exact/inexact operations promoting to
// inexact; rationals normalized to lowest terms on construction (done in
// NewRational); NaN ordering is always false.

func toFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case Int:
		return float64(n), true
	case Float:
		return float64(n), true
	case Rational:
		return float64(n.Num) / float64(n.Den), true
	}
	return 0, false
}

func isNumeric(v Value) bool {
	switch v.(type) {
	case Int, Float, Rational, Complex:
		return true
	}
	return false
}

// Add computes a+b with exact/inexact promotion.
func Add(a, b Value) (Value, error) {
	return binaryNumeric(a, b, "add",
		func(x, y int64) Value { return Int(x + y) },
		func(x, y Rational) Value { return NewRational(x.Num*y.Den+y.Num*x.Den, x.Den*y.Den) },
		func(x, y float64) Value { return Float(x + y) },
	)
}

// Sub computes a-b with exact/inexact promotion.
func Sub(a, b Value) (Value, error) {
	return binaryNumeric(a, b, "subtract",
		func(x, y int64) Value { return Int(x - y) },
		func(x, y Rational) Value { return NewRational(x.Num*y.Den-y.Num*x.Den, x.Den*y.Den) },
		func(x, y float64) Value { return Float(x - y) },
	)
}

// Mul computes a*b with exact/inexact promotion.
func Mul(a, b Value) (Value, error) {
	return binaryNumeric(a, b, "multiply",
		func(x, y int64) Value { return Int(x * y) },
		func(x, y Rational) Value { return NewRational(x.Num*y.Num, x.Den*y.Den) },
		func(x, y float64) Value { return Float(x * y) },
	)
}

// Div computes a/b. Exact integer division that is not even produces a
// Rational rather than truncating (§4.1). Division by exact zero is a
// DivisionError (§7's `Division` kind).
func Div(a, b Value) (Value, error) {
	if isExactZero(b) {
		return nil, &DivisionError{Message: "division by zero"}
	}
	switch av := a.(type) {
	case Int:
		switch bv := b.(type) {
		case Int:
			return NewRational(int64(av), int64(bv)), nil
		case Rational:
			return NewRational(int64(av)*bv.Den, bv.Num), nil
		}
	case Rational:
		switch bv := b.(type) {
		case Int:
			return NewRational(av.Num, av.Den*int64(bv)), nil
		case Rational:
			return NewRational(av.Num*bv.Den, av.Den*bv.Num), nil
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return nil, fmt.Errorf("value: division requires numeric operands, got %s / %s", a.Kind(), b.Kind())
	}
	return Float(af / bf), nil
}

func isExactZero(v Value) bool {
	switch n := v.(type) {
	case Int:
		return n == 0
	case Rational:
		return n.Num == 0
	}
	return false
}

// DivisionError is the §7 `Division` error kind.
type DivisionError struct{ Message string }

func (e *DivisionError) Error() string { return "division error: " + e.Message }

func binaryNumeric(a, b Value, op string,
	intOp func(x, y int64) Value,
	ratOp func(x, y Rational) Value,
	floatOp func(x, y float64) Value,
) (Value, error) {
	ai, aIsInt := a.(Int)
	bi, bIsInt := b.(Int)
	if aIsInt && bIsInt {
		return intOp(int64(ai), int64(bi)), nil
	}

	_, aIsFloat := a.(Float)
	_, bIsFloat := b.(Float)
	if !aIsFloat && !bIsFloat {
		ar, aIsRat := asRational(a)
		br, bIsRat := asRational(b)
		if aIsRat && bIsRat {
			return ratOp(ar, br), nil
		}
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return nil, fmt.Errorf("value: cannot %s non-numeric operand (%s, %s)", op, a.Kind(), b.Kind())
	}
	return floatOp(af, bf), nil
}

func asRational(v Value) (Rational, bool) {
	switch n := v.(type) {
	case Int:
		return Rational{Num: int64(n), Den: 1}, true
	case Rational:
		return n, true
	}
	return Rational{}, false
}

// Compare returns -1, 0, 1 for a<b, a==b, a>b. ok is false when either
// operand is non-numeric or NaN is involved (NaN orders false against
// everything, per §4.1).
func Compare(a, b Value) (cmp int, ok bool) {
	if af, isF := a.(Float); isF && af.IsNaN() {
		return 0, false
	}
	if bf, isF := b.(Float); isF && bf.IsNaN() {
		return 0, false
	}
	ar, aIsRat := asRational(a)
	br, bIsRat := asRational(b)
	if aIsRat && bIsRat {
		lhs := ar.Num * br.Den
		rhs := br.Num * ar.Den
		switch {
		case lhs < rhs:
			return -1, true
		case lhs > rhs:
			return 1, true
		default:
			return 0, true
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}
