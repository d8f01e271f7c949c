package value

// Equal implements *structural* equality (§4.1): recursive comparison for
// pairs/vectors/records/strings, scalar comparison for immediates, with
// cycle detection via a visited-pair set keyed by mutable-object identity
// so Equal always terminates on cyclic structures. NaN is never equal to
// anything, including itself.
func Equal(a, b Value) bool {
	return equal(a, b, make(map[[2]interface{}]bool))
}

func equal(a, b Value, visited map[[2]interface{}]bool) bool {
	if af, ok := a.(Float); ok && af.IsNaN() {
		return false
	}
	if bf, ok := b.(Float); ok && bf.IsNaN() {
		return false
	}

	switch av := a.(type) {
	case Nil:
		_, ok := b.(Nil)
		return ok
	case Unspecified:
		_, ok := b.(Unspecified)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Float:
			return float64(av) == float64(bv)
		case Rational:
			return bv.Den == 1 && int64(av) == bv.Num
		}
		return false
	case Float:
		switch bv := b.(type) {
		case Float:
			return float64(av) == float64(bv)
		case Int:
			return float64(av) == float64(bv)
		}
		return false
	case Rational:
		switch bv := b.(type) {
		case Rational:
			return av.Num == bv.Num && av.Den == bv.Den
		case Int:
			return av.Den == 1 && av.Num == int64(bv)
		}
		return false
	case Complex:
		bv, ok := b.(Complex)
		return ok && av.Re == bv.Re && av.Im == bv.Im
	case Char:
		bv, ok := b.(Char)
		return ok && av == bv
	case Symbol:
		bv, ok := b.(Symbol)
		return ok && av == bv
	case *String:
		bv, ok := b.(*String)
		return ok && av.data == bv.data
	case *Bytevector:
		bv, ok := b.(*Bytevector)
		if !ok || len(av.data) != len(bv.data) {
			return false
		}
		for i := range av.data {
			if av.data[i] != bv.data[i] {
				return false
			}
		}
		return true
	case *Pair:
		bv, ok := b.(*Pair)
		if !ok {
			return false
		}
		key := [2]interface{}{av, bv}
		if visited[key] {
			return true
		}
		visited[key] = true
		return equal(av.Car(), bv.Car(), visited) && equal(av.Cdr(), bv.Cdr(), visited)
	case *Vector:
		bv, ok := b.(*Vector)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		key := [2]interface{}{av, bv}
		if visited[key] {
			return true
		}
		visited[key] = true
		for i := 0; i < av.Len(); i++ {
			ai, _ := av.Ref(i)
			bi, _ := bv.Ref(i)
			if !equal(ai, bi, visited) {
				return false
			}
		}
		return true
	case *Record:
		bv, ok := b.(*Record)
		if !ok || av.typeID != bv.typeID || len(av.fields) != len(bv.fields) {
			return false
		}
		key := [2]interface{}{av, bv}
		if visited[key] {
			return true
		}
		visited[key] = true
		for i := range av.fields {
			if !equal(av.fields[i], bv.fields[i], visited) {
				return false
			}
		}
		return true
	default:
		// Mutable-by-identity objects with no defined structural form
		// (hash tables, ports, promises, continuations, procedures)
		// fall back to operational equality.
		return Operational(a, b)
	}
}

// Operational implements same-interior-identity equality for mutable
// objects and same-scalar equality for immediates (Scheme's `eqv?`).
func Operational(a, b Value) bool {
	switch av := a.(type) {
	case Nil, Unspecified, Bool, Int, Char, Symbol, Rational, Complex:
		return a == b
	case Float:
		bv, ok := b.(Float)
		return ok && !av.IsNaN() && !bv.IsNaN() && av == bv
	default:
		return Pointer(a, b)
	}
}

// Pointer implements identity equality for mutable objects (Scheme's
// `eq?` restricted to the heap variants): true only when both values are
// the same Go pointer.
func Pointer(a, b Value) bool {
	ao, aok := a.(HeapObject)
	bo, bok := b.(HeapObject)
	if aok && bok {
		return ao == bo
	}
	if !aok && !bok {
		return Operational(a, b)
	}
	return false
}

// OperationalKey produces a comparable Go value suitable as a map key that
// respects Operational equality: immediates map to themselves, heap
// objects map to their pointer identity.
func OperationalKey(v Value) interface{} {
	if ho, ok := v.(HeapObject); ok {
		return ho
	}
	return v
}
