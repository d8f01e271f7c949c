package value

// LengthResult is returned by ListLength to distinguish a well-defined
// length from the "improper" signal §4.1 requires for improper or cyclic
// lists.
type LengthResult struct {
	Length  int
	Proper  bool // false for improper lists and detected cycles
}

// ListLength walks a chain of pairs and returns its length, detecting
// cycles with Floyd's tortoise-and-hare algorithm (required by §4.1 when
// structural bounds can't be relied on) rather than looping forever.
func ListLength(v Value) LengthResult {
	slow, fast := v, v
	n := 0
	for {
		fp, ok := fast.(*Pair)
		if !ok {
			if _, isNil := fast.(Nil); isNil {
				return LengthResult{Length: n, Proper: true}
			}
			return LengthResult{Proper: false}
		}
		fast = fp.Cdr()
		n++

		fp2, ok := fast.(*Pair)
		if !ok {
			if _, isNil := fast.(Nil); isNil {
				return LengthResult{Length: n, Proper: true}
			}
			return LengthResult{Proper: false}
		}
		fast = fp2.Cdr()
		n++

		sp := slow.(*Pair)
		slow = sp.Cdr()

		if fast == slow {
			return LengthResult{Proper: false} // cycle
		}
	}
}

// IsList reports whether v is a proper, finite list.
func IsList(v Value) bool {
	r := ListLength(v)
	return r.Proper
}

// Nth returns the n-th element (0-indexed) of a proper list prefix,
// walking at most n cdrs.
func Nth(v Value, n int) (Value, bool) {
	for i := 0; i < n; i++ {
		p, ok := v.(*Pair)
		if !ok {
			return nil, false
		}
		v = p.Cdr()
	}
	p, ok := v.(*Pair)
	if !ok {
		return nil, false
	}
	return p.Car(), true
}

// ToVector converts a proper list to a Vector. Callers must check IsList
// first if they need to distinguish "empty result from improper list"
// from "empty result from the empty list".
func ToVector(v Value) *Vector {
	var slots []Value
	for {
		p, ok := v.(*Pair)
		if !ok {
			break
		}
		slots = append(slots, p.Car())
		v = p.Cdr()
	}
	return NewVector(slots)
}

// FromVector converts a Vector back into a freshly-consed proper list.
// ToVector(FromVector(vec)) and FromVector(ToVector(list)) round-trip
// structurally (§8 property 2).
func FromVector(v *Vector) Value {
	var result Value = Nil{}
	for i := v.Len() - 1; i >= 0; i-- {
		elt, _ := v.Ref(i)
		result = NewPair(elt, result)
	}
	return result
}

// FromSlice is a convenience constructor building a proper list from a Go
// slice in order.
func FromSlice(vals []Value) Value {
	var result Value = Nil{}
	for i := len(vals) - 1; i >= 0; i-- {
		result = NewPair(vals[i], result)
	}
	return result
}

// ToSlice collects the proper-list prefix of v into a Go slice. It stops
// at the first non-pair cdr, so callers should check IsList first when the
// distinction matters.
func ToSlice(v Value) []Value {
	var out []Value
	for {
		p, ok := v.(*Pair)
		if !ok {
			break
		}
		out = append(out, p.Car())
		v = p.Cdr()
	}
	return out
}
