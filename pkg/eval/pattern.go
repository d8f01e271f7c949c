package eval

import "github.com/gitrdm/lambdust/pkg/value"

// match attempts to match v against pat, accumulating bindings into out.
// It reports whether the match succeeded; on failure out may have been
// partially populated and must be discarded by the caller.
func match(pat Pattern, v value.Value, out map[uint64]value.Value) bool {
	switch p := pat.(type) {
	case *WildcardPattern:
		return true
	case *VarPattern:
		out[p.Name] = v
		return true
	case *LiteralPattern:
		return value.Operational(p.Value, v)
	case *TuplePattern:
		vec, ok := v.(*value.Vector)
		if !ok {
			return false
		}
		n, err := value.VectorLen(vec)
		if err != nil || n != len(p.Elems) {
			return false
		}
		for i, ep := range p.Elems {
			ev, err := value.VectorRef(vec, i)
			if err != nil || !match(ep, ev, out) {
				return false
			}
		}
		return true
	case *ConstructorPattern:
		rec, ok := v.(*value.Record)
		if !ok || rec.TypeName() != p.Tag || rec.FieldCount() != len(p.Fields) {
			return false
		}
		for i, fp := range p.Fields {
			fv, err := rec.Field(i)
			if err != nil || !match(fp, fv, out) {
				return false
			}
		}
		return true
	case *RecordPattern:
		rec, ok := v.(*value.Record)
		if !ok || rec.TypeName() != p.Tag {
			return false
		}
		for _, f := range p.Fields {
			fv, err := rec.Field(f.Index)
			if err != nil || !match(f.Pattern, fv, out) {
				return false
			}
		}
		return true
	case *OrPattern:
		for _, alt := range p.Alts {
			trial := make(map[uint64]value.Value, len(out))
			for k, v := range out {
				trial[k] = v
			}
			if match(alt, v, trial) {
				for k, v := range trial {
					out[k] = v
				}
				return true
			}
		}
		return false
	case *GuardPattern:
		return match(p.Inner, v, out)
	default:
		return false
	}
}

// guardExprOf returns the guard expression attached to pat, if pat itself
// is a GuardPattern; guards nested inside other patterns are not
// returned. evalMatch handles evaluating it with bindings in scope.
func guardExprOf(pat Pattern) (Expr, bool) {
	if g, ok := pat.(*GuardPattern); ok {
		return g.Cond, true
	}
	return nil, false
}

// irrefutable reports whether pat always matches (wildcard, bare
// variable, or an or-pattern all of whose alternatives are irrefutable).
func irrefutable(pat Pattern) bool {
	switch p := pat.(type) {
	case *WildcardPattern, *VarPattern:
		return true
	case *OrPattern:
		for _, alt := range p.Alts {
			if !irrefutable(alt) {
				return false
			}
		}
		return len(p.Alts) > 0
	default:
		return false
	}
}

// CheckExhaustive reports whether clauses form an exhaustive match: any
// clause with an irrefutable, unguarded pattern makes the whole match
// exhaustive regardless of position (§4.4, §8 property 8).
func CheckExhaustive(clauses []MatchClause) bool {
	for _, c := range clauses {
		if _, guarded := guardExprOf(c.Pattern); guarded {
			continue
		}
		if irrefutable(c.Pattern) {
			return true
		}
	}
	return false
}

// subsumes reports whether every value matched by b is also matched by
// a, conservatively: only irrefutable patterns (wildcard, variable, or an
// or-pattern made only of those) are recognized as subsuming anything,
// matching the spec's "irrefutable clause" notion of redundancy.
func subsumes(a, b Pattern) bool {
	return irrefutable(a)
}

// CheckRedundant returns the index of the first clause made unreachable
// by an earlier, unguarded, subsuming clause, or -1 if none is redundant
// (§4.4, §8 property 8).
func CheckRedundant(clauses []MatchClause) int {
	for i := range clauses {
		if _, guarded := guardExprOf(clauses[i].Pattern); guarded {
			continue
		}
		for j := 0; j < i; j++ {
			if _, guarded := guardExprOf(clauses[j].Pattern); guarded {
				continue
			}
			if subsumes(clauses[j].Pattern, clauses[i].Pattern) {
				return i
			}
		}
	}
	return -1
}

// varsOf collects every variable an or-pattern's alternative binds, for
// the "variables across or-branches must bind identically" rule.
func varsOf(pat Pattern, out map[uint64]bool) {
	switch p := pat.(type) {
	case *VarPattern:
		out[p.Name] = true
	case *ConstructorPattern:
		for _, f := range p.Fields {
			varsOf(f, out)
		}
	case *TuplePattern:
		for _, f := range p.Elems {
			varsOf(f, out)
		}
	case *RecordPattern:
		for _, f := range p.Fields {
			varsOf(f.Pattern, out)
		}
	case *OrPattern:
		for _, alt := range p.Alts {
			varsOf(alt, out)
		}
	case *GuardPattern:
		varsOf(p.Inner, out)
	}
}

// CheckOrPatternVars reports whether every alternative of an or-pattern
// binds exactly the same variable set (§4.4).
func CheckOrPatternVars(p *OrPattern) bool {
	if len(p.Alts) == 0 {
		return true
	}
	first := make(map[uint64]bool)
	varsOf(p.Alts[0], first)
	for _, alt := range p.Alts[1:] {
		next := make(map[uint64]bool)
		varsOf(alt, next)
		if len(next) != len(first) {
			return false
		}
		for k := range first {
			if !next[k] {
				return false
			}
		}
	}
	return true
}

// collectOrPatterns appends every OrPattern reachable from pat, including
// ones nested inside tuple/constructor/record/guard patterns, so
// validateMatch can check or-pattern variable parity wherever it occurs
// in a clause, not only at a clause's top level.
func collectOrPatterns(pat Pattern, out *[]*OrPattern) {
	switch p := pat.(type) {
	case *OrPattern:
		*out = append(*out, p)
		for _, alt := range p.Alts {
			collectOrPatterns(alt, out)
		}
	case *ConstructorPattern:
		for _, f := range p.Fields {
			collectOrPatterns(f, out)
		}
	case *TuplePattern:
		for _, f := range p.Elems {
			collectOrPatterns(f, out)
		}
	case *RecordPattern:
		for _, f := range p.Fields {
			collectOrPatterns(f.Pattern, out)
		}
	case *GuardPattern:
		collectOrPatterns(p.Inner, out)
	}
}

// validateMatch checks clauses for or-pattern variable consistency, then
// redundancy, then exhaustiveness (§4.4, §8 property 8), returning a
// *PatternError describing the first violation found, or nil if the
// match is well formed. An empty clause list passes the first two checks
// vacuously and is rejected as non-exhaustive.
func validateMatch(clauses []MatchClause) error {
	for _, c := range clauses {
		var ors []*OrPattern
		collectOrPatterns(c.Pattern, &ors)
		for _, or := range ors {
			if !CheckOrPatternVars(or) {
				return &PatternError{Message: "or-pattern alternatives bind different variable sets"}
			}
		}
	}
	if i := CheckRedundant(clauses); i >= 0 {
		return &PatternError{Message: "match clause is unreachable: an earlier clause already covers every value it matches"}
	}
	if !CheckExhaustive(clauses) {
		return &PatternError{Message: "match is not exhaustive: no clause covers every remaining case"}
	}
	return nil
}
