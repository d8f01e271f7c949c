// Package environment implements the persistent chain of lexical frames
// described in spec §3/§4.2: each Frame maps identifiers to shared mutable
// cells, carries a generation counter assigned by the global manager, and
// optionally points at a parent frame.
//
// Concurrency follows the teacher's Var pattern (core.go: an RWMutex
// guarding a single logical cell, read-locked on the hot path): frames are
// safe to share across threads for reads, and writes are serialized per
// cell so readers always observe either the pre-write or post-write value,
// never a torn one (§4.2).
package environment

import (
	"sync"

	"github.com/gitrdm/lambdust/pkg/value"
)

// cell is a single shared, mutable binding.
type cell struct {
	mu sync.RWMutex
	v  value.Value
}

func (c *cell) get() value.Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

func (c *cell) set(v value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
}

// Frame is a single lexical scope. Frame satisfies value.Environment so a
// *Frame can be captured directly by a closure value.
type Frame struct {
	mu         sync.RWMutex
	bindings   map[uint64]*cell
	generation uint64
	parent     *Frame
}

// New creates a fresh, empty frame with no parent — typically the root of
// a global or top-level environment.
func New(generation uint64) *Frame {
	return &Frame{bindings: make(map[uint64]*cell), generation: generation}
}

// Extend creates a fresh empty child frame of f, stamped with generation.
func (f *Frame) Extend(generation uint64) *Frame {
	return &Frame{bindings: make(map[uint64]*cell), generation: generation, parent: f}
}

// Generation returns the generation counter this frame was stamped with.
func (f *Frame) Generation() uint64 { return f.generation }

// Parent returns the parent frame, or nil at the root.
func (f *Frame) Parent() *Frame { return f.parent }

// Lookup walks the parent chain looking for id, returning the innermost
// binding. Lookup never mutates any frame.
func (f *Frame) Lookup(id uint64) (value.Value, bool) {
	for frame := f; frame != nil; frame = frame.parent {
		frame.mu.RLock()
		c, ok := frame.bindings[id]
		frame.mu.RUnlock()
		if ok {
			return c.get(), true
		}
	}
	return nil, false
}

// Define binds id to v in this frame only, overwriting any existing
// binding already present in this frame (not a parent's).
func (f *Frame) Define(id uint64, v value.Value) {
	f.mu.Lock()
	c, ok := f.bindings[id]
	if !ok {
		c = &cell{}
		f.bindings[id] = c
	}
	f.mu.Unlock()
	c.set(v)
}

// Set rebinds the innermost existing cell for id, walking the parent
// chain. It returns false without mutating anything if id is unbound
// anywhere in the chain (§4.2).
func (f *Frame) Set(id uint64, v value.Value) bool {
	for frame := f; frame != nil; frame = frame.parent {
		frame.mu.RLock()
		c, ok := frame.bindings[id]
		frame.mu.RUnlock()
		if ok {
			c.set(v)
			return true
		}
	}
	return false
}

// DefineCOW returns a new frame that shares f's parent chain and bindings
// map structure (copy-on-write), with exactly one binding added or
// replaced. Existing references to f continue to see f's original
// bindings, unaffected by the new frame.
func (f *Frame) DefineCOW(id uint64, v value.Value) *Frame {
	f.mu.RLock()
	next := &Frame{
		bindings:   make(map[uint64]*cell, len(f.bindings)+1),
		generation: f.generation,
		parent:     f.parent,
	}
	for k, c := range f.bindings {
		next.bindings[k] = c
	}
	f.mu.RUnlock()

	nc := &cell{v: v}
	next.bindings[id] = nc
	return next
}

// Values returns every value bound anywhere in f's frame chain (inner
// frames shadow outer ones for the same id), for GC root tracing of
// closures that capture f.
func (f *Frame) Values() []value.Value {
	seen := make(map[uint64]bool)
	var out []value.Value
	for frame := f; frame != nil; frame = frame.parent {
		frame.mu.RLock()
		for id, c := range frame.bindings {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, c.get())
		}
		frame.mu.RUnlock()
	}
	return out
}

// Has reports whether id is bound in this frame specifically (not a
// parent).
func (f *Frame) Has(id uint64) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.bindings[id]
	return ok
}
