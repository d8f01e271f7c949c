package eval

import (
	"github.com/gitrdm/lambdust/pkg/effect"
	"github.com/gitrdm/lambdust/pkg/environment"
	"github.com/gitrdm/lambdust/pkg/globalenv"
	"github.com/gitrdm/lambdust/pkg/intern"
	"github.com/gitrdm/lambdust/pkg/value"
)

// Heap is the subset of *gc.Heap the evaluator needs: allocation and the
// write barrier mutation primitives must call after updating a heap
// object's field. Kept as an interface so tests can substitute a no-op
// allocator without pulling in the full collector.
type Heap interface {
	Allocate(obj value.HeapObject) error
	RecordWrite(parent, child value.HeapObject)
}

// Interp is one evaluator instance: single-threaded, cooperative, bound
// to one thread id for effect/IO/error coordination (§4.4, §5). Globals
// and Effects may be nil, in which case top-level define and effect
// bookkeeping are skipped — useful for unit-testing expression
// evaluation in isolation.
type Interp struct {
	ThreadID string
	Heap     Heap
	Interner *intern.Table
	Effects  *effect.Coordinator
	Globals  *globalenv.Manager

	top       *environment.Frame
	windStack []*windFrame
}

// New constructs an Interp. heap may be nil to disable allocation
// bookkeeping (values are still constructed normally; only generational
// registration is skipped).
func New(threadID string, heap Heap, interner *intern.Table, effects *effect.Coordinator, globals *globalenv.Manager) *Interp {
	return &Interp{ThreadID: threadID, Heap: heap, Interner: interner, Effects: effects, Globals: globals}
}

func (in *Interp) allocate(obj value.HeapObject) {
	if in.Heap == nil {
		return
	}
	// Allocation failure degrades to an un-GC-tracked object rather than
	// aborting evaluation outright; callers that need MemoryError
	// surfaced should check Heap themselves before constructing large
	// objects.
	_ = in.Heap.Allocate(obj)
}

// recordWrite notifies the heap's write barrier after a mutation
// primitive (set-car!, set-cdr!, vector-set!) updates parent's field to
// point at child, maintaining the Old->Young remembered set (§4.3).
// child may be an immediate rather than a HeapObject; recordWrite is a
// no-op in that case, and whenever GC bookkeeping is disabled.
func (in *Interp) recordWrite(parent value.HeapObject, child value.Value) {
	if in.Heap == nil {
		return
	}
	cho, ok := child.(value.HeapObject)
	if !ok {
		return
	}
	in.Heap.RecordWrite(parent, cho)
}
