package value

import "sync/atomic"

// ObjectHeader is embedded in every heap-shared value. The collector
// (package gc) reads and writes these fields directly during tracing and
// collection; mutator code should not touch them except through the
// accessors below. Field layout follows §3 ("GC object header").
type ObjectHeader struct {
	size       uint64 // bytes this object occupies, for heap-walk skipping
	generation uint32 // 0 = Young, 1 = Old, 2 = Large
	mark       uint32 // tricolor/mark bit, manipulated with atomics
	age        uint32 // promotion-age counter, 0..255 meaningful
	forward    atomic.Value // holds a HeapObject once set; valid for one GC cycle
}

// HeapObject is implemented by every mutable, heap-shared value variant.
// The collector only depends on this interface, never on concrete types,
// so new heap variants need only implement it to participate in GC.
type HeapObject interface {
	Value
	Header() *ObjectHeader
	// Trace calls visit once for every Value directly reachable from this
	// object's mutable interior (e.g. a pair's car and cdr). visit may be
	// called with immediates; the collector ignores those.
	Trace(visit func(Value))
}

// Header returns h itself. Every heap variant embeds ObjectHeader, so this
// promoted method is how each of them satisfies HeapObject.
func (h *ObjectHeader) Header() *ObjectHeader { return h }

// Size returns the object's size in bytes as recorded in its header.
func (h *ObjectHeader) Size() uint64 { return atomic.LoadUint64(&h.size) }

// SetSize records the object's size; called once at allocation time.
func (h *ObjectHeader) SetSize(n uint64) { atomic.StoreUint64(&h.size, n) }

// Generation reports which heap currently owns this object (0=Young,
// 1=Old, 2=Large).
func (h *ObjectHeader) Generation() uint32 { return atomic.LoadUint32(&h.generation) }

func (h *ObjectHeader) SetGeneration(g uint32) { atomic.StoreUint32(&h.generation, g) }

// Marked reports whether the collector's current cycle has marked this
// object reachable.
func (h *ObjectHeader) Marked() bool { return atomic.LoadUint32(&h.mark) != 0 }

// SetMark sets or clears the mark bit.
func (h *ObjectHeader) SetMark(marked bool) {
	if marked {
		atomic.StoreUint32(&h.mark, 1)
	} else {
		atomic.StoreUint32(&h.mark, 0)
	}
}

// Age returns the promotion-age counter.
func (h *ObjectHeader) Age() uint32 { return atomic.LoadUint32(&h.age) }

// Bump increments the age counter and returns the new value.
func (h *ObjectHeader) Bump() uint32 { return atomic.AddUint32(&h.age, 1) }

// ResetAge clears the age counter, used after promotion.
func (h *ObjectHeader) ResetAge() { atomic.StoreUint32(&h.age, 0) }

// Forwarded returns the forwarding address installed during a copying
// cycle, if any. Forwarding addresses are only valid within the GC cycle
// that installed them (§4.3); callers must clear them at cycle end via
// ClearForward.
func (h *ObjectHeader) Forwarded() (HeapObject, bool) {
	v := h.forward.Load()
	if v == nil {
		return nil, false
	}
	obj, ok := v.(HeapObject)
	return obj, ok
}

// SetForward installs a forwarding address.
func (h *ObjectHeader) SetForward(to HeapObject) { h.forward.Store(to) }

// ClearForward removes any forwarding address, invalidating it for the
// next cycle.
func (h *ObjectHeader) ClearForward() { h.forward = atomic.Value{} }
