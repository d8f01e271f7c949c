package gc

import (
	"sync"
	"time"
)

// Stats collects collector statistics, modeled on the teacher's
// ExecutionStats (internal/parallel/pool.go): atomics-free, mutex-guarded
// counters plus small bounded histories, exposed through Heap.Stats
// (SPEC_FULL.md's supplemented GC-generation
// statistics, grounded on original_source/src/runtime/gc/generation.rs).
type Stats struct {
	mu sync.Mutex

	BytesAllocated uint64
	AllocationCount uint64

	YoungCollections int64
	OldCollections   int64
	ObjectsPromoted  int64

	youngPauses []time.Duration
	oldPauses   []time.Duration
}

func newStats() *Stats {
	return &Stats{}
}

func (s *Stats) recordAllocation(size uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BytesAllocated += size
	s.AllocationCount++
}

func (s *Stats) recordYoungCollection(d time.Duration, promoted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.YoungCollections++
	s.ObjectsPromoted += int64(promoted)
	s.youngPauses = append(s.youngPauses, d)
	if len(s.youngPauses) > 1000 {
		s.youngPauses = s.youngPauses[1:]
	}
}

func (s *Stats) recordOldCollection(d time.Duration, survivors int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OldCollections++
	s.oldPauses = append(s.oldPauses, d)
	if len(s.oldPauses) > 1000 {
		s.oldPauses = s.oldPauses[1:]
	}
}

// YoungPauseHistory returns a copy of recorded Young-collection pause
// durations, most recent last.
func (s *Stats) YoungPauseHistory() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.youngPauses))
	copy(out, s.youngPauses)
	return out
}

// OldPauseHistory returns a copy of recorded Old-collection pause
// durations, most recent last.
func (s *Stats) OldPauseHistory() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.oldPauses))
	copy(out, s.oldPauses)
	return out
}
