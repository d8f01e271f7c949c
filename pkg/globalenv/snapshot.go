package globalenv

import (
	"sync"

	"github.com/gitrdm/lambdust/pkg/value"
)

// SnapshotPolicy controls when the manager records a full snapshot of the
// global bindings map, grounded on original_source/src/runtime/global_env.rs's
// StateSnapshotManager policy enum (SPEC_FULL.md supplement #1).
type SnapshotPolicy int

const (
	// EveryGeneration snapshots after every commit.
	EveryGeneration SnapshotPolicy = iota
	// EveryN snapshots every N-th generation; see snapshotManager.n
	// (set to 4 by newSnapshotManager; no Option changes it).
	EveryN
	// OnDemand only snapshots when Manager.Snapshot is called explicitly.
	OnDemand
	// BeforeTransaction snapshots the instant a transaction starts (and on
	// explicit Manager.Snapshot calls); commits take no snapshot under it.
	BeforeTransaction
)

type snapshotEntry struct {
	generation uint64
	bindings   map[uint64]value.Value
}

// snapshotManager retains a bounded, oldest-first-evicted history of full
// bindings-map copies keyed by generation.
type snapshotManager struct {
	mu      sync.Mutex
	policy  SnapshotPolicy
	n       uint64
	max     int
	entries []snapshotEntry
}

func newSnapshotManager(policy SnapshotPolicy, max int) *snapshotManager {
	return &snapshotManager{policy: policy, n: 4, max: max}
}

// onGeneration is called after every commit with the post-commit
// generation and bindings copy; it records a snapshot if the policy says
// to.
func (s *snapshotManager) onGeneration(gen uint64, bindings map[uint64]value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.policy {
	case EveryGeneration:
		s.appendLocked(gen, bindings)
	case EveryN:
		if s.n == 0 || gen%s.n == 0 {
			s.appendLocked(gen, bindings)
		}
	case OnDemand, BeforeTransaction:
		// recorded only via force()
	}
}

// force records a snapshot unconditionally, regardless of policy.
func (s *snapshotManager) force(gen uint64, bindings map[uint64]value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(gen, bindings)
}

func (s *snapshotManager) appendLocked(gen uint64, bindings map[uint64]value.Value) {
	if len(s.entries) > 0 && s.entries[len(s.entries)-1].generation == gen {
		s.entries[len(s.entries)-1] = snapshotEntry{generation: gen, bindings: bindings}
		return
	}
	s.entries = append(s.entries, snapshotEntry{generation: gen, bindings: bindings})
	if s.max > 0 && len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
}

// nearestAtOrBefore returns the newest recorded snapshot whose generation
// is <= g.
func (s *snapshotManager) nearestAtOrBefore(g uint64) (map[uint64]value.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].generation <= g {
			return s.entries[i].bindings, true
		}
	}
	if len(s.entries) == 0 && g == 0 {
		return map[uint64]value.Value{}, true
	}
	return nil, false
}
