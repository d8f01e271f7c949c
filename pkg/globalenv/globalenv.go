// Package globalenv implements the transactional global-environment
// manager of spec §3/§4.6: a process-wide identifier -> value map guarded
// by a reader/writer lock, a monotonic global generation counter, and a
// transaction log supporting commit, abort and rollback-to-generation.
//
// Grounded directly on original_source/src/runtime/global_env.rs's
// GlobalEnvironmentManager / TransactionManager / StateSnapshotManager
// split, translated into Go's RWMutex + atomic-counter idiom the way the
// teacher's constraint_store.go guards shared propagation state.
package globalenv

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gitrdm/lambdust/pkg/value"
)

// ErrUnbound is returned by operations that require an existing binding.
var ErrUnbound = fmt.Errorf("globalenv: identifier unbound")

// Manager is the transactional global environment. Construct one per
// runtime instance, never as a process-wide singleton (§9 design note).
type Manager struct {
	mu         sync.RWMutex
	bindings   map[uint64]value.Value
	generation uint64 // atomic

	txMu           sync.Mutex
	transactions   map[uint64]*Transaction
	txSeq          uint64
	activeByThread map[string]uint64
	defaultTimeout time.Duration

	snapshots *snapshotManager
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithSnapshotPolicy selects the snapshot policy (default EveryGeneration).
func WithSnapshotPolicy(p SnapshotPolicy) Option {
	return func(m *Manager) { m.snapshots.policy = p }
}

// WithMaxSnapshots bounds snapshot retention (default 64); eviction
// removes the oldest.
func WithMaxSnapshots(n int) Option {
	return func(m *Manager) { m.snapshots.max = n }
}

// WithDefaultTransactionTimeout sets the timeout auto-started
// transactions inherit when none is specified (SPEC_FULL.md supplement
// #2).
func WithDefaultTransactionTimeout(d time.Duration) Option {
	return func(m *Manager) { m.defaultTimeout = d }
}

// New constructs an empty global environment manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		bindings:       make(map[uint64]value.Value),
		transactions:   make(map[uint64]*Transaction),
		activeByThread: make(map[string]uint64),
		defaultTimeout: 5 * time.Second,
		snapshots:      newSnapshotManager(EveryGeneration, 64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Generation returns the current global generation counter.
func (m *Manager) Generation() uint64 { return atomic.LoadUint64(&m.generation) }

// Lookup reads a binding. Readers always observe either the pre-commit or
// post-commit state of any transaction, never a partial state (§5),
// because commits install their changes under the same write lock reads
// take.
func (m *Manager) Lookup(name uint64) (value.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.bindings[name]
	return v, ok
}

// Roots implements gc.RootProvider: the entire global bindings map is a
// GC root set (§4.3 step 2).
func (m *Manager) Roots() []value.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]value.Value, 0, len(m.bindings))
	for _, v := range m.bindings {
		out = append(out, v)
	}
	return out
}

func (m *Manager) bumpGeneration() uint64 {
	g := atomic.AddUint64(&m.generation, 1)
	m.snapshots.onGeneration(g, m.snapshotCopy())
	return g
}

func (m *Manager) snapshotCopy() map[uint64]value.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[uint64]value.Value, len(m.bindings))
	for k, v := range m.bindings {
		cp[k] = v
	}
	return cp
}

// Snapshot forces an on-demand snapshot of the current state at the
// current generation, regardless of policy.
func (m *Manager) Snapshot() {
	m.snapshots.force(m.Generation(), m.snapshotCopy())
}

// DefineGlobalTransactional installs name=val atomically, capturing the
// pre-image and recording the change against thread's active transaction
// (auto-starting one if thread has none), per §4.6.
func (m *Manager) DefineGlobalTransactional(thread string, name uint64, val value.Value) error {
	tx := m.ensureActive(thread)

	m.mu.Lock()
	pre, existed := m.bindings[name]
	m.bindings[name] = val
	m.mu.Unlock()

	tx.mu.Lock()
	tx.Changes = append(tx.Changes, Change{Name: name, PreImage: pre, PreExisted: existed, PostImage: val})
	tx.mu.Unlock()
	return nil
}

// ensureActive returns thread's active transaction, starting a fresh one
// if it has none (§3: "A thread has at most one active transaction; a new
// change auto-starts one if none exists").
func (m *Manager) ensureActive(thread string) *Transaction {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	if id, ok := m.activeByThread[thread]; ok {
		if tx, ok := m.transactions[id]; ok && tx.State == Active {
			return tx
		}
	}
	m.txSeq++
	tx := &Transaction{
		ID:                 m.txSeq,
		Initiator:          thread,
		State:              Active,
		SnapshotGeneration: atomic.LoadUint64(&m.generation),
		CreatedAt:          time.Now(),
		Timeout:            m.defaultTimeout,
	}
	m.transactions[tx.ID] = tx
	m.activeByThread[thread] = tx.ID
	if m.snapshots.policy == BeforeTransaction {
		m.snapshots.force(tx.SnapshotGeneration, m.snapshotCopy())
	}
	return tx
}

// Begin explicitly starts a transaction for thread, as if the first
// change had auto-started one.
func (m *Manager) Begin(thread string) *Transaction {
	return m.ensureActive(thread)
}

// CommitTransaction marks tx committed; its changes become durable
// (§4.6, §8 property 4). Concurrent transactions on disjoint name sets
// proceed independently; on intersecting names, whichever commits last
// wins (the bindings map already reflects last-writer-wins by
// construction, since DefineGlobalTransactional writes through
// immediately and only the pre-image is deferred to abort-time).
func (m *Manager) CommitTransaction(id uint64) error {
	m.txMu.Lock()
	tx, ok := m.transactions[id]
	if !ok {
		m.txMu.Unlock()
		return fmt.Errorf("globalenv: unknown transaction %d", id)
	}
	tx.mu.Lock()
	tx.State = Committing
	tx.mu.Unlock()
	m.txMu.Unlock()

	m.bumpGeneration()

	m.txMu.Lock()
	tx.mu.Lock()
	tx.State = Committed
	tx.mu.Unlock()
	if m.activeByThread[tx.Initiator] == id {
		delete(m.activeByThread, tx.Initiator)
	}
	m.txMu.Unlock()
	return nil
}

// AbortTransaction walks tx's changes in reverse, restoring each
// pre-image, and marks it RolledBack (§4.6, §8 property 4).
func (m *Manager) AbortTransaction(id uint64) error {
	m.txMu.Lock()
	tx, ok := m.transactions[id]
	if !ok {
		m.txMu.Unlock()
		return fmt.Errorf("globalenv: unknown transaction %d", id)
	}
	tx.mu.Lock()
	tx.State = Aborting
	changes := append([]Change(nil), tx.Changes...)
	tx.mu.Unlock()
	m.txMu.Unlock()

	m.mu.Lock()
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if c.PreExisted {
			m.bindings[c.Name] = c.PreImage
		} else {
			delete(m.bindings, c.Name)
		}
	}
	m.mu.Unlock()

	m.txMu.Lock()
	tx.mu.Lock()
	tx.State = RolledBack
	tx.mu.Unlock()
	if m.activeByThread[tx.Initiator] == id {
		delete(m.activeByThread, tx.Initiator)
	}
	m.txMu.Unlock()
	return nil
}

// RollbackToGeneration selects the newest snapshot at or before g,
// installs it as the current map, and sets the global generation counter
// to g. Idempotent: calling it twice in a row with the same g leaves
// state identical to calling it once (§8 property 5).
func (m *Manager) RollbackToGeneration(g uint64) error {
	snap, ok := m.snapshots.nearestAtOrBefore(g)
	if !ok {
		return fmt.Errorf("globalenv: no snapshot at or before generation %d", g)
	}
	m.mu.Lock()
	m.bindings = make(map[uint64]value.Value, len(snap))
	for k, v := range snap {
		m.bindings[k] = v
	}
	m.mu.Unlock()
	atomic.StoreUint64(&m.generation, g)
	return nil
}

// TransactionState reports the current State of a transaction, for tests
// and diagnostics.
func (m *Manager) TransactionState(id uint64) (State, bool) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return 0, false
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.State, true
}
