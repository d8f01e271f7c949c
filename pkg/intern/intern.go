// Package intern implements the process-wide symbol intern table: a
// mapping from identifier text to a small integer id, shared by the
// evaluator, environment and value packages wherever a Symbol appears.
//
// Grounded on the teacher's single-writer-on-miss, lock-free-on-hit
// pattern used throughout gokando's constraint stores (an RWMutex guarding
// a map, read-locked on the common path, write-locked only to add a new
// entry) and on §5's shared-resource policy ("Intern table: single writer
// on miss, readers lock-free on hit").
package intern

import "sync"

// Table is a bidirectional name <-> id mapping. The zero value is not
// usable; construct with New. A process normally uses one shared Table
// (see Global), but tests substitute a local instance per §9's design
// note on avoiding process-wide singletons in tests.
type Table struct {
	mu      sync.RWMutex
	byName  map[string]uint64
	byID    []string
	nextID  uint64
}

// New creates an empty intern table.
func New() *Table {
	return &Table{byName: make(map[string]uint64)}
}

// Intern returns the id for name, assigning a fresh one if name has not
// been seen before. The fast path for an already-interned name takes only
// an RLock; it is not lock-free and waits while a writer holds the lock.
func (t *Table) Intern(name string) uint64 {
	t.mu.RLock()
	if id, ok := t.byName[name]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check: another writer may have interned name while we waited
	// for the write lock.
	if id, ok := t.byName[name]; ok {
		return id
	}
	id := t.nextID
	t.nextID++
	t.byName[name] = id
	t.byID = append(t.byID, name)
	return id
}

// Name resolves an id back to its text. ok is false for an id this table
// never issued.
func (t *Table) Name(id uint64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id >= uint64(len(t.byID)) {
		return "", false
	}
	return t.byID[id], true
}

// Len reports how many distinct identifiers have been interned.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// global is the process-wide default table returned by Global, for
// callers that don't need test isolation.
var global = New()

// Global returns the process-wide default intern table.
func Global() *Table { return global }
