package globalenv

import (
	"testing"

	"github.com/gitrdm/lambdust/pkg/value"
)

func TestDefineGlobalTransactionalThenCommitIsDurable(t *testing.T) {
	m := New()
	m.DefineGlobalTransactional("t1", 1, value.Int(42))
	tx := m.Begin("t1")

	if err := m.CommitTransaction(tx.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := m.Lookup(1)
	if !ok || v != value.Int(42) {
		t.Errorf("expected binding to persist after commit, got %v ok=%v", v, ok)
	}
	st, _ := m.TransactionState(tx.ID)
	if st != Committed {
		t.Errorf("expected Committed, got %v", st)
	}
}

func TestAbortTransactionRestoresPreImage(t *testing.T) {
	m := New()
	m.DefineGlobalTransactional("t1", 1, value.Int(1))
	tx1 := m.Begin("t1")
	m.CommitTransaction(tx1.ID)

	m.DefineGlobalTransactional("t1", 1, value.Int(999))
	tx2 := m.Begin("t1")
	if err := m.AbortTransaction(tx2.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, ok := m.Lookup(1)
	if !ok || v != value.Int(1) {
		t.Errorf("expected pre-image restored to 1, got %v ok=%v", v, ok)
	}
}

func TestAbortTransactionDeletesNeverExistedBinding(t *testing.T) {
	m := New()
	m.DefineGlobalTransactional("t1", 7, value.Int(1))
	tx := m.Begin("t1")
	if err := m.AbortTransaction(tx.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.Lookup(7); ok {
		t.Error("expected aborted define of a fresh name to leave no binding")
	}
}

func TestEachThreadHasAtMostOneActiveTransaction(t *testing.T) {
	m := New()
	m.DefineGlobalTransactional("t1", 1, value.Int(1))
	tx1 := m.Begin("t1")
	m.DefineGlobalTransactional("t1", 2, value.Int(2))
	tx2 := m.Begin("t1")

	if tx1.ID != tx2.ID {
		t.Errorf("expected the same active transaction to accumulate both changes, got %d and %d", tx1.ID, tx2.ID)
	}
	if len(tx2.Changes) != 2 {
		t.Errorf("expected 2 accumulated changes, got %d", len(tx2.Changes))
	}
}

func TestCommitStartsFreshTransactionForNextChange(t *testing.T) {
	m := New()
	m.DefineGlobalTransactional("t1", 1, value.Int(1))
	tx1 := m.Begin("t1")
	m.CommitTransaction(tx1.ID)

	m.DefineGlobalTransactional("t1", 2, value.Int(2))
	tx2 := m.Begin("t1")
	if tx2.ID == tx1.ID {
		t.Error("expected a new transaction to start after the previous one committed")
	}
}

func TestRollbackToGenerationRestoresSnapshot(t *testing.T) {
	m := New(WithSnapshotPolicy(EveryGeneration))

	m.DefineGlobalTransactional("t1", 1, value.Int(1))
	tx1 := m.Begin("t1")
	m.CommitTransaction(tx1.ID) // generation 1, snapshot has {1:1}
	gen1 := m.Generation()

	m.DefineGlobalTransactional("t1", 1, value.Int(2))
	tx2 := m.Begin("t1")
	m.CommitTransaction(tx2.ID) // generation 2, snapshot has {1:2}

	v, _ := m.Lookup(1)
	if v != value.Int(2) {
		t.Fatalf("expected 2 before rollback, got %v", v)
	}

	if err := m.RollbackToGeneration(gen1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := m.Lookup(1)
	if !ok || v != value.Int(1) {
		t.Errorf("expected rollback to restore value 1, got %v ok=%v", v, ok)
	}
	if m.Generation() != gen1 {
		t.Errorf("expected generation counter reset to %d, got %d", gen1, m.Generation())
	}
}

func TestRollbackToGenerationIsIdempotent(t *testing.T) {
	m := New(WithSnapshotPolicy(EveryGeneration))
	m.DefineGlobalTransactional("t1", 1, value.Int(1))
	tx := m.Begin("t1")
	m.CommitTransaction(tx.ID)
	gen := m.Generation()

	if err := m.RollbackToGeneration(gen); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, _ := m.Lookup(1)
	if err := m.RollbackToGeneration(gen); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := m.Lookup(1)
	if first != second {
		t.Errorf("expected idempotent rollback, got %v then %v", first, second)
	}
}

func TestRollbackToZeroGenerationWithNoSnapshotsYieldsEmptyEnv(t *testing.T) {
	m := New(WithSnapshotPolicy(OnDemand))
	m.DefineGlobalTransactional("t1", 1, value.Int(1))
	tx := m.Begin("t1")
	m.CommitTransaction(tx.ID)

	if err := m.RollbackToGeneration(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.Lookup(1); ok {
		t.Error("expected rollback to generation 0 to yield an empty environment")
	}
}

func TestOnDemandPolicyDoesNotSnapshotAutomatically(t *testing.T) {
	m := New(WithSnapshotPolicy(OnDemand))
	m.DefineGlobalTransactional("t1", 1, value.Int(1))
	tx := m.Begin("t1")
	m.CommitTransaction(tx.ID)
	gen := m.Generation()

	m.DefineGlobalTransactional("t1", 1, value.Int(2))
	tx2 := m.Begin("t1")
	m.CommitTransaction(tx2.ID)

	// No snapshot was ever recorded at `gen` under OnDemand, so rollback
	// finds nothing at or before it and must error.
	if err := m.RollbackToGeneration(gen); err == nil {
		t.Fatal("expected an error rolling back with no snapshot taken under OnDemand")
	}
}

func TestSnapshotMaxRetentionEvictsOldest(t *testing.T) {
	m := New(WithSnapshotPolicy(EveryGeneration), WithMaxSnapshots(2))
	var lastGen uint64
	for i := 0; i < 5; i++ {
		m.DefineGlobalTransactional("t1", 1, value.Int(i))
		tx := m.Begin("t1")
		m.CommitTransaction(tx.ID)
		lastGen = m.Generation()
	}
	if err := m.RollbackToGeneration(lastGen); err != nil {
		t.Fatalf("expected most recent snapshot retained: %v", err)
	}
	if err := m.RollbackToGeneration(1); err == nil {
		t.Error("expected early snapshot to have been evicted")
	}
}

func TestGlobalBindingsAreGCRoots(t *testing.T) {
	m := New()
	m.DefineGlobalTransactional("t1", 1, value.Int(1))
	tx := m.Begin("t1")
	m.CommitTransaction(tx.ID)

	roots := m.Roots()
	if len(roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(roots))
	}
}
