package iocoord

import (
	"context"
	"testing"
)

func TestCoordinateThenCompleteRemovesFromActive(t *testing.T) {
	c := New()
	id := c.CoordinateIOOperation("t1", FileRead, "/tmp/x", nil)

	active := c.ActiveOperationsForThread("t1")
	if len(active) != 1 {
		t.Fatalf("expected 1 active operation, got %d", len(active))
	}

	if err := c.CompleteIOOperation(id, "data"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.ActiveOperationsForThread("t1")) != 0 {
		t.Error("expected operation removed from active set after completion")
	}
}

func TestCompleteUnknownOperationErrors(t *testing.T) {
	c := New()
	if err := c.CompleteIOOperation(OperationID(999), nil); err == nil {
		t.Error("expected error completing an unknown operation")
	}
}

func TestOrderingWithinThreadIsSubmissionOrder(t *testing.T) {
	c := New()
	id1 := c.CoordinateIOOperation("t1", FileRead, "a", nil)
	id2 := c.CoordinateIOOperation("t1", FileRead, "b", nil)

	ops := c.ActiveOperationsForThread("t1")
	if len(ops) != 2 || ops[0].ID != id1 || ops[1].ID != id2 {
		t.Errorf("expected submission order [%d %d], got %v", id1, id2, ops)
	}
}

func TestCancelMarksCompletedWithoutResult(t *testing.T) {
	c := New()
	id := c.CoordinateIOOperation("t1", NetworkRead, "host", nil)
	if err := c.Cancel(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	op, ok := c.active[id]
	if !ok {
		t.Fatal("expected cancellation to leave the operation tracked until explicit completion, per the open cancellation-after-dispatch question")
	}
	if !op.Completed() {
		t.Error("expected Cancel to mark the operation completed")
	}
	if _, ok := op.Result(); ok {
		t.Error("expected a cancelled operation to report no successful result")
	}
}

func TestDrainReturnsWhenNoActiveOperations(t *testing.T) {
	c := New()
	if err := c.Drain(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error draining an empty coordinator: %v", err)
	}
}
