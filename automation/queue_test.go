package automation

import (
	"testing"
)

func TestQueueOrdering(t *testing.T) {
	q := newPendingQueue()

	a := NewAction(KindBandwidthAdjustment, "Router_A", nil, 2, true)
	a.seq = 1
	b := NewAction(KindQoSUpdate, "Router_B", nil, 1, true)
	b.seq = 2
	c := NewAction(KindConfigUpdate, "Router_C", nil, 2, true)
	c.seq = 3

	q.Push(a)
	q.Push(b)
	q.Push(c)

	// Lower priority value wins; equal priorities by arrival.
	if got := q.Pop(); got.ID != b.ID {
		t.Errorf("expected %s first (priority 1), got %s", b.ID, got.ID)
	}
	if got := q.Pop(); got.ID != a.ID {
		t.Errorf("expected %s second (arrived before %s), got %s", a.ID, c.ID, got.ID)
	}
	if got := q.Pop(); got.ID != c.ID {
		t.Errorf("expected %s last, got %s", c.ID, got.ID)
	}
	if got := q.Pop(); got != nil {
		t.Errorf("expected empty queue, got %s", got.ID)
	}
}

func TestQueueRemove(t *testing.T) {
	q := newPendingQueue()

	a := NewAction(KindBandwidthAdjustment, "Router_A", nil, 1, true)
	a.seq = 1
	b := NewAction(KindQoSUpdate, "Router_B", nil, 2, true)
	b.seq = 2
	q.Push(a)
	q.Push(b)

	if !q.Remove(a.ID) {
		t.Fatalf("expected Remove to find %s", a.ID)
	}
	if q.Remove(a.ID) {
		t.Errorf("expected second Remove of %s to report false", a.ID)
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", q.Len())
	}
	if got := q.Pop(); got.ID != b.ID {
		t.Errorf("expected %s to survive removal, got %s", b.ID, got.ID)
	}
}

func TestQueuePeek(t *testing.T) {
	q := newPendingQueue()
	if q.Peek() != nil {
		t.Fatal("expected nil Peek on empty queue")
	}
	a := NewAction(KindAlertNotification, "Router_A", nil, 1, true)
	q.Push(a)
	if got := q.Peek(); got == nil || got.ID != a.ID {
		t.Errorf("expected Peek to return %s without removal", a.ID)
	}
	if q.Len() != 1 {
		t.Errorf("Peek must not remove; len = %d", q.Len())
	}
}
