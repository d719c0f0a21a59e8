package history

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_PushPop(t *testing.T) {
	q := NewQueue[int](10, 100)

	for i := 0; i < 5; i++ {
		if q.Push(i) {
			t.Fatalf("Push(%d) dropped", i)
		}
	}

	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		val, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("popped %d, want %d", val, i)
		}
	}
}

func TestQueue_GrowAt70Percent(t *testing.T) {
	q := NewQueue[int](10, 100)

	for i := 0; i < 7; i++ {
		q.Push(i)
	}

	stats := q.Stats()
	if stats.Capacity != 20 {
		t.Errorf("Capacity = %d, want 20", stats.Capacity)
	}
	if stats.ResizeCount != 1 {
		t.Errorf("ResizeCount = %d, want 1", stats.ResizeCount)
	}

	for i := 0; i < 7; i++ {
		if val, _ := q.Pop(); val != i {
			t.Errorf("popped %d, want %d", val, i)
		}
	}
}

func TestQueue_GrowPreservesOrderWhenWrapped(t *testing.T) {
	q := NewQueue[int](4, 64)

	// Advance head so the ring wraps before growing.
	q.Push(-1)
	q.Push(-2)
	q.Pop()
	q.Pop()

	for i := 0; i < 20; i++ {
		q.Push(i)
	}
	for i := 0; i < 20; i++ {
		if val, _ := q.Pop(); val != i {
			t.Fatalf("popped %d, want %d", val, i)
		}
	}
}

func TestQueue_DropsOldestAtLimit(t *testing.T) {
	q := NewQueue[int](2, 4)

	for i := 0; i < 4; i++ {
		if q.Push(i) {
			t.Fatalf("Push(%d) dropped below limit", i)
		}
	}
	if !q.Push(4) {
		t.Fatal("Push(4) at limit should drop")
	}
	if !q.Push(5) {
		t.Fatal("Push(5) at limit should drop")
	}

	stats := q.Stats()
	if stats.Count != 4 || stats.Capacity != 4 {
		t.Errorf("Count/Capacity = %d/%d, want 4/4", stats.Count, stats.Capacity)
	}
	if stats.TotalDropped != 2 {
		t.Errorf("TotalDropped = %d, want 2", stats.TotalDropped)
	}
	if stats.TotalPopped != 0 {
		t.Errorf("TotalPopped = %d, want 0", stats.TotalPopped)
	}

	for want := 2; want <= 5; want++ {
		if val, _ := q.Pop(); val != want {
			t.Errorf("popped %d, want %d", val, want)
		}
	}
}

func TestQueue_CloseDrainsThenStops(t *testing.T) {
	q := NewQueue[int](4, 4)
	q.Push(1)
	q.Close()

	if q.Push(2) {
		t.Error("Push after Close reported a drop")
	}

	if val, ok := q.Pop(); !ok || val != 1 {
		t.Errorf("Pop() = %d, %v; want 1, true", val, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on closed empty queue should return false")
	}
}

func TestQueue_CloseWakesWaiters(t *testing.T) {
	q := NewQueue[int](4, 4)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Pop()
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiters not woken by Close")
	}
}
