package recorder

import (
	"sync"
	"testing"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int](10)

	for i := 0; i < 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}
	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() returned false for item %d", i)
		}
		if v != i {
			t.Errorf("Pop() = %d, want %d", v, i)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue returned true")
	}
}

func TestQueue_GrowsAt70Percent(t *testing.T) {
	q := NewQueue[int](10)

	for i := 0; i < 7; i++ {
		q.Push(i)
	}

	st := q.Stats()
	if st.Capacity != 20 {
		t.Errorf("Capacity = %d, want 20", st.Capacity)
	}
	if st.Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", st.Resizes)
	}

	got := q.Drain(0)
	for i, v := range got {
		if v != i {
			t.Errorf("item %d = %d after grow", i, v)
		}
	}
}

func TestQueue_GrowWhileWrapped(t *testing.T) {
	q := NewQueue[int](4)

	// Move head forward so the ring wraps.
	q.Push(0)
	q.Push(1)
	q.Pop()
	q.Pop()

	for i := 0; i < 10; i++ {
		q.Push(i)
	}

	got := q.Drain(0)
	if len(got) != 10 {
		t.Fatalf("Drain() returned %d items, want 10", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Errorf("item %d = %d, want %d", i, v, i)
		}
	}
}

func TestQueue_DrainMax(t *testing.T) {
	q := NewQueue[int](100)
	for i := 0; i < 25; i++ {
		q.Push(i)
	}

	first := q.Drain(10)
	if len(first) != 10 || first[0] != 0 || first[9] != 9 {
		t.Errorf("Drain(10) = %v", first)
	}
	rest := q.Drain(0)
	if len(rest) != 15 || rest[0] != 10 {
		t.Errorf("Drain(0) = %v", rest)
	}
	if q.Drain(5) != nil {
		t.Error("Drain() on empty queue returned items")
	}

	st := q.Stats()
	if st.Pushed != 25 || st.Popped != 25 {
		t.Errorf("Stats() = %+v, want 25 pushed and popped", st)
	}
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue[int](4)
	q.Push(1)
	q.Close()

	if q.Push(2) {
		t.Error("Push() after Close() returned true")
	}
	if v, ok := q.Pop(); !ok || v != 1 {
		t.Errorf("Pop() after Close() = %d, %v; want 1, true", v, ok)
	}
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := NewQueue[int](8)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	if q.Len() != 1000 {
		t.Errorf("Len() = %d, want 1000", q.Len())
	}
}
