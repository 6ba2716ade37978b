package queue

import (
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	t.Parallel()
	q := New[int](4)
	for i := 0; i < 4; i++ {
		if !q.Push(i) {
			t.Fatalf("push %d failed", i)
		}
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d failed", i)
		}
		if v != i {
			t.Errorf("expected %d, got %d", i, v)
		}
	}
}

// A consumer must observe a contiguous prefix of the pushed sequence even
// with a concurrent producer.
func TestConcurrentPrefixProperty(t *testing.T) {
	t.Parallel()
	const n = 1000
	q := New[int](8)

	go func() {
		for i := 0; i < n; i++ {
			if !q.Push(i) {
				return
			}
		}
	}()

	for i := 0; i < n; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("queue stopped early at %d", i)
		}
		if v != i {
			t.Fatalf("expected contiguous prefix: want %d, got %d", i, v)
		}
	}
}

func TestPushBlocksUntilPop(t *testing.T) {
	t.Parallel()
	q := New[int](1)
	q.Push(1)

	done := make(chan bool, 1)
	go func() {
		done <- q.Push(2)
	}()

	select {
	case <-done:
		t.Fatal("push returned while queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	if v, ok := q.Pop(); !ok || v != 1 {
		t.Fatalf("pop got (%d, %v)", v, ok)
	}
	if ok := <-done; !ok {
		t.Fatal("blocked push should have succeeded after pop")
	}
}

func TestStopWakesWaiters(t *testing.T) {
	t.Parallel()
	q := New[int](1)
	q.Push(1)

	results := make(chan bool, 1)
	go func() {
		results <- q.Push(2) // blocks: full
	}()

	time.Sleep(20 * time.Millisecond)
	q.Stop()
	if ok := <-results; ok {
		t.Error("push on stopped queue should return false")
	}

	// Subsequent operations fail fast.
	if q.Push(3) {
		t.Error("push after stop should fail")
	}
}

func TestPopAfterStopReturnsFalse(t *testing.T) {
	t.Parallel()
	q := New[int](2)
	q.Stop()
	if _, ok := q.Pop(); ok {
		t.Error("pop on stopped empty queue should fail")
	}
}

func TestTryPop(t *testing.T) {
	t.Parallel()
	q := New[string](2)
	if _, ok := q.TryPop(); ok {
		t.Error("try_pop on empty queue should fail")
	}
	q.Push("a")
	v, ok := q.TryPop()
	if !ok || v != "a" {
		t.Errorf("try_pop got (%q, %v)", v, ok)
	}
}

func TestPushTimeout(t *testing.T) {
	t.Parallel()
	q := New[int](1)
	q.Push(1)

	start := time.Now()
	if q.PushTimeout(2, 30*time.Millisecond) {
		t.Fatal("push into full queue should time out")
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("timed out too early: %v", elapsed)
	}
}

func TestClearInvokesCleanup(t *testing.T) {
	t.Parallel()
	q := New[int](8)
	for i := 0; i < 5; i++ {
		q.Push(i)
	}

	var cleaned []int
	q.Clear(func(v int) { cleaned = append(cleaned, v) })

	if len(cleaned) != 5 {
		t.Fatalf("expected 5 cleanups, got %d", len(cleaned))
	}
	for i, v := range cleaned {
		if v != i {
			t.Errorf("cleanup order: want %d, got %d", i, v)
		}
	}
	if q.Len() != 0 {
		t.Errorf("queue not empty after clear: %d", q.Len())
	}
}

func TestClearUnblocksProducer(t *testing.T) {
	t.Parallel()
	q := New[int](1)
	q.Push(1)

	done := make(chan bool, 1)
	go func() { done <- q.Push(2) }()

	time.Sleep(20 * time.Millisecond)
	q.Clear(nil)

	select {
	case ok := <-done:
		if !ok {
			t.Error("push should succeed after clear")
		}
	case <-time.After(time.Second):
		t.Fatal("producer still blocked after clear")
	}
}

func TestPushBelowWatermark(t *testing.T) {
	t.Parallel()
	q := New[int](8)
	for i := 0; i < 6; i++ {
		q.Push(i)
	}

	// Occupancy 6 >= watermark 6: must block until a pop brings it below.
	done := make(chan bool, 1)
	go func() { done <- q.PushBelow(6, 6, 0) }()

	select {
	case <-done:
		t.Fatal("push returned at watermark")
	case <-time.After(30 * time.Millisecond):
	}

	q.Pop()
	select {
	case ok := <-done:
		if !ok {
			t.Fatal("watermark push should succeed after drain")
		}
	case <-time.After(time.Second):
		t.Fatal("watermark push still blocked")
	}
}

func TestLenCap(t *testing.T) {
	t.Parallel()
	q := New[int](3)
	q.Push(1)
	q.Push(2)
	if q.Len() != 2 {
		t.Errorf("len = %d, want 2", q.Len())
	}
	if q.Cap() != 3 {
		t.Errorf("cap = %d, want 3", q.Cap())
	}
}
