package state

import (
	"sync"
	"testing"
	"time"
)

func TestTransitions(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	if m.State() != Idle {
		t.Fatalf("initial state = %s, want Idle", m.State())
	}

	for _, s := range []State{Opening, Ready, Playing, Paused, Playing, Stopping, Stopped} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
		if m.State() != s {
			t.Fatalf("state = %s, want %s", m.State(), s)
		}
	}
}

func TestErrorOnlyTransitionsToStopped(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	_ = m.Transition(Playing)
	_ = m.Transition(Error)

	if err := m.Transition(Playing); err == nil {
		t.Error("Error -> Playing should be rejected")
	}
	if err := m.Transition(Stopped); err != nil {
		t.Errorf("Error -> Stopped should be allowed: %v", err)
	}
}

func TestPredicates(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	_ = m.Transition(Playing)
	if m.ShouldStop() || m.ShouldPause() {
		t.Error("Playing should neither stop nor pause")
	}

	_ = m.Transition(Paused)
	if !m.ShouldPause() {
		t.Error("Paused should pause")
	}

	_ = m.Transition(Seeking)
	if !m.ShouldPause() {
		t.Error("Seeking should pause")
	}

	_ = m.Transition(Stopping)
	if !m.ShouldStop() {
		t.Error("Stopping should stop")
	}
}

func TestWaitForResumeWakes(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	_ = m.Transition(Paused)

	done := make(chan bool, 1)
	go func() {
		done <- m.WaitForResume()
	}()

	select {
	case <-done:
		t.Fatal("WaitForResume returned while paused")
	case <-time.After(30 * time.Millisecond):
	}

	_ = m.Transition(Playing)
	select {
	case ok := <-done:
		if !ok {
			t.Error("resume to Playing should return true")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForResume never woke")
	}
}

func TestWaitForResumeReturnsFalseOnStop(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	_ = m.Transition(Paused)

	done := make(chan bool, 1)
	go func() {
		done <- m.WaitForResume()
	}()

	time.Sleep(20 * time.Millisecond)
	_ = m.Transition(Stopping)

	select {
	case ok := <-done:
		if ok {
			t.Error("wait interrupted by stop should return false")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForResume never woke on stop")
	}
}

func TestListenersNotified(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)

	var mu sync.Mutex
	var seen []State
	m.Subscribe(func(_, to State) {
		mu.Lock()
		seen = append(seen, to)
		mu.Unlock()
	})

	_ = m.Transition(Opening)
	_ = m.Transition(Ready)
	_ = m.Transition(Ready) // same-state: no notification

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != Opening || seen[1] != Ready {
		t.Errorf("listener saw %v, want [Opening Ready]", seen)
	}
}
