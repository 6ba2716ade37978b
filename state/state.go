// Package state holds the per-player playback state machine. Every pipeline
// worker consults the same Manager through three predicates: ShouldStop,
// ShouldPause, and the cooperative WaitForResume. Transitions are serialized
// and fan out to registered listeners.
package state

import (
	"fmt"
	"log/slog"
	"sync"
)

// State enumerates the playback lifecycle.
type State int32

const (
	Idle State = iota
	Opening
	Ready
	Playing
	Paused
	Seeking
	Stopping
	Stopped
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Opening:
		return "Opening"
	case Ready:
		return "Ready"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	case Seeking:
		return "Seeking"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Listener observes state transitions. Callbacks run on the transitioning
// goroutine and must not block.
type Listener func(from, to State)

// Manager serializes state transitions and lets workers wait for resume.
type Manager struct {
	log       *slog.Logger
	mu        sync.Mutex
	cond      *sync.Cond
	state     State
	listeners []Listener
}

// NewManager creates a manager in the Idle state. If log is nil,
// slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		log:   log.With("component", "state"),
		state: Idle,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to the target state. The only transition allowed out of
// Error is to Stopped; everything else is rejected once the machine has
// faulted.
func (m *Manager) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if from == Error && to != Stopped {
		m.mu.Unlock()
		return fmt.Errorf("state: cannot transition from Error to %s", to)
	}
	if from == to {
		m.mu.Unlock()
		return nil
	}
	m.state = to
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	m.cond.Broadcast()
	m.log.Debug("state transition", "from", from.String(), "to", to.String())
	for _, l := range listeners {
		l(from, to)
	}
	return nil
}

// Subscribe registers a listener for every subsequent transition.
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// ShouldStop reports whether workers must exit.
func (m *Manager) ShouldStop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Stopping || m.state == Stopped || m.state == Error
}

// ShouldPause reports whether workers must hold off producing output.
func (m *Manager) ShouldPause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Paused || m.state == Seeking
}

// WaitForResume blocks while the machine is Paused or Seeking. It returns
// immediately when the state allows running again, or false when workers must
// exit instead.
func (m *Manager) WaitForResume() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.state == Paused || m.state == Seeking {
		m.cond.Wait()
	}
	return !(m.state == Stopping || m.state == Stopped || m.state == Error)
}
