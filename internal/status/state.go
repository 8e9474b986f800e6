package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatdump/internal/bus"
)

// State is the phase a download run is in.
type State string

const (
	Idle        State = "IDLE"
	Preparing   State = "PREPARING"
	Fetching    State = "FETCHING"
	Waiting     State = "WAITING"
	Finalizing  State = "FINALIZING"
	Downloading State = "DOWNLOADING"
	Done        State = "DONE"
	Stopped     State = "STOPPED"
	Failed      State = "FAILED"
)

var validTransitions = map[State][]State{
	Idle:        {Preparing, Failed},
	Preparing:   {Fetching, Finalizing, Stopped, Failed},
	Fetching:    {Waiting, Finalizing, Stopped, Failed},
	Waiting:     {Fetching, Stopped, Failed},
	Finalizing:  {Downloading, Done, Stopped, Failed},
	Downloading: {Done, Stopped, Failed},
	// Multi-chat runs start the next chat from a terminal state.
	Done:    {Preparing},
	Failed:  {Preparing},
	Stopped: {},
}

// Terminal reports whether no further work happens in s for the current chat.
func (s State) Terminal() bool {
	return s == Done || s == Stopped || s == Failed
}

// Machine tracks and enforces run state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to the given state or returns an error if the move is
// not allowed from the current one.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Publish(bus.Event{
		Kind:      bus.KindStatusChanged,
		Timestamp: time.Now(),
		Payload:   StatusChange{From: from, To: to},
	})
	return nil
}

// StatusChange is the payload of bus.KindStatusChanged.
type StatusChange struct {
	From State
	To   State
}
