package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
)

// State represents the sync state of a session's active conversation.
type State string

const (
	Idle         State = "IDLE"
	Loading      State = "LOADING"
	Live         State = "LIVE"
	Reconnecting State = "RECONNECTING"
	Degraded     State = "DEGRADED"
)

// validTransitions defines allowed state transitions. Any state may go back
// to Idle or Loading because the user can change the selection at any time.
var validTransitions = map[State][]State{
	Idle:         {Loading},
	Loading:      {Idle, Loading, Live, Reconnecting, Degraded},
	Live:         {Idle, Loading, Reconnecting, Degraded},
	Reconnecting: {Idle, Loading, Live, Degraded},
	Degraded:     {Idle, Loading, Live, Reconnecting},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	detail  string
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle state.
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

// Detail returns the message attached to the last transition, typically the
// error that caused a Degraded or Reconnecting state.
func (m *Machine) Detail() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.detail
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	return m.TransitionWith(to, "")
}

// TransitionWith is Transition with a detail message for the banner.
// Transitioning to the current state only updates the detail.
func (m *Machine) TransitionWith(to State, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if from == to && to != Loading {
		m.detail = detail
		return nil
	}
	allowed := validTransitions[from]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	m.current = to
	m.detail = detail
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From:   from,
				To:     to,
				Detail: detail,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From   State
	To     State
	Detail string
}
