package deploy

import "fmt"

// State is a pipeline phase.
type State string

const (
	StateScanning        State = "Scanning"
	StateIndexed         State = "Indexed"
	StateNegotiating     State = "Negotiating"
	StateAwaitingUploads State = "AwaitingUploads"
	StateUploading       State = "Uploading"
	StateComplete        State = "Complete"
	StateFailed          State = "Failed"
)

var next = map[State]State{
	StateScanning:        StateIndexed,
	StateIndexed:         StateNegotiating,
	StateNegotiating:     StateAwaitingUploads,
	StateAwaitingUploads: StateUploading,
	StateUploading:       StateComplete,
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// CanTransition allows the forward chain and a move to Failed from any
// non-terminal state.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return next[from] == to
}

// machine records the current state and reports every change.
type machine struct {
	current  State
	failedIn State
	onChange func(from, to State)
}

func newMachine(onChange func(from, to State)) *machine {
	return &machine{current: StateScanning, onChange: onChange}
}

func (m *machine) to(s State) error {
	if !CanTransition(m.current, s) {
		return fmt.Errorf("invalid pipeline transition %s -> %s", m.current, s)
	}
	from := m.current
	if s == StateFailed {
		m.failedIn = from
	}
	m.current = s
	if m.onChange != nil {
		m.onChange(from, s)
	}
	return nil
}

// fail moves to Failed unless the machine already stopped.
func (m *machine) fail() {
	if !m.current.Terminal() {
		_ = m.to(StateFailed)
	}
}
