package turn

import (
	"log"
	"sync"
)

// State is one of the four turn-taking states a Session can be in.
type State int

const (
	StateIdle State = iota
	StateUserSpeaking
	StateAIProcessing
	StateAISpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateUserSpeaking:
		return "USER_SPEAKING"
	case StateAIProcessing:
		return "AI_PROCESSING"
	case StateAISpeaking:
		return "AI_SPEAKING"
	default:
		return "UNKNOWN"
	}
}

var validTransitions = map[State]map[State]bool{
	StateIdle:         {StateUserSpeaking: true},
	StateUserSpeaking: {StateAIProcessing: true},
	StateAIProcessing: {StateAISpeaking: true, StateUserSpeaking: true},
	StateAISpeaking:   {StateUserSpeaking: true},
}

// StateMachine is the four-state turn controller. Within one session the
// Gateway's read loop and the in-flight turn's orchestrator goroutine both
// call Transition; the mutex serializes those calls.
type StateMachine struct {
	sessionID    string
	mu           sync.Mutex
	state        State
	onTransition func(State)
}

// NewStateMachine creates a machine in StateIdle.
func NewStateMachine(sessionID string) *StateMachine {
	return &StateMachine{sessionID: sessionID, state: StateIdle}
}

// SetOnTransition registers a hook invoked after every successful
// transition with the new state, so the Gateway can emit the
// `{type: "status", state: ...}` control message on
// every state change without the StateMachine itself knowing about the
// wire format.
func (m *StateMachine) SetOnTransition(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Transition attempts to move to newState. Illegal transitions are
// rejected silently (logged, not erred) and return false.
func (m *StateMachine) Transition(newState State) bool {
	m.mu.Lock()
	if !validTransitions[m.state][newState] {
		log.Printf("[session %s] rejected illegal transition %s -> %s", m.sessionID, m.state, newState)
		m.mu.Unlock()
		return false
	}

	log.Printf("[session %s] %s -> %s", m.sessionID, m.state, newState)
	m.state = newState
	hook := m.onTransition
	m.mu.Unlock()

	if hook != nil {
		hook(newState)
	}
	return true
}

// ForceIdle resets the machine to StateIdle unconditionally. Used only on
// teardown; teardown is out-of-band with respect to the transition table.
func (m *StateMachine) ForceIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
}

// Is reports whether the machine is currently in the given state.
func (m *StateMachine) Is(state State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == state
}

// Current returns the current state.
func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
