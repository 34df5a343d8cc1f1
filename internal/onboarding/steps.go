// ABOUTME: Process-local step store for the onboarding state machine.
// ABOUTME: Serializes handling per recipient and remembers the current step.

package onboarding

import "sync"

// Step is a recipient's position in the onboarding flow.
type Step int

// Onboarding steps. The flow is NEW -> AWAITING_PREFERENCE -> NEW and
// re-entrant; stop words reset to NEW from anywhere.
const (
	StepNew Step = iota
	StepAwaitingPreference
)

// recipientState holds one recipient's volatile onboarding state. The
// embedded mutex serializes message handling for that recipient; different
// recipients never block each other.
type recipientState struct {
	mu   sync.Mutex
	step Step
}

// stepStore is the keyed state map. Steps don't survive a restart; the
// persisted preference does, and that's the only durable outcome of the flow.
type stepStore struct {
	mu     sync.Mutex
	states map[string]*recipientState
}

func newStepStore() *stepStore {
	return &stepStore{states: make(map[string]*recipientState)}
}

// acquire returns the recipient's state with its lock held. The caller must
// call release when done.
func (s *stepStore) acquire(recipient string) *recipientState {
	s.mu.Lock()
	state, ok := s.states[recipient]
	if !ok {
		state = &recipientState{}
		s.states[recipient] = state
	}
	s.mu.Unlock()

	state.mu.Lock()
	return state
}

// release unlocks a state acquired with acquire.
func (s *stepStore) release(state *recipientState) {
	state.mu.Unlock()
}
