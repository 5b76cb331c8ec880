package attach

import "sync"

// State is the agent's view of consumer registration. It replaces the
// single process-global flag the original agent kept: one writer (the
// attach worker), any number of readers, all behind a lock.
type State struct {
	mu         sync.RWMutex
	registered bool
	consumerID string
}

func NewState() *State {
	return &State{}
}

// Set records the current registration status and consumer ID.
func (s *State) Set(consumerID string, registered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumerID = consumerID
	s.registered = registered
}

// Registered reports whether the consumer was registered as of the last
// validation. Readers tolerate staleness; the attach worker converges it.
func (s *State) Registered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registered
}

// ConsumerID returns the consumer ID recorded by the last successful
// validation, or the empty string when unregistered.
func (s *State) ConsumerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consumerID
}
