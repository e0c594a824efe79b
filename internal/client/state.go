package client

// State is the screen a player is on
type State string

const (
	StateLobby   State = "LOBBY"   // In or choosing a room, game not started
	StateWriting State = "WRITING" // Holding a prompt
	StateWaiting State = "WAITING" // Submitted, waiting for the round to close
	StateResults State = "RESULTS" // Stories revealed
)

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// CanTransitionTo checks if a transition from the current state to target is valid
func (s State) CanTransitionTo(target State) bool {
	validTransitions := map[State][]State{
		StateLobby:   {StateWriting},
		StateWriting: {StateWriting, StateWaiting, StateResults},
		StateWaiting: {StateWriting, StateResults},
		StateResults: {StateLobby},
	}

	for _, state := range validTransitions[s] {
		if state == target {
			return true
		}
	}
	return false
}
