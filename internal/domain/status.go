package domain

// Status represents the lifecycle stage of a room
type Status string

const (
	StatusLobby    Status = "LOBBY"    // Waiting for players to join
	StatusInRound  Status = "IN_ROUND" // Players writing turns
	StatusFinished Status = "FINISHED" // Stories revealed
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if a transition from the current status to target is valid
func (s Status) CanTransitionTo(target Status) bool {
	validTransitions := map[Status][]Status{
		StatusLobby:    {StatusInRound},
		StatusInRound:  {StatusFinished},
		StatusFinished: {StatusLobby},
	}

	for _, status := range validTransitions[s] {
		if status == target {
			return true
		}
	}
	return false
}
