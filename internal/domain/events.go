package domain

import "time"

// EventType represents the type of an outbound room event. Values match the
// wire message names.
type EventType string

const (
	EventRoomCreated    EventType = "room_created"
	EventJoined         EventType = "joined"
	EventPlayerList     EventType = "player_list"
	EventGameStarted    EventType = "game_started"
	EventPrompt         EventType = "prompt"
	EventRoundSubmitted EventType = "round_submitted"
	EventResults        EventType = "results"
	EventLobby          EventType = "lobby"
)

// Event is something a room tells its participants
type Event struct {
	Type      EventType `json:"type"`
	RoomCode  string    `json:"roomCode"`
	To        string    `json:"to,omitempty"` // If event is participant-specific
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event for every room member
func NewEvent(eventType EventType, roomCode string, payload any) *Event {
	return &Event{
		Type:      eventType,
		RoomCode:  roomCode,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewParticipantEvent creates an event for a single participant
func NewParticipantEvent(eventType EventType, roomCode, to string, payload any) *Event {
	return &Event{
		Type:      eventType,
		RoomCode:  roomCode,
		To:        to,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Payload types for different events

// RoomCreatedPayload confirms the room code to its creator
type RoomCreatedPayload struct {
	Room string `json:"room"`
}

// JoinedPayload confirms membership to a joiner
type JoinedPayload struct {
	SID  string `json:"sid"`
	Name string `json:"name"`
	Room string `json:"room"`
}

// GameStartedPayload echoes the resolved settings
type GameStartedPayload struct {
	Settings Settings `json:"settings"`
}

// PromptPayload tells a writer what to continue this round. Origin is an
// opaque id; the author's name stays hidden until results.
type PromptPayload struct {
	Round  int    `json:"round"`
	Text   string `json:"text"`
	Origin string `json:"origin"`
}

// RoundSubmittedPayload acknowledges a submission to every member
type RoundSubmittedPayload struct {
	From string `json:"from"`
}
