package protocol

import (
	"encoding/json"
	"time"

	"storychain/internal/domain"
)

// MessageType represents the type of WebSocket message
type MessageType string

// Client → Server message types
const (
	MsgCreateRoom MessageType = "create_room"
	MsgJoinRoom   MessageType = "join_room_code"
	MsgStartGame  MessageType = "start_game"
	MsgSubmitTurn MessageType = "submit_turn"
	MsgSaveDraft  MessageType = "save_draft"
	MsgLeaveRoom  MessageType = "leave_room"
	MsgRematch    MessageType = "back_to_lobby"
	MsgPing       MessageType = "ping"
)

// Server → Client message types
const (
	MsgRoomCreated    = MessageType(domain.EventRoomCreated)
	MsgJoined         = MessageType(domain.EventJoined)
	MsgPlayerList     = MessageType(domain.EventPlayerList)
	MsgGameStarted    = MessageType(domain.EventGameStarted)
	MsgPrompt         = MessageType(domain.EventPrompt)
	MsgRoundSubmitted = MessageType(domain.EventRoundSubmitted)
	MsgResults        = MessageType(domain.EventResults)
	MsgLobby          = MessageType(domain.EventLobby)
	MsgError          MessageType = "error"
	MsgPong           MessageType = "pong"
)

// Envelope is a decoded message in either direction; the payload is left raw
// until the type is known.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Decode unmarshals the payload into v. An absent payload leaves v untouched.
func (e *Envelope) Decode(v any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// NewClientMessage creates a client message
func NewClientMessage(msgType MessageType, payload any) *ClientMessage {
	return &ClientMessage{Type: msgType, Payload: payload}
}

// ServerMessage represents a message from server to client
type ServerMessage struct {
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NewServerMessage creates a new server message with current timestamp
func NewServerMessage(msgType MessageType, payload any) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// FromEvent converts a room event to its wire form
func FromEvent(event *domain.Event) *ServerMessage {
	return &ServerMessage{
		Type:      MessageType(event.Type),
		Payload:   event.Payload,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
	}
}

// Client message payloads

// PlayerPayload identifies the creating player. The id is advisory; the
// server always uses the connection id.
type PlayerPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateRoomPayload is the payload for create_room message
type CreateRoomPayload struct {
	RoomCode string        `json:"roomCode"`
	Name     string        `json:"name,omitempty"`
	Player   PlayerPayload `json:"player"`
}

// DisplayName prefers the nested player name over the flat one
func (p CreateRoomPayload) DisplayName() string {
	if p.Player.Name != "" {
		return p.Player.Name
	}
	return p.Name
}

// JoinRoomPayload is the payload for join_room_code message
type JoinRoomPayload struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

// StartGamePayload is the payload for start_game message
type StartGamePayload struct {
	Settings domain.Settings `json:"settings"`
}

// TurnPayload is the payload for submit_turn and save_draft messages
type TurnPayload struct {
	Text   string `json:"text"`
	Origin string `json:"origin"`
}

// Server message payloads

// ErrorPayload is the payload for error message
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
