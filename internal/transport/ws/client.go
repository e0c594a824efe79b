package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"storychain/internal/app"
	"storychain/internal/domain"
	"storychain/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Smallest read limit; turns longer than the character limit still have
	// to arrive so the room can truncate them
	minReadLimit = 64 << 10

	// Worst case bytes per rune once JSON escaped (\uXXXX)
	maxBytesPerRune = 6

	// Room for the envelope around a turn
	envelopeOverhead = 1024

	// Size of the send channel buffer
	sendBufferSize = 256
)

// handlerFunc handles one decoded client message
type handlerFunc func(c *Client, env *protocol.Envelope) error

// handlers maps every inbound message type to its handler
var handlers = map[protocol.MessageType]handlerFunc{
	protocol.MsgCreateRoom: (*Client).handleCreateRoom,
	protocol.MsgJoinRoom:   (*Client).handleJoinRoom,
	protocol.MsgStartGame:  (*Client).handleStartGame,
	protocol.MsgSubmitTurn: (*Client).handleSubmitTurn,
	protocol.MsgSaveDraft:  (*Client).handleSaveDraft,
	protocol.MsgLeaveRoom:  (*Client).handleLeaveRoom,
	protocol.MsgRematch:    (*Client).handleRematch,
	protocol.MsgPing:       (*Client).handlePing,
}

// Client represents a WebSocket client connection
type Client struct {
	conn          *websocket.Conn
	hub           *app.Hub
	participantID string
	send          chan []byte
	done          chan struct{}
	logger        *slog.Logger
	mu            sync.Mutex
	closed        bool
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *app.Hub, participantID string, logger *slog.Logger) *Client {
	return &Client{
		conn:          conn,
		hub:           hub,
		participantID: participantID,
		send:          make(chan []byte, sendBufferSize),
		done:          make(chan struct{}),
		logger:        logger.With("participantID", participantID),
	}
}

// GetParticipantID returns the participant ID for this client
func (c *Client) GetParticipantID() string {
	return c.participantID
}

// Send implements app.ClientConnection interface
func (c *Client) Send(event *domain.Event) error {
	return c.sendMessage(protocol.FromEvent(event))
}

func (c *Client) sendMessage(message *protocol.ServerMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer full, message dropped
		c.logger.Warn("send buffer full, message dropped", "type", message.Type)
		return nil
	}
}

// Close implements app.ClientConnection interface
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)
	return c.conn.Close()
}

// Run starts the client's read and write pumps
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readLimit sizes the largest frame accepted from a peer so any turn within
// the character limit fits
func readLimit(limits domain.Limits) int64 {
	n := int64(limits.MaxCharLimit)*maxBytesPerRune + envelopeOverhead
	return max(n, minReadLimit)
}

// readPump pumps messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c.participantID)
		c.Close()
		c.logger.Info("websocket disconnected")
	}()

	c.conn.SetReadLimit(readLimit(c.hub.Limits()))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
// Each message gets its own frame so clients can decode frames independently.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes and dispatches an incoming message. Failures are
// reported with an error message and the connection stays open.
func (c *Client) handleMessage(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.sendError(protocol.ErrCodeInvalidMessage, "Invalid message format")
		return
	}

	handle, ok := handlers[env.Type]
	if !ok {
		c.sendError(protocol.ErrCodeInvalidMessage, "Unknown message type")
		return
	}

	if err := handle(c, &env); err != nil {
		payload := protocol.ErrorFor(err)
		if payload.Code == protocol.ErrCodeInternalError {
			c.logger.Error("message failed", "type", env.Type, "error", err)
		} else {
			c.logger.Debug("message rejected", "type", env.Type, "code", payload.Code)
		}
		c.sendMessage(protocol.NewServerMessage(protocol.MsgError, payload))
	}
}

// decode unmarshals the payload, reporting failures to the client
func (c *Client) decode(env *protocol.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		c.sendError(protocol.ErrCodeInvalidMessage, "Invalid payload")
		return false
	}
	return true
}

// handleCreateRoom handles a create_room message
func (c *Client) handleCreateRoom(env *protocol.Envelope) error {
	var payload protocol.CreateRoomPayload
	if !c.decode(env, &payload) {
		return nil
	}

	_, err := c.hub.CreateRoom(c.participantID, payload.RoomCode, payload.DisplayName())
	return err
}

// handleJoinRoom handles a join_room_code message
func (c *Client) handleJoinRoom(env *protocol.Envelope) error {
	var payload protocol.JoinRoomPayload
	if !c.decode(env, &payload) {
		return nil
	}
	if payload.Room == "" {
		c.sendError(protocol.ErrCodeInvalidMessage, "Room code is required")
		return nil
	}

	_, err := c.hub.JoinRoom(c.participantID, payload.Room, payload.Name)
	return err
}

// handleStartGame handles a start_game message
func (c *Client) handleStartGame(env *protocol.Envelope) error {
	var payload protocol.StartGamePayload
	if !c.decode(env, &payload) {
		return nil
	}
	return c.hub.StartGame(c.participantID, payload.Settings)
}

// handleSubmitTurn handles a submit_turn message
func (c *Client) handleSubmitTurn(env *protocol.Envelope) error {
	var payload protocol.TurnPayload
	if !c.decode(env, &payload) {
		return nil
	}
	if payload.Origin == "" {
		c.sendError(protocol.ErrCodeInvalidMessage, "Origin is required")
		return nil
	}
	return c.hub.SubmitTurn(c.participantID, payload.Origin, payload.Text)
}

// handleSaveDraft handles a save_draft message
func (c *Client) handleSaveDraft(env *protocol.Envelope) error {
	var payload protocol.TurnPayload
	if !c.decode(env, &payload) {
		return nil
	}
	return c.hub.SaveDraft(c.participantID, payload.Origin, payload.Text)
}

// handleRematch handles a back_to_lobby message
func (c *Client) handleRematch(*protocol.Envelope) error {
	return c.hub.ReturnToLobby(c.participantID)
}

// handleLeaveRoom handles a leave_room message
func (c *Client) handleLeaveRoom(*protocol.Envelope) error {
	c.hub.LeaveRoom(c.participantID)
	return nil
}

// handlePing sends a pong message in response to ping
func (c *Client) handlePing(*protocol.Envelope) error {
	return c.sendMessage(protocol.NewServerMessage(protocol.MsgPong, nil))
}

// sendError sends an error message to the client
func (c *Client) sendError(code, message string) {
	payload := &protocol.ErrorPayload{
		Code:    code,
		Message: message,
	}
	c.sendMessage(protocol.NewServerMessage(protocol.MsgError, payload))
}
