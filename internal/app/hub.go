package app

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"storychain/internal/domain"
)

const (
	// DefaultSessionTimeout is how long before an idle room is cleaned up
	DefaultSessionTimeout = 2 * time.Hour

	// cleanupInterval is how often idle rooms are looked for
	cleanupInterval = 10 * time.Minute

	// codeAttempts bounds room code generation retries
	codeAttempts = 10
)

// Option configures a Hub
type Option func(*Hub)

// WithScheduler replaces the wall-clock round timer scheduler
func WithScheduler(scheduler Scheduler) Option {
	return func(h *Hub) {
		h.scheduler = scheduler
	}
}

// WithLimits sets the bounds applied to every room
func WithLimits(limits domain.Limits) Option {
	return func(h *Hub) {
		h.limits = limits
	}
}

// WithSessionTimeout sets how long an idle room survives
func WithSessionTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.sessionTimeout = d
	}
}

// Hub is the room registry: it owns every room session and knows which room
// each connected participant belongs to.
type Hub struct {
	sessions       map[string]*RoomSession     // room code -> session
	memberships    map[string]string           // participantID -> room code
	clients        map[string]ClientConnection // participantID -> client
	mu             sync.RWMutex
	limits         domain.Limits
	scheduler      Scheduler
	sessionTimeout time.Duration
	logger         *slog.Logger
	done           chan struct{}
	closeOnce      sync.Once
}

// NewHub creates a new hub
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	hub := &Hub{
		sessions:       make(map[string]*RoomSession),
		memberships:    make(map[string]string),
		clients:        make(map[string]ClientConnection),
		limits:         domain.DefaultLimits(),
		scheduler:      SystemScheduler{},
		sessionTimeout: DefaultSessionTimeout,
		logger:         logger,
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(hub)
	}

	// Start cleanup goroutine
	go hub.cleanupLoop()

	return hub
}

// Connect registers a participant's connection before it joins any room
func (h *Hub) Connect(participantID string, client ClientConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[participantID] = client
}

// Disconnect drops a participant's connection and room membership
func (h *Hub) Disconnect(participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(participantID)
	delete(h.clients, participantID)
}

// CreateRoom creates a room with code, or a generated code when blank, and
// seats the participant as its first member.
func (h *Hub) CreateRoom(participantID, code, name string) (*RoomSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	code = domain.NormalizeRoomCode(code)
	if code == "" {
		generated, err := h.uniqueCodeLocked()
		if err != nil {
			return nil, err
		}
		code = generated
	}
	if _, exists := h.sessions[code]; exists {
		return nil, domain.ErrDuplicateRoomCode
	}

	room, err := domain.NewRoom(code, h.limits)
	if err != nil {
		return nil, err
	}

	// Creating a room leaves the current one.
	h.leaveLocked(participantID)

	session := NewRoomSession(room, h.scheduler, h.logger)
	h.attachLocked(session, participantID)

	if err := session.Create(domain.NewParticipant(participantID, name)); err != nil {
		session.Close()
		return nil, err
	}

	h.sessions[code] = session
	h.memberships[participantID] = code

	return session, nil
}

// JoinRoom adds a participant to the lobby of room code
func (h *Hub) JoinRoom(participantID, code, name string) (*RoomSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	code = domain.NormalizeRoomCode(code)
	session, ok := h.sessions[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	if h.memberships[participantID] == code {
		return session, nil
	}
	if !session.CanJoin() {
		if session.GetStatus() != domain.StatusLobby {
			return nil, domain.ErrRoomAlreadyStarted
		}
		return nil, domain.ErrRoomFull
	}

	// Joining another room leaves the current one.
	h.leaveLocked(participantID)

	h.attachLocked(session, participantID)
	if err := session.Join(domain.NewParticipant(participantID, name)); err != nil {
		session.UnregisterClient(participantID)
		return nil, err
	}
	h.memberships[participantID] = code

	return session, nil
}

// LeaveRoom removes a participant from its room, if any
func (h *Hub) LeaveRoom(participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(participantID)
}

// leaveLocked removes membership and destroys emptied rooms (caller must hold mu)
func (h *Hub) leaveLocked(participantID string) {
	code, ok := h.memberships[participantID]
	if !ok {
		return
	}
	delete(h.memberships, participantID)

	session, ok := h.sessions[code]
	if !ok {
		return
	}

	empty, err := session.Leave(participantID)
	if err != nil && !errors.Is(err, domain.ErrParticipantNotFound) {
		h.logger.Error("failed to leave room", "roomCode", code, "participantID", participantID, "error", err)
	}
	if empty {
		session.Close()
		delete(h.sessions, code)
		h.logger.Info("room deleted", "roomCode", code)
	}
}

func (h *Hub) attachLocked(session *RoomSession, participantID string) {
	if client, ok := h.clients[participantID]; ok {
		session.RegisterClient(participantID, client)
	}
}

// StartGame starts the game in the participant's room
func (h *Hub) StartGame(participantID string, settings domain.Settings) error {
	session, err := h.sessionFor(participantID)
	if err != nil {
		return err
	}
	return session.StartGame(participantID, settings)
}

// ReturnToLobby reopens the participant's finished room
func (h *Hub) ReturnToLobby(participantID string) error {
	session, err := h.sessionFor(participantID)
	if err != nil {
		return err
	}
	return session.ReturnToLobby(participantID)
}

// SubmitTurn submits a participant's turn for origin
func (h *Hub) SubmitTurn(participantID, origin, text string) error {
	session, err := h.sessionFor(participantID)
	if err != nil {
		return err
	}
	return session.SubmitTurn(participantID, origin, text)
}

// SaveDraft buffers a participant's in-progress text for origin
func (h *Hub) SaveDraft(participantID, origin, text string) error {
	session, err := h.sessionFor(participantID)
	if err != nil {
		return err
	}
	return session.SaveDraft(participantID, origin, text)
}

// sessionFor returns the session of the participant's room
func (h *Hub) sessionFor(participantID string) (*RoomSession, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	code, ok := h.memberships[participantID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	session, ok := h.sessions[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return session, nil
}

// GetSession returns a room session by room code
func (h *Hub) GetSession(roomCode string) (*RoomSession, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, ok := h.sessions[domain.NormalizeRoomCode(roomCode)]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	return session, nil
}

// RoomOf returns the code of the participant's room
func (h *Hub) RoomOf(participantID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	code, ok := h.memberships[participantID]
	return code, ok
}

// Limits returns the bounds applied to every room
func (h *Hub) Limits() domain.Limits {
	return h.limits
}

// GetSessionCount returns the number of active rooms
func (h *Hub) GetSessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// GetTotalPlayerCount returns the total number of players across all rooms
func (h *Hub) GetTotalPlayerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, session := range h.sessions {
		total += session.GetPlayerCount()
	}
	return total
}

// Close shuts down the hub and all sessions
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, session := range h.sessions {
		session.Close()
	}
	h.sessions = make(map[string]*RoomSession)
	h.memberships = make(map[string]string)
}

// uniqueCodeLocked generates a room code not in use (caller must hold mu)
func (h *Hub) uniqueCodeLocked() (string, error) {
	for attempts := 0; attempts < codeAttempts; attempts++ {
		code, err := generateRoomCode()
		if err != nil {
			return "", err
		}
		if _, exists := h.sessions[code]; !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique room code")
}

// generateRoomCode generates a random room code
func generateRoomCode() (string, error) {
	b := make([]byte, domain.RoomCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random code: %w", err)
	}

	code := make([]byte, domain.RoomCodeLength)
	for i := range code {
		code[i] = domain.RoomCodeChars[int(b[i])%len(domain.RoomCodeChars)]
	}

	return string(code), nil
}

// cleanupLoop periodically cleans up stale rooms
func (h *Hub) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.cleanupStaleRooms(time.Now())
		}
	}
}

// cleanupStaleRooms removes rooms that are empty or idle for too long
func (h *Hub) cleanupStaleRooms(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	stale := make([]string, 0)
	for roomCode, session := range h.sessions {
		if session.GetPlayerCount() == 0 || now.Sub(session.GetUpdatedAt()) > h.sessionTimeout {
			stale = append(stale, roomCode)
		}
	}

	for _, roomCode := range stale {
		session := h.sessions[roomCode]
		session.Close()
		delete(h.sessions, roomCode)
		for participantID, code := range h.memberships {
			if code == roomCode {
				delete(h.memberships, participantID)
			}
		}
		h.logger.Info("stale room cleaned up", "roomCode", roomCode)
	}

	return len(stale)
}
