package app

import (
	"log/slog"
	"sync"
	"time"

	"storychain/internal/domain"
)

// eventQueueSize bounds the per-room broadcast queue
const eventQueueSize = 512

// ClientConnection represents a connected client
type ClientConnection interface {
	Send(event *domain.Event) error
	GetParticipantID() string
	Close() error
}

// RoomSession owns one room. Every state transition happens under mu and
// its outbound events are queued in order for a single delivery goroutine.
type RoomSession struct {
	room      *domain.Room
	mu        sync.Mutex
	clients   map[string]ClientConnection // participantID -> client
	clientsMu sync.RWMutex
	logger    *slog.Logger

	scheduler  Scheduler
	timer      Timer
	timerRound int

	events chan *domain.Event
	done   chan struct{}
}

// NewRoomSession creates a session for room and starts its event loop
func NewRoomSession(room *domain.Room, scheduler Scheduler, logger *slog.Logger) *RoomSession {
	s := &RoomSession{
		room:       room,
		clients:    make(map[string]ClientConnection),
		logger:     logger.With("roomCode", room.Code),
		scheduler:  scheduler,
		timerRound: -1,
		events:     make(chan *domain.Event, eventQueueSize),
		done:       make(chan struct{}),
	}

	go s.eventLoop()

	return s
}

// GetRoomCode returns the room code
func (s *RoomSession) GetRoomCode() string {
	return s.room.Code
}

// GetCreatedAt returns when the room was created
func (s *RoomSession) GetCreatedAt() time.Time {
	return s.room.CreatedAt
}

// GetUpdatedAt returns the time of the last state change
func (s *RoomSession) GetUpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.UpdatedAt
}

// GetPlayerCount returns the number of current members
func (s *RoomSession) GetPlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.room.Members)
}

// GetStatus returns the room status
func (s *RoomSession) GetStatus() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.Status
}

// GetRound returns the current round index, or -1 before the game starts
func (s *RoomSession) GetRound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.CurrentRound()
}

// GetMembers returns the ordered membership snapshot
func (s *RoomSession) GetMembers() []domain.ParticipantInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.MemberInfos()
}

// GetResults returns the final results, nil until the game finishes
func (s *RoomSession) GetResults() *domain.Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.Results
}

// CanJoin checks if a new participant can join the room
func (s *RoomSession) CanJoin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := s.room.Limits.MaxPlayers
	return s.room.Status == domain.StatusLobby && (limit <= 0 || len(s.room.Members) < limit)
}

// RegisterClient registers a client connection for a participant
func (s *RoomSession) RegisterClient(participantID string, client ClientConnection) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[participantID] = client
}

// UnregisterClient removes a client connection
func (s *RoomSession) UnregisterClient(participantID string) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, participantID)
}

// Create seats the creator as the first member
func (s *RoomSession) Create(p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.room.Create(p)
	if err != nil {
		return err
	}

	s.logger.Info("room created", "participantID", p.ID)
	s.queueEvents(events)

	return nil
}

// Join adds a participant to the lobby
func (s *RoomSession) Join(p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.room.Join(p)
	if err != nil {
		return err
	}

	s.logger.Info("participant joined", "participantID", p.ID, "players", len(s.room.Members))
	s.queueEvents(events)

	return nil
}

// Leave removes a participant and reports whether the room is now empty
func (s *RoomSession) Leave(participantID string) (bool, error) {
	s.UnregisterClient(participantID)

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.room.Leave(participantID)
	if err != nil {
		return s.room.IsEmpty(), err
	}

	s.logger.Info("participant left", "participantID", participantID, "players", len(s.room.Members))
	s.queueEvents(events)
	s.syncTimerLocked()

	return s.room.IsEmpty(), nil
}

// StartGame starts the game (member index 0 only)
func (s *RoomSession) StartGame(participantID string, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.room.Start(participantID, settings)
	if err != nil {
		return err
	}

	s.logger.Info("game started",
		"rounds", s.room.Settings.Rounds,
		"timeLimit", s.room.Settings.TimeLimitSeconds,
		"charLimit", s.room.Settings.CharLimit,
		"origins", len(s.room.Origins),
	)
	s.queueEvents(events)
	s.syncTimerLocked()

	return nil
}

// ReturnToLobby reopens a finished room for a rematch (member index 0 only)
func (s *RoomSession) ReturnToLobby(participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.room.Reopen(participantID)
	if err != nil {
		return err
	}

	s.logger.Info("room back in lobby", "players", len(s.room.Members))
	s.queueEvents(events)
	s.syncTimerLocked()

	return nil
}

// SubmitTurn records a writer's turn for origin
func (s *RoomSession) SubmitTurn(participantID, origin, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	round := s.room.CurrentRound()
	events, err := s.room.Submit(participantID, origin, text)
	if err != nil {
		return err
	}

	s.logger.Debug("turn submitted", "participantID", participantID, "round", round)
	s.queueEvents(events)
	s.syncTimerLocked()

	return nil
}

// SaveDraft buffers a writer's in-progress text
func (s *RoomSession) SaveDraft(participantID, origin, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.SaveDraft(participantID, origin, text)
}

// expireRound is the round timer callback
func (s *RoomSession) expireRound(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timerRound == index {
		s.timer = nil
		s.timerRound = -1
	}

	events, err := s.room.Expire(index)
	if err != nil {
		s.logger.Error("failed to close round", "round", index, "error", err)
		return
	}
	if events == nil {
		return
	}

	s.logger.Info("round timed out", "round", index)
	s.queueEvents(events)
	s.syncTimerLocked()
}

// syncTimerLocked makes the round timer match the open round (caller must
// hold mu). A closed round cancels its timer; a newly opened timed round
// gets one.
func (s *RoomSession) syncTimerLocked() {
	round := s.room.Round
	open := s.room.Status == domain.StatusInRound && round != nil && round.IsOpen()

	if s.timer != nil && (!open || round.Index != s.timerRound) {
		s.timer.Stop()
		s.timer = nil
		s.timerRound = -1
	}

	if !open || s.timer != nil || s.room.Settings.TimeLimitSeconds <= 0 {
		return
	}

	index := round.Index
	s.timerRound = index
	s.timer = s.scheduler.AfterFunc(s.room.Settings.TimeLimit(), func() {
		s.expireRound(index)
	})
}

// queueEvents adds events to the broadcast queue in order
func (s *RoomSession) queueEvents(events []*domain.Event) {
	for _, event := range events {
		select {
		case s.events <- event:
		default:
			s.logger.Warn("event queue full, dropping event", "type", event.Type)
		}
	}
}

// eventLoop processes events and delivers them to clients
func (s *RoomSession) eventLoop() {
	for {
		select {
		case <-s.done:
			return
		case event := <-s.events:
			s.deliver(event)
		}
	}
}

// deliver sends an event to its participant, or to every client
func (s *RoomSession) deliver(event *domain.Event) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	if event.To != "" {
		if client, ok := s.clients[event.To]; ok {
			if err := client.Send(event); err != nil {
				s.logger.Debug("failed to send to client", "participantID", event.To, "error", err)
			}
		}
		return
	}

	for participantID, client := range s.clients {
		if err := client.Send(event); err != nil {
			s.logger.Debug("failed to send to client", "participantID", participantID, "error", err)
		}
	}
}

// Close shuts down the session without closing client connections, which
// outlive rooms.
func (s *RoomSession) Close() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return // Already closed
	default:
		close(s.done)
	}

	s.clientsMu.Lock()
	s.clients = make(map[string]ClientConnection)
	s.clientsMu.Unlock()
}
