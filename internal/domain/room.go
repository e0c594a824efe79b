package domain

import (
	"fmt"
	"strings"
	"time"
)

// RoomCodeLength is the length of every room code
const RoomCodeLength = 6

// RoomCodeChars are the characters a room code may contain
const RoomCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NormalizeRoomCode upper-cases and trims a room code
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidRoomCode reports whether code is 6 characters from A-Z and 0-9
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(RoomCodeChars, rune(code[i])) {
			return false
		}
	}
	return true
}

// Room is one game: its members, settings and stories
type Room struct {
	Code      string            `json:"code"`
	Members   []*Participant    `json:"members"`
	Roster    map[string]string `json:"roster"` // id -> last-known name, departed included
	Settings  Settings          `json:"settings"`
	Limits    Limits            `json:"-"`
	Status    Status            `json:"status"`
	Origins   []string          `json:"origins"`
	Round     *Round            `json:"round,omitempty"`
	Stories   *StoryBook        `json:"-"`
	Results   *Results          `json:"results,omitempty"`
	History   History           `json:"-"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewRoom creates a room in the lobby with no members
func NewRoom(code string, limits Limits) (*Room, error) {
	code = NormalizeRoomCode(code)
	if !ValidRoomCode(code) {
		return nil, ErrInvalidRoomCode
	}

	now := time.Now()
	return &Room{
		Code:      code,
		Members:   make([]*Participant, 0),
		Roster:    make(map[string]string),
		Limits:    limits,
		Status:    StatusLobby,
		Origins:   make([]string, 0),
		History:   make(History),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Create seats the creator as the first member
func (r *Room) Create(p *Participant) ([]*Event, error) {
	if len(r.Members) > 0 {
		return nil, ErrDuplicateRoomCode
	}

	r.addMember(p)

	return []*Event{
		NewParticipantEvent(EventRoomCreated, r.Code, p.ID, &RoomCreatedPayload{Room: r.Code}),
		NewParticipantEvent(EventJoined, r.Code, p.ID, &JoinedPayload{SID: p.ID, Name: p.Name, Room: r.Code}),
		r.playerListEvent(),
	}, nil
}

// Join appends a participant, preserving join order
func (r *Room) Join(p *Participant) ([]*Event, error) {
	if r.Status != StatusLobby {
		return nil, ErrRoomAlreadyStarted
	}
	if r.HasMember(p.ID) {
		return nil, nil
	}
	if r.Limits.MaxPlayers > 0 && len(r.Members) >= r.Limits.MaxPlayers {
		return nil, ErrRoomFull
	}

	r.addMember(p)

	return []*Event{
		NewParticipantEvent(EventJoined, r.Code, p.ID, &JoinedPayload{SID: p.ID, Name: p.Name, Room: r.Code}),
		r.playerListEvent(),
	}, nil
}

func (r *Room) addMember(p *Participant) {
	r.Members = append(r.Members, p)
	r.Roster[p.ID] = p.Name
	r.touch()
}

// Leave removes a participant. The next member inherits start authority.
// Origins are never changed; a departure mid-round may close the round.
func (r *Room) Leave(participantID string) ([]*Event, error) {
	idx := r.memberIndex(participantID)
	if idx < 0 {
		return nil, ErrParticipantNotFound
	}

	r.Members = append(r.Members[:idx], r.Members[idx+1:]...)
	r.touch()

	events := []*Event{r.playerListEvent()}

	if r.Status == StatusInRound && r.Round != nil && r.Round.IsOpen() && r.Round.Complete(r.HasMember) {
		closed, err := r.closeRound()
		if err != nil {
			return nil, err
		}
		events = append(events, closed...)
	}

	return events, nil
}

// HasMember reports whether participantID is currently in the room
func (r *Room) HasMember(participantID string) bool {
	return r.memberIndex(participantID) >= 0
}

func (r *Room) memberIndex(participantID string) int {
	for i, m := range r.Members {
		if m.ID == participantID {
			return i
		}
	}
	return -1
}

// Host returns the member allowed to start the game, or nil when empty
func (r *Room) Host() *Participant {
	if len(r.Members) == 0 {
		return nil
	}
	return r.Members[0]
}

// IsHost checks if the given participant is member index 0
func (r *Room) IsHost(participantID string) bool {
	host := r.Host()
	return host != nil && host.ID == participantID
}

// IsEmpty returns true when every member has left
func (r *Room) IsEmpty() bool {
	return len(r.Members) == 0
}

// MemberInfos returns the ordered membership snapshot
func (r *Room) MemberInfos() []ParticipantInfo {
	infos := make([]ParticipantInfo, 0, len(r.Members))
	for _, m := range r.Members {
		infos = append(infos, m.ToInfo())
	}
	return infos
}

func (r *Room) playerListEvent() *Event {
	return NewEvent(EventPlayerList, r.Code, r.MemberInfos())
}

// Start fixes the settings and origins and opens the self-assigned round 0
func (r *Room) Start(participantID string, requested Settings) ([]*Event, error) {
	if !r.HasMember(participantID) {
		return nil, ErrParticipantNotFound
	}
	if !r.IsHost(participantID) {
		return nil, ErrUnauthorized
	}
	if !r.Status.CanTransitionTo(StatusInRound) {
		return nil, ErrRoomAlreadyStarted
	}

	settings, err := r.Limits.Resolve(requested, len(r.Members))
	if err != nil {
		return nil, err
	}

	r.Settings = settings
	r.Origins = make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		r.Origins = append(r.Origins, m.ID)
	}
	r.Stories = NewStoryBook(r.Origins)
	r.Status = StatusInRound

	events := []*Event{
		NewEvent(EventGameStarted, r.Code, &GameStartedPayload{Settings: r.Settings}),
	}
	opened, err := r.openRound(0)
	if err != nil {
		return nil, err
	}

	return append(events, opened...), nil
}

// openRound rotates assignments for index and prompts each connected writer
func (r *Room) openRound(index int) ([]*Event, error) {
	now := time.Now()
	assignment := Rotate(r.Origins, index, r.HasMember, r.History)
	r.Round = NewRound(index, r.Origins, assignment, r.Settings, now)
	r.touch()

	events := make([]*Event, 0, len(r.Origins))
	for _, origin := range r.Origins {
		writer := assignment[origin]
		if writer == "" || !r.HasMember(writer) {
			continue
		}
		text := ""
		if story, ok := r.Stories.Story(origin); ok {
			text = story.LastText()
		}
		events = append(events, NewParticipantEvent(EventPrompt, r.Code, writer, &PromptPayload{
			Round:  index,
			Text:   text,
			Origin: origin,
		}))
	}

	// A round nobody can write closes straight away.
	if r.Round.Complete(r.HasMember) {
		closed, err := r.closeRound()
		if err != nil {
			return nil, err
		}
		events = append(events, closed...)
	}

	return events, nil
}

// Submit records a writer's turn and advances when the round is complete
func (r *Room) Submit(participantID, origin, text string) ([]*Event, error) {
	if r.Status == StatusFinished {
		return nil, ErrRoundClosed
	}
	if r.Status != StatusInRound || r.Round == nil {
		return nil, ErrGameNotStarted
	}
	if !r.HasMember(participantID) {
		return nil, ErrParticipantNotFound
	}

	if _, err := r.Round.Accept(origin, participantID, text, time.Now()); err != nil {
		return nil, err
	}
	r.touch()

	events := []*Event{
		NewEvent(EventRoundSubmitted, r.Code, &RoundSubmittedPayload{From: participantID}),
	}

	if r.Round.Complete(r.HasMember) {
		closed, err := r.closeRound()
		if err != nil {
			return nil, err
		}
		events = append(events, closed...)
	}

	return events, nil
}

// SaveDraft buffers a writer's in-progress text for the current round
func (r *Room) SaveDraft(participantID, origin, text string) error {
	if r.Status != StatusInRound || r.Round == nil {
		return ErrGameNotStarted
	}
	if !r.HasMember(participantID) {
		return ErrParticipantNotFound
	}
	return r.Round.Buffer(origin, participantID, text)
}

// Expire closes round index on timeout. Stale or already-closed rounds are
// left untouched.
func (r *Room) Expire(index int) ([]*Event, error) {
	if r.Status != StatusInRound || r.Round == nil {
		return nil, nil
	}
	if r.Round.Index != index || !r.Round.IsOpen() {
		return nil, nil
	}
	return r.closeRound()
}

// closeRound forces missing turns, records the round and moves on
func (r *Room) closeRound() ([]*Event, error) {
	r.Round.Close(time.Now())

	for _, turn := range r.Round.OrderedTurns() {
		if err := r.Stories.Append(turn); err != nil {
			return nil, fmt.Errorf("record round %d: %w", r.Round.Index, err)
		}
		r.History.Record(turn.Origin, turn.Contributor)
	}

	return r.advance()
}

// advance finishes the game after the last round or opens the next one
func (r *Room) advance() ([]*Event, error) {
	next := r.Round.Index + 1
	if next >= r.Settings.Rounds {
		r.Status = StatusFinished
		r.Results = r.Stories.Finalize(r.Roster)
		r.touch()
		return []*Event{NewEvent(EventResults, r.Code, r.Results)}, nil
	}
	return r.openRound(next)
}

// Reopen takes a finished room back to the lobby for another game with the
// same members. Stories and results of the last game are dropped.
func (r *Room) Reopen(participantID string) ([]*Event, error) {
	if !r.HasMember(participantID) {
		return nil, ErrParticipantNotFound
	}
	if !r.IsHost(participantID) {
		return nil, ErrUnauthorized
	}
	if !r.Status.CanTransitionTo(StatusLobby) {
		return nil, ErrGameNotFinished
	}

	r.Status = StatusLobby
	r.Settings = Settings{}
	r.Origins = make([]string, 0)
	r.Round = nil
	r.Stories = nil
	r.Results = nil
	r.History = make(History)
	r.touch()

	return []*Event{
		NewEvent(EventLobby, r.Code, nil),
		r.playerListEvent(),
	}, nil
}

// CurrentRound returns the index of the round in progress, or -1
func (r *Room) CurrentRound() int {
	if r.Round == nil {
		return -1
	}
	return r.Round.Index
}

func (r *Room) touch() {
	r.UpdatedAt = time.Now()
}
