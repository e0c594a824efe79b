package client

import (
	"errors"
	"fmt"
	"time"

	"storychain/internal/domain"
	"storychain/internal/protocol"
)

// Client errors
var (
	// ErrInvalidTransition is returned when a server message does not fit the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoPrompt is returned when submitting or saving without a prompt to answer
	ErrNoPrompt = errors.New("no prompt to answer")
)

// Prompt is one story a player has been asked to continue
type Prompt struct {
	Round    int
	Text     string
	Origin   string
	Deadline time.Time // zero when rounds are untimed
}

// Machine tracks one player's view of a game from the server's messages.
// It is not safe for concurrent use.
type Machine struct {
	state     State
	sid       string
	room      string
	players   []domain.ParticipantInfo
	settings  domain.Settings
	current   *Prompt
	queue     []Prompt
	draft     string
	round     int
	submitted map[string]bool
	results   *domain.Results
	lastError *protocol.ErrorPayload
	now       func() time.Time
}

// NewMachine creates a machine in the lobby. A nil clock uses time.Now.
func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		state:     StateLobby,
		round:     -1,
		submitted: make(map[string]bool),
		now:       now,
	}
}

func (m *Machine) State() State { return m.state }
func (m *Machine) SID() string { return m.sid }
func (m *Machine) Room() string { return m.room }
func (m *Machine) Players() []domain.ParticipantInfo { return m.players }
func (m *Machine) Settings() domain.Settings { return m.settings }
func (m *Machine) Results() *domain.Results { return m.results }
func (m *Machine) Draft() string { return m.draft }
func (m *Machine) Pending() int { return len(m.queue) }
func (m *Machine) Submitted() int { return len(m.submitted) }

// Prompt returns the prompt being written, nil outside WRITING
func (m *Machine) Prompt() *Prompt {
	return m.current
}

// LastError returns and clears the most recent server error
func (m *Machine) LastError() *protocol.ErrorPayload {
	err := m.lastError
	m.lastError = nil
	return err
}

// IsHost reports whether this player is first in the room and may start
func (m *Machine) IsHost() bool {
	return m.sid != "" && len(m.players) > 0 && m.players[0].SID == m.sid
}

// Handle applies one server message
func (m *Machine) Handle(env *protocol.Envelope) error {
	switch env.Type {
	case protocol.MsgRoomCreated:
		var p domain.RoomCreatedPayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		m.room = p.Room

	case protocol.MsgJoined:
		var p domain.JoinedPayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if m.state == StateResults {
			m.Reset()
		}
		m.sid, m.room = p.SID, p.Room

	case protocol.MsgPlayerList:
		var players []domain.ParticipantInfo
		if err := env.Decode(&players); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		m.players = players

	case protocol.MsgGameStarted:
		var p domain.GameStartedPayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		m.settings = p.Settings

	case protocol.MsgPrompt:
		var p domain.PromptPayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return m.handlePrompt(p)

	case protocol.MsgRoundSubmitted:
		var p domain.RoundSubmittedPayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		m.submitted[p.From] = true

	case protocol.MsgResults:
		var results domain.Results
		if err := env.Decode(&results); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if err := m.transition(StateResults); err != nil {
			return err
		}
		m.results = &results
		m.current, m.queue, m.draft = nil, nil, ""

	case protocol.MsgLobby:
		if err := m.transition(StateLobby); err != nil {
			return err
		}
		m.clearGame()

	case protocol.MsgError:
		var p protocol.ErrorPayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		m.lastError = &p
	}

	return nil
}

func (m *Machine) handlePrompt(p domain.PromptPayload) error {
	prompt := Prompt{Round: p.Round, Text: p.Text, Origin: p.Origin}
	if limit := m.settings.TimeLimit(); limit > 0 {
		prompt.Deadline = m.now().Add(limit)
	}

	if p.Round > m.round {
		m.round = p.Round
		m.submitted = make(map[string]bool)
	}

	switch {
	case m.current == nil:
		if err := m.transition(StateWriting); err != nil {
			return err
		}
		m.current, m.draft = &prompt, ""
	case p.Round > m.current.Round:
		// The server closed the previous round before we answered it.
		m.current, m.queue, m.draft = &prompt, nil, ""
	default:
		m.queue = append(m.queue, prompt)
	}
	return nil
}

// SetDraft replaces the draft, truncated to the character limit, and
// returns what was kept. The server truncates again on accept.
func (m *Machine) SetDraft(text string) string {
	m.draft = domain.TruncateText(text, m.settings.CharLimit)
	return m.draft
}

// DraftMessage returns a save_draft message for the current prompt
func (m *Machine) DraftMessage() (*protocol.ClientMessage, error) {
	if m.state != StateWriting || m.current == nil {
		return nil, ErrNoPrompt
	}
	return protocol.NewClientMessage(protocol.MsgSaveDraft, protocol.TurnPayload{
		Text:   m.draft,
		Origin: m.current.Origin,
	}), nil
}

// Submit answers the current prompt with the draft and moves to the next
// queued prompt, or to WAITING when none is left.
func (m *Machine) Submit() (*protocol.ClientMessage, error) {
	if m.state != StateWriting || m.current == nil {
		return nil, ErrNoPrompt
	}

	msg := protocol.NewClientMessage(protocol.MsgSubmitTurn, protocol.TurnPayload{
		Text:   m.draft,
		Origin: m.current.Origin,
	})

	m.draft = ""
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.current, m.queue = &next, m.queue[1:]
		return msg, nil
	}

	m.current = nil
	m.state = StateWaiting
	return msg, nil
}

// Remaining returns the time left on the current prompt, or false when
// there is no running countdown.
func (m *Machine) Remaining() (time.Duration, bool) {
	if m.state != StateWriting || m.current == nil || m.current.Deadline.IsZero() {
		return 0, false
	}
	return max(m.current.Deadline.Sub(m.now()), 0), true
}

// Expire auto-submits the draft once the countdown reaches zero
func (m *Machine) Expire() (*protocol.ClientMessage, bool) {
	if remaining, ok := m.Remaining(); !ok || remaining > 0 {
		return nil, false
	}
	msg, err := m.Submit()
	return msg, err == nil
}

// Reset returns from RESULTS to the lobby, forgetting the finished game
func (m *Machine) Reset() error {
	if err := m.transition(StateLobby); err != nil {
		return err
	}
	m.room, m.players = "", nil
	m.clearGame()
	return nil
}

// clearGame forgets the finished game but keeps the room
func (m *Machine) clearGame() {
	m.results = nil
	m.settings = domain.Settings{}
	m.round = -1
	m.submitted = make(map[string]bool)
}

func (m *Machine) transition(target State) error {
	if !m.state.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, m.state, target)
	}
	m.state = target
	return nil
}
