package domain

import "time"

// RoundState represents whether a round still accepts turns
type RoundState string

const (
	RoundOpen   RoundState = "OPEN"
	RoundClosed RoundState = "CLOSED"
)

// Round collects one turn per origin for a single round index
type Round struct {
	Index       int               `json:"index"`
	State       RoundState        `json:"state"`
	Origins     []string          `json:"origins"`
	Assignments Assignment        `json:"assignments"`
	Turns       map[string]*Turn  `json:"turns"`
	Drafts      map[string]string `json:"-"`
	CharLimit   int               `json:"charLimit"`
	StartedAt   time.Time         `json:"startedAt"`
	Deadline    time.Time         `json:"deadline,omitempty"`
	EndedAt     time.Time         `json:"endedAt,omitempty"`
}

// NewRound opens a round with the given assignment
func NewRound(index int, origins []string, assignments Assignment, settings Settings, now time.Time) *Round {
	r := &Round{
		Index:       index,
		State:       RoundOpen,
		Origins:     append([]string(nil), origins...),
		Assignments: assignments,
		Turns:       make(map[string]*Turn, len(origins)),
		Drafts:      make(map[string]string),
		CharLimit:   settings.CharLimit,
		StartedAt:   now,
	}
	if settings.TimeLimitSeconds > 0 {
		r.Deadline = now.Add(settings.TimeLimit())
	}
	return r
}

// WriterOf returns the writer assigned to origin this round
func (r *Round) WriterOf(origin string) string {
	return r.Assignments[origin]
}

// IsOpen returns true while the round accepts turns
func (r *Round) IsOpen() bool {
	return r.State == RoundOpen
}

// Accept records a writer's turn for origin. The first accepted turn for an
// origin wins.
func (r *Round) Accept(origin, writer, text string, now time.Time) (*Turn, error) {
	if !r.IsOpen() {
		return nil, ErrRoundClosed
	}
	assigned, ok := r.Assignments[origin]
	if !ok {
		return nil, ErrUnknownOrigin
	}
	if assigned != writer {
		return nil, ErrNotYourTurn
	}
	if _, done := r.Turns[origin]; done {
		return nil, ErrDuplicateSubmission
	}

	turn := NewTurn(origin, writer, TruncateText(text, r.CharLimit), r.Index, false, now)
	r.Turns[origin] = turn
	delete(r.Drafts, origin)

	return turn, nil
}

// Buffer stores the writer's in-progress text for origin, used if the round
// times out before the writer submits.
func (r *Round) Buffer(origin, writer, text string) error {
	if !r.IsOpen() {
		return ErrRoundClosed
	}
	assigned, ok := r.Assignments[origin]
	if !ok {
		return ErrUnknownOrigin
	}
	if assigned != writer {
		return ErrNotYourTurn
	}
	if _, done := r.Turns[origin]; done {
		return ErrDuplicateSubmission
	}
	r.Drafts[origin] = text
	return nil
}

// Outstanding returns origins still missing a turn, in origin order
func (r *Round) Outstanding() []string {
	missing := make([]string, 0)
	for _, origin := range r.Origins {
		if _, ok := r.Turns[origin]; !ok {
			missing = append(missing, origin)
		}
	}
	return missing
}

// Complete reports whether every origin held by a connected writer has a turn.
func (r *Round) Complete(connected func(string) bool) bool {
	for _, origin := range r.Outstanding() {
		writer := r.Assignments[origin]
		if writer != "" && connected(writer) {
			return false
		}
	}
	return true
}

// Close ends the round, forcing a turn for every missing origin from the
// writer's buffered draft or empty text. Closing a closed round returns nil.
func (r *Round) Close(now time.Time) []*Turn {
	if !r.IsOpen() {
		return nil
	}

	forced := make([]*Turn, 0)
	for _, origin := range r.Outstanding() {
		text := TruncateText(r.Drafts[origin], r.CharLimit)
		turn := NewTurn(origin, r.Assignments[origin], text, r.Index, true, now)
		r.Turns[origin] = turn
		forced = append(forced, turn)
	}

	r.Drafts = make(map[string]string)
	r.State = RoundClosed
	r.EndedAt = now

	return forced
}

// OrderedTurns returns the round's turns in origin order
func (r *Round) OrderedTurns() []*Turn {
	turns := make([]*Turn, 0, len(r.Turns))
	for _, origin := range r.Origins {
		if t, ok := r.Turns[origin]; ok {
			turns = append(turns, t)
		}
	}
	return turns
}
